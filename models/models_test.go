package models

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCart_Holder(t *testing.T) {
	user := Cart{ID: "cart-1", OwnerType: OwnerUser, OwnerID: "user-1"}
	assert.Equal(t, "user-1", user.Holder())
	assert.False(t, user.IsGuest())

	guest := Cart{ID: "cart-2", OwnerType: OwnerGuest}
	assert.Equal(t, "cart-2", guest.Holder())
	assert.True(t, guest.IsGuest())
}

func TestBillingInfo_IsZero(t *testing.T) {
	var missing *BillingInfo
	assert.True(t, missing.IsZero())
	assert.True(t, (&BillingInfo{Country: "US"}).IsZero())
	assert.False(t, (&BillingInfo{Email: "a@example.com"}).IsZero())
}

func TestCheckoutSession_IsGuest(t *testing.T) {
	assert.False(t, (&CheckoutSession{UserID: "user-1"}).IsGuest())
	assert.True(t, (&CheckoutSession{Guest: &GuestContact{Email: "a@example.com"}}).IsGuest())
}

func TestPaymentNotification_ProviderWireFormat(t *testing.T) {
	body := `{"reference":"PAY-0011223344556677","status":"SUCCESS","amount":43.2,"phone_number":"02055501234","transaction_id":"BANK-9"}`

	var n PaymentNotification
	require.NoError(t, json.Unmarshal([]byte(body), &n))
	assert.Equal(t, "PAY-0011223344556677", n.Reference)
	assert.Equal(t, "SUCCESS", n.Status)
	assert.True(t, n.Amount.Equal(decimal.RequireFromString("43.2")))
	assert.Equal(t, "02055501234", n.PhoneNumber)
	assert.Equal(t, "BANK-9", n.ProviderRef)
}

func TestPaymentTransaction_OmitsUnsetCompletion(t *testing.T) {
	raw, err := json.Marshal(PaymentTransaction{Reference: "PAY-1", Status: PaymentPending})
	require.NoError(t, err)

	var out map[string]any
	require.NoError(t, json.Unmarshal(raw, &out))
	assert.NotContains(t, out, "completed_at")
	assert.NotContains(t, out, "provider_ref")
	assert.Equal(t, false, out["review_required"])
}

func TestMoneyIsStringEncoded(t *testing.T) {
	raw, err := json.Marshal(Ticket{ID: "t1", Price: decimal.RequireFromString("10.50")})
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"price":"10.5"`)
}
