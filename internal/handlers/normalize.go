package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"unicode"

	"ticket-checkout/internal/status"
	"ticket-checkout/models"
)

const maxBodySize = 1 << 20

// Accepted keys in snake_case, mapped to their canonical name. camelCase
// spellings are folded into snake_case before the lookup.
var (
	billingFields = map[string]string{
		"first_name":   "first_name",
		"last_name":    "last_name",
		"email":        "email",
		"phone":        "phone",
		"phone_number": "phone",
		"address":      "address",
		"city":         "city",
		"country":      "country",
		"postal_code":  "postal_code",
		"zip":          "postal_code",
		"zip_code":     "postal_code",
	}

	guestFields = map[string]string{
		"email":        "email",
		"first_name":   "first_name",
		"last_name":    "last_name",
		"phone":        "phone",
		"phone_number": "phone",
	}

	checkoutFields = map[string]string{
		"cart_id":        "cart_id",
		"billing":        "billing",
		"billing_info":   "billing",
		"payment_method": "payment_method",
		"guest":          "guest",
		"guest_info":     "guest",
	}
)

func snakeCase(s string) string {
	var b strings.Builder
	for i, r := range s {
		if unicode.IsUpper(r) {
			if i > 0 {
				b.WriteByte('_')
			}
			r = unicode.ToLower(r)
		}
		b.WriteRune(r)
	}
	return b.String()
}

// decodeObject reads a JSON object and re-keys it by canonical field name.
// Unknown keys and a key given twice under different spellings are
// validation errors.
func decodeObject(raw []byte, fields map[string]string) (map[string]json.RawMessage, error) {
	var in map[string]json.RawMessage
	if err := json.Unmarshal(raw, &in); err != nil {
		return nil, status.Invalid("body must be a JSON object")
	}
	if in == nil {
		return nil, status.Invalid("body must be a JSON object")
	}

	out := make(map[string]json.RawMessage, len(in))
	for key, value := range in {
		name, ok := fields[snakeCase(key)]
		if !ok {
			return nil, status.Invalid("unknown field %q", key)
		}
		if _, dup := out[name]; dup {
			return nil, status.Invalid("field %q given more than once", name)
		}
		out[name] = value
	}
	return out, nil
}

func stringField(m map[string]json.RawMessage, name string) (string, error) {
	raw, ok := m[name]
	if !ok || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", status.Invalid("field %q must be a string", name)
	}
	return strings.TrimSpace(s), nil
}

func stringFields(m map[string]json.RawMessage, names ...string) (map[string]string, error) {
	out := make(map[string]string, len(names))
	for _, name := range names {
		v, err := stringField(m, name)
		if err != nil {
			return nil, err
		}
		out[name] = v
	}
	return out, nil
}

// normalizeBilling turns a loosely shaped billing object into BillingInfo.
// A missing or null object yields nil so the controller can report it.
func normalizeBilling(raw json.RawMessage) (*models.BillingInfo, error) {
	if len(raw) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil, nil
	}
	m, err := decodeObject(raw, billingFields)
	if err != nil {
		return nil, fmt.Errorf("billing: %w", err)
	}
	v, err := stringFields(m, "first_name", "last_name", "email", "phone", "address", "city", "country", "postal_code")
	if err != nil {
		return nil, fmt.Errorf("billing: %w", err)
	}
	return &models.BillingInfo{
		FirstName:  v["first_name"],
		LastName:   v["last_name"],
		Email:      v["email"],
		Phone:      v["phone"],
		Address:    v["address"],
		City:       v["city"],
		Country:    v["country"],
		PostalCode: v["postal_code"],
	}, nil
}

func normalizeGuest(raw json.RawMessage) (models.GuestContact, error) {
	if len(raw) == 0 {
		return models.GuestContact{}, status.Invalid("guest contact is required")
	}
	m, err := decodeObject(raw, guestFields)
	if err != nil {
		return models.GuestContact{}, fmt.Errorf("guest: %w", err)
	}
	v, err := stringFields(m, "email", "first_name", "last_name", "phone")
	if err != nil {
		return models.GuestContact{}, fmt.Errorf("guest: %w", err)
	}
	return models.GuestContact{
		Email:     v["email"],
		FirstName: v["first_name"],
		LastName:  v["last_name"],
		Phone:     v["phone"],
	}, nil
}

// checkoutBody is an initiate request after normalization.
type checkoutBody struct {
	CartID        string
	Billing       *models.BillingInfo
	PaymentMethod string
	Guest         *models.GuestContact
}

func decodeCheckoutBody(r io.Reader) (*checkoutBody, error) {
	raw, err := io.ReadAll(io.LimitReader(r, maxBodySize))
	if err != nil {
		return nil, status.Invalid("unreadable body")
	}
	m, err := decodeObject(raw, checkoutFields)
	if err != nil {
		return nil, err
	}

	v, err := stringFields(m, "cart_id", "payment_method")
	if err != nil {
		return nil, err
	}
	body := &checkoutBody{
		CartID:        v["cart_id"],
		PaymentMethod: v["payment_method"],
	}

	if body.Billing, err = normalizeBilling(m["billing"]); err != nil {
		return nil, err
	}
	if guest, ok := m["guest"]; ok {
		contact, err := normalizeGuest(guest)
		if err != nil {
			return nil, err
		}
		body.Guest = &contact
	}
	return body, nil
}
