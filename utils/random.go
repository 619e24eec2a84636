package utils

import (
	"crypto/rand"
	"encoding/hex"
	"strings"
)

// GenerateCode returns n random bytes as 2n uppercase hex characters.
func GenerateCode(n int) (string, error) {
	byt := make([]byte, n)
	if _, err := rand.Read(byt); err != nil {
		return "", err
	}
	return strings.ToUpper(hex.EncodeToString(byt)), nil
}

// ConfirmationCode is the 12 character code a guest uses to look up tickets.
func ConfirmationCode() (string, error) {
	return GenerateCode(6)
}

// PaymentReference returns a provider reference of the form PAY-<16 hex>.
func PaymentReference() (string, error) {
	code, err := GenerateCode(8)
	if err != nil {
		return "", err
	}
	return "PAY-" + code, nil
}
