package services

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/hkdf"
)

const tokenKeyInfo = "calibrasil/order-receipt-token/v1"

// TokenSigner derives receipt-confirmation tokens from order ids.
type TokenSigner struct {
	key []byte
}

// NewTokenSigner derives the signing key from secret.
func NewTokenSigner(secret string) (*TokenSigner, error) {
	if len(secret) < 16 {
		return nil, fmt.Errorf("confirmation secret must be at least 16 bytes")
	}
	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(secret), nil, []byte(tokenKeyInfo)), key); err != nil {
		return nil, fmt.Errorf("derive token key: %w", err)
	}
	return &TokenSigner{key: key}, nil
}

// Token is the hex HMAC-SHA256 of the order id.
func (s *TokenSigner) Token(orderID uuid.UUID) string {
	mac := hmac.New(sha256.New, s.key)
	mac.Write([]byte(orderID.String()))
	return hex.EncodeToString(mac.Sum(nil))
}

// Valid compares token against the expected token in constant time.
func (s *TokenSigner) Valid(orderID uuid.UUID, token string) bool {
	got, err := hex.DecodeString(strings.TrimSpace(token))
	if err != nil {
		return false
	}
	want, _ := hex.DecodeString(s.Token(orderID))
	return hmac.Equal(got, want)
}
