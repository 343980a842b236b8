// Package receipt mints and verifies signed run receipts: compact JWT
// attestations of a finished piece run that downstream automation can check
// without trusting the events file.
package receipt

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// MaxValidity bounds how long a receipt stays verifiable. Receipts attest a
// run that already happened; a long-lived one is just a stale credential.
const MaxValidity = 30 * 24 * time.Hour

// DefaultValidity is used when no validity is given.
const DefaultValidity = 7 * 24 * time.Hour

// Claims is the receipt payload.
type Claims struct {
	Piece      string `json:"piece"`
	Status     string `json:"status"`
	Iterations int    `json:"iterations"`
	jwt.RegisteredClaims
}

// Minter signs run receipts with an HMAC key shared with the verifier.
type Minter struct {
	key    []byte
	issuer string
}

// NewMinter creates a minter. The key must be non-empty; the issuer names
// the installation producing receipts.
func NewMinter(key []byte, issuer string) (*Minter, error) {
	if len(key) == 0 {
		return nil, fmt.Errorf("receipt signing key cannot be empty")
	}
	if issuer == "" {
		return nil, fmt.Errorf("receipt issuer cannot be empty")
	}
	return &Minter{key: key, issuer: issuer}, nil
}

// Mint signs a receipt for a finished run, valid for DefaultValidity.
func (m *Minter) Mint(runID, pieceName, status string, iterations int) (string, error) {
	return m.MintWithValidity(runID, pieceName, status, iterations, DefaultValidity)
}

// MintWithValidity signs a receipt with an explicit validity window.
func (m *Minter) MintWithValidity(runID, pieceName, status string, iterations int, validity time.Duration) (string, error) {
	if runID == "" {
		return "", fmt.Errorf("run ID cannot be empty")
	}
	if validity <= 0 {
		return "", fmt.Errorf("validity must be positive")
	}
	if validity > MaxValidity {
		return "", fmt.Errorf("validity %v exceeds maximum allowed %v", validity, MaxValidity)
	}

	now := time.Now()
	claims := Claims{
		Piece:      pieceName,
		Status:     status,
		Iterations: iterations,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			Subject:   runID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(validity)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.key)
	if err != nil {
		return "", fmt.Errorf("failed to sign receipt: %w", err)
	}
	return signed, nil
}

// Verify checks a receipt's signature and expiry and returns its claims.
func Verify(tokenString string, key []byte) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return key, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to verify receipt: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("receipt is not valid")
	}
	return claims, nil
}
