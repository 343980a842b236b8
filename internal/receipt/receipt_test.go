package receipt

import (
	"strings"
	"testing"
	"time"
)

func TestMintAndVerify(t *testing.T) {
	key := []byte("test-signing-key")
	m, err := NewMinter(key, "ensemble-ci")
	if err != nil {
		t.Fatalf("NewMinter() error = %v", err)
	}

	token, err := m.Mint("run-1", "feature-flow", "completed", 5)
	if err != nil {
		t.Fatalf("Mint() error = %v", err)
	}

	claims, err := Verify(token, key)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if claims.Subject != "run-1" || claims.Piece != "feature-flow" {
		t.Errorf("claims = %+v", claims)
	}
	if claims.Status != "completed" || claims.Iterations != 5 {
		t.Errorf("run outcome claims = %q/%d", claims.Status, claims.Iterations)
	}
	if claims.Issuer != "ensemble-ci" {
		t.Errorf("issuer = %q", claims.Issuer)
	}
}

func TestVerifyRejectsWrongKey(t *testing.T) {
	m, _ := NewMinter([]byte("real-key"), "ensemble-ci")
	token, err := m.Mint("run-1", "feature-flow", "completed", 1)
	if err != nil {
		t.Fatalf("Mint() error = %v", err)
	}

	if _, err := Verify(token, []byte("other-key")); err == nil {
		t.Fatal("Verify() accepted a receipt signed with a different key")
	}
}

func TestVerifyRejectsExpired(t *testing.T) {
	key := []byte("test-signing-key")
	m, _ := NewMinter(key, "ensemble-ci")
	token, err := m.MintWithValidity("run-1", "feature-flow", "completed", 1, time.Millisecond)
	if err != nil {
		t.Fatalf("MintWithValidity() error = %v", err)
	}

	time.Sleep(5 * time.Millisecond)
	if _, err := Verify(token, key); err == nil {
		t.Fatal("Verify() accepted an expired receipt")
	}
}

func TestMintValidation(t *testing.T) {
	if _, err := NewMinter(nil, "issuer"); err == nil {
		t.Error("NewMinter accepted an empty key")
	}
	if _, err := NewMinter([]byte("k"), ""); err == nil {
		t.Error("NewMinter accepted an empty issuer")
	}

	m, _ := NewMinter([]byte("k"), "issuer")
	if _, err := m.Mint("", "p", "completed", 0); err == nil {
		t.Error("Mint accepted an empty run ID")
	}
	if _, err := m.MintWithValidity("run-1", "p", "completed", 0, MaxValidity+time.Hour); err == nil {
		t.Error("MintWithValidity accepted an over-long validity")
	}
	if _, err := m.MintWithValidity("run-1", "p", "completed", 0, -time.Hour); err == nil {
		t.Error("MintWithValidity accepted a negative validity")
	}
	if _, err := m.Mint("run-1", "p", "completed", 0); err != nil {
		t.Errorf("Mint() error = %v", err)
	}

	token, _ := m.Mint("run-1", "p", "completed", 0)
	if strings.Count(token, ".") != 2 {
		t.Errorf("token does not look like a compact JWT: %q", token)
	}
}
