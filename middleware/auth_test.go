package middleware

import (
	"crypto/ed25519"
	"crypto/rand"
	"strings"
	"testing"

	"github.com/deemkeen/quill/util"
	gossh "golang.org/x/crypto/ssh"
)

func newKey(t *testing.T) gossh.PublicKey {
	t.Helper()
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("Failed to generate key: %v", err)
	}
	pk, err := gossh.NewPublicKey(pub)
	if err != nil {
		t.Fatalf("Failed to wrap key: %v", err)
	}
	return pk
}

func TestAdminKeysAuthorizedLine(t *testing.T) {
	admin := newKey(t)
	other := newKey(t)
	line := strings.TrimSpace(string(gossh.MarshalAuthorizedKey(admin))) + " admin@laptop"

	keys := NewAdminKeys([]string{line, "  "})

	if keys.Len() != 1 {
		t.Fatalf("Expected 1 admin key, got %d", keys.Len())
	}
	if !keys.Allowed(admin) {
		t.Error("Expected admin key to be allowed")
	}
	if keys.Allowed(other) {
		t.Error("Expected other key to be rejected")
	}
	if keys.Allowed(nil) {
		t.Error("Expected nil key to be rejected")
	}
}

func TestAdminKeysHash(t *testing.T) {
	admin := newKey(t)
	hash := util.PkToHash(util.PublicKeyToString(admin))

	keys := NewAdminKeys([]string{strings.ToUpper(hash)})

	if !keys.Allowed(admin) {
		t.Error("Expected key matching the configured hash to be allowed")
	}
}

func TestAdminKeysEmpty(t *testing.T) {
	keys := NewAdminKeys(nil)

	if keys.Len() != 0 {
		t.Errorf("Expected no admin keys, got %d", keys.Len())
	}
	if keys.Allowed(newKey(t)) {
		t.Error("Expected every key to be rejected without admin keys")
	}
}
