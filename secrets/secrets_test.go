package secrets

import (
	"errors"
	"strings"
	"testing"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	c, err := New("session-secret")
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	stored, err := c.Encrypt("tok_abcdef123456")
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}
	if !IsEncrypted(stored) {
		t.Fatalf("expected stored form, got %q", stored)
	}
	if strings.Contains(stored, "tok_") {
		t.Fatal("stored value leaks plaintext")
	}
	if got := c.Decrypt(stored); got != "tok_abcdef123456" {
		t.Errorf("Decrypt returned %q", got)
	}

	again, _ := c.Encrypt("tok_abcdef123456")
	if again == stored {
		t.Error("expected a fresh IV per encryption")
	}
}

func TestDecryptPassThrough(t *testing.T) {
	c, _ := New("k")
	for _, v := range []string{"", "plain-token", "a:b", "https://x:y@host"} {
		if got := c.Decrypt(v); got != v {
			t.Errorf("Decrypt(%q) = %q, want unchanged", v, got)
		}
	}

	other, _ := New("different")
	stored, _ := other.Encrypt("secret")
	if c.Decrypt(stored) == "secret" {
		t.Error("decrypting with the wrong key must not yield the plaintext")
	}
}

func TestMask(t *testing.T) {
	c, _ := New("k")
	stored, _ := c.Encrypt("abcdefghijkl")
	if got := c.Mask(stored); got != "****ijkl" {
		t.Errorf("unexpected mask %q", got)
	}
	if got := c.Mask("short"); got != "****rt" {
		t.Errorf("unexpected short mask %q", got)
	}
	if got := c.Mask(""); got != "" {
		t.Errorf("expected empty mask, got %q", got)
	}
	if got := MaskPlain("a"); got != "****a" {
		t.Errorf("unexpected single-char mask %q", got)
	}
}

func TestNewRequiresSecret(t *testing.T) {
	if _, err := New(""); !errors.Is(err, ErrNoSecret) {
		t.Fatalf("expected ErrNoSecret, got %v", err)
	}
}
