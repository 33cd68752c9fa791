package zerofriction

import (
	"strings"
	"testing"
)

func TestNormalizeIdentity(t *testing.T) {
	cases := map[string]string{
		"Alice@Example.com":     "alice@example.com",
		"  bob@example.com\t":   "bob@example.com",
		"already@example.com":   "already@example.com",
		"MIXED.Case@EXAMPLE.IO": "mixed.case@example.io",
	}
	for in, want := range cases {
		if got := normalizeIdentity(in); got != want {
			t.Fatalf("normalizeIdentity(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestValidIdentity(t *testing.T) {
	valid := []string{
		"alice@example.com",
		"a.b+tag@sub.example.io",
	}
	for _, identity := range valid {
		if !validIdentity(identity) {
			t.Fatalf("expected %q to be valid", identity)
		}
	}

	invalid := []string{
		"",
		"no-at-sign",
		"alice@",
		"Alice <alice@example.com>",
		strings.Repeat("a", 250) + "@example.com",
	}
	for _, identity := range invalid {
		if validIdentity(identity) {
			t.Fatalf("expected %q to be invalid", identity)
		}
	}
}

func TestHashIdentityNormalizesFirst(t *testing.T) {
	if hashIdentity("Alice@Example.com ") != hashIdentity("alice@example.com") {
		t.Fatal("hash must be case and whitespace insensitive")
	}
	if hashIdentity("alice@example.com") == hashIdentity("bob@example.com") {
		t.Fatal("distinct identities must not collide")
	}
	if len(hashIdentity("alice@example.com")) != 64 {
		t.Fatal("expected hex-encoded sha256")
	}
}
