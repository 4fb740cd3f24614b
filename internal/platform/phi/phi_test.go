package phi

import (
	"bytes"
	"encoding/hex"
	"strings"
	"testing"
)

func key(b byte) []byte { return bytes.Repeat([]byte{b}, 32) }

func TestEncryptor_RoundTrip(t *testing.T) {
	enc, err := NewEncryptor(key(1), 1)
	if err != nil {
		t.Fatalf("NewEncryptor: %v", err)
	}
	for _, plain := range []string{"", "+221 77 123 45 67", "awa.diallo@example.sn", "Quartier Médina, Dakar"} {
		ct, err := enc.Encrypt(plain)
		if err != nil {
			t.Fatalf("Encrypt: %v", err)
		}
		if !strings.HasPrefix(ct, "v1:") {
			t.Errorf("expected version prefix, got %q", ct)
		}
		got, err := enc.Decrypt(ct)
		if err != nil {
			t.Fatalf("Decrypt: %v", err)
		}
		if got != plain {
			t.Errorf("expected %q, got %q", plain, got)
		}
	}
}

func TestEncryptor_NonceDiffers(t *testing.T) {
	enc, _ := NewEncryptor(key(1), 1)
	a, _ := enc.Encrypt("same")
	b, _ := enc.Encrypt("same")
	if a == b {
		t.Error("expected distinct ciphertexts for the same plaintext")
	}
}

func TestEncryptor_InvalidKey(t *testing.T) {
	if _, err := NewEncryptor([]byte("short"), 1); err == nil {
		t.Error("expected error for short key")
	}
	if _, err := NewEncryptor(key(1), 0); err == nil {
		t.Error("expected error for non-positive version")
	}
}

func TestEncryptor_Rotation(t *testing.T) {
	old, _ := NewEncryptor(key(1), 1)
	ct, _ := old.Encrypt("secret")

	cur, _ := NewEncryptor(key(2), 2)
	if _, err := cur.Decrypt(ct); err == nil {
		t.Fatal("expected failure without the previous key")
	}
	if err := cur.AddPreviousKey(key(1), 1); err != nil {
		t.Fatalf("AddPreviousKey: %v", err)
	}
	got, err := cur.Decrypt(ct)
	if err != nil || got != "secret" {
		t.Fatalf("expected previous key to decrypt, got %q, %v", got, err)
	}
	if !cur.NeedsReEncryption(ct) {
		t.Error("expected v1 ciphertext to need re-encryption")
	}
	fresh, _ := cur.Encrypt("secret")
	if cur.NeedsReEncryption(fresh) {
		t.Error("current ciphertext must not need re-encryption")
	}
	if err := cur.AddPreviousKey(key(3), 2); err == nil {
		t.Error("expected error registering the current version as previous")
	}
}

func TestEncryptor_Tampered(t *testing.T) {
	enc, _ := NewEncryptor(key(1), 1)
	ct, _ := enc.Encrypt("secret")
	tests := []string{
		"no-version",
		"vx:abcd",
		"v1:!!!",
		"v1:AAAA",
		ct[:len(ct)-4] + "AAAA",
	}
	for _, tc := range tests {
		if _, err := enc.Decrypt(tc); err == nil {
			t.Errorf("expected error decrypting %q", tc)
		}
	}
}

func TestParseKeys(t *testing.T) {
	enc, err := ParseKeys("", 1, "")
	if err != nil || enc != nil {
		t.Fatalf("expected disabled encryption, got %v, %v", enc, err)
	}

	cur := hex.EncodeToString(key(2))
	prev := hex.EncodeToString(key(1))
	enc, err = ParseKeys(cur, 2, " 1:"+prev+" ,")
	if err != nil {
		t.Fatalf("ParseKeys: %v", err)
	}
	old, _ := NewEncryptor(key(1), 1)
	ct, _ := old.Encrypt("x")
	if got, err := enc.Decrypt(ct); err != nil || got != "x" {
		t.Errorf("expected previous key to be loaded, got %q, %v", got, err)
	}

	bad := []struct{ cur, prev string }{
		{"zz", ""},
		{cur, "1"},
		{cur, "a:" + prev},
		{cur, "1:zz"},
		{hex.EncodeToString([]byte("short")), ""},
	}
	for _, b := range bad {
		if _, err := ParseKeys(b.cur, 2, b.prev); err == nil {
			t.Errorf("expected error for %q / %q", b.cur, b.prev)
		}
	}
}

func TestSealOpenPtr(t *testing.T) {
	enc, _ := NewEncryptor(key(1), 1)
	v := "0601020304"
	sealed, err := SealPtr(enc, &v)
	if err != nil {
		t.Fatalf("SealPtr: %v", err)
	}
	if *sealed == v {
		t.Error("expected value to be encrypted")
	}
	opened, err := OpenPtr(enc, sealed)
	if err != nil || *opened != v {
		t.Errorf("expected %q, got %v, %v", v, opened, err)
	}

	if p, _ := SealPtr(nil, &v); p != &v {
		t.Error("nil encryptor must leave the value untouched")
	}
	if p, _ := SealPtr(enc, nil); p != nil {
		t.Error("nil value must stay nil")
	}
	empty := ""
	if p, _ := SealPtr(enc, &empty); *p != "" {
		t.Error("empty value must stay empty")
	}
}
