package crypto

import (
	"crypto/rand"
	"encoding/base64"
	"testing"
)

func testKey(t *testing.T) string {
	t.Helper()
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		t.Fatal(err)
	}
	return base64.StdEncoding.EncodeToString(key)
}

func TestNewAESEncryptorValidation(t *testing.T) {
	if _, err := NewAESEncryptor(""); err == nil {
		t.Errorf("empty key accepted")
	}
	if _, err := NewAESEncryptor("not-base64!!!"); err == nil {
		t.Errorf("invalid base64 accepted")
	}
	short := base64.StdEncoding.EncodeToString([]byte("too short"))
	if _, err := NewAESEncryptor(short); err == nil {
		t.Errorf("short key accepted")
	}
	if _, err := NewAESEncryptor(testKey(t)); err != nil {
		t.Errorf("valid key rejected: %v", err)
	}
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	enc, err := NewAESEncryptor(testKey(t))
	if err != nil {
		t.Fatal(err)
	}

	plaintext := "oauth-access-token-value"
	sealed, err := EncryptString(enc, plaintext)
	if err != nil {
		t.Fatalf("EncryptString: %v", err)
	}
	if sealed == plaintext {
		t.Errorf("ciphertext equals plaintext")
	}
	opened, err := DecryptString(enc, sealed)
	if err != nil {
		t.Fatalf("DecryptString: %v", err)
	}
	if opened != plaintext {
		t.Errorf("round trip mismatch: %q", opened)
	}

	// Different nonce per call.
	sealed2, err := EncryptString(enc, plaintext)
	if err != nil {
		t.Fatal(err)
	}
	if sealed == sealed2 {
		t.Errorf("two encryptions produced identical ciphertext")
	}
}

func TestEmptyStringPassthrough(t *testing.T) {
	enc, err := NewAESEncryptor(testKey(t))
	if err != nil {
		t.Fatal(err)
	}
	sealed, err := EncryptString(enc, "")
	if err != nil || sealed != "" {
		t.Errorf("empty plaintext: %q, %v", sealed, err)
	}
	opened, err := DecryptString(enc, "")
	if err != nil || opened != "" {
		t.Errorf("empty ciphertext: %q, %v", opened, err)
	}
}

func TestDecryptWithWrongKeyFails(t *testing.T) {
	enc1, err := NewAESEncryptor(testKey(t))
	if err != nil {
		t.Fatal(err)
	}
	enc2, err := NewAESEncryptor(testKey(t))
	if err != nil {
		t.Fatal(err)
	}
	sealed, err := EncryptString(enc1, "secret")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := DecryptString(enc2, sealed); err == nil {
		t.Errorf("wrong key decryption succeeded")
	}
}

func TestDecryptTamperedCiphertextFails(t *testing.T) {
	enc, err := NewAESEncryptor(testKey(t))
	if err != nil {
		t.Fatal(err)
	}
	sealed, err := enc.Encrypt([]byte("secret"))
	if err != nil {
		t.Fatal(err)
	}
	sealed[len(sealed)-1] ^= 0xff
	if _, err := enc.Decrypt(sealed); err == nil {
		t.Errorf("tampered ciphertext accepted")
	}
}
