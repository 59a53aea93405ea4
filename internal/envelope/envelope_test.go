package envelope

import (
	"bytes"
	"encoding/base64"
	"testing"
)

func TestSealOpenRoundTrip(t *testing.T) {
	recipient, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("generate key pair: %v", err)
	}

	plaintext := []byte("hello, warden")
	ct, err := Seal(plaintext, recipient.Public)
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	got, err := Open(ct, recipient)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if !bytes.Equal(got, plaintext) {
		t.Fatalf("round trip mismatch: got %q want %q", got, plaintext)
	}
}

func TestSealFreshness(t *testing.T) {
	recipient, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("generate key pair: %v", err)
	}
	plaintext := []byte("same plaintext twice")

	ct1, err := Seal(plaintext, recipient.Public)
	if err != nil {
		t.Fatalf("seal 1: %v", err)
	}
	ct2, err := Seal(plaintext, recipient.Public)
	if err != nil {
		t.Fatalf("seal 2: %v", err)
	}
	if bytes.Equal(ct1, ct2) {
		t.Fatal("sealing the same plaintext twice produced identical ciphertext")
	}
}

func TestOpenWrongKeyFails(t *testing.T) {
	recipient, _ := GenerateKeyPair()
	other, _ := GenerateKeyPair()

	ct, err := Seal([]byte("secret"), recipient.Public)
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	if _, err := Open(ct, other); err == nil {
		t.Fatal("expected open with wrong key pair to fail")
	}
}

func TestOpenTamperedFails(t *testing.T) {
	recipient, _ := GenerateKeyPair()
	ct, err := Seal([]byte("secret"), recipient.Public)
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	ct[len(ct)-1] ^= 0xFF
	if _, err := Open(ct, recipient); err == nil {
		t.Fatal("expected tampered ciphertext to fail integrity")
	} else {
		var ce *CryptoError
		if !asCryptoError(err, &ce) || ce.Kind != ErrIntegrity {
			t.Fatalf("expected ErrIntegrity, got %v", err)
		}
	}
}

func TestOpenTextBadBase64(t *testing.T) {
	recipient, _ := GenerateKeyPair()
	_, err := OpenText("not-valid-base64!!!", recipient)
	var ce *CryptoError
	if !asCryptoError(err, &ce) || ce.Kind != ErrDecodeBase64 {
		t.Fatalf("expected ErrDecodeBase64, got %v", err)
	}
}

func TestOpenRandomBytesAlmostNeverOpens(t *testing.T) {
	recipient, _ := GenerateKeyPair()
	random := bytes.Repeat([]byte{0x42, 0x13, 0x37, 0x99}, 20)
	if _, err := Open(random, recipient); err == nil {
		t.Fatal("expected random bytes to fail to open")
	}
}

func TestSealJSONOpenJSONRoundTrip(t *testing.T) {
	recipient, _ := GenerateKeyPair()
	type payload struct {
		Ctime int64  `json:"ctime"`
		Name  string `json:"name"`
	}
	in := payload{Ctime: 1234, Name: "elene"}

	text, err := SealJSON(in, recipient.Public)
	if err != nil {
		t.Fatalf("seal json: %v", err)
	}
	var out payload
	if err := OpenJSON(text, recipient, &out); err != nil {
		t.Fatalf("open json: %v", err)
	}
	if out != in {
		t.Fatalf("round trip mismatch: got %+v want %+v", out, in)
	}
}

func TestSecureTokenRoundTrip(t *testing.T) {
	var key [SecretKeySize]byte
	copy(key[:], bytes.Repeat([]byte{0x07}, SecretKeySize))

	plaintext := []byte("continuation-token-payload")
	text, err := SealTokenText(plaintext, key)
	if err != nil {
		t.Fatalf("seal token: %v", err)
	}
	got, err := OpenTokenText(text, key)
	if err != nil {
		t.Fatalf("open token: %v", err)
	}
	if !bytes.Equal(got, plaintext) {
		t.Fatalf("round trip mismatch: got %q want %q", got, plaintext)
	}
}

func TestSecureTokenTamperedFails(t *testing.T) {
	var key [SecretKeySize]byte
	copy(key[:], bytes.Repeat([]byte{0x07}, SecretKeySize))

	ct, err := SealToken([]byte("payload"), key)
	if err != nil {
		t.Fatalf("seal token: %v", err)
	}
	ct[len(ct)-1] ^= 0xFF
	if _, err := OpenToken(ct, key); err == nil {
		t.Fatal("expected tampered secure token to fail")
	}
}

func TestCheckContentType(t *testing.T) {
	if err := CheckContentType(ContentType); err != nil {
		t.Fatalf("expected valid content type to pass, got %v", err)
	}
	if err := CheckContentType(ContentType + "; charset=utf-8"); err != nil {
		t.Fatalf("expected params to be ignored, got %v", err)
	}
	if err := CheckContentType("application/json"); err != ErrUnsupportedMediaType {
		t.Fatalf("expected ErrUnsupportedMediaType, got %v", err)
	}
}

// asCryptoError is errors.As without importing errors in every test (kept
// local since it's only used for the Kind assertions above).
func asCryptoError(err error, target **CryptoError) bool {
	ce, ok := err.(*CryptoError)
	if !ok {
		return false
	}
	*target = ce
	return true
}

func TestBase64Sanity(t *testing.T) {
	// Sanity check that StdEncoding round trips through SealText/OpenText's
	// chosen encoding (guards against an accidental switch to RawURLEncoding
	// that would silently break interop with clients using StdEncoding).
	recipient, _ := GenerateKeyPair()
	text, err := SealText([]byte("x"), recipient.Public)
	if err != nil {
		t.Fatalf("seal text: %v", err)
	}
	if _, err := base64.StdEncoding.DecodeString(text); err != nil {
		t.Fatalf("expected StdEncoding-compatible output, got error: %v", err)
	}
}
