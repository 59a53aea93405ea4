package envelope

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/nacl/secretbox"
)

// SecretKeySize is the size in bytes of a SecureToken signing/sealing key.
const SecretKeySize = 32

// SealToken encrypts plaintext with a server-only-readable symmetric key: a
// random nonce is prepended and the Poly1305 tag that nacl/secretbox places
// in its output authenticates the message. It is a general primitive for
// opaque continuation tokens; nothing in the module calls it outside its
// tests, and the main login envelope uses the asymmetric sealed box in
// envelope.go.
func SealToken(plaintext []byte, key [SecretKeySize]byte) ([]byte, error) {
	var nonce [24]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, fmt.Errorf("envelope: generate nonce: %w", err)
	}
	out := make([]byte, 0, len(nonce)+len(plaintext)+secretbox.Overhead)
	out = append(out, nonce[:]...)
	out = secretbox.Seal(out, plaintext, &nonce, &key)
	return out, nil
}

// OpenToken decrypts a value produced by SealToken. Any tampering, or the
// wrong key, fails integrity.
func OpenToken(ciphertext []byte, key [SecretKeySize]byte) ([]byte, error) {
	if len(ciphertext) < 24+secretbox.Overhead {
		return nil, cryptoErr(ErrIntegrity, fmt.Errorf("ciphertext too short"))
	}
	var nonce [24]byte
	copy(nonce[:], ciphertext[:24])
	plaintext, ok := secretbox.Open(nil, ciphertext[24:], &nonce, &key)
	if !ok {
		return nil, cryptoErr(ErrIntegrity, fmt.Errorf("authentication failed"))
	}
	return plaintext, nil
}

// SealTokenText base64-encodes the result of SealToken.
func SealTokenText(plaintext []byte, key [SecretKeySize]byte) (string, error) {
	ct, err := SealToken(plaintext, key)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(ct), nil
}

// OpenTokenText decodes base64 text and opens it with OpenToken.
func OpenTokenText(text string, key [SecretKeySize]byte) ([]byte, error) {
	ct, err := base64.RawURLEncoding.DecodeString(text)
	if err != nil {
		return nil, cryptoErr(ErrDecodeBase64, err)
	}
	return OpenToken(ct, key)
}
