// Package envelope implements the sealed-envelope transport (component
// C1): anonymous-sender, authenticated asymmetric encryption of byte
// strings and JSON values, plus a symmetric primitive for opaque
// continuation tokens. Grounded on avahowell-occlude, the one
// crypto-heavy repository in the example pack -- it reaches for
// golang.org/x/crypto for exactly this class of problem (asymmetric
// authenticated primitives over an untrusted channel).
package envelope

import (
	"bytes"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"unicode/utf8"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/nacl/box"
)

// KeySize is the size in bytes of a sealed-box public or secret key.
const KeySize = 32

// KeyPair is a server or client envelope key pair. Public is shareable;
// Secret must stay process-private.
type KeyPair struct {
	Public [KeySize]byte
	Secret [KeySize]byte
}

// GenerateKeyPair returns a fresh random key pair.
func GenerateKeyPair() (*KeyPair, error) {
	pub, sec, err := box.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("envelope: generate key pair: %w", err)
	}
	return &KeyPair{Public: *pub, Secret: *sec}, nil
}

// CryptoErrorKind discriminates the ways opening a sealed envelope can
// fail, per the spec's closed CryptoError enumeration.
type CryptoErrorKind int

const (
	ErrDecodeBase64 CryptoErrorKind = iota
	ErrIntegrity
	ErrUTF8
	ErrDecodeJSON
	ErrEncodeJSON
)

func (k CryptoErrorKind) String() string {
	switch k {
	case ErrDecodeBase64:
		return "decode_base64"
	case ErrIntegrity:
		return "integrity"
	case ErrUTF8:
		return "utf8"
	case ErrDecodeJSON:
		return "decode_json"
	case ErrEncodeJSON:
		return "encode_json"
	default:
		return "unknown"
	}
}

// CryptoError is the single error type surfaced by Open/OpenJSON. Its Kind
// is the only detail exposed to a client (mapped to a 400 class); the
// wrapped cause is for server-side logging only.
type CryptoError struct {
	Kind  CryptoErrorKind
	cause error
}

func (e *CryptoError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("envelope: %s: %v", e.Kind, e.cause)
	}
	return fmt.Sprintf("envelope: %s", e.Kind)
}

func (e *CryptoError) Unwrap() error { return e.cause }

func cryptoErr(kind CryptoErrorKind, cause error) *CryptoError {
	return &CryptoError{Kind: kind, cause: cause}
}

// sealedBoxNonce derives the 24-byte nonce used by the anonymous sealed-box
// construction from the ephemeral and recipient public keys, the standard
// libsodium crypto_box_seal recipe: nonce = BLAKE2b-192(ephemeral_pub ||
// recipient_pub). Deriving the nonce this way (rather than transmitting a
// random one) keeps the ciphertext to ephemeral_pub||box with no extra
// field, while remaining safe: reuse would require the ephemeral key to
// repeat, which GenerateKeyPair's randomness makes vanishingly unlikely.
func sealedBoxNonce(ephemeralPub, recipientPub *[KeySize]byte) (*[24]byte, error) {
	h, err := blake2b.New(24, nil)
	if err != nil {
		return nil, err
	}
	h.Write(ephemeralPub[:])
	h.Write(recipientPub[:])
	var nonce [24]byte
	copy(nonce[:], h.Sum(nil))
	return &nonce, nil
}

// Seal encrypts plaintext for recipientPublicKey. The sender is anonymous:
// ciphertext carries its own ephemeral sender key and integrity tag, and
// sealing the same plaintext twice yields different ciphertexts.
func Seal(plaintext []byte, recipientPublicKey [KeySize]byte) ([]byte, error) {
	ephemeralPub, ephemeralSec, err := box.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("envelope: generate ephemeral key: %w", err)
	}
	nonce, err := sealedBoxNonce(ephemeralPub, &recipientPublicKey)
	if err != nil {
		return nil, fmt.Errorf("envelope: derive nonce: %w", err)
	}

	out := make([]byte, 0, KeySize+len(plaintext)+box.Overhead)
	out = append(out, ephemeralPub[:]...)
	out = box.Seal(out, plaintext, nonce, &recipientPublicKey, ephemeralSec)
	return out, nil
}

// Open decrypts ciphertext sealed under recipient's public key using the
// matching secret key. Tampering any byte, or providing the wrong key
// pair, fails integrity.
func Open(ciphertext []byte, recipient *KeyPair) ([]byte, error) {
	if len(ciphertext) < KeySize+box.Overhead {
		return nil, cryptoErr(ErrIntegrity, fmt.Errorf("ciphertext too short"))
	}
	var ephemeralPub [KeySize]byte
	copy(ephemeralPub[:], ciphertext[:KeySize])
	nonce, err := sealedBoxNonce(&ephemeralPub, &recipient.Public)
	if err != nil {
		return nil, cryptoErr(ErrIntegrity, err)
	}
	plaintext, ok := box.Open(nil, ciphertext[KeySize:], nonce, &ephemeralPub, &recipient.Secret)
	if !ok {
		return nil, cryptoErr(ErrIntegrity, fmt.Errorf("authentication failed"))
	}
	return plaintext, nil
}

// SealText base64-encodes the result of Seal, for transports (HTTP
// headers, bodies) that need a text-safe envelope.
func SealText(plaintext []byte, recipientPublicKey [KeySize]byte) (string, error) {
	ct, err := Seal(plaintext, recipientPublicKey)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(ct), nil
}

// OpenText decodes base64 text and opens it. A non-base64 input fails with
// ErrDecodeBase64; any other failure is as Open.
func OpenText(text string, recipient *KeyPair) ([]byte, error) {
	ct, err := base64.StdEncoding.DecodeString(text)
	if err != nil {
		return nil, cryptoErr(ErrDecodeBase64, err)
	}
	return Open(ct, recipient)
}

// SealJSON JSON-encodes v, then seals it. Marshal failures are reported as
// ErrEncodeJSON so callers can distinguish them from ciphertext failures.
func SealJSON(v any, recipientPublicKey [KeySize]byte) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", cryptoErr(ErrEncodeJSON, err)
	}
	return SealText(data, recipientPublicKey)
}

// OpenJSON opens a base64-sealed envelope and JSON-decodes the plaintext
// into v. Failures are reported with the CryptoErrorKind matching the
// stage that failed: base64, integrity, UTF-8 validity, then JSON.
func OpenJSON(text string, recipient *KeyPair, v any) error {
	plaintext, err := OpenText(text, recipient)
	if err != nil {
		return err
	}
	if !utf8.Valid(plaintext) {
		return cryptoErr(ErrUTF8, fmt.Errorf("plaintext is not valid UTF-8"))
	}
	dec := json.NewDecoder(bytes.NewReader(plaintext))
	if err := dec.Decode(v); err != nil {
		return cryptoErr(ErrDecodeJSON, err)
	}
	return nil
}
