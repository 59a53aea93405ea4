// Package native implements the native (password) authentication method:
// a user's name and password verified against a PHC-encoded Argon2id hash.
package native

import (
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// Argon2id parameters at the "interactive" tuning occlude's own crypto.go
// recommends Argon2id for: memory-hard enough to make dictionary attacks on
// a leaked hash costly, cheap enough for a login-path hash-and-compare.
const (
	argonTime    = 1
	argonMemory  = 64 * 1024 // KiB
	argonThreads = 4
	argonKeyLen  = 32
	saltSize     = 16
)

// HashPassword derives a PHC-encoded Argon2id hash of password, carrying
// its own random salt.
func HashPassword(password string) (string, error) {
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("native: generate salt: %w", err)
	}
	key := argon2.IDKey([]byte(password), salt, argonTime, argonMemory, argonThreads, argonKeyLen)
	return encodePHC(salt, key), nil
}

// VerifyPassword reports whether password matches encoded, a hash produced
// by HashPassword. The comparison of derived keys is constant-time; an
// unparseable encoded hash is treated as a mismatch.
func VerifyPassword(encoded, password string) bool {
	salt, want, err := decodePHC(encoded)
	if err != nil {
		return false
	}
	got := argon2.IDKey([]byte(password), salt, argonTime, argonMemory, argonThreads, uint32(len(want)))
	return subtle.ConstantTimeCompare(got, want) == 1
}

// encodePHC renders salt and key in PHC string format:
// $argon2id$v=19$m=<mem>,t=<time>,p=<threads>$<salt-b64>$<hash-b64>
func encodePHC(salt, key []byte) string {
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, argonMemory, argonTime, argonThreads,
		b64Encode(salt), b64Encode(key))
}

func decodePHC(encoded string) (salt, key []byte, err error) {
	parts := strings.Split(encoded, "$")
	// parts[0] is empty (string starts with '$'); parts[1]="argon2id";
	// parts[2]="v=.."; parts[3]="m=..,t=..,p=.."; parts[4]=salt; parts[5]=hash.
	if len(parts) != 6 || parts[1] != "argon2id" {
		return nil, nil, fmt.Errorf("native: not a recognized PHC hash")
	}
	salt, err = b64Decode(parts[4])
	if err != nil {
		return nil, nil, fmt.Errorf("native: decode salt: %w", err)
	}
	key, err = b64Decode(parts[5])
	if err != nil {
		return nil, nil, fmt.Errorf("native: decode hash: %w", err)
	}
	return salt, key, nil
}
