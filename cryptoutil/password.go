package cryptoutil

import (
	"crypto/hmac"
	crand "crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/pbkdf2"

	"github.com/tos-network/roomcore/rcerr"
)

const (
	pbkdf2Iterations = 100_000
	pbkdf2SaltBytes  = 16
	pbkdf2KeyBytes   = 32
	pbkdf2Scheme     = "pbkdf2-sha256"
)

// PasswordHash derives a salted PBKDF2-SHA256 hash of plaintext and returns
// it in the form "$pbkdf2-sha256$100000$<salt_b64>$<hash_b64>".
func PasswordHash(plaintext string) (string, error) {
	salt := make([]byte, pbkdf2SaltBytes)
	if _, err := crand.Read(salt); err != nil {
		return "", rcerr.Wrap(rcerr.InvalidEvent, "cryptoutil.PasswordHash", "failed to read random salt", err)
	}
	derived := pbkdf2.Key([]byte(plaintext), salt, pbkdf2Iterations, pbkdf2KeyBytes, sha256.New)
	return fmt.Sprintf("$%s$%d$%s$%s", pbkdf2Scheme, pbkdf2Iterations, B64Encode(salt), B64Encode(derived)), nil
}

// PasswordVerify reports whether plaintext matches a hash produced by
// PasswordHash, comparing the derived bytes in constant time.
func PasswordVerify(plaintext, stored string) bool {
	parts := strings.Split(stored, "$")
	// "$pbkdf2-sha256$100000$salt$hash" splits into ["", scheme, iters, salt, hash].
	if len(parts) != 5 || parts[0] != "" || parts[1] != pbkdf2Scheme {
		return false
	}
	iterations, err := strconv.Atoi(parts[2])
	if err != nil || iterations <= 0 {
		return false
	}
	salt, err := B64Decode(parts[3])
	if err != nil {
		return false
	}
	want, err := B64Decode(parts[4])
	if err != nil {
		return false
	}
	got := pbkdf2.Key([]byte(plaintext), salt, iterations, len(want), sha256.New)
	return subtle.ConstantTimeCompare(got, want) == 1
}

// TokenHash returns the unpadded-base64url SHA-256 digest of token, used to
// store access/refresh tokens without keeping the plaintext at rest.
func TokenHash(token string) string {
	sum := sha256.Sum256([]byte(token))
	return B64URLEncode(sum[:])
}

const randomAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// RandomString returns a cryptographically random string of length n drawn
// from [A-Za-z0-9], using rejection sampling so every character is equally
// likely (no modulo bias).
func RandomString(n int) (string, error) {
	const alphabetLen = byte(len(randomAlphabet))
	// 256 is not a multiple of 62; reject draws in the biased tail.
	maxUnbiased := byte(256 - (256 % int(alphabetLen)))

	out := make([]byte, 0, n)
	buf := make([]byte, 1)
	for len(out) < n {
		if _, err := crand.Read(buf); err != nil {
			return "", rcerr.Wrap(rcerr.InvalidEvent, "cryptoutil.RandomString", "failed to read random byte", err)
		}
		if buf[0] >= maxUnbiased {
			continue
		}
		out = append(out, randomAlphabet[buf[0]%alphabetLen])
	}
	return string(out), nil
}

// ConstantTimeEqual compares two already-derived byte slices (e.g. two
// token hashes) without leaking a timing signal on the matching prefix.
func ConstantTimeEqual(a, b []byte) bool {
	return hmac.Equal(a, b)
}
