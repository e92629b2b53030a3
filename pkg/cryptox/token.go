package cryptox

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"math/big"
	"strconv"
)

// Entropy sizes in raw bytes. Encoded lengths are 22 and 43 characters.
const (
	TokenSize128 = 16
	TokenSize256 = 32
)

// GenerateToken returns size random bytes as unpadded base64url.
func GenerateToken(size int) (string, error) {
	if size <= 0 {
		return "", fmt.Errorf("cryptox: token size %d is not positive", size)
	}
	buf := make([]byte, size)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("cryptox: read random: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// GenerateNumericCode returns a uniformly random six digit code in
// [100000, 999999], suitable for SMS one-time codes.
func GenerateNumericCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900_000))
	if err != nil {
		return "", fmt.Errorf("cryptox: numeric code: %w", err)
	}
	return strconv.FormatInt(100_000+n.Int64(), 10), nil
}

// FingerprintToken returns a deterministic SHA-256 fingerprint of a token,
// base64url-encoded. Stores keep fingerprints instead of raw codes.
func FingerprintToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// EqualFingerprint reports whether token fingerprints to fp, in constant time.
func EqualFingerprint(token, fp string) bool {
	return subtle.ConstantTimeCompare([]byte(FingerprintToken(token)), []byte(fp)) == 1
}
