package security

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// Sign returns the lowercase hex HMAC-SHA256 of payload under key.
func Sign(key string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether signature is the hex HMAC-SHA256 of payload under
// key. The comparison is constant-time.
func Verify(key string, payload []byte, signature string) bool {
	if signature == "" {
		return false
	}
	expected := Sign(key, payload)
	return hmac.Equal([]byte(expected), []byte(signature))
}

// ConstantTimeEqual compares two secrets without leaking their common
// prefix length through timing.
func ConstantTimeEqual(a, b string) bool {
	return hmac.Equal([]byte(a), []byte(b))
}
