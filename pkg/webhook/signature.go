package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// SignaturePrefix identifies the HMAC algorithm in signature headers
const SignaturePrefix = "sha256="

// DefaultMaxAge is the replay window applied when Verify is called with a
// non-positive maxAge
const DefaultMaxAge = 5 * time.Minute

// Sign computes the HMAC-SHA256 signature of a delivery body. The signed
// input is "{timestamp}.{body}" so a captured body cannot be replayed under
// a fresh timestamp. timestamp is epoch milliseconds.
func Sign(body []byte, timestamp int64, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.", timestamp)
	mac.Write(body)
	return SignaturePrefix + hex.EncodeToString(mac.Sum(nil))
}

// Verify checks a webhook signature. It rejects timestamps older than maxAge
// (replay-window enforcement), malformed signatures, and mismatches. The
// comparison is constant-time; only a length mismatch short-circuits, which
// leaks nothing useful.
func Verify(body []byte, signature string, timestamp int64, secret string, maxAge time.Duration) bool {
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	if time.Now().UnixMilli()-timestamp > maxAge.Milliseconds() {
		return false
	}
	if !strings.HasPrefix(signature, SignaturePrefix) {
		return false
	}

	expected := Sign(body, timestamp, secret)
	if len(expected) != len(signature) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(signature)) == 1
}
