package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// AnswerKey caches a normalized answer under the digest of everything that produced it.
func AnswerKey(digest string) string {
	return fmt.Sprintf("answer:%s", digest)
}

func RateLimitKey(client string) string {
	return fmt.Sprintf("ratelimit:%s", client)
}

// Digest hashes parts into a stable hex key component. Parts are length-prefixed
// so ("ab", "c") and ("a", "bc") never collide.
func Digest(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		fmt.Fprintf(h, "%d:%s;", len(p), p)
	}
	return hex.EncodeToString(h.Sum(nil))
}
