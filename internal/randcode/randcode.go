// Package randcode draws fixed-length codes from an alphabet using crypto/rand.
package randcode

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
)

// New returns n characters drawn uniformly from alphabet.
func New(alphabet string, n int) (string, error) {
	if alphabet == "" || n <= 0 {
		return "", fmt.Errorf("randcode: empty alphabet or length %d", n)
	}
	max := big.NewInt(int64(len(alphabet)))
	var b strings.Builder
	b.Grow(n)
	for range n {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("randcode: %w", err)
		}
		b.WriteByte(alphabet[idx.Int64()])
	}
	return b.String(), nil
}

// Valid reports whether s has length n and only characters from alphabet.
func Valid(s, alphabet string, n int) bool {
	if len(s) != n {
		return false
	}
	for i := 0; i < len(s); i++ {
		if strings.IndexByte(alphabet, s[i]) < 0 {
			return false
		}
	}
	return true
}
