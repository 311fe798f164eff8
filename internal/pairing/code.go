package pairing

import (
	"crypto/rand"
	"fmt"
)

// codeAlphabet excludes visually confusable characters (0/O, 1/I/l).
const codeAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

// CodeLength is the fixed length of a pairing code.
const CodeLength = 8

// generateCode returns a pairing code from the restricted alphabet using a
// cryptographically secure random source. Bytes outside the largest
// multiple of the alphabet size are rejected so every character is
// equally likely.
func generateCode() (string, error) {
	// 31 characters: accept bytes below 248 (8 * 31).
	limit := byte(256 - 256%len(codeAlphabet))
	code := make([]byte, 0, CodeLength)
	buf := make([]byte, CodeLength*2)
	for len(code) < CodeLength {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("pairing: generate code: %w", err)
		}
		for _, b := range buf {
			if b >= limit {
				continue
			}
			code = append(code, codeAlphabet[int(b)%len(codeAlphabet)])
			if len(code) == CodeLength {
				break
			}
		}
	}
	return string(code), nil
}
