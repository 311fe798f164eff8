package pairing

import (
	"strings"
	"testing"
)

func TestGenerateCodeShape(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 200; i++ {
		code, err := generateCode()
		if err != nil {
			t.Fatal(err)
		}
		if len(code) != CodeLength {
			t.Fatalf("expected %d characters, got %q", CodeLength, code)
		}
		for _, c := range code {
			if !strings.ContainsRune(codeAlphabet, c) {
				t.Fatalf("character %q outside the alphabet in %q", c, code)
			}
		}
		seen[code] = struct{}{}
	}
	if len(seen) < 200 {
		t.Errorf("expected 200 distinct codes, got %d", len(seen))
	}
}
