package domain

import (
	"strings"
	"testing"
)

func TestNewHash(t *testing.T) {
	t.Parallel()

	valid := strings.Repeat("ab12", 32)

	t.Run("accepts 128 hex characters", func(t *testing.T) {
		h, err := NewHash(valid)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if h.String() != valid {
			t.Fatalf("digest not preserved")
		}
	})

	t.Run("normalizes uppercase", func(t *testing.T) {
		h, err := NewHash(strings.ToUpper(valid))
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if h.String() != valid {
			t.Fatalf("expected lowercase digest, got %s", h.String())
		}
	})

	cases := []struct {
		name  string
		input string
	}{
		{"too short", valid[:127]},
		{"too long", valid + "a"},
		{"empty", ""},
		{"non-hex", strings.Repeat("zz12", 32)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := NewHash(tc.input); err != ErrInvalidHashFormat {
				t.Fatalf("expected ErrInvalidHashFormat, got %v", err)
			}
		})
	}
}

func TestHashEqual(t *testing.T) {
	t.Parallel()

	a, err := NewHash(strings.Repeat("a", 128))
	if err != nil {
		t.Fatalf("new hash: %v", err)
	}
	b, err := NewHash(strings.Repeat("a", 127) + "b")
	if err != nil {
		t.Fatalf("new hash: %v", err)
	}

	if !a.Equal(a) {
		t.Fatalf("expected hash to equal itself")
	}
	if a.Equal(b) {
		t.Fatalf("expected differing hashes to be unequal")
	}
	if !Genesis().Equal(Genesis()) {
		t.Fatalf("expected genesis to equal itself")
	}

	// The comparison must examine every byte regardless of where the inputs
	// first differ: differing in the first byte and in the last byte must go
	// through the same full-length constant-time path.
	first, _ := NewHash("b" + strings.Repeat("a", 127))
	last := b
	if a.Equal(first) || a.Equal(last) {
		t.Fatalf("expected both comparisons to be unequal")
	}
}

func TestParseAlgorithm(t *testing.T) {
	t.Parallel()

	for _, s := range []string{"blake2b-512", "SHA-512", " blake2b-512 "} {
		if _, err := ParseAlgorithm(s); err != nil {
			t.Fatalf("expected %q to parse, got %v", s, err)
		}
	}
	if _, err := ParseAlgorithm("md5"); err != ErrUnknownAlgorithm {
		t.Fatalf("expected ErrUnknownAlgorithm, got %v", err)
	}
}

func TestChain(t *testing.T) {
	t.Parallel()

	t.Run("deterministic", func(t *testing.T) {
		h1, err := DefaultAlgorithm.Chain(Genesis(), []byte("content"))
		if err != nil {
			t.Fatalf("chain: %v", err)
		}
		h2, err := DefaultAlgorithm.Chain(Genesis(), []byte("content"))
		if err != nil {
			t.Fatalf("chain: %v", err)
		}
		if !h1.Equal(h2) {
			t.Fatalf("expected identical digests for identical input")
		}
		if len(h1.String()) != DigestLength {
			t.Fatalf("expected %d hex chars, got %d", DigestLength, len(h1.String()))
		}
	})

	t.Run("depends on previous link", func(t *testing.T) {
		fromGenesis, _ := DefaultAlgorithm.Chain(Genesis(), []byte("content"))
		other, _ := NewHash(strings.Repeat("f", 128))
		fromOther, _ := DefaultAlgorithm.Chain(other, []byte("content"))
		if fromGenesis.Equal(fromOther) {
			t.Fatalf("expected digest to incorporate previous link")
		}
	})

	t.Run("algorithms differ", func(t *testing.T) {
		b, _ := AlgorithmBlake2b512.Chain(Genesis(), []byte("content"))
		s, _ := AlgorithmSHA512.Chain(Genesis(), []byte("content"))
		if b.Equal(s) {
			t.Fatalf("expected blake2b and sha-512 digests to differ")
		}
	})

	t.Run("unknown algorithm fails", func(t *testing.T) {
		if _, err := ChainAlgorithm("md5").Chain(Genesis(), []byte("x")); err != ErrUnknownAlgorithm {
			t.Fatalf("expected ErrUnknownAlgorithm, got %v", err)
		}
	})
}
