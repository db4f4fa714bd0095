package domain

import (
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// DigestLength is the hex length of a chain digest (512-bit algorithms only).
const DigestLength = 128

// Hash is an immutable 512-bit digest in lowercase hex form.
type Hash struct {
	digest string
}

// NewHash validates and normalizes a 128-character hex digest.
func NewHash(digest string) (Hash, error) {
	digest = strings.ToLower(digest)
	if len(digest) != DigestLength {
		return Hash{}, ErrInvalidHashFormat
	}
	if _, err := hex.DecodeString(digest); err != nil {
		return Hash{}, ErrInvalidHashFormat
	}
	return Hash{digest: digest}, nil
}

// Genesis is the well-known root of every account's chain: the all-zero
// digest. It is a deployment constant; changing it invalidates every
// existing chain.
func Genesis() Hash {
	return Hash{digest: strings.Repeat("0", DigestLength)}
}

func (h Hash) String() string {
	return h.digest
}

func (h Hash) IsZero() bool {
	return h.digest == ""
}

// Equal compares two hashes in constant time so chain continuity checks do
// not leak the position of the first differing byte.
func (h Hash) Equal(other Hash) bool {
	if len(h.digest) != len(other.digest) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(h.digest), []byte(other.digest)) == 1
}

// ChainAlgorithm identifies the pinned digest function for a chain. The
// identifier is stored alongside every event so a chain that mixes
// algorithms fails verification instead of being silently accepted.
type ChainAlgorithm string

const (
	AlgorithmBlake2b512 ChainAlgorithm = "blake2b-512"
	AlgorithmSHA512     ChainAlgorithm = "sha-512"

	// DefaultAlgorithm is the pinned algorithm for new chains.
	DefaultAlgorithm = AlgorithmBlake2b512
)

// ParseAlgorithm validates a stored or configured algorithm identifier.
func ParseAlgorithm(s string) (ChainAlgorithm, error) {
	switch ChainAlgorithm(strings.ToLower(strings.TrimSpace(s))) {
	case AlgorithmBlake2b512:
		return AlgorithmBlake2b512, nil
	case AlgorithmSHA512:
		return AlgorithmSHA512, nil
	}
	return "", ErrUnknownAlgorithm
}

// Chain computes the next link: the digest of the previous link's bytes
// followed by the event content. Deterministic and collision-resistant.
func (a ChainAlgorithm) Chain(previous Hash, content []byte) (Hash, error) {
	input := make([]byte, 0, len(previous.digest)+len(content))
	input = append(input, previous.digest...)
	input = append(input, content...)

	var sum [64]byte
	switch a {
	case AlgorithmBlake2b512:
		sum = blake2b.Sum512(input)
	case AlgorithmSHA512:
		sum = sha512.Sum512(input)
	default:
		return Hash{}, ErrUnknownAlgorithm
	}
	return Hash{digest: hex.EncodeToString(sum[:])}, nil
}
