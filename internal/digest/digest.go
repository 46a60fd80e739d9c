// Package digest defines the fixed-size SHA-256 value used for donation
// fingerprints, block hashes and Merkle nodes.
//
// A Hash is always rendered as 64 lowercase hex characters. Keeping it a typed
// array rather than a string stops arbitrary text from being mixed into the
// chain by accident.
package digest

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
)

// Size is the byte length of a Hash.
const Size = sha256.Size

// ErrMalformed is returned when a string is not a 64-character hex digest.
var ErrMalformed = errors.New("malformed digest")

// Hash is a SHA-256 digest.
type Hash [Size]byte

// Zero is the all-zero Hash. It never occurs as a real digest and is used to
// mean "no value".
var Zero Hash

// Sum returns the SHA-256 digest of data.
func Sum(data []byte) Hash {
	return Hash(sha256.Sum256(data))
}

// SumString returns the SHA-256 digest of s.
func SumString(s string) Hash {
	return Sum([]byte(s))
}

// Parse decodes a 64-character hex string into a Hash.
func Parse(s string) (Hash, error) {
	var h Hash
	if len(s) != hex.EncodedLen(Size) {
		return h, fmt.Errorf("%w: want %d hex chars, got %d", ErrMalformed, hex.EncodedLen(Size), len(s))
	}
	if _, err := hex.Decode(h[:], []byte(s)); err != nil {
		return h, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return h, nil
}

// MustParse is like Parse but panics on error. Intended for tests and constants.
func MustParse(s string) Hash {
	h, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return h
}

// String returns the lowercase hex encoding.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// IsZero reports whether h is the zero Hash.
func (h Hash) IsZero() bool {
	return h == Zero
}

// MarshalText implements encoding.TextMarshaler.
func (h Hash) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (h *Hash) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}
