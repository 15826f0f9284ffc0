package store

import (
	"context"
	"crypto/rand"
	"fmt"
	"regexp"
)

const (
	// Regular ids draw from the full alphanumeric alphabet; short ids
	// trade keyspace for memorability and use the 16-symbol subset.
	idAlphabetRegular = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"
	idAlphabetShort   = "0123456789abcdef"

	idAttemptsPerLength = 3
)

var idPattern = regexp.MustCompile(`^[0-9a-zA-Z]+$`)

// ValidID reports whether a string has the shape of an allocated id.
func ValidID(id string) bool {
	return idPattern.MatchString(id)
}

// IDPolicy configures the allocator's length schedule. Short requests
// start at MinLength, regular requests at RegularLength; both grow toward
// MaxLength under collision pressure.
type IDPolicy struct {
	MinLength     int
	RegularLength int
	MaxLength     int
}

// DefaultIDPolicy mirrors the engine's stock length schedule.
func DefaultIDPolicy() IDPolicy {
	return IDPolicy{MinLength: 3, RegularLength: 9, MaxLength: 10}
}

// Validate checks the length schedule is usable.
func (p IDPolicy) Validate() error {
	if p.MinLength < 1 {
		return fmt.Errorf("id min length must be >= 1")
	}
	if p.RegularLength < p.MinLength {
		return fmt.Errorf("id regular length must be >= min length")
	}
	if p.MaxLength < p.RegularLength {
		return fmt.Errorf("id max length must be >= regular length")
	}
	return nil
}

// AllocateID returns an id that the exists probe reports as unused.
//
// The allocator makes idAttemptsPerLength random draws per length and
// grows the length on repeated collisions. At MaxLength it retries
// indefinitely: there is no longer length to grow into, and giving up
// would surface a spurious exhaustion error. The loop aborts only on a
// probe failure or context cancellation.
func AllocateID(ctx context.Context, policy IDPolicy, short bool, exists func(string) (bool, error)) (string, error) {
	if err := policy.Validate(); err != nil {
		return "", err
	}
	if exists == nil {
		return "", fmt.Errorf("exists probe is required")
	}

	alphabet := idAlphabetRegular
	length := policy.RegularLength
	if short {
		alphabet = idAlphabetShort
		length = policy.MinLength
	}

	for {
		for attempt := 0; attempt < idAttemptsPerLength || length == policy.MaxLength; attempt++ {
			if err := ctx.Err(); err != nil {
				return "", err
			}
			id, err := randomID(length, alphabet)
			if err != nil {
				return "", err
			}
			taken, err := exists(id)
			if err != nil {
				return "", err
			}
			if !taken {
				return id, nil
			}
		}
		length++
	}
}

func randomID(length int, alphabet string) (string, error) {
	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	out := make([]byte, length)
	for i := 0; i < length; i++ {
		out[i] = alphabet[int(b[i])%len(alphabet)]
	}
	return string(out), nil
}
