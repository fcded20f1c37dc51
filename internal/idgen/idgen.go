// Package idgen produces short identifiers for subjects and records and
// verifies them against the existing collection before handing them out.
package idgen

import (
	"errors"

	"github.com/google/uuid"
)

// ErrExhausted is returned when every attempt collided with an existing id.
var ErrExhausted = errors.New("idgen: could not find a free identifier")

const (
	alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

	// DefaultLength matches the ids already present in legacy tables.
	DefaultLength      = 8
	DefaultMaxAttempts = 16
)

// randomIndexes are the byte positions of a v4 UUID that carry no
// version/variant bits.
var randomIndexes = [...]int{0, 1, 2, 3, 4, 5, 7, 9, 10, 11, 12, 13, 14, 15}

// Generator draws random alphanumeric ids.
type Generator struct {
	Length      int
	MaxAttempts int

	// source is swapped in tests to force collisions.
	source func() uuid.UUID
}

// New returns a generator with the default length and retry budget.
func New() *Generator {
	return &Generator{Length: DefaultLength, MaxAttempts: DefaultMaxAttempts, source: uuid.New}
}

// Next returns an id for which exists reports false. exists must be backed by
// a snapshot taken under the store lock; otherwise the check is advisory.
func (g *Generator) Next(exists func(string) bool) (string, error) {
	attempts := g.MaxAttempts
	if attempts <= 0 {
		attempts = DefaultMaxAttempts
	}
	for i := 0; i < attempts; i++ {
		id := g.draw()
		if exists == nil || !exists(id) {
			return id, nil
		}
	}
	return "", ErrExhausted
}

func (g *Generator) draw() string {
	length := g.Length
	if length <= 0 {
		length = DefaultLength
	}
	src := g.source
	if src == nil {
		src = uuid.New
	}
	out := make([]byte, 0, length)
	for len(out) < length {
		u := src()
		for _, idx := range randomIndexes {
			if len(out) == length {
				break
			}
			out = append(out, alphabet[int(u[idx])%len(alphabet)])
		}
	}
	return string(out)
}
