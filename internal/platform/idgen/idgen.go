// Package idgen produces human-readable sequential identifiers of the form
// PREFIX + zero-padded counter (KHOP01001, BILL0001).
package idgen

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// MaxAttempts bounds how many times Create re-reads the current maximum after
// an identifier collision.
const MaxAttempts = 5

var (
	// ErrCorruptIdentifier means a stored identifier with the prefix has a
	// non-numeric suffix. Continuing could hand out a duplicate.
	ErrCorruptIdentifier = errors.New("corrupt sequential identifier")

	// ErrCollision is returned by insert callbacks when the storage layer
	// rejected the candidate identifier as already taken.
	ErrCollision = errors.New("identifier collision")
)

// MaxLookup returns the greatest existing identifier that starts with
// prefix, or "" when there is none.
type MaxLookup func(ctx context.Context, prefix string) (string, error)

// Next returns the identifier following currentMax.
func Next(prefix string, width int, currentMax string) (string, error) {
	n := 1
	if currentMax != "" {
		if !strings.HasPrefix(currentMax, prefix) {
			return "", fmt.Errorf("%w: %q does not start with %q", ErrCorruptIdentifier, currentMax, prefix)
		}
		suffix := currentMax[len(prefix):]
		v, err := strconv.Atoi(suffix)
		if err != nil || v < 0 || strings.ContainsAny(suffix, "+-") {
			return "", fmt.Errorf("%w: %q has suffix %q", ErrCorruptIdentifier, currentMax, suffix)
		}
		n = v + 1
	}
	return fmt.Sprintf("%s%0*d", prefix, width, n), nil
}

// Generator allocates identifiers against storage.
type Generator struct {
	lookup MaxLookup
}

func NewGenerator(lookup MaxLookup) *Generator {
	return &Generator{lookup: lookup}
}

// Generate reads the current maximum and returns its successor. The result is
// only a candidate until it is inserted.
func (g *Generator) Generate(ctx context.Context, prefix string, width int) (string, error) {
	current, err := g.lookup(ctx, prefix)
	if err != nil {
		return "", fmt.Errorf("lookup max identifier for %s: %w", prefix, err)
	}
	return Next(prefix, width, current)
}

// Create generates a candidate and hands it to insert. When insert reports
// ErrCollision the lookup is repeated with fresh data; any other error is
// returned as is.
func (g *Generator) Create(ctx context.Context, prefix string, width int, insert func(id string) error) (string, error) {
	var lastErr error
	for attempt := 0; attempt < MaxAttempts; attempt++ {
		id, err := g.Generate(ctx, prefix, width)
		if err != nil {
			return "", err
		}
		err = insert(id)
		if err == nil {
			return id, nil
		}
		if !errors.Is(err, ErrCollision) {
			return "", err
		}
		lastErr = err
	}
	return "", fmt.Errorf("allocate identifier for %s after %d attempts: %w", prefix, MaxAttempts, lastErr)
}
