// Package filter holds the address existence filter used to short-circuit
// reads for keys that were never written. Membership only grows.
package filter

import (
	"context"
	"errors"
	"fmt"
	"sync"

	cuckoo "github.com/seiflotfy/cuckoofilter"
)

// ErrFull is returned by Add when the filter has no room for another key.
var ErrFull = errors.New("filter: capacity exhausted")

// Filter is a probabilistic membership set: false positives are possible,
// false negatives are not once Add has succeeded.
type Filter interface {
	Contains(key string) bool
	Add(key string) error
}

// Cuckoo guards a cuckoo filter with a mutex.
type Cuckoo struct {
	mu sync.Mutex
	cf *cuckoo.Filter
}

// NewCuckoo creates a filter sized for roughly capacity keys.
func NewCuckoo(capacity uint) *Cuckoo {
	return &Cuckoo{cf: cuckoo.NewFilter(capacity)}
}

func (c *Cuckoo) Contains(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cf.Lookup([]byte(key))
}

// Add inserts key unless it already tests positive, so repeated adds of the
// same key leave the filter unchanged.
func (c *Cuckoo) Add(key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cf.Lookup([]byte(key)) {
		return nil
	}
	if !c.cf.Insert([]byte(key)) {
		return ErrFull
	}
	return nil
}

// Count reports the number of fingerprints held.
func (c *Cuckoo) Count() uint {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cf.Count()
}

// KeyWalker is satisfied by stores that can enumerate their keys.
type KeyWalker interface {
	Keys(ctx context.Context, fn func(key string) error) error
}

// Rebuild adds every key from src to f and returns how many were walked.
// Every durable key tests positive afterwards.
func Rebuild(ctx context.Context, f Filter, src KeyWalker) (int, error) {
	n := 0
	err := src.Keys(ctx, func(key string) error {
		if err := f.Add(key); err != nil {
			return fmt.Errorf("add %q: %w", key, err)
		}
		n++
		return nil
	})
	if err != nil {
		return n, fmt.Errorf("rebuild filter: %w", err)
	}
	return n, nil
}
