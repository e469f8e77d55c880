// Package store provides the authoritative durable record stores keyed by
// address. Values are structured JSON documents.
package store

import (
	"context"
	"encoding/json"
	"errors"
)

// ErrNotFound is returned by Get when no record exists for the address.
var ErrNotFound = errors.New("store: not found")

// Store is the durable key to JSON document contract.
type Store interface {
	Get(ctx context.Context, key string) (json.RawMessage, error)
	Set(ctx context.Context, key string, value json.RawMessage) error
	// Keys calls fn for every stored key; a non-nil error from fn stops the walk.
	Keys(ctx context.Context, fn func(key string) error) error
	Close() error
}

var errNotConfigured = errors.New("storage is not configured")
