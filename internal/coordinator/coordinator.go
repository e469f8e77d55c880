// Package coordinator implements the read and write protocol across the
// existence filter, the cache and the durable store.
//
// Reads check the filter, then the cache, then fall back to the store. Writes
// go cache, expiry, store, filter in that order and stop at the first failure
// without undoing earlier steps, so a filter hit implies a durable record.
// Collaborators are injected and synchronize themselves; the coordinator never
// holds a lock across two of them.
package coordinator

import (
	"context"
	"encoding/json"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/leonardcser/addrkv/internal/cache"
	"github.com/leonardcser/addrkv/internal/filter"
)

const instrumentationName = "github.com/leonardcser/addrkv/internal/coordinator"

// Store is the durable store capability the coordinator needs.
type Store interface {
	Get(ctx context.Context, key string) (json.RawMessage, error)
	Set(ctx context.Context, key string, value json.RawMessage) error
}

// Coordinator serves Get and Set. It keeps no per-request state and is safe
// for concurrent use.
type Coordinator struct {
	filter filter.Filter
	cache  cache.KV
	store  Store
	tracer trace.Tracer

	repopulate    bool
	repopulateTTL time.Duration
}

type Option func(*Coordinator)

// WithRepopulate makes Get write store hits back into the cache with ttl.
// Off by default: a store fallback leaves the cache untouched.
func WithRepopulate(ttl time.Duration) Option {
	return func(c *Coordinator) {
		c.repopulate = true
		c.repopulateTTL = ttl
	}
}

// WithTracerProvider overrides the global OpenTelemetry tracer provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *Coordinator) {
		c.tracer = tp.Tracer(instrumentationName)
	}
}

func New(f filter.Filter, kv cache.KV, s Store, opts ...Option) *Coordinator {
	c := &Coordinator{
		filter: f,
		cache:  kv,
		store:  s,
		tracer: otel.Tracer(instrumentationName),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// start detaches ctx from caller cancellation: once begun, an operation runs
// every step it reaches. Trace context and other values are kept.
func (c *Coordinator) start(ctx context.Context, name, key string) (context.Context, trace.Span) {
	return c.tracer.Start(context.WithoutCancel(ctx), name,
		trace.WithAttributes(attribute.String("addrkv.key", key)))
}

func finish(span trace.Span, err error) {
	if err != nil {
		if code, ok := CodeOf(err); ok {
			span.SetAttributes(attribute.String("addrkv.code", string(code)))
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// encodeRecord is the single serialization point between a record and its
// cache blob.
func encodeRecord(record string) []byte {
	b, _ := json.Marshal(record)
	return b
}

// decodeRecord reverses encodeRecord. An empty blob is the cache's explicit
// "no value" marker and decodes to the empty record.
func decodeRecord(blob []byte) (string, error) {
	if len(blob) == 0 {
		return "", nil
	}
	var record string
	if err := json.Unmarshal(blob, &record); err != nil {
		return "", err
	}
	return record, nil
}
