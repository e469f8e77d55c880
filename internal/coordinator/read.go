package coordinator

import (
	"context"

	"go.opentelemetry.io/otel/attribute"

	"github.com/leonardcser/addrkv/internal/logger"
)

// Get returns the record stored under key.
//
// A key the filter has never seen fails with CodeFilterLookupFailed before the
// cache or store is touched. Any cache error, including a miss, falls through
// to the store; a store failure is reported as CodeDBInsertionFailed. No step
// is retried.
func (c *Coordinator) Get(ctx context.Context, key string) (record string, err error) {
	ctx, span := c.start(ctx, "coordinator.Get", key)
	defer func() { finish(span, err) }()

	if !c.filter.Contains(key) {
		return "", &Error{Code: CodeFilterLookupFailed, Op: opFilterLookup, Key: key}
	}

	blob, cacheErr := c.cache.Get(ctx, key)
	if cacheErr == nil {
		record, cacheErr = decodeRecord(blob)
		if cacheErr == nil {
			span.SetAttributes(attribute.String("addrkv.source", "cache"))
			return record, nil
		}
	}
	logger.Debugf("get %q: cache miss: %v", key, cacheErr)

	doc, err := c.store.Get(ctx, key)
	if err != nil {
		return "", &Error{Code: CodeDBInsertionFailed, Op: opStoreGet, Key: key, Err: err}
	}
	span.SetAttributes(attribute.String("addrkv.source", "store"))
	record = string(doc)

	if c.repopulate {
		c.refill(ctx, key, record)
	}
	return record, nil
}

// refill copies a store hit back into the cache. Failures are logged only;
// the read already succeeded.
func (c *Coordinator) refill(ctx context.Context, key, record string) {
	if err := c.cache.Set(ctx, key, encodeRecord(record)); err != nil {
		logger.Warnf("get %q: repopulate cache: %v", key, err)
		return
	}
	if err := c.cache.Expire(ctx, key, c.repopulateTTL); err != nil {
		logger.Warnf("get %q: repopulate expiry: %v", key, err)
	}
}
