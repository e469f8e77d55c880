package coordinator

import (
	"context"
	"encoding/json"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/leonardcser/addrkv/internal/logger"
)

// writeStage is the last step a Set completed.
type writeStage int

const (
	stageStart writeStage = iota
	stageCacheWritten
	stageExpirySet
	stageExpirySkipped
	stageStoreWritten
	stageFilterUpdated
)

func (s writeStage) String() string {
	switch s {
	case stageCacheWritten:
		return "cache_written"
	case stageExpirySet:
		return "expiry_set"
	case stageExpirySkipped:
		return "expiry_skipped"
	case stageStoreWritten:
		return "store_written"
	case stageFilterUpdated:
		return "filter_updated"
	default:
		return "start"
	}
}

// Set writes record under key and returns key on success.
//
// Steps run strictly in order: cache write, cache expiry, parse, store write,
// filter insert. A failed expiry is logged and skipped; any other failure
// stops the pipeline and is returned without undoing earlier steps, so the
// cache may hold a value the store never received.
func (c *Coordinator) Set(ctx context.Context, key, record string, ttl time.Duration) (_ string, err error) {
	ctx, span := c.start(ctx, "coordinator.Set", key)
	stage := stageStart
	defer func() {
		span.SetAttributes(attribute.String("addrkv.stage", stage.String()))
		finish(span, err)
	}()

	if err := c.cache.Set(ctx, key, encodeRecord(record)); err != nil {
		return "", &Error{Code: CodeCacheInsertionFailed, Op: opCacheSet, Key: key, Err: err}
	}
	stage = stageCacheWritten

	if err := c.cache.Expire(ctx, key, ttl); err != nil {
		logger.Warnf("set %q: cache expiry skipped: %v", key, err)
		stage = stageExpirySkipped
	} else {
		stage = stageExpirySet
	}

	var doc json.RawMessage
	if err := json.Unmarshal([]byte(record), &doc); err != nil {
		return "", &Error{Code: CodeDataSerializationFailed, Op: opParse, Key: key, Err: err}
	}

	if err := c.store.Set(ctx, key, doc); err != nil {
		return "", &Error{Code: CodeDBInsertionFailed, Op: opStoreSet, Key: key, Err: err}
	}
	stage = stageStoreWritten

	if err := c.filter.Add(key); err != nil {
		return "", &Error{Code: CodeFilterInsertionFailed, Op: opFilterAdd, Key: key, Err: err}
	}
	stage = stageFilterUpdated

	logger.Debugf("set %q: done (ttl %s)", key, ttl)
	return key, nil
}
