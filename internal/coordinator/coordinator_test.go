package coordinator

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/leonardcser/addrkv/internal/cache"
	"github.com/leonardcser/addrkv/internal/filter"
	"github.com/leonardcser/addrkv/internal/store"
)

func TestGet_UnknownKeyShortCircuits(t *testing.T) {
	h := newHarness()
	h.cache.data["ghost"] = encodeRecord("cached")
	h.store.data["ghost"] = json.RawMessage(`"stored"`)

	_, err := h.coordinator().Get(context.Background(), "ghost")

	require.ErrorIs(t, err, ErrFilterLookupFailed)
	code, ok := CodeOf(err)
	require.True(t, ok)
	assert.Equal(t, CodeFilterLookupFailed, code)
	assert.Equal(t, []string{"filter.contains"}, h.j.all(), "no cache or store access")
}

func TestGet_CacheWinsOverStore(t *testing.T) {
	h := newHarness()
	h.filter.keys["addr1"] = true
	h.cache.data["addr1"] = encodeRecord(`{"from":"cache"}`)
	h.store.data["addr1"] = json.RawMessage(`{"from":"store"}`)

	got, err := h.coordinator().Get(context.Background(), "addr1")

	require.NoError(t, err)
	assert.Equal(t, `{"from":"cache"}`, got)
	assert.Equal(t, []string{"filter.contains", "cache.get"}, h.j.all())
}

func TestGet_FallsBackToStore(t *testing.T) {
	tests := []struct {
		name  string
		setup func(h *harness)
	}{
		{name: "cache miss", setup: func(h *harness) {}},
		{name: "cache error", setup: func(h *harness) { h.cache.getErr = errBoom }},
		{name: "expired entry", setup: func(h *harness) { h.cache.getErr = cache.ErrExpired }},
		{name: "corrupt blob", setup: func(h *harness) { h.cache.data["addr1"] = []byte("\x00not json") }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness()
			h.filter.keys["addr1"] = true
			h.store.data["addr1"] = json.RawMessage(`{"a":1}`)
			tt.setup(h)

			got, err := h.coordinator().Get(context.Background(), "addr1")

			require.NoError(t, err)
			assert.Equal(t, `{"a":1}`, got)
			assert.Equal(t, []string{"filter.contains", "cache.get", "store.get"}, h.j.all())
			assert.NotContains(t, h.j.all(), "cache.set", "no repopulation by default")
		})
	}
}

func TestGet_EmptyCachedValueIsAnAnswer(t *testing.T) {
	h := newHarness()
	h.filter.keys["addr1"] = true
	h.cache.data["addr1"] = nil
	h.store.data["addr1"] = json.RawMessage(`{"a":1}`)

	got, err := h.coordinator().Get(context.Background(), "addr1")

	require.NoError(t, err)
	assert.Empty(t, got)
	assert.NotContains(t, h.j.all(), "store.get")
}

func TestGet_StoreFailure(t *testing.T) {
	tests := map[string]error{
		"not found": nil,
		"io error":  errBoom,
	}
	for name, storeErr := range tests {
		t.Run(name, func(t *testing.T) {
			h := newHarness()
			h.filter.keys["addr1"] = true
			h.store.getErr = storeErr

			_, err := h.coordinator().Get(context.Background(), "addr1")

			require.ErrorIs(t, err, ErrDBInsertionFailed)
			var cerr *Error
			require.ErrorAs(t, err, &cerr)
			assert.Equal(t, opStoreGet, cerr.Op)
			if storeErr != nil {
				assert.ErrorIs(t, err, storeErr)
			} else {
				assert.ErrorIs(t, err, store.ErrNotFound)
			}
		})
	}
}

func TestGet_RepopulateOnFallback(t *testing.T) {
	h := newHarness()
	h.filter.keys["addr1"] = true
	h.store.data["addr1"] = json.RawMessage(`{"a":1}`)
	c := h.coordinator(WithRepopulate(time.Minute))

	got, err := c.Get(context.Background(), "addr1")
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, got)
	assert.Equal(t, encodeRecord(`{"a":1}`), h.cache.data["addr1"])
	assert.Equal(t, time.Minute, h.cache.ttls["addr1"])

	h.j.calls = nil
	got, err = c.Get(context.Background(), "addr1")
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, got)
	assert.Equal(t, []string{"filter.contains", "cache.get"}, h.j.all())
}

func TestGet_RepopulateFailureIsIgnored(t *testing.T) {
	h := newHarness()
	h.filter.keys["addr1"] = true
	h.store.data["addr1"] = json.RawMessage(`1`)
	h.cache.setErr = errBoom

	got, err := h.coordinator(WithRepopulate(time.Minute)).Get(context.Background(), "addr1")
	require.NoError(t, err)
	assert.Equal(t, "1", got)
}

func TestSet_StepOrder(t *testing.T) {
	h := newHarness()

	key, err := h.coordinator().Set(context.Background(), "addr1", `{"a":1}`, time.Minute)

	require.NoError(t, err)
	assert.Equal(t, "addr1", key)
	assert.Equal(t, []string{"cache.set", "cache.expire", "store.set", "filter.add"}, h.j.all())
}

func TestSet_Scenario(t *testing.T) {
	h := newHarness()
	c := h.coordinator()
	ctx := context.Background()

	key, err := c.Set(ctx, "addr1", `{"a":1}`, 60*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "addr1", key)

	assert.Equal(t, encodeRecord(`{"a":1}`), h.cache.data["addr1"])
	assert.Equal(t, 60*time.Second, h.cache.ttls["addr1"])
	assert.JSONEq(t, `{"a":1}`, string(h.store.data["addr1"]))
	assert.True(t, h.filter.keys["addr1"])

	got, err := c.Get(ctx, "addr1")
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, got)
}

func TestSet_CacheFailureTouchesNothingElse(t *testing.T) {
	h := newHarness()
	h.cache.setErr = errBoom

	_, err := h.coordinator().Set(context.Background(), "addr1", `{"a":1}`, time.Minute)

	require.ErrorIs(t, err, ErrCacheInsertionFailed)
	assert.ErrorIs(t, err, errBoom)
	assert.Empty(t, h.store.data)
	assert.Empty(t, h.filter.keys)
	assert.Equal(t, []string{"cache.set"}, h.j.all())
}

func TestSet_StoreFailureLeavesFilterUntouched(t *testing.T) {
	h := newHarness()
	h.store.setErr = errBoom

	_, err := h.coordinator().Set(context.Background(), "addr1", `{"a":1}`, time.Minute)

	require.ErrorIs(t, err, ErrDBInsertionFailed)
	assert.Empty(t, h.filter.keys)
	assert.NotContains(t, h.j.all(), "filter.add")
	assert.Contains(t, h.cache.data, "addr1", "cache write is not rolled back")
}

func TestSet_MalformedRecord(t *testing.T) {
	for _, record := range []string{"", "{", "not json", `{"a":1}}`} {
		t.Run(fmt.Sprintf("%q", record), func(t *testing.T) {
			h := newHarness()

			_, err := h.coordinator().Set(context.Background(), "addr1", record, time.Minute)

			require.ErrorIs(t, err, ErrDataSerializationFailed)
			assert.Empty(t, h.store.data)
			assert.Empty(t, h.filter.keys)
			assert.Equal(t, []string{"cache.set", "cache.expire"}, h.j.all())
		})
	}
}

func TestSet_FilterFailureAfterCommit(t *testing.T) {
	h := newHarness()
	h.filter.addErr = filter.ErrFull

	_, err := h.coordinator().Set(context.Background(), "addr1", `{"a":1}`, time.Minute)

	require.ErrorIs(t, err, ErrFilterInsertionFailed)
	assert.ErrorIs(t, err, filter.ErrFull)
	assert.Contains(t, h.cache.data, "addr1")
	assert.Contains(t, h.store.data, "addr1")
}

func TestSet_ExpiryFailureIsBestEffort(t *testing.T) {
	h := newHarness()
	h.cache.expireErr = errBoom

	key, err := h.coordinator().Set(context.Background(), "addr1", `{"a":1}`, time.Minute)

	require.NoError(t, err)
	assert.Equal(t, "addr1", key)
	assert.Contains(t, h.store.data, "addr1")
	assert.True(t, h.filter.keys["addr1"])
	assert.NotContains(t, h.cache.ttls, "addr1")
}

func TestSet_Idempotent(t *testing.T) {
	h := newHarness()
	c := h.coordinator()
	ctx := context.Background()

	_, err := c.Set(ctx, "addr1", `{"a":1}`, time.Minute)
	require.NoError(t, err)
	cacheAfterOne := string(h.cache.data["addr1"])
	storeAfterOne := string(h.store.data["addr1"])

	_, err = c.Set(ctx, "addr1", `{"a":1}`, time.Minute)
	require.NoError(t, err)

	assert.Equal(t, cacheAfterOne, string(h.cache.data["addr1"]))
	assert.Equal(t, storeAfterOne, string(h.store.data["addr1"]))
	assert.Len(t, h.filter.keys, 1)
}

func TestCoordinator_IgnoresCallerCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	mem := cache.NewMemory(nil)
	h := newHarness()
	c := New(h.filter, mem, h.store)

	_, err := c.Set(ctx, "addr1", `{"a":1}`, time.Minute)
	require.NoError(t, err)

	got, err := c.Get(ctx, "addr1")
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, got)
}

func TestCoordinator_RecordsSpans(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	h := newHarness()
	c := h.coordinator(WithTracerProvider(tp))
	_, err := c.Set(context.Background(), "addr1", `{"a":1}`, time.Minute)
	require.NoError(t, err)
	_, err = c.Get(context.Background(), "unknown")
	require.Error(t, err)

	spans := sr.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, "coordinator.Set", spans[0].Name())
	assert.Contains(t, spanAttrs(spans[0]), "addrkv.stage=filter_updated")
	assert.Equal(t, "coordinator.Get", spans[1].Name())
	assert.Contains(t, spanAttrs(spans[1]), "addrkv.code=CuckooFilterLookupFailed")
}

func spanAttrs(s sdktrace.ReadOnlySpan) []string {
	var out []string
	for _, kv := range s.Attributes() {
		out = append(out, string(kv.Key)+"="+kv.Value.Emit())
	}
	return out
}

func TestCoordinator_ConcurrentRealEngines(t *testing.T) {
	ctx := context.Background()
	st, err := store.OpenBolt(filepath.Join(t.TempDir(), "store.bbolt"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	c := New(filter.NewCuckoo(1000), cache.NewMemory(nil), st)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := fmt.Sprintf("addr-%d", i)
			record := fmt.Sprintf(`{"n":%d}`, i)
			_, err := c.Set(ctx, key, record, time.Minute)
			assert.NoError(t, err)
			got, err := c.Get(ctx, key)
			assert.NoError(t, err)
			assert.Equal(t, record, got)
		}(i)
	}
	wg.Wait()
}

func TestError_Message(t *testing.T) {
	err := &Error{Code: CodeDBInsertionFailed, Op: opStoreSet, Key: "k", Err: errBoom}
	assert.Equal(t, `DBInsertionFailed: store set "k": boom`, err.Error())
	assert.Equal(t, "Database insertion failed", CodeDBInsertionFailed.Message())
	assert.NotErrorIs(t, err, ErrCacheInsertionFailed)

	_, ok := CodeOf(errBoom)
	assert.False(t, ok)
}
