package cache

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"sync"
	"time"
)

// Serve accepts connections on l and answers Requests against kv until ctx is
// done or l is closed. Each connection is handled on its own goroutine.
func Serve(ctx context.Context, l net.Listener, kv KV) error {
	var wg sync.WaitGroup
	stop := context.AfterFunc(ctx, func() { _ = l.Close() })
	defer stop()
	defer wg.Wait()

	for {
		conn, err := l.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			handleConn(ctx, conn, kv)
		}()
	}
}

func handleConn(ctx context.Context, conn net.Conn, kv KV) {
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	dec := json.NewDecoder(conn)
	enc := json.NewEncoder(conn)
	for {
		var req Request
		if err := dec.Decode(&req); err != nil {
			return
		}
		_ = enc.Encode(dispatch(ctx, kv, req))
	}
}

func dispatch(ctx context.Context, kv KV, req Request) Response {
	switch req.Op {
	case OpGet:
		v, err := kv.Get(ctx, req.Key)
		if err != nil {
			return Response{OK: false, Error: err.Error()}
		}
		return Response{OK: true, Value: v}
	case OpSet:
		if err := kv.Set(ctx, req.Key, req.Value); err != nil {
			return Response{OK: false, Error: err.Error()}
		}
		return Response{OK: true}
	case OpExpire:
		ttl := time.Duration(req.TTLMilli) * time.Millisecond
		if err := kv.Expire(ctx, req.Key, ttl); err != nil {
			return Response{OK: false, Error: err.Error()}
		}
		return Response{OK: true}
	default:
		return Response{OK: false, Error: "unknown op"}
	}
}
