package cache

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"time"
)

const (
	dialTimeout = 500 * time.Millisecond
	// ioTimeout bounds a round trip when ctx carries no deadline.
	ioTimeout = 5 * time.Second
)

// Client implements KV over a Unix socket served by Serve.
type Client struct {
	socketPath string
}

func NewClient(socketPath string) *Client {
	return &Client{socketPath: socketPath}
}

// Ping dials the daemon and closes the connection immediately.
func (c *Client) Ping(ctx context.Context) error {
	return c.withConn(ctx, func(net.Conn) error { return nil })
}

func (c *Client) withConn(ctx context.Context, fn func(conn net.Conn) error) error {
	d := net.Dialer{Timeout: dialTimeout}
	conn, err := d.DialContext(ctx, "unix", c.socketPath)
	if err != nil {
		return err
	}
	defer conn.Close()
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(ioTimeout)
	}
	_ = conn.SetDeadline(deadline)
	return fn(conn)
}

func (c *Client) roundTrip(ctx context.Context, req Request) (Response, error) {
	var resp Response
	err := c.withConn(ctx, func(conn net.Conn) error {
		if err := json.NewEncoder(conn).Encode(&req); err != nil {
			return err
		}
		if err := json.NewDecoder(conn).Decode(&resp); err != nil {
			return err
		}
		if !resp.OK {
			return wireError(resp.Error)
		}
		return nil
	})
	return resp, err
}

func (c *Client) Get(ctx context.Context, key string) ([]byte, error) {
	resp, err := c.roundTrip(ctx, Request{Op: OpGet, Key: key})
	if err != nil {
		return nil, err
	}
	if len(resp.Value) == 0 {
		return nil, nil
	}
	return resp.Value, nil
}

func (c *Client) Set(ctx context.Context, key string, value []byte) error {
	_, err := c.roundTrip(ctx, Request{Op: OpSet, Key: key, Value: value})
	return err
}

func (c *Client) Expire(ctx context.Context, key string, ttl time.Duration) error {
	_, err := c.roundTrip(ctx, Request{Op: OpExpire, Key: key, TTLMilli: ttlMillis(ttl)})
	return err
}

// ttlMillis rounds a positive ttl up to whole milliseconds so it never
// reaches the wire as 0, which means no expiry.
func ttlMillis(ttl time.Duration) int64 {
	if ttl <= 0 {
		return 0
	}
	return int64((ttl + time.Millisecond - 1) / time.Millisecond)
}

// wireError restores sentinel errors so callers can use errors.Is across the socket.
func wireError(msg string) error {
	switch msg {
	case ErrNotFound.Error():
		return ErrNotFound
	case ErrExpired.Error():
		return ErrExpired
	default:
		return errors.New(msg)
	}
}
