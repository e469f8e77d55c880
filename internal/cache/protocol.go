package cache

// Simple JSON protocol for the cache daemon over a Unix domain socket.
// Each request gets exactly one response; a connection may carry many.

const (
	OpGet    = "get"
	OpSet    = "set"
	OpExpire = "expire"
)

type Request struct {
	Op       string `json:"op"`
	Key      string `json:"key"`
	Value    []byte `json:"value,omitempty"`
	TTLMilli int64  `json:"ttl_ms,omitempty"`
}

type Response struct {
	OK    bool   `json:"ok"`
	Value []byte `json:"value,omitempty"`
	Error string `json:"error,omitempty"`
}
