// Package api exposes the coordinator over HTTP: GET /get_data reads the
// address from the "address" header, POST /set_data takes a JSON body.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/leonardcser/addrkv/internal/logger"
)

const (
	RouteGetData = "get_data"
	RouteSetData = "set_data"

	// AddressHeader carries the key for get_data.
	AddressHeader = "address"
)

// maxTTLSeconds is the largest ttl that fits in a time.Duration.
const maxTTLSeconds = math.MaxInt64 / int64(time.Second)

// Service is the coordinator surface the handlers call.
type Service interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, record string, ttl time.Duration) (string, error)
}

// SetRequest is the set_data body. Data is usually a JSON string holding the
// serialized record; any other JSON value is taken verbatim as the record.
// TTL is in seconds; when omitted the handler's default applies.
type SetRequest struct {
	Address string          `json:"address"`
	Data    json.RawMessage `json:"data"`
	TTL     *int64          `json:"ttl,omitempty"`
}

func (r SetRequest) record() string {
	var s string
	if err := json.Unmarshal(r.Data, &s); err == nil {
		return s
	}
	return string(r.Data)
}

// Handler serves the data routes.
type Handler struct {
	svc        Service
	defaultTTL time.Duration
	bodyLimit  int64
}

func NewHandler(svc Service, defaultTTL time.Duration, bodyLimit int64) *Handler {
	return &Handler{svc: svc, defaultTTL: defaultTTL, bodyLimit: bodyLimit}
}

// Routes returns the mux with all routes, wrapped in recovery and access logging.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /"+RouteGetData, h.getData)
	mux.HandleFunc("POST /"+RouteSetData, h.setData)
	return accessLog(recoverer(mux))
}

func (h *Handler) getData(w http.ResponseWriter, r *http.Request) {
	address := r.Header.Get(AddressHeader)
	record, err := h.svc.Get(r.Context(), address)
	if err != nil {
		writeError(w, RouteGetData, err)
		return
	}
	writeOK(w, RouteGetData, "Data retrieved successfully", record)
}

func (h *Handler) setData(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.bodyLimit)
	var req SetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeFailure(w, RouteSetData, http.StatusRequestEntityTooLarge, codeBodyTooLarge,
				fmt.Sprintf("Request body exceeds %d bytes", tooLarge.Limit))
			return
		}
		writeFailure(w, RouteSetData, http.StatusBadRequest, codeInvalidRequest, "Invalid request body")
		return
	}
	if len(req.Data) == 0 {
		writeFailure(w, RouteSetData, http.StatusBadRequest, codeInvalidRequest, "Missing data")
		return
	}
	ttl := h.defaultTTL
	if req.TTL != nil {
		if *req.TTL < 0 || *req.TTL > maxTTLSeconds {
			writeFailure(w, RouteSetData, http.StatusBadRequest, codeInvalidRequest,
				fmt.Sprintf("ttl must be between 0 and %d seconds", maxTTLSeconds))
			return
		}
		ttl = time.Duration(*req.TTL) * time.Second
	}

	key, err := h.svc.Set(r.Context(), req.Address, req.record(), ttl)
	if err != nil {
		writeError(w, RouteSetData, err)
		return
	}
	writeOK(w, RouteSetData, "Data set successfully", key)
}

func recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				logger.Errorf("panic serving %s %s: %v\n%s", r.Method, r.URL.Path, rec, debug.Stack())
				writeFailure(w, strings.TrimPrefix(r.URL.Path, "/"), http.StatusInternalServerError, codeInternal, "Internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		logger.Infof("%s %s %d %s", r.Method, r.URL.Path, rec.status, time.Since(start))
	})
}
