package coordinator

import (
	"errors"
	"fmt"
)

// Code is the machine-readable failure kind reported to clients.
type Code string

const (
	CodeFilterLookupFailed      Code = "CuckooFilterLookupFailed"
	CodeFilterInsertionFailed   Code = "CuckooFilterInsertionFailed"
	CodeCacheInsertionFailed    Code = "CacheInsertionFailed"
	CodeDBInsertionFailed       Code = "DBInsertionFailed"
	CodeDataSerializationFailed Code = "DataSerializationFailed"
)

// Message returns the human-readable description sent alongside the code.
func (c Code) Message() string {
	switch c {
	case CodeFilterLookupFailed:
		return "Cuckoo filter lookup failed"
	case CodeFilterInsertionFailed:
		return "Cuckoo filter insertion failed"
	case CodeCacheInsertionFailed:
		return "Cache insertion failed"
	case CodeDBInsertionFailed:
		return "Database insertion failed"
	case CodeDataSerializationFailed:
		return "Data serialization failed"
	default:
		return "Unknown error"
	}
}

// Operation names carried by Error.Op.
const (
	opFilterLookup = "filter lookup"
	opFilterAdd    = "filter add"
	opCacheSet     = "cache set"
	opStoreGet     = "store get"
	opStoreSet     = "store set"
	opParse        = "parse record"
)

// Error is the terminal failure of a single Get or Set.
type Error struct {
	Code Code
	Op   string
	Key  string
	Err  error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s %q", e.Code, e.Op, e.Key)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the per-code sentinels below regardless of Op, Key or cause.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Op == "" && t.Key == "" && t.Err == nil && t.Code == e.Code
}

// Sentinels for errors.Is.
var (
	ErrFilterLookupFailed      = &Error{Code: CodeFilterLookupFailed}
	ErrFilterInsertionFailed   = &Error{Code: CodeFilterInsertionFailed}
	ErrCacheInsertionFailed    = &Error{Code: CodeCacheInsertionFailed}
	ErrDBInsertionFailed       = &Error{Code: CodeDBInsertionFailed}
	ErrDataSerializationFailed = &Error{Code: CodeDataSerializationFailed}
)

// CodeOf extracts the Code from err, if it carries one.
func CodeOf(err error) (Code, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Code, true
	}
	return "", false
}
