package warehouse

import (
	"errors"
	"io"
	"net"
	"strings"
)

// ErrorKind classifies a warehouse failure so callers can decide whether to
// retry (spec.md §4.1).
type ErrorKind string

const (
	KindTransient  ErrorKind = "transient"
	KindSyntax     ErrorKind = "syntax"
	KindConstraint ErrorKind = "constraint"
	KindAuth       ErrorKind = "auth"
)

// WarehouseError wraps a driver error with a classification.
type WarehouseError struct {
	Kind ErrorKind
	Err  error
}

func (e *WarehouseError) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return string(e.Kind) + ": " + e.Err.Error()
}

func (e *WarehouseError) Unwrap() error { return e.Err }

// ErrUnavailable is returned once ensureConnection has exhausted
// maxReconnectAttempts (spec.md §4.1).
var ErrUnavailable = errors.New("warehouse unavailable: exceeded max reconnect attempts")

// classify maps a raw driver error onto a WarehouseError. This is a
// heuristic, string/type based classifier, the same shape the corpus uses
// when it distinguishes transient vs. permanent failures around HTTP
// retries (pkg/clients/retry.go) — here applied to SQL driver errors
// instead of HTTP status codes.
func classify(err error) *WarehouseError {
	if err == nil {
		return nil
	}
	var we *WarehouseError
	if errors.As(err, &we) {
		return we
	}

	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return &WarehouseError{Kind: KindTransient, Err: err}
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "connection refused"),
		strings.Contains(msg, "broken pipe"),
		strings.Contains(msg, "timeout"),
		strings.Contains(msg, "eof"),
		strings.Contains(msg, "connection reset"):
		return &WarehouseError{Kind: KindTransient, Err: err}
	case strings.Contains(msg, "authentication"),
		strings.Contains(msg, "access denied"),
		strings.Contains(msg, "unauthorized"):
		return &WarehouseError{Kind: KindAuth, Err: err}
	case strings.Contains(msg, "syntax error"),
		strings.Contains(msg, "unknown identifier"),
		strings.Contains(msg, "unknown column"):
		return &WarehouseError{Kind: KindSyntax, Err: err}
	case strings.Contains(msg, "duplicate"),
		strings.Contains(msg, "constraint"),
		strings.Contains(msg, "already exists"):
		return &WarehouseError{Kind: KindConstraint, Err: err}
	default:
		return &WarehouseError{Kind: KindTransient, Err: err}
	}
}
