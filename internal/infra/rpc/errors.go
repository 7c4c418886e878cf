// Package rpc implements the upstream endpoint layer: a JSON-RPC HTTP
// client, per-endpoint health tracking with cooldown, and a ranked
// failover pool shared by one source's pipeline.
package rpc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// ErrSourceUnavailable is returned when a source has no healthy endpoint
// left to serve a request.
var ErrSourceUnavailable = errors.New("source unavailable: no healthy endpoint")

// Category is the typed classification of an upstream error. The pool and
// the adapter act on categories only; no substring checks outside this file.
type Category int

const (
	// CategoryTransient: network/5xx/timeouts. Retried, counts against
	// endpoint health.
	CategoryTransient Category = iota
	// CategoryRangeLimit: the provider rejected a log query for covering
	// too many blocks. The request must be split, the endpoint is fine.
	CategoryRangeLimit
	// CategoryMalformed: the payload could not be decoded against the
	// event schema. Logged and skipped, never fatal.
	CategoryMalformed
	// CategoryUnavailable: no endpoint can serve requests at all.
	CategoryUnavailable
	// CategoryFatal: the request itself is invalid (bad method/params).
	// Retrying cannot help.
	CategoryFatal
)

func (c Category) String() string {
	switch c {
	case CategoryTransient:
		return "transient"
	case CategoryRangeLimit:
		return "range_limit"
	case CategoryMalformed:
		return "malformed"
	case CategoryUnavailable:
		return "unavailable"
	case CategoryFatal:
		return "fatal"
	}
	return "unknown"
}

// RPCError is a JSON-RPC error object returned by an endpoint.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// MalformedError marks a payload that does not match the configured
// event schema.
type MalformedError struct {
	Reason string
}

func (e *MalformedError) Error() string {
	return "malformed event: " + e.Reason
}

// rangeLimitSignatures are the known provider messages for "block range
// too wide". Providers do not agree on an error code for this, so the
// mapping is centralized here and covered by unit tests.
var rangeLimitSignatures = []string{
	"block range",
	"query returned more than",
	"too many results",
	"exceed maximum block range",
	"range limit",
	"max is",
}

// Classify maps an error to its typed category.
func Classify(err error) Category {
	if err == nil {
		return CategoryTransient
	}

	if errors.Is(err, ErrSourceUnavailable) {
		return CategoryUnavailable
	}

	var malformed *MalformedError
	if errors.As(err, &malformed) {
		return CategoryMalformed
	}

	var rpcErr *RPCError
	if errors.As(err, &rpcErr) {
		return classifyRPC(rpcErr)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return CategoryTransient
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return CategoryTransient
	}

	// HTTP-level throttling surfaces as a plain error from the client.
	s := strings.ToLower(err.Error())
	for _, sig := range rangeLimitSignatures {
		if strings.Contains(s, sig) {
			return CategoryRangeLimit
		}
	}

	return CategoryTransient
}

func classifyRPC(e *RPCError) Category {
	switch e.Code {
	case -32700, -32600, -32601, -32602:
		// Parse error, invalid request, method not found, invalid params.
		return CategoryFatal
	case -32005:
		// Conventionally "limit exceeded"; some providers use it for
		// range limits, others for rate limits. The message decides.
		msg := strings.ToLower(e.Message)
		for _, sig := range rangeLimitSignatures {
			if strings.Contains(msg, sig) {
				return CategoryRangeLimit
			}
		}
		return CategoryTransient
	}

	msg := strings.ToLower(e.Message)
	for _, sig := range rangeLimitSignatures {
		if strings.Contains(msg, sig) {
			return CategoryRangeLimit
		}
	}
	return CategoryTransient
}
