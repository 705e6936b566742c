// Package transport implements the RPC endpoint layer: weighted URL
// selection with liveness probing, an endpoint manager that absorbs
// transient failures into retries and rotates to fallback URLs on
// persistent ones, and HTTP and WebSocket carriers speaking JSON-RPC 2.0.
package transport

import (
	"errors"
	"fmt"
)

// Sentinel errors for the transport layer. Callers compare with errors.Is;
// HTTP status details travel in HTTPError which unwraps to ErrHTTP.
var (
	// ErrHTTP is returned when the remote endpoint answered with an error
	// status. The wrapping HTTPError carries status, URL, and body.
	ErrHTTP = errors.New("transport: http error")

	// ErrNetwork covers connect failures, timeouts, and broken frames.
	ErrNetwork = errors.New("transport: network error")

	// ErrURLRotation is returned when no fallback URL is available or the
	// fallback failed its connect probe.
	ErrURLRotation = errors.New("transport: url rotation failed")

	// ErrRequestSerialization is returned when the JSON-RPC request cannot
	// be encoded. Never retried.
	ErrRequestSerialization = errors.New("transport: request serialization failed")

	// ErrResponseParse is returned when the response body is not valid
	// JSON-RPC. Never retried.
	ErrResponseParse = errors.New("transport: response parse failed")

	// ErrNotImplemented is returned by carriers for operations they do not
	// support (e.g. retry policies on the WebSocket carrier).
	ErrNotImplemented = errors.New("transport: not implemented")
)

// HTTPError is the detailed form of ErrHTTP: the endpoint answered with a
// non-success status code.
type HTTPError struct {
	Status int
	URL    string
	Body   string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("transport: http error: status %d from %s: %s", e.Status, e.URL, e.Body)
}

// Unwrap lets errors.Is(err, ErrHTTP) succeed on an *HTTPError.
func (e *HTTPError) Unwrap() error { return ErrHTTP }

// RPCError is a JSON-RPC error object returned in an otherwise successful
// HTTP response.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("transport: rpc error %d: %s", e.Code, e.Message)
}
