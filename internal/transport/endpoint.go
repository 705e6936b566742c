package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// Transport is the contract both carriers implement. SendRawRequest issues
// one JSON-RPC call and returns the raw result field.
type Transport interface {
	// CurrentURL returns the endpoint currently used for requests.
	CurrentURL() string
	// SendRawRequest formats a JSON-RPC 2.0 envelope and returns the raw
	// result. params may be nil.
	SendRawRequest(ctx context.Context, method string, params any) (json.RawMessage, error)
	// SetRetryPolicy replaces the retry policy. The WebSocket carrier
	// returns ErrNotImplemented.
	SetRetryPolicy(policy RetryPolicy) error
}

// RotatingTransport is implemented by carriers that support URL rotation.
// TryConnect verifies the candidate URL is reachable; UpdateClient swaps the
// underlying connection so subsequent requests target it.
type RotatingTransport interface {
	TryConnect(ctx context.Context, url string) error
	UpdateClient(url string)
}

// EndpointManager owns the active/fallback URL state for one carrier and
// serializes rotation. URL reads see either the pre- or post-rotation value
// atomically; two rotations never interleave.
type EndpointManager struct {
	mu        sync.RWMutex
	activeURL string
	fallbacks []string

	// rotationMu is held for the whole connect-verify-swap sequence so a
	// concurrent caller cannot start a second rotation mid-swap.
	rotationMu sync.Mutex

	reqID  atomic.Uint64
	logger *zap.Logger
}

// NewEndpointManager creates a manager with the given active URL and
// fallback list. Fallback entries equal to the active URL are kept and
// skipped at rotation time.
func NewEndpointManager(active string, fallbacks []string, logger *zap.Logger) *EndpointManager {
	return &EndpointManager{
		activeURL: active,
		fallbacks: append([]string(nil), fallbacks...),
		logger:    logger.Named("endpoints"),
	}
}

// ActiveURL returns the endpoint currently used for requests.
func (m *EndpointManager) ActiveURL() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.activeURL
}

// FallbackURLs returns a copy of the current fallback list.
func (m *EndpointManager) FallbackURLs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.fallbacks...)
}

// NextID returns the next monotonically increasing JSON-RPC request id.
func (m *EndpointManager) NextID() uint64 {
	return m.reqID.Add(1)
}

// ShouldAttemptRotation reports whether a rotation is worth attempting:
// at least one fallback exists, and the failure was either network-level or
// an HTTP status in the rotate-on set.
func (m *EndpointManager) ShouldAttemptRotation(status int, networkErr bool) bool {
	m.mu.RLock()
	hasFallbacks := len(m.fallbacks) > 0
	m.mu.RUnlock()
	return hasFallbacks && (networkErr || RotateOnStatus(status))
}

// RotateURL swaps the active URL for the first fallback that differs from
// it, after verifying the fallback with transport.TryConnect. The old active
// URL is pushed to the back of the fallback list; a failed candidate is
// pushed back as well, so a full cycle through broken fallbacks terminates.
func (m *EndpointManager) RotateURL(ctx context.Context, transport RotatingTransport) error {
	m.rotationMu.Lock()
	defer m.rotationMu.Unlock()

	m.mu.Lock()
	active := m.activeURL
	idx := -1
	for i, u := range m.fallbacks {
		if u != active {
			idx = i
			break
		}
	}
	if idx < 0 {
		m.mu.Unlock()
		return fmt.Errorf("%w: no fallback URLs available", ErrURLRotation)
	}
	candidate := m.fallbacks[idx]
	m.fallbacks = append(m.fallbacks[:idx], m.fallbacks[idx+1:]...)
	m.mu.Unlock()

	if err := transport.TryConnect(ctx, candidate); err != nil {
		m.mu.Lock()
		m.fallbacks = append(m.fallbacks, candidate)
		m.mu.Unlock()
		return fmt.Errorf("%w: connect to %s failed: %v", ErrURLRotation, candidate, err)
	}

	transport.UpdateClient(candidate)

	m.mu.Lock()
	m.fallbacks = append(m.fallbacks, active)
	m.activeURL = candidate
	m.mu.Unlock()

	m.logger.Info("rotated rpc endpoint",
		zap.String("from", active),
		zap.String("to", candidate),
	)
	return nil
}
