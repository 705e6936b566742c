package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/chainwatch-io/chainwatch/internal/models"
)

// WSConfig holds the recognized WebSocket carrier options.
type WSConfig struct {
	// MaxReconnectAttempts bounds the rotate-and-retry loop after a
	// connection failure.
	MaxReconnectAttempts int
	// ConnectionTimeout bounds the websocket handshake.
	ConnectionTimeout time.Duration
	// ReconnectTimeout is the pause between reconnect attempts.
	ReconnectTimeout time.Duration
	// MessageTimeout bounds the wait for a response frame.
	MessageTimeout time.Duration
}

// DefaultWSConfig returns the carrier defaults.
func DefaultWSConfig() WSConfig {
	return WSConfig{
		MaxReconnectAttempts: 3,
		ConnectionTimeout:    10 * time.Second,
		ReconnectTimeout:     2 * time.Second,
		MessageTimeout:       30 * time.Second,
	}
}

// WSTransport is the WebSocket JSON-RPC carrier. One live connection per
// carrier; the connection mutex serializes request/response pairs, so
// concurrent requests on the same socket queue behind each other.
//
// Correlation is by JSON-RPC id: the receive loop reads frames until one
// with the matching id arrives, skipping others. Incoming pings are answered
// with pongs by the underlying library; any activity refreshes
// lastActivity.
type WSTransport struct {
	manager *EndpointManager
	cfg     WSConfig

	mu           sync.Mutex
	conn         *websocket.Conn
	healthy      bool
	lastActivity time.Time

	// pending holds a connection established by TryConnect until
	// UpdateClient promotes it. Guarded by mu via the rotation path.
	pendingMu sync.Mutex
	pending   *websocket.Conn

	logger *zap.Logger
}

// NewWSTransport dials the network's ws_rpc URLs in weight order and builds
// a carrier around the first one that connects within the configured
// timeout.
func NewWSTransport(ctx context.Context, network *models.Network, cfg WSConfig, logger *zap.Logger) (*WSTransport, error) {
	urls := orderedURLs(network, models.URLTypeWSRPC)
	if len(urls) == 0 {
		return nil, fmt.Errorf("%w: network %q has no usable ws_rpc urls", ErrNetwork, network.Slug)
	}

	t := &WSTransport{cfg: cfg, logger: logger.Named("ws")}

	activeIdx := -1
	for i, u := range urls {
		conn, err := t.dial(ctx, u)
		if err != nil {
			t.logger.Warn("websocket url failed to connect",
				zap.String("network", network.Slug),
				zap.String("url", u),
				zap.Error(err),
			)
			continue
		}
		t.installConn(conn)
		activeIdx = i
		break
	}
	if activeIdx < 0 {
		return nil, fmt.Errorf("%w: no reachable ws_rpc url for network %q", ErrNetwork, network.Slug)
	}

	active, fallbacks := splitActive(urls, activeIdx)
	t.manager = NewEndpointManager(active, fallbacks, logger)
	return t, nil
}

func (t *WSTransport) dial(ctx context.Context, url string) (*websocket.Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: t.cfg.ConnectionTimeout}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %v", ErrNetwork, url, err)
	}
	return conn, nil
}

// installConn wires activity tracking onto a fresh connection and marks the
// carrier healthy. Caller must hold mu or be in single-threaded setup.
func (t *WSTransport) installConn(conn *websocket.Conn) {
	conn.SetPingHandler(func(appData string) error {
		t.touch()
		// Answer pings with pongs; write deadline keeps a dead peer from
		// blocking the handler.
		return conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(5*time.Second))
	})
	conn.SetPongHandler(func(string) error {
		t.touch()
		return nil
	})
	t.conn = conn
	t.healthy = true
	t.lastActivity = time.Now()
}

func (t *WSTransport) touch() { t.lastActivity = time.Now() }

// IsConnected reports whether a stream is present and healthy.
func (t *WSTransport) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conn != nil && t.healthy
}

// CurrentURL implements Transport.
func (t *WSTransport) CurrentURL() string { return t.manager.ActiveURL() }

// Manager exposes the endpoint manager, mainly for tests.
func (t *WSTransport) Manager() *EndpointManager { return t.manager }

// SetRetryPolicy implements Transport. Retry policies are an HTTP carrier
// concern.
func (t *WSTransport) SetRetryPolicy(RetryPolicy) error { return ErrNotImplemented }

// TryConnect implements RotatingTransport: dial the candidate and stash the
// connection for UpdateClient to promote.
func (t *WSTransport) TryConnect(ctx context.Context, url string) error {
	conn, err := t.dial(ctx, url)
	if err != nil {
		return err
	}
	t.pendingMu.Lock()
	if t.pending != nil {
		t.pending.Close()
	}
	t.pending = conn
	t.pendingMu.Unlock()
	return nil
}

// UpdateClient implements RotatingTransport: close the old stream and
// promote the connection established by TryConnect.
func (t *WSTransport) UpdateClient(string) {
	t.pendingMu.Lock()
	conn := t.pending
	t.pending = nil
	t.pendingMu.Unlock()
	if conn == nil {
		return
	}

	t.mu.Lock()
	if t.conn != nil {
		t.conn.Close()
	}
	t.installConn(conn)
	t.mu.Unlock()
}

// markUnhealthy drops the stream after an error. Caller must hold mu.
func (t *WSTransport) markUnhealthy() {
	if t.conn != nil {
		t.conn.Close()
		t.conn = nil
	}
	t.healthy = false
}

// SendRawRequest implements Transport. On send or receive failure the
// stream is dropped and, when a fallback exists, the carrier rotates and
// retries the whole send, up to MaxReconnectAttempts.
func (t *WSTransport) SendRawRequest(ctx context.Context, method string, params any) (json.RawMessage, error) {
	var lastErr error
	for attempt := 0; attempt <= t.cfg.MaxReconnectAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("%w: %v", ErrNetwork, ctx.Err())
			case <-time.After(t.cfg.ReconnectTimeout):
			}
			if !t.manager.ShouldAttemptRotation(0, true) {
				return nil, lastErr
			}
			if err := t.manager.RotateURL(ctx, t); err != nil {
				lastErr = err
				continue
			}
		}

		result, err := t.sendOnce(ctx, method, params)
		if err == nil {
			return result, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

// sendOnce performs one request/response exchange on the current stream.
func (t *WSTransport) sendOnce(ctx context.Context, method string, params any) (json.RawMessage, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conn == nil || !t.healthy {
		return nil, fmt.Errorf("%w: websocket not connected", ErrNetwork)
	}

	id := t.manager.NextID()
	req := jsonRPCRequest{JSONRPC: "2.0", ID: id, Method: method, Params: params}
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRequestSerialization, err)
	}

	if err := t.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		t.markUnhealthy()
		return nil, fmt.Errorf("%w: write: %v", ErrNetwork, err)
	}
	t.touch()

	deadline := time.Now().Add(t.cfg.MessageTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := t.conn.SetReadDeadline(deadline); err != nil {
		t.markUnhealthy()
		return nil, fmt.Errorf("%w: set deadline: %v", ErrNetwork, err)
	}

	// Read frames until the response with our id arrives. Frames carrying
	// other ids (late responses from abandoned requests) are skipped.
	for {
		msgType, data, err := t.conn.ReadMessage()
		if err != nil {
			t.markUnhealthy()
			return nil, fmt.Errorf("%w: read: %v", ErrNetwork, err)
		}
		t.touch()

		if msgType != websocket.TextMessage && msgType != websocket.BinaryMessage {
			t.markUnhealthy()
			return nil, fmt.Errorf("%w: unexpected frame type %d", ErrNetwork, msgType)
		}

		var resp jsonRPCResponse
		if err := json.Unmarshal(data, &resp); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrResponseParse, err)
		}
		if resp.ID != id {
			t.logger.Debug("skipping frame with unexpected id",
				zap.Uint64("want", id),
				zap.Uint64("got", resp.ID),
			)
			continue
		}
		if resp.Error != nil {
			return nil, resp.Error
		}
		return resp.Result, nil
	}
}
