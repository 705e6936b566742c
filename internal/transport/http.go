package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/chainwatch-io/chainwatch/internal/models"
)

const (
	defaultConnectTimeout = 20 * time.Second
	defaultRequestTimeout = 30 * time.Second

	// maxIdleConnsPerHost caps pooled connections per endpoint host.
	maxIdleConnsPerHost = 32
	idleConnTimeout     = 90 * time.Second
)

// jsonRPCRequest is the standard JSON-RPC 2.0 envelope.
type jsonRPCRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

// jsonRPCResponse is the envelope we decode responses into. Result is
// returned upstream untouched.
type jsonRPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *RPCError       `json:"error"`
}

// HTTPTransport is the HTTP JSON-RPC carrier. Requests go to the endpoint
// manager's active URL with retry-then-rotate semantics: transient failures
// are retried under the policy; once retries are exhausted with a
// rotation-worthy outcome, the manager rotates to a fallback and the request
// is retried there, once per fallback.
type HTTPTransport struct {
	manager *EndpointManager

	mu     sync.RWMutex
	client *http.Client
	policy RetryPolicy

	// testMethod is the minimal JSON-RPC call used as liveness probe, e.g.
	// net_version for EVM or getLatestLedger for Stellar.
	testMethod string
	logger     *zap.Logger
}

// NewHTTPTransport probes the network's URLs of the given kind in weight
// order and builds a carrier around the first live one. The remaining URLs
// become fallbacks. Fails when no URL answers the probe.
func NewHTTPTransport(ctx context.Context, network *models.Network, urlType, testMethod string, logger *zap.Logger) (*HTTPTransport, error) {
	urls := orderedURLs(network, urlType)
	if len(urls) == 0 {
		return nil, fmt.Errorf("%w: network %q has no usable %q urls", ErrNetwork, network.Slug, urlType)
	}

	t := &HTTPTransport{
		client:     newHTTPClient(),
		policy:     DefaultRetryPolicy(),
		testMethod: testMethod,
		logger:     logger.Named("http"),
	}

	activeIdx := -1
	for i, u := range urls {
		if err := t.TryConnect(ctx, u); err != nil {
			t.logger.Warn("rpc url failed liveness probe",
				zap.String("network", network.Slug),
				zap.String("url", u),
				zap.Error(err),
			)
			continue
		}
		activeIdx = i
		break
	}
	if activeIdx < 0 {
		return nil, fmt.Errorf("%w: no reachable %q url for network %q", ErrNetwork, urlType, network.Slug)
	}

	active, fallbacks := splitActive(urls, activeIdx)
	t.manager = NewEndpointManager(active, fallbacks, logger)
	return t, nil
}

func newHTTPClient() *http.Client {
	return &http.Client{
		Timeout: defaultRequestTimeout,
		Transport: &http.Transport{
			DialContext:         (&net.Dialer{Timeout: defaultConnectTimeout}).DialContext,
			MaxIdleConnsPerHost: maxIdleConnsPerHost,
			IdleConnTimeout:     idleConnTimeout,
		},
	}
}

// CurrentURL implements Transport.
func (t *HTTPTransport) CurrentURL() string { return t.manager.ActiveURL() }

// Manager exposes the endpoint manager, mainly for tests and metrics.
func (t *HTTPTransport) Manager() *EndpointManager { return t.manager }

// SetRetryPolicy implements Transport.
func (t *HTTPTransport) SetRetryPolicy(policy RetryPolicy) error {
	t.mu.Lock()
	t.policy = policy
	t.mu.Unlock()
	return nil
}

// UpdateEndpointManagerClient swaps the HTTP client used for all subsequent
// requests.
func (t *HTTPTransport) UpdateEndpointManagerClient(client *http.Client) {
	t.mu.Lock()
	t.client = client
	t.mu.Unlock()
}

// TryConnect implements RotatingTransport: POST the liveness probe to url
// and require a 2xx.
func (t *HTTPTransport) TryConnect(ctx context.Context, url string) error {
	body, err := json.Marshal(jsonRPCRequest{JSONRPC: "2.0", ID: 1, Method: t.testMethod})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRequestSerialization, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	req.Header.Set("Content-Type", "application/json")

	t.mu.RLock()
	client := t.client
	t.mu.RUnlock()

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body) //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &HTTPError{Status: resp.StatusCode, URL: url, Body: resp.Status}
	}
	return nil
}

// UpdateClient implements RotatingTransport. The pooled HTTP client is
// host-agnostic, so only the manager's active URL matters; nothing to swap
// here.
func (t *HTTPTransport) UpdateClient(string) {}

// SendRawRequest implements Transport. The request loop is bounded by
// fallback exhaustion: each pass retries under the policy, then rotates if
// the outcome justifies it.
func (t *HTTPTransport) SendRawRequest(ctx context.Context, method string, params any) (json.RawMessage, error) {
	t.mu.RLock()
	policy := t.policy
	t.mu.RUnlock()

	// One initial pass plus at most one pass per configured fallback.
	attempts := len(t.manager.FallbackURLs()) + 1

	var lastErr error
	for i := 0; i < attempts; i++ {
		url := t.manager.ActiveURL()

		payload, err := json.Marshal(jsonRPCRequest{
			JSONRPC: "2.0",
			ID:      t.manager.NextID(),
			Method:  method,
			Params:  params,
		})
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrRequestSerialization, err)
		}

		result, err := t.sendWithRetries(ctx, url, payload, policy)
		if err == nil {
			return result, nil
		}
		lastErr = err

		status, networkErr := classify(err)
		if !t.manager.ShouldAttemptRotation(status, networkErr) {
			return nil, err
		}
		if rerr := t.manager.RotateURL(ctx, t); rerr != nil {
			return nil, fmt.Errorf("request to %s failed (%v); %w", url, err, rerr)
		}
	}
	return nil, lastErr
}

// sendWithRetries POSTs the payload to url, retrying transient failures
// under the policy. Non-retryable failures are returned immediately.
func (t *HTTPTransport) sendWithRetries(ctx context.Context, url string, payload []byte, policy RetryPolicy) (json.RawMessage, error) {
	var result json.RawMessage

	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
		if err != nil {
			return backoff.Permanent(fmt.Errorf("%w: %v", ErrNetwork, err))
		}
		req.Header.Set("Content-Type", "application/json")

		t.mu.RLock()
		client := t.client
		t.mu.RUnlock()

		resp, err := client.Do(req)
		if err != nil {
			// Network-layer failure: retryable.
			return fmt.Errorf("%w: %v", ErrNetwork, err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("%w: reading body: %v", ErrNetwork, err)
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			httpErr := &HTTPError{Status: resp.StatusCode, URL: url, Body: string(body)}
			if RotateOnStatus(resp.StatusCode) {
				return httpErr
			}
			return backoff.Permanent(httpErr)
		}

		var rpcResp jsonRPCResponse
		if err := json.Unmarshal(body, &rpcResp); err != nil {
			return backoff.Permanent(fmt.Errorf("%w: %v", ErrResponseParse, err))
		}
		if rpcResp.Error != nil {
			return backoff.Permanent(rpcResp.Error)
		}
		result = rpcResp.Result
		return nil
	}

	if err := backoff.Retry(op, policy.backOff(ctx)); err != nil {
		t.logger.Error("rpc request failed", zap.String("url", url), zap.Error(err))
		return nil, err
	}
	return result, nil
}

// classify extracts the rotation-relevant facts from an error: the HTTP
// status (0 when not an HTTP error) and whether the failure was
// network-level.
func classify(err error) (status int, networkErr bool) {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Status, false
	}
	return 0, errors.Is(err, ErrNetwork)
}
