package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/chainwatch-io/chainwatch/internal/models"
)

func fastPolicy() RetryPolicy {
	return RetryPolicy{
		InitialInterval:     time.Millisecond,
		MaxInterval:         5 * time.Millisecond,
		Multiplier:          2,
		MaxRetries:          2,
		RandomizationFactor: 0,
	}
}

func rpcOK(result string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":` + result + `}`)) //nolint:errcheck
	}
}

func testNetwork(urls ...string) *models.Network {
	n := &models.Network{Slug: "testnet", Type: models.NetworkEVM}
	for i, u := range urls {
		n.RPCURLs = append(n.RPCURLs, models.RPCURL{URL: u, Type: models.URLTypeRPC, Weight: 100 - i})
	}
	return n
}

func TestSendRawRequestSuccess(t *testing.T) {
	srv := httptest.NewServer(rpcOK(`"0x10"`))
	defer srv.Close()

	tr, err := NewHTTPTransport(context.Background(), testNetwork(srv.URL), models.URLTypeRPC, "net_version", zap.NewNop())
	require.NoError(t, err)

	res, err := tr.SendRawRequest(context.Background(), "eth_blockNumber", nil)
	require.NoError(t, err)

	var s string
	require.NoError(t, json.Unmarshal(res, &s))
	assert.Equal(t, "0x10", s)
}

func TestSendRawRequestRotatesOn429(t *testing.T) {
	// Primary answers the liveness probe, then rate-limits everything.
	var primaryCalls atomic.Int64
	primary := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if primaryCalls.Add(1) == 1 {
			rpcOK(`"1"`)(w, r)
			return
		}
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer primary.Close()

	fallback := httptest.NewServer(rpcOK(`"0x2a"`))
	defer fallback.Close()

	tr, err := NewHTTPTransport(context.Background(), testNetwork(primary.URL, fallback.URL), models.URLTypeRPC, "net_version", zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, tr.SetRetryPolicy(fastPolicy()))
	require.Equal(t, primary.URL, tr.CurrentURL())

	res, err := tr.SendRawRequest(context.Background(), "eth_blockNumber", nil)
	require.NoError(t, err)

	var s string
	require.NoError(t, json.Unmarshal(res, &s))
	assert.Equal(t, "0x2a", s)

	// Active URL is now the fallback; the old active was pushed back.
	assert.Equal(t, fallback.URL, tr.CurrentURL())
	assert.Contains(t, tr.Manager().FallbackURLs(), primary.URL)

	// Retries were exhausted before rotation: probe + initial + 2 retries.
	assert.Equal(t, int64(4), primaryCalls.Load())
}

func TestSendRawRequestNonRetryable4xx(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			rpcOK(`"1"`)(w, r)
			return
		}
		http.Error(w, "bad request", http.StatusBadRequest)
	}))
	defer srv.Close()

	tr, err := NewHTTPTransport(context.Background(), testNetwork(srv.URL), models.URLTypeRPC, "net_version", zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, tr.SetRetryPolicy(fastPolicy()))

	_, err = tr.SendRawRequest(context.Background(), "eth_blockNumber", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrHTTP)

	var httpErr *HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusBadRequest, httpErr.Status)

	// 400 is not retried: probe + single attempt.
	assert.Equal(t, int64(2), calls.Load())
}

func TestSendRawRequestRPCError(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			rpcOK(`"1"`)(w, r)
			return
		}
		w.Write([]byte(`{"jsonrpc":"2.0","id":2,"error":{"code":-32601,"message":"method not found"}}`)) //nolint:errcheck
	}))
	defer srv.Close()

	tr, err := NewHTTPTransport(context.Background(), testNetwork(srv.URL), models.URLTypeRPC, "net_version", zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, tr.SetRetryPolicy(fastPolicy()))

	_, err = tr.SendRawRequest(context.Background(), "eth_doesNotExist", nil)
	require.Error(t, err)

	var rpcErr *RPCError
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, -32601, rpcErr.Code)
}

func TestConstructionSkipsDeadURLs(t *testing.T) {
	live := httptest.NewServer(rpcOK(`"1"`))
	defer live.Close()

	dead := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer dead.Close()

	// Dead URL has the higher weight but fails its probe.
	tr, err := NewHTTPTransport(context.Background(), testNetwork(dead.URL, live.URL), models.URLTypeRPC, "net_version", zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, live.URL, tr.CurrentURL())
}

func TestConstructionFailsWhenNoURLLive(t *testing.T) {
	dead := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer dead.Close()

	_, err := NewHTTPTransport(context.Background(), testNetwork(dead.URL), models.URLTypeRPC, "net_version", zap.NewNop())
	assert.ErrorIs(t, err, ErrNetwork)
}

func TestZeroWeightURLsExcluded(t *testing.T) {
	n := &models.Network{
		Slug: "testnet",
		Type: models.NetworkEVM,
		RPCURLs: []models.RPCURL{
			{URL: "http://ignored", Type: models.URLTypeRPC, Weight: 0},
			{URL: "http://wrong-kind", Type: models.URLTypeWSRPC, Weight: 100},
		},
	}
	assert.Empty(t, orderedURLs(n, models.URLTypeRPC))
}
