package metrics

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsAreNoOps(t *testing.T) {
	var m *Metrics
	m.BlockProcessed("eth")
	m.MatchesFound("eth", 3)
	m.TriggerError("slack")
	m.MissedBlock("eth")
	m.LastProcessedBlock("eth", 100)
	m.ObserveTick("eth", time.Second)
}

func TestHandlerExposesCollectors(t *testing.T) {
	m := New()
	m.BlockProcessed("eth")
	m.MatchesFound("eth", 2)
	m.MissedBlock("eth")
	m.LastProcessedBlock("eth", 123)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	require.Equal(t, 200, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `chainwatch_blocks_processed_total{network="eth"} 1`)
	assert.Contains(t, body, `chainwatch_matches_total{network="eth"} 2`)
	assert.Contains(t, body, `chainwatch_missed_blocks_total{network="eth"} 1`)
	assert.Contains(t, body, `chainwatch_last_processed_block{network="eth"} 123`)
}

func TestMatchesFoundSkipsZero(t *testing.T) {
	m := New()
	m.MatchesFound("eth", 0)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.NotContains(t, rec.Body.String(), `chainwatch_matches_total{network="eth"}`)
}
