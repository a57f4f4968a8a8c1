package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserve(t *testing.T) {
	m := New()
	m.ObserveIngest("ok", 12)
	m.ObserveIngest("ok", 3)
	m.ObserveIngest("feed_failure", 0)
	m.ObserveRebalance("rebalanced")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.IngestRuns.WithLabelValues("ok")))
	assert.Equal(t, 15.0, testutil.ToFloat64(m.RowsInserted))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RebalanceRuns.WithLabelValues("rebalanced")))
}

func TestSetAllocationReplacesWeights(t *testing.T) {
	m := New()
	day := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	m.SetAllocation(day, map[string]float64{"A": 0.4, "B": 0.6})
	m.SetAllocation(day, map[string]float64{"A": 1})

	assert.Equal(t, 1, testutil.CollectAndCount(m.AllocationWeight))
	assert.Equal(t, float64(day.Unix()), testutil.ToFloat64(m.LastAllocation))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveIngest("ok", 1)
	m.ObserveRebalance("fresh")
	m.SetAllocation(time.Now(), nil)
	m.ObserveDuration(time.Second)
}

func TestHandler(t *testing.T) {
	m := New()
	m.ObserveRebalance("skipped")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), `hrp_rebalance_runs_total{status="skipped"} 1`))
}
