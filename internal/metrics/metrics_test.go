package metrics

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	m := New()

	m.ScanCompleted(0.002)
	m.ScanCompleted(0.004)
	m.ScanStale()
	m.Trigger("mutation", "noop")
	m.LockRetained()
	m.Episode("fire")
	m.Episode("locked")
	m.Action(true)
	m.Action(false)
	m.FlushFailed()
	m.Reset()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.scans.WithLabelValues("complete")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.scans.WithLabelValues("stale")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.lockRetentions))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.fires.WithLabelValues("locked")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.actions.WithLabelValues("fail")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.flushFailures))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.resets))
}

func TestNilMetricsAreNoops(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ScanCompleted(1)
		m.ScanStale()
		m.ScanFailed()
		m.Trigger("scroll", "run-now")
		m.LockRetained()
		m.Episode("fire")
		m.Action(true)
		m.FlushFailed()
		m.Reset()
	})
	assert.Nil(t, m.Registry())
}

func TestHandler(t *testing.T) {
	m := New()
	m.LockRetained()

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "sniper_lock_retentions_total 1")
}
