package metrics

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.IncRecipient("sent")
	m.IncMessage()
	m.SetRunning(true)
	m.SetChannelState("connected", []string{"connected"})
}

func TestCountersAndHandler(t *testing.T) {
	m := New()
	m.IncRecipient("sent")
	m.IncRecipient("sent")
	m.IncRecipient("unreachable")
	m.SetRunning(true)
	m.SetChannelState("connected", []string{"disconnected", "connected"})

	assert.Equal(t, 2.0, testutil.ToFloat64(m.RecipientsTotal.WithLabelValues("sent")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CampaignRunning))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.ChannelState.WithLabelValues("disconnected")))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `wablast_recipients_total{outcome="unreachable"} 1`)
}
