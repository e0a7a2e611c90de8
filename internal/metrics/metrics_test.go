package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRegistersCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.SecurityEvents.WithLabelValues("user_login", "success").Inc()
	m.AuditWriteFailures.Inc()
	m.RateLimited.WithLabelValues("login").Add(2)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.SecurityEvents.WithLabelValues("user_login", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AuditWriteFailures))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.RateLimited.WithLabelValues("login")))

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.Len(t, families, 3)
}
