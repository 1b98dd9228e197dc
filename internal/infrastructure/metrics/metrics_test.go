package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestNew_RegistersOnPrivateRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.StreakUpdates.WithLabelValues("continued").Inc()
	m.ObserveHTTP("GET", "/health", 200, 10*time.Millisecond)
	m.ObserveJob("rearm-reminders", nil)
	m.ObserveJob("rearm-reminders", errors.New("down"))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.StreakUpdates.WithLabelValues("continued")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequests.WithLabelValues("GET", "/health", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.JobRuns.WithLabelValues("rearm-reminders", "failure")))

	families, err := reg.Gather()
	assert.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestNop_DoesNotPanicOnDoubleCreation(t *testing.T) {
	assert.NotPanics(t, func() {
		Nop()
		Nop()
	})
}
