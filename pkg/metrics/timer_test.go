package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
)

func TestNewTimer(t *testing.T) {
	timer := NewTimer()
	assert.False(t, timer.start.IsZero())
	assert.Less(t, time.Since(timer.start), time.Second)
}

func TestTimerDuration(t *testing.T) {
	timer := NewTimer()
	time.Sleep(20 * time.Millisecond)
	assert.GreaterOrEqual(t, timer.Duration(), 20*time.Millisecond)
}

func TestTimerObserveDuration(t *testing.T) {
	histogram := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "test_duration_seconds",
		Help:    "test",
		Buckets: prometheus.DefBuckets,
	})
	timer := NewTimer()
	time.Sleep(5 * time.Millisecond)
	timer.ObserveDuration(histogram)
	assert.Greater(t, timer.Duration(), time.Duration(0))
}

func TestTimerObserveDurationVec(t *testing.T) {
	vec := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "test_duration_vec_seconds",
			Help:    "test",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"command"},
	)
	timer := NewTimer()
	time.Sleep(5 * time.Millisecond)
	timer.ObserveDurationVec(vec, "get")
	assert.Greater(t, timer.Duration(), time.Duration(0))
}

func TestMultipleTimersIndependent(t *testing.T) {
	t1 := NewTimer()
	time.Sleep(20 * time.Millisecond)
	t2 := NewTimer()
	time.Sleep(20 * time.Millisecond)

	assert.Greater(t, t1.Duration(), t2.Duration())
}
