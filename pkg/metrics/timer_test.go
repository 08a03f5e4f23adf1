package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestTimer_DurationAdvancesAsTimePasses(t *testing.T) {
	timer := NewTimer()

	first := timer.Duration()
	time.Sleep(10 * time.Millisecond)
	second := timer.Duration()

	if second <= first {
		t.Errorf("Duration() did not advance: first=%v, second=%v", first, second)
	}
	if first < 0 {
		t.Errorf("Duration() = %v before any sleep, want >= 0", first)
	}
}

// TestTimer_ObserveDurationDoesNotPanicOnPlainHistogram exercises the
// reconciler's per-audit pattern (metrics.NewTimer then ObserveDuration)
// against an unlabeled histogram.
func TestTimer_ObserveDurationDoesNotPanicOnPlainHistogram(t *testing.T) {
	histogram := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name: "arbiter_test_duration_seconds",
		Help: "test-only histogram",
	})

	timer := NewTimer()
	time.Sleep(5 * time.Millisecond)
	timer.ObserveDuration(histogram)
}

// TestTimer_ObserveDurationVecAcceptsZoneLabel exercises runRecompute's
// pattern of timing one zone's arbitration cycle against a vec keyed by
// zone id.
func TestTimer_ObserveDurationVecAcceptsZoneLabel(t *testing.T) {
	vec := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name: "arbiter_test_cycle_seconds",
		Help: "test-only histogram vec",
	}, []string{"zone_id"})

	timer := NewTimer()
	time.Sleep(5 * time.Millisecond)
	timer.ObserveDurationVec(vec, "3")
	timer.ObserveDurationVec(vec, "4")
}

func TestTimer_EarlierTimerReportsLongerDuration(t *testing.T) {
	older := NewTimer()
	time.Sleep(10 * time.Millisecond)
	newer := NewTimer()
	time.Sleep(10 * time.Millisecond)

	if older.Duration() <= newer.Duration() {
		t.Errorf("older timer should report a longer duration: older=%v, newer=%v", older.Duration(), newer.Duration())
	}
}
