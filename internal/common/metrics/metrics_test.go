package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

// === Ingress Metrics Tests ===

func TestIngressRequestsTotal_Labels(t *testing.T) {
	for _, status := range []string{"accepted", "deduped", "rejected", "error"} {
		IngressRequestsTotal.WithLabelValues(status).Inc()
	}

	counter := IngressRequestsTotal.WithLabelValues("accepted")
	if counter == nil {
		t.Error("Expected counter to be non-nil")
	}
}

func TestIngressRequestDuration_Observe(t *testing.T) {
	IngressRequestDuration.WithLabelValues("/api/inbox").Observe(0.015)

	histogram := IngressRequestDuration.WithLabelValues("/api/inbox")
	if histogram == nil {
		t.Error("Expected histogram to be non-nil")
	}
}

// === Router Metrics Tests ===

func TestRouterRowsProcessed_Labels(t *testing.T) {
	RouterRowsProcessed.WithLabelValues("done").Inc()
	RouterRowsProcessed.WithLabelValues("released").Inc()

	counter := RouterRowsProcessed.WithLabelValues("done")
	if counter == nil {
		t.Error("Expected counter to be non-nil")
	}
}

func TestRouterCommandsDispatched_Labels(t *testing.T) {
	channels := []string{"vj6530", "vj3350", "esp-plc", "raspi"}
	for _, ch := range channels {
		RouterCommandsDispatched.WithLabelValues(ch).Inc()
	}

	counter := RouterCommandsDispatched.WithLabelValues("vj6530")
	if counter == nil {
		t.Error("Expected counter to be non-nil")
	}
}

func TestRouterParseErrors_Counter(t *testing.T) {
	RouterParseErrors.Inc()
	RouterParseErrors.Add(3)

	desc := RouterParseErrors.Desc()
	if desc == nil {
		t.Error("Expected Desc to be non-nil")
	}
}

func TestRouterInboxPending_Gauge(t *testing.T) {
	RouterInboxPending.Set(5)
	RouterInboxPending.Inc()
	RouterInboxPending.Dec()

	desc := RouterInboxPending.Desc()
	if desc == nil {
		t.Error("Expected Desc to be non-nil")
	}
}

// === Sender Metrics Tests ===

func TestSenderJobsDelivered_Labels(t *testing.T) {
	outcomes := []string{"done", "rescheduled", "failed_permanent"}
	for _, outcome := range outcomes {
		SenderJobsDelivered.WithLabelValues(outcome).Inc()
	}

	counter := SenderJobsDelivered.WithLabelValues("done")
	if counter == nil {
		t.Error("Expected counter to be non-nil")
	}
}

func TestSenderDeliveryDuration_Observe(t *testing.T) {
	SenderDeliveryDuration.Observe(0.123)

	desc := SenderDeliveryDuration.Desc()
	if desc == nil {
		t.Error("Expected Desc to be non-nil")
	}
}

func TestSenderCircuitBreakerState_Values(t *testing.T) {
	SenderCircuitBreakerState.Set(CircuitBreakerClosed)
	SenderCircuitBreakerState.Set(CircuitBreakerOpen)
	SenderCircuitBreakerState.Set(CircuitBreakerHalfOpen)

	desc := SenderCircuitBreakerState.Desc()
	if desc == nil {
		t.Error("Expected Desc to be non-nil")
	}
}

func TestSenderOutboxPending_Gauge(t *testing.T) {
	SenderOutboxPending.Set(12)
	SenderOutboxPending.Add(1)
	SenderOutboxPending.Sub(1)

	desc := SenderOutboxPending.Desc()
	if desc == nil {
		t.Error("Expected Desc to be non-nil")
	}
}

// === Watchdog Metrics Tests ===

func TestWatchdogState_Gauge(t *testing.T) {
	WatchdogState.Set(0)
	WatchdogState.Set(1)
	WatchdogState.Set(2)

	desc := WatchdogState.Desc()
	if desc == nil {
		t.Error("Expected Desc to be non-nil")
	}
}

func TestWatchdogConsecutiveFailures_Gauge(t *testing.T) {
	WatchdogConsecutiveFailures.Set(0)
	WatchdogConsecutiveFailures.Inc()
	WatchdogConsecutiveFailures.Inc()

	desc := WatchdogConsecutiveFailures.Desc()
	if desc == nil {
		t.Error("Expected Desc to be non-nil")
	}
}

// === Store Metrics Tests ===

func TestStoreResetStuckRows_Labels(t *testing.T) {
	StoreResetStuckRows.WithLabelValues("inbox").Add(2)
	StoreResetStuckRows.WithLabelValues("outbox").Add(1)

	counter := StoreResetStuckRows.WithLabelValues("inbox")
	if counter == nil {
		t.Error("Expected counter to be non-nil")
	}
}

// === Circuit Breaker Constants Tests ===

func TestCircuitBreakerConstants(t *testing.T) {
	if CircuitBreakerClosed != 0 {
		t.Errorf("Expected CircuitBreakerClosed=0, got %d", CircuitBreakerClosed)
	}
	if CircuitBreakerOpen != 1 {
		t.Errorf("Expected CircuitBreakerOpen=1, got %d", CircuitBreakerOpen)
	}
	if CircuitBreakerHalfOpen != 2 {
		t.Errorf("Expected CircuitBreakerHalfOpen=2, got %d", CircuitBreakerHalfOpen)
	}
}

// === Counter Value Tests ===

func TestCounterValue(t *testing.T) {
	reg := prometheus.NewRegistry()

	counter := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "test_counter",
		Help: "Test counter",
	})

	reg.MustRegister(counter)

	counter.Add(5)

	val := testutil.ToFloat64(counter)
	if val != 5 {
		t.Errorf("Expected counter value 5, got %f", val)
	}

	counter.Inc()

	val = testutil.ToFloat64(counter)
	if val != 6 {
		t.Errorf("Expected counter value 6, got %f", val)
	}
}

// === Gauge Value Tests ===

func TestGaugeValue(t *testing.T) {
	reg := prometheus.NewRegistry()

	gauge := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "test_gauge",
		Help: "Test gauge",
	})

	reg.MustRegister(gauge)

	gauge.Set(100)
	val := testutil.ToFloat64(gauge)
	if val != 100 {
		t.Errorf("Expected gauge value 100, got %f", val)
	}

	gauge.Add(50)
	val = testutil.ToFloat64(gauge)
	if val != 150 {
		t.Errorf("Expected gauge value 150, got %f", val)
	}

	gauge.Sub(30)
	val = testutil.ToFloat64(gauge)
	if val != 120 {
		t.Errorf("Expected gauge value 120, got %f", val)
	}
}

// === Histogram Tests ===

func TestHistogramBuckets(t *testing.T) {
	reg := prometheus.NewRegistry()

	histogram := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "test_histogram",
		Help:    "Test histogram",
		Buckets: []float64{0.1, 0.5, 1.0, 5.0},
	})

	reg.MustRegister(histogram)

	histogram.Observe(0.05)
	histogram.Observe(0.25)
	histogram.Observe(0.75)
	histogram.Observe(2.5)
	histogram.Observe(10.0)

	if histogram == nil {
		t.Error("Expected histogram to be non-nil")
	}
}

// Benchmark for counter operations
func BenchmarkCounterInc(b *testing.B) {
	counter := RouterCommandsDispatched.WithLabelValues("bench-channel")
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		counter.Inc()
	}
}

// Benchmark for gauge set operations
func BenchmarkGaugeSet(b *testing.B) {
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		RouterInboxPending.Set(float64(i))
	}
}
