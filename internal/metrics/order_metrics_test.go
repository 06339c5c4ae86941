package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
)

func TestOrderMetrics_Counters(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewOrderMetricsWithRegisterer(registry)

	m.RecordOrderCreated()
	m.RecordOrderCreated()
	m.RecordCreateFailure("InsufficientStock")
	m.RecordTransition("confirmed")
	m.RecordStockConflict()
	m.RecordStockReleased(3)
	m.RecordAnomaly("create")
	m.RecordCheckoutDuration(15 * time.Millisecond)

	if got := testutil.ToFloat64(m.ordersCreated); got != 2 {
		t.Fatalf("orders created = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.createFailures.WithLabelValues("InsufficientStock")); got != 1 {
		t.Fatalf("create failures = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.transitions.WithLabelValues("confirmed")); got != 1 {
		t.Fatalf("transitions = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.stockReleased); got != 3 {
		t.Fatalf("released units = %v, want 3", got)
	}
	if got := testutil.ToFloat64(m.anomalies.WithLabelValues("create")); got != 1 {
		t.Fatalf("anomalies = %v, want 1", got)
	}
	if got := testutil.CollectAndCount(m.checkoutDuration); got != 1 {
		t.Fatalf("checkout histogram series = %d, want 1", got)
	}
}

func TestOrderMetrics_ReRegistrationReusesCollectors(t *testing.T) {
	registry := prometheus.NewRegistry()
	first := NewOrderMetricsWithRegisterer(registry)
	second := NewOrderMetricsWithRegisterer(registry)

	first.RecordOrderCreated()
	second.RecordOrderCreated()

	if got := testutil.ToFloat64(first.ordersCreated); got != 2 {
		t.Fatalf("expected shared counter, got %v", got)
	}
}

func TestOrderMetrics_NilReceiverIsNoop(t *testing.T) {
	var m *OrderMetrics
	m.RecordOrderCreated()
	m.RecordAnomaly("cancel")
	m.RecordCheckoutDuration(time.Second)
}

func TestHTTPMetrics_Observe(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewHTTPMetricsWithRegisterer(registry)

	m.Observe("POST", "/orders", 201, 10*time.Millisecond)
	m.Observe("GET", "", 404, time.Millisecond)

	if got := testutil.ToFloat64(m.requests.WithLabelValues("POST", "/orders", "201")); got != 1 {
		t.Fatalf("requests = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.requests.WithLabelValues("GET", "unmatched", "404")); got != 1 {
		t.Fatalf("unmatched requests = %v, want 1", got)
	}
}

func TestOutboxMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewOutboxMetricsWithRegisterer(registry)

	m.RecordPublish("sent")
	m.RecordPublish("sent")
	m.RecordPublish("failed")
	m.SetBacklog(4, -time.Second)

	if got := testutil.ToFloat64(m.publishAttempts.WithLabelValues("sent")); got != 2 {
		t.Fatalf("sent = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.pending); got != 4 {
		t.Fatalf("pending = %v, want 4", got)
	}
	if got := testutil.ToFloat64(m.oldestAge); got != 0 {
		t.Fatalf("negative age must clamp to 0, got %v", got)
	}

	var nilMetrics *OutboxMetrics
	nilMetrics.RecordPublish("sent")
	nilMetrics.SetBacklog(1, time.Second)
}

func TestCleanupMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewCleanupMetricsWithRegisterer(registry)

	m.RecordDeleted(3)
	m.RecordDeleted(0)
	m.RecordRun("ok", 3)
	m.RecordRun("error", 0)

	if got := testutil.ToFloat64(m.deleted); got != 3 {
		t.Fatalf("deleted = %v, want 3", got)
	}
	if got := testutil.ToFloat64(m.lastDeleted); got != 3 {
		t.Fatalf("last deleted = %v, want 3", got)
	}
	if got := testutil.ToFloat64(m.runs.WithLabelValues("error")); got != 1 {
		t.Fatalf("error runs = %v, want 1", got)
	}
}

func TestOrderMetrics_CheckoutHistogramExposed(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewOrderMetricsWithRegisterer(registry)

	m.RecordCheckoutDuration(10 * time.Millisecond)
	m.RecordCheckoutDuration(30 * time.Millisecond)

	families, err := registry.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	family := findFamily(families, "agro_checkout_duration_seconds")
	if family == nil {
		t.Fatal("checkout histogram is not registered")
	}
	if family.GetType() != dto.MetricType_HISTOGRAM {
		t.Fatalf("type = %v, want histogram", family.GetType())
	}
	histogram := family.GetMetric()[0].GetHistogram()
	if got := histogram.GetSampleCount(); got != 2 {
		t.Fatalf("samples = %d, want 2", got)
	}
	if got := histogram.GetSampleSum(); got < 0.039 || got > 0.041 {
		t.Fatalf("sum = %v, want 0.04", got)
	}
}

func findFamily(families []*dto.MetricFamily, name string) *dto.MetricFamily {
	for _, family := range families {
		if family.GetName() == name {
			return family
		}
	}
	return nil
}
