package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()

	metric := &dto.Metric{}
	if err := c.Write(metric); err != nil {
		t.Fatalf("failed to write metric: %v", err)
	}
	return metric.Counter.GetValue()
}

func TestNewCheckoutMetrics(t *testing.T) {
	metrics := NewCheckoutMetricsWithRegisterer(prometheus.NewRegistry())

	if metrics == nil {
		t.Fatal("NewCheckoutMetricsWithRegisterer should not return nil")
	}
	if metrics.checkoutResults == nil {
		t.Error("checkoutResults counter vec should not be nil")
	}
	if metrics.checkoutDuration == nil {
		t.Error("checkoutDuration histogram should not be nil")
	}
	if metrics.checkoutInFlight == nil {
		t.Error("checkoutInFlight gauge should not be nil")
	}
	if metrics.statusChanges == nil {
		t.Error("statusChanges counter vec should not be nil")
	}
}

func TestNewCheckoutMetrics_ReusesRegisteredCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()

	first := NewCheckoutMetricsWithRegisterer(reg)
	second := NewCheckoutMetricsWithRegisterer(reg)

	first.RecordOutboxEvent()
	second.RecordOutboxEvent()

	if got := counterValue(t, first.outboxEvents); got != 2 {
		t.Errorf("expected shared counter value 2, got %f", got)
	}
}

func TestCheckoutLifecycle(t *testing.T) {
	metrics := NewCheckoutMetricsWithRegisterer(prometheus.NewRegistry())

	metrics.RecordCheckoutStarted()
	metrics.RecordCheckoutStarted()
	metrics.RecordCheckoutFinished(ResultSuccess, 10*time.Millisecond)
	metrics.RecordCheckoutFinished(ResultInsufficientStock, 5*time.Millisecond)

	gauge := &dto.Metric{}
	if err := metrics.checkoutInFlight.Write(gauge); err != nil {
		t.Fatalf("failed to write gauge: %v", err)
	}
	if gauge.Gauge.GetValue() != 0 {
		t.Errorf("expected no checkouts in flight, got %f", gauge.Gauge.GetValue())
	}

	if got := counterValue(t, metrics.checkoutResults.WithLabelValues(ResultSuccess)); got != 1 {
		t.Errorf("expected 1 success, got %f", got)
	}
	if got := counterValue(t, metrics.checkoutResults.WithLabelValues(ResultInsufficientStock)); got != 1 {
		t.Errorf("expected 1 insufficient_stock, got %f", got)
	}

	histogram := &dto.Metric{}
	if err := metrics.checkoutDuration.Write(histogram); err != nil {
		t.Fatalf("failed to write histogram: %v", err)
	}
	if histogram.Histogram.GetSampleCount() != 2 {
		t.Errorf("expected 2 samples, got %d", histogram.Histogram.GetSampleCount())
	}
}

func TestRecordOrderPlaced(t *testing.T) {
	metrics := NewCheckoutMetricsWithRegisterer(prometheus.NewRegistry())

	metrics.RecordOrderPlaced("checkout", 35.5)
	metrics.RecordOrderPlaced("manual", 0)

	if got := counterValue(t, metrics.ordersPlaced.WithLabelValues("checkout")); got != 1 {
		t.Errorf("expected 1 checkout order, got %f", got)
	}
	if got := counterValue(t, metrics.orderRevenue); got != 35.5 {
		t.Errorf("expected revenue 35.5, got %f", got)
	}
}

func TestNilMetricsAreNoop(t *testing.T) {
	var metrics *CheckoutMetrics

	metrics.RecordCheckoutStarted()
	metrics.RecordCheckoutFinished(ResultError, time.Second)
	metrics.RecordOrderPlaced("manual", 1)
	metrics.RecordStatusChange("NEW")
	metrics.RecordCartOperation("add")
	metrics.RecordHistoryEvent()
	metrics.RecordOutboxEvent()
}
