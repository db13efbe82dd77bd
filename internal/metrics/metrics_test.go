package metrics

import (
	"context"
	"testing"
	"time"

	metricsdk "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func collect(t *testing.T, reader *metricsdk.ManualReader) map[string]metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatal(err)
	}
	out := make(map[string]metricdata.Metrics)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func TestRecorder(t *testing.T) {
	reader := metricsdk.NewManualReader()
	provider := metricsdk.NewMeterProvider(metricsdk.WithReader(reader))
	defer provider.Shutdown(context.Background())

	r := New(provider)
	r.Connected(120*time.Millisecond, "None")
	r.Connected(10*time.Second, "ConnectTimeout")
	r.ChannelError("PingTimeout")
	r.MessageSent("urn:x-cast:test")
	r.MessageSent("urn:x-cast:test")

	got := collect(t, reader)
	hist, ok := got["cast.channel.connect.duration"].Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatalf("missing connect duration histogram")
	}
	var count uint64
	for _, dp := range hist.DataPoints {
		count += dp.Count
	}
	if count != 2 {
		t.Errorf("expected 2 connect samples, got %d", count)
	}
	sent, ok := got["cast.channel.messages.sent"].Data.(metricdata.Sum[int64])
	if !ok || len(sent.DataPoints) != 1 || sent.DataPoints[0].Value != 2 {
		t.Errorf("unexpected sent counter %+v", got["cast.channel.messages.sent"])
	}
	errs, ok := got["cast.channel.errors"].Data.(metricdata.Sum[int64])
	if !ok || len(errs.DataPoints) != 1 {
		t.Errorf("unexpected error counter %+v", got["cast.channel.errors"])
	}
}

func TestNilRecorder(t *testing.T) {
	var r *Recorder
	r.Connected(time.Second, "None")
	r.ChannelError("Unknown")
	r.MessageRead("ns")
}
