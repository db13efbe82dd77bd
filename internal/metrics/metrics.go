// Package metrics records channel level OpenTelemetry instruments.
package metrics

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const scope = "sutext.github.io/cast"

type milliDuration struct {
	metric.Float64Histogram
}

func newDuration(meter metric.Meter, name string, description string) milliDuration {
	f, err := meter.Float64Histogram(name,
		metric.WithUnit("ms"),
		metric.WithDescription(description),
	)
	if err != nil {
		otel.Handle(err)
		return milliDuration{noop.Float64Histogram{}}
	}
	return milliDuration{f}
}
func (f milliDuration) Record(ctx context.Context, d time.Duration, labels ...attribute.KeyValue) {
	f.Float64Histogram.Record(ctx, float64(d)/float64(time.Millisecond), metric.WithAttributeSet(attribute.NewSet(labels...)))
}

type counter struct {
	metric.Int64Counter
}

func newCounter(meter metric.Meter, name string, description string) counter {
	c, err := meter.Int64Counter(name, metric.WithDescription(description))
	if err != nil {
		otel.Handle(err)
		return counter{noop.Int64Counter{}}
	}
	return counter{c}
}
func (c counter) Add(ctx context.Context, labels ...attribute.KeyValue) {
	c.Int64Counter.Add(ctx, 1, metric.WithAttributeSet(attribute.NewSet(labels...)))
}

// Recorder is shared by every socket created with it.
type Recorder struct {
	connectDuration milliDuration
	connectResult   counter
	channelErrors   counter
	messagesSent    counter
	messagesRead    counter
}

// New builds a Recorder on the given provider, or on the global one when
// provider is nil.
func New(provider metric.MeterProvider) *Recorder {
	if provider == nil {
		provider = otel.GetMeterProvider()
	}
	meter := provider.Meter(scope)
	return &Recorder{
		connectDuration: newDuration(meter, "cast.channel.connect.duration", "Time from connect to open or failure"),
		connectResult:   newCounter(meter, "cast.channel.connect.result", "Connect attempts by outcome"),
		channelErrors:   newCounter(meter, "cast.channel.errors", "Channel errors by kind"),
		messagesSent:    newCounter(meter, "cast.channel.messages.sent", "Messages written to the wire"),
		messagesRead:    newCounter(meter, "cast.channel.messages.read", "Messages read from the wire"),
	}
}

// Connected records a finished connect attempt; result is the channel
// error name, "None" on success.
func (r *Recorder) Connected(d time.Duration, result string) {
	if r == nil {
		return
	}
	ctx := context.Background()
	r.connectDuration.Record(ctx, d, attribute.String("result", result))
	r.connectResult.Add(ctx, attribute.String("result", result))
}

func (r *Recorder) ChannelError(kind string) {
	if r == nil {
		return
	}
	r.channelErrors.Add(context.Background(), attribute.String("error", kind))
}

func (r *Recorder) MessageSent(namespace string) {
	if r == nil {
		return
	}
	r.messagesSent.Add(context.Background(), attribute.String("namespace", namespace))
}

func (r *Recorder) MessageRead(namespace string) {
	if r == nil {
		return
	}
	r.messagesRead.Add(context.Background(), attribute.String("namespace", namespace))
}
