package otelhelper

import (
	"context"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("nats-chat-client")

// headerCarrier adapts nats.Header to propagation.TextMapCarrier.
type headerCarrier nats.Header

func (c headerCarrier) Get(key string) string { return nats.Header(c).Get(key) }

func (c headerCarrier) Set(key, value string) { nats.Header(c).Set(key, value) }

func (c headerCarrier) Keys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	return keys
}

// InjectContext returns a nats.Header carrying the trace context of ctx.
func InjectContext(ctx context.Context) nats.Header {
	h := nats.Header{}
	otel.GetTextMapPropagator().Inject(ctx, headerCarrier(h))
	return h
}

// ExtractContext pulls trace context out of a message header, if present.
func ExtractContext(ctx context.Context, header nats.Header) context.Context {
	if header == nil {
		return ctx
	}
	return otel.GetTextMapPropagator().Extract(ctx, headerCarrier(header))
}

// TracedJetStreamPublish publishes to a JetStream subject inside a
// PRODUCER span, with trace context injected into the message headers.
func TracedJetStreamPublish(ctx context.Context, js jetstream.JetStream, subject string, data []byte) (*jetstream.PubAck, error) {
	ctx, span := tracer.Start(ctx, subject+" publish",
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			attribute.String("messaging.system", "nats"),
			attribute.String("messaging.destination.name", subject),
			attribute.Int("messaging.message.payload_size_bytes", len(data)),
		),
	)
	defer span.End()

	ack, err := js.PublishMsg(ctx, &nats.Msg{
		Subject: subject,
		Data:    data,
		Header:  InjectContext(ctx),
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(attribute.Int64("messaging.message.sequence", int64(ack.Sequence)))
	return ack, nil
}

// StartConsumerSpan extracts trace context from an inbound stream message
// and opens a CONSUMER span. The caller must End the span.
func StartConsumerSpan(ctx context.Context, header nats.Header, subject, operationName string, payloadSize int) (context.Context, trace.Span) {
	ctx = ExtractContext(ctx, header)
	return tracer.Start(ctx, operationName,
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.system", "nats"),
			attribute.String("messaging.destination.name", subject),
			attribute.Int("messaging.message.payload_size_bytes", payloadSize),
		),
	)
}
