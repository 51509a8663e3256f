package telemetry

import (
	"context"
	"log/slog"
	"sync"

	"github.com/af-corp/helmsman/internal/types"
)

// DefaultEmitterBuffer is the event queue depth before events are dropped.
const DefaultEmitterBuffer = 1024

// Sink receives routing decisions and feedback records for offline
// analysis (A/B comparisons, cost auditing). Called from a single emitter
// goroutine.
type Sink interface {
	WriteDecision(ctx context.Context, d types.RoutingDecision)
	WriteFeedback(ctx context.Context, rec types.FeedbackRecord)
}

// SlogSink logs every event as a structured line, the default when no
// external collector is configured.
type SlogSink struct {
	Logger *slog.Logger
}

func (s *SlogSink) WriteDecision(ctx context.Context, d types.RoutingDecision) {
	s.Logger.Debug("decision emitted",
		"correlation_id", d.CorrelationID,
		"class", d.QueryClass,
		"primary", d.PrimaryModel,
		"fallbacks", d.Fallbacks,
		"estimated_cost_usd", d.EstimatedCostUSD,
		"cache_hit", d.CacheHit,
		"registry_version", d.RegistryVersion,
	)
}

func (s *SlogSink) WriteFeedback(ctx context.Context, rec types.FeedbackRecord) {
	s.Logger.Debug("feedback emitted",
		"correlation_id", rec.CorrelationID,
		"model", rec.ModelID,
		"success", rec.Success,
		"latency_ms", rec.Latency.Milliseconds(),
	)
}

type event struct {
	decision *types.RoutingDecision
	feedback *types.FeedbackRecord
}

// Emitter publishes decisions and feedback to a sink asynchronously. The
// router never waits on it: when the buffer is full, events are dropped and
// counted rather than applying backpressure.
type Emitter struct {
	sink    Sink
	metrics *Metrics
	events  chan event

	closeOnce sync.Once
	done      chan struct{}
}

func NewEmitter(sink Sink, metrics *Metrics, buffer int) *Emitter {
	if buffer <= 0 {
		buffer = DefaultEmitterBuffer
	}
	e := &Emitter{
		sink:    sink,
		metrics: metrics,
		events:  make(chan event, buffer),
		done:    make(chan struct{}),
	}
	go e.run()
	return e
}

func (e *Emitter) run() {
	defer close(e.done)
	ctx := context.Background()
	for ev := range e.events {
		switch {
		case ev.decision != nil:
			e.sink.WriteDecision(ctx, *ev.decision)
		case ev.feedback != nil:
			e.sink.WriteFeedback(ctx, *ev.feedback)
		}
	}
}

// EmitDecision queues a decision for the sink, dropping on a full buffer.
func (e *Emitter) EmitDecision(d types.RoutingDecision) {
	select {
	case e.events <- event{decision: &d}:
	default:
		if e.metrics != nil {
			e.metrics.EmitterDropped.Inc()
		}
	}
}

// EmitFeedback queues a feedback record for the sink, dropping on a full
// buffer. Satisfies the feedback recorder's Emitter interface.
func (e *Emitter) EmitFeedback(rec types.FeedbackRecord) {
	select {
	case e.events <- event{feedback: &rec}:
	default:
		if e.metrics != nil {
			e.metrics.EmitterDropped.Inc()
		}
	}
}

// Close drains queued events and stops the emitter goroutine.
func (e *Emitter) Close() {
	e.closeOnce.Do(func() { close(e.events) })
	<-e.done
}
