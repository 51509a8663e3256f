package telemetry

import (
	"context"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/af-corp/helmsman/internal/types"
)

type recordingSink struct {
	mu        sync.Mutex
	decisions []types.RoutingDecision
	feedback  []types.FeedbackRecord
	block     chan struct{}
}

func (s *recordingSink) WriteDecision(ctx context.Context, d types.RoutingDecision) {
	if s.block != nil {
		<-s.block
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.decisions = append(s.decisions, d)
}

func (s *recordingSink) WriteFeedback(ctx context.Context, rec types.FeedbackRecord) {
	if s.block != nil {
		<-s.block
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.feedback = append(s.feedback, rec)
}

func TestEmitter_DeliversEvents(t *testing.T) {
	sink := &recordingSink{}
	e := NewEmitter(sink, nil, 16)

	e.EmitDecision(types.RoutingDecision{CorrelationID: "d1", PrimaryModel: "m"})
	e.EmitFeedback(types.FeedbackRecord{CorrelationID: "f1", ModelID: "m"})
	e.Close() // drains before returning

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.decisions) != 1 || sink.decisions[0].CorrelationID != "d1" {
		t.Errorf("decisions = %v", sink.decisions)
	}
	if len(sink.feedback) != 1 || sink.feedback[0].CorrelationID != "f1" {
		t.Errorf("feedback = %v", sink.feedback)
	}
}

func TestEmitter_DropsWhenFull(t *testing.T) {
	m := NewMetricsFor(prometheus.NewRegistry())
	sink := &recordingSink{block: make(chan struct{})}
	e := NewEmitter(sink, m, 1)

	// One event may be in-flight in the goroutine and one fits the buffer;
	// everything beyond that must drop without blocking this test.
	for i := 0; i < 10; i++ {
		e.EmitDecision(types.RoutingDecision{PrimaryModel: "m"})
	}

	if got := counterValue(t, m.EmitterDropped); got == 0 {
		t.Error("expected dropped events to be counted")
	}

	close(sink.block)
	e.Close()
}

func TestEmitter_CloseIsIdempotent(t *testing.T) {
	e := NewEmitter(&recordingSink{}, nil, 4)
	e.Close()
	e.Close()
}
