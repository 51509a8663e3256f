package feedback

import (
	"fmt"
	"log/slog"

	"github.com/af-corp/helmsman/internal/registry"
	"github.com/af-corp/helmsman/internal/tracker"
	"github.com/af-corp/helmsman/internal/types"
)

// Error reports malformed or unattributable feedback. Never fatal: routing
// correctness does not depend on feedback being accepted.
type Error struct {
	CorrelationID string
	ModelID       string
	Reason        string
}

func (e *Error) Error() string {
	return fmt.Sprintf("feedback rejected (correlation_id=%s, model=%s): %s", e.CorrelationID, e.ModelID, e.Reason)
}

// Emitter receives accepted feedback for offline analysis. Implementations
// must not block; the recorder fires and forgets.
type Emitter interface {
	EmitFeedback(rec types.FeedbackRecord)
}

// Recorder ingests outcome signals and feeds the performance tracker. The
// tracker update completes before Record returns, so a route call issued
// right after sees the new statistics.
type Recorder struct {
	registry *registry.Registry
	tracker  *tracker.Tracker
	emitter  Emitter
	logger   *slog.Logger
}

func NewRecorder(reg *registry.Registry, trk *tracker.Tracker, emitter Emitter, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{registry: reg, tracker: trk, emitter: emitter, logger: logger}
}

// Record validates and applies one feedback record, returning the model's
// updated performance profile. A record referencing a model missing from
// the current registry snapshot is rejected with a logged warning; it may
// simply be stale after a catalog change.
func (r *Recorder) Record(rec types.FeedbackRecord) (tracker.Profile, error) {
	if rec.ModelID == "" {
		return tracker.Profile{}, &Error{CorrelationID: rec.CorrelationID, Reason: "missing model_id"}
	}
	if rec.Latency < 0 {
		return tracker.Profile{}, &Error{CorrelationID: rec.CorrelationID, ModelID: rec.ModelID, Reason: "negative latency"}
	}

	snap := r.registry.Snapshot()
	if snap == nil {
		return tracker.Profile{}, &Error{CorrelationID: rec.CorrelationID, ModelID: rec.ModelID, Reason: "registry not loaded"}
	}
	if _, ok := snap.Model(rec.ModelID); !ok {
		r.logger.Warn("feedback for unknown model dropped",
			"correlation_id", rec.CorrelationID,
			"model", rec.ModelID,
			"registry_version", snap.Version,
		)
		return tracker.Profile{}, &Error{CorrelationID: rec.CorrelationID, ModelID: rec.ModelID, Reason: "unknown model"}
	}

	r.tracker.Record(rec.ModelID, rec.Success, rec.Latency, rec.Quality)
	profile := r.tracker.Snapshot(rec.ModelID)

	if r.emitter != nil {
		r.emitter.EmitFeedback(rec)
	}
	return profile, nil
}
