package tracker

import (
	"sync"
	"time"
)

const (
	// DefaultAlpha is the EWMA smoothing factor for latency.
	DefaultAlpha = 0.2
	// DefaultWindowSize is the trailing call window for the error rate.
	DefaultWindowSize = 100

	// NeutralLatency is assumed for models with no recorded history, so
	// newly added models stay eligible instead of being scored out.
	NeutralLatency = 1500 * time.Millisecond
)

// Profile is an immutable per-model performance snapshot handed to the
// router. The tracker owns the mutable state behind it.
type Profile struct {
	ModelID     string
	LatencyEWMA time.Duration
	ErrorRate   float64
	Quality     float64
	HasQuality  bool
	SampleCount int64
}

// shard holds one model's statistics. Each shard has its own lock so
// feedback for unrelated models never serializes.
type shard struct {
	mu sync.Mutex

	latencyMs float64
	samples   int64

	// Ring buffer of recent outcomes; failures counted incrementally.
	outcomes []bool
	next     int
	filled   int
	failures int

	qualitySum   float64
	qualityCount int64
}

// Tracker maintains rolling performance statistics per model. Reads take
// the per-shard lock only long enough to copy a Profile out.
type Tracker struct {
	alpha  float64
	window int

	mu     sync.RWMutex
	shards map[string]*shard
}

func New(alpha float64, window int) *Tracker {
	if alpha <= 0 || alpha > 1 {
		alpha = DefaultAlpha
	}
	if window <= 0 {
		window = DefaultWindowSize
	}
	return &Tracker{
		alpha:  alpha,
		window: window,
		shards: make(map[string]*shard),
	}
}

func (t *Tracker) getShard(modelID string) *shard {
	t.mu.RLock()
	s, ok := t.shards[modelID]
	t.mu.RUnlock()
	if ok {
		return s
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	// Double-check after acquiring write lock
	if s, ok := t.shards[modelID]; ok {
		return s
	}
	s = &shard{outcomes: make([]bool, t.window)}
	t.shards[modelID] = s
	return s
}

// Record folds one observed outcome into the model's statistics. The
// update completes before Record returns, so a subsequent Snapshot sees it.
func (t *Tracker) Record(modelID string, success bool, latency time.Duration, quality *float64) {
	s := t.getShard(modelID)
	s.mu.Lock()
	defer s.mu.Unlock()

	ms := float64(latency) / float64(time.Millisecond)
	if s.samples == 0 {
		s.latencyMs = ms
	} else {
		s.latencyMs = t.alpha*ms + (1-t.alpha)*s.latencyMs
	}
	s.samples++

	if s.filled == len(s.outcomes) {
		// Evict the slot being overwritten.
		if !s.outcomes[s.next] {
			s.failures--
		}
	} else {
		s.filled++
	}
	s.outcomes[s.next] = success
	if !success {
		s.failures++
	}
	s.next = (s.next + 1) % len(s.outcomes)

	if quality != nil {
		q := *quality
		if q < 0 {
			q = 0
		}
		if q > 1 {
			q = 1
		}
		s.qualitySum += q
		s.qualityCount++
	}
}

// Snapshot returns the model's current profile. Unseen models get the
// neutral prior: NeutralLatency, zero error rate, no quality signal.
func (t *Tracker) Snapshot(modelID string) Profile {
	t.mu.RLock()
	s, ok := t.shards[modelID]
	t.mu.RUnlock()
	if !ok {
		return Profile{ModelID: modelID, LatencyEWMA: NeutralLatency}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p := Profile{
		ModelID:     modelID,
		LatencyEWMA: time.Duration(s.latencyMs * float64(time.Millisecond)),
		SampleCount: s.samples,
	}
	if s.samples == 0 {
		p.LatencyEWMA = NeutralLatency
	}
	if s.filled > 0 {
		p.ErrorRate = float64(s.failures) / float64(s.filled)
	}
	if s.qualityCount > 0 {
		p.Quality = s.qualitySum / float64(s.qualityCount)
		p.HasQuality = true
	}
	return p
}
