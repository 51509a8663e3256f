package registry

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/af-corp/helmsman/internal/types"
)

// RefreshError reports a failed registry refresh. The previous snapshot
// remains authoritative; callers log and retry on the next cycle.
type RefreshError struct {
	Err error
}

func (e *RefreshError) Error() string {
	return fmt.Sprintf("registry refresh failed: %v", e.Err)
}

func (e *RefreshError) Unwrap() error { return e.Err }

// Snapshot is an immutable view of the model catalog at one version.
// Routing decisions read a snapshot once and never observe a partial
// update: refreshes swap the whole snapshot atomically.
type Snapshot struct {
	Version  uint64
	Models   []types.Model
	LoadedAt time.Time

	byID   map[string]types.Model
	digest [sha256.Size]byte
}

// Model looks up a model by id.
func (s *Snapshot) Model(id string) (types.Model, bool) {
	m, ok := s.byID[id]
	return m, ok
}

// Eligible returns every model that satisfies the capability and context
// requirements, in catalog order.
func (s *Snapshot) Eligible(required []types.Capability, estimatedTokens int) []types.Model {
	var out []types.Model
	for _, m := range s.Models {
		if m.EligibleFor(required, estimatedTokens) {
			out = append(out, m)
		}
	}
	return out
}

// Source loads the model catalog from wherever it lives (file, HTTP
// endpoint). Load may block on I/O and must honor ctx cancellation.
type Source interface {
	Load(ctx context.Context) ([]types.Model, error)
}

// Registry holds the current catalog snapshot. Reads are a single atomic
// pointer load; writes serialize on refreshMu.
type Registry struct {
	source  Source
	logger  *slog.Logger
	current atomic.Pointer[Snapshot]
	version atomic.Uint64

	// refreshMu covers the whole load-digest-swap sequence. The ticker,
	// the config reload callback, and POST /v1/registry/refresh all call
	// Refresh; without it a slow stale load could land after (and
	// outversion) a newer one.
	refreshMu sync.Mutex
}

func New(source Source, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{source: source, logger: logger}
}

// Snapshot returns the current catalog view, or nil before the first
// successful Refresh.
func (r *Registry) Snapshot() *Snapshot {
	return r.current.Load()
}

// Refresh loads the catalog from the source and swaps in a new snapshot.
// Concurrent calls serialize, so a later snapshot is never overwritten by
// an earlier, slower load. The version only advances when the model set
// actually changed, so cache entries keyed on the version survive no-op
// refreshes. On failure the previous snapshot stays in place and a
// *RefreshError is returned.
func (r *Registry) Refresh(ctx context.Context) (uint64, error) {
	r.refreshMu.Lock()
	defer r.refreshMu.Unlock()

	prev := r.current.Load()

	models, err := r.source.Load(ctx)
	if err != nil {
		if prev != nil {
			return prev.Version, &RefreshError{Err: err}
		}
		return 0, &RefreshError{Err: err}
	}

	if err := validate(models); err != nil {
		if prev != nil {
			return prev.Version, &RefreshError{Err: err}
		}
		return 0, &RefreshError{Err: err}
	}

	digest := catalogDigest(models)
	if prev != nil && prev.digest == digest {
		return prev.Version, nil
	}

	byID := make(map[string]types.Model, len(models))
	for _, m := range models {
		byID[m.ID] = m
	}

	snap := &Snapshot{
		Version:  r.version.Add(1),
		Models:   models,
		LoadedAt: time.Now(),
		byID:     byID,
		digest:   digest,
	}
	r.current.Store(snap)

	r.logger.Info("registry snapshot refreshed",
		"version", snap.Version,
		"models", len(snap.Models),
	)
	return snap.Version, nil
}

func validate(models []types.Model) error {
	if len(models) == 0 {
		return fmt.Errorf("catalog contains no models")
	}
	seen := make(map[string]bool, len(models))
	for _, m := range models {
		if m.ID == "" {
			return fmt.Errorf("model with empty id")
		}
		if seen[m.ID] {
			return fmt.Errorf("duplicate model id %q", m.ID)
		}
		seen[m.ID] = true
		if m.MaxContextTokens <= 0 {
			return fmt.Errorf("model %q: max_context_tokens must be positive", m.ID)
		}
		if m.InputCostPer1K < 0 || m.OutputCostPer1K < 0 {
			return fmt.Errorf("model %q: negative token cost", m.ID)
		}
		for _, c := range m.Capabilities {
			if _, ok := types.ParseCapability(string(c)); !ok {
				return fmt.Errorf("model %q: unknown capability %q", m.ID, c)
			}
		}
	}
	return nil
}

// catalogDigest hashes the catalog content in id order so equality is
// independent of source ordering.
func catalogDigest(models []types.Model) [sha256.Size]byte {
	sorted := make([]types.Model, len(models))
	copy(sorted, models)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })
	data, _ := json.Marshal(sorted)
	return sha256.Sum256(data)
}
