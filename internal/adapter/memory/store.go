// Package memory provides process-local reading and alert stores. It is the
// zero-configuration default and the fixture store for tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/seawhisper/alert-monitor/internal/domain"
)

type alertKey struct {
	parameter domain.Parameter
	lat, lon  float64
}

// Store keeps readings and alerts in memory. Active-alert uniqueness is
// enforced by checking and inserting under one lock.
type Store struct {
	mu        sync.RWMutex
	readings  []domain.Reading // ascending CreatedAt
	nextID    int64
	retention time.Duration

	alerts []domain.Alert      // insertion order
	byID   map[string]int      // alert ID -> index into alerts
	active map[alertKey]string // key -> active alert ID
}

// Option configures a Store.
type Option func(*Store)

// WithRetention drops readings older than d on each insert. Zero keeps
// every reading.
func WithRetention(d time.Duration) Option {
	return func(s *Store) { s.retention = d }
}

// NewStore creates an empty Store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		byID:   make(map[string]int),
		active: make(map[alertKey]string),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// InsertReadings stores readings, stamping ID and CreatedAt, then prunes
// readings that fell out of the retention horizon.
func (s *Store) InsertReadings(_ context.Context, readings []domain.Reading) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := domain.Now().UTC()
	if n := len(s.readings); n > 0 && now.Before(s.readings[n-1].CreatedAt) {
		now = s.readings[n-1].CreatedAt
	}
	for _, r := range readings {
		s.nextID++
		r.ID = s.nextID
		r.CreatedAt = now
		s.readings = append(s.readings, r)
	}

	if s.retention > 0 {
		if i := s.firstAtOrAfter(now.Add(-s.retention)); i > 0 {
			clear(s.readings[:i])
			s.readings = s.readings[i:]
		}
	}
	return nil
}

// RecentSince returns up to limit readings created at or after since, oldest first.
func (s *Store) RecentSince(_ context.Context, since time.Time, limit int) ([]domain.Reading, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	window := s.readings[s.firstAtOrAfter(since):]
	if limit > 0 && len(window) > limit {
		window = window[:limit]
	}
	if len(window) == 0 {
		return nil, nil
	}
	return append([]domain.Reading(nil), window...), nil
}

// Len reports the number of retained readings.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.readings)
}

func (s *Store) firstAtOrAfter(t time.Time) int {
	return sort.Search(len(s.readings), func(i int) bool {
		return !s.readings[i].CreatedAt.Before(t)
	})
}

// FindActive returns the active alert for the exact key, or nil.
func (s *Store) FindActive(_ context.Context, p domain.Parameter, lat, lon float64) (*domain.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.active[alertKey{p, lat, lon}]
	if !ok {
		return nil, nil
	}
	a := s.alerts[s.byID[id]]
	return &a, nil
}

// Create inserts an active alert unless one already holds the key.
func (s *Store) Create(_ context.Context, draft domain.AlertDraft) (domain.Alert, error) {
	key := alertKey{draft.Parameter, draft.Location.Lat, draft.Location.Lon}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.active[key]; exists {
		return domain.Alert{}, domain.ErrDuplicateActive
	}
	a := domain.NewAlert(draft)
	s.byID[a.ID] = len(s.alerts)
	s.alerts = append(s.alerts, a)
	s.active[key] = a.ID
	return a, nil
}

// ListActive returns active alerts newest first, at most limit.
func (s *Store) ListActive(_ context.Context, limit int) ([]domain.Alert, error) {
	s.mu.RLock()
	out := make([]domain.Alert, 0, len(s.active))
	for i := len(s.alerts) - 1; i >= 0; i-- {
		if s.alerts[i].Status == domain.StatusActive {
			out = append(out, s.alerts[i])
		}
	}
	s.mu.RUnlock()

	// Insertion order already approximates recency; the stable sort keeps it
	// as the tie-breaker for equal timestamps.
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Resolve marks an active alert resolved, freeing its key.
func (s *Store) Resolve(_ context.Context, id string) (domain.Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, ok := s.byID[id]
	if !ok || s.alerts[idx].Status != domain.StatusActive {
		return domain.Alert{}, domain.ErrAlertNotFound
	}
	a := &s.alerts[idx]
	a.Status = domain.StatusResolved
	a.UpdatedAt = domain.Now().UTC()
	delete(s.active, alertKey{a.Parameter, a.Location.Lat, a.Location.Lon})
	return *a, nil
}
