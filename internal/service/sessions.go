package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/joeblew999/plat-map/internal/metrics"
	"github.com/joeblew999/plat-map/internal/session"
)

// DefaultIdleTimeout is how long a session may go without events before
// it is pruned.
const DefaultIdleTimeout = 30 * time.Minute

// SessionService tracks the live map sessions, one per open page.
type SessionService struct {
	catalog session.Catalog
	fetcher session.BoundaryFetcher
	cfg     session.Config
	bus     *EventBus
	idle    time.Duration

	mu       sync.RWMutex
	sessions map[string]*session.MapSession
}

// NewSessionService creates an empty registry. bus may be nil.
func NewSessionService(c session.Catalog, f session.BoundaryFetcher, cfg session.Config, bus *EventBus) *SessionService {
	return &SessionService{
		catalog:  c,
		fetcher:  f,
		cfg:      cfg,
		bus:      bus,
		idle:     DefaultIdleTimeout,
		sessions: make(map[string]*session.MapSession),
	}
}

// SetIdleTimeout overrides DefaultIdleTimeout.
func (s *SessionService) SetIdleTimeout(d time.Duration) { s.idle = d }

// Create starts a new idle session.
func (s *SessionService) Create() *session.MapSession {
	ms := session.New(uuid.NewString(), s.catalog, s.fetcher, s.cfg)

	s.mu.Lock()
	s.sessions[ms.ID()] = ms
	n := len(s.sessions)
	s.mu.Unlock()

	metrics.ActiveSessions.Set(float64(n))
	s.publish(ActionCreated, ms.ID())
	return ms
}

// Get returns a session by id and marks it active.
func (s *SessionService) Get(id string) (*session.MapSession, error) {
	s.mu.RLock()
	ms, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return nil, session.ErrUnknownSession
	}
	ms.Touch()
	return ms, nil
}

// Remove discards a session. Unknown ids are ignored.
func (s *SessionService) Remove(id string) {
	s.mu.Lock()
	_, ok := s.sessions[id]
	delete(s.sessions, id)
	n := len(s.sessions)
	s.mu.Unlock()

	if ok {
		metrics.ActiveSessions.Set(float64(n))
		s.publish(ActionRemoved, id)
	}
}

// Len returns the number of live sessions.
func (s *SessionService) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Prune removes sessions idle since before now minus the idle timeout and
// returns how many were dropped.
func (s *SessionService) Prune(now time.Time) int {
	cutoff := now.Add(-s.idle)

	s.mu.Lock()
	var stale []string
	for id, ms := range s.sessions {
		if ms.LastSeen().Before(cutoff) {
			stale = append(stale, id)
			delete(s.sessions, id)
		}
	}
	n := len(s.sessions)
	s.mu.Unlock()

	if len(stale) > 0 {
		metrics.ActiveSessions.Set(float64(n))
		for _, id := range stale {
			s.publish(ActionRemoved, id)
		}
	}
	return len(stale)
}

// RunPruner prunes every interval until ctx is done.
func (s *SessionService) RunPruner(ctx context.Context, interval time.Duration, log *slog.Logger) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			if n := s.Prune(now); n > 0 {
				log.Info("sessions_pruned", "count", n, "remaining", s.Len())
			}
		}
	}
}

func (s *SessionService) publish(action, id string) {
	if s.bus != nil {
		s.bus.Publish(Event{Resource: ResourceSessions, Action: action, ID: id})
	}
}
