package dashboard

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kjstillabower/climate-dashboard/internal/observability"
)

// ErrSessionNotFound is returned for unknown or evicted session IDs.
var ErrSessionNotFound = errors.New("session not found")

// Factory builds a new session with the given ID.
type Factory func(id string) *Session

// RegistryConfig bounds how many sessions are held and for how long.
type RegistryConfig struct {
	MaxSessions int
	MaxAge      time.Duration
	Now         func() time.Time
}

// Registry holds live sessions by ID and disposes the ones that go idle.
type Registry struct {
	newSession Factory
	cfg        RegistryConfig
	logger     *zap.Logger

	mu       sync.Mutex
	sessions map[string]*Session
	order    []string

	scheduler *gocron.Scheduler
}

// NewRegistry returns an empty registry.
func NewRegistry(factory Factory, cfg RegistryConfig, logger *zap.Logger) *Registry {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		newSession: factory,
		cfg:        cfg,
		logger:     logger,
		sessions:   make(map[string]*Session),
	}
}

// Create registers a new session, evicting the oldest one when at capacity.
func (r *Registry) Create() *Session {
	id := uuid.NewString()
	s := r.newSession(id)

	r.mu.Lock()
	var evicted []*Session
	for r.cfg.MaxSessions > 0 && len(r.sessions) >= r.cfg.MaxSessions && len(r.order) > 0 {
		oldest := r.order[0]
		r.order = r.order[1:]
		if old, ok := r.sessions[oldest]; ok {
			delete(r.sessions, oldest)
			evicted = append(evicted, old)
		}
	}
	r.sessions[id] = s
	r.order = append(r.order, id)
	n := len(r.sessions)
	r.mu.Unlock()

	r.dispose(evicted, "capacity")
	observability.SessionsActive.Set(float64(n))
	return s
}

// Get returns the session for id and marks it as recently used.
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.Lock()
	s, ok := r.sessions[id]
	r.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	s.touch(r.cfg.Now())
	return s, nil
}

// Remove disposes the session for id. Unknown IDs are ignored.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	s, ok := r.sessions[id]
	if ok {
		r.deleteLocked(id)
	}
	n := len(r.sessions)
	r.mu.Unlock()
	if ok {
		s.Dispose()
		observability.SessionsActive.Set(float64(n))
	}
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Sweep disposes every session idle for longer than MaxAge and returns how
// many were removed.
func (r *Registry) Sweep() int {
	if r.cfg.MaxAge <= 0 {
		return 0
	}
	cutoff := r.cfg.Now().Add(-r.cfg.MaxAge)

	r.mu.Lock()
	var expired []*Session
	for id, s := range r.sessions {
		if s.idleSince().Before(cutoff) {
			r.deleteLocked(id)
			expired = append(expired, s)
		}
	}
	n := len(r.sessions)
	r.mu.Unlock()

	r.dispose(expired, "expired")
	observability.SessionsActive.Set(float64(n))
	return len(expired)
}

// Start runs Sweep every interval until Stop.
func (r *Registry) Start(interval time.Duration) error {
	s := gocron.NewScheduler(time.UTC)
	_, err := s.Every(interval).SingletonMode().Do(func() {
		if n := r.Sweep(); n > 0 {
			r.logger.Info("expired dashboard sessions", zap.Int("count", n))
		}
	})
	if err != nil {
		return fmt.Errorf("schedule session sweep: %w", err)
	}
	r.mu.Lock()
	r.scheduler = s
	r.mu.Unlock()
	s.StartAsync()
	r.logger.Info("session sweeper started", zap.Duration("interval", interval))
	return nil
}

// Stop halts the sweeper and disposes every session.
func (r *Registry) Stop() {
	r.mu.Lock()
	sched := r.scheduler
	r.scheduler = nil
	all := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		all = append(all, s)
	}
	r.sessions = make(map[string]*Session)
	r.order = nil
	r.mu.Unlock()

	if sched != nil {
		sched.Stop()
	}
	r.dispose(all, "shutdown")
	observability.SessionsActive.Set(0)
}

func (r *Registry) deleteLocked(id string) {
	delete(r.sessions, id)
	for i, v := range r.order {
		if v == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

func (r *Registry) dispose(sessions []*Session, reason string) {
	for _, s := range sessions {
		s.Dispose()
		observability.SessionsEvictedTotal.WithLabelValues(reason).Inc()
		r.logger.Debug("dashboard session evicted", zap.String("session_id", s.ID), zap.String("reason", reason))
	}
}
