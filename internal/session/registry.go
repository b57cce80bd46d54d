// Package session keeps one map view controller per browser session.
package session

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"allergen-map/internal/common"
	"allergen-map/internal/logging"
	"allergen-map/internal/mapview"
	"allergen-map/internal/metrics"
)

// Session is one user's interaction context.
type Session struct {
	ID         uuid.UUID
	Created    time.Time
	Controller *mapview.Controller
}

// Registry holds sessions, bounded by count and idle time.
// Evicted sessions have their controller closed.
type Registry struct {
	lru     *expirable.LRU[uuid.UUID, *Session]
	factory func() *mapview.Controller
	live    atomic.Int64
	metrics *metrics.Metrics
	logger  *log.Logger
}

// NewRegistry creates a registry. factory builds the controller of each new session.
func NewRegistry(maxSessions int, idleTTL time.Duration, factory func() *mapview.Controller, m *metrics.Metrics, logger *log.Logger) *Registry {
	r := &Registry{
		factory: factory,
		metrics: m,
		logger:  logging.Component(logger, "session"),
	}
	// runs under the LRU lock
	onEvict := func(id uuid.UUID, s *Session) {
		s.Controller.Close()
		r.metrics.SetSessions(int(r.live.Add(-1)))
		r.logger.Debug("session closed", "id", id)
	}
	r.lru = expirable.NewLRU[uuid.UUID, *Session](maxSessions, onEvict, idleTTL)
	return r
}

// Create starts a new Idle session
func (r *Registry) Create() *Session {
	s := &Session{
		ID:         uuid.New(),
		Created:    time.Now(),
		Controller: r.factory(),
	}
	r.metrics.SetSessions(int(r.live.Add(1)))
	r.lru.Add(s.ID, s)
	r.logger.Debug("session created", "id", s.ID)
	return s
}

// Get returns a live session and renews its idle timer
func (r *Registry) Get(id uuid.UUID) (*Session, error) {
	s, ok := r.lru.Get(id)
	if !ok {
		return nil, fmt.Errorf("session %s: %w", id, common.ErrNotFound)
	}
	r.lru.Add(id, s)
	return s, nil
}

// Lookup parses id and returns the session
func (r *Registry) Lookup(id string) (*Session, error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("session %q: %w", id, common.ErrNotFound)
	}
	return r.Get(parsed)
}

// Len returns the number of live sessions
func (r *Registry) Len() int {
	return r.lru.Len()
}

// Close ends every session
func (r *Registry) Close() {
	r.lru.Purge()
}
