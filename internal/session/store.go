// Package session keeps the open dialog sessions of the HTTP surface in a
// bounded, expiring cache.
package session

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/rs/zerolog"

	"github.com/pesio-ai/be-inventory/internal/workflow"
)

const (
	defaultTTL         = 30 * time.Minute
	defaultMaxSessions = 1024
)

// ErrUnknownFlow is returned by Create for a flow name with no definition
var ErrUnknownFlow = fmt.Errorf("unknown flow")

// FlowSource resolves flow definitions by name
type FlowSource interface {
	Get(name string) (workflow.Flow, bool)
}

// Config bounds the store
type Config struct {
	TTL         time.Duration
	MaxSessions int
	Session     workflow.SessionConfig
}

// Store owns every live session. Sessions idle longer than the TTL or pushed
// out by the size bound are closed on eviction.
type Store struct {
	flows FlowSource
	orch  *workflow.Orchestrator
	cfg   Config
	log   zerolog.Logger
	cache *expirable.LRU[string, *workflow.Session]
}

// NewStore creates a session store
func NewStore(flows FlowSource, orch *workflow.Orchestrator, cfg Config, log zerolog.Logger) *Store {
	if cfg.TTL <= 0 {
		cfg.TTL = defaultTTL
	}
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = defaultMaxSessions
	}
	s := &Store{
		flows: flows,
		orch:  orch,
		cfg:   cfg,
		log:   log.With().Str("component", "session_store").Logger(),
	}
	s.cache = expirable.NewLRU[string, *workflow.Session](cfg.MaxSessions, s.onEvict, cfg.TTL)
	return s
}

// Create opens a new session for the named flow
func (s *Store) Create(flowName string) (*workflow.Session, error) {
	flow, ok := s.flows.Get(flowName)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownFlow, flowName)
	}
	sess, err := workflow.NewSession(uuid.NewString(), flow, s.orch, s.cfg.Session)
	if err != nil {
		return nil, err
	}
	sess.Open()
	s.cache.Add(sess.ID(), sess)

	s.log.Debug().
		Str("session_id", sess.ID()).
		Str("flow", flowName).
		Msg("Session created")
	return sess, nil
}

// Get returns a live session
func (s *Store) Get(id string) (*workflow.Session, bool) {
	return s.cache.Get(id)
}

// Touch re-inserts a session so its TTL restarts
func (s *Store) Touch(sess *workflow.Session) {
	s.cache.Add(sess.ID(), sess)
}

// Delete closes and forgets a session. It reports whether the session existed.
func (s *Store) Delete(id string) bool {
	return s.cache.Remove(id)
}

// Len returns the number of live sessions
func (s *Store) Len() int {
	return s.cache.Len()
}

// Close closes every session
func (s *Store) Close() {
	s.cache.Purge()
}

func (s *Store) onEvict(id string, sess *workflow.Session) {
	sess.Close()
	s.log.Debug().Str("session_id", id).Msg("Session closed")
}
