package app

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/WatchSync/internal/core"
	"github.com/dkeye/WatchSync/internal/domain"
)

type sessionEntry struct {
	Session core.MemberSession
	Cancel  context.CancelFunc
}

// Sessions tracks connected members independently of room membership.
type Sessions struct {
	mu       sync.RWMutex
	sessions map[domain.MemberID]*sessionEntry
}

func NewSessions() *Sessions {
	return &Sessions{sessions: make(map[domain.MemberID]*sessionEntry)}
}

func (s *Sessions) Bind(sess core.MemberSession, cancel context.CancelFunc) {
	id := sess.Meta().ID
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[id] = &sessionEntry{Session: sess, Cancel: cancel}
	log.Info().Str("module", "app.sessions").Str("member", string(id)).Msg("bound session")
}

func (s *Sessions) Get(id domain.MemberID) (core.MemberSession, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if e, ok := s.sessions[id]; ok {
		return e.Session, true
	}
	return nil, false
}

func (s *Sessions) Unbind(id domain.MemberID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	log.Info().Str("module", "app.sessions").Str("member", string(id)).Msg("unbind session")
}

func (s *Sessions) Rename(id domain.MemberID, name string) error {
	sess, ok := s.Get(id)
	if !ok {
		return domain.ErrUnauthorized
	}
	if err := sess.Meta().SetName(name); err != nil {
		return err
	}
	log.Info().Str("module", "app.sessions").Str("member", string(id)).Str("name", name).Msg("updated name")
	return nil
}

// Cancel tears down the member's connection; cleanup follows from the
// transport read loop exiting.
func (s *Sessions) Cancel(id domain.MemberID) bool {
	s.mu.RLock()
	e, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return false
	}
	if e.Cancel != nil {
		e.Cancel()
	}
	log.Info().Str("module", "app.sessions").Str("member", string(id)).Msg("canceled session")
	return true
}

func (s *Sessions) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
