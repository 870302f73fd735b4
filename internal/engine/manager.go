package engine

import (
	"context"
	"sync"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// Manager owns the room views of one local player: at most one live
// session or review navigator per room.
type Manager struct {
	cfg       Config
	localUser string
	api       RoomAPI
	push      PushSource
	sink      Sink
	clock     clockwork.Clock
	ctx       context.Context

	mu       sync.Mutex
	sessions map[int]*Session
	reviews  map[int]*ReviewNavigator
}

// NewManager creates a session manager. ctx bounds every session it
// opens.
func NewManager(ctx context.Context, cfg Config, localUser string, api RoomAPI, push PushSource, sink Sink, clock clockwork.Clock) *Manager {
	return &Manager{
		cfg:       cfg,
		localUser: localUser,
		api:       api,
		push:      push,
		sink:      sink,
		clock:     clock,
		ctx:       ctx,
		sessions:  make(map[int]*Session),
		reviews:   make(map[int]*ReviewNavigator),
	}
}

// OpenLive returns the room's live session, starting one if needed. A
// room in review mode is switched back to live.
func (m *Manager) OpenLive(roomID int) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.reviews, roomID)
	if s, ok := m.sessions[roomID]; ok {
		return s, nil
	}

	s := NewSession(m.cfg, roomID, m.localUser, m.api, m.push, m.sink, m.clock)
	s.Start(m.ctx)
	m.sessions[roomID] = s
	return s, nil
}

// Session returns the live session for a room, if one is running.
func (m *Manager) Session(roomID int) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[roomID]
	return s, ok
}

// OpenReview replaces any live session for the room with a frozen review
// navigator loaded at the given round. Live transports are torn down
// first; review mode never runs them.
func (m *Manager) OpenReview(roomID, round int) (*ReviewNavigator, error) {
	m.mu.Lock()
	if s, ok := m.sessions[roomID]; ok {
		delete(m.sessions, roomID)
		m.mu.Unlock()
		s.Close()
		m.mu.Lock()
	}
	nav, ok := m.reviews[roomID]
	if !ok {
		nav = NewReviewNavigator(m.cfg, roomID, m.localUser, m.api, m.sink)
		m.reviews[roomID] = nav
	}
	m.mu.Unlock()

	if err := nav.Load(m.ctx, round); err != nil {
		return nil, err
	}
	return nav, nil
}

// CloseRoom tears down whatever view the room has.
func (m *Manager) CloseRoom(roomID int) {
	m.mu.Lock()
	s, ok := m.sessions[roomID]
	delete(m.sessions, roomID)
	delete(m.reviews, roomID)
	m.mu.Unlock()

	if ok {
		s.Close()
		log.Info().Int("room_id", roomID).Msg("room view closed")
	}
}

// CloseAll tears down every open view.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.sessions = make(map[int]*Session)
	m.reviews = make(map[int]*ReviewNavigator)
	m.mu.Unlock()

	for _, s := range sessions {
		s.Close()
	}
}
