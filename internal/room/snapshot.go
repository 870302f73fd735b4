package room

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// Status is the lifecycle status of the current round as reported by the
// game server.
type Status string

const (
	StatusWaiting            Status = "waiting"
	StatusWaitingDescription Status = "waiting_description"
	StatusActive             Status = "active"
	StatusCompleted          Status = "completed"
)

// rank orders statuses so the reconciler can reject updates that would move
// a round's phase backward. Equal rank is a legal refinement.
func (s Status) rank() int {
	switch s {
	case StatusWaiting:
		return 0
	case StatusWaitingDescription:
		return 1
	case StatusActive:
		return 2
	case StatusCompleted:
		return 3
	default:
		return -1
	}
}

// Valid reports whether the status is one the engine knows.
func (s Status) Valid() bool {
	return s.rank() >= 0
}

// Role is the viewer's role for the round, recomputed on every
// reconciliation and never cached across snapshots.
type Role int

const (
	RoleGuesser Role = iota
	RoleDescriber
	RoleReviewSpectator
)

func (r Role) String() string {
	switch r {
	case RoleDescriber:
		return "describer"
	case RoleReviewSpectator:
		return "review_spectator"
	default:
		return "guesser"
	}
}

// Snapshot is the canonical in-memory representation of one round's state.
// It is replaced wholesale on each reconciliation; the reconciler is its
// only writer.
type Snapshot struct {
	RoomID      int
	RoundNumber int
	TotalRounds int
	Status      Status
	Players     []string
	Scores      map[string]int
	Description string
	// DescriberName is the player whose turn it is to describe.
	DescriberName string
	StartedAt     *time.Time
	WinnerName    string

	// TargetWord and ForbiddenWords are only ever populated when the local
	// viewer is the describer for the round. ParseSnapshot strips them
	// otherwise, regardless of what the payload carried.
	TargetWord     string
	ForbiddenWords []string
}

// wireSnapshot mirrors the room-state JSON the game server returns.
type wireSnapshot struct {
	ID             int            `json:"id"`
	Status         string         `json:"status"`
	Description    *string        `json:"description"`
	Scores         map[string]int `json:"scores"`
	Players        []string       `json:"players"`
	Turn           *string        `json:"turn"`
	StartedAt      *time.Time     `json:"startedAt"`
	Winner         *string        `json:"winner"`
	RoundNumber    int            `json:"roundNumber"`
	TotalRounds    int            `json:"totalRounds"`
	TargetWord     *string        `json:"targetWord"`
	ForbiddenWords []string       `json:"forbiddenWords"`
	Error          *string        `json:"error"`
}

// ParseSnapshot decodes a room-state payload into a Snapshot for the given
// local viewer. The secret fields are dropped at this boundary whenever the
// viewer is not the describer; a snapshot that leaks them is a server bug
// and a game-breaking spoiler, so stripping here is a correctness
// requirement rather than a nicety.
func ParseSnapshot(data []byte, localUser string) (*Snapshot, error) {
	var w wireSnapshot
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("unmarshal room snapshot: %w", err)
	}
	if w.Error != nil {
		return nil, fmt.Errorf("room-state error: %s", *w.Error)
	}

	status := Status(w.Status)
	if !status.Valid() {
		return nil, fmt.Errorf("unknown room status %q", w.Status)
	}
	if w.RoundNumber < 1 {
		return nil, fmt.Errorf("invalid round number %d", w.RoundNumber)
	}
	if w.TotalRounds < w.RoundNumber {
		return nil, fmt.Errorf("total rounds %d below round number %d", w.TotalRounds, w.RoundNumber)
	}

	snap := &Snapshot{
		RoomID:      w.ID,
		RoundNumber: w.RoundNumber,
		TotalRounds: w.TotalRounds,
		Status:      status,
		Players:     append([]string(nil), w.Players...),
		Scores:      make(map[string]int, len(w.Scores)),
		StartedAt:   w.StartedAt,
	}
	for name, score := range w.Scores {
		if score < 0 {
			score = 0
		}
		snap.Scores[name] = score
	}
	if w.Description != nil {
		snap.Description = *w.Description
	}
	if w.Turn != nil {
		snap.DescriberName = *w.Turn
	}
	if w.Winner != nil {
		snap.WinnerName = *w.Winner
	}

	if snap.DescriberName == localUser {
		if w.TargetWord != nil {
			snap.TargetWord = *w.TargetWord
		}
		snap.ForbiddenWords = append([]string(nil), w.ForbiddenWords...)
	} else if w.TargetWord != nil || len(w.ForbiddenWords) > 0 {
		log.Warn().
			Int("room_id", w.ID).
			Int("round", w.RoundNumber).
			Msg("snapshot leaked secret fields to a non-describer, stripped")
	}

	return snap, nil
}

// Clone returns a deep copy of the snapshot.
func (s *Snapshot) Clone() *Snapshot {
	if s == nil {
		return nil
	}
	c := *s
	c.Players = append([]string(nil), s.Players...)
	c.ForbiddenWords = append([]string(nil), s.ForbiddenWords...)
	c.Scores = make(map[string]int, len(s.Scores))
	for name, score := range s.Scores {
		c.Scores[name] = score
	}
	if s.StartedAt != nil {
		t := *s.StartedAt
		c.StartedAt = &t
	}
	return &c
}

// SecretReady reports whether the describer's word material has arrived.
func (s *Snapshot) SecretReady() bool {
	return s.TargetWord != "" && len(s.ForbiddenWords) > 0
}

// DeriveRole computes the viewer's role for a snapshot. Review mode wins
// over everything else: a reviewer is never a describer, even for rounds
// they described live.
func DeriveRole(s *Snapshot, localUser string, review bool) Role {
	if review {
		return RoleReviewSpectator
	}
	if s != nil && s.DescriberName != "" && s.DescriberName == localUser {
		return RoleDescriber
	}
	return RoleGuesser
}
