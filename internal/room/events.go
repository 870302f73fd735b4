package room

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventType identifies a push channel topic.
type EventType string

const (
	EventTypeChatNew          EventType = "chat:new"
	EventTypeRoundDescription EventType = "round:description"
	EventTypeRoundWon         EventType = "round:won"
)

// Event is the envelope for one push notification about a single change.
// Delivery is at-least-once and order-preserving per topic; the reconciler
// handles duplicates and stale rounds.
type Event struct {
	ID        string          `json:"id"`
	RoomID    int             `json:"room_id"`
	Type      EventType       `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// ChatNewPayload carries one new chat line.
type ChatNewPayload struct {
	User string `json:"user"`
	Text string `json:"text"`
	Kind string `json:"kind,omitempty"`
}

// DescriptionPayload announces the clue for the current round, flipping it
// to active.
type DescriptionPayload struct {
	Description string    `json:"description"`
	StartedAt   time.Time `json:"startedAt"`
	RoundNumber int       `json:"roundNumber,omitempty"`
}

// RoundWonPayload announces the winning guess for a round.
type RoundWonPayload struct {
	Winner        string `json:"winner"`
	Word          string `json:"word"`
	ElapsedMs     int64  `json:"elapsedMs"`
	RoundNumber   int    `json:"roundNumber"`
	TotalRounds   int    `json:"totalRounds"`
	GameCompleted bool   `json:"gameCompleted"`
}

// ParseEventPayload parses the event data into the payload struct for its
// type.
func ParseEventPayload(event *Event) (interface{}, error) {
	switch event.Type {
	case EventTypeChatNew:
		var payload ChatNewPayload
		if err := json.Unmarshal(event.Data, &payload); err != nil {
			return nil, fmt.Errorf("unmarshal %s payload: %w", event.Type, err)
		}
		return payload, nil

	case EventTypeRoundDescription:
		var payload DescriptionPayload
		if err := json.Unmarshal(event.Data, &payload); err != nil {
			return nil, fmt.Errorf("unmarshal %s payload: %w", event.Type, err)
		}
		return payload, nil

	case EventTypeRoundWon:
		var payload RoundWonPayload
		if err := json.Unmarshal(event.Data, &payload); err != nil {
			return nil, fmt.Errorf("unmarshal %s payload: %w", event.Type, err)
		}
		return payload, nil

	default:
		return nil, fmt.Errorf("unknown event type %q", event.Type)
	}
}

// WinnerAnnouncement is the ephemeral, event-sourced fact that a round was
// won. It can be observed through the push channel, through a snapshot
// flipping to completed, or through the caller's own correct guess
// response; all three feed the same consumption path and it is discarded
// once the follow-up (countdown or final results) has been issued.
type WinnerAnnouncement struct {
	WinnerName    string
	Word          string
	ElapsedMs     int64
	RoundNumber   int
	TotalRounds   int
	GameCompleted bool
}

// DescriptionResult is the outcome of a submit-description intent.
type DescriptionResult struct {
	OK bool
	// Which names the forbidden term that invalidated the clue, when the
	// server rejected it.
	Which string
	Err   string
}

// GuessResult is the outcome of a submit-guess intent. A correct guess
// doubles as a winner observation.
type GuessResult struct {
	Correct bool
	Message string
	Winner  *WinnerAnnouncement
}
