// Package engine runs the live-state synchronization loop for one room
// view: a polling loop and a push listener feeding a single reconciler,
// timers for the elapsed clock and the between-rounds countdown, and the
// review navigator for frozen historical rounds.
package engine

import (
	"context"
	"time"

	"github.com/mkral/clueroom/internal/room"
)

// RoomAPI is the REST collaborator contract the engine consumes. All
// methods are blocking; the engine calls them from dedicated goroutines
// and delivers results as discrete reconciliation inputs.
type RoomAPI interface {
	RoomState(ctx context.Context, roomID int) (*room.Snapshot, error)
	RoundState(ctx context.Context, roomID, round int) (*room.Snapshot, error)
	ChatHistory(ctx context.Context, roomID int, scope room.HistoryScope) ([]room.ChatEntry, error)
	SubmitDescription(ctx context.Context, roomID int, text string) (room.DescriptionResult, error)
	SubmitGuess(ctx context.Context, roomID int, text string) (room.GuessResult, error)
}

// PushSource is the push channel contract: at-least-once delivery,
// order-preserving per topic. Subscribe returns an unsubscribe func.
type PushSource interface {
	Subscribe(ctx context.Context, roomID int, deliver func(*room.Event)) (func(), error)
}

// NavigationIntent asks the routing collaborator to move to a round. The
// engine never navigates itself.
type NavigationIntent struct {
	RoomID int  `json:"room_id"`
	Round  int  `json:"round"`
	Review bool `json:"review"`
}

// Update is one batch of outputs from a reconciliation cycle or timer
// tick. Only the fields that changed are set.
type Update struct {
	View      *room.View        `json:"view,omitempty"`
	Effects   []room.Effect     `json:"effects,omitempty"`
	Chat      []room.ChatEntry  `json:"chat,omitempty"`
	TimerText string            `json:"timer_text,omitempty"`
	Countdown *int              `json:"countdown,omitempty"`
	Navigate  *NavigationIntent `json:"navigate,omitempty"`
}

// Sink receives engine updates, typically to fan out to UI clients.
// Publish must not block for long; slow consumers are the sink's problem.
type Sink interface {
	Publish(roomID int, upd Update)
}

// Config tunes one session.
type Config struct {
	// PollInterval is the room-state polling period. The fixed interval
	// doubles as the retry backoff for failed ticks.
	PollInterval time.Duration
	// CountdownSeconds is the between-rounds countdown length.
	CountdownSeconds int
	// ChatHistoryLimit caps one-shot history fetches.
	ChatHistoryLimit int
	// PushRetryInterval is how long to wait before retrying a failed
	// push subscription.
	PushRetryInterval time.Duration
}

// DefaultConfig matches the upstream client behavior.
func DefaultConfig() Config {
	return Config{
		PollInterval:      1500 * time.Millisecond,
		CountdownSeconds:  10,
		ChatHistoryLimit:  200,
		PushRetryInterval: 5 * time.Second,
	}
}
