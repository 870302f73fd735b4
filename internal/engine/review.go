package engine

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/mkral/clueroom/internal/room"
)

// ReviewNavigator pages through completed rounds as frozen renders. No
// polling, no push listener, no timers, no submit intents: the only I/O is
// the on-demand snapshot and transcript fetch per round.
type ReviewNavigator struct {
	cfg       Config
	roomID    int
	localUser string
	api       RoomAPI
	sink      Sink

	rec     *room.Reconciler
	chat    *room.ChatLog
	current int
	total   int
}

// NewReviewNavigator returns a navigator for one room. Call Load to fetch
// the first round.
func NewReviewNavigator(cfg Config, roomID int, localUser string, api RoomAPI, sink Sink) *ReviewNavigator {
	return &ReviewNavigator{
		cfg:       cfg,
		roomID:    roomID,
		localUser: localUser,
		api:       api,
		sink:      sink,
		rec:       room.NewReconciler(localUser, true),
		chat:      room.NewChatLog(0),
	}
}

// Load fetches one historical round and its transcript and publishes the
// frozen view. The target is clamped to [1, totalRounds], never wrapped.
func (n *ReviewNavigator) Load(ctx context.Context, target int) error {
	if target < 1 {
		target = 1
	}
	if n.total > 0 && target > n.total {
		target = n.total
	}

	snap, err := n.api.RoundState(ctx, n.roomID, target)
	if err != nil {
		return fmt.Errorf("load review round %d: %w", target, err)
	}
	// Review reconciliation is a wholesale replace and yields no effects.
	n.rec.ApplySnapshot(snap)
	n.current = snap.RoundNumber
	n.total = snap.TotalRounds

	n.chat.Reset(n.current)
	entries, err := n.api.ChatHistory(ctx, n.roomID, room.HistoryScope{
		Round: room.ScopeCurrentRound,
		Limit: n.cfg.ChatHistoryLimit,
	})
	if err != nil {
		// Transcript is best-effort; the frozen board still renders.
		log.Debug().Err(err).Int("room_id", n.roomID).Int("round", n.current).Msg("review transcript fetch failed")
	} else {
		n.chat.LoadHistory(entries)
	}

	view := n.rec.View()
	n.sink.Publish(n.roomID, Update{View: &view, Chat: n.chat.Entries()})

	log.Info().
		Int("room_id", n.roomID).
		Int("round", n.current).
		Int("total", n.total).
		Msg("review round loaded")
	return nil
}

// Next loads the following round, clamped at the last one.
func (n *ReviewNavigator) Next(ctx context.Context) error {
	return n.Load(ctx, n.current+1)
}

// Prev loads the previous round, clamped at the first one.
func (n *ReviewNavigator) Prev(ctx context.Context) error {
	return n.Load(ctx, n.current-1)
}

// View returns the current frozen render.
func (n *ReviewNavigator) View() room.View {
	return n.rec.View()
}

// ChatEntries returns the loaded transcript.
func (n *ReviewNavigator) ChatEntries() []room.ChatEntry {
	return n.chat.Entries()
}

// Round returns the round currently on display.
func (n *ReviewNavigator) Round() int {
	return n.current
}
