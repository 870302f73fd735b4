package room

import (
	"reflect"
	"time"

	"github.com/rs/zerolog/log"
)

// EffectKind names a side-effect intent produced by reconciliation. The
// reconciler never executes effects itself; the session loop and the UI
// bridge do.
type EffectKind string

const (
	EffectStartRoundTimer     EffectKind = "start_round_timer"
	EffectStopRoundTimer      EffectKind = "stop_round_timer"
	EffectShowDescriberPanel  EffectKind = "show_describer_panel"
	EffectShowWaitingPanel    EffectKind = "show_waiting_panel"
	EffectHideRoundPanels     EffectKind = "hide_round_panels"
	EffectShowWinner          EffectKind = "show_winner"
	EffectStartCountdown      EffectKind = "start_countdown"
	EffectShowFinalResults    EffectKind = "show_final_results"
	EffectResetChat           EffectKind = "reset_chat"
	EffectAppendChat          EffectKind = "append_chat"
	EffectDescriptionRejected EffectKind = "description_rejected"
	EffectGuessFeedback       EffectKind = "guess_feedback"
)

// Effect is one side-effect intent. Only the fields relevant to its kind
// are set.
type Effect struct {
	Kind        EffectKind          `json:"kind"`
	StartedAt   *time.Time          `json:"started_at,omitempty"`
	Winner      *WinnerAnnouncement `json:"winner,omitempty"`
	Chat        *ChatEntry          `json:"chat,omitempty"`
	Round       int                 `json:"round,omitempty"`
	Which       string              `json:"which,omitempty"`
	Message     string              `json:"message,omitempty"`
	Leaderboard []ScoreEntry        `json:"leaderboard,omitempty"`
}

// Reconciler merges the two update sources, polling snapshots and push
// events, into the one Snapshot Model. It is the model's only writer; the
// session loop serializes all calls, so no locking happens here. Every
// method is a pure step from (current state, input) to (new state,
// effects) and never blocks.
type Reconciler struct {
	localUser string
	review    bool

	snap          *Snapshot
	verifying     bool
	betweenRounds bool
	gameOver      bool

	wonRounds  map[int]bool
	seenEvents map[string]bool
}

// NewReconciler returns a reconciler for the given local viewer. In review
// mode ordering rules are bypassed (the navigator replaces the model
// wholesale per round) and no effects are ever produced.
func NewReconciler(localUser string, review bool) *Reconciler {
	return &Reconciler{
		localUser:  localUser,
		review:     review,
		wonRounds:  make(map[int]bool),
		seenEvents: make(map[string]bool),
	}
}

// Snapshot returns a copy of the current model, or nil before the first
// reconciliation.
func (r *Reconciler) Snapshot() *Snapshot {
	return r.snap.Clone()
}

// View derives the current render from the model.
func (r *Reconciler) View() View {
	role := DeriveRole(r.snap, r.localUser, r.review)
	return DeriveView(r.snap, role, r.verifying, r.gameOver)
}

// BetweenRounds reports whether the between-rounds countdown lock is
// active.
func (r *Reconciler) BetweenRounds() bool {
	return r.betweenRounds
}

// GameOver reports whether the terminal phase has been reached.
func (r *Reconciler) GameOver() bool {
	return r.gameOver
}

// ApplySnapshot merges one poll response into the model. Snapshots that
// would regress the round or its phase are discarded; a byte-identical
// snapshot produces zero effects.
func (r *Reconciler) ApplySnapshot(snap *Snapshot) []Effect {
	if snap == nil {
		return nil
	}

	if r.review {
		// Frozen render: replace wholesale, no ordering, no effects.
		r.snap = snap.Clone()
		r.verifying = false
		return nil
	}

	if r.snap != nil {
		if snap.RoundNumber < r.snap.RoundNumber {
			log.Debug().
				Int("round", snap.RoundNumber).
				Int("current", r.snap.RoundNumber).
				Msg("discarding snapshot for an earlier round")
			return nil
		}
		if snap.RoundNumber == r.snap.RoundNumber && snap.Status.rank() < r.snap.Status.rank() {
			log.Debug().
				Str("status", string(snap.Status)).
				Str("current", string(r.snap.Status)).
				Msg("discarding snapshot that would regress round phase")
			return nil
		}
		if reflect.DeepEqual(r.snap, snap) {
			return nil
		}
	}

	prev := r.snap
	roundChanged := prev == nil || snap.RoundNumber != prev.RoundNumber
	r.snap = snap.Clone()

	var effects []Effect

	if roundChanged {
		// The between-rounds lock is NOT cleared here: while the
		// countdown is on screen, the next round's data flows into the
		// model but must not flip panels. CountdownFinished releases it.
		r.verifying = false
		r.seenEvents = make(map[string]bool)
		effects = append(effects, Effect{Kind: EffectResetChat, Round: snap.RoundNumber})
	}
	if snap.Status == StatusActive {
		r.verifying = false
	}

	// Elapsed timer follows the active status, recomputed from the start
	// instant on every (re)start.
	if snap.Status == StatusActive && snap.StartedAt != nil {
		if prev == nil || prev.Status != StatusActive || !timeEqual(prev.StartedAt, snap.StartedAt) {
			effects = append(effects, Effect{Kind: EffectStartRoundTimer, StartedAt: snap.StartedAt})
		}
	} else if prev != nil && prev.Status == StatusActive {
		effects = append(effects, Effect{Kind: EffectStopRoundTimer})
	}

	// Panel visibility. Suppressed while the between-rounds countdown is
	// on screen; the model above was still updated.
	if !r.betweenRounds {
		role := DeriveRole(r.snap, r.localUser, false)
		switch snap.Status {
		case StatusWaitingDescription:
			if role == RoleDescriber {
				effects = append(effects, Effect{Kind: EffectShowDescriberPanel})
			} else {
				effects = append(effects, Effect{Kind: EffectShowWaitingPanel})
			}
		case StatusActive:
			if prev == nil || prev.Status != StatusActive {
				effects = append(effects, Effect{Kind: EffectHideRoundPanels})
			}
		}
	}

	// A snapshot flipping to completed is an observation of the round's
	// winner, equivalent to the push event carrying the same fact.
	if snap.Status == StatusCompleted {
		ann := WinnerAnnouncement{
			WinnerName:    snap.WinnerName,
			RoundNumber:   snap.RoundNumber,
			TotalRounds:   snap.TotalRounds,
			GameCompleted: snap.RoundNumber >= snap.TotalRounds,
		}
		effects = append(effects, r.consumeWinner(ann)...)
	}

	return effects
}

// ApplyEvent merges one push event into the model. Events for rounds the
// client has already advanced past are discarded, as are duplicate
// deliveries of the same event ID.
func (r *Reconciler) ApplyEvent(ev *Event) ([]Effect, error) {
	if ev == nil || r.review {
		return nil, nil
	}
	if ev.ID != "" {
		if r.seenEvents[ev.ID] {
			return nil, nil
		}
		r.seenEvents[ev.ID] = true
	}

	payload, err := ParseEventPayload(ev)
	if err != nil {
		return nil, err
	}

	switch p := payload.(type) {
	case ChatNewPayload:
		return r.applyChatNew(ev, p), nil
	case DescriptionPayload:
		return r.applyDescription(p), nil
	case RoundWonPayload:
		return r.applyRoundWon(p), nil
	default:
		return nil, nil
	}
}

func (r *Reconciler) applyChatNew(ev *Event, p ChatNewPayload) []Effect {
	kind := ChatKind(p.Kind)
	switch kind {
	case ChatKindGeneral, ChatKindHint, ChatKindGuess, ChatKindSystem:
	default:
		kind = ChatKindGeneral
	}
	entry := ChatEntry{
		Author:    p.User,
		Text:      p.Text,
		Timestamp: ev.Timestamp,
		Kind:      kind,
	}
	// Chat keeps flowing during the between-rounds countdown; only panel
	// visibility is locked.
	return []Effect{{Kind: EffectAppendChat, Chat: &entry}}
}

func (r *Reconciler) applyDescription(p DescriptionPayload) []Effect {
	if r.snap == nil {
		// Nothing to refine yet; the next poll tick delivers the full
		// round state.
		return nil
	}
	if p.RoundNumber > 0 && p.RoundNumber < r.snap.RoundNumber {
		return nil
	}
	if r.snap.Status.rank() > StatusActive.rank() {
		return nil
	}
	startedAt := p.StartedAt
	if r.snap.Status == StatusActive &&
		r.snap.Description == p.Description &&
		timeEqual(r.snap.StartedAt, &startedAt) {
		return nil
	}

	r.snap.Description = p.Description
	r.snap.Status = StatusActive
	r.snap.StartedAt = &startedAt
	r.verifying = false

	effects := []Effect{{Kind: EffectStartRoundTimer, StartedAt: r.snap.StartedAt}}
	if !r.betweenRounds {
		effects = append(effects, Effect{Kind: EffectHideRoundPanels})
	}
	return effects
}

func (r *Reconciler) applyRoundWon(p RoundWonPayload) []Effect {
	if r.snap != nil && p.RoundNumber > 0 && p.RoundNumber < r.snap.RoundNumber {
		log.Debug().
			Int("round", p.RoundNumber).
			Int("current", r.snap.RoundNumber).
			Msg("discarding round:won for an earlier round")
		return nil
	}
	ann := WinnerAnnouncement{
		WinnerName:    p.Winner,
		Word:          p.Word,
		ElapsedMs:     p.ElapsedMs,
		RoundNumber:   p.RoundNumber,
		TotalRounds:   p.TotalRounds,
		GameCompleted: p.GameCompleted,
	}
	if ann.RoundNumber == 0 && r.snap != nil {
		ann.RoundNumber = r.snap.RoundNumber
		ann.TotalRounds = r.snap.TotalRounds
	}
	return r.consumeWinner(ann)
}

// ApplyGuessResult folds the response to the local player's own guess into
// the model. A correct guess is the third observation channel for the
// round's winner.
func (r *Reconciler) ApplyGuessResult(res GuessResult) []Effect {
	if r.review {
		return nil
	}
	if res.Correct && res.Winner != nil {
		return r.consumeWinner(*res.Winner)
	}
	return []Effect{{Kind: EffectGuessFeedback, Message: res.Message}}
}

// BeginVerifying moves the describer from READY to VERIFYING after the
// clue was sent and accepted for validation.
func (r *Reconciler) BeginVerifying() []Effect {
	if r.review || r.snap == nil || r.snap.Status != StatusWaitingDescription {
		return nil
	}
	if DeriveRole(r.snap, r.localUser, false) != RoleDescriber {
		return nil
	}
	r.verifying = true
	return []Effect{{Kind: EffectShowDescriberPanel}}
}

// DescriptionRejected returns the describer to READY with the offending
// forbidden term. The round number and status are untouched; this is a
// recoverable local loop.
func (r *Reconciler) DescriptionRejected(which, message string) []Effect {
	if r.review {
		return nil
	}
	r.verifying = false
	return []Effect{
		{Kind: EffectDescriptionRejected, Which: which, Message: message},
		{Kind: EffectShowDescriberPanel},
	}
}

// CountdownFinished releases the between-rounds presentation lock and
// re-emits the panel visibility that was suppressed while the countdown
// ran, derived from whatever state the model reached in the meantime.
func (r *Reconciler) CountdownFinished() []Effect {
	if !r.betweenRounds {
		return nil
	}
	r.betweenRounds = false
	if r.snap == nil {
		return nil
	}

	role := DeriveRole(r.snap, r.localUser, false)
	switch r.snap.Status {
	case StatusWaitingDescription:
		if role == RoleDescriber {
			return []Effect{{Kind: EffectShowDescriberPanel}}
		}
		return []Effect{{Kind: EffectShowWaitingPanel}}
	case StatusActive:
		return []Effect{{Kind: EffectHideRoundPanels}}
	default:
		return nil
	}
}

// consumeWinner handles one WinnerAnnouncement exactly once per round, no
// matter which channel delivered it, and decides between the countdown to
// the next round and the final results.
func (r *Reconciler) consumeWinner(ann WinnerAnnouncement) []Effect {
	if r.review {
		return nil
	}
	if r.wonRounds[ann.RoundNumber] {
		return nil
	}
	r.wonRounds[ann.RoundNumber] = true

	if r.snap != nil && r.snap.RoundNumber == ann.RoundNumber {
		r.snap.Status = StatusCompleted
		if ann.WinnerName != "" {
			r.snap.WinnerName = ann.WinnerName
		}
	}
	r.verifying = false

	effects := []Effect{
		{Kind: EffectStopRoundTimer},
		{Kind: EffectHideRoundPanels},
		{Kind: EffectShowWinner, Winner: &ann},
	}

	if ann.GameCompleted || (ann.TotalRounds > 0 && ann.RoundNumber >= ann.TotalRounds) {
		r.gameOver = true
		var board []ScoreEntry
		if r.snap != nil {
			board = TopScores(r.snap.Players, r.snap.Scores, 3)
		}
		effects = append(effects, Effect{Kind: EffectShowFinalResults, Leaderboard: board})
	} else {
		r.betweenRounds = true
		effects = append(effects, Effect{Kind: EffectStartCountdown, Round: ann.RoundNumber + 1})
	}
	return effects
}

func timeEqual(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}
