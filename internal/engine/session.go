package engine

import (
	"context"
	"errors"
	"reflect"
	"sync"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mkral/clueroom/internal/room"
	"github.com/mkral/clueroom/internal/timer"
)

// ErrIntentNotAllowed is returned when a submit intent is illegal for the
// viewer's current role and phase. The check runs against the model, not
// the presentation, so disabled controls upstream are not trusted.
var ErrIntentNotAllowed = errors.New("intent not allowed in current state")

// Session is one live room view: both update sources running, one
// reconciler, one chat log, timers. All reconciliation runs on a single
// sequencing goroutine; the two sources only ever enqueue inputs.
type Session struct {
	cfg       Config
	roomID    int
	localUser string

	api   RoomAPI
	push  PushSource
	sink  Sink
	clock clockwork.Clock

	rec    *room.Reconciler
	chat   *room.ChatLog
	timers *timer.Service

	ops    chan func()
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu       sync.RWMutex
	lastView room.View
}

// NewSession assembles a live session. Call Start to attach the sources.
func NewSession(cfg Config, roomID int, localUser string, api RoomAPI, push PushSource, sink Sink, clock clockwork.Clock) *Session {
	return &Session{
		cfg:       cfg,
		roomID:    roomID,
		localUser: localUser,
		api:       api,
		push:      push,
		sink:      sink,
		clock:     clock,
		rec:       room.NewReconciler(localUser, false),
		chat:      room.NewChatLog(0),
		timers:    timer.NewService(clock),
		ops:       make(chan func(), 64),
		done:      make(chan struct{}),
	}
}

// Start launches the sequencing loop, the polling loop, and the push
// subscription. It returns immediately.
func (s *Session) Start(ctx context.Context) {
	s.ctx, s.cancel = context.WithCancel(ctx)

	go s.run()
	go s.pollLoop()
	go s.subscribePush()

	log.Info().
		Int("room_id", s.roomID).
		Str("user", s.localUser).
		Msg("room session started")
}

// Close tears the session down: polling stops, the push listener
// unsubscribes, timers are cleared, and no further model mutation can
// happen. Safe to call more than once.
func (s *Session) Close() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	s.timers.Stop()
	<-s.done
	log.Info().Int("room_id", s.roomID).Msg("room session closed")
}

// View returns the last derived view.
func (s *Session) View() room.View {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastView
}

// ChatEntries returns the current chat log. Only valid between Start and
// Close; for display, not for mutation.
func (s *Session) ChatEntries() []room.ChatEntry {
	out := make(chan []room.ChatEntry, 1)
	if !s.post(func() { out <- s.chat.Entries() }) {
		return nil
	}
	select {
	case entries := <-out:
		return entries
	case <-s.ctx.Done():
		return nil
	}
}

// run is the single sequencing goroutine. The cancellation token is
// checked before every queued operation, so a late-arriving input can
// never mutate the model after teardown.
func (s *Session) run() {
	defer close(s.done)
	for {
		select {
		case <-s.ctx.Done():
			return
		case op := <-s.ops:
			if s.ctx.Err() != nil {
				return
			}
			op()
		}
	}
}

// post enqueues an operation for the sequencing loop. Inputs arriving
// after teardown are dropped.
func (s *Session) post(op func()) bool {
	if s.ctx.Err() != nil {
		return false
	}
	select {
	case s.ops <- op:
		return true
	case <-s.ctx.Done():
		return false
	}
}

// pollLoop fetches the room snapshot on a fixed interval. A failed tick is
// logged and silently retried on the next interval; the interval itself is
// the backoff.
func (s *Session) pollLoop() {
	tick := func() {
		snap, err := s.api.RoomState(s.ctx, s.roomID)
		if err != nil {
			if s.ctx.Err() == nil {
				log.Debug().Err(err).Int("room_id", s.roomID).Msg("poll tick failed, retrying next interval")
			}
			return
		}
		s.post(func() { s.applySnapshot(snap) })
	}

	tick()
	ticker := s.clock.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.Chan():
			tick()
		}
	}
}

// subscribePush attaches the push listener, retrying on failure. Polling
// keeps the view converging while the push channel is down.
func (s *Session) subscribePush() {
	for {
		unsub, err := s.push.Subscribe(s.ctx, s.roomID, func(ev *room.Event) {
			s.post(func() { s.applyEvent(ev) })
		})
		if err == nil {
			defer unsub()
			<-s.ctx.Done()
			return
		}
		if s.ctx.Err() != nil {
			return
		}
		log.Warn().Err(err).Int("room_id", s.roomID).Msg("push subscribe failed, retrying")

		wait := s.clock.NewTimer(s.cfg.PushRetryInterval)
		select {
		case <-s.ctx.Done():
			wait.Stop()
			return
		case <-wait.Chan():
		}
	}
}

// applySnapshot and applyEvent run on the sequencing loop only.

func (s *Session) applySnapshot(snap *room.Snapshot) {
	effects := s.rec.ApplySnapshot(snap)
	s.finishCycle(effects)
}

func (s *Session) applyEvent(ev *room.Event) {
	effects, err := s.rec.ApplyEvent(ev)
	if err != nil {
		// Malformed payloads never crash the reconciliation loop.
		log.Error().Err(err).Str("event_type", string(ev.Type)).Msg("dropping malformed push event")
		return
	}
	s.finishCycle(effects)
}

// finishCycle executes effect intents that belong to the engine (timers,
// chat maintenance, countdown) and publishes the rest with the new view.
func (s *Session) finishCycle(effects []room.Effect) {
	chatChanged := false

	for _, e := range effects {
		switch e.Kind {
		case room.EffectStartRoundTimer:
			startedAt := *e.StartedAt
			s.timers.StartElapsed(s.ctx, startedAt, func(display string) {
				s.sink.Publish(s.roomID, Update{TimerText: display})
			})
		case room.EffectStopRoundTimer:
			s.timers.StopElapsed()
		case room.EffectResetChat:
			s.chat.Reset(e.Round)
			chatChanged = true
			go s.loadHistory(e.Round)
		case room.EffectAppendChat:
			s.chat.AppendLive(*e.Chat)
			chatChanged = true
		case room.EffectStartCountdown:
			s.startCountdown(e.Round)
		}
	}

	view := s.rec.View()
	s.mu.Lock()
	viewChanged := !reflect.DeepEqual(s.lastView, view)
	s.lastView = view
	s.mu.Unlock()

	if len(effects) == 0 && !viewChanged {
		return
	}
	upd := Update{Effects: effects}
	if viewChanged || len(effects) > 0 {
		v := view
		upd.View = &v
	}
	if chatChanged {
		upd.Chat = s.chat.Entries()
	}
	s.sink.Publish(s.roomID, upd)
}

// startCountdown runs the fixed between-rounds countdown and emits the
// navigation intent when it expires. It never runs for a completed game;
// the reconciler routes that case to final results instead.
func (s *Session) startCountdown(nextRound int) {
	s.timers.StartCountdown(s.ctx, s.cfg.CountdownSeconds,
		func(remaining int) {
			r := remaining
			s.sink.Publish(s.roomID, Update{Countdown: &r})
		},
		func() {
			s.post(func() {
				s.finishCycle(s.rec.CountdownFinished())
				s.sink.Publish(s.roomID, Update{
					Navigate: &NavigationIntent{RoomID: s.roomID, Round: nextRound},
				})
			})
		})
}

// loadHistory runs the one-shot chat history fetch for a round. A fetch
// that lands after the log moved to another round is discarded.
func (s *Session) loadHistory(round int) {
	entries, err := s.api.ChatHistory(s.ctx, s.roomID, room.HistoryScope{
		Round: room.ScopeCurrentRound,
		Limit: s.cfg.ChatHistoryLimit,
	})
	if err != nil {
		if s.ctx.Err() == nil {
			log.Debug().Err(err).Int("room_id", s.roomID).Msg("chat history fetch failed")
		}
		return
	}
	s.post(func() {
		if s.chat.Round() != round {
			return
		}
		s.chat.LoadHistory(entries)
		s.sink.Publish(s.roomID, Update{Chat: s.chat.Entries()})
	})
}

// SubmitDescription sends the describer's clue. The legality check runs
// against the model; a rejection (forbidden term) loops the describer back
// to READY without touching round state.
func (s *Session) SubmitDescription(text string) error {
	if !s.View().CanSubmitDescription {
		return ErrIntentNotAllowed
	}
	go func() {
		res, err := s.api.SubmitDescription(s.ctx, s.roomID, text)
		if err != nil {
			if s.ctx.Err() == nil {
				log.Warn().Err(err).Int("room_id", s.roomID).Msg("description submit failed")
				s.post(func() {
					s.finishCycle(s.rec.DescriptionRejected("", "submission failed, try again"))
				})
			}
			return
		}
		s.post(func() {
			if res.OK {
				s.finishCycle(s.rec.BeginVerifying())
			} else {
				s.finishCycle(s.rec.DescriptionRejected(res.Which, res.Err))
			}
		})
	}()
	return nil
}

// SubmitGuess sends a guess. A correct one is folded into the winner path,
// the same consumption as the round:won push event.
func (s *Session) SubmitGuess(text string) error {
	if !s.View().CanSubmitGuess {
		return ErrIntentNotAllowed
	}
	go func() {
		res, err := s.api.SubmitGuess(s.ctx, s.roomID, text)
		if err != nil {
			if s.ctx.Err() == nil {
				log.Warn().Err(err).Int("room_id", s.roomID).Msg("guess submit failed")
			}
			return
		}
		s.post(func() {
			s.finishCycle(s.rec.ApplyGuessResult(res))
		})
	}()
	return nil
}
