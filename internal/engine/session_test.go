package engine

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkral/clueroom/internal/room"
)

// stubAPI implements RoomAPI with overridable func fields.
type stubAPI struct {
	roomState         func(ctx context.Context, roomID int) (*room.Snapshot, error)
	roundState        func(ctx context.Context, roomID, round int) (*room.Snapshot, error)
	chatHistory       func(ctx context.Context, roomID int, scope room.HistoryScope) ([]room.ChatEntry, error)
	submitDescription func(ctx context.Context, roomID int, text string) (room.DescriptionResult, error)
	submitGuess       func(ctx context.Context, roomID int, text string) (room.GuessResult, error)
}

func (s *stubAPI) RoomState(ctx context.Context, roomID int) (*room.Snapshot, error) {
	return s.roomState(ctx, roomID)
}

func (s *stubAPI) RoundState(ctx context.Context, roomID, round int) (*room.Snapshot, error) {
	return s.roundState(ctx, roomID, round)
}

func (s *stubAPI) ChatHistory(ctx context.Context, roomID int, scope room.HistoryScope) ([]room.ChatEntry, error) {
	if s.chatHistory == nil {
		return []room.ChatEntry{}, nil
	}
	return s.chatHistory(ctx, roomID, scope)
}

func (s *stubAPI) SubmitDescription(ctx context.Context, roomID int, text string) (room.DescriptionResult, error) {
	return s.submitDescription(ctx, roomID, text)
}

func (s *stubAPI) SubmitGuess(ctx context.Context, roomID int, text string) (room.GuessResult, error) {
	return s.submitGuess(ctx, roomID, text)
}

// fakePush captures the deliver callback so tests can inject events.
type fakePush struct {
	mu         sync.Mutex
	deliver    func(*room.Event)
	subscribed chan struct{}
}

func newFakePush() *fakePush {
	return &fakePush{subscribed: make(chan struct{})}
}

func (f *fakePush) Subscribe(ctx context.Context, roomID int, deliver func(*room.Event)) (func(), error) {
	f.mu.Lock()
	f.deliver = deliver
	f.mu.Unlock()
	close(f.subscribed)
	return func() {}, nil
}

func (f *fakePush) inject(ev *room.Event) {
	f.mu.Lock()
	deliver := f.deliver
	f.mu.Unlock()
	deliver(ev)
}

// chanSink funnels published updates into a channel.
type chanSink struct {
	updates chan Update
}

func newChanSink() *chanSink {
	return &chanSink{updates: make(chan Update, 256)}
}

func (c *chanSink) Publish(roomID int, upd Update) {
	select {
	case c.updates <- upd:
	default:
	}
}

// waitFor reads updates until pred matches one, failing the test on
// timeout.
func waitFor(t *testing.T, sink *chanSink, what string, pred func(Update) bool) Update {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case upd := <-sink.updates:
			if pred(upd) {
				return upd
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s", what)
			return Update{}
		}
	}
}

func hasEffect(upd Update, kind room.EffectKind) bool {
	for _, e := range upd.Effects {
		if e.Kind == kind {
			return true
		}
	}
	return false
}

func testConfig() Config {
	cfg := DefaultConfig()
	// Polling is driven by the test clock or not at all; keep the interval
	// out of the way.
	cfg.PollInterval = time.Hour
	cfg.CountdownSeconds = 1
	return cfg
}

func guesserSnap(status room.Status, round, total int) *room.Snapshot {
	return &room.Snapshot{
		RoomID:        7,
		RoundNumber:   round,
		TotalRounds:   total,
		Status:        status,
		Players:       []string{"alice", "bob"},
		Scores:        map[string]int{"alice": 0, "bob": 0},
		DescriberName: "alice",
	}
}

func TestSessionPublishesInitialView(t *testing.T) {
	api := &stubAPI{
		roomState: func(ctx context.Context, roomID int) (*room.Snapshot, error) {
			return guesserSnap(room.StatusWaitingDescription, 1, 3), nil
		},
	}
	sink := newChanSink()
	sess := NewSession(testConfig(), 7, "bob", api, newFakePush(), sink, clockwork.NewFakeClock())
	sess.Start(context.Background())
	defer sess.Close()

	upd := waitFor(t, sink, "initial view", func(u Update) bool { return u.View != nil })
	assert.Equal(t, room.PhaseWaitingDescription, upd.View.Phase)
	assert.Equal(t, "guesser", upd.View.Role)
	assert.True(t, hasEffect(upd, room.EffectShowWaitingPanel))

	view := sess.View()
	assert.False(t, view.CanSubmitGuess)
	assert.True(t, view.CanChat)
}

func TestPushChatEventReachesTheLog(t *testing.T) {
	api := &stubAPI{
		roomState: func(ctx context.Context, roomID int) (*room.Snapshot, error) {
			return guesserSnap(room.StatusActive, 1, 3), nil
		},
	}
	push := newFakePush()
	sink := newChanSink()
	sess := NewSession(testConfig(), 7, "bob", api, push, sink, clockwork.NewFakeClock())
	sess.Start(context.Background())
	defer sess.Close()

	waitFor(t, sink, "initial view", func(u Update) bool { return u.View != nil })
	<-push.subscribed

	data, err := json.Marshal(room.ChatNewPayload{User: "alice", Text: "it grows on trees", Kind: "HINT"})
	require.NoError(t, err)
	push.inject(&room.Event{
		ID:        "chat-1",
		RoomID:    7,
		Type:      room.EventTypeChatNew,
		Timestamp: time.Now(),
		Data:      data,
	})

	upd := waitFor(t, sink, "chat update", func(u Update) bool {
		return hasEffect(u, room.EffectAppendChat)
	})
	require.NotEmpty(t, upd.Chat)
	last := upd.Chat[len(upd.Chat)-1]
	assert.Equal(t, "alice", last.Author)
	assert.Equal(t, room.ChatKindHint, last.Kind)
}

func TestRoundWonRunsCountdownThenNavigates(t *testing.T) {
	clock := clockwork.NewFakeClock()
	api := &stubAPI{
		roomState: func(ctx context.Context, roomID int) (*room.Snapshot, error) {
			return guesserSnap(room.StatusActive, 2, 3), nil
		},
	}
	push := newFakePush()
	sink := newChanSink()
	sess := NewSession(testConfig(), 7, "bob", api, push, sink, clock)
	sess.Start(context.Background())
	defer sess.Close()

	waitFor(t, sink, "initial view", func(u Update) bool { return u.View != nil })
	<-push.subscribed

	data, err := json.Marshal(room.RoundWonPayload{
		Winner: "alice", Word: "apple", RoundNumber: 2, TotalRounds: 3,
	})
	require.NoError(t, err)
	push.inject(&room.Event{
		ID: "won-2", RoomID: 7, Type: room.EventTypeRoundWon,
		Timestamp: time.Now(), Data: data,
	})

	upd := waitFor(t, sink, "winner effects", func(u Update) bool {
		return hasEffect(u, room.EffectShowWinner)
	})
	assert.True(t, hasEffect(upd, room.EffectStartCountdown))

	waitFor(t, sink, "countdown tick", func(u Update) bool {
		return u.Countdown != nil && *u.Countdown == 1
	})

	// Two fake-clock waiters: the poll ticker and the countdown ticker.
	clock.BlockUntil(2)
	clock.Advance(time.Second)

	nav := waitFor(t, sink, "navigation intent", func(u Update) bool {
		return u.Navigate != nil
	})
	assert.Equal(t, NavigationIntent{RoomID: 7, Round: 3}, *nav.Navigate)
}

func TestSubmitGuessGatedByModel(t *testing.T) {
	guessed := make(chan string, 1)
	api := &stubAPI{
		roomState: func(ctx context.Context, roomID int) (*room.Snapshot, error) {
			return guesserSnap(room.StatusActive, 1, 3), nil
		},
		submitGuess: func(ctx context.Context, roomID int, text string) (room.GuessResult, error) {
			guessed <- text
			return room.GuessResult{Correct: false, Message: "not quite"}, nil
		},
	}
	sink := newChanSink()
	sess := NewSession(testConfig(), 7, "bob", api, newFakePush(), sink, clockwork.NewFakeClock())

	// Before any reconciliation the model permits nothing.
	assert.ErrorIs(t, sess.SubmitGuess("apple"), ErrIntentNotAllowed)

	sess.Start(context.Background())
	defer sess.Close()
	waitFor(t, sink, "initial view", func(u Update) bool { return u.View != nil })

	require.NoError(t, sess.SubmitGuess("pear"))
	assert.Equal(t, "pear", <-guessed)

	upd := waitFor(t, sink, "guess feedback", func(u Update) bool {
		return hasEffect(u, room.EffectGuessFeedback)
	})
	for _, e := range upd.Effects {
		if e.Kind == room.EffectGuessFeedback {
			assert.Equal(t, "not quite", e.Message)
		}
	}
}

func TestSubmitDescriptionRejectionLoopsToReady(t *testing.T) {
	snap := guesserSnap(room.StatusWaitingDescription, 1, 3)
	snap.TargetWord = "apple"
	snap.ForbiddenWords = []string{"fruit", "red"}
	api := &stubAPI{
		roomState: func(ctx context.Context, roomID int) (*room.Snapshot, error) {
			return snap.Clone(), nil
		},
		submitDescription: func(ctx context.Context, roomID int, text string) (room.DescriptionResult, error) {
			return room.DescriptionResult{OK: false, Which: "fruit", Err: "forbidden_word_used"}, nil
		},
	}
	sink := newChanSink()
	sess := NewSession(testConfig(), 7, "alice", api, newFakePush(), sink, clockwork.NewFakeClock())
	sess.Start(context.Background())
	defer sess.Close()

	waitFor(t, sink, "describer view", func(u Update) bool {
		return u.View != nil && u.View.Stage == room.StageReady
	})

	require.NoError(t, sess.SubmitDescription("a crunchy red thing"))

	upd := waitFor(t, sink, "rejection", func(u Update) bool {
		return hasEffect(u, room.EffectDescriptionRejected)
	})
	for _, e := range upd.Effects {
		if e.Kind == room.EffectDescriptionRejected {
			assert.Equal(t, "fruit", e.Which)
		}
	}
	require.NotNil(t, upd.View)
	assert.Equal(t, room.StageReady, upd.View.Stage, "rejection returns the describer to ready, not generating")
	assert.Equal(t, 1, upd.View.RoundNumber)
}

func TestTeardownDropsLateInputs(t *testing.T) {
	api := &stubAPI{
		roomState: func(ctx context.Context, roomID int) (*room.Snapshot, error) {
			return guesserSnap(room.StatusActive, 1, 3), nil
		},
	}
	push := newFakePush()
	sink := newChanSink()
	sess := NewSession(testConfig(), 7, "bob", api, push, sink, clockwork.NewFakeClock())
	sess.Start(context.Background())

	waitFor(t, sink, "initial view", func(u Update) bool { return u.View != nil })
	<-push.subscribed

	sess.Close()
	for len(sink.updates) > 0 {
		<-sink.updates
	}

	// A push delivery landing after teardown must neither panic nor
	// publish.
	data, err := json.Marshal(room.ChatNewPayload{User: "alice", Text: "too late"})
	require.NoError(t, err)
	push.inject(&room.Event{
		ID: "late-1", RoomID: 7, Type: room.EventTypeChatNew,
		Timestamp: time.Now(), Data: data,
	})

	select {
	case upd := <-sink.updates:
		t.Fatalf("update published after close: %+v", upd)
	case <-time.After(50 * time.Millisecond):
	}

	// Close is idempotent.
	sess.Close()
}
