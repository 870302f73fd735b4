package clients

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkral/clueroom/internal/room"
)

func roomServer(t *testing.T, handler http.HandlerFunc) *RoomClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewRoomClient(srv.URL, "bob")
}

func TestRoomStateStripsSecretsForGuesser(t *testing.T) {
	t.Parallel()

	c := roomServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/room/7", r.URL.Path)
		w.Write([]byte(`{
			"id": 7, "status": "waiting_description",
			"roundNumber": 1, "totalRounds": 3,
			"players": ["alice", "bob"], "scores": {"alice": 0, "bob": 0},
			"turn": "alice",
			"targetWord": "apple", "forbiddenWords": ["fruit", "red"]
		}`))
	})

	snap, err := c.RoomState(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, room.StatusWaitingDescription, snap.Status)
	assert.Equal(t, "alice", snap.DescriberName)
	// bob is not the describer; the word material must not survive parsing.
	assert.Empty(t, snap.TargetWord)
	assert.Empty(t, snap.ForbiddenWords)
}

func TestRoomStateServerError(t *testing.T) {
	t.Parallel()

	c := roomServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "room not found", http.StatusNotFound)
	})

	_, err := c.RoomState(context.Background(), 7)
	assert.Error(t, err)
}

func TestChatHistoryMapsWireMessages(t *testing.T) {
	t.Parallel()

	c := roomServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/room/7/chat", r.URL.Path)
		assert.Equal(t, "current", r.URL.Query().Get("round"))
		assert.Equal(t, "200", r.URL.Query().Get("limit"))
		w.Write([]byte(`{"ok": true, "messages": [
			{"user": "alice", "text": "it grows on trees", "ts": "2025-03-01T12:00:00Z", "type": "HINT"},
			{"user": "bob", "text": "pear?", "ts": "2025-03-01T12:00:05Z", "type": "nonsense"}
		]}`))
	})

	entries, err := c.ChatHistory(context.Background(), 7, room.HistoryScope{
		Round: room.ScopeCurrentRound,
		Limit: 200,
	})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, room.ChatKindHint, entries[0].Kind)
	// Unknown wire kinds fall back to GENERAL.
	assert.Equal(t, room.ChatKindGeneral, entries[1].Kind)
}

func TestSubmitDescriptionRejectionIsAResultNotAnError(t *testing.T) {
	t.Parallel()

	c := roomServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/api/room/7/description", r.URL.Path)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"ok": false, "error": "forbidden_word_used", "which": "fruit"}`))
	})

	res, err := c.SubmitDescription(context.Background(), 7, "a kind of fruit")
	require.NoError(t, err)
	assert.False(t, res.OK)
	assert.Equal(t, "fruit", res.Which)
	assert.Equal(t, "forbidden_word_used", res.Err)
}

func TestSubmitGuess(t *testing.T) {
	t.Parallel()

	t.Run("incorrect", func(t *testing.T) {
		t.Parallel()
		c := roomServer(t, func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"correct": false, "message": "not quite"}`))
		})

		res, err := c.SubmitGuess(context.Background(), 7, "pear")
		require.NoError(t, err)
		assert.False(t, res.Correct)
		assert.Equal(t, "not quite", res.Message)
		assert.Nil(t, res.Winner)
	})

	t.Run("correct carries the winner announcement", func(t *testing.T) {
		t.Parallel()
		c := roomServer(t, func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{
				"correct": true, "winner": "bob", "word": "apple",
				"elapsedMs": 5400, "roundNumber": 2, "totalRounds": 3,
				"gameCompleted": false
			}`))
		})

		res, err := c.SubmitGuess(context.Background(), 7, "apple")
		require.NoError(t, err)
		assert.True(t, res.Correct)
		require.NotNil(t, res.Winner)
		assert.Equal(t, "bob", res.Winner.WinnerName)
		assert.Equal(t, int64(5400), res.Winner.ElapsedMs)
		assert.Equal(t, 2, res.Winner.RoundNumber)
	})
}
