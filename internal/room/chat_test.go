package room

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chatLine(author, text string, kind ChatKind) ChatEntry {
	return ChatEntry{
		Author:    author,
		Text:      text,
		Timestamp: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
		Kind:      kind,
	}
}

func TestChatLogHistoryBeforeLive(t *testing.T) {
	t.Parallel()

	log := NewChatLog(1)

	// A live line races ahead of the history fetch.
	log.AppendLive(chatLine("bob", "is it a pear?", ChatKindGuess))
	require.False(t, log.HistoryLoaded())

	log.LoadHistory([]ChatEntry{
		chatLine("system", "Round 1 started", ChatKindSystem),
		chatLine("alice", "it grows on trees", ChatKindHint),
	})

	entries := log.Entries()
	require.Len(t, entries, 3)
	assert.Equal(t, "system", entries[0].Author)
	assert.Equal(t, "alice", entries[1].Author)
	assert.Equal(t, "bob", entries[2].Author)
	assert.True(t, log.HistoryLoaded())
}

func TestChatLogResetDiscardsOldRound(t *testing.T) {
	t.Parallel()

	log := NewChatLog(1)
	log.LoadHistory([]ChatEntry{chatLine("alice", "hello", ChatKindGeneral)})
	log.AppendLive(chatLine("bob", "hi", ChatKindGeneral))
	require.Equal(t, 2, log.Len())

	log.Reset(2)
	assert.Equal(t, 2, log.Round())
	assert.Zero(t, log.Len())
	assert.False(t, log.HistoryLoaded())
}

func TestChatLogAppendLiveDefaultsKind(t *testing.T) {
	t.Parallel()

	log := NewChatLog(1)
	log.AppendLive(ChatEntry{Author: "bob", Text: "hey"})

	entries := log.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, ChatKindGeneral, entries[0].Kind)
}

func TestChatLogEntriesIsACopy(t *testing.T) {
	t.Parallel()

	log := NewChatLog(1)
	log.AppendLive(chatLine("bob", "hey", ChatKindGeneral))

	entries := log.Entries()
	entries[0].Text = "mutated"
	assert.Equal(t, "hey", log.Entries()[0].Text)
}
