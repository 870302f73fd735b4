package room

import "time"

// ChatKind classifies a chat line.
type ChatKind string

const (
	ChatKindGeneral ChatKind = "GENERAL"
	ChatKindHint    ChatKind = "HINT"
	ChatKindGuess   ChatKind = "GUESS"
	ChatKindSystem  ChatKind = "SYSTEM"
)

// ChatEntry is one line of room chat.
type ChatEntry struct {
	Author    string    `json:"author"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
	Kind      ChatKind  `json:"kind"`
}

// RoundScope selects which rounds a chat history fetch covers.
type RoundScope string

const (
	ScopeCurrentRound RoundScope = "current"
	ScopeAllRounds    RoundScope = "all"
)

// HistoryScope parameterizes a chat history fetch.
type HistoryScope struct {
	Round RoundScope
	Limit int
}

// ChatLog is the append-only ordered chat view for one round. History is
// loaded once per round in server-returned order; live entries are appended
// in push-delivery order and never re-sorted.
type ChatLog struct {
	round   int
	entries []ChatEntry
	loaded  bool
}

// NewChatLog returns an empty log scoped to the given round.
func NewChatLog(round int) *ChatLog {
	return &ChatLog{round: round}
}

// Round returns the round the log is scoped to.
func (l *ChatLog) Round() int {
	return l.round
}

// HistoryLoaded reports whether the one-shot history fetch has landed.
func (l *ChatLog) HistoryLoaded() bool {
	return l.loaded
}

// Reset clears the log and rescopes it to a new round. Any live entries
// that arrived for the old round are discarded; the caller is expected to
// reload history for the new round.
func (l *ChatLog) Reset(round int) {
	l.round = round
	l.entries = nil
	l.loaded = false
}

// LoadHistory installs the one-shot history fetch result. Live entries that
// raced ahead of the fetch are kept after the history block.
func (l *ChatLog) LoadHistory(entries []ChatEntry) {
	live := l.entries
	l.entries = append(append([]ChatEntry(nil), entries...), live...)
	l.loaded = true
}

// AppendLive appends one entry delivered by the push channel.
func (l *ChatLog) AppendLive(entry ChatEntry) {
	if entry.Kind == "" {
		entry.Kind = ChatKindGeneral
	}
	l.entries = append(l.entries, entry)
}

// Entries returns a copy of the log in order.
func (l *ChatLog) Entries() []ChatEntry {
	return append([]ChatEntry(nil), l.entries...)
}

// Len returns the number of entries.
func (l *ChatLog) Len() int {
	return len(l.entries)
}
