package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/mkral/clueroom/internal/room"
)

// RoomClient talks to the game server's room API on behalf of one local
// player. Snapshots pass through room.ParseSnapshot, so secret-field
// stripping happens before any payload reaches the engine.
type RoomClient struct {
	base      *BaseClient
	localUser string
}

func NewRoomClient(baseURL, localUser string) *RoomClient {
	return &RoomClient{
		base:      NewBaseClient(baseURL),
		localUser: localUser,
	}
}

// RoomState fetches the current round's snapshot.
func (c *RoomClient) RoomState(ctx context.Context, roomID int) (*room.Snapshot, error) {
	status, body, err := c.base.Get(ctx, fmt.Sprintf("/api/room/%d", roomID))
	if err != nil {
		return nil, err
	}
	if status < 200 || status >= 300 {
		return nil, fmt.Errorf("room-state returned %d: %s", status, body)
	}
	return room.ParseSnapshot(body, c.localUser)
}

// RoundState fetches one specific round's snapshot, for review mode and
// for the post-countdown navigation to the next round.
func (c *RoomClient) RoundState(ctx context.Context, roomID, round int) (*room.Snapshot, error) {
	status, body, err := c.base.Get(ctx, fmt.Sprintf("/api/room/%d/round/%d", roomID, round))
	if err != nil {
		return nil, err
	}
	if status < 200 || status >= 300 {
		return nil, fmt.Errorf("round-state returned %d: %s", status, body)
	}
	return room.ParseSnapshot(body, c.localUser)
}

type wireChatMessage struct {
	User string    `json:"user"`
	Text string    `json:"text"`
	Ts   time.Time `json:"ts"`
	Type string    `json:"type"`
}

type wireChatHistory struct {
	OK       bool              `json:"ok"`
	Messages []wireChatMessage `json:"messages"`
	Error    string            `json:"error"`
}

// ChatHistory fetches the chat transcript, in server order.
func (c *RoomClient) ChatHistory(ctx context.Context, roomID int, scope room.HistoryScope) ([]room.ChatEntry, error) {
	params := url.Values{}
	if scope.Round != "" {
		params.Set("round", string(scope.Round))
	}
	if scope.Limit > 0 {
		params.Set("limit", strconv.Itoa(scope.Limit))
	}
	status, body, err := c.base.Get(ctx, fmt.Sprintf("/api/room/%d/chat?%s", roomID, params.Encode()))
	if err != nil {
		return nil, err
	}
	var w wireChatHistory
	if err := json.Unmarshal(body, &w); err != nil {
		return nil, fmt.Errorf("unmarshal chat history: %w", err)
	}
	if status < 200 || status >= 300 || !w.OK {
		return nil, fmt.Errorf("chat-history returned %d: %s", status, w.Error)
	}

	entries := make([]room.ChatEntry, 0, len(w.Messages))
	for _, m := range w.Messages {
		kind := room.ChatKind(m.Type)
		switch kind {
		case room.ChatKindGeneral, room.ChatKindHint, room.ChatKindGuess, room.ChatKindSystem:
		default:
			kind = room.ChatKindGeneral
		}
		entries = append(entries, room.ChatEntry{
			Author:    m.User,
			Text:      m.Text,
			Timestamp: m.Ts,
			Kind:      kind,
		})
	}
	return entries, nil
}

type wireDescriptionResponse struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
	Error   string `json:"error"`
	Which   string `json:"which"`
}

// SubmitDescription submits the describer's clue. A rejection for a
// forbidden term comes back as a normal result, not an error: the engine
// treats it as a recoverable local loop.
func (c *RoomClient) SubmitDescription(ctx context.Context, roomID int, text string) (room.DescriptionResult, error) {
	payload, err := json.Marshal(map[string]string{"description": text})
	if err != nil {
		return room.DescriptionResult{}, fmt.Errorf("marshal description: %w", err)
	}
	status, body, err := c.base.Put(ctx, fmt.Sprintf("/api/room/%d/description", roomID), bytes.NewReader(payload))
	if err != nil {
		return room.DescriptionResult{}, err
	}

	var w wireDescriptionResponse
	if err := json.Unmarshal(body, &w); err != nil {
		return room.DescriptionResult{}, fmt.Errorf("unmarshal description response (%d): %w", status, err)
	}
	if w.OK {
		return room.DescriptionResult{OK: true}, nil
	}
	return room.DescriptionResult{Which: w.Which, Err: w.Error}, nil
}

type wireGuessResponse struct {
	Correct       bool   `json:"correct"`
	Message       string `json:"message"`
	Error         string `json:"error"`
	Winner        string `json:"winner"`
	Word          string `json:"word"`
	ElapsedMs     int64  `json:"elapsedMs"`
	RoundNumber   int    `json:"roundNumber"`
	TotalRounds   int    `json:"totalRounds"`
	GameCompleted bool   `json:"gameCompleted"`
}

// SubmitGuess submits a guess. A correct guess carries the full winner
// announcement, which the engine folds into the same path as the
// round:won push event.
func (c *RoomClient) SubmitGuess(ctx context.Context, roomID int, text string) (room.GuessResult, error) {
	payload, err := json.Marshal(map[string]string{"guess": text})
	if err != nil {
		return room.GuessResult{}, fmt.Errorf("marshal guess: %w", err)
	}
	status, body, err := c.base.Put(ctx, fmt.Sprintf("/api/room/%d/guess", roomID), bytes.NewReader(payload))
	if err != nil {
		return room.GuessResult{}, err
	}

	var w wireGuessResponse
	if err := json.Unmarshal(body, &w); err != nil {
		return room.GuessResult{}, fmt.Errorf("unmarshal guess response (%d): %w", status, err)
	}
	if w.Error != "" {
		return room.GuessResult{Message: w.Error}, nil
	}

	res := room.GuessResult{Correct: w.Correct, Message: w.Message}
	if w.Correct {
		res.Winner = &room.WinnerAnnouncement{
			WinnerName:    w.Winner,
			Word:          w.Word,
			ElapsedMs:     w.ElapsedMs,
			RoundNumber:   w.RoundNumber,
			TotalRounds:   w.TotalRounds,
			GameCompleted: w.GameCompleted,
		}
	}
	return res, nil
}
