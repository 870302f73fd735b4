package room

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSnapshot(t *testing.T) {
	t.Parallel()

	payload := []byte(`{
		"id": 7,
		"status": "waiting_description",
		"description": null,
		"scores": {"alice": 100, "bob": 0},
		"players": ["alice", "bob"],
		"turn": "alice",
		"startedAt": null,
		"winner": null,
		"roundNumber": 2,
		"totalRounds": 3,
		"targetWord": "apple",
		"forbiddenWords": ["fruit", "red", "tree"]
	}`)

	t.Run("describer keeps secret fields", func(t *testing.T) {
		t.Parallel()
		snap, err := ParseSnapshot(payload, "alice")
		require.NoError(t, err)

		assert.Equal(t, 7, snap.RoomID)
		assert.Equal(t, 2, snap.RoundNumber)
		assert.Equal(t, 3, snap.TotalRounds)
		assert.Equal(t, StatusWaitingDescription, snap.Status)
		assert.Equal(t, "apple", snap.TargetWord)
		assert.Equal(t, []string{"fruit", "red", "tree"}, snap.ForbiddenWords)
		assert.True(t, snap.SecretReady())
	})

	t.Run("secret fields stripped for non-describer", func(t *testing.T) {
		t.Parallel()
		snap, err := ParseSnapshot(payload, "bob")
		require.NoError(t, err)

		assert.Empty(t, snap.TargetWord)
		assert.Empty(t, snap.ForbiddenWords)
		assert.False(t, snap.SecretReady())
		// Everything else survives.
		assert.Equal(t, "alice", snap.DescriberName)
		assert.Equal(t, 100, snap.Scores["alice"])
	})

	t.Run("active snapshot carries start instant", func(t *testing.T) {
		t.Parallel()
		snap, err := ParseSnapshot([]byte(`{
			"id": 7, "status": "active", "description": "a juicy thing",
			"scores": {}, "players": ["alice", "bob"], "turn": "alice",
			"startedAt": "2025-03-01T12:00:00Z",
			"roundNumber": 1, "totalRounds": 3
		}`), "bob")
		require.NoError(t, err)
		require.NotNil(t, snap.StartedAt)
		assert.Equal(t, time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC), snap.StartedAt.UTC())
		assert.Equal(t, "a juicy thing", snap.Description)
	})

	t.Run("rejects unknown status", func(t *testing.T) {
		t.Parallel()
		_, err := ParseSnapshot([]byte(`{"id":1,"status":"exploded","roundNumber":1,"totalRounds":1}`), "bob")
		assert.Error(t, err)
	})

	t.Run("rejects invalid round numbers", func(t *testing.T) {
		t.Parallel()
		_, err := ParseSnapshot([]byte(`{"id":1,"status":"waiting","roundNumber":0,"totalRounds":1}`), "bob")
		assert.Error(t, err)

		_, err = ParseSnapshot([]byte(`{"id":1,"status":"waiting","roundNumber":3,"totalRounds":2}`), "bob")
		assert.Error(t, err)
	})

	t.Run("rejects error payload", func(t *testing.T) {
		t.Parallel()
		_, err := ParseSnapshot([]byte(`{"error":"not_in_game"}`), "bob")
		assert.Error(t, err)
	})

	t.Run("negative scores clamp to zero", func(t *testing.T) {
		t.Parallel()
		snap, err := ParseSnapshot([]byte(`{
			"id":1,"status":"waiting","scores":{"alice":-5},
			"players":["alice"],"roundNumber":1,"totalRounds":1
		}`), "bob")
		require.NoError(t, err)
		assert.Equal(t, 0, snap.Scores["alice"])
	})
}

func TestDeriveRole(t *testing.T) {
	t.Parallel()

	snap := &Snapshot{DescriberName: "alice"}

	assert.Equal(t, RoleDescriber, DeriveRole(snap, "alice", false))
	assert.Equal(t, RoleGuesser, DeriveRole(snap, "bob", false))
	// Review mode wins even for the player who described the round live.
	assert.Equal(t, RoleReviewSpectator, DeriveRole(snap, "alice", true))
	assert.Equal(t, RoleGuesser, DeriveRole(nil, "bob", false))
}

func TestSnapshotClone(t *testing.T) {
	t.Parallel()

	start := time.Now()
	orig := &Snapshot{
		RoundNumber:    1,
		TotalRounds:    2,
		Players:        []string{"alice", "bob"},
		Scores:         map[string]int{"alice": 100},
		ForbiddenWords: []string{"fruit"},
		StartedAt:      &start,
	}
	clone := orig.Clone()

	clone.Players[0] = "mallory"
	clone.Scores["alice"] = 0
	clone.ForbiddenWords[0] = "changed"
	*clone.StartedAt = start.Add(time.Hour)

	assert.Equal(t, "alice", orig.Players[0])
	assert.Equal(t, 100, orig.Scores["alice"])
	assert.Equal(t, "fruit", orig.ForbiddenWords[0])
	assert.True(t, orig.StartedAt.Equal(start))
}
