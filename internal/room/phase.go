package room

// Phase is the lifecycle phase the engine derives from the snapshot. It
// extends the wire status with the terminal game-over phase, which the
// server never reports as a round status.
type Phase string

const (
	PhaseWaiting            Phase = "waiting"
	PhaseWaitingDescription Phase = "waiting_description"
	PhaseActive             Phase = "active"
	PhaseCompleted          Phase = "completed"
	PhaseGameCompleted      Phase = "game_completed"
)

// DescriberStage is the sub-phase of waiting_description visible only to
// the describer.
type DescriberStage string

const (
	StageNone DescriberStage = ""
	// StageGenerating means the word material has not arrived yet.
	StageGenerating DescriberStage = "generating"
	// StageReady means the word material is present and a clue may be
	// submitted.
	StageReady DescriberStage = "ready"
	// StageVerifying means a clue was submitted and the server has not
	// confirmed or rejected it yet.
	StageVerifying DescriberStage = "verifying"
)

// ScoreEntry is one leaderboard row.
type ScoreEntry struct {
	Name  string `json:"name"`
	Score int    `json:"score"`
}

// View is the immutable render of one reconciliation cycle: phase, role,
// and the set of legal intents. All submit gating happens here, at the
// model level, so a reviewer can never reach a submit path no matter what
// the presentation layer does.
type View struct {
	RoomID      int            `json:"room_id"`
	RoundNumber int            `json:"round_number"`
	TotalRounds int            `json:"total_rounds"`
	Phase       Phase          `json:"phase"`
	Stage       DescriberStage `json:"stage,omitempty"`
	Role        string         `json:"role"`

	Players     []string       `json:"players"`
	Scores      map[string]int `json:"scores"`
	Description string         `json:"description,omitempty"`

	// TargetWord and ForbiddenWords are only set for the describer.
	TargetWord     string   `json:"target_word,omitempty"`
	ForbiddenWords []string `json:"forbidden_words,omitempty"`

	CanSubmitDescription bool `json:"can_submit_description"`
	CanSubmitGuess       bool `json:"can_submit_guess"`
	CanChat              bool `json:"can_chat"`

	// Leaderboard is populated only when the game is over.
	Leaderboard []ScoreEntry `json:"leaderboard,omitempty"`
}

// DeriveView computes the view for a snapshot. verifying is the local
// describer flag set between clue submission and server confirmation;
// gameOver marks the terminal phase after the last round's winner
// announcement has been consumed.
func DeriveView(s *Snapshot, role Role, verifying, gameOver bool) View {
	v := View{
		Role:                 role.String(),
		CanSubmitDescription: false,
		CanSubmitGuess:       false,
		CanChat:              false,
	}
	if s == nil {
		v.Phase = PhaseWaiting
		return v
	}

	v.RoomID = s.RoomID
	v.RoundNumber = s.RoundNumber
	v.TotalRounds = s.TotalRounds
	v.Players = append([]string(nil), s.Players...)
	v.Scores = make(map[string]int, len(s.Scores))
	for name, score := range s.Scores {
		v.Scores[name] = score
	}
	v.Description = s.Description

	switch s.Status {
	case StatusWaiting:
		v.Phase = PhaseWaiting
	case StatusWaitingDescription:
		v.Phase = PhaseWaitingDescription
	case StatusActive:
		v.Phase = PhaseActive
	case StatusCompleted:
		v.Phase = PhaseCompleted
	}
	if gameOver {
		v.Phase = PhaseGameCompleted
		v.Leaderboard = TopScores(s.Players, s.Scores, 3)
	}

	if role == RoleDescriber {
		v.TargetWord = s.TargetWord
		v.ForbiddenWords = append([]string(nil), s.ForbiddenWords...)
		if v.Phase == PhaseWaitingDescription {
			switch {
			case verifying:
				v.Stage = StageVerifying
			case s.SecretReady():
				v.Stage = StageReady
			default:
				v.Stage = StageGenerating
			}
		}
	}

	// Intent gating. A review spectator may submit nothing, ever.
	if role != RoleReviewSpectator {
		v.CanSubmitDescription = role == RoleDescriber && v.Stage == StageReady
		v.CanSubmitGuess = role == RoleGuesser && v.Phase == PhaseActive
		// The describer cannot chat while describing, and nobody chats
		// into a finished round.
		v.CanChat = role == RoleGuesser && v.Phase != PhaseCompleted && v.Phase != PhaseGameCompleted
	}

	return v
}

// TopScores returns the top n scorers in descending score order. Ties keep
// the players' order in the snapshot, so the result is deterministic for a
// given snapshot.
func TopScores(players []string, scores map[string]int, n int) []ScoreEntry {
	entries := make([]ScoreEntry, 0, len(players))
	for _, name := range players {
		entries = append(entries, ScoreEntry{Name: name, Score: scores[name]})
	}
	// Insertion sort keeps the tie order stable and the input is tiny.
	for i := 1; i < len(entries); i++ {
		for j := i; j > 0 && entries[j].Score > entries[j-1].Score; j-- {
			entries[j], entries[j-1] = entries[j-1], entries[j]
		}
	}
	if len(entries) > n {
		entries = entries[:n]
	}
	return entries
}
