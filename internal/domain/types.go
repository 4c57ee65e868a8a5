// Package domain holds the entities owned exclusively by the in-memory
// store (spec.md §3): Player, PerRaceRating, Match, Replay, AdminAction,
// and the small enumerations (Report, MatchResult, PlayerState) they are
// built from. Kept separate from internal/store so internal/match,
// internal/queue, internal/admin, and internal/replay can share these
// types without importing the store's mutation surface.
package domain

import "time"

// PlayerState is a player's lifecycle position.
type PlayerState string

const (
	StateIdle      PlayerState = "idle"
	StateQueued    PlayerState = "queued"
	StateMatched   PlayerState = "matched"
	StateReporting PlayerState = "reporting"
)

// Player is the persistent identity record (spec.md §3 "Player").
type Player struct {
	DiscordUID       int64
	DisplayName      string
	Tag              string // "name#digits", optional
	AltNames         []string
	Country          string // ISO-2
	Region           string
	AcceptedTOS      bool
	SetupComplete    bool
	IsBanned         bool
	ShieldBatteryAck bool
	RemainingAborts  int
	State            PlayerState
}

// Race is one of the six (game, race) codes from the catalog.
type Race = string

// PerRaceRating is the per-(player, race) skill record.
type PerRaceRating struct {
	DiscordUID  int64
	Race        Race
	MMR         int
	GamesPlayed int
	GamesWon    int
	GamesLost   int
	GamesDrawn  int
	LastPlayed  *time.Time
}

// Report is a player's self-reported outcome, stored in the common
// "player 1 frame" (spec.md §4.7): 1 means "player 1 won" regardless of
// which player submitted it.
type Report int8

const (
	ReportP1Win      Report = 1
	ReportP2Win      Report = 2
	ReportDraw       Report = 0
	ReportAbort      Report = -3
	ReportNoResponse Report = -4
)

// MatchResult is the adjudicated terminal (or pending-conflict) outcome.
type MatchResult int8

const (
	ResultP1Win       MatchResult = 1
	ResultP2Win       MatchResult = 2
	ResultDraw        MatchResult = 0
	ResultInvalidated MatchResult = -1
	ResultConflict    MatchResult = -2
)

// IsTerminal reports whether a result ends the match lifecycle.
func (r MatchResult) IsTerminal() bool {
	switch r {
	case ResultP1Win, ResultP2Win, ResultDraw, ResultInvalidated:
		return true
	default:
		return false
	}
}

// Match is a single pairing from creation through terminal resolution.
type Match struct {
	ID                 int64
	Player1UID         int64
	Player2UID         int64
	Player1Race        Race
	Player2Race        Race
	Map                string
	ServerRegion       string
	CreatedAt          time.Time
	PlayedAt           *time.Time
	P1MMR              int // frozen at creation, never mutated thereafter
	P2MMR              int // frozen at creation, never mutated thereafter
	Player1Report      *Report
	Player2Report      *Report
	Result             *MatchResult
	MMRChange          *int // signed relative to player 1
	Player1ReplayPath  *string
	Player2ReplayPath  *string
	UpdatedAt          time.Time
}

// ReplayMetadata is what the sandboxed parser worker reports back.
type ReplayMetadata struct {
	PlayerNames     []string
	Races           []string
	Map             string
	DurationSeconds int
	Observers       []string
	CacheHandles    []string
	WinnerAsParsed  int // 1 or 2, 0 if undetermined
}

// Replay is an uploaded and parsed artifact linked to one side of a match.
type Replay struct {
	Path        string
	Metadata    ReplayMetadata
	UploadedAt  time.Time
	UploaderUID int64
	MatchID     int64
	Side        int // 1 or 2
}

// AdminAction is an audit-only record, never consulted by core logic.
type AdminAction struct {
	ID             int64
	AdminUID       int64
	AdminName      string
	ActionType     string
	TargetPlayer   *int64
	TargetMatch    *int64
	Detail         map[string]interface{}
	Reason         string
	PerformedAt    time.Time
}
