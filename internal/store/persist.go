// Persister is the SQL-store side of the write log's drain: the
// idempotent apply step for each JobType (spec.md §4.3's "each job_type's
// DB action must be idempotent under replay"). The concrete
// implementation is PGPersister (pg_persister.go), backed by
// github.com/jackc/pgx/v5, grounded on the teacher's internal/db package.
package store

import (
	"context"
	"time"

	"evoladder/internal/domain"
)

// Persister is the boundary the write log drains through.
type Persister interface {
	CreatePlayer(ctx context.Context, p CreatePlayerPayload) error
	UpdatePlayerInfo(ctx context.Context, p UpdatePlayerInfoPayload) error
	UpdateMMR(ctx context.Context, p UpdateMMRPayload) error
	CreateMatch(ctx context.Context, m CreateMatchPayload) error
	UpdateMatchReport(ctx context.Context, p UpdateMatchReportPayload) error
	UpdateMatchResultAndMMRChange(ctx context.Context, p UpdateMatchResultPayload) error
	UpdateMatchReplayPath(ctx context.Context, p UpdateMatchReplayPathPayload) error
	AdminResolveMatch(ctx context.Context, p AdminResolveMatchPayload) error
	ClearMatchReports(ctx context.Context, p ClearMatchReportsPayload) error
	UpsertReplay(ctx context.Context, p UpsertReplayPayload) error
	UpdateRemainingAborts(ctx context.Context, p UpdateRemainingAbortsPayload) error
	UpdateIsBanned(ctx context.Context, p UpdateIsBannedPayload) error
	UpdateShieldBatteryBug(ctx context.Context, p UpdateShieldBatteryBugPayload) error
	LogAdminAction(ctx context.Context, p LogAdminActionPayload) error
	LogPlayerAction(ctx context.Context, p LogPlayerActionPayload) error
	LogCommandCall(ctx context.Context, p LogCommandCallPayload) error

	// LoadAll reconstructs every table for restart recovery (spec.md
	// §4.11 startup step 4: "Load In-Memory Store (C4) from DB").
	LoadAll(ctx context.Context) (Snapshot, error)
}

// Snapshot is the full table set loaded back into memory at startup,
// before pending write-log jobs are replayed on top of it.
type Snapshot struct {
	Players      []domain.Player
	Ratings      []domain.PerRaceRating
	Matches      []domain.Match
	Replays      []domain.Replay
	AdminActions []domain.AdminAction
}

type CreatePlayerPayload struct {
	DiscordUID int64 `json:"discord_uid"`
}

type UpdatePlayerInfoPayload struct {
	DiscordUID       int64    `json:"discord_uid"`
	DisplayName      string   `json:"display_name"`
	Tag              string   `json:"tag"`
	AltNames         []string `json:"alt_names"`
	Country          string   `json:"country"`
	Region           string   `json:"region"`
	AcceptedTOS      bool     `json:"accepted_tos"`
	SetupComplete    bool     `json:"setup_complete"`
	ShieldBatteryAck bool     `json:"shield_battery_ack"`
	State            string   `json:"state"`
}

type UpdateMMRPayload struct {
	DiscordUID  int64      `json:"discord_uid"`
	Race        string     `json:"race"`
	MMR         int        `json:"mmr"`
	GamesPlayed int        `json:"games_played"`
	GamesWon    int        `json:"games_won"`
	GamesLost   int        `json:"games_lost"`
	GamesDrawn  int        `json:"games_drawn"`
	LastPlayed  *time.Time `json:"last_played,omitempty"`
}

type CreateMatchPayload struct {
	ID           int64     `json:"id"`
	Player1UID   int64     `json:"player_1_discord_uid"`
	Player2UID   int64     `json:"player_2_discord_uid"`
	Player1Race  string    `json:"player_1_race"`
	Player2Race  string    `json:"player_2_race"`
	Map          string    `json:"map_played"`
	ServerUsed   string    `json:"server_used"`
	CreatedAt    time.Time `json:"created_at"`
	Player1MMR   int       `json:"player_1_mmr"`
	Player2MMR   int       `json:"player_2_mmr"`
}

type UpdateMatchReportPayload struct {
	MatchID       int64 `json:"match_id"`
	Player1Report *int8 `json:"player_1_report"`
	Player2Report *int8 `json:"player_2_report"`
}

type UpdateMatchResultPayload struct {
	MatchID    int64     `json:"match_id"`
	Result     int8      `json:"match_result"`
	MMRChange  int       `json:"mmr_change"`
	PlayedAt   time.Time `json:"played_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type UpdateMatchReplayPathPayload struct {
	MatchID int64  `json:"match_id"`
	Side    int    `json:"side"`
	Path    string `json:"path"`
}

// AdminResolveMatchPayload carries the absolute post-resolution values so
// the DB apply step is a pure SET, matching the idempotent-by-design
// contract in spec.md §4.10: re-applying the same payload twice leaves
// the same final state.
type AdminResolveMatchPayload struct {
	MatchID      int64     `json:"match_id"`
	Result       int8      `json:"match_result"`
	MMRChange    int       `json:"mmr_change"`
	Player1MMR   int       `json:"player_1_mmr_new"`
	Player2MMR   int       `json:"player_2_mmr_new"`
	Player1Race  string    `json:"player_1_race"`
	Player2Race  string    `json:"player_2_race"`
	Player1UID   int64     `json:"player_1_discord_uid"`
	Player2UID   int64     `json:"player_2_discord_uid"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// ClearMatchReportsPayload nulls out both reports on a match (spec.md
// §4.10 "fresh-match resolution": reports are simulated transiently to
// drive the normal completion flow, then restored to null in persistence).
type ClearMatchReportsPayload struct {
	MatchID int64 `json:"match_id"`
}

type UpsertReplayPayload struct {
	Path        string `json:"path"`
	MetadataRaw []byte `json:"metadata_json"`
	UploadedAt  time.Time `json:"uploaded_at"`
	UploaderUID int64  `json:"uploader_uid"`
	MatchID     int64  `json:"match_id"`
	Side        int    `json:"side"`
}

type UpdateRemainingAbortsPayload struct {
	DiscordUID      int64 `json:"discord_uid"`
	RemainingAborts int   `json:"remaining_aborts"`
}

type UpdateIsBannedPayload struct {
	DiscordUID int64 `json:"discord_uid"`
	IsBanned   bool  `json:"is_banned"`
}

type UpdateShieldBatteryBugPayload struct {
	DiscordUID       int64 `json:"discord_uid"`
	ShieldBatteryAck bool  `json:"shield_battery_bug"`
}

type LogAdminActionPayload struct {
	ID           int64                  `json:"id"`
	AdminUID     int64                  `json:"admin_discord_uid"`
	AdminName    string                 `json:"admin_username"`
	ActionType   string                 `json:"action_type"`
	TargetPlayer *int64                 `json:"target_player_uid,omitempty"`
	TargetMatch  *int64                 `json:"target_match_id,omitempty"`
	Detail       map[string]interface{} `json:"action_details_json"`
	Reason       string                 `json:"reason"`
	PerformedAt  time.Time              `json:"performed_at"`
}

type LogPlayerActionPayload struct {
	DiscordUID int64                  `json:"discord_uid"`
	Action     string                 `json:"action"`
	Detail     map[string]interface{} `json:"detail"`
	At         time.Time              `json:"at"`
}

type LogCommandCallPayload struct {
	DiscordUID int64                  `json:"discord_uid"`
	Command    string                 `json:"command"`
	Detail     map[string]interface{} `json:"detail"`
	At         time.Time              `json:"at"`
}
