package store

import (
	"context"
	"fmt"

	json "github.com/goccy/go-json"
	"github.com/jackc/pgx/v5/pgxpool"

	"evoladder/internal/domain"
)

// PGPersister is the real SQL store of record, grounded on the teacher's
// internal/db.DB: a thin wrapper around a single pgxpool.Pool, one method
// per query, plain $N placeholders, no ORM.
type PGPersister struct {
	pool *pgxpool.Pool
}

// NewPGPersister creates a pool against dbURL and verifies connectivity,
// mirroring db.New's Ping-before-return contract.
func NewPGPersister(ctx context.Context, dbURL string) (*PGPersister, error) {
	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		return nil, fmt.Errorf("pg_persister: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pg_persister: ping: %w", err)
	}
	return &PGPersister{pool: pool}, nil
}

// Close releases the pool.
func (p *PGPersister) Close() { p.pool.Close() }

func (p *PGPersister) CreatePlayer(ctx context.Context, in CreatePlayerPayload) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO players (discord_uid, remaining_aborts, state)
		VALUES ($1, 3, 'idle')
		ON CONFLICT (discord_uid) DO NOTHING
	`, in.DiscordUID)
	return err
}

func (p *PGPersister) UpdatePlayerInfo(ctx context.Context, in UpdatePlayerInfoPayload) error {
	altNames, err := json.Marshal(in.AltNames)
	if err != nil {
		return fmt.Errorf("pg_persister: marshal alt_names: %w", err)
	}
	_, err = p.pool.Exec(ctx, `
		UPDATE players SET
			display_name = $2, tag = $3, alt_names = $4, country = $5, region = $6,
			accepted_tos = $7, setup_complete = $8, shield_battery_ack = $9, state = $10
		WHERE discord_uid = $1
	`, in.DiscordUID, in.DisplayName, in.Tag, altNames, in.Country, in.Region,
		in.AcceptedTOS, in.SetupComplete, in.ShieldBatteryAck, in.State)
	return err
}

func (p *PGPersister) UpdateMMR(ctx context.Context, in UpdateMMRPayload) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO ratings (discord_uid, race, mmr, games_played, games_won, games_lost, games_drawn, last_played)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (discord_uid, race) DO UPDATE SET
			mmr = EXCLUDED.mmr, games_played = EXCLUDED.games_played, games_won = EXCLUDED.games_won,
			games_lost = EXCLUDED.games_lost, games_drawn = EXCLUDED.games_drawn, last_played = EXCLUDED.last_played
	`, in.DiscordUID, in.Race, in.MMR, in.GamesPlayed, in.GamesWon, in.GamesLost, in.GamesDrawn, in.LastPlayed)
	return err
}

func (p *PGPersister) CreateMatch(ctx context.Context, in CreateMatchPayload) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO matches (
			id, player_1_discord_uid, player_2_discord_uid, player_1_race, player_2_race,
			map_played, server_used, created_at, player_1_mmr, player_2_mmr
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO NOTHING
	`, in.ID, in.Player1UID, in.Player2UID, in.Player1Race, in.Player2Race,
		in.Map, in.ServerUsed, in.CreatedAt, in.Player1MMR, in.Player2MMR)
	return err
}

func (p *PGPersister) UpdateMatchReport(ctx context.Context, in UpdateMatchReportPayload) error {
	_, err := p.pool.Exec(ctx, `
		UPDATE matches SET
			player_1_report = COALESCE($2, player_1_report),
			player_2_report = COALESCE($3, player_2_report)
		WHERE id = $1
	`, in.MatchID, in.Player1Report, in.Player2Report)
	return err
}

func (p *PGPersister) UpdateMatchResultAndMMRChange(ctx context.Context, in UpdateMatchResultPayload) error {
	_, err := p.pool.Exec(ctx, `
		UPDATE matches SET match_result = $2, mmr_change = $3, played_at = $4, updated_at = $5
		WHERE id = $1
	`, in.MatchID, in.Result, in.MMRChange, in.PlayedAt, in.UpdatedAt)
	return err
}

func (p *PGPersister) UpdateMatchReplayPath(ctx context.Context, in UpdateMatchReplayPathPayload) error {
	col := "player_1_replay_path"
	if in.Side == 2 {
		col = "player_2_replay_path"
	}
	_, err := p.pool.Exec(ctx, fmt.Sprintf(`UPDATE matches SET %s = $2 WHERE id = $1`, col), in.MatchID, in.Path)
	return err
}

// AdminResolveMatch applies an idempotent absolute SET across both the
// match row and both players' rating rows in one transaction — re-running
// the same payload twice is a no-op on the second run, matching spec.md
// §4.10's re-resolution contract.
func (p *PGPersister) AdminResolveMatch(ctx context.Context, in AdminResolveMatchPayload) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("pg_persister: admin resolve match: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
		UPDATE matches SET match_result = $2, mmr_change = $3, updated_at = $4 WHERE id = $1
	`, in.MatchID, in.Result, in.MMRChange, in.UpdatedAt); err != nil {
		return fmt.Errorf("pg_persister: admin resolve match: update match: %w", err)
	}
	if _, err := tx.Exec(ctx, `
		UPDATE ratings SET mmr = $3 WHERE discord_uid = $1 AND race = $2
	`, in.Player1UID, in.Player1Race, in.Player1MMR); err != nil {
		return fmt.Errorf("pg_persister: admin resolve match: update p1 mmr: %w", err)
	}
	if _, err := tx.Exec(ctx, `
		UPDATE ratings SET mmr = $3 WHERE discord_uid = $1 AND race = $2
	`, in.Player2UID, in.Player2Race, in.Player2MMR); err != nil {
		return fmt.Errorf("pg_persister: admin resolve match: update p2 mmr: %w", err)
	}
	return tx.Commit(ctx)
}

func (p *PGPersister) ClearMatchReports(ctx context.Context, in ClearMatchReportsPayload) error {
	_, err := p.pool.Exec(ctx, `UPDATE matches SET player_1_report = NULL, player_2_report = NULL WHERE id = $1`, in.MatchID)
	return err
}

func (p *PGPersister) UpsertReplay(ctx context.Context, in UpsertReplayPayload) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO replays (path, metadata_json, uploaded_at, uploader_uid, match_id, side)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (path) DO UPDATE SET
			metadata_json = EXCLUDED.metadata_json, match_id = EXCLUDED.match_id, side = EXCLUDED.side
	`, in.Path, in.MetadataRaw, in.UploadedAt, in.UploaderUID, in.MatchID, in.Side)
	return err
}

func (p *PGPersister) UpdateRemainingAborts(ctx context.Context, in UpdateRemainingAbortsPayload) error {
	_, err := p.pool.Exec(ctx, `UPDATE players SET remaining_aborts = $2 WHERE discord_uid = $1`,
		in.DiscordUID, in.RemainingAborts)
	return err
}

func (p *PGPersister) UpdateIsBanned(ctx context.Context, in UpdateIsBannedPayload) error {
	_, err := p.pool.Exec(ctx, `UPDATE players SET is_banned = $2 WHERE discord_uid = $1`,
		in.DiscordUID, in.IsBanned)
	return err
}

func (p *PGPersister) UpdateShieldBatteryBug(ctx context.Context, in UpdateShieldBatteryBugPayload) error {
	_, err := p.pool.Exec(ctx, `UPDATE players SET shield_battery_ack = $2 WHERE discord_uid = $1`,
		in.DiscordUID, in.ShieldBatteryAck)
	return err
}

func (p *PGPersister) LogAdminAction(ctx context.Context, in LogAdminActionPayload) error {
	detail, err := json.Marshal(in.Detail)
	if err != nil {
		return fmt.Errorf("pg_persister: marshal admin action detail: %w", err)
	}
	_, err = p.pool.Exec(ctx, `
		INSERT INTO admin_actions (id, admin_discord_uid, admin_username, action_type, target_player_uid, target_match_id, action_details_json, reason, performed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO NOTHING
	`, in.ID, in.AdminUID, in.AdminName, in.ActionType, in.TargetPlayer, in.TargetMatch, detail, in.Reason, in.PerformedAt)
	return err
}

func (p *PGPersister) LogPlayerAction(ctx context.Context, in LogPlayerActionPayload) error {
	detail, err := json.Marshal(in.Detail)
	if err != nil {
		return fmt.Errorf("pg_persister: marshal player action detail: %w", err)
	}
	_, err = p.pool.Exec(ctx, `
		INSERT INTO player_actions (discord_uid, action, detail_json, at) VALUES ($1, $2, $3, $4)
	`, in.DiscordUID, in.Action, detail, in.At)
	return err
}

func (p *PGPersister) LogCommandCall(ctx context.Context, in LogCommandCallPayload) error {
	detail, err := json.Marshal(in.Detail)
	if err != nil {
		return fmt.Errorf("pg_persister: marshal command call detail: %w", err)
	}
	_, err = p.pool.Exec(ctx, `
		INSERT INTO command_calls (discord_uid, command, detail_json, at) VALUES ($1, $2, $3, $4)
	`, in.DiscordUID, in.Command, detail, in.At)
	return err
}

// LoadAll reconstructs the full in-memory snapshot at startup (spec.md
// §4.11 step 4).
func (p *PGPersister) LoadAll(ctx context.Context) (Snapshot, error) {
	var snap Snapshot

	playerRows, err := p.pool.Query(ctx, `
		SELECT discord_uid, display_name, tag, alt_names, country, region,
			accepted_tos, setup_complete, is_banned, shield_battery_ack, remaining_aborts, state
		FROM players
	`)
	if err != nil {
		return snap, fmt.Errorf("pg_persister: load players: %w", err)
	}
	for playerRows.Next() {
		var pl domain.Player
		var altNames []byte
		var state string
		if err := playerRows.Scan(&pl.DiscordUID, &pl.DisplayName, &pl.Tag, &altNames, &pl.Country, &pl.Region,
			&pl.AcceptedTOS, &pl.SetupComplete, &pl.IsBanned, &pl.ShieldBatteryAck, &pl.RemainingAborts, &state); err != nil {
			playerRows.Close()
			return snap, fmt.Errorf("pg_persister: scan player: %w", err)
		}
		pl.State = domain.PlayerState(state)
		if len(altNames) > 0 {
			_ = json.Unmarshal(altNames, &pl.AltNames)
		}
		snap.Players = append(snap.Players, pl)
	}
	playerRows.Close()

	ratingRows, err := p.pool.Query(ctx, `
		SELECT discord_uid, race, mmr, games_played, games_won, games_lost, games_drawn, last_played FROM ratings
	`)
	if err != nil {
		return snap, fmt.Errorf("pg_persister: load ratings: %w", err)
	}
	for ratingRows.Next() {
		var r domain.PerRaceRating
		if err := ratingRows.Scan(&r.DiscordUID, &r.Race, &r.MMR, &r.GamesPlayed, &r.GamesWon, &r.GamesLost, &r.GamesDrawn, &r.LastPlayed); err != nil {
			ratingRows.Close()
			return snap, fmt.Errorf("pg_persister: scan rating: %w", err)
		}
		snap.Ratings = append(snap.Ratings, r)
	}
	ratingRows.Close()

	matchRows, err := p.pool.Query(ctx, `
		SELECT id, player_1_discord_uid, player_2_discord_uid, player_1_race, player_2_race,
			map_played, server_used, created_at, played_at, player_1_mmr, player_2_mmr,
			player_1_report, player_2_report, match_result, mmr_change,
			player_1_replay_path, player_2_replay_path, updated_at
		FROM matches
	`)
	if err != nil {
		return snap, fmt.Errorf("pg_persister: load matches: %w", err)
	}
	for matchRows.Next() {
		var m domain.Match
		var p1Report, p2Report *int8
		var result *int8
		var mmrChange *int
		if err := matchRows.Scan(&m.ID, &m.Player1UID, &m.Player2UID, &m.Player1Race, &m.Player2Race,
			&m.Map, &m.ServerRegion, &m.CreatedAt, &m.PlayedAt, &m.P1MMR, &m.P2MMR,
			&p1Report, &p2Report, &result, &mmrChange,
			&m.Player1ReplayPath, &m.Player2ReplayPath, &m.UpdatedAt); err != nil {
			matchRows.Close()
			return snap, fmt.Errorf("pg_persister: scan match: %w", err)
		}
		if p1Report != nil {
			rv := domain.Report(*p1Report)
			m.Player1Report = &rv
		}
		if p2Report != nil {
			rv := domain.Report(*p2Report)
			m.Player2Report = &rv
		}
		if result != nil {
			rv := domain.MatchResult(*result)
			m.Result = &rv
		}
		m.MMRChange = mmrChange
		snap.Matches = append(snap.Matches, m)
	}
	matchRows.Close()

	replayRows, err := p.pool.Query(ctx, `
		SELECT path, metadata_json, uploaded_at, uploader_uid, match_id, side FROM replays
	`)
	if err != nil {
		return snap, fmt.Errorf("pg_persister: load replays: %w", err)
	}
	for replayRows.Next() {
		var r domain.Replay
		var metadataJSON []byte
		if err := replayRows.Scan(&r.Path, &metadataJSON, &r.UploadedAt, &r.UploaderUID, &r.MatchID, &r.Side); err != nil {
			replayRows.Close()
			return snap, fmt.Errorf("pg_persister: scan replay: %w", err)
		}
		_ = json.Unmarshal(metadataJSON, &r.Metadata)
		snap.Replays = append(snap.Replays, r)
	}
	replayRows.Close()

	actionRows, err := p.pool.Query(ctx, `
		SELECT id, admin_discord_uid, admin_username, action_type, target_player_uid, target_match_id, action_details_json, reason, performed_at
		FROM admin_actions
	`)
	if err != nil {
		return snap, fmt.Errorf("pg_persister: load admin actions: %w", err)
	}
	for actionRows.Next() {
		var a domain.AdminAction
		var detail []byte
		if err := actionRows.Scan(&a.ID, &a.AdminUID, &a.AdminName, &a.ActionType, &a.TargetPlayer, &a.TargetMatch, &detail, &a.Reason, &a.PerformedAt); err != nil {
			actionRows.Close()
			return snap, fmt.Errorf("pg_persister: scan admin action: %w", err)
		}
		if len(detail) > 0 {
			_ = json.Unmarshal(detail, &a.Detail)
		}
		snap.AdminActions = append(snap.AdminActions, a)
	}
	actionRows.Close()

	return snap, nil
}
