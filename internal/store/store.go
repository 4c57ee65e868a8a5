// Package store is the in-memory store (spec.md C4): the single source
// of runtime truth for players, ratings, matches, replays, and admin
// audit rows, mirrored asynchronously to SQL through the durable write
// log (internal/writelog). Every mutation appends its write-log job
// first and only touches in-memory state once the append succeeds —
// spec.md's invariant that "memory must never reflect a change the log
// doesn't already have durably queued" (and the basis for Scenario F's
// restart-recovery property).
//
// Grounded on the teacher's internal/data package (an in-process champion
// cache filled once at startup and read by many goroutines under a single
// mutex) generalized from a read-only cache to a read-write store.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"evoladder/internal/domain"
	"evoladder/internal/writelog"
)

type ratingKey struct {
	uid  int64
	race domain.Race
}

// Store is the process-wide in-memory source of truth.
type Store struct {
	mu sync.RWMutex

	players      map[int64]*domain.Player
	ratings      map[ratingKey]*domain.PerRaceRating
	raceIndex    map[domain.Race][]int64 // sorted descending by MMR
	matches      map[int64]*domain.Match
	nextMatchID  int64
	replays      map[string]*domain.Replay // keyed by path
	adminActions []domain.AdminAction
	nextActionID int64
	lastSeen     map[int64]time.Time // activity tracker for the pairing pressure metric

	log    *writelog.Log
	logger zerolog.Logger
}

// New constructs an empty store. Load should be called once at startup
// to populate it from the persister before the store is used.
func New(log *writelog.Log, logger zerolog.Logger) *Store {
	return &Store{
		players:   make(map[int64]*domain.Player),
		ratings:   make(map[ratingKey]*domain.PerRaceRating),
		raceIndex: make(map[domain.Race][]int64),
		matches:   make(map[int64]*domain.Match),
		replays:   make(map[string]*domain.Replay),
		lastSeen:  make(map[int64]time.Time),
		log:       log,
		logger:    logger,
	}
}

// Load reconstructs the store from a persister's Snapshot, then lets the
// caller replay any still-PENDING write-log jobs on top of it (the
// orchestrator does this via log.Recover, which calls back into Apply).
func (s *Store) Load(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range snap.Players {
		p := snap.Players[i]
		s.players[p.DiscordUID] = &p
	}
	for i := range snap.Ratings {
		r := snap.Ratings[i]
		s.ratings[ratingKey{r.DiscordUID, r.Race}] = &r
	}
	for i := range snap.Matches {
		m := snap.Matches[i]
		s.matches[m.ID] = &m
		if m.ID >= s.nextMatchID {
			s.nextMatchID = m.ID + 1
		}
	}
	for i := range snap.Replays {
		r := snap.Replays[i]
		s.replays[r.Path] = &r
	}
	for i := range snap.AdminActions {
		a := snap.AdminActions[i]
		s.adminActions = append(s.adminActions, a)
		if a.ID >= s.nextActionID {
			s.nextActionID = a.ID + 1
		}
	}
	s.rebuildRaceIndexLocked()
}

func (s *Store) rebuildRaceIndexLocked() {
	s.raceIndex = make(map[domain.Race][]int64)
	for k := range s.ratings {
		s.raceIndex[k.race] = append(s.raceIndex[k.race], k.uid)
	}
	for race := range s.raceIndex {
		s.sortRaceIndexLocked(race)
	}
}

func (s *Store) sortRaceIndexLocked(race domain.Race) {
	ids := s.raceIndex[race]
	sort.Slice(ids, func(i, j int) bool {
		return s.ratings[ratingKey{ids[i], race}].MMR > s.ratings[ratingKey{ids[j], race}].MMR
	})
}

func (s *Store) touchActiveLocked(uid int64) {
	s.lastSeen[uid] = time.Now()
}

// RecentActivePopulation counts distinct players seen within window, fed
// into the pairing pressure metric (spec.md §4.6).
func (s *Store) RecentActivePopulation(window time.Duration) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cutoff := time.Now().Add(-window)
	n := 0
	for _, t := range s.lastSeen {
		if t.After(cutoff) {
			n++
		}
	}
	return n
}

// --- reads ---

// GetPlayer returns a copy of a player's record.
func (s *Store) GetPlayer(uid int64) (domain.Player, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.players[uid]
	if !ok {
		return domain.Player{}, false
	}
	return *p, true
}

// GetRating returns a copy of a player's per-race rating row.
func (s *Store) GetRating(uid int64, race domain.Race) (domain.PerRaceRating, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.ratings[ratingKey{uid, race}]
	if !ok {
		return domain.PerRaceRating{}, false
	}
	return *r, true
}

// GetMatch returns a copy of a match by id.
func (s *Store) GetMatch(id int64) (domain.Match, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.matches[id]
	if !ok {
		return domain.Match{}, false
	}
	return *m, true
}

// Leaderboard returns up to limit ratings for race, sorted descending by
// MMR, reading from the reverse MMR index (cache_service.py's "precomputed
// ranked view" behavior, per SPEC_FULL.md §4).
func (s *Store) Leaderboard(race domain.Race, limit int) []domain.PerRaceRating {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.raceIndex[race]
	if limit <= 0 || limit > len(ids) {
		limit = len(ids)
	}
	out := make([]domain.PerRaceRating, 0, limit)
	for _, uid := range ids[:limit] {
		out = append(out, *s.ratings[ratingKey{uid, race}])
	}
	return out
}

// --- writes ---
// Every write below follows the same shape: marshal a payload, append it
// to the write log, and only on success mutate in-memory state under the
// write lock. A log append failure is returned to the caller with memory
// left untouched.

// CreatePlayerIfAbsent creates a default idle player record on first
// interaction (spec.md §4.1 "Players are created lazily").
func (s *Store) CreatePlayerIfAbsent(ctx context.Context, uid int64) (domain.Player, bool, error) {
	s.mu.RLock()
	existing, ok := s.players[uid]
	s.mu.RUnlock()
	if ok {
		return *existing, false, nil
	}

	if _, err := s.log.Append(ctx, writelog.JobCreatePlayer, CreatePlayerPayload{DiscordUID: uid}); err != nil {
		return domain.Player{}, false, fmt.Errorf("store: create player %d: %w", uid, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.players[uid]; ok {
		// lost the race between RUnlock and Lock; another caller created it.
		return *existing, false, nil
	}
	p := &domain.Player{
		DiscordUID:      uid,
		RemainingAborts: defaultRemainingAborts,
		State:           domain.StateIdle,
	}
	s.players[uid] = p
	s.touchActiveLocked(uid)
	return *p, true, nil
}

const defaultRemainingAborts = 3

// UpdatePlayerInfo persists the full mutable player-info surface (setup,
// country, region, TOS acceptance, ShieldBattery ack, lifecycle state).
// Guard/admin code reads the current row first and passes back the full
// struct with the one field it wants changed.
func (s *Store) UpdatePlayerInfo(ctx context.Context, p domain.Player) error {
	payload := UpdatePlayerInfoPayload{
		DiscordUID:       p.DiscordUID,
		DisplayName:      p.DisplayName,
		Tag:              p.Tag,
		AltNames:         p.AltNames,
		Country:          p.Country,
		Region:           p.Region,
		AcceptedTOS:      p.AcceptedTOS,
		SetupComplete:    p.SetupComplete,
		ShieldBatteryAck: p.ShieldBatteryAck,
		State:            string(p.State),
	}
	if _, err := s.log.Append(ctx, writelog.JobUpdatePlayerInfo, payload); err != nil {
		return fmt.Errorf("store: update player info %d: %w", p.DiscordUID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	cp := p
	s.players[p.DiscordUID] = &cp
	s.touchActiveLocked(p.DiscordUID)
	return nil
}

// SetPlayerState is a convenience wrapper over UpdatePlayerInfo for the
// common case of only the lifecycle state changing.
func (s *Store) SetPlayerState(ctx context.Context, uid int64, state domain.PlayerState) error {
	p, ok := s.GetPlayer(uid)
	if !ok {
		return fmt.Errorf("store: set state: unknown player %d", uid)
	}
	p.State = state
	return s.UpdatePlayerInfo(ctx, p)
}

// SetRemainingAborts persists a player's manual-abort credit, clamped at
// zero (spec.md §4.7 abort-exhaustion rule).
func (s *Store) SetRemainingAborts(ctx context.Context, uid int64, n int) error {
	if n < 0 {
		n = 0
	}
	if _, err := s.log.Append(ctx, writelog.JobUpdateRemainingAborts, UpdateRemainingAbortsPayload{
		DiscordUID: uid, RemainingAborts: n,
	}); err != nil {
		return fmt.Errorf("store: set remaining aborts %d: %w", uid, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.players[uid]; ok {
		p.RemainingAborts = n
	}
	return nil
}

// SetBanned toggles a player's ban flag.
func (s *Store) SetBanned(ctx context.Context, uid int64, banned bool) error {
	if _, err := s.log.Append(ctx, writelog.JobUpdateIsBanned, UpdateIsBannedPayload{
		DiscordUID: uid, IsBanned: banned,
	}); err != nil {
		return fmt.Errorf("store: set banned %d: %w", uid, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.players[uid]; ok {
		p.IsBanned = banned
	}
	return nil
}

// SetShieldBatteryAck toggles a player's acknowledgement of the known
// ShieldBattery replay-corruption bug (spec.md §4.8 edge case).
func (s *Store) SetShieldBatteryAck(ctx context.Context, uid int64, ack bool) error {
	if _, err := s.log.Append(ctx, writelog.JobUpdateShieldBatteryBug, UpdateShieldBatteryBugPayload{
		DiscordUID: uid, ShieldBatteryAck: ack,
	}); err != nil {
		return fmt.Errorf("store: set shield battery ack %d: %w", uid, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.players[uid]; ok {
		p.ShieldBatteryAck = ack
	}
	return nil
}

// EnsureRating returns a player's rating row for race, creating it at the
// default starting MMR if absent.
func (s *Store) EnsureRating(ctx context.Context, uid int64, race domain.Race, startingMMR int) (domain.PerRaceRating, error) {
	s.mu.RLock()
	existing, ok := s.ratings[ratingKey{uid, race}]
	s.mu.RUnlock()
	if ok {
		return *existing, nil
	}

	payload := UpdateMMRPayload{DiscordUID: uid, Race: race, MMR: startingMMR}
	if _, err := s.log.Append(ctx, writelog.JobUpdateMMR, payload); err != nil {
		return domain.PerRaceRating{}, fmt.Errorf("store: ensure rating %d/%s: %w", uid, race, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.ratings[ratingKey{uid, race}]; ok {
		return *existing, nil
	}
	r := &domain.PerRaceRating{DiscordUID: uid, Race: race, MMR: startingMMR}
	s.ratings[ratingKey{uid, race}] = r
	s.raceIndex[race] = append(s.raceIndex[race], uid)
	s.sortRaceIndexLocked(race)
	return *r, nil
}

// ApplyMMRDelta adjusts a rating's MMR by delta (clamped at zero) without
// touching game counters — used for admin absolute adjustments; callers
// pass the already-computed target delta.
func (s *Store) ApplyMMRDelta(ctx context.Context, uid int64, race domain.Race, delta int) (domain.PerRaceRating, error) {
	s.mu.RLock()
	existing, ok := s.ratings[ratingKey{uid, race}]
	s.mu.RUnlock()
	if !ok {
		return domain.PerRaceRating{}, fmt.Errorf("store: apply mmr delta: no rating for %d/%s", uid, race)
	}
	newMMR := existing.MMR + delta
	if newMMR < 0 {
		newMMR = 0
	}

	payload := UpdateMMRPayload{
		DiscordUID: uid, Race: race, MMR: newMMR,
		GamesPlayed: existing.GamesPlayed, GamesWon: existing.GamesWon,
		GamesLost: existing.GamesLost, GamesDrawn: existing.GamesDrawn,
		LastPlayed: existing.LastPlayed,
	}
	if _, err := s.log.Append(ctx, writelog.JobUpdateMMR, payload); err != nil {
		return domain.PerRaceRating{}, fmt.Errorf("store: apply mmr delta %d/%s: %w", uid, race, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.ratings[ratingKey{uid, race}]
	r.MMR = newMMR
	s.sortRaceIndexLocked(race)
	return *r, nil
}

// RecordMatchOutcome applies a completed game's MMR delta plus game-count
// and last-played bookkeeping for one player/race (spec.md §4.2).
func (s *Store) RecordMatchOutcome(ctx context.Context, uid int64, race domain.Race, mmrDelta int, won, lost, drawn bool) (domain.PerRaceRating, error) {
	s.mu.RLock()
	existing, ok := s.ratings[ratingKey{uid, race}]
	s.mu.RUnlock()
	if !ok {
		return domain.PerRaceRating{}, fmt.Errorf("store: record match outcome: no rating for %d/%s", uid, race)
	}

	now := time.Now()
	newMMR := existing.MMR + mmrDelta
	if newMMR < 0 {
		newMMR = 0
	}
	payload := UpdateMMRPayload{
		DiscordUID: uid, Race: race, MMR: newMMR,
		GamesPlayed: existing.GamesPlayed + 1,
		GamesWon:    existing.GamesWon + boolToInt(won),
		GamesLost:   existing.GamesLost + boolToInt(lost),
		GamesDrawn:  existing.GamesDrawn + boolToInt(drawn),
		LastPlayed:  &now,
	}
	if _, err := s.log.Append(ctx, writelog.JobUpdateMMR, payload); err != nil {
		return domain.PerRaceRating{}, fmt.Errorf("store: record match outcome %d/%s: %w", uid, race, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.ratings[ratingKey{uid, race}]
	r.MMR = newMMR
	r.GamesPlayed = payload.GamesPlayed
	r.GamesWon = payload.GamesWon
	r.GamesLost = payload.GamesLost
	r.GamesDrawn = payload.GamesDrawn
	r.LastPlayed = &now
	s.sortRaceIndexLocked(race)
	s.touchActiveLocked(uid)
	return *r, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// PeekNextMatchID returns the id CreateMatch will assign next, so callers
// needing a deterministic-per-id derivation (e.g. map selection) can
// compute it before creation. Match creation is serialized within a
// single wave's commit loop, so this does not race against itself in
// practice; it is a peek, not a reservation.
func (s *Store) PeekNextMatchID() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nextMatchID
}

// CreateMatch assigns the next match id, persists creation, and inserts
// the row into memory.
func (s *Store) CreateMatch(ctx context.Context, m domain.Match) (domain.Match, error) {
	s.mu.Lock()
	id := s.nextMatchID
	s.nextMatchID++
	s.mu.Unlock()

	m.ID = id
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}
	m.UpdatedAt = m.CreatedAt

	payload := CreateMatchPayload{
		ID: id, Player1UID: m.Player1UID, Player2UID: m.Player2UID,
		Player1Race: m.Player1Race, Player2Race: m.Player2Race,
		Map: m.Map, ServerUsed: m.ServerRegion, CreatedAt: m.CreatedAt,
		Player1MMR: m.P1MMR, Player2MMR: m.P2MMR,
	}
	if _, err := s.log.Append(ctx, writelog.JobCreateMatch, payload); err != nil {
		s.mu.Lock()
		s.nextMatchID-- // give the id back; nothing else observed it
		s.mu.Unlock()
		return domain.Match{}, fmt.Errorf("store: create match: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	cp := m
	s.matches[id] = &cp
	s.touchActiveLocked(m.Player1UID)
	s.touchActiveLocked(m.Player2UID)
	return cp, nil
}

// UpdateMatchReport records one side's self-report.
func (s *Store) UpdateMatchReport(ctx context.Context, matchID int64, side int, report domain.Report) (domain.Match, error) {
	s.mu.RLock()
	existing, ok := s.matches[matchID]
	s.mu.RUnlock()
	if !ok {
		return domain.Match{}, fmt.Errorf("store: update match report: unknown match %d", matchID)
	}

	p1, p2 := existing.Player1Report, existing.Player2Report
	r := report
	switch side {
	case 1:
		p1 = &r
	case 2:
		p2 = &r
	default:
		return domain.Match{}, fmt.Errorf("store: update match report: invalid side %d", side)
	}

	payload := UpdateMatchReportPayload{MatchID: matchID}
	if p1 != nil {
		v := int8(*p1)
		payload.Player1Report = &v
	}
	if p2 != nil {
		v := int8(*p2)
		payload.Player2Report = &v
	}
	if _, err := s.log.Append(ctx, writelog.JobUpdateMatchReport, payload); err != nil {
		return domain.Match{}, fmt.Errorf("store: update match report %d: %w", matchID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.matches[matchID]
	m.Player1Report, m.Player2Report = p1, p2
	m.UpdatedAt = time.Now()
	return *m, nil
}

// UpdateMatchResultAndMMRChange records a fresh (non-admin) terminal
// resolution.
func (s *Store) UpdateMatchResultAndMMRChange(ctx context.Context, matchID int64, result domain.MatchResult, mmrChange int) (domain.Match, error) {
	now := time.Now()
	payload := UpdateMatchResultPayload{
		MatchID: matchID, Result: int8(result), MMRChange: mmrChange,
		PlayedAt: now, UpdatedAt: now,
	}
	if _, err := s.log.Append(ctx, writelog.JobUpdateMatchResultAndMMRChange, payload); err != nil {
		return domain.Match{}, fmt.Errorf("store: update match result %d: %w", matchID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.matches[matchID]
	if !ok {
		return domain.Match{}, fmt.Errorf("store: update match result: unknown match %d", matchID)
	}
	m.Result = &result
	mc := mmrChange
	m.MMRChange = &mc
	m.PlayedAt = &now
	m.UpdatedAt = now
	return *m, nil
}

// UpdateMatchReplayPath links an uploaded replay path to one side.
func (s *Store) UpdateMatchReplayPath(ctx context.Context, matchID int64, side int, path string) error {
	if _, err := s.log.Append(ctx, writelog.JobUpdateMatchReplayPath, UpdateMatchReplayPathPayload{
		MatchID: matchID, Side: side, Path: path,
	}); err != nil {
		return fmt.Errorf("store: update match replay path %d: %w", matchID, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.matches[matchID]
	if !ok {
		return fmt.Errorf("store: update match replay path: unknown match %d", matchID)
	}
	switch side {
	case 1:
		m.Player1ReplayPath = &path
	case 2:
		m.Player2ReplayPath = &path
	default:
		return fmt.Errorf("store: update match replay path: invalid side %d", side)
	}
	m.UpdatedAt = time.Now()
	return nil
}

// AdminResolveMatchInput carries the absolute new values an admin
// resolution computes (internal/admin owns the idempotent-restore
// arithmetic; the store just applies the resulting absolute state).
type AdminResolveMatchInput struct {
	MatchID    int64
	Result     domain.MatchResult
	MMRChange  int
	Player1MMR int
	Player2MMR int
}

// AdminResolveMatch applies an admin's (re-)resolution as a pure SET of
// absolute values, idempotent under repeated application (spec.md §4.10).
func (s *Store) AdminResolveMatch(ctx context.Context, in AdminResolveMatchInput) (domain.Match, error) {
	s.mu.RLock()
	m, ok := s.matches[in.MatchID]
	s.mu.RUnlock()
	if !ok {
		return domain.Match{}, fmt.Errorf("store: admin resolve match: unknown match %d", in.MatchID)
	}

	now := time.Now()
	payload := AdminResolveMatchPayload{
		MatchID: in.MatchID, Result: int8(in.Result), MMRChange: in.MMRChange,
		Player1MMR: in.Player1MMR, Player2MMR: in.Player2MMR,
		Player1Race: m.Player1Race, Player2Race: m.Player2Race,
		Player1UID: m.Player1UID, Player2UID: m.Player2UID,
		UpdatedAt: now,
	}
	if _, err := s.log.Append(ctx, writelog.JobAdminResolveMatch, payload); err != nil {
		return domain.Match{}, fmt.Errorf("store: admin resolve match %d: %w", in.MatchID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	m = s.matches[in.MatchID]
	result := in.Result
	m.Result = &result
	mc := in.MMRChange
	m.MMRChange = &mc
	m.UpdatedAt = now

	if r, ok := s.ratings[ratingKey{m.Player1UID, m.Player1Race}]; ok {
		r.MMR = in.Player1MMR
		s.sortRaceIndexLocked(m.Player1Race)
	}
	if r, ok := s.ratings[ratingKey{m.Player2UID, m.Player2Race}]; ok {
		r.MMR = in.Player2MMR
		s.sortRaceIndexLocked(m.Player2Race)
	}
	return *m, nil
}

// ClearMatchReports nulls both player reports on a match (spec.md §4.10
// "fresh-match resolution" step: after simulating reports to drive the
// normal completion flow, the historical record must show no reports were
// ever actually submitted by the players).
func (s *Store) ClearMatchReports(ctx context.Context, matchID int64) error {
	if _, err := s.log.Append(ctx, writelog.JobClearMatchReports, ClearMatchReportsPayload{MatchID: matchID}); err != nil {
		return fmt.Errorf("store: clear match reports %d: %w", matchID, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.matches[matchID]
	if !ok {
		return fmt.Errorf("store: clear match reports: unknown match %d", matchID)
	}
	m.Player1Report = nil
	m.Player2Report = nil
	m.UpdatedAt = time.Now()
	return nil
}

// UpsertReplay persists an uploaded/parsed replay.
func (s *Store) UpsertReplay(ctx context.Context, r domain.Replay, metadataJSON []byte) error {
	if _, err := s.log.Append(ctx, writelog.JobUpsertReplay, UpsertReplayPayload{
		Path: r.Path, MetadataRaw: metadataJSON, UploadedAt: r.UploadedAt,
		UploaderUID: r.UploaderUID, MatchID: r.MatchID, Side: r.Side,
	}); err != nil {
		return fmt.Errorf("store: upsert replay %s: %w", r.Path, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := r
	s.replays[r.Path] = &cp
	return nil
}

// LogAdminAction appends an audit-only admin action row.
func (s *Store) LogAdminAction(ctx context.Context, a domain.AdminAction) (domain.AdminAction, error) {
	s.mu.Lock()
	id := s.nextActionID
	s.nextActionID++
	s.mu.Unlock()
	a.ID = id
	if a.PerformedAt.IsZero() {
		a.PerformedAt = time.Now()
	}

	if _, err := s.log.Append(ctx, writelog.JobLogAdminAction, LogAdminActionPayload{
		ID: id, AdminUID: a.AdminUID, AdminName: a.AdminName, ActionType: a.ActionType,
		TargetPlayer: a.TargetPlayer, TargetMatch: a.TargetMatch, Detail: a.Detail,
		Reason: a.Reason, PerformedAt: a.PerformedAt,
	}); err != nil {
		return domain.AdminAction{}, fmt.Errorf("store: log admin action: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.adminActions = append(s.adminActions, a)
	return a, nil
}

// LogPlayerAction appends a lightweight audit-only trail entry for a
// player-initiated command (spec.md §4.3 log_player_action).
func (s *Store) LogPlayerAction(ctx context.Context, uid int64, action string, detail map[string]interface{}) error {
	now := time.Now()
	if _, err := s.log.Append(ctx, writelog.JobLogPlayerAction, LogPlayerActionPayload{
		DiscordUID: uid, Action: action, Detail: detail, At: now,
	}); err != nil {
		return fmt.Errorf("store: log player action: %w", err)
	}
	s.mu.Lock()
	s.touchActiveLocked(uid)
	s.mu.Unlock()
	return nil
}

// LogCommandCall appends a raw command-invocation audit row (spec.md
// §4.3 log_command_call), distinct from LogPlayerAction's higher-level
// domain events.
func (s *Store) LogCommandCall(ctx context.Context, uid int64, command string, detail map[string]interface{}) error {
	if _, err := s.log.Append(ctx, writelog.JobLogCommandCall, LogCommandCallPayload{
		DiscordUID: uid, Command: command, Detail: detail, At: time.Now(),
	}); err != nil {
		return fmt.Errorf("store: log command call: %w", err)
	}
	return nil
}
