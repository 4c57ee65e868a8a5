package admin

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"evoladder/internal/domain"
	"evoladder/internal/notify"
	"evoladder/internal/queue"
	"evoladder/internal/rating"
	"evoladder/internal/store"
)

type ratingKey struct {
	uid  int64
	race domain.Race
}

type fakeStore struct {
	matches        map[int64]domain.Match
	players        map[int64]domain.Player
	ratings        map[ratingKey]domain.PerRaceRating
	states         map[int64]domain.PlayerState
	aborts         map[int64]int
	banned         map[int64]bool
	actions        []domain.AdminAction
	clearedReports []int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		matches: make(map[int64]domain.Match),
		players: make(map[int64]domain.Player),
		ratings: make(map[ratingKey]domain.PerRaceRating),
		states:  make(map[int64]domain.PlayerState),
		aborts:  make(map[int64]int),
		banned:  make(map[int64]bool),
	}
}

func (f *fakeStore) GetMatch(id int64) (domain.Match, bool) {
	m, ok := f.matches[id]
	return m, ok
}

func (f *fakeStore) GetPlayer(uid int64) (domain.Player, bool) {
	p, ok := f.players[uid]
	return p, ok
}

func (f *fakeStore) GetRating(uid int64, race domain.Race) (domain.PerRaceRating, bool) {
	r, ok := f.ratings[ratingKey{uid, race}]
	return r, ok
}

func (f *fakeStore) EnsureRating(ctx context.Context, uid int64, race domain.Race, startingMMR int) (domain.PerRaceRating, error) {
	key := ratingKey{uid, race}
	if r, ok := f.ratings[key]; ok {
		return r, nil
	}
	r := domain.PerRaceRating{DiscordUID: uid, Race: race, MMR: startingMMR}
	f.ratings[key] = r
	return r, nil
}

func (f *fakeStore) ApplyMMRDelta(ctx context.Context, uid int64, race domain.Race, delta int) (domain.PerRaceRating, error) {
	key := ratingKey{uid, race}
	r := f.ratings[key]
	r.MMR = rating.Clamp(r.MMR + delta)
	f.ratings[key] = r
	return r, nil
}

func (f *fakeStore) AdminResolveMatch(ctx context.Context, in store.AdminResolveMatchInput) (domain.Match, error) {
	m := f.matches[in.MatchID]
	result := in.Result
	m.Result = &result
	mc := in.MMRChange
	m.MMRChange = &mc
	f.matches[in.MatchID] = m

	p1Key := ratingKey{m.Player1UID, m.Player1Race}
	p2Key := ratingKey{m.Player2UID, m.Player2Race}
	p1 := f.ratings[p1Key]
	p1.MMR = in.Player1MMR
	f.ratings[p1Key] = p1
	p2 := f.ratings[p2Key]
	p2.MMR = in.Player2MMR
	f.ratings[p2Key] = p2
	return m, nil
}

func (f *fakeStore) ClearMatchReports(ctx context.Context, matchID int64) error {
	f.clearedReports = append(f.clearedReports, matchID)
	m := f.matches[matchID]
	m.Player1Report = nil
	m.Player2Report = nil
	f.matches[matchID] = m
	return nil
}

func (f *fakeStore) SetPlayerState(ctx context.Context, uid int64, state domain.PlayerState) error {
	f.states[uid] = state
	return nil
}

func (f *fakeStore) SetRemainingAborts(ctx context.Context, uid int64, n int) error {
	f.aborts[uid] = n
	return nil
}

func (f *fakeStore) SetBanned(ctx context.Context, uid int64, banned bool) error {
	f.banned[uid] = banned
	return nil
}

func (f *fakeStore) LogAdminAction(ctx context.Context, a domain.AdminAction) (domain.AdminAction, error) {
	f.actions = append(f.actions, a)
	return a, nil
}

type fakeQueue struct {
	removed  []int64
	entries  []queue.Entry
	removeFn func(uid int64) error
}

func (q *fakeQueue) Remove(ctx context.Context, uid int64, reason queue.RemoveReason) error {
	q.removed = append(q.removed, uid)
	if q.removeFn != nil {
		return q.removeFn(uid)
	}
	return nil
}

func (q *fakeQueue) Snapshot() []queue.Entry { return q.entries }

// fakeMatchReporter simulates internal/match.Engine.Report against a
// shared fakeStore: it records the report and, once both sides have
// reported the same decisive value, finalizes the match the way the real
// completion check would (spec.md §4.7), computing a non-zero MMR change
// via the same rating.Change formula the real engine uses.
type fakeMatchReporter struct {
	store  *fakeStore
	calls  []domain.Report
	failOn map[int]bool // side -> force error
}

func (r *fakeMatchReporter) Report(ctx context.Context, matchID int64, side int, report domain.Report) error {
	r.calls = append(r.calls, report)
	if r.failOn[side] {
		return context.DeadlineExceeded
	}
	m := r.store.matches[matchID]
	if side == 1 {
		m.Player1Report = &report
	} else {
		m.Player2Report = &report
	}
	r.store.matches[matchID] = m

	if m.Player1Report == nil || m.Player2Report == nil || *m.Player1Report != *m.Player2Report {
		return nil
	}

	result := domain.MatchResult(*m.Player1Report)
	p1, _ := r.store.GetRating(m.Player1UID, m.Player1Race)
	p2, _ := r.store.GetRating(m.Player2UID, m.Player2Race)
	var rr rating.Result
	switch result {
	case domain.ResultP1Win:
		rr = rating.Player1Won
	case domain.ResultP2Win:
		rr = rating.Player2Won
	default:
		rr = rating.Draw
	}
	change := rating.Change(m.P1MMR, m.P2MMR, rr, p1.GamesPlayed, p2.GamesPlayed)

	m.Result = &result
	m.MMRChange = &change
	r.store.matches[matchID] = m

	p1.MMR = rating.Clamp(p1.MMR + change)
	r.store.ratings[ratingKey{m.Player1UID, m.Player1Race}] = p1
	p2.MMR = rating.Clamp(p2.MMR - change)
	r.store.ratings[ratingKey{m.Player2UID, m.Player2Race}] = p2
	return nil
}

type fakeNotifier struct {
	sent []notify.Message
}

func (n *fakeNotifier) Enqueue(ctx context.Context, priority notify.Priority, msg notify.Message) error {
	n.sent = append(n.sent, msg)
	return nil
}

func baseMatch() domain.Match {
	return domain.Match{
		ID: 1, Player1UID: 10, Player2UID: 20,
		Player1Race: "bw_terran", Player2Race: "sc2_protoss",
		P1MMR: 1500, P2MMR: 1500,
		CreatedAt: time.Now(), UpdatedAt: time.Now(),
	}
}

func newTestEngine(s *fakeStore, q *fakeQueue, mr *fakeMatchReporter, n *fakeNotifier) *Engine {
	return New(&Allowlist{}, s, q, mr, n, zerolog.Nop())
}

func TestResolveMatchFreshSimulatesReportsAndClearsThem(t *testing.T) {
	s := newFakeStore()
	m := baseMatch()
	s.matches[m.ID] = m
	s.ratings[ratingKey{10, "bw_terran"}] = domain.PerRaceRating{DiscordUID: 10, Race: "bw_terran", MMR: 1500}
	s.ratings[ratingKey{20, "sc2_protoss"}] = domain.PerRaceRating{DiscordUID: 20, Race: "sc2_protoss", MMR: 1500}
	q := &fakeQueue{}
	mr := &fakeMatchReporter{store: s}
	e := newTestEngine(s, q, mr, &fakeNotifier{})

	if err := e.ResolveMatch(context.Background(), 1, "admin1", m.ID, domain.ResultP1Win, "no-show"); err != nil {
		t.Fatalf("ResolveMatch: %v", err)
	}

	got := s.matches[m.ID]
	if got.Result == nil || *got.Result != domain.ResultP1Win {
		t.Fatalf("expected result P1Win, got %v", got.Result)
	}
	if got.Player1Report != nil || got.Player2Report != nil {
		t.Fatalf("expected reports cleared, got %v / %v", got.Player1Report, got.Player2Report)
	}
	if len(s.clearedReports) != 1 || s.clearedReports[0] != m.ID {
		t.Fatalf("expected ClearMatchReports called once for match %d, got %v", m.ID, s.clearedReports)
	}
	if len(mr.calls) != 2 {
		t.Fatalf("expected 2 simulated reports, got %d", len(mr.calls))
	}
	if s.states[10] != domain.StateIdle || s.states[20] != domain.StateIdle {
		t.Fatalf("expected both players idle after resolution")
	}
	if len(s.actions) != 1 || s.actions[0].ActionType != "resolve_match" {
		t.Fatalf("expected one resolve_match audit record, got %v", s.actions)
	}
}

func TestResolveMatchFreshInvalidationSkipsSimulatedReports(t *testing.T) {
	s := newFakeStore()
	m := baseMatch()
	s.matches[m.ID] = m
	s.ratings[ratingKey{10, "bw_terran"}] = domain.PerRaceRating{DiscordUID: 10, Race: "bw_terran", MMR: 1500}
	s.ratings[ratingKey{20, "sc2_protoss"}] = domain.PerRaceRating{DiscordUID: 20, Race: "sc2_protoss", MMR: 1500}
	q := &fakeQueue{}
	mr := &fakeMatchReporter{store: s}
	e := newTestEngine(s, q, mr, &fakeNotifier{})

	if err := e.ResolveMatch(context.Background(), 1, "admin1", m.ID, domain.ResultInvalidated, "bad call"); err != nil {
		t.Fatalf("ResolveMatch: %v", err)
	}

	got := s.matches[m.ID]
	if got.Result == nil || *got.Result != domain.ResultInvalidated {
		t.Fatalf("expected result Invalidated, got %v", got.Result)
	}
	if got.MMRChange == nil || *got.MMRChange != 0 {
		t.Fatalf("expected zero mmr change, got %v", got.MMRChange)
	}
	if len(mr.calls) != 0 {
		t.Fatalf("expected no simulated reports for an invalidation, got %d", len(mr.calls))
	}
	if len(s.clearedReports) != 0 {
		t.Fatalf("expected no ClearMatchReports call, got %v", s.clearedReports)
	}
}

func TestResolveMatchAbsoluteIsIdempotentAcrossRepeatedCalls(t *testing.T) {
	s := newFakeStore()
	m := baseMatch()
	win := domain.ResultP2Win
	mc := 0
	m.Result = &win
	m.MMRChange = &mc
	m.Player1Report = reportPtr(domain.ReportP2Win)
	m.Player2Report = reportPtr(domain.ReportP2Win)
	s.matches[m.ID] = m
	s.ratings[ratingKey{10, "bw_terran"}] = domain.PerRaceRating{DiscordUID: 10, Race: "bw_terran", MMR: 1500, GamesPlayed: 50}
	s.ratings[ratingKey{20, "sc2_protoss"}] = domain.PerRaceRating{DiscordUID: 20, Race: "sc2_protoss", MMR: 1500, GamesPlayed: 50}
	q := &fakeQueue{}
	mr := &fakeMatchReporter{store: s}
	e := newTestEngine(s, q, mr, &fakeNotifier{})

	for i := 0; i < 3; i++ {
		if err := e.ResolveMatch(context.Background(), 1, "admin1", m.ID, domain.ResultP1Win, "overturned"); err != nil {
			t.Fatalf("resolve #%d: %v", i, err)
		}
	}

	final := s.matches[m.ID]
	if final.Result == nil || *final.Result != domain.ResultP1Win {
		t.Fatalf("expected final result P1Win, got %v", final.Result)
	}
	wantP1 := s.ratings[ratingKey{10, "bw_terran"}].MMR
	wantP2 := s.ratings[ratingKey{20, "sc2_protoss"}].MMR

	// Resolve twice more and confirm the final MMRs never drift further.
	for i := 0; i < 2; i++ {
		if err := e.ResolveMatch(context.Background(), 1, "admin1", m.ID, domain.ResultP1Win, "overturned"); err != nil {
			t.Fatalf("resolve again #%d: %v", i, err)
		}
		if got := s.ratings[ratingKey{10, "bw_terran"}].MMR; got != wantP1 {
			t.Fatalf("player 1 MMR drifted: got %d, want %d", got, wantP1)
		}
		if got := s.ratings[ratingKey{20, "sc2_protoss"}].MMR; got != wantP2 {
			t.Fatalf("player 2 MMR drifted: got %d, want %d", got, wantP2)
		}
	}
}

func TestResolveMatchAbsoluteInvalidatedZeroesChange(t *testing.T) {
	s := newFakeStore()
	m := baseMatch()
	s.matches[m.ID] = m
	s.ratings[ratingKey{10, "bw_terran"}] = domain.PerRaceRating{DiscordUID: 10, Race: "bw_terran", MMR: 1600}
	s.ratings[ratingKey{20, "sc2_protoss"}] = domain.PerRaceRating{DiscordUID: 20, Race: "sc2_protoss", MMR: 1400}
	q := &fakeQueue{}
	mr := &fakeMatchReporter{store: s}
	e := newTestEngine(s, q, mr, &fakeNotifier{})

	// Not fresh: give it a prior terminal result so the absolute path runs.
	m2 := s.matches[m.ID]
	prior := domain.ResultP1Win
	priorChange := 20
	m2.Result = &prior
	m2.MMRChange = &priorChange
	s.matches[m.ID] = m2

	if err := e.ResolveMatch(context.Background(), 1, "admin1", m.ID, domain.ResultInvalidated, "cheating confirmed"); err != nil {
		t.Fatalf("ResolveMatch: %v", err)
	}

	final := s.matches[m.ID]
	if final.MMRChange == nil || *final.MMRChange != 0 {
		t.Fatalf("expected mmr_change 0 on invalidation, got %v", final.MMRChange)
	}
	if got := s.ratings[ratingKey{10, "bw_terran"}].MMR; got != m.P1MMR {
		t.Fatalf("expected player 1 restored to snapshot %d, got %d", m.P1MMR, got)
	}
	if got := s.ratings[ratingKey{20, "sc2_protoss"}].MMR; got != m.P2MMR {
		t.Fatalf("expected player 2 restored to snapshot %d, got %d", m.P2MMR, got)
	}
}

func TestAdjustMMRModes(t *testing.T) {
	s := newFakeStore()
	s.ratings[ratingKey{10, "bw_terran"}] = domain.PerRaceRating{DiscordUID: 10, Race: "bw_terran", MMR: 1500}
	e := newTestEngine(s, &fakeQueue{}, &fakeMatchReporter{store: s}, &fakeNotifier{})

	if err := e.AdjustMMR(context.Background(), 1, "admin1", 10, "bw_terran", "add", 50, "tournament seeding"); err != nil {
		t.Fatalf("add: %v", err)
	}
	if got := s.ratings[ratingKey{10, "bw_terran"}].MMR; got != 1550 {
		t.Fatalf("after add: got %d, want 1550", got)
	}

	if err := e.AdjustMMR(context.Background(), 1, "admin1", 10, "bw_terran", "subtract", 100, "correction"); err != nil {
		t.Fatalf("subtract: %v", err)
	}
	if got := s.ratings[ratingKey{10, "bw_terran"}].MMR; got != 1450 {
		t.Fatalf("after subtract: got %d, want 1450", got)
	}

	if err := e.AdjustMMR(context.Background(), 1, "admin1", 10, "bw_terran", "set", 2000, "manual override"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if got := s.ratings[ratingKey{10, "bw_terran"}].MMR; got != 2000 {
		t.Fatalf("after set: got %d, want 2000", got)
	}

	if err := e.AdjustMMR(context.Background(), 1, "admin1", 10, "bw_terran", "multiply", 2, "bad mode"); err == nil {
		t.Fatalf("expected error for unknown mode")
	}
	if len(s.actions) != 3 {
		t.Fatalf("expected 3 audit records for the 3 successful calls, got %d", len(s.actions))
	}
}

func TestForceDequeueAndUnblock(t *testing.T) {
	s := newFakeStore()
	q := &fakeQueue{}
	e := newTestEngine(s, q, &fakeMatchReporter{store: s}, &fakeNotifier{})

	if err := e.ForceDequeue(context.Background(), 1, "admin1", 10, "stuck in queue"); err != nil {
		t.Fatalf("ForceDequeue: %v", err)
	}
	if len(q.removed) != 1 || q.removed[0] != 10 {
		t.Fatalf("expected player 10 removed from queue, got %v", q.removed)
	}

	if err := e.Unblock(context.Background(), 1, "admin1", 10, "client crash"); err != nil {
		t.Fatalf("Unblock: %v", err)
	}
	if s.states[10] != domain.StateIdle {
		t.Fatalf("expected player 10 idle after unblock")
	}
	if len(s.actions) != 2 {
		t.Fatalf("expected 2 audit records, got %d", len(s.actions))
	}
}

func TestResetAbortsAndToggleBan(t *testing.T) {
	s := newFakeStore()
	q := &fakeQueue{}
	e := newTestEngine(s, q, &fakeMatchReporter{store: s}, &fakeNotifier{})

	if err := e.ResetAborts(context.Background(), 1, "admin1", 10, 3, "refund"); err != nil {
		t.Fatalf("ResetAborts: %v", err)
	}
	if s.aborts[10] != 3 {
		t.Fatalf("expected remaining aborts 3, got %d", s.aborts[10])
	}

	if err := e.ToggleBan(context.Background(), 1, "admin1", 10, true, "toxicity report"); err != nil {
		t.Fatalf("ToggleBan: %v", err)
	}
	if !s.banned[10] {
		t.Fatalf("expected player 10 banned")
	}
	if len(q.removed) != 1 || q.removed[0] != 10 {
		t.Fatalf("expected ban to dequeue player 10, got %v", q.removed)
	}

	if err := e.ToggleBan(context.Background(), 1, "admin1", 10, false, "appeal accepted"); err != nil {
		t.Fatalf("ToggleBan unban: %v", err)
	}
	if s.banned[10] {
		t.Fatalf("expected player 10 unbanned")
	}
	if len(q.removed) != 1 {
		t.Fatalf("expected unban not to touch the queue, got %v", q.removed)
	}
}

func TestEmergencyClearQueueDequeuesAndNotifiesEveryEntry(t *testing.T) {
	s := newFakeStore()
	q := &fakeQueue{entries: []queue.Entry{{PlayerUID: 10}, {PlayerUID: 20}, {PlayerUID: 30}}}
	n := &fakeNotifier{}
	e := newTestEngine(s, q, &fakeMatchReporter{store: s}, n)

	cleared, err := e.EmergencyClearQueue(context.Background(), 1, "admin1", "queue desync")
	if err != nil {
		t.Fatalf("EmergencyClearQueue: %v", err)
	}
	if cleared != 3 {
		t.Fatalf("expected 3 cleared, got %d", cleared)
	}
	if len(q.removed) != 3 {
		t.Fatalf("expected 3 dequeues, got %d", len(q.removed))
	}
	if len(n.sent) != 3 {
		t.Fatalf("expected 3 notifications, got %d", len(n.sent))
	}
	if len(s.actions) != 1 || s.actions[0].ActionType != "emergency_clear_queue" {
		t.Fatalf("expected one emergency_clear_queue audit record, got %v", s.actions)
	}
}

func reportPtr(r domain.Report) *domain.Report { return &r }
