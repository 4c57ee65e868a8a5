package replay

import (
	"context"
	"errors"
	"testing"

	"evoladder/internal/domain"
)

type fakeParser struct {
	meta  domain.ReplayMetadata
	err   error
	calls int
}

func (f *fakeParser) Submit(ctx context.Context, binary []byte) (domain.ReplayMetadata, error) {
	f.calls++
	return f.meta, f.err
}

type fakeCache struct {
	entries map[string]domain.ReplayMetadata
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: make(map[string]domain.ReplayMetadata)}
}

func (c *fakeCache) Get(ctx context.Context, sha256Hex string) (domain.ReplayMetadata, bool, error) {
	m, ok := c.entries[sha256Hex]
	return m, ok, nil
}

func (c *fakeCache) Put(ctx context.Context, sha256Hex string, meta domain.ReplayMetadata) error {
	c.entries[sha256Hex] = meta
	return nil
}

type fakeStore struct {
	matches       map[int64]domain.Match
	players       map[int64]domain.Player
	upsertedReplay domain.Replay
	replayPathSet  struct {
		matchID int64
		side    int
		path    string
	}
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		matches: make(map[int64]domain.Match),
		players: make(map[int64]domain.Player),
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

func (f *fakeStore) UpsertReplay(ctx context.Context, r domain.Replay, metadataJSON []byte) error {
	f.upsertedReplay = r
	return nil
}

func (f *fakeStore) UpdateMatchReplayPath(ctx context.Context, matchID int64, side int, path string) error {
	f.replayPathSet.matchID = matchID
	f.replayPathSet.side = side
	f.replayPathSet.path = path
	return nil
}

func baseMatch() domain.Match {
	return domain.Match{
		ID:          1,
		Player1UID:  10,
		Player2UID:  20,
		Player1Race: "bw_terran",
		Player2Race: "sc2_zerg",
		Map:         "Fighting Spirit",
	}
}

func baseStore() *fakeStore {
	s := newFakeStore()
	s.matches[1] = baseMatch()
	s.players[10] = domain.Player{DiscordUID: 10, DisplayName: "Flash", AltNames: []string{"zzzflash"}}
	s.players[20] = domain.Player{DiscordUID: 20, DisplayName: "Jaedong"}
	return s
}

func TestIngestPersistsReplayAndMatchPath(t *testing.T) {
	s := baseStore()
	parser := &fakeParser{meta: domain.ReplayMetadata{
		PlayerNames:     []string{"Flash", "Jaedong"},
		Races:           []string{"bw_terran", "sc2_zerg"},
		Map:             "fighting spirit",
		DurationSeconds: 900,
		WinnerAsParsed:  1,
	}}
	e := New(parser, s)

	result, err := e.Ingest(context.Background(), 10, 1, 1, "replays/abc.rep", []byte("binary"))
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if !result.NamesMatch || !result.RacesMatch || !result.MapMatch {
		t.Errorf("expected clean verification, got %+v", result)
	}
	if s.upsertedReplay.MatchID != 1 || s.upsertedReplay.Path != "replays/abc.rep" {
		t.Errorf("replay not persisted correctly: %+v", s.upsertedReplay)
	}
	if s.replayPathSet.matchID != 1 || s.replayPathSet.side != 1 || s.replayPathSet.path != "replays/abc.rep" {
		t.Errorf("match replay path not set correctly: %+v", s.replayPathSet)
	}
}

func TestIngestFlagsMismatchedNamesAndMap(t *testing.T) {
	s := baseStore()
	parser := &fakeParser{meta: domain.ReplayMetadata{
		PlayerNames: []string{"SomeoneElse", "AnotherPlayer"},
		Races:       []string{"bw_terran", "sc2_zerg"},
		Map:         "Different Map",
	}}
	e := New(parser, s)

	result, err := e.Ingest(context.Background(), 10, 1, 1, "replays/abc.rep", []byte("binary"))
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if result.NamesMatch {
		t.Error("expected NamesMatch false for unregistered names")
	}
	if result.MapMatch {
		t.Error("expected MapMatch false for differing maps")
	}
	// Verification failures are informational, not blocking: the replay
	// must still be persisted.
	if s.upsertedReplay.MatchID != 1 {
		t.Error("expected replay persisted even when verification flags anomalies")
	}
}

func TestIngestFlagsAnomalies(t *testing.T) {
	s := baseStore()
	parser := &fakeParser{meta: domain.ReplayMetadata{
		PlayerNames:     []string{"Flash", "Jaedong"},
		Races:           []string{"bw_terran", "sc2_zerg"},
		Map:             "Fighting Spirit",
		DurationSeconds: 999999,
		Observers:       []string{"caster1"},
	}}
	e := New(parser, s)

	result, err := e.Ingest(context.Background(), 10, 1, 1, "replays/abc.rep", []byte("binary"))
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if !result.ObserversPresent {
		t.Error("expected ObserversPresent true")
	}
	if !result.ExcessiveDuration {
		t.Error("expected ExcessiveDuration true")
	}
	if !result.CacheHandleAnomaly {
		t.Error("expected CacheHandleAnomaly true when no cache handles parsed")
	}
}

func TestIngestRejectsUnknownMatch(t *testing.T) {
	s := newFakeStore()
	e := New(&fakeParser{}, s)

	if _, err := e.Ingest(context.Background(), 10, 999, 1, "p", nil); err == nil {
		t.Error("expected error for unknown match")
	}
}

func TestIngestSurfacesParserFailure(t *testing.T) {
	s := baseStore()
	e := New(&fakeParser{err: errors.New("parser crashed")}, s)

	if _, err := e.Ingest(context.Background(), 10, 1, 1, "p", nil); err == nil {
		t.Error("expected parser failure to surface as an error")
	}
}

func TestWinnerConsistencyAgainstUploaderReport(t *testing.T) {
	s := baseStore()
	p1Win := domain.ReportP1Win
	m := s.matches[1]
	m.Player1Report = &p1Win
	s.matches[1] = m

	parser := &fakeParser{meta: domain.ReplayMetadata{
		PlayerNames:    []string{"Flash", "Jaedong"},
		Races:          []string{"bw_terran", "sc2_zerg"},
		Map:            "Fighting Spirit",
		WinnerAsParsed: 2,
	}}
	e := New(parser, s)

	result, err := e.Ingest(context.Background(), 10, 1, 1, "replays/abc.rep", []byte("binary"))
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if result.WinnerConsistent {
		t.Error("expected WinnerConsistent false when parsed winner contradicts reported winner")
	}
}

func TestIngestReusesCachedMetadataForByteIdenticalReupload(t *testing.T) {
	s := baseStore()
	parser := &fakeParser{meta: domain.ReplayMetadata{
		PlayerNames:    []string{"Flash", "Jaedong"},
		Races:          []string{"bw_terran", "sc2_zerg"},
		Map:            "Fighting Spirit",
		WinnerAsParsed: 1,
	}}
	e := NewWithCache(parser, s, newFakeCache())
	binary := []byte("replay-bytes")

	if _, err := e.Ingest(context.Background(), 10, 1, 1, "replays/abc.rep", binary); err != nil {
		t.Fatalf("first Ingest: %v", err)
	}
	if _, err := e.Ingest(context.Background(), 10, 1, 2, "replays/abc.rep", binary); err != nil {
		t.Fatalf("second Ingest: %v", err)
	}
	if parser.calls != 1 {
		t.Errorf("expected byte-identical re-upload to reuse the cache instead of re-parsing, got %d parser calls", parser.calls)
	}

	other := []byte("a different replay entirely")
	if _, err := e.Ingest(context.Background(), 20, 1, 2, "replays/def.rep", other); err != nil {
		t.Fatalf("third Ingest: %v", err)
	}
	if parser.calls != 2 {
		t.Errorf("expected distinct replay content to be parsed fresh, got %d parser calls", parser.calls)
	}
}
