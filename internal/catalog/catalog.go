// Package catalog holds the read-only reference tables: races, maps,
// regions, countries, and the region-pair to server lookup. Grounded on
// the teacher's internal/data/champions.go, which loads a small static
// table into an embedded modernc.org/sqlite database once at startup and
// never mutates it again. This package does the same, but the "structured
// files" are embedded JSON (go:embed) rather than hardcoded Go literals,
// so the data can be edited without a rebuild of the loader logic.
package catalog

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"sort"

	_ "modernc.org/sqlite"
)

//go:embed data/*.json
var dataFS embed.FS

// Race is one of the six playable (game, race) combinations.
type Race struct {
	Code    string `json:"code"`
	Game    int    `json:"game"` // 1 = Brood War, 2 = StarCraft II
	Short   string `json:"short"`
	Display string `json:"display"`
}

type mapRow struct {
	Code    string `json:"code"`
	Display string `json:"display"`
	Active  bool   `json:"active"`
}

type regionRow struct {
	Code    string `json:"code"`
	Display string `json:"display"`
}

type countryRow struct {
	Code    string `json:"code"`
	Display string `json:"display"`
}

type serverPair struct {
	A      string `json:"a"`
	B      string `json:"b"`
	Server string `json:"server"`
}

type serverTable struct {
	Default string       `json:"default"`
	Pairs   []serverPair `json:"pairs"`
}

// Catalog is the immutable, loaded-once reference data set.
type Catalog struct {
	db *sql.DB

	races      []Race
	raceByCode map[string]Race
	maps       []mapRow
	activeMaps []string
	regions    []regionRow
	countries  []countryRow
	servers    serverTable
	serverIdx  map[string]string // unordered-pair key -> server code
}

// Load reads the embedded JSON files, populates an in-memory
// modernc.org/sqlite database (mirroring the teacher's champions.db), and
// returns the immutable Catalog. Thereafter all lookups are served from
// the decoded Go structures; the sqlite handle exists so the same
// reference tables can be queried by ad-hoc tooling/admin scripts via SQL,
// exactly as champions.go's db field is retained after init().
func Load(ctx context.Context) (*Catalog, error) {
	c := &Catalog{raceByCode: map[string]Race{}, serverIdx: map[string]string{}}

	if err := decodeJSON("data/races.json", &c.races); err != nil {
		return nil, err
	}
	if err := decodeJSON("data/maps.json", &c.maps); err != nil {
		return nil, err
	}
	if err := decodeJSON("data/regions.json", &c.regions); err != nil {
		return nil, err
	}
	if err := decodeJSON("data/countries.json", &c.countries); err != nil {
		return nil, err
	}
	if err := decodeJSON("data/servers.json", &c.servers); err != nil {
		return nil, err
	}

	for _, r := range c.races {
		c.raceByCode[r.Code] = r
	}
	for _, m := range c.maps {
		if m.Active {
			c.activeMaps = append(c.activeMaps, m.Code)
		}
	}
	sort.Strings(c.activeMaps)
	for _, p := range c.servers.Pairs {
		c.serverIdx[pairKey(p.A, p.B)] = p.Server
	}

	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("catalog: open sqlite: %w", err)
	}
	if err := seedSQLite(ctx, db, c); err != nil {
		db.Close()
		return nil, err
	}
	c.db = db

	return c, nil
}

// Close releases the backing sqlite handle.
func (c *Catalog) Close() error {
	if c.db == nil {
		return nil
	}
	return c.db.Close()
}

func decodeJSON(name string, out interface{}) error {
	b, err := dataFS.ReadFile(name)
	if err != nil {
		return fmt.Errorf("catalog: read %s: %w", name, err)
	}
	if err := json.Unmarshal(b, out); err != nil {
		return fmt.Errorf("catalog: decode %s: %w", name, err)
	}
	return nil
}

func seedSQLite(ctx context.Context, db *sql.DB, c *Catalog) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE races (code TEXT PRIMARY KEY, game INTEGER, short TEXT, display TEXT);
		CREATE TABLE maps (code TEXT PRIMARY KEY, display TEXT, active INTEGER);
		CREATE TABLE regions (code TEXT PRIMARY KEY, display TEXT);
	`)
	if err != nil {
		return fmt.Errorf("catalog: create schema: %w", err)
	}
	for _, r := range c.races {
		if _, err := db.ExecContext(ctx, `INSERT INTO races (code, game, short, display) VALUES (?, ?, ?, ?)`,
			r.Code, r.Game, r.Short, r.Display); err != nil {
			return fmt.Errorf("catalog: seed races: %w", err)
		}
	}
	for _, m := range c.maps {
		active := 0
		if m.Active {
			active = 1
		}
		if _, err := db.ExecContext(ctx, `INSERT INTO maps (code, display, active) VALUES (?, ?, ?)`,
			m.Code, m.Display, active); err != nil {
			return fmt.Errorf("catalog: seed maps: %w", err)
		}
	}
	for _, r := range c.regions {
		if _, err := db.ExecContext(ctx, `INSERT INTO regions (code, display) VALUES (?, ?)`,
			r.Code, r.Display); err != nil {
			return fmt.Errorf("catalog: seed regions: %w", err)
		}
	}
	return nil
}

// Races returns the canonical display-ordered race list.
func (c *Catalog) Races() []Race {
	out := make([]Race, len(c.races))
	copy(out, c.races)
	return out
}

// RaceShortName returns the 2-char abbreviation for a race code, e.g. "T1".
func (c *Catalog) RaceShortName(race string) (string, bool) {
	r, ok := c.raceByCode[race]
	if !ok {
		return "", false
	}
	return r.Short, true
}

// RaceGame returns 1 (Brood War) or 2 (StarCraft II) for a race code.
func (c *Catalog) RaceGame(race string) (int, bool) {
	r, ok := c.raceByCode[race]
	if !ok {
		return 0, false
	}
	return r.Game, true
}

// ActiveMaps returns the ordered list of currently-active map codes.
func (c *Catalog) ActiveMaps() []string {
	out := make([]string, len(c.activeMaps))
	copy(out, c.activeMaps)
	return out
}

// BestServer resolves the server minimizing joint latency for an unordered
// region pair, falling back to the catalog's designated default region.
func (c *Catalog) BestServer(regionA, regionB string) string {
	if s, ok := c.serverIdx[pairKey(regionA, regionB)]; ok {
		return s
	}
	return c.servers.Default
}

func pairKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + "|" + b
}
