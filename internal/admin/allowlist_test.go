package admin

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
)

func writeAllowlist(t *testing.T, entries []rosterEntry) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "allowlist.json")
	data, err := json.Marshal(entries)
	if err != nil {
		t.Fatalf("marshal fixture: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	return path
}

func TestLoadAllowlistOwnersAreAdmins(t *testing.T) {
	path := writeAllowlist(t, []rosterEntry{
		{DiscordID: 1, Name: "owner1", Role: roleOwner},
		{DiscordID: 2, Name: "admin1", Role: roleAdmin},
	})
	a, err := LoadAllowlist(path)
	if err != nil {
		t.Fatalf("LoadAllowlist: %v", err)
	}
	if !a.IsOwner(1) || !a.IsAdmin(1) {
		t.Error("expected uid 1 to be owner and admin")
	}
	if a.IsOwner(2) {
		t.Error("expected uid 2 not to be owner")
	}
	if !a.IsAdmin(2) {
		t.Error("expected uid 2 to be admin")
	}
	if a.IsAdmin(3) {
		t.Error("expected uid 3 to be neither")
	}
}

func TestGrantAdminPersistsRosterToDisk(t *testing.T) {
	path := writeAllowlist(t, []rosterEntry{{DiscordID: 1, Name: "owner1", Role: roleOwner}})
	a, err := LoadAllowlist(path)
	if err != nil {
		t.Fatalf("LoadAllowlist: %v", err)
	}

	a.GrantAdmin(5, "newadmin")
	if err := a.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	reloaded, err := LoadAllowlist(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if !reloaded.IsAdmin(5) {
		t.Error("expected uid 5 to be admin after reload")
	}
	if reloaded.IsOwner(5) {
		t.Error("expected uid 5 not to be owner")
	}
}

func TestGrantAdminDoesNotDemoteExistingOwner(t *testing.T) {
	path := writeAllowlist(t, []rosterEntry{{DiscordID: 1, Name: "owner1", Role: roleOwner}})
	a, err := LoadAllowlist(path)
	if err != nil {
		t.Fatalf("LoadAllowlist: %v", err)
	}

	a.GrantAdmin(1, "owner1")
	if !a.IsOwner(1) {
		t.Error("expected owner to remain owner after a redundant grant")
	}
}

func TestRevokeAdminCannotDemoteOwner(t *testing.T) {
	path := writeAllowlist(t, []rosterEntry{{DiscordID: 1, Name: "owner1", Role: roleOwner}})
	a, err := LoadAllowlist(path)
	if err != nil {
		t.Fatalf("LoadAllowlist: %v", err)
	}

	a.RevokeAdmin(1)
	if !a.IsAdmin(1) || !a.IsOwner(1) {
		t.Error("expected owner to survive a revoke attempt")
	}
}

func TestToggleAdminRejectsNonOwnerCaller(t *testing.T) {
	path := writeAllowlist(t, []rosterEntry{{DiscordID: 1, Name: "owner1", Role: roleOwner}, {DiscordID: 2, Name: "admin1", Role: roleAdmin}})
	a, err := LoadAllowlist(path)
	if err != nil {
		t.Fatalf("LoadAllowlist: %v", err)
	}
	s := newFakeStore()
	e := New(a, s, &fakeQueue{}, &fakeMatchReporter{store: s}, &fakeNotifier{}, zerolog.Nop())

	if err := e.ToggleAdmin(context.Background(), 2, "admin1", 9, "newguy", true, "trying anyway"); err == nil {
		t.Fatal("expected non-owner caller to be rejected")
	}
	if a.IsAdmin(9) {
		t.Error("expected roster unchanged after rejected call")
	}
}

func TestToggleAdminGrantAndRevokeByOwnerAreAuditedAndPersisted(t *testing.T) {
	path := writeAllowlist(t, []rosterEntry{{DiscordID: 1, Name: "owner1", Role: roleOwner}})
	a, err := LoadAllowlist(path)
	if err != nil {
		t.Fatalf("LoadAllowlist: %v", err)
	}
	s := newFakeStore()
	e := New(a, s, &fakeQueue{}, &fakeMatchReporter{store: s}, &fakeNotifier{}, zerolog.Nop())

	if err := e.ToggleAdmin(context.Background(), 1, "owner1", 9, "newguy", true, "promoted"); err != nil {
		t.Fatalf("ToggleAdmin grant: %v", err)
	}
	if !a.IsAdmin(9) {
		t.Error("expected uid 9 to be admin after grant")
	}
	reloaded, err := LoadAllowlist(path)
	if err != nil {
		t.Fatalf("reload after grant: %v", err)
	}
	if !reloaded.IsAdmin(9) {
		t.Error("expected grant to be persisted to disk")
	}

	if err := e.ToggleAdmin(context.Background(), 1, "owner1", 9, "newguy", false, "demoted"); err != nil {
		t.Fatalf("ToggleAdmin revoke: %v", err)
	}
	if a.IsAdmin(9) {
		t.Error("expected uid 9 to no longer be admin after revoke")
	}

	if len(s.actions) != 2 {
		t.Fatalf("expected 2 audit records, got %d", len(s.actions))
	}
	if s.actions[0].ActionType != "toggle_admin" || s.actions[1].ActionType != "toggle_admin" {
		t.Errorf("expected both actions to be toggle_admin, got %v", s.actions)
	}
}
