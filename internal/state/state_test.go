package state

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/toolwarden/toolwarden/internal/approval"
	"github.com/toolwarden/toolwarden/internal/autonomy"
	"github.com/toolwarden/toolwarden/internal/pairing"
	"github.com/toolwarden/toolwarden/internal/tier"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSchemaVersion(t *testing.T) {
	s := openStore(t)
	v, err := s.Version()
	if err != nil {
		t.Fatalf("Version: %v", err)
	}
	if v != schemaVersion {
		t.Errorf("version = %d, want %d", v, schemaVersion)
	}
}

func TestOverrideRoundTrip(t *testing.T) {
	s := openStore(t)

	if err := s.SaveOverride("web_search", tier.Safe); err != nil {
		t.Fatalf("SaveOverride: %v", err)
	}
	if err := s.SaveOverride("notes", tier.Blocked); err != nil {
		t.Fatalf("SaveOverride: %v", err)
	}
	// Upsert replaces
	if err := s.SaveOverride("web_search", tier.OwnerOnly); err != nil {
		t.Fatalf("SaveOverride upsert: %v", err)
	}

	got, err := s.Overrides()
	if err != nil {
		t.Fatalf("Overrides: %v", err)
	}
	if got["web_search"] != tier.OwnerOnly {
		t.Errorf("web_search = %v, want owner_only", got["web_search"])
	}
	if got["notes"] != tier.Blocked {
		t.Errorf("notes = %v, want blocked", got["notes"])
	}

	if err := s.DeleteOverride("notes"); err != nil {
		t.Fatalf("DeleteOverride: %v", err)
	}
	got, _ = s.Overrides()
	if _, ok := got["notes"]; ok {
		t.Error("notes override should be deleted")
	}
}

func TestPendingRequestsPruneExpired(t *testing.T) {
	s := openStore(t)
	now := time.Now().UTC()

	live := pairing.Request{
		Code: "ABCDEFGH", PrincipalID: "tg:100", DisplayName: "Alice",
		RequestedAt: now, ExpiresAt: now.Add(time.Hour),
	}
	dead := pairing.Request{
		Code: "JKMNPQRS", PrincipalID: "tg:200",
		RequestedAt: now.Add(-2 * time.Hour), ExpiresAt: now.Add(-time.Hour),
	}
	if err := s.SavePendingRequest(live); err != nil {
		t.Fatalf("SavePendingRequest: %v", err)
	}
	if err := s.SavePendingRequest(dead); err != nil {
		t.Fatalf("SavePendingRequest: %v", err)
	}

	got, err := s.PendingRequests()
	if err != nil {
		t.Fatalf("PendingRequests: %v", err)
	}
	if len(got) != 1 || got[0].Code != "ABCDEFGH" {
		t.Fatalf("pending = %+v, want only the live request", got)
	}
	if got[0].PrincipalID != "tg:100" || got[0].DisplayName != "Alice" {
		t.Errorf("request fields lost: %+v", got[0])
	}
}

func TestRestoreRehydratesComponents(t *testing.T) {
	s := openStore(t)
	now := time.Now().UTC()

	if err := s.SaveOverride("web_search", tier.Safe); err != nil {
		t.Fatalf("SaveOverride: %v", err)
	}
	if err := s.SaveAllowedPrincipal("tg:100"); err != nil {
		t.Fatalf("SaveAllowedPrincipal: %v", err)
	}
	if err := s.SavePendingRequest(pairing.Request{
		Code: "ABCDEFGH", PrincipalID: "tg:200",
		RequestedAt: now, ExpiresAt: now.Add(time.Hour),
	}); err != nil {
		t.Fatalf("SavePendingRequest: %v", err)
	}
	if err := s.SaveSignal("sandbox_exec", autonomy.Signal{Trusted: false, LastChecked: now}); err != nil {
		t.Fatalf("SaveSignal: %v", err)
	}

	cl := tier.NewClassifier()
	pm := pairing.NewManager(pairing.ModePairing)
	ap := autonomy.NewPolicy()
	if err := s.Restore(cl, pm, ap); err != nil {
		t.Fatalf("Restore: %v", err)
	}

	if got := cl.Classify("web_search"); got.Tier != tier.Safe {
		t.Errorf("restored override: web_search tier = %v, want safe", got.Tier)
	}
	if !pm.IsAllowed("tg:100") {
		t.Error("restored allow-list should include tg:100")
	}
	if _, err := pm.Lookup("ABCDEFGH"); err != nil {
		t.Errorf("restored pending request not found: %v", err)
	}
	if dec := ap.Evaluate("sandbox_exec"); dec.Allowed {
		t.Error("restored untrusted signal should deny sandbox_exec")
	}
}

func TestGrantsReplaceAndList(t *testing.T) {
	s := openStore(t)
	now := time.Now().UTC().Truncate(time.Second)
	exp := now.Add(time.Hour)

	grants := []approval.Grant{
		{ToolID: "communication_hub", SessionID: "*", OneTime: true, GrantedAt: now},
		{ToolID: "file_manager", SessionID: "sess-1", GrantedAt: now, ExpiresAt: &exp},
	}
	if err := s.ReplaceGrants(grants); err != nil {
		t.Fatalf("ReplaceGrants: %v", err)
	}

	got, err := s.Grants()
	if err != nil {
		t.Fatalf("Grants: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("grants = %d, want 2", len(got))
	}

	byTool := make(map[string]approval.Grant)
	for _, g := range got {
		byTool[g.ToolID] = g
	}
	if g := byTool["communication_hub"]; !g.OneTime || g.ExpiresAt != nil {
		t.Errorf("communication_hub grant = %+v, want one-time without expiry", g)
	}
	if g := byTool["file_manager"]; g.OneTime || g.ExpiresAt == nil || !g.ExpiresAt.Equal(exp) {
		t.Errorf("file_manager grant = %+v, want expiry %v", g, exp)
	}

	// Replace mirrors consumption: the one-time grant is gone.
	if err := s.ReplaceGrants(grants[1:]); err != nil {
		t.Fatalf("ReplaceGrants after consume: %v", err)
	}
	got, _ = s.Grants()
	if len(got) != 1 || got[0].ToolID != "file_manager" {
		t.Fatalf("grants after replace = %+v, want only file_manager", got)
	}
}

func TestKillswitchRoundTrip(t *testing.T) {
	s := openStore(t)

	engaged, _, err := s.Killswitch()
	if err != nil {
		t.Fatalf("Killswitch: %v", err)
	}
	if engaged {
		t.Error("fresh store should report disengaged")
	}

	if err := s.SaveKillswitch(true, "compromised telegram session"); err != nil {
		t.Fatalf("SaveKillswitch: %v", err)
	}
	engaged, reason, err := s.Killswitch()
	if err != nil {
		t.Fatalf("Killswitch: %v", err)
	}
	if !engaged || reason != "compromised telegram session" {
		t.Errorf("killswitch = (%v, %q), want engaged with reason", engaged, reason)
	}

	if err := s.SaveKillswitch(false, ""); err != nil {
		t.Fatalf("SaveKillswitch release: %v", err)
	}
	engaged, _, _ = s.Killswitch()
	if engaged {
		t.Error("killswitch should be disengaged after release")
	}
}

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	s1, err := Open(path)
	if err != nil {
		t.Fatalf("first Open: %v", err)
	}
	if err := s1.SaveAllowedPrincipal("tg:1"); err != nil {
		t.Fatalf("SaveAllowedPrincipal: %v", err)
	}
	s1.Close()

	s2, err := Open(path)
	if err != nil {
		t.Fatalf("second Open: %v", err)
	}
	defer s2.Close()
	principals, err := s2.AllowedPrincipals()
	if err != nil {
		t.Fatalf("AllowedPrincipals: %v", err)
	}
	if len(principals) != 1 || principals[0] != "tg:1" {
		t.Errorf("principals = %v, want [tg:1]", principals)
	}
}
