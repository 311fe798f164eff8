package approval

import (
	"testing"
	"time"
)

func TestNoGrantDenies(t *testing.T) {
	s := NewStore()
	if s.Consume("web_search", "sess-1") {
		t.Error("empty store should not cover any invocation")
	}
}

func TestTimeBoxedGrantCoversRepeatedly(t *testing.T) {
	s := NewStore()
	s.Grant("web_search", "", time.Hour)

	if !s.Consume("web_search", "sess-1") || !s.Consume("web_search", "sess-2") {
		t.Error("time-boxed any-session grant should cover repeated use")
	}
}

func TestOneTimeGrantConsumed(t *testing.T) {
	s := NewStore()
	s.Grant("file_manager", "sess-1", 0)

	if !s.Consume("file_manager", "sess-1") {
		t.Fatal("first use should be covered")
	}
	if s.Consume("file_manager", "sess-1") {
		t.Error("one-time grant must not cover a second use")
	}
}

func TestSessionScoping(t *testing.T) {
	s := NewStore()
	s.Grant("web_search", "sess-1", time.Hour)

	if s.Consume("web_search", "sess-2") {
		t.Error("session-scoped grant must not cover another session")
	}
	if !s.Consume("web_search", "sess-1") {
		t.Error("matching session should be covered")
	}
}

func TestExpiredGrantDropped(t *testing.T) {
	s := NewStore()
	clock := time.Now().UTC()
	s.now = func() time.Time { return clock }

	s.Grant("web_search", "", time.Minute)
	clock = clock.Add(2 * time.Minute)

	if s.Consume("web_search", "sess-1") {
		t.Error("expired grant must not cover")
	}
	if len(s.List()) != 0 {
		t.Error("expired grants should not be listed")
	}
}

func TestRevoke(t *testing.T) {
	s := NewStore()
	s.Grant("web_search", "", time.Hour)
	s.Grant("web_search", "sess-1", time.Hour)

	if n := s.Revoke("web_search"); n != 2 {
		t.Errorf("expected 2 revoked, got %d", n)
	}
	if s.Consume("web_search", "sess-1") {
		t.Error("revoked tool must not be covered")
	}
}

func TestSyncHookFiresOnMutation(t *testing.T) {
	s := NewStore()
	var last []Grant
	calls := 0
	s.SetSync(func(snapshot []Grant) {
		last = snapshot
		calls++
	})

	s.Grant("file_manager", "", 0)
	if calls != 1 || len(last) != 1 {
		t.Fatalf("after Grant: calls = %d, snapshot = %d grants", calls, len(last))
	}

	if !s.Consume("file_manager", "sess-1") {
		t.Fatal("grant should cover first use")
	}
	if calls != 2 || len(last) != 0 {
		t.Errorf("after Consume: calls = %d, snapshot = %d grants, want consumed grant gone", calls, len(last))
	}

	s.Grant("web_search", "", time.Hour)
	s.Revoke("web_search")
	if calls != 4 || len(last) != 0 {
		t.Errorf("after Revoke: calls = %d, snapshot = %d grants", calls, len(last))
	}
}

func TestRestoreSkipsExpiredAndSilent(t *testing.T) {
	s := NewStore()
	fired := false
	s.SetSync(func([]Grant) { fired = true })

	past := time.Now().UTC().Add(-time.Minute)
	future := time.Now().UTC().Add(time.Hour)
	s.Restore(Grant{ToolID: "notes", SessionID: "*", GrantedAt: past.Add(-time.Hour), ExpiresAt: &past})
	s.Restore(Grant{ToolID: "web_search", SessionID: "*", GrantedAt: past, ExpiresAt: &future})

	if fired {
		t.Error("Restore must not fire the sync hook")
	}
	if s.Consume("notes", "sess-1") {
		t.Error("expired restored grant should not cover use")
	}
	if !s.Consume("web_search", "sess-1") {
		t.Error("live restored grant should cover use")
	}
}
