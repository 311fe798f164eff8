package audit

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/toolwarden/toolwarden/internal/capability"
)

func openTestLog(t *testing.T) (*Log, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	l, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { l.Close() })
	return l, path
}

func readEntries(t *testing.T, path string) []Entry {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	var entries []Entry
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var e Entry
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			t.Fatalf("bad line: %v", err)
		}
		entries = append(entries, e)
	}
	return entries
}

func TestChainIsValid(t *testing.T) {
	l, path := openTestLog(t)

	for i := 0; i < 5; i++ {
		if err := l.SecurityEvent("web_search", EventPolicyDecision, OutcomeBlocked, Details{
			Layer:  "tier",
			Reason: "requires approval",
		}); err != nil {
			t.Fatal(err)
		}
	}

	r := Verify(path)
	if !r.Valid {
		t.Fatalf("chain should verify: %s (line %d)", r.Error, r.ErrorLine)
	}
	if r.Lines != 5 {
		t.Errorf("expected 5 lines, got %d", r.Lines)
	}
}

func TestTamperDetected(t *testing.T) {
	l, path := openTestLog(t)
	for i := 0; i < 3; i++ {
		if err := l.SecurityEvent("notes", EventPluginExecution, OutcomeSuccess, Details{}); err != nil {
			t.Fatal(err)
		}
	}
	l.Close()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	tampered := []byte(string(data[:20]) + "X" + string(data[21:]))
	if err := os.WriteFile(path, tampered, 0600); err != nil {
		t.Fatal(err)
	}

	if r := Verify(path); r.Valid {
		t.Error("tampered log must not verify")
	}
}

func TestReopenContinuesChain(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")

	l, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := l.SecurityEvent("a", EventPolicyDecision, OutcomeAllowed, Details{}); err != nil {
		t.Fatal(err)
	}
	l.Close()

	l2, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := l2.SecurityEvent("b", EventPolicyDecision, OutcomeAllowed, Details{}); err != nil {
		t.Fatal(err)
	}
	l2.Close()

	if r := Verify(path); !r.Valid || r.Lines != 2 {
		t.Errorf("reopened chain should verify across restarts: %+v", r)
	}
}

func TestCapabilityDeniedRecord(t *testing.T) {
	l, path := openTestLog(t)

	missing := []capability.Capability{capability.SmsSend, capability.NetworkOutbound}
	if err := l.CapabilityDenied("communication_hub", missing); err != nil {
		t.Fatal(err)
	}

	entries := readEntries(t, path)
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	e := entries[0]
	if e.EventKind != EventCapabilityDenied || e.Outcome != OutcomeBlocked {
		t.Errorf("unexpected kind/outcome: %s/%s", e.EventKind, e.Outcome)
	}
	if len(e.Details.Missing) != 2 {
		t.Errorf("expected both missing capabilities recorded, got %v", e.Details.Missing)
	}
	if e.ID == "" {
		t.Error("entry should carry an id")
	}
}

func TestPluginExecutionRecord(t *testing.T) {
	l, path := openTestLog(t)

	if err := l.PluginExecution("calculator", DigestInput("2+2"), true, 12*time.Millisecond); err != nil {
		t.Fatal(err)
	}
	if err := l.PluginExecution("calculator", DigestInput("1/0"), false, 3*time.Millisecond); err != nil {
		t.Fatal(err)
	}

	entries := readEntries(t, path)
	if entries[0].Outcome != OutcomeSuccess || entries[1].Outcome != OutcomeFailure {
		t.Errorf("unexpected outcomes: %s, %s", entries[0].Outcome, entries[1].Outcome)
	}
	if entries[0].DurationMS != 12 {
		t.Errorf("expected 12ms, got %d", entries[0].DurationMS)
	}
	if entries[0].Details.InputDigest == entries[1].Details.InputDigest {
		t.Error("different inputs should digest differently")
	}
}

func TestOrderingPreserved(t *testing.T) {
	l, path := openTestLog(t)

	ids := []string{"first", "second", "third"}
	for _, id := range ids {
		if err := l.SecurityEvent(id, EventPolicyDecision, OutcomeAllowed, Details{}); err != nil {
			t.Fatal(err)
		}
	}

	entries := readEntries(t, path)
	for i, id := range ids {
		if entries[i].ToolID != id {
			t.Errorf("entry %d: expected %s, got %s", i, id, entries[i].ToolID)
		}
	}
}

func TestSnapshotMigrationRecord(t *testing.T) {
	l, path := openTestLog(t)

	if err := l.SnapshotMigration(1, 2, "added autonomy table"); err != nil {
		t.Fatal(err)
	}
	entries := readEntries(t, path)
	if entries[0].EventKind != EventSnapshotMigration {
		t.Errorf("unexpected kind %s", entries[0].EventKind)
	}
}
