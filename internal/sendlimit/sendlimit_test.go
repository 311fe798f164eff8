package sendlimit

import (
	"testing"
	"time"
)

func TestUnlimitedToolPasses(t *testing.T) {
	tr := NewTracker(nil)
	for i := 0; i < 100; i++ {
		if r := tr.Check("sess", "calculator"); r.Exceeded {
			t.Fatal("tool without a limit must never be throttled")
		}
	}
}

func TestBudgetExhaustion(t *testing.T) {
	tr := NewTracker(map[string]Limit{"communication_hub": {MaxSends: 2, Window: time.Hour}})

	if r := tr.Check("sess", "communication_hub"); r.Exceeded {
		t.Fatal("first send should pass")
	}
	if r := tr.Check("sess", "communication_hub"); r.Exceeded {
		t.Fatal("second send should pass")
	}
	r := tr.Check("sess", "communication_hub")
	if !r.Exceeded {
		t.Fatal("third send should be throttled")
	}
	if r.Reason == "" {
		t.Error("throttle must carry a reason")
	}
}

func TestSessionsIndependent(t *testing.T) {
	tr := NewTracker(map[string]Limit{"communication_hub": {MaxSends: 1, Window: time.Hour}})

	tr.Check("sess-a", "communication_hub")
	if r := tr.Check("sess-b", "communication_hub"); r.Exceeded {
		t.Error("sessions must have independent budgets")
	}
}

func TestPeekNeverCounts(t *testing.T) {
	tr := NewTracker(map[string]Limit{"communication_hub": {MaxSends: 2, Window: time.Hour}})

	for i := 0; i < 10; i++ {
		if r := tr.Peek("sess", "communication_hub"); r.Exceeded {
			t.Fatal("peeking must not spend the budget")
		}
	}
	tr.Check("sess", "communication_hub")
	tr.Check("sess", "communication_hub")

	r := tr.Peek("sess", "communication_hub")
	if !r.Exceeded || r.Current != 2 {
		t.Errorf("peek over an exhausted window should report 2/2 exceeded, got %+v", r)
	}
	if r.Reason == "" {
		t.Error("throttle must carry a reason")
	}
}

func TestPeekExpiredWindow(t *testing.T) {
	tr := NewTracker(map[string]Limit{"communication_hub": {MaxSends: 1, Window: time.Minute}})
	clock := time.Now()
	tr.now = func() time.Time { return clock }

	tr.Check("sess", "communication_hub")
	clock = clock.Add(2 * time.Minute)
	if r := tr.Peek("sess", "communication_hub"); r.Exceeded || r.Current != 0 {
		t.Errorf("an elapsed window should peek as fresh, got %+v", r)
	}
}

func TestWindowReset(t *testing.T) {
	tr := NewTracker(map[string]Limit{"communication_hub": {MaxSends: 1, Window: time.Minute}})
	clock := time.Now()
	tr.now = func() time.Time { return clock }

	tr.Check("sess", "communication_hub")
	if r := tr.Check("sess", "communication_hub"); !r.Exceeded {
		t.Fatal("budget should be exhausted")
	}

	clock = clock.Add(2 * time.Minute)
	if r := tr.Check("sess", "communication_hub"); r.Exceeded {
		t.Error("a fresh window should reset the budget")
	}
}
