package tier

import (
	"sync"
	"testing"

	"github.com/toolwarden/toolwarden/internal/capability"
)

func TestClassifyStaticDefault(t *testing.T) {
	c := NewClassifier()

	cl := c.Classify("sandbox_exec")
	if cl.Tier != OwnerOnly {
		t.Errorf("expected owner_only for sandbox_exec, got %s", cl.Tier)
	}
	if !cl.Requires.Contains(capability.CodeExecution) {
		t.Error("sandbox_exec should require code_execution")
	}
	if cl.Reason == "" {
		t.Error("expected a non-empty reason")
	}
}

func TestClassifyUnknownFallsOpenToSafe(t *testing.T) {
	c := NewClassifier()

	cl := c.Classify("never_registered")
	if cl.Tier != Safe {
		t.Errorf("unknown tool should classify safe, got %s", cl.Tier)
	}
	if cl.Reason != genericReason(Safe) {
		t.Errorf("expected generic safe reason, got %q", cl.Reason)
	}
	if len(cl.Requires) != 0 {
		t.Errorf("unknown tool should require no capabilities, got %v", cl.Requires.Names())
	}
}

func TestOverrideSupersedesDefault(t *testing.T) {
	c := NewClassifier()

	c.SetOverride("calculator", Blocked)
	if got := c.Classify("calculator").Tier; got != Blocked {
		t.Errorf("override should win, got %s", got)
	}
}

func TestRemoveOverrideRestoresPriorClassification(t *testing.T) {
	c := NewClassifier()
	before := c.Classify("web_search")

	c.SetOverride("web_search", Blocked)
	c.RemoveOverride("web_search")

	after := c.Classify("web_search")
	if after.Tier != before.Tier || after.Reason != before.Reason {
		t.Errorf("expected classification restored exactly: before=%+v after=%+v", before, after)
	}
}

func TestOverrideClearsStaticReason(t *testing.T) {
	c := NewClassifier()
	c.SetOverride("web_search", Safe)

	cl := c.Classify("web_search")
	if cl.Reason != genericReason(Safe) {
		t.Errorf("overridden tool should carry the tier-generic reason, got %q", cl.Reason)
	}
}

func TestAggregatesReflectOverrides(t *testing.T) {
	c := NewClassifier()
	c.SetOverride("calculator", Blocked)

	found := false
	for _, id := range c.BlockedTools() {
		if id == "calculator" {
			found = true
		}
		if id == "self_modification" {
			// static blocked entry still present
		}
	}
	if !found {
		t.Errorf("blocked aggregate should include overridden tool, got %v", c.BlockedTools())
	}

	for _, id := range c.OwnerOnlyTools() {
		if id == "calculator" {
			t.Error("calculator must not appear in owner_only aggregate")
		}
	}
}

func TestIsDangerous(t *testing.T) {
	c := NewClassifier()
	if c.IsDangerous("calculator") {
		t.Error("calculator should not be dangerous")
	}
	if !c.IsDangerous("telegram_bridge") {
		t.Error("telegram_bridge should be dangerous")
	}
}

func TestConcurrentClassify(t *testing.T) {
	c := NewClassifier()
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			c.Classify("web_search")
		}()
		go func() {
			defer wg.Done()
			c.SetOverride("web_search", OwnerOnly)
			c.RemoveOverride("web_search")
		}()
	}
	wg.Wait()
}
