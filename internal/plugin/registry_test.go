package plugin

import (
	"errors"
	"testing"
)

func TestResolveUnknown(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Resolve("nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestRegisterAndResolve(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(Calculator{}); err != nil {
		t.Fatal(err)
	}

	p, err := r.Resolve("calculator")
	if err != nil {
		t.Fatal(err)
	}
	out, err := p.Execute("6 * 7")
	if err != nil || out != "42" {
		t.Errorf("expected 42, got %q (%v)", out, err)
	}
}

func TestDisabledResolvesToError(t *testing.T) {
	r := NewRegistry()
	_ = r.Register(Calculator{})
	if !r.SetEnabled("calculator", false) {
		t.Fatal("SetEnabled should find the plugin")
	}

	if _, err := r.Resolve("calculator"); !errors.Is(err, ErrDisabled) {
		t.Errorf("expected ErrDisabled, got %v", err)
	}

	if r.SetEnabled("ghost", false) {
		t.Error("SetEnabled on unknown id should return false")
	}
}

func TestEnabledIDs(t *testing.T) {
	r := NewRegistry()
	_ = r.Register(Calculator{})
	_ = r.Register(DateTime{})
	r.SetEnabled("datetime", false)

	ids := r.EnabledIDs()
	if len(ids) != 1 || ids[0] != "calculator" {
		t.Errorf("expected [calculator], got %v", ids)
	}
	if len(r.IDs()) != 2 {
		t.Errorf("IDs should list disabled plugins too, got %v", r.IDs())
	}
}

func TestCalculatorErrors(t *testing.T) {
	c := Calculator{}
	for _, input := range []string{"", "1 +", "x + 1", "1 / 0", "1 ^ 2"} {
		if _, err := c.Execute(input); err == nil {
			t.Errorf("input %q should error", input)
		}
	}
}
