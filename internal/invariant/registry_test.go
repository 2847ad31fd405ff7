package invariant

import (
	"errors"
	"sync"
	"testing"

	"github.com/tjfontaine/llm-reliability/internal/domain"
)

func TestRegistry_RegisterDuplicate(t *testing.T) {
	reg := NewRegistry()

	if err := reg.Register(newStub("safety.test", CategorySafety, DefaultConfig())); err != nil {
		t.Fatalf("first Register() error = %v", err)
	}

	err := reg.Register(newStub("safety.test", CategorySafety, DefaultConfig()))
	if !errors.Is(err, domain.ErrDuplicateInvariant) {
		t.Errorf("second Register() error = %v, want ErrDuplicateInvariant", err)
	}
	if reg.Len() != 1 {
		t.Errorf("registry size = %d, want exactly 1 after duplicate rejection", reg.Len())
	}
}

func TestRegistry_RegisterInvalidConfig(t *testing.T) {
	reg := NewRegistry()

	cfg := DefaultConfig()
	cfg.SamplingRate = 0
	if err := reg.Register(newStub("bad.config", CategoryCustom, cfg)); err == nil {
		t.Error("expected error for invalid sampling rate")
	}
	if reg.Len() != 0 {
		t.Errorf("registry size = %d, want 0", reg.Len())
	}
}

func TestRegistry_UnregisterAbsentIsNoop(t *testing.T) {
	reg := NewRegistry()
	reg.Unregister("not.there")

	if err := reg.Register(newStub("a", CategorySafety, DefaultConfig())); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	reg.Unregister("a")
	reg.Unregister("a")
	if reg.Len() != 0 {
		t.Errorf("registry size = %d, want 0", reg.Len())
	}
}

func TestRegistry_Filters(t *testing.T) {
	reg := NewRegistry()

	disabled := DefaultConfig()
	disabled.Enabled = false

	for _, inv := range []Invariant{
		newStub("safety.a", CategorySafety, DefaultConfig()),
		newStub("safety.b", CategorySafety, disabled),
		newStub("compliance.a", CategoryCompliance, DefaultConfig()),
	} {
		if err := reg.Register(inv); err != nil {
			t.Fatalf("Register(%s) error = %v", inv.Metadata().ID, err)
		}
	}

	if got := len(reg.All()); got != 3 {
		t.Errorf("All() len = %d, want 3", got)
	}
	if got := len(reg.Enabled()); got != 2 {
		t.Errorf("Enabled() len = %d, want 2", got)
	}
	if got := len(reg.ByCategory(CategorySafety)); got != 2 {
		t.Errorf("ByCategory(safety) len = %d, want 2", got)
	}
	if got := len(reg.ByCategory(CategoryFactuality)); got != 0 {
		t.Errorf("ByCategory(factuality) len = %d, want 0", got)
	}

	if _, ok := reg.Get("compliance.a"); !ok {
		t.Error("Get(compliance.a) not found")
	}
	if _, ok := reg.Get("missing"); ok {
		t.Error("Get(missing) unexpectedly found")
	}
}

func TestRegistry_ConcurrentReaders(t *testing.T) {
	reg := NewRegistry()
	if err := reg.Register(newStub("safety.a", CategorySafety, DefaultConfig())); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				reg.Get("safety.a")
				reg.Enabled()
				reg.All()
			}
		}()
	}
	// Interleave writes with the readers.
	for i := 0; i < 50; i++ {
		id := "churn"
		_ = reg.Register(newStub(id, CategoryCustom, DefaultConfig()))
		reg.Unregister(id)
	}
	wg.Wait()
}
