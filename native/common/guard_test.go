package common

import (
	"errors"
	"testing"
)

func TestGuardRespectsPauseSet(t *testing.T) {
	if err := Guard(nil, "comptroller"); err != nil {
		t.Fatalf("nil view must not block: %v", err)
	}
	set := NewPauseSet(" Comptroller ")
	if err := Guard(set, "comptroller"); !errors.Is(err, ErrModulePaused) {
		t.Fatalf("expected ErrModulePaused, got %v", err)
	}
	if err := Guard(set, "oracle"); err != nil {
		t.Fatalf("unexpected pause for oracle: %v", err)
	}
	set.Set("comptroller", false)
	if err := Guard(set, "comptroller"); err != nil {
		t.Fatalf("expected resume, got %v", err)
	}
	if got := set.Paused(); len(got) != 0 {
		t.Fatalf("expected no paused modules, got %v", got)
	}
}
