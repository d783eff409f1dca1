package common

import (
	"errors"
	"testing"
)

func TestGuardNilView(t *testing.T) {
	if err := Guard(nil, "staking"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestPausesToggle(t *testing.T) {
	p := NewPauses("Staking")
	if err := Guard(p, "staking"); !errors.Is(err, ErrModulePaused) {
		t.Fatalf("expected ErrModulePaused, got %v", err)
	}
	if got := p.Paused(); len(got) != 1 || got[0] != "staking" {
		t.Fatalf("unexpected paused set: %v", got)
	}
	p.Set("staking", false)
	if err := Guard(p, "staking"); err != nil {
		t.Fatalf("expected resume, got %v", err)
	}
	if err := Guard(p, ""); err != nil {
		t.Fatalf("empty module must never be paused: %v", err)
	}
}
