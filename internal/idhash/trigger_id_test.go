package idhash

import "testing"

func TestComputeTriggerID(t *testing.T) {
	id := ComputeTriggerID("JUP6LkbZbjS1jKKwapdHNy74zcZ3tLUZoi5QNyVTaV4", 250000000)
	if len(id) != 64 {
		t.Fatalf("length = %d, want 64", len(id))
	}
	if id != ComputeTriggerID("JUP6LkbZbjS1jKKwapdHNy74zcZ3tLUZoi5QNyVTaV4", 250000000) {
		t.Errorf("not deterministic")
	}
	if id == ComputeTriggerID("JUP6LkbZbjS1jKKwapdHNy74zcZ3tLUZoi5QNyVTaV4", 250000001) {
		t.Errorf("slot must change the ID")
	}
}

func TestComputeTriggerID_SeparatorMatters(t *testing.T) {
	// "ab|1" vs "a|b1" style ambiguity must not collide for numeric slots.
	if ComputeTriggerID("mint1", 23) == ComputeTriggerID("mint12", 3) {
		t.Errorf("IDs collided across entity/slot boundary")
	}
}
