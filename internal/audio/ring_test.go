package audio

import (
	"testing"
)

func TestNewRingValidation(t *testing.T) {
	if _, err := NewRing(0); err == nil {
		t.Error("Expected error for zero capacity")
	}
	if _, err := NewRing(-5); err == nil {
		t.Error("Expected error for negative capacity")
	}
	r, err := NewRing(8)
	if err != nil {
		t.Fatalf("Failed to create ring: %v", err)
	}
	if r.Cap() != 8 {
		t.Errorf("Expected capacity 8, got %d", r.Cap())
	}
	if r.Len() != 0 {
		t.Errorf("Expected empty ring, got length %d", r.Len())
	}
}

func TestRingWriteAndSnapshot(t *testing.T) {
	r, err := NewRing(4)
	if err != nil {
		t.Fatalf("Failed to create ring: %v", err)
	}

	r.Write([]float32{1, 2})
	got := r.Snapshot()
	want := []float32{1, 2}
	if !equalSamples(got, want) {
		t.Errorf("Expected %v, got %v", want, got)
	}

	// Overflow drops the oldest samples.
	r.Write([]float32{3, 4, 5})
	got = r.Snapshot()
	want = []float32{2, 3, 4, 5}
	if !equalSamples(got, want) {
		t.Errorf("Expected %v after overflow, got %v", want, got)
	}
}

func TestRingLargeWrite(t *testing.T) {
	r, _ := NewRing(3)
	r.Write([]float32{1, 2, 3, 4, 5, 6})
	got := r.Snapshot()
	want := []float32{4, 5, 6}
	if !equalSamples(got, want) {
		t.Errorf("Expected trailing samples %v, got %v", want, got)
	}
}

func TestRingReset(t *testing.T) {
	r, _ := NewRing(4)
	r.Write([]float32{1, 2, 3})
	r.Reset()
	if r.Len() != 0 {
		t.Errorf("Expected empty ring after reset, got length %d", r.Len())
	}
	if got := r.Snapshot(); len(got) != 0 {
		t.Errorf("Expected empty snapshot after reset, got %v", got)
	}

	r.Write([]float32{7})
	if !equalSamples(r.Snapshot(), []float32{7}) {
		t.Errorf("Ring unusable after reset: %v", r.Snapshot())
	}
}

func TestRingWrapAround(t *testing.T) {
	r, _ := NewRing(4)
	for i := 0; i < 10; i++ {
		r.Write([]float32{float32(i)})
	}
	got := r.Snapshot()
	want := []float32{6, 7, 8, 9}
	if !equalSamples(got, want) {
		t.Errorf("Expected %v after repeated writes, got %v", want, got)
	}
}

func equalSamples(a, b []float32) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
