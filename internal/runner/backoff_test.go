package runner

import "testing"

func makeDeterministicBackoff() *BackoffState {
	return NewBackoffState(500, 30_000, 2.0, 0.0)
}

func TestBackoffInitialDelayIsInitialMs(t *testing.T) {
	b := makeDeterministicBackoff()
	if d := b.NextDelayMs(); d != 500 {
		t.Fatalf("expected first delay 500, got %d", d)
	}
}

func TestBackoffDelayGrowsExponentially(t *testing.T) {
	b := makeDeterministicBackoff()
	d0 := b.NextDelayMs()
	d1 := b.NextDelayMs()
	d2 := b.NextDelayMs()
	if d0 != 500 || d1 != 1000 || d2 != 2000 {
		t.Fatalf("expected 500,1000,2000 got %d,%d,%d", d0, d1, d2)
	}
}

func TestBackoffDelayCappedAtMax(t *testing.T) {
	b := NewBackoffState(20_000, 30_000, 2.0, 0.0)
	d0 := b.NextDelayMs()
	d1 := b.NextDelayMs()
	if d0 != 20_000 || d1 != 30_000 {
		t.Fatalf("expected 20000,30000 got %d,%d", d0, d1)
	}
}

func TestBackoffAttemptsCounterTracksCalls(t *testing.T) {
	b := makeDeterministicBackoff()
	if b.Attempts() != 0 {
		t.Fatal("expected 0 attempts initially")
	}
	b.NextDelayMs()
	if b.Attempts() != 1 {
		t.Fatal("expected 1 attempt")
	}
	b.NextDelayMs()
	if b.Attempts() != 2 {
		t.Fatal("expected 2 attempts")
	}
}

func TestBackoffResetRestoresInitialState(t *testing.T) {
	b := makeDeterministicBackoff()
	b.NextDelayMs()
	b.NextDelayMs()
	b.Reset()
	if b.Attempts() != 0 {
		t.Fatal("expected attempts reset to 0")
	}
	if d := b.NextDelayMs(); d != 500 {
		t.Fatalf("expected 500 after reset, got %d", d)
	}
}

func TestBackoffFromConfigUsesDefaultJitter(t *testing.T) {
	b := NewBackoffFromConfig(500, 30_000, 2.0)
	if b.jitterRatio != 0.2 {
		t.Fatalf("expected default jitter ratio 0.2, got %f", b.jitterRatio)
	}
}

func TestBackoffNeverExceedsCapOverTwentyCalls(t *testing.T) {
	b := NewBackoffState(500, 30_000, 2.0, 0.0)
	for i := 0; i < 20; i++ {
		if d := b.NextDelayMs(); d > 30_000 {
			t.Fatalf("iteration %d: delay %d exceeded cap", i, d)
		}
	}
}
