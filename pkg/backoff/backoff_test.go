package backoff

import "testing"

func TestMonotonicBaseModuloJitter(t *testing.T) {
	b := New(500, 10000, 0.5)
	wantBase := []int64{500, 1000, 2000, 4000, 8000, 10000, 10000}
	for _, base := range wantBase {
		d := b.Next()
		lo, hi := base-250, base+250
		if lo < 0 {
			lo = 0
		}
		if hi > 10000 {
			hi = 10000
		}
		if d < lo || d > hi {
			t.Fatalf("attempt delay %d outside [%d,%d] for base %d", d, lo, hi, base)
		}
	}
}

func TestResetZeroesAttempts(t *testing.T) {
	b := New(100, 1000, 0)
	b.Next()
	b.Next()
	b.Reset()
	if b.Attempts() != 0 {
		t.Fatalf("attempts not reset")
	}
	if d := b.Next(); d != 100 {
		t.Fatalf("first delay after reset = %d, want 100", d)
	}
}
