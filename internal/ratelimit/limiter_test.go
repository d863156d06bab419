package ratelimit

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"
)

func TestNew_Unlimited(t *testing.T) {
	for _, rps := range []float64{0, -1, math.Inf(1), math.NaN()} {
		l := New(rps)
		if l != nil {
			t.Errorf("New(%v) = %v, want nil", rps, l)
		}
		if l.Limit() != 0 {
			t.Errorf("nil limiter Limit() = %v, want 0", l.Limit())
		}

		start := time.Now()
		if err := l.Wait(context.Background()); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
		if elapsed := time.Since(start); elapsed > 10*time.Millisecond {
			t.Errorf("unlimited wait took %v", elapsed)
		}
	}
}

func TestLimiter_Limit(t *testing.T) {
	if got := New(2.5).Limit(); got != 2.5 {
		t.Errorf("Limit() = %v, want 2.5", got)
	}
}

func TestLimiter_Wait(t *testing.T) {
	l := New(1000)

	start := time.Now()
	if err := l.Wait(context.Background()); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 50*time.Millisecond {
		t.Errorf("wait took too long: %v", elapsed)
	}
}

func TestLimiter_ContextCancelled(t *testing.T) {
	l := New(1)
	_ = l.Wait(context.Background()) // exhaust the burst

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := l.Wait(ctx); err == nil {
		t.Error("expected error for cancelled context")
	}
}

func TestLimiter_Paces(t *testing.T) {
	l := New(10)

	start := time.Now()
	// first 10 are the burst, the next 5 need 500ms
	for i := 0; i < 15; i++ {
		if err := l.Wait(context.Background()); err != nil {
			t.Fatalf("wait failed: %v", err)
		}
	}
	if elapsed := time.Since(start); elapsed < 400*time.Millisecond {
		t.Errorf("rate limiting doesn't appear to be working, elapsed: %v", elapsed)
	}
}

func TestLimiter_FractionalRate(t *testing.T) {
	l := New(0.5)

	_ = l.Wait(context.Background())
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	// the next token is two seconds away
	if err := l.Wait(ctx); err == nil {
		t.Error("expected the second wait to exceed the deadline")
	}
}

func TestLimiter_ConcurrentWait(t *testing.T) {
	l := New(100)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				if err := l.Wait(context.Background()); err != nil {
					return
				}
			}
		}()
	}
	wg.Wait()
}
