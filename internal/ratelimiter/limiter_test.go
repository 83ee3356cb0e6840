package ratelimiter_test

import (
	"context"
	"testing"
	"time"

	"github.com/notifyhub/whatsapp-dispatcher/internal/ratelimiter"
)

func TestNew_DisabledIsNil(t *testing.T) {
	l := ratelimiter.New(0)
	if l != nil {
		t.Fatal("expected nil limiter for zero rate")
	}
	if err := l.Wait(context.Background()); err != nil {
		t.Fatalf("nil limiter must not block or fail, got %v", err)
	}
}

func TestLimiter_FirstWaitIsImmediate(t *testing.T) {
	l := ratelimiter.New(1)

	start := time.Now()
	if err := l.Wait(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if time.Since(start) > 100*time.Millisecond {
		t.Fatal("first token should be available immediately")
	}
}

func TestLimiter_WaitHonoursCancellation(t *testing.T) {
	l := ratelimiter.New(1)
	_ = l.Wait(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if err := l.Wait(ctx); err == nil {
		t.Fatal("expected error when the next token is a minute away")
	}
}
