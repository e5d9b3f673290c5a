package ratelimit

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func TestFixedWindowLimiterQuota(t *testing.T) {
	srv := miniredis.RunT(t)
	limiter, err := NewFixedWindowLimiter(srv.Addr(), "", "test:ratelimit", 2, time.Second)
	if err != nil {
		t.Fatalf("new limiter: %v", err)
	}
	if !limiter.Allow("203.0.113.7") {
		t.Fatal("first request should pass")
	}
	if !limiter.Allow("203.0.113.7") {
		t.Fatal("second request should pass")
	}
	if limiter.Allow("203.0.113.7") {
		t.Fatal("third request should be blocked")
	}
	if !limiter.Allow("203.0.113.8") {
		t.Fatal("other keys keep their own quota")
	}
}

func TestFixedWindowLimiterFailsClosed(t *testing.T) {
	srv := miniredis.RunT(t)
	limiter, err := NewFixedWindowLimiter(srv.Addr(), "", "test:ratelimit", 1, time.Second)
	if err != nil {
		t.Fatalf("new limiter: %v", err)
	}
	srv.Close()
	if limiter.Allow("203.0.113.7") {
		t.Fatal("limiter should deny when redis is unreachable")
	}
}

func TestFixedWindowLimiterValidation(t *testing.T) {
	if _, err := NewFixedWindowLimiter("", "", "", 1, time.Second); err == nil {
		t.Fatal("expected error for empty addr")
	}
	if _, err := NewFixedWindowLimiter("localhost:6379", "", "", 0, time.Second); err == nil {
		t.Fatal("expected error for zero limit")
	}
}
