package netwait

import (
	"context"
	"net"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/crossley/gatewatch/internal/config"
)

func TestWaitEmptyProbeReturnsImmediately(t *testing.T) {
	called := false
	err := Wait(context.Background(), config.NetConfig{}, zap.NewNop(), func() {
		called = true
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if called {
		t.Error("onAttempt should not run without a probe address")
	}
}

func TestWaitSucceedsWhenProbeAnswers(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	cfg := config.NetConfig{
		Probe:       ln.Addr().String(),
		DialTimeout: time.Second,
		MaxWait:     5 * time.Second,
	}

	attempts := 0
	err = Wait(context.Background(), cfg, zap.NewNop(), func() {
		attempts++
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if attempts != 1 {
		t.Errorf("expected 1 attempt, got %d", attempts)
	}
}

func TestWaitRetriesUntilProbeAppears(t *testing.T) {
	// Grab a free port, then close it so the first dials fail.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	cfg := config.NetConfig{
		Probe:       addr,
		DialTimeout: time.Second,
		MaxWait:     10 * time.Second,
	}

	var attempts int32
	done := make(chan error, 1)
	go func() {
		done <- Wait(context.Background(), cfg, zap.NewNop(), func() {
			atomic.AddInt32(&attempts, 1)
		})
	}()

	// Bring the listener up after the first attempt has failed.
	time.Sleep(100 * time.Millisecond)
	ln2, err := net.Listen("tcp", addr)
	if err != nil {
		t.Fatalf("relisten: %v", err)
	}
	defer ln2.Close()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	case <-time.After(8 * time.Second):
		t.Fatal("wait did not return after probe came up")
	}

	if got := atomic.LoadInt32(&attempts); got < 2 {
		t.Errorf("expected at least 2 attempts, got %d", got)
	}
}

func TestWaitFailsAfterMaxWait(t *testing.T) {
	// Closed port, dials keep failing.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	cfg := config.NetConfig{
		Probe:       addr,
		DialTimeout: 200 * time.Millisecond,
		MaxWait:     200 * time.Millisecond,
	}

	start := time.Now()
	err = Wait(context.Background(), cfg, zap.NewNop(), nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "network probe") {
		t.Errorf("error should name the probe, got: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("wait took too long: %v", elapsed)
	}
}

func TestWaitCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	cfg := config.NetConfig{
		Probe:       addr,
		DialTimeout: time.Second,
		MaxWait:     time.Minute,
	}

	if err := Wait(ctx, cfg, zap.NewNop(), nil); err == nil {
		t.Fatal("expected error from cancelled context")
	}
}
