package services

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

type countingSyncer struct {
	calls atomic.Int32
	err   error
}

func (s *countingSyncer) ProcessPending(context.Context) (int, error) {
	s.calls.Add(1)
	return 1, s.err
}

func TestDefaultSyncProcessorConfig(t *testing.T) {
	if got := DefaultSyncProcessorConfig().PollInterval; got != 30*time.Second {
		t.Errorf("expected PollInterval 30s, got %v", got)
	}
	p := NewSyncProcessor(nil, SyncProcessorConfig{})
	if p.config.PollInterval != 30*time.Second {
		t.Errorf("zero interval should fall back to default, got %v", p.config.PollInterval)
	}
}

func TestSyncProcessor_StartTwice(t *testing.T) {
	processor := NewSyncProcessor(&countingSyncer{}, SyncProcessorConfig{PollInterval: time.Hour})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := processor.Start(ctx); err != nil {
		t.Fatalf("first start: %v", err)
	}
	defer processor.Stop(context.Background())

	if err := processor.Start(ctx); err == nil {
		t.Error("expected error when starting already running processor")
	}
	if !processor.IsRunning() {
		t.Error("processor should report running")
	}
}

func TestSyncProcessor_StopNotRunning(t *testing.T) {
	processor := NewSyncProcessor(&countingSyncer{}, DefaultSyncProcessorConfig())
	if err := processor.Stop(context.Background()); err != nil {
		t.Errorf("Stop should not error when not running: %v", err)
	}
}

func TestSyncProcessor_PollsUntilStopped(t *testing.T) {
	syncer := &countingSyncer{err: errors.New("sheets down")}
	processor := NewSyncProcessor(syncer, SyncProcessorConfig{PollInterval: 10 * time.Millisecond})

	if err := processor.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for syncer.calls.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if err := processor.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if syncer.calls.Load() < 2 {
		t.Fatalf("expected repeated polls despite errors, got %d", syncer.calls.Load())
	}
	if processor.IsRunning() {
		t.Error("processor should not be running after Stop")
	}
}
