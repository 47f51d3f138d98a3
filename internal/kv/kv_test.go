package kv

import (
	"context"
	"errors"
	"testing"

	"byb/internal/core"
)

func TestKeys(t *testing.T) {
	if got := TodosKey(core.NewDate(2025, 2, 3)); got != "byb:todos:2025-02-03" {
		t.Fatalf("unexpected todos key %q", got)
	}
	if got := DraftKey("abc"); got != "byb:zig:draft:abc" {
		t.Fatalf("unexpected draft key %q", got)
	}
}

func TestMemoryRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	if _, ok, err := s.Get(ctx, "missing"); ok || err != nil {
		t.Fatalf("expected missing key, got ok=%v err=%v", ok, err)
	}
	if err := SetJSON(ctx, s, StatsKey, map[string]int{"a": 1}); err != nil {
		t.Fatalf("set: %v", err)
	}
	var got map[string]int
	ok, err := GetJSON(ctx, s, StatsKey, &got)
	if err != nil || !ok || got["a"] != 1 {
		t.Fatalf("unexpected get: %v %v %v", got, ok, err)
	}
	if err := s.Delete(ctx, StatsKey); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok, _ := s.Get(ctx, StatsKey); ok {
		t.Fatal("key still present after delete")
	}
	if s.Writes() != 1 {
		t.Fatalf("expected 1 write, got %d", s.Writes())
	}
}

func TestMemoryFail(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	boom := errors.New("disk full")
	s.Fail(boom)
	if err := s.Set(ctx, "k", []byte("v")); !errors.Is(err, boom) {
		t.Fatalf("expected injected error, got %v", err)
	}
	s.Fail(nil)
	if err := s.Set(ctx, "k", []byte("v")); err != nil {
		t.Fatalf("expected recovery, got %v", err)
	}
}

func TestGetJSONCorrupt(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	_ = s.Set(ctx, "k", []byte("{not json"))
	var v map[string]any
	ok, err := GetJSON(ctx, s, "k", &v)
	if !ok || err == nil {
		t.Fatalf("expected decode error for present key, got ok=%v err=%v", ok, err)
	}
}
