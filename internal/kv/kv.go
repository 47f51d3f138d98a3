package kv

import (
	"context"
	"encoding/json"
	"fmt"

	"byb/internal/core"
)

// Store is the local key-value contract shared by every backend.
// Get reports ok=false for a missing key; a missing key is not an error.
type Store interface {
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

const Prefix = "byb:"

const (
	StatsKey   = Prefix + "stats"
	BigGoalKey = Prefix + "bigGoal"
	SeedKey    = Prefix + "todos:seed"
	TodayKey   = Prefix + "today"
	VisionKey  = Prefix + "vision:v1"
)

// TodosKey is the key of the ledger day for d.
func TodosKey(d core.Date) string {
	return Prefix + "todos:" + d.String()
}

// DraftKey is the key of an in-progress wizard session.
func DraftKey(sessionID string) string {
	return Prefix + "zig:draft:" + sessionID
}

// GetJSON decodes the value at key into v.
func GetJSON(ctx context.Context, s Store, key string, v any) (bool, error) {
	raw, ok, err := s.Get(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return true, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

// SetJSON encodes v and stores it at key.
func SetJSON(ctx context.Context, s Store, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return s.Set(ctx, key, raw)
}
