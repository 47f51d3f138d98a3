package kv

import (
	"context"
	"sync"
)

// Memory is an in-process Store used for tests and the memory backend.
type Memory struct {
	mu     sync.Mutex
	m      map[string][]byte
	writes int
	err    error
}

func NewMemory() *Memory {
	return &Memory{m: make(map[string][]byte)}
}

func (s *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, false, s.err
	}
	v, ok := s.m[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

func (s *Memory) Set(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.m[key] = append([]byte(nil), value...)
	s.writes++
	return nil
}

func (s *Memory) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	delete(s.m, key)
	return nil
}

// Fail makes every following call return err; nil restores normal behavior.
func (s *Memory) Fail(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

// Writes returns how many successful Set calls the store has seen.
func (s *Memory) Writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}

// Keys returns the stored keys in no particular order.
func (s *Memory) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.m))
	for k := range s.m {
		out = append(out, k)
	}
	return out
}
