// Package vision stores the vision board: a short ordered list of image URLs.
package vision

import (
	"context"
	"encoding/json"
	"errors"
	"regexp"
	"strings"
	"sync"
	"time"

	"byb/internal/core"
	"byb/internal/debounce"
	"byb/internal/kv"
	applog "byb/internal/log"
	"byb/internal/metrics"
)

// MaxImages is the board capacity.
const MaxImages = 8

var (
	ErrInvalidURL = errors.New("image url must start with http://, https:// or data:image/")
	ErrBoardFull  = errors.New("vision board is full")
	ErrIndex      = errors.New("image index out of range")
)

var imageURL = regexp.MustCompile(`(?i)^(https?://\S+|data:image/)`)

type Board struct {
	store  kv.Store
	saver  *debounce.Debouncer
	logger *applog.Logger

	mu     sync.Mutex
	urls   []string
	loaded bool
}

func New(store kv.Store, autosaveDelay time.Duration, logger *applog.Logger) *Board {
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	b := &Board{store: store, logger: logger.WithComponent(applog.ComponentVision)}
	b.saver = debounce.New(autosaveDelay, func(key string, err error) {
		metrics.PersistenceErrors.WithLabelValues(applog.ComponentVision).Inc()
		b.logger.Error("Autosave failed", applog.FieldKey, key, applog.FieldError, err)
	})
	return b
}

// List returns the image URLs in display order.
func (b *Board) List(ctx context.Context) ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	err := b.load(ctx)
	return append([]string{}, b.urls...), err
}

// Add appends url to the board.
func (b *Board) Add(ctx context.Context, url string) ([]string, error) {
	url = strings.TrimSpace(url)
	if !imageURL.MatchString(url) {
		return nil, &core.ValidationError{Field: "url", Err: ErrInvalidURL}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	err := b.load(ctx)
	if len(b.urls) >= MaxImages {
		return append([]string{}, b.urls...), &core.ValidationError{Field: "url", Err: ErrBoardFull}
	}
	b.urls = append(b.urls, url)
	b.schedule()
	return append([]string{}, b.urls...), err
}

// Remove deletes the image at index.
func (b *Board) Remove(ctx context.Context, index int) ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	err := b.load(ctx)
	if index < 0 || index >= len(b.urls) {
		return append([]string{}, b.urls...), &core.ValidationError{Field: "index", Err: ErrIndex}
	}
	b.urls = append(b.urls[:index], b.urls[index+1:]...)
	b.schedule()
	return append([]string{}, b.urls...), err
}

// Move swaps the image at index with its neighbour in the direction of dir's
// sign.
// Moving past either end leaves the board unchanged.
func (b *Board) Move(ctx context.Context, index, dir int) ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	err := b.load(ctx)
	if index < 0 || index >= len(b.urls) {
		return append([]string{}, b.urls...), &core.ValidationError{Field: "index", Err: ErrIndex}
	}
	switch {
	case dir > 0:
		dir = 1
	case dir < 0:
		dir = -1
	}
	j := index + dir
	if dir != 0 && j >= 0 && j < len(b.urls) {
		b.urls[index], b.urls[j] = b.urls[j], b.urls[index]
		b.schedule()
	}
	return append([]string{}, b.urls...), err
}

// DailyPick returns the image highlighted on date, stable for the whole day.
func DailyPick(urls []string, date core.Date) (string, bool) {
	if len(urls) == 0 {
		return "", false
	}
	n := date.Year()*10000 + int(date.Month())*100 + date.Day()
	return urls[n%len(urls)], true
}

func (b *Board) Flush() error {
	return b.saver.Flush()
}

func (b *Board) Close() error {
	return b.saver.Stop()
}

// load reads the stored board once. b.mu must be held.
func (b *Board) load(ctx context.Context) error {
	if b.loaded {
		return nil
	}
	var urls []string
	found, err := kv.GetJSON(ctx, b.store, kv.VisionKey, &urls)
	if err != nil && !found {
		metrics.PersistenceErrors.WithLabelValues(applog.ComponentVision).Inc()
		return &core.PersistenceError{Op: "load", Key: kv.VisionKey, Err: err}
	}
	b.loaded = true
	if err != nil {
		b.logger.WarnContext(ctx, "Stored vision board is unreadable, starting empty", applog.FieldError, err)
		return nil
	}
	if len(urls) > MaxImages {
		urls = urls[:MaxImages]
	}
	b.urls = urls
	return nil
}

func (b *Board) schedule() {
	b.saver.Schedule(kv.VisionKey, func() error {
		b.mu.Lock()
		raw, err := json.Marshal(append([]string{}, b.urls...))
		b.mu.Unlock()
		if err != nil {
			return err
		}
		if err := b.store.Set(context.Background(), kv.VisionKey, raw); err != nil {
			return &core.PersistenceError{Op: applog.OpSave, Key: kv.VisionKey, Err: err}
		}
		return nil
	})
}
