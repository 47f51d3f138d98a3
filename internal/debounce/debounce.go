// Package debounce coalesces bursts of writes to the same key into one call
// that runs after a quiet period.
package debounce

import (
	"errors"
	"sync"
	"time"
)

// DefaultDelay is the quiet period used when none is configured.
const DefaultDelay = 250 * time.Millisecond

type (
	Debouncer struct {
		delay   time.Duration
		onError func(key string, err error)

		mu      sync.Mutex
		pending map[string]*entry
		flights map[string]*flight
		seq     uint64
		running sync.WaitGroup
		stopped bool
	}

	entry struct {
		timer *time.Timer
		fn    func() error
		seq   uint64
	}

	// flight serializes the calls of one key. last is the sequence number of
	// the newest call that ran.
	flight struct {
		mu   sync.Mutex
		refs int
		last uint64
	}
)

// New returns a Debouncer waiting delay after the last Schedule for a key.
// onError receives failures of timer-fired calls; it may be nil.
func New(delay time.Duration, onError func(key string, err error)) *Debouncer {
	if delay <= 0 {
		delay = DefaultDelay
	}
	return &Debouncer{
		delay:   delay,
		onError: onError,
		pending: make(map[string]*entry),
		flights: make(map[string]*flight),
	}
}

// Schedule arranges for fn to run once key has been quiet for the delay.
// A pending call for the same key is cancelled and replaced.
func (d *Debouncer) Schedule(key string, fn func() error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	if prev, ok := d.pending[key]; ok {
		prev.timer.Stop()
	}
	d.seq++
	e := &entry{fn: fn, seq: d.seq}
	e.timer = time.AfterFunc(d.delay, func() { d.fire(key, e) })
	d.pending[key] = e
}

func (d *Debouncer) fire(key string, e *entry) {
	d.mu.Lock()
	if d.pending[key] != e {
		// Replaced or flushed after the timer had already fired.
		d.mu.Unlock()
		return
	}
	delete(d.pending, key)
	d.running.Add(1)
	d.mu.Unlock()

	defer d.running.Done()
	if err := d.run(key, e); err != nil && d.onError != nil {
		d.onError(key, err)
	}
}

// run calls e.fn once no other call for key is running. A call that was
// overtaken by a newer one for the same key is skipped.
func (d *Debouncer) run(key string, e *entry) error {
	d.mu.Lock()
	f := d.flights[key]
	if f == nil {
		f = &flight{}
		d.flights[key] = f
	}
	f.refs++
	d.mu.Unlock()
	defer func() {
		d.mu.Lock()
		if f.refs--; f.refs == 0 {
			delete(d.flights, key)
		}
		d.mu.Unlock()
	}()

	f.mu.Lock()
	defer f.mu.Unlock()
	if e.seq < f.last {
		return nil
	}
	f.last = e.seq
	return e.fn()
}

// Cancel drops the pending call for key, if any.
func (d *Debouncer) Cancel(key string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if e, ok := d.pending[key]; ok {
		e.timer.Stop()
		delete(d.pending, key)
	}
}

// Flush runs every pending call now and waits for in-flight ones. It returns
// the joined errors of the calls it ran.
func (d *Debouncer) Flush() error {
	d.mu.Lock()
	due := make(map[string]*entry, len(d.pending))
	for key, e := range d.pending {
		e.timer.Stop()
		due[key] = e
		delete(d.pending, key)
	}
	d.mu.Unlock()

	var errs []error
	for key, e := range due {
		if err := d.run(key, e); err != nil {
			errs = append(errs, err)
		}
	}
	d.running.Wait()
	return errors.Join(errs...)
}

// Stop flushes pending calls and rejects any further Schedule.
func (d *Debouncer) Stop() error {
	err := d.Flush()
	d.mu.Lock()
	d.stopped = true
	d.mu.Unlock()
	return err
}

// Pending returns the number of keys waiting to be written.
func (d *Debouncer) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}
