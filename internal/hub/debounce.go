package hub

import (
	"sync"
	"time"
)

// Debouncer coalesces bursts of triggers per key into one call made
// interval after the first trigger.
type Debouncer struct {
	mu       sync.Mutex
	pending  map[string]*time.Timer
	interval time.Duration
	onFlush  func(key string)
}

func NewDebouncer(interval time.Duration, onFlush func(string)) *Debouncer {
	return &Debouncer{
		pending:  make(map[string]*time.Timer),
		interval: interval,
		onFlush:  onFlush,
	}
}

func (d *Debouncer) Trigger(key string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.pending[key]; exists {
		return
	}
	d.pending[key] = time.AfterFunc(d.interval, func() {
		d.flush(key)
	})
}

func (d *Debouncer) flush(key string) {
	d.mu.Lock()
	timer, exists := d.pending[key]
	if !exists {
		d.mu.Unlock()
		return
	}
	delete(d.pending, key)
	d.mu.Unlock()

	timer.Stop()
	if d.onFlush != nil {
		d.onFlush(key)
	}
}

// FlushAll runs every pending call now.
func (d *Debouncer) FlushAll() {
	d.mu.Lock()
	keys := make([]string, 0, len(d.pending))
	for k := range d.pending {
		keys = append(keys, k)
	}
	d.mu.Unlock()

	for _, k := range keys {
		d.flush(k)
	}
}
