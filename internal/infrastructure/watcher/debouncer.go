package watcher

import (
	"sort"
	"sync"
	"time"
)

// Debouncer collapses bursts of events per path into one batch after a quiet window.
// The latest operation for a path wins.
type Debouncer struct {
	window time.Duration

	mu      sync.Mutex
	pending map[string]Op
	timer   *time.Timer
	stopped bool
	output  chan []Event
}

func NewDebouncer(window time.Duration) *Debouncer {
	return &Debouncer{
		window:  window,
		pending: make(map[string]Op),
		output:  make(chan []Event, 16),
	}
}

func (d *Debouncer) Add(ev Event) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	d.pending[ev.Path] = ev.Op
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.window, d.flush)
}

// flush emits the pending events as one batch sorted by path.
func (d *Debouncer) flush() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped || len(d.pending) == 0 {
		return
	}

	batch := make([]Event, 0, len(d.pending))
	for path, op := range d.pending {
		batch = append(batch, Event{Path: path, Op: op})
	}
	sort.Slice(batch, func(i, j int) bool { return batch[i].Path < batch[j].Path })
	d.pending = make(map[string]Op)

	// a full channel means the consumer is far behind; the next burst will resend
	select {
	case d.output <- batch:
	default:
	}
}

func (d *Debouncer) Output() <-chan []Event {
	return d.output
}

func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
	}
}
