package performance

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// ErrPoolExhausted is returned by Acquire when every worker is busy and the
// pool has reached its maximum size. The arrival is dropped, never queued.
var ErrPoolExhausted = errors.New("worker pool exhausted")

// ErrForeignWorker is returned by Release for a worker the pool does not own
// or that is not busy.
var ErrForeignWorker = errors.New("worker not busy in this pool")

// WorkerPool is a bounded, elastically sized set of reusable workers for one
// scenario.
//
// PreAllocated workers are created up front; further workers are created
// lazily by Acquire until Max is reached. The pool never shrinks during a
// run. The number of busy workers never exceeds Max.
//
// # Thread Safety
//
// WorkerPool is safe for concurrent use. Acquire and Release are serialized
// by a single mutex guarding the idle stack and the counters.
type WorkerPool struct {
	scenario     string
	preAllocated int
	max          int
	logger       *zap.Logger

	mu       sync.Mutex
	workers  []*Worker // All workers, indexed by ID-1
	idle     []*Worker // Idle stack; most recently released on top
	busy     int
	peakBusy int
	acquired int64
	dropped  int64
}

// PoolStats contains point-in-time pool statistics.
type PoolStats struct {
	Scenario     string `json:"scenario"`
	PreAllocated int    `json:"preAllocated"`
	Max          int    `json:"max"`
	Size         int    `json:"size"`     // Workers created so far
	Idle         int    `json:"idle"`     // Workers parked in the pool
	Busy         int    `json:"busy"`     // Workers running an iteration
	PeakBusy     int    `json:"peakBusy"` // High-water mark of Busy
	Acquired     int64  `json:"acquired"` // Successful Acquire calls
	Dropped      int64  `json:"dropped"`  // Acquire calls that found the pool exhausted
}

// NewWorkerPool creates a pool with preAllocated idle workers and room to
// grow to max.
func NewWorkerPool(scenario string, preAllocated, max int, logger *zap.Logger) (*WorkerPool, error) {
	if preAllocated < 0 {
		return nil, fmt.Errorf("preAllocated workers cannot be negative: %d", preAllocated)
	}
	if max < preAllocated {
		return nil, fmt.Errorf("max workers (%d) cannot be less than preAllocated (%d)", max, preAllocated)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	p := &WorkerPool{
		scenario:     scenario,
		preAllocated: preAllocated,
		max:          max,
		logger:       logger.With(zap.String("scenario", scenario)),
		workers:      make([]*Worker, 0, max),
		idle:         make([]*Worker, 0, max),
	}

	for i := 0; i < preAllocated; i++ {
		w := p.spawnLocked()
		p.idle = append(p.idle, w)
	}

	return p, nil
}

// spawnLocked creates and registers a new idle worker. Caller holds mu.
func (p *WorkerPool) spawnLocked() *Worker {
	w := newWorker(len(p.workers)+1, p.scenario)
	p.workers = append(p.workers, w)
	return w
}

// Acquire returns an idle worker marked busy, lazily creating one if the
// pool is below its maximum size. If every worker is busy and the pool is
// full, Acquire fails fast with ErrPoolExhausted.
func (p *WorkerPool) Acquire() (*Worker, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var w *Worker
	switch {
	case len(p.idle) > 0:
		w = p.idle[len(p.idle)-1]
		p.idle = p.idle[:len(p.idle)-1]
	case len(p.workers) < p.max:
		w = p.spawnLocked()
		p.logger.Debug("spawned worker beyond preallocation",
			zap.Int("worker", w.ID),
			zap.Int("size", len(p.workers)),
		)
	default:
		p.dropped++
		return nil, ErrPoolExhausted
	}

	w.markBusy()
	p.busy++
	p.acquired++
	if p.busy > p.peakBusy {
		p.peakBusy = p.busy
	}
	return w, nil
}

// Release returns a busy worker to the idle stack. It must be called exactly
// once per successful Acquire, whatever the iteration outcome.
func (p *WorkerPool) Release(w *Worker) error {
	if w == nil || w.Scenario != p.scenario {
		return ErrForeignWorker
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if w.ID < 1 || w.ID > len(p.workers) || p.workers[w.ID-1] != w || !w.markIdle() {
		return ErrForeignWorker
	}

	p.busy--
	p.idle = append(p.idle, w)
	return nil
}

// Max returns the maximum pool size.
func (p *WorkerPool) Max() int {
	return p.max
}

// Busy returns the number of workers currently running an iteration.
func (p *WorkerPool) Busy() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.busy
}

// Size returns how many workers have been created.
func (p *WorkerPool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.workers)
}

// Stats returns point-in-time pool statistics.
func (p *WorkerPool) Stats() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	return PoolStats{
		Scenario:     p.scenario,
		PreAllocated: p.preAllocated,
		Max:          p.max,
		Size:         len(p.workers),
		Idle:         len(p.idle),
		Busy:         p.busy,
		PeakBusy:     p.peakBusy,
		Acquired:     p.acquired,
		Dropped:      p.dropped,
	}
}
