package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
)

// Worker pool defaults.
const (
	DefaultWorkers   = 4
	DefaultQueueSize = 256
)

// ErrQueueFull is returned by Enqueue when the queue is at capacity.
// Callers can fall back to Process for backpressure.
var ErrQueueFull = errors.New("ingest queue is full")

// Runner processes documents on a bounded worker pool. Work for the same
// document is serialized through a keyed lock; distinct documents process
// in parallel.
type Runner struct {
	executor *Executor
	queue    chan uuid.UUID
	workers  int
	locks    keyedMutex
	logger   hclog.Logger

	mu      sync.Mutex
	started bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// RunnerConfig configures the worker pool.
type RunnerConfig struct {
	// Executor drives the pipeline. Required.
	Executor *Executor

	// Workers is the pool size. Default 4.
	Workers int

	// QueueSize bounds Enqueue. Default 256.
	QueueSize int

	Logger hclog.Logger
}

// NewRunner creates a runner. Start launches the workers.
func NewRunner(cfg RunnerConfig) (*Runner, error) {
	if cfg.Executor == nil {
		return nil, fmt.Errorf("ingest runner requires an executor")
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if cfg.Logger == nil {
		cfg.Logger = hclog.NewNullLogger()
	}

	return &Runner{
		executor: cfg.Executor,
		queue:    make(chan uuid.UUID, cfg.QueueSize),
		workers:  cfg.Workers,
		logger:   cfg.Logger.Named("ingest-runner"),
		stopCh:   make(chan struct{}),
	}, nil
}

// Start launches the worker pool. Workers exit when Stop is called or the
// context is cancelled.
func (r *Runner) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.started {
		r.mu.Unlock()
		return fmt.Errorf("ingest runner already started")
	}
	r.started = true
	r.mu.Unlock()

	r.logger.Info("starting ingest workers",
		"workers", r.workers,
		"queue_size", cap(r.queue))

	for i := 0; i < r.workers; i++ {
		r.wg.Add(1)
		go r.work(ctx, i)
	}
	return nil
}

func (r *Runner) work(ctx context.Context, worker int) {
	defer r.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stopCh:
			return
		case documentID := <-r.queue:
			if err := r.Process(ctx, documentID); err != nil {
				// Absorbed here: the document row carries the error
				// status for callers polling it.
				r.logger.Error("ingest failed",
					"worker", worker,
					"document_id", documentID,
					"error", err)
			}
		}
	}
}

// Started reports whether the worker pool is running.
func (r *Runner) Started() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.started {
		return false
	}
	select {
	case <-r.stopCh:
		return false
	default:
		return true
	}
}

// Enqueue schedules a document without blocking. Returns ErrQueueFull at
// capacity and an error once the runner has stopped.
func (r *Runner) Enqueue(documentID uuid.UUID) error {
	select {
	case <-r.stopCh:
		return fmt.Errorf("ingest runner is stopped")
	default:
	}

	select {
	case r.queue <- documentID:
		return nil
	default:
		return ErrQueueFull
	}
}

// Process runs the pipeline for one document synchronously, holding the
// document's lock for the duration.
func (r *Runner) Process(ctx context.Context, documentID uuid.UUID) error {
	unlock := r.locks.lock(documentID)
	defer unlock()
	return r.executor.Execute(ctx, documentID)
}

// Stop signals workers to finish their current document and waits for
// them. Queued documents that never reached a worker stay pending in the
// store for the next start.
func (r *Runner) Stop() {
	r.mu.Lock()
	select {
	case <-r.stopCh:
		r.mu.Unlock()
		return
	default:
		close(r.stopCh)
	}
	r.mu.Unlock()

	r.wg.Wait()

	if queued := len(r.queue); queued > 0 {
		r.logger.Warn("stopped with documents still queued", "queued", queued)
	}
}

// QueueDepth reports how many documents are waiting for a worker.
func (r *Runner) QueueDepth() int {
	return len(r.queue)
}

// keyedMutex serializes work per key while leaving distinct keys free to
// proceed concurrently. Entries are reference-counted and removed when the
// last holder releases, so the map stays bounded by in-flight keys.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// lock acquires the mutex for key and returns its release function.
func (k *keyedMutex) lock(key uuid.UUID) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[uuid.UUID]*lockEntry)
	}
	entry, ok := k.locks[key]
	if !ok {
		entry = &lockEntry{}
		k.locks[key] = entry
	}
	entry.refs++
	k.mu.Unlock()

	entry.mu.Lock()

	return func() {
		entry.mu.Unlock()

		k.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
