package audit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/claimlens/claimlens/internal/pipeline"
)

// Recorder buffers run records and writes them from background workers.
// Record never blocks: when the buffer is full the record is dropped with a
// warning, because the prediction response must not wait on the audit trail.
type Recorder struct {
	store   *Store
	logger  *slog.Logger
	workers int
	timeout time.Duration

	ch   chan pipeline.RunRecord
	wg   sync.WaitGroup
	once sync.Once

	mu     sync.Mutex
	closed bool
}

type Option func(*Recorder)

func WithWorkers(n int) Option {
	return func(r *Recorder) {
		if n > 0 {
			r.workers = n
		}
	}
}

func WithQueueSize(n int) Option {
	return func(r *Recorder) {
		if n > 0 {
			r.ch = make(chan pipeline.RunRecord, n)
		}
	}
}

func WithInsertTimeout(d time.Duration) Option {
	return func(r *Recorder) {
		if d > 0 {
			r.timeout = d
		}
	}
}

func NewRecorder(store *Store, logger *slog.Logger, opts ...Option) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Recorder{
		store:   store,
		logger:  logger,
		workers: 2,
		timeout: 5 * time.Second,
		ch:      make(chan pipeline.RunRecord, 256),
	}
	for _, o := range opts {
		o(r)
	}
	r.start()
	return r
}

func (r *Recorder) start() {
	r.once.Do(func() {
		for i := 0; i < r.workers; i++ {
			r.wg.Add(1)
			go func(workerID int) {
				defer r.wg.Done()
				r.logger.Info("audit worker started", "worker_id", workerID)

				for rec := range r.ch {
					ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
					err := r.store.InsertRun(ctx, rec)
					cancel()

					if err != nil {
						r.logger.Error("audit insert failed", "worker_id", workerID, "run_id", rec.RunID, "error", err)
					} else {
						r.logger.Debug("audit insert ok", "worker_id", workerID, "run_id", rec.RunID)
					}
				}

				r.logger.Info("audit worker stopped", "worker_id", workerID)
			}(i + 1)
		}
	})
}

// Record implements pipeline.Recorder.
func (r *Recorder) Record(rec pipeline.RunRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		r.logger.Warn("cannot record: recorder is shutting down", "run_id", rec.RunID)
		return
	}
	select {
	case r.ch <- rec:
	default:
		r.logger.Warn("audit queue full, record dropped", "run_id", rec.RunID)
	}
}

// Shutdown stops intake and waits for buffered records to drain, bounded by
// the context.
func (r *Recorder) Shutdown(ctx context.Context) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	close(r.ch)
	r.mu.Unlock()

	done := make(chan struct{})
	go func() { defer close(done); r.wg.Wait() }()

	select {
	case <-ctx.Done():
		r.logger.Warn("audit shutdown interrupted by context")
	case <-done:
		r.logger.Info("audit queue drained, shutdown complete")
	}
}
