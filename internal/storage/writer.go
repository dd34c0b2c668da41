package storage

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/toko-cart/internal/obs"
)

// WriterOptions configures a Writer.
type WriterOptions struct {
	Logger  zerolog.Logger
	Timeout time.Duration
}

type pendingWrite struct {
	seq   uint64
	value any
}

// Writer persists the latest value for a single key on a background goroutine.
// Enqueue never blocks: a value still waiting to be written is replaced by the
// newer one, so only the most recent snapshot reaches the store. Write failures
// are logged and counted, never returned.
type Writer struct {
	store   Store
	key     string
	log     zerolog.Logger
	timeout time.Duration

	queue chan pendingWrite
	done  chan struct{}

	mu       sync.Mutex
	enqueued uint64
	written  uint64
	closed   bool
	stopped  bool
	progress chan struct{}
}

// NewWriter starts a writer for key. Callers must Close it to stop the goroutine.
func NewWriter(store Store, key string, opts WriterOptions) *Writer {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	w := &Writer{
		store:    store,
		key:      key,
		log:      opts.Logger,
		timeout:  timeout,
		queue:    make(chan pendingWrite, 1),
		done:     make(chan struct{}),
		progress: make(chan struct{}),
	}
	go w.run()
	return w
}

// Enqueue schedules v to be written. v must not be mutated afterwards.
func (w *Writer) Enqueue(v any) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	w.enqueued++
	item := pendingWrite{seq: w.enqueued, value: v}
	for {
		select {
		case w.queue <- item:
			return
		default:
		}
		// drop the superseded value still waiting in the slot
		select {
		case <-w.queue:
		default:
		}
	}
}

// Flush blocks until every value enqueued so far has been written or ctx ends.
func (w *Writer) Flush(ctx context.Context) error {
	for {
		w.mu.Lock()
		if w.stopped || w.written >= w.enqueued {
			w.mu.Unlock()
			return nil
		}
		wait := w.progress
		w.mu.Unlock()
		select {
		case <-wait:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Close writes any pending value and stops the background goroutine.
func (w *Writer) Close(ctx context.Context) error {
	w.mu.Lock()
	if !w.closed {
		w.closed = true
		close(w.queue)
	}
	w.mu.Unlock()
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Writer) run() {
	defer func() {
		w.mu.Lock()
		w.stopped = true
		close(w.progress)
		w.mu.Unlock()
		close(w.done)
	}()
	for item := range w.queue {
		w.write(item.value)
		w.mu.Lock()
		if item.seq > w.written {
			w.written = item.seq
		}
		close(w.progress)
		w.progress = make(chan struct{})
		w.mu.Unlock()
	}
}

func (w *Writer) write(v any) {
	if w.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()
	if err := w.store.Save(ctx, w.key, v); err != nil {
		if obs.StorageFailures != nil {
			obs.StorageFailures.WithLabelValues("save").Inc()
		}
		w.log.Warn().Err(err).Str("key", w.key).Msg("storage_write_failed")
	}
}
