// Package audit records authentication events. Recording never blocks the
// caller: entries are queued and written to a Sink by a single worker.
package audit

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"donorhub/backend/internal/audit/domain"
	"donorhub/backend/internal/ids"
)

const (
	// DefaultBufferSize is the queue length used when none is configured.
	DefaultBufferSize = 256
	// writeTimeout bounds a single sink write. Writes use a context detached
	// from the request so a finished request does not abort its audit entry.
	writeTimeout = 5 * time.Second
)

// Recorder is implemented by Logger. Services depend on it so tests can
// capture entries synchronously.
type Recorder interface {
	Record(ctx context.Context, e domain.Entry)
}

// Option configures a Logger.
type Option func(*Logger)

// WithBufferSize sets the queue length.
func WithBufferSize(n int) Option {
	return func(l *Logger) {
		if n > 0 {
			l.bufferSize = n
		}
	}
}

// WithLogger sets the logger used for dropped entries and sink failures.
func WithLogger(lg *slog.Logger) Option {
	return func(l *Logger) {
		if lg != nil {
			l.log = lg
		}
	}
}

// WithClock replaces the clock used to stamp entries.
func WithClock(now func() time.Time) Option {
	return func(l *Logger) {
		if now != nil {
			l.nowF = now
		}
	}
}

// WithDropHook registers fn to be called each time an entry is dropped.
func WithDropHook(fn func()) Option {
	return func(l *Logger) { l.onDrop = fn }
}

// Logger queues audit entries and writes them to a Sink in the background.
type Logger struct {
	sink       Sink
	bufferSize int
	log        *slog.Logger
	nowF       func() time.Time
	onDrop     func()

	ch        chan domain.Entry
	done      chan struct{}
	wg        sync.WaitGroup
	mu        sync.RWMutex
	closed    bool
	closeOnce sync.Once
	dropped   atomic.Uint64
}

// NewLogger starts a Logger writing to sink. Call Close to drain and stop it.
func NewLogger(sink Sink, opts ...Option) *Logger {
	if sink == nil {
		sink = NoopSink{}
	}
	l := &Logger{
		sink:       sink,
		bufferSize: DefaultBufferSize,
		log:        slog.Default(),
		nowF:       func() time.Time { return time.Now().UTC() },
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.ch = make(chan domain.Entry, l.bufferSize)
	l.wg.Add(1)
	go l.run()
	return l
}

// Record stamps e with an id and time if unset and queues it. When the queue
// is full or the logger is closed the entry is dropped and counted.
func (l *Logger) Record(_ context.Context, e domain.Entry) {
	if l == nil {
		return
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = l.nowF()
	}
	if e.ID == "" {
		e.ID = ids.NewAt(e.CreatedAt)
	}

	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		l.drop(e, "closed")
		return
	}
	select {
	case l.ch <- e:
	default:
		l.drop(e, "queue full")
	}
}

func (l *Logger) drop(e domain.Entry, why string) {
	l.dropped.Add(1)
	if l.onDrop != nil {
		l.onDrop()
	}
	l.log.Warn("audit entry dropped", "reason", why, "action", string(e.Action), "user_id", e.UserID)
}

// Dropped returns how many entries have been dropped since start.
func (l *Logger) Dropped() uint64 {
	if l == nil {
		return 0
	}
	return l.dropped.Load()
}

// Close stops accepting entries, writes everything already queued and waits
// for the worker to exit. Safe to call more than once.
func (l *Logger) Close() {
	if l == nil {
		return
	}
	l.closeOnce.Do(func() {
		l.mu.Lock()
		l.closed = true
		close(l.done)
		l.mu.Unlock()
		l.wg.Wait()
	})
}

func (l *Logger) run() {
	defer l.wg.Done()
	for {
		select {
		case e := <-l.ch:
			l.write(e)
		case <-l.done:
			for {
				select {
				case e := <-l.ch:
					l.write(e)
				default:
					return
				}
			}
		}
	}
}

func (l *Logger) write(e domain.Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := l.sink.Write(ctx, &e); err != nil {
		l.log.Error("audit sink write failed", "action", string(e.Action), "user_id", e.UserID, "error", err)
	}
}
