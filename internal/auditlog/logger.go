package auditlog

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// flushBatchSize triggers an early flush once this many events are pending.
const flushBatchSize = 100

// Logger provides async buffered audit logging with batch writes. Events
// are queued on a channel and flushed to the store either when the batch
// fills or at regular intervals. Write never blocks the request path.
type Logger struct {
	store         LogStore
	config        Config
	buffer        chan *Event
	done          chan struct{}
	wg            sync.WaitGroup
	flushInterval time.Duration
}

// NewLogger creates an async buffered Logger and starts its flush loop.
func NewLogger(store LogStore, cfg Config) *Logger {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1000
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 5 * time.Second
	}

	l := &Logger{
		store:         store,
		config:        cfg,
		buffer:        make(chan *Event, cfg.BufferSize),
		done:          make(chan struct{}),
		flushInterval: cfg.FlushInterval,
	}

	l.wg.Add(1)
	go l.flushLoop()

	return l
}

// Write queues an event for async persistence. If the buffer is full the
// event is dropped with a warning; audit pressure must not stall requests.
func (l *Logger) Write(event *Event) {
	if event == nil {
		return
	}

	select {
	case l.buffer <- event:
	default:
		slog.Warn("audit buffer full, dropping event",
			"action", event.Action,
			"identity_uuid", event.IdentityUUID,
		)
	}
}

// Config returns the logger configuration.
func (l *Logger) Config() Config {
	return l.config
}

// Close stops the flush loop, drains remaining events, and closes the
// store. Call during graceful shutdown.
func (l *Logger) Close() error {
	close(l.done)
	l.wg.Wait()
	return l.store.Close()
}

func (l *Logger) flushLoop() {
	defer l.wg.Done()

	ticker := time.NewTicker(l.flushInterval)
	defer ticker.Stop()

	batch := make([]*Event, 0, flushBatchSize)

	for {
		select {
		case event := <-l.buffer:
			batch = append(batch, event)
			if len(batch) >= flushBatchSize {
				l.flushBatch(batch)
				batch = make([]*Event, 0, flushBatchSize)
			}

		case <-ticker.C:
			if len(batch) > 0 {
				l.flushBatch(batch)
				batch = make([]*Event, 0, flushBatchSize)
			}

		case <-l.done:
			// Drain whatever queued before shutdown.
			close(l.buffer)
			for event := range l.buffer {
				batch = append(batch, event)
			}
			if len(batch) > 0 {
				l.flushBatch(batch)
			}
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			if err := l.store.Flush(ctx); err != nil {
				slog.Error("failed to flush audit store", "error", err)
			}
			cancel()
			return
		}
	}
}

func (l *Logger) flushBatch(batch []*Event) {
	if len(batch) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := l.store.WriteBatch(ctx, batch); err != nil {
		slog.Error("failed to write audit batch",
			"error", err,
			"count", len(batch),
		)
	}
}

// NoopLogger discards all events; used when auditing is disabled.
type NoopLogger struct{}

// Write does nothing.
func (l *NoopLogger) Write(_ *Event) {}

// Config returns a disabled config.
func (l *NoopLogger) Config() Config {
	return Config{Enabled: false}
}

// Close does nothing.
func (l *NoopLogger) Close() error {
	return nil
}

// LoggerInterface is satisfied by Logger and NoopLogger.
type LoggerInterface interface {
	Write(event *Event)
	Config() Config
	Close() error
}
