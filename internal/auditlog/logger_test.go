package auditlog

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// captureStore records every batch it receives.
type captureStore struct {
	mu     sync.Mutex
	events []*Event
	closed bool
}

func (s *captureStore) WriteBatch(_ context.Context, events []*Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, events...)
	return nil
}

func (s *captureStore) Flush(context.Context) error { return nil }

func (s *captureStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *captureStore) all() []*Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Event, len(s.events))
	copy(out, s.events)
	return out
}

func TestLoggerFlushesOnClose(t *testing.T) {
	store := &captureStore{}
	logger := NewLogger(store, Config{Enabled: true, BufferSize: 10, FlushInterval: time.Hour})

	for i := 0; i < 3; i++ {
		logger.Write(&Event{ID: "e", Action: ActionAnonymize, Success: true})
	}
	require.NoError(t, logger.Close())

	assert.Len(t, store.all(), 3)
	assert.True(t, store.closed)
}

func TestLoggerFlushesOnInterval(t *testing.T) {
	store := &captureStore{}
	logger := NewLogger(store, Config{Enabled: true, BufferSize: 10, FlushInterval: 10 * time.Millisecond})
	defer logger.Close()

	logger.Write(&Event{ID: "e", Action: ActionDeAnonymize, Success: true})

	require.Eventually(t, func() bool {
		return len(store.all()) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestLoggerDropsWhenBufferFull(t *testing.T) {
	store := &captureStore{}
	logger := NewLogger(store, Config{Enabled: true, BufferSize: 1, FlushInterval: time.Hour})

	// The flush loop may consume some entries; writing well past capacity
	// must not block regardless.
	for i := 0; i < 100; i++ {
		logger.Write(&Event{ID: "e", Action: ActionAnonymize})
	}
	require.NoError(t, logger.Close())
	assert.NotEmpty(t, store.all())
}

func TestLoggerIgnoresNil(t *testing.T) {
	store := &captureStore{}
	logger := NewLogger(store, Config{Enabled: true})

	logger.Write(nil)
	require.NoError(t, logger.Close())
	assert.Empty(t, store.all())
}

func TestNoopLogger(t *testing.T) {
	logger := &NoopLogger{}
	logger.Write(&Event{ID: "e"})
	assert.False(t, logger.Config().Enabled)
	assert.NoError(t, logger.Close())
}
