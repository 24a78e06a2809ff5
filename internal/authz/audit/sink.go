// Package audit delivers authorization audit events to persistent storage.
// Emission is fire-and-forget: a full buffer drops the event rather than
// blocking an administrative mutation or an authorization decision.
package audit

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Event is a single audit record.
type Event struct {
	ID           uuid.UUID
	ActorID      int64
	Action       string
	ResourceType string
	ResourceID   string
	Details      map[string]any
	At           time.Time
}

// Recorder accepts audit events without blocking the caller.
type Recorder interface {
	Emit(event Event)
}

// Writer persists a batch of events. Implementations must be safe for use from
// a single background goroutine.
type Writer interface {
	Write(ctx context.Context, events []Event) error
}

// Sink buffers events on a channel and writes them from a background goroutine.
type Sink struct {
	writer  Writer
	logger  *slog.Logger
	events  chan Event
	dropped atomic.Int64
	done    chan struct{}
	once    sync.Once
	now     func() time.Time
}

const flushBatch = 64

// NewSink starts a sink with the given buffer size.
func NewSink(writer Writer, logger *slog.Logger, buffer int) *Sink {
	if buffer <= 0 {
		buffer = 1024
	}
	s := &Sink{
		writer: writer,
		logger: logger,
		events: make(chan Event, buffer),
		done:   make(chan struct{}),
		now:    time.Now,
	}
	go s.run()
	return s
}

// Emit enqueues the event, stamping id and timestamp when absent. It never
// blocks; when the buffer is full the event is counted as dropped.
func (s *Sink) Emit(event Event) {
	if s == nil {
		return
	}
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.At.IsZero() {
		event.At = s.now()
	}
	select {
	case s.events <- event:
	default:
		if s.dropped.Add(1)%100 == 1 {
			s.logger.Warn("audit buffer full, dropping events", slog.Int64("dropped", s.dropped.Load()))
		}
	}
}

// Dropped returns the number of events lost to a full buffer.
func (s *Sink) Dropped() int64 {
	return s.dropped.Load()
}

// Close drains buffered events and stops the writer goroutine.
func (s *Sink) Close() {
	s.once.Do(func() {
		close(s.events)
		<-s.done
	})
}

func (s *Sink) run() {
	defer close(s.done)
	batch := make([]Event, 0, flushBatch)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := s.writer.Write(ctx, batch); err != nil {
			s.logger.Error("audit write failed", slog.Any("error", err), slog.Int("events", len(batch)))
		}
		cancel()
		batch = batch[:0]
	}
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case event, ok := <-s.events:
			if !ok {
				flush()
				return
			}
			batch = append(batch, event)
			if len(batch) >= flushBatch {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}
