package eventlog

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"deficore/core/events"
)

const (
	defaultBatchSize = 256
	flushInterval    = 500 * time.Millisecond
	maxAttempts      = 3
)

// Writer is an events.Emitter that persists events off the call path. Emit
// never blocks; when the queue is full the event is dropped and logged.
type Writer struct {
	store  *Store
	queue  chan events.Event
	logger *slog.Logger

	wg       sync.WaitGroup
	stopOnce sync.Once
	stop     chan struct{}

	mu      sync.Mutex
	dropped uint64
}

// NewWriter starts the background flush loop.
func NewWriter(store *Store, buffer int, logger *slog.Logger) *Writer {
	if buffer <= 0 {
		buffer = 1024
	}
	if logger == nil {
		logger = slog.Default()
	}
	w := &Writer{
		store:  store,
		queue:  make(chan events.Event, buffer),
		logger: logger,
		stop:   make(chan struct{}),
	}
	w.wg.Add(1)
	go w.run()
	return w
}

// Emit implements events.Emitter.
func (w *Writer) Emit(ev events.Event) {
	if ev == nil {
		return
	}
	select {
	case w.queue <- ev:
	default:
		w.mu.Lock()
		w.dropped++
		w.mu.Unlock()
		w.logger.Warn("eventlog queue full, dropping event", slog.String("type", ev.EventType()))
	}
}

// Dropped reports how many events were discarded because the queue was full.
func (w *Writer) Dropped() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.dropped
}

// Close drains the queue and stops the loop.
func (w *Writer) Close() {
	w.stopOnce.Do(func() { close(w.stop) })
	w.wg.Wait()
}

func (w *Writer) run() {
	defer w.wg.Done()
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()
	batch := make([]events.Event, 0, defaultBatchSize)
	for {
		select {
		case ev := <-w.queue:
			batch = append(batch, ev)
			if len(batch) >= defaultBatchSize {
				batch = w.flush(batch)
			}
		case <-ticker.C:
			batch = w.flush(batch)
		case <-w.stop:
			for {
				select {
				case ev := <-w.queue:
					batch = append(batch, ev)
				default:
					w.flush(batch)
					return
				}
			}
		}
	}
}

func (w *Writer) flush(batch []events.Event) []events.Event {
	if len(batch) == 0 {
		return batch
	}
	records, err := w.store.prepare(batch)
	if err != nil {
		w.logger.Error("eventlog prepare failed", slog.String("error", err.Error()))
		return batch[:0]
	}
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err = w.store.insert(ctx, records)
		cancel()
		if err == nil {
			break
		}
		w.logger.Warn("eventlog insert failed",
			slog.Int("attempt", attempt),
			slog.Int("records", len(records)),
			slog.String("error", err.Error()))
		time.Sleep(time.Duration(attempt) * 100 * time.Millisecond)
	}
	return batch[:0]
}
