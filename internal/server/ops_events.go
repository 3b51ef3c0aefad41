package server

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	OpsKindSessionOpened   = "session_opened"
	OpsKindSessionClosed   = "session_closed"
	OpsKindBrokerConnected = "broker_connected"
	OpsKindBrokerLost      = "broker_lost"
)

// OpsEvent is an operational record; it never carries telemetry values.
type OpsEvent struct {
	ID        int64  `json:"id"`
	Timestamp int64  `json:"timestamp"`
	Kind      string `json:"kind"`
	Title     string `json:"title"`
	Detail    string `json:"detail"`
}

type OpsEventStore interface {
	AddOpsEvent(ctx context.Context, event OpsEvent) error
	LatestOpsEvents(ctx context.Context, limit int) ([]OpsEvent, error)
}

// MemoryOpsStore keeps the most recent events in process memory.
type MemoryOpsStore struct {
	mu        sync.RWMutex
	maxEvents int
	nextID    int64
	events    []OpsEvent
}

func NewMemoryOpsStore(maxEvents int) *MemoryOpsStore {
	if maxEvents <= 0 {
		maxEvents = 1000
	}

	return &MemoryOpsStore{
		maxEvents: maxEvents,
		events:    make([]OpsEvent, 0, maxEvents),
	}
}

func (store *MemoryOpsStore) AddOpsEvent(_ context.Context, event OpsEvent) error {
	store.mu.Lock()
	defer store.mu.Unlock()

	store.nextID++
	event.ID = store.nextID
	store.events = append(store.events, event)
	if len(store.events) > store.maxEvents {
		store.events = append([]OpsEvent(nil), store.events[len(store.events)-store.maxEvents:]...)
	}
	return nil
}

func (store *MemoryOpsStore) LatestOpsEvents(_ context.Context, limit int) ([]OpsEvent, error) {
	store.mu.RLock()
	defer store.mu.RUnlock()

	if limit <= 0 || limit > len(store.events) {
		limit = len(store.events)
	}

	start := len(store.events) - limit
	output := make([]OpsEvent, limit)
	copy(output, store.events[start:])
	return output, nil
}

// OpsRecorder writes events to a store from its own goroutine so neither the
// sessions nor the ingest listener ever wait on the store. A nil recorder
// discards everything.
type OpsRecorder struct {
	store  OpsEventStore
	events chan OpsEvent
	logger *zap.Logger
	now    func() time.Time
}

func NewOpsRecorder(store OpsEventStore, logger *zap.Logger, capacity int) *OpsRecorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	if capacity <= 0 {
		capacity = 256
	}

	return &OpsRecorder{
		store:  store,
		events: make(chan OpsEvent, capacity),
		logger: logger,
		now:    time.Now,
	}
}

func (recorder *OpsRecorder) Record(kind string, title string, detail string) {
	if recorder == nil {
		return
	}

	event := OpsEvent{
		Timestamp: recorder.now().UnixMilli(),
		Kind:      kind,
		Title:     title,
		Detail:    detail,
	}
	select {
	case recorder.events <- event:
	default:
		recorder.logger.Debug("ops event queue full, dropping event", zap.String("kind", kind))
	}
}

// Run persists queued events until ctx is cancelled, then flushes what is
// still queued with a short deadline.
func (recorder *OpsRecorder) Run(ctx context.Context) {
	for {
		select {
		case event := <-recorder.events:
			recorder.persist(ctx, event)
		case <-ctx.Done():
			recorder.flush()
			return
		}
	}
}

func (recorder *OpsRecorder) flush() {
	flushCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	for {
		select {
		case event := <-recorder.events:
			recorder.persist(flushCtx, event)
		default:
			return
		}
	}
}

func (recorder *OpsRecorder) persist(ctx context.Context, event OpsEvent) {
	writeCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := recorder.store.AddOpsEvent(writeCtx, event); err != nil {
		recorder.logger.Warn("failed to record ops event", zap.String("kind", event.Kind), zap.Error(err))
	}
}
