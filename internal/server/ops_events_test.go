package server

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryOpsStoreKeepsMostRecentEvents(t *testing.T) {
	store := NewMemoryOpsStore(2)
	ctx := context.Background()

	require.NoError(t, store.AddOpsEvent(ctx, OpsEvent{Kind: OpsKindSessionOpened, Title: "one"}))
	require.NoError(t, store.AddOpsEvent(ctx, OpsEvent{Kind: OpsKindSessionClosed, Title: "two"}))
	require.NoError(t, store.AddOpsEvent(ctx, OpsEvent{Kind: OpsKindBrokerLost, Title: "three"}))

	events, err := store.LatestOpsEvents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "two", events[0].Title)
	assert.Equal(t, "three", events[1].Title)
	assert.Equal(t, int64(3), events[1].ID)

	events, err = store.LatestOpsEvents(ctx, 1)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "three", events[0].Title)
}

type failingOpsStore struct {
	mu    sync.Mutex
	calls int
}

func (store *failingOpsStore) AddOpsEvent(context.Context, OpsEvent) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	store.calls++
	return errors.New("db down")
}

func (store *failingOpsStore) LatestOpsEvents(context.Context, int) ([]OpsEvent, error) {
	return nil, errors.New("db down")
}

func TestOpsRecorderPersistsQueuedEvents(t *testing.T) {
	store := NewMemoryOpsStore(10)
	recorder := NewOpsRecorder(store, nil, 8)
	recorder.now = func() time.Time { return time.UnixMilli(1738886400000) }

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		recorder.Run(ctx)
		close(done)
	}()

	recorder.Record(OpsKindBrokerConnected, "broker connected", "tcp://bombadil:1883")
	require.Eventually(t, func() bool {
		events, _ := store.LatestOpsEvents(context.Background(), 10)
		return len(events) == 1
	}, time.Second, time.Millisecond)

	cancel()
	<-done

	events, err := store.LatestOpsEvents(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, OpsKindBrokerConnected, events[0].Kind)
	assert.Equal(t, int64(1738886400000), events[0].Timestamp)
}

func TestOpsRecorderFlushesOnStop(t *testing.T) {
	store := NewMemoryOpsStore(10)
	recorder := NewOpsRecorder(store, nil, 8)
	recorder.Record(OpsKindSessionOpened, "client connected", "127.0.0.1")
	recorder.Record(OpsKindSessionClosed, "client disconnected", "127.0.0.1")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	recorder.Run(ctx)

	events, err := store.LatestOpsEvents(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, events, 2)
}

func TestOpsRecorderDropsWhenQueueFull(t *testing.T) {
	recorder := NewOpsRecorder(NewMemoryOpsStore(10), nil, 1)
	recorder.Record(OpsKindSessionOpened, "first", "")
	recorder.Record(OpsKindSessionOpened, "second", "")

	assert.Len(t, recorder.events, 1)
}

func TestOpsRecorderSurvivesStoreFailures(t *testing.T) {
	store := &failingOpsStore{}
	recorder := NewOpsRecorder(store, nil, 4)
	recorder.Record(OpsKindBrokerLost, "broker lost", "EOF")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	recorder.Run(ctx)

	assert.Equal(t, 1, store.calls)
}

func TestNilOpsRecorderDiscards(t *testing.T) {
	var recorder *OpsRecorder
	assert.NotPanics(t, func() { recorder.Record(OpsKindSessionOpened, "client connected", "") })
}
