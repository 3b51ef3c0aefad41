package server

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgresOpsStoreRoundTrip(t *testing.T) {
	databaseURL := os.Getenv("ARTISAN_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("ARTISAN_TEST_DATABASE_URL not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	store, err := NewPostgresOpsStore(ctx, databaseURL, 2)
	require.NoError(t, err)
	defer store.Close()

	marker := time.Now().UnixNano()
	require.NoError(t, store.AddOpsEvent(ctx, OpsEvent{Timestamp: marker, Kind: OpsKindSessionOpened, Title: "client connected", Detail: "127.0.0.1"}))
	require.NoError(t, store.AddOpsEvent(ctx, OpsEvent{Timestamp: marker + 1, Kind: OpsKindSessionClosed, Title: "client disconnected", Detail: "127.0.0.1"}))

	events, err := store.LatestOpsEvents(ctx, 2)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, marker, events[0].Timestamp)
	assert.Equal(t, OpsKindSessionClosed, events[1].Kind)
	assert.Less(t, events[0].ID, events[1].ID)
}

func TestNewPostgresOpsStoreRejectsBadURL(t *testing.T) {
	_, err := NewPostgresOpsStore(context.Background(), "postgres://%zz", 1)
	assert.ErrorContains(t, err, "parse database url")
}
