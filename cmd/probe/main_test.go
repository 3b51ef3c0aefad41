package main

import (
	"bytes"
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"artisanbridge/internal/server"
	"artisanbridge/internal/telemetry"
)

func startBridge(t *testing.T) string {
	t.Helper()

	store := telemetry.NewStore()
	store.Update(map[string]float64{"ET": 300, "BT": 240})

	httpServer := httptest.NewServer(server.New(store).Handler())
	t.Cleanup(httpServer.Close)
	return "ws" + strings.TrimPrefix(httpServer.URL, "http") + "/"
}

func TestProbeEchoesRequestIDs(t *testing.T) {
	url := startBridge(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var out bytes.Buffer
	err := run(ctx, []string{"--url", url, "--count", "2", "--interval", "1ms"}, &out)
	require.NoError(t, err)

	text := out.String()
	assert.Contains(t, text, "Connected to WebSocket server at "+url)
	assert.Contains(t, text, `"id": 12345`)
	assert.Contains(t, text, `"id": 12346`)
	assert.Contains(t, text, `"ET": 300`)
	assert.Contains(t, text, `"BT": 240`)
}

func TestProbeWithoutID(t *testing.T) {
	url := startBridge(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var out bytes.Buffer
	err := run(ctx, []string{"--url", url, "--no-id", "--debug"}, &out)
	require.NoError(t, err)

	text := out.String()
	assert.Contains(t, text, "Received WebSocket response:")
	assert.Contains(t, text, `"id": `)
	assert.Contains(t, text, "Sending WebSocket request: map[command:getData machine:0]")
}

func TestProbeConnectFailure(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := run(ctx, []string{"--url", "ws://127.0.0.1:1/", "--timeout", "500ms"}, &bytes.Buffer{})
	require.Error(t, err)
}

func TestProbeRejectsZeroCount(t *testing.T) {
	err := run(context.Background(), []string{"--count", "0"}, &bytes.Buffer{})
	require.Error(t, err)
}
