package main

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRoastModelStaysInRange(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	model := roastModel{et: 180, bt: 150, targetET: 240}

	for range 500 {
		et, bt := model.next(rng)
		require.GreaterOrEqual(t, et, 20.0)
		require.LessOrEqual(t, et, 300.0)
		require.GreaterOrEqual(t, bt, 20.0)
		require.LessOrEqual(t, bt, 260.0)
	}
	assert.Greater(t, model.bt, 150.0, "BT should climb toward ET")
}

func TestRunScenarioPublishesReferencePayloads(t *testing.T) {
	var published []map[string]any
	publish := func(payload map[string]any) error {
		published = append(published, payload)
		return nil
	}

	err := runScenario(context.Background(), publish, time.Millisecond, zap.NewNop())
	require.NoError(t, err)

	require.Len(t, published, 3)
	assert.Equal(t, 300, published[0]["ET"])
	assert.Equal(t, 240, published[0]["BT"])
	assert.Equal(t, 301, published[1]["ET"])
	assert.Equal(t, 201.3, published[2]["BT"])
	assert.NotContains(t, published[2], "ET")
	for _, payload := range published {
		assert.Contains(t, payload, "timestamp")
	}
}

func TestRunScenarioStopsOnPublishError(t *testing.T) {
	calls := 0
	publish := func(map[string]any) error {
		calls++
		return errors.New("broker gone")
	}

	err := runScenario(context.Background(), publish, time.Millisecond, zap.NewNop())
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestRunScenarioStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	publish := func(map[string]any) error {
		calls++
		cancel()
		return nil
	}

	err := runScenario(ctx, publish, time.Hour, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}
