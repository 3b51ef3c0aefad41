package server

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryAddRemoveCounts(t *testing.T) {
	registry := NewRegistry()
	opened := time.Unix(1738886400, 0)

	assert.Equal(t, 1, registry.Add(SessionInfo{ID: "b", Remote: "10.0.0.2", OpenedAt: opened.Add(time.Second)}))
	assert.Equal(t, 2, registry.Add(SessionInfo{ID: "a", Remote: "10.0.0.1", OpenedAt: opened}))
	assert.Equal(t, 2, registry.Count())

	sessions := registry.Sessions()
	require.Len(t, sessions, 2)
	assert.Equal(t, "a", sessions[0].ID)
	assert.Equal(t, "b", sessions[1].ID)

	assert.Equal(t, 1, registry.Remove("a"))
	assert.Equal(t, 1, registry.Remove("a"), "removing twice is harmless")
	assert.Equal(t, 0, registry.Remove("b"))
}

func TestRegistryConcurrentSessions(t *testing.T) {
	registry := NewRegistry()

	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("session-%d", i)
			registry.Add(SessionInfo{ID: id, OpenedAt: time.Now()})
			_ = registry.Sessions()
			registry.Remove(id)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 0, registry.Count())
}
