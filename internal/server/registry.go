package server

import (
	"sort"
	"sync"
	"time"
)

type SessionInfo struct {
	ID       string    `json:"id"`
	Remote   string    `json:"remote"`
	OpenedAt time.Time `json:"opened_at"`
}

// Registry tracks live sessions for reporting only; sessions never consult it.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]SessionInfo
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]SessionInfo)}
}

func (registry *Registry) Add(info SessionInfo) int {
	registry.mu.Lock()
	defer registry.mu.Unlock()

	registry.sessions[info.ID] = info
	return len(registry.sessions)
}

func (registry *Registry) Remove(id string) int {
	registry.mu.Lock()
	defer registry.mu.Unlock()

	delete(registry.sessions, id)
	return len(registry.sessions)
}

func (registry *Registry) Count() int {
	registry.mu.RLock()
	defer registry.mu.RUnlock()
	return len(registry.sessions)
}

// Sessions returns the live sessions ordered by open time.
func (registry *Registry) Sessions() []SessionInfo {
	registry.mu.RLock()
	output := make([]SessionInfo, 0, len(registry.sessions))
	for _, info := range registry.sessions {
		output = append(output, info)
	}
	registry.mu.RUnlock()

	sort.Slice(output, func(left, right int) bool {
		if output[left].OpenedAt.Equal(output[right].OpenedAt) {
			return output[left].ID < output[right].ID
		}
		return output[left].OpenedAt.Before(output[right].OpenedAt)
	})
	return output
}
