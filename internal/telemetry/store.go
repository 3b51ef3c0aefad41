package telemetry

import "sync"

// Store holds the most recent value per channel. Update applies a batch under
// the write lock so a Snapshot never observes half of a batch.
type Store struct {
	mu     sync.RWMutex
	values map[string]float64
}

func NewStore() *Store {
	return &Store{values: make(map[string]float64)}
}

func (store *Store) Update(batch map[string]float64) {
	if len(batch) == 0 {
		return
	}

	store.mu.Lock()
	defer store.mu.Unlock()

	for channel, value := range batch {
		store.values[channel] = value
	}
}

// Snapshot returns a copy of every channel received so far.
func (store *Store) Snapshot() map[string]float64 {
	store.mu.RLock()
	defer store.mu.RUnlock()

	output := make(map[string]float64, len(store.values))
	for channel, value := range store.values {
		output[channel] = value
	}
	return output
}

func (store *Store) Len() int {
	store.mu.RLock()
	defer store.mu.RUnlock()
	return len(store.values)
}
