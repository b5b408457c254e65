package repository

import (
	"context"
	"sync"
	"time"

	"physioheal/internal/models"
)

// MemoryStateRepository keeps sessions in process memory. Used when Redis
// is not configured and as the failover target.
type MemoryStateRepository struct {
	mu         sync.Mutex
	states     map[string]memoryEntry
	rateLimits map[string]*rateLimitEntry
	ttl        time.Duration
	now        func() time.Time
}

type memoryEntry struct {
	state     models.WizardState
	expiresAt time.Time
}

type rateLimitEntry struct {
	count     int
	expiresAt time.Time
}

func NewMemoryStateRepository(ttl time.Duration) *MemoryStateRepository {
	return &MemoryStateRepository{
		states:     make(map[string]memoryEntry),
		rateLimits: make(map[string]*rateLimitEntry),
		ttl:        ttl,
		now:        time.Now,
	}
}

// GetState returns a copy so callers can mutate it freely until SetState.
func (r *MemoryStateRepository) GetState(ctx context.Context, sessionID string) (*models.WizardState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.states[sessionID]
	if !ok {
		return nil, nil
	}
	if r.ttl > 0 && r.now().After(entry.expiresAt) {
		delete(r.states, sessionID)
		return nil, nil
	}
	state := entry.state
	return &state, nil
}

func (r *MemoryStateRepository) SetState(ctx context.Context, state *models.WizardState) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.states[state.SessionID] = memoryEntry{
		state:     *state,
		expiresAt: r.now().Add(r.ttl),
	}
	return nil
}

func (r *MemoryStateRepository) ClearState(ctx context.Context, sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.states, sessionID)
	return nil
}

func (r *MemoryStateRepository) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	entry, ok := r.rateLimits[key]
	if !ok || now.After(entry.expiresAt) {
		entry = &rateLimitEntry{expiresAt: now.Add(window)}
		r.rateLimits[key] = entry
	}
	entry.count++

	return entry.count <= limit, nil
}

// Sweep drops expired sessions and rate limit windows.
func (r *MemoryStateRepository) Sweep() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	removed := 0
	if r.ttl > 0 {
		for id, entry := range r.states {
			if now.After(entry.expiresAt) {
				delete(r.states, id)
				removed++
			}
		}
	}
	for key, entry := range r.rateLimits {
		if now.After(entry.expiresAt) {
			delete(r.rateLimits, key)
		}
	}
	return removed
}

// StartSweeper runs Sweep every interval until ctx is done.
func (r *MemoryStateRepository) StartSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep()
		}
	}
}
