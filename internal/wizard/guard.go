package wizard

import "sync"

// Guard admits at most one in-flight submission per key.
type Guard struct {
	inflight sync.Map
}

// TryAcquire marks key as busy. It returns false if key is already busy.
func (g *Guard) TryAcquire(key string) bool {
	_, loaded := g.inflight.LoadOrStore(key, struct{}{})
	return !loaded
}

func (g *Guard) Release(key string) {
	g.inflight.Delete(key)
}
