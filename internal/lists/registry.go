package lists

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

type entry struct {
	store    *Store
	lastUsed time.Time
}

// Registry holds one Store per signed in user.
type Registry struct {
	remote Remote
	logger zerolog.Logger
	now    func() time.Time

	mu     sync.Mutex
	stores map[string]*entry
}

func NewRegistry(remote Remote, logger zerolog.Logger) *Registry {
	return &Registry{
		remote: remote,
		logger: logger,
		now:    time.Now,
		stores: make(map[string]*entry),
	}
}

// Get returns the user's store, creating an empty one on first use.
func (r *Registry) Get(userID string) *Store {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.stores[userID]
	if !ok {
		e = &entry{store: NewStore(userID, r.remote, r.logger)}
		r.stores[userID] = e
	}
	e.lastUsed = r.now()
	return e.store
}

// Close resets and forgets the user's store. Called on sign out.
func (r *Registry) Close(userID string) {
	r.mu.Lock()
	e, ok := r.stores[userID]
	delete(r.stores, userID)
	r.mu.Unlock()

	if ok {
		e.store.Reset()
	}
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.stores)
}

// Prune drops stores idle for longer than maxIdle. Stores with live
// subscribers are kept. The data stays remote and is fetched again on the
// next Get.
func (r *Registry) Prune(maxIdle time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.now().Add(-maxIdle)
	n := 0
	for id, e := range r.stores {
		if e.lastUsed.Before(cutoff) && e.store.subscriberCount() == 0 {
			delete(r.stores, id)
			n++
		}
	}
	return n
}

// Run prunes idle stores every interval until ctx is done.
func (r *Registry) Run(ctx context.Context, interval, maxIdle time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := r.Prune(maxIdle); n > 0 {
				r.logger.Debug().Int("pruned", n).Msg("pruned idle list stores")
			}
		}
	}
}
