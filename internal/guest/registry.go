package guest

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/vindennt/gearlist/internal/storage"
)

const sessionKey = "guestSession"

type entry struct {
	store    *Store
	lastUsed time.Time
}

// Registry hands out one Store per guest id.
type Registry struct {
	storage storage.Storage
	logger  zerolog.Logger
	now     func() time.Time

	loads singleflight.Group

	mu     sync.Mutex
	guests map[string]*entry
}

func NewRegistry(st storage.Storage, logger zerolog.Logger) *Registry {
	return &Registry{
		storage: st,
		logger:  logger,
		now:     time.Now,
		guests:  make(map[string]*entry),
	}
}

func prefix(guestID string) string {
	return "guest:" + guestID + ":"
}

// Get returns the store for guestID, rehydrating it from storage on first
// use. Loads run outside r.mu so a slow read only holds up its own guest.
func (r *Registry) Get(ctx context.Context, guestID string) *Store {
	if s := r.lookup(guestID); s != nil {
		return s
	}

	v, _, _ := r.loads.Do(guestID, func() (any, error) {
		if s := r.lookup(guestID); s != nil {
			return s, nil
		}

		// Shared by every caller waiting on this guest.
		lctx, cancel := persistContext(ctx)
		defer cancel()

		if err := r.storage.Set(lctx, prefix(guestID)+sessionKey, "true"); err != nil {
			r.logger.Warn().Err(err).Str("guest_id", guestID).Msg("failed to mark guest session")
		}
		s := NewStore(lctx, r.storage, prefix(guestID), r.logger.With().Str("guest_id", guestID).Logger())

		r.mu.Lock()
		r.guests[guestID] = &entry{store: s, lastUsed: r.now()}
		r.mu.Unlock()
		return s, nil
	})
	return v.(*Store)
}

func (r *Registry) lookup(guestID string) *Store {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.guests[guestID]
	if !ok {
		return nil
	}
	e.lastUsed = r.now()
	return e.store
}

// Clear wipes the guest's data and forgets the store.
func (r *Registry) Clear(ctx context.Context, guestID string) {
	r.mu.Lock()
	e, ok := r.guests[guestID]
	delete(r.guests, guestID)
	r.mu.Unlock()

	if ok {
		e.store.Clear(ctx)
	} else if err := r.storage.Remove(ctx, prefix(guestID)+dataKey); err != nil {
		r.logger.Warn().Err(err).Str("guest_id", guestID).Msg("failed to remove guest data")
	}

	if err := r.storage.Remove(ctx, prefix(guestID)+sessionKey); err != nil {
		r.logger.Warn().Err(err).Str("guest_id", guestID).Msg("failed to remove guest session")
	}
}

// Len reports the number of stores held in memory.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.guests)
}

// Prune drops in-memory stores idle for longer than maxIdle. Their data stays
// in storage and is rehydrated on the next Get.
func (r *Registry) Prune(maxIdle time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.now().Add(-maxIdle)
	n := 0
	for id, e := range r.guests {
		if e.lastUsed.Before(cutoff) {
			delete(r.guests, id)
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
				r.logger.Debug().Int("pruned", n).Msg("pruned idle guest stores")
			}
		}
	}
}
