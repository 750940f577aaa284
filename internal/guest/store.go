// Package guest holds the list of a visitor without an account. A guest owns
// at most one list of at most models.MaxGuestItems items, kept in ephemeral
// storage for the lifetime of the guest session.
package guest

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/vindennt/gearlist/internal/models"
	"github.com/vindennt/gearlist/internal/storage"
)

const (
	dataKey        = "guestData"
	persistTimeout = 5 * time.Second
)

const (
	ErrOneList    = "Guest users can only create one list"
	ErrNoList     = "No list exists"
	ErrItemsLimit = "Guest users can only add 20 items"
)

type State struct {
	// Version grows with every published change.
	Version uint64             `json:"version"`
	List    *models.GuestList  `json:"list"`
	Items   []models.GuestItem `json:"items"`
	Loading bool               `json:"loading"`
	Error   *string            `json:"error"`
}

func emptyState() State {
	return State{Items: []models.GuestItem{}}
}

func (s State) StateVersion() uint64 { return s.Version }

func (s State) clone() State {
	out := s
	if s.List != nil {
		l := *s.List
		out.List = &l
	}
	out.Items = slices.Clone(s.Items)
	if out.Items == nil {
		out.Items = []models.GuestItem{}
	}
	if s.Error != nil {
		e := *s.Error
		out.Error = &e
	}
	return out
}

// Store is safe for concurrent use. Capacity and validation failures are
// recorded in State.Error, never returned.
type Store struct {
	key     string
	storage storage.Storage
	logger  zerolog.Logger
	now     func() time.Time

	mu     sync.Mutex
	state  State
	subs   map[int]func(State)
	nextID int

	persistMu sync.Mutex
}

// NewStore rehydrates the state kept under prefix in st. Unreadable data
// starts the guest over with an empty state.
func NewStore(ctx context.Context, st storage.Storage, prefix string, logger zerolog.Logger) *Store {
	s := &Store{
		key:     prefix + dataKey,
		storage: st,
		logger:  logger.With().Str("component", "guest").Logger(),
		now:     time.Now,
		state:   emptyState(),
		subs:    make(map[int]func(State)),
	}
	s.rehydrate(ctx)
	return s
}

func (s *Store) rehydrate(ctx context.Context) {
	raw, err := s.storage.Get(ctx, s.key)
	if errors.Is(err, storage.ErrNotFound) {
		return
	}
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to read guest data")
		return
	}

	var st State
	if err := json.Unmarshal([]byte(raw), &st); err != nil {
		s.logger.Warn().Err(err).Msg("discarding unreadable guest data")
		return
	}
	if st.Items == nil {
		st.Items = []models.GuestItem{}
	}
	s.state = st
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.clone()
}

// ExportData returns everything the guest has entered.
func (s *Store) ExportData() State {
	return s.Snapshot()
}

// Subscribe calls fn with the current state and again after every change.
func (s *Store) Subscribe(fn func(State)) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	snap := s.state.clone()
	s.mu.Unlock()

	fn(snap)

	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

func (s *Store) CreateList(ctx context.Context, name string) {
	s.update(ctx, func(st *State) bool {
		if st.List != nil {
			st.Error = errString(ErrOneList)
			return true
		}
		st.List = &models.GuestList{
			ID:        uuid.NewString(),
			Name:      name,
			CreatedAt: s.now().UTC(),
		}
		st.Error = nil
		return true
	})
}

func (s *Store) AddItem(ctx context.Context, in models.GuestItemInput) {
	s.update(ctx, func(st *State) bool {
		if st.List == nil {
			st.Error = errString(ErrNoList)
			return true
		}
		if len(st.Items) >= models.MaxGuestItems {
			st.Error = errString(ErrItemsLimit)
			return true
		}

		st.Items = append(st.Items, models.GuestItem{
			ID:          uuid.NewString(),
			Name:        in.Name,
			Description: in.Description,
			Weight:      in.Weight,
			WeightUnit:  in.WeightUnit,
			Price:       in.Price,
			Link:        in.Link,
			Worn:        in.Worn,
			Consumable:  in.Consumable,
			CreatedAt:   s.now().UTC(),
		})
		st.List.ItemCount = len(st.Items)
		st.List.TotalWeight = totalWeight(st.Items)
		st.Error = nil
		return true
	})
}

func (s *Store) UpdateItem(ctx context.Context, id string, patch models.GuestItemPatch) {
	s.update(ctx, func(st *State) bool {
		i := slices.IndexFunc(st.Items, func(it models.GuestItem) bool { return it.ID == id })
		if i < 0 {
			return false
		}
		applyPatch(&st.Items[i], patch)
		if st.List != nil {
			st.List.TotalWeight = totalWeight(st.Items)
		}
		return true
	})
}

func (s *Store) RemoveItem(ctx context.Context, id string) {
	s.update(ctx, func(st *State) bool {
		i := slices.IndexFunc(st.Items, func(it models.GuestItem) bool { return it.ID == id })
		if i < 0 {
			return false
		}
		st.Items = slices.Delete(st.Items, i, i+1)
		if st.List != nil {
			st.List.ItemCount = len(st.Items)
			st.List.TotalWeight = totalWeight(st.Items)
		}
		return true
	})
}

func (s *Store) UpdateListName(ctx context.Context, id, name string) {
	s.update(ctx, func(st *State) bool {
		if st.List == nil || st.List.ID != id {
			return false
		}
		st.List.Name = name
		return true
	})
}

// Clear resets the state and drops the persisted data. The reset happens
// first so an update racing the removal cannot write the old list back.
func (s *Store) Clear(ctx context.Context) {
	s.persistMu.Lock()
	s.mu.Lock()
	next := emptyState()
	next.Version = s.state.Version + 1
	s.state = next
	snap, subs := next.clone(), s.subscribers()
	s.mu.Unlock()

	rctx, cancel := persistContext(ctx)
	if err := s.storage.Remove(rctx, s.key); err != nil {
		s.logger.Warn().Err(err).Msg("failed to remove guest data")
	}
	cancel()
	s.persistMu.Unlock()

	for _, fn := range subs {
		fn(snap)
	}
}

// update applies fn to a copy of the state. fn reports whether anything
// changed; unchanged state is neither persisted nor published.
func (s *Store) update(ctx context.Context, fn func(st *State) bool) {
	s.mu.Lock()
	next := s.state.clone()
	if !fn(&next) {
		s.mu.Unlock()
		return
	}
	next.Version++
	s.state = next
	snap, subs := next.clone(), s.subscribers()
	s.mu.Unlock()

	s.persist(ctx)

	for _, fn := range subs {
		fn(snap)
	}
}

// persist writes the latest state. Failures are logged and never surface to
// the caller.
func (s *Store) persist(ctx context.Context) {
	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	s.mu.Lock()
	data, err := json.Marshal(s.state)
	s.mu.Unlock()
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to encode guest data")
		return
	}

	ctx, cancel := persistContext(ctx)
	defer cancel()
	if err := s.storage.Set(ctx, s.key, string(data)); err != nil {
		s.logger.Warn().Err(err).Msg("failed to persist guest data")
	}
}

// Storage writes outlive the request that caused them.
func persistContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
}

// caller holds s.mu
func (s *Store) subscribers() []func(State) {
	out := make([]func(State), 0, len(s.subs))
	for _, fn := range s.subs {
		out = append(out, fn)
	}
	return out
}

func totalWeight(items []models.GuestItem) float64 {
	var sum float64
	for _, it := range items {
		sum += it.Weight
	}
	return sum
}

func applyPatch(it *models.GuestItem, p models.GuestItemPatch) {
	if p.Name != nil {
		it.Name = *p.Name
	}
	if p.Description != nil {
		it.Description = p.Description
	}
	if p.Weight != nil {
		it.Weight = *p.Weight
	}
	if p.WeightUnit != nil {
		it.WeightUnit = *p.WeightUnit
	}
	if p.Price != nil {
		it.Price = p.Price
	}
	if p.Link != nil {
		it.Link = p.Link
	}
	if p.Worn != nil {
		it.Worn = *p.Worn
	}
	if p.Consumable != nil {
		it.Consumable = *p.Consumable
	}
}

func errString(msg string) *string {
	return &msg
}
