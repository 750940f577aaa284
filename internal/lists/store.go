// Package lists caches the gear lists of one signed in user and keeps them in
// sync with the data API. Totals are always computed remotely.
package lists

import (
	"cmp"
	"context"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/vindennt/gearlist/internal/apperr"
	"github.com/vindennt/gearlist/internal/models"
)

// Remote is the data API as seen by the store.
type Remote interface {
	FetchLists(ctx context.Context, userID string) ([]models.GearList, error)
	FetchList(ctx context.Context, userID, listID string) (*models.GearList, error)
	FetchListItems(ctx context.Context, listID string) ([]models.ListItem, error)
	InsertList(ctx context.Context, userID, name string) (*models.GearList, error)
	UpdateListName(ctx context.Context, userID, listID, name string) (*models.GearList, error)
	DeleteList(ctx context.Context, userID, listID string) error
	InsertItem(ctx context.Context, userID string, item models.Item) (*models.Item, error)
	InsertListItem(ctx context.Context, listID, itemID string, opts models.ListItemOptions) error
	DeleteListItem(ctx context.Context, listItemID string) error
	RecalculateListTotals(ctx context.Context, listID string) error
}

// Loading key for the collection of lists. Single lists use their id.
const listsKey = "lists"

type State struct {
	// Version grows with every published change. Subscribers use it to drop
	// snapshots that arrive out of order.
	Version      uint64                       `json:"version"`
	ActiveListID string                       `json:"active_list_id"`
	Lists        map[string]models.GearList   `json:"lists"`
	ListItems    map[string][]models.ListItem `json:"list_items"`
	Loading      map[string]bool              `json:"loading"`
	Error        *apperr.Error                `json:"error"`
}

func (s State) clone() State {
	out := State{
		Version:      s.Version,
		ActiveListID: s.ActiveListID,
		Lists:        maps.Clone(s.Lists),
		ListItems:    make(map[string][]models.ListItem, len(s.ListItems)),
		Loading:      maps.Clone(s.Loading),
		Error:        s.Error,
	}
	for id, items := range s.ListItems {
		out.ListItems[id] = slices.Clone(items)
	}
	return out
}

func (s State) StateVersion() uint64 { return s.Version }

// ActiveList is the cached list for ActiveListID, or nil.
func (s State) ActiveList() *models.GearList {
	l, ok := s.Lists[s.ActiveListID]
	if !ok {
		return nil
	}
	return &l
}

// ActiveListItems is never nil.
func (s State) ActiveListItems() []models.ListItem {
	items := s.ListItems[s.ActiveListID]
	if items == nil {
		return []models.ListItem{}
	}
	return items
}

// SortedLists returns the cached lists newest first.
func (s State) SortedLists() []models.GearList {
	out := slices.Collect(maps.Values(s.Lists))
	slices.SortFunc(out, func(a, b models.GearList) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out
}

func emptyState() State {
	return State{
		Lists:     map[string]models.GearList{},
		ListItems: map[string][]models.ListItem{},
		Loading:   map[string]bool{},
	}
}

// Store is safe for concurrent use. The lock is never held across a remote
// call. Every fetch takes a version stamp for its key and only commits if no
// newer fetch or write for that key started in the meantime.
type Store struct {
	userID string
	remote Remote
	logger zerolog.Logger

	mu       sync.Mutex
	state    State
	versions map[string]uint64
	subs     map[int]func(State)
	nextSub  int
}

func NewStore(userID string, remote Remote, logger zerolog.Logger) *Store {
	return &Store{
		userID:   userID,
		remote:   remote,
		logger:   logger.With().Str("component", "lists").Str("user_id", userID).Logger(),
		state:    emptyState(),
		versions: map[string]uint64{},
		subs:     map[int]func(State){},
	}
}

func (s *Store) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.clone()
}

func (s *Store) ActiveList() *models.GearList {
	return s.Snapshot().ActiveList()
}

func (s *Store) ActiveListItems() []models.ListItem {
	return s.Snapshot().ActiveListItems()
}

func (s *Store) Lists() []models.GearList {
	return s.Snapshot().SortedLists()
}

// Search filters the cached lists by a case insensitive name match. An empty
// query matches everything.
func (s *Store) Search(query string) []models.GearList {
	all := s.Lists()
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return all
	}
	return slices.DeleteFunc(all, func(l models.GearList) bool {
		return !strings.Contains(strings.ToLower(l.Name), q)
	})
}

// Subscribe calls fn with the current state and again after every change.
func (s *Store) Subscribe(fn func(State)) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
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

func (s *Store) subscriberCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

// FetchUserLists replaces the cached lists with the user's lists.
func (s *Store) FetchUserLists(ctx context.Context) ([]models.GearList, error) {
	v := s.begin(listsKey)

	lists, err := s.remote.FetchLists(ctx, s.userID)

	return lists, s.finish(listsKey, v, err, "fetch lists", func(st *State) {
		st.Lists = make(map[string]models.GearList, len(lists))
		for _, l := range lists {
			st.Lists[l.ID] = l
		}
	})
}

// SetActiveList makes id the active list and loads its details.
func (s *Store) SetActiveList(ctx context.Context, id string) error {
	s.mutate(func(st *State) { st.ActiveListID = id })
	return s.LoadListDetails(ctx, id)
}

// LoadListDetails fetches a list and its items in parallel. On failure the
// previously cached entries stay in place.
func (s *Store) LoadListDetails(ctx context.Context, id string) error {
	v := s.begin(id)

	var (
		list  *models.GearList
		items []models.ListItem
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		list, err = s.remote.FetchList(gctx, s.userID, id)
		return err
	})
	g.Go(func() error {
		var err error
		items, err = s.remote.FetchListItems(gctx, id)
		return err
	})
	err := g.Wait()

	return s.finish(id, v, err, "load list details", func(st *State) {
		st.Lists[id] = *list
		if items == nil {
			items = []models.ListItem{}
		}
		st.ListItems[id] = items
	})
}

// AddItemToList stores item when it has no id yet, links it to the list and
// reloads the list once the database has recalculated its totals.
func (s *Store) AddItemToList(ctx context.Context, listID string, item models.Item, opts models.ListItemOptions) error {
	itemID := item.ID
	if itemID == "" {
		created, err := s.remote.InsertItem(ctx, s.userID, item)
		if err != nil {
			return s.fail(err, "insert item")
		}
		itemID = created.ID
	}

	if err := s.remote.InsertListItem(ctx, listID, itemID, opts); err != nil {
		return s.fail(err, "add item to list")
	}
	if err := s.remote.RecalculateListTotals(ctx, listID); err != nil {
		return s.fail(err, "recalculate totals")
	}
	return s.LoadListDetails(ctx, listID)
}

// RemoveItemFromList deletes the association between a list and an item. A
// list whose items are not cached is loaded first; an association the list
// does not have is ignored.
func (s *Store) RemoveItemFromList(ctx context.Context, listID, listItemID string) error {
	s.mu.Lock()
	items, cached := s.state.ListItems[listID]
	s.mu.Unlock()

	// Check an uncached list remotely without filling the cache, so an
	// unknown id still leaves the state as it was.
	if !cached {
		var err error
		if items, err = s.remote.FetchListItems(ctx, listID); err != nil {
			return s.fail(err, "load list items")
		}
	}

	if !slices.ContainsFunc(items, func(li models.ListItem) bool { return li.ID == listItemID }) {
		return nil
	}

	if err := s.remote.DeleteListItem(ctx, listItemID); err != nil {
		return s.fail(err, "remove item from list")
	}
	if err := s.remote.RecalculateListTotals(ctx, listID); err != nil {
		return s.fail(err, "recalculate totals")
	}
	return s.LoadListDetails(ctx, listID)
}

// UpdateListData patches the cache after a write the caller already
// confirmed remotely.
func (s *Store) UpdateListData(listID string, patch models.ListPatch) {
	s.mutate(func(st *State) {
		if l, ok := st.Lists[listID]; ok && patch.Name != nil {
			l.Name = *patch.Name
			st.Lists[listID] = l
		}
		if patch.Items != nil {
			st.ListItems[listID] = slices.Clone(patch.Items)
		}
	})
}

func (s *Store) CreateList(ctx context.Context, name string) (*models.GearList, error) {
	list, err := s.remote.InsertList(ctx, s.userID, name)
	if err != nil {
		return nil, s.fail(err, "create list")
	}

	s.write(func(st *State) {
		st.Lists[list.ID] = *list
		st.ListItems[list.ID] = []models.ListItem{}
	}, listsKey)
	return list, nil
}

func (s *Store) UpdateListName(ctx context.Context, id, name string) (*models.GearList, error) {
	list, err := s.remote.UpdateListName(ctx, s.userID, id, name)
	if err != nil {
		return nil, s.fail(err, "rename list")
	}

	s.write(func(st *State) {
		st.Lists[id] = *list
	}, listsKey, id)
	return list, nil
}

func (s *Store) DeleteList(ctx context.Context, id string) error {
	if err := s.remote.DeleteList(ctx, s.userID, id); err != nil {
		return s.fail(err, "delete list")
	}

	s.write(func(st *State) {
		delete(st.Lists, id)
		delete(st.ListItems, id)
		if st.ActiveListID == id {
			st.ActiveListID = ""
		}
	}, listsKey, id)
	return nil
}

// Reset drops everything. Fetches still in flight are discarded.
func (s *Store) Reset() {
	s.mu.Lock()
	for k := range s.versions {
		s.versions[k]++
	}
	version := s.state.Version
	s.state = emptyState()
	s.state.Version = version
	snap, subs := s.publish()
	s.mu.Unlock()

	notify(subs, snap)
}

// begin starts a fetch for key and returns its stamp.
func (s *Store) begin(key string) uint64 {
	s.mu.Lock()
	s.versions[key]++
	v := s.versions[key]
	s.state.Loading[key] = true
	snap, subs := s.publish()
	s.mu.Unlock()

	notify(subs, snap)
	return v
}

// finish commits a fetch result unless a newer fetch or write for key has
// started since. Errors are recorded and returned either way.
func (s *Store) finish(key string, v uint64, err error, op string, apply func(st *State)) error {
	var appErr *apperr.Error
	if err != nil {
		appErr = apperr.Classify(err)
		s.logger.Warn().Err(appErr).Str("kind", appErr.Kind.String()).Str("key", key).Msg(op + " failed")
	}

	s.mu.Lock()
	if s.versions[key] != v {
		s.mu.Unlock()
		s.logger.Debug().Str("key", key).Msg("discarding stale " + op + " result")
		if appErr != nil {
			return appErr
		}
		return nil
	}

	delete(s.state.Loading, key)
	if appErr != nil {
		s.state.Error = appErr
	} else {
		apply(&s.state)
		s.state.Error = nil
	}
	snap, subs := s.publish()
	s.mu.Unlock()

	notify(subs, snap)
	if appErr != nil {
		return appErr
	}
	return nil
}

// write applies a confirmed remote write and invalidates fetches in flight
// for keys so they cannot overwrite it.
func (s *Store) write(apply func(st *State), keys ...string) {
	s.mu.Lock()
	for _, k := range keys {
		s.versions[k]++
		delete(s.state.Loading, k)
	}
	apply(&s.state)
	s.state.Error = nil
	snap, subs := s.publish()
	s.mu.Unlock()

	notify(subs, snap)
}

func (s *Store) mutate(apply func(st *State)) {
	s.mu.Lock()
	apply(&s.state)
	snap, subs := s.publish()
	s.mu.Unlock()

	notify(subs, snap)
}

func (s *Store) fail(err error, op string) error {
	appErr := apperr.Classify(err)
	s.logger.Warn().Err(appErr).Str("kind", appErr.Kind.String()).Msg(op + " failed")
	s.mutate(func(st *State) { st.Error = appErr })
	return appErr
}

// publish stamps the next version and returns the snapshot with the
// subscribers to deliver it to. caller holds s.mu
func (s *Store) publish() (State, []func(State)) {
	s.state.Version++
	subs := make([]func(State), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	return s.state.clone(), subs
}

func notify(subs []func(State), snap State) {
	for _, fn := range subs {
		fn(snap)
	}
}
