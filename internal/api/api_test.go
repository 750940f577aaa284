package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vindennt/gearlist/internal/apperr"
	"github.com/vindennt/gearlist/internal/config"
	"github.com/vindennt/gearlist/internal/guest"
	"github.com/vindennt/gearlist/internal/lists"
	"github.com/vindennt/gearlist/internal/models"
	"github.com/vindennt/gearlist/internal/session"
	"github.com/vindennt/gearlist/internal/storage"
	"github.com/vindennt/gearlist/internal/ws"
)

const (
	validAccess  = "valid-access"
	validRefresh = "valid-refresh"
)

var testUser = models.User{ID: "u1", Email: "hiker@example.com"}

func testSession() *models.Session {
	return &models.Session{
		TokenPair: models.TokenPair{AccessToken: validAccess, RefreshToken: validRefresh},
		TokenType: "bearer",
		ExpiresIn: 3600,
		User:      testUser,
	}
}

// fakeAuth accepts a single account and a single token pair.
type fakeAuth struct {
	mu      sync.Mutex
	logouts []string
}

func (f *fakeAuth) SetSession(_ context.Context, pair models.TokenPair) (*models.Session, error) {
	if pair.AccessToken == validAccess && pair.RefreshToken == validRefresh {
		return testSession(), nil
	}
	return nil, apperr.New(apperr.AuthExpired, "invalid token")
}

func (f *fakeAuth) SignIn(_ context.Context, email, password string) (*models.Session, error) {
	if email == testUser.Email && password == "secret" {
		return testSession(), nil
	}
	return nil, errors.New("response status code 400: invalid login credentials")
}

func (f *fakeAuth) SignUp(_ context.Context, email, _ string) (*models.Session, error) {
	if strings.HasPrefix(email, "confirm") {
		return nil, nil
	}
	return testSession(), nil
}

func (f *fakeAuth) GetUser(_ context.Context, accessToken string) (*models.User, error) {
	if accessToken == validAccess {
		u := testUser
		return &u, nil
	}
	return nil, errors.New("response status code 401: invalid JWT")
}

func (f *fakeAuth) Logout(_ context.Context, accessToken string) error {
	f.mu.Lock()
	f.logouts = append(f.logouts, accessToken)
	f.mu.Unlock()
	return nil
}

// fakeData implements lists.Remote and Gear over in-memory tables.
type fakeData struct {
	mu        sync.Mutex
	lists     map[string]models.GearList
	listItems map[string][]models.ListItem
	nextID    int
	denyWrite bool
}

func newFakeData() *fakeData {
	return &fakeData{
		lists: map[string]models.GearList{
			"l1": {ID: "l1", Name: "Alps", UserID: "u1", CreatedAt: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)},
			"l2": {ID: "l2", Name: "Coast", UserID: "u1", CreatedAt: time.Date(2024, 6, 2, 0, 0, 0, 0, time.UTC)},
		},
		listItems: map[string][]models.ListItem{
			"l1": {{ID: "li1", ListID: "l1", ItemID: "i1", Quantity: 1, Item: models.Item{ID: "i1", Name: "Tent", Weight: 1200}}},
		},
	}
}

var errNoRows = errors.New("(PGRST116) JSON object requested, multiple (or no) rows returned")

func (f *fakeData) id(prefix string) string {
	f.nextID++
	return fmt.Sprintf("%s%d", prefix, f.nextID)
}

func (f *fakeData) FetchLists(context.Context, string) ([]models.GearList, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.GearList, 0, len(f.lists))
	for _, l := range f.lists {
		out = append(out, l)
	}
	return out, nil
}

func (f *fakeData) FetchList(_ context.Context, _, listID string) (*models.GearList, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.lists[listID]
	if !ok {
		return nil, errNoRows
	}
	return &l, nil
}

func (f *fakeData) FetchListItems(_ context.Context, listID string) ([]models.ListItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.ListItem(nil), f.listItems[listID]...), nil
}

func (f *fakeData) InsertList(_ context.Context, userID, name string) (*models.GearList, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.denyWrite {
		return nil, errors.New("(42501) new row violates row-level security policy")
	}
	l := models.GearList{ID: f.id("l"), Name: name, UserID: userID, CreatedAt: time.Now()}
	f.lists[l.ID] = l
	return &l, nil
}

func (f *fakeData) UpdateListName(_ context.Context, _, listID, name string) (*models.GearList, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.lists[listID]
	if !ok {
		return nil, errNoRows
	}
	l.Name = name
	f.lists[listID] = l
	return &l, nil
}

func (f *fakeData) DeleteList(_ context.Context, _, listID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.lists[listID]; !ok {
		return errNoRows
	}
	delete(f.lists, listID)
	return nil
}

func (f *fakeData) InsertItem(_ context.Context, userID string, item models.Item) (*models.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	item.ID = f.id("i")
	item.UserID = userID
	return &item, nil
}

func (f *fakeData) InsertListItem(_ context.Context, listID, itemID string, opts models.ListItemOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listItems[listID] = append(f.listItems[listID], models.ListItem{
		ID: f.id("li"), ListID: listID, ItemID: itemID, Quantity: opts.Quantity,
		Item: models.Item{ID: itemID, Weight: 50},
	})
	return nil
}

func (f *fakeData) DeleteListItem(_ context.Context, listItemID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, items := range f.listItems {
		for i, li := range items {
			if li.ID == listItemID {
				f.listItems[id] = append(items[:i:i], items[i+1:]...)
			}
		}
	}
	return nil
}

func (f *fakeData) RecalculateListTotals(_ context.Context, listID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	l := f.lists[listID]
	l.ItemCount = len(f.listItems[listID])
	l.TotalWeight = 0
	for _, li := range f.listItems[listID] {
		l.TotalWeight += li.Item.Weight
	}
	f.lists[listID] = l
	return nil
}

func (f *fakeData) FetchItems(context.Context, string) ([]models.Item, error) {
	return []models.Item{{ID: "i1", Name: "Tent", Weight: 1200, Category: &models.Category{ID: "c1", Name: "Shelter"}}}, nil
}

func (f *fakeData) FetchCategories(context.Context) ([]models.Category, error) {
	return []models.Category{{ID: "c1", Name: "Shelter"}}, nil
}

type testServer struct {
	*Server
	auth    *fakeAuth
	data    *fakeData
	handler http.Handler
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger := zerolog.Nop()
	cfg := &config.Config{AllowedOrigin: "http://localhost:5173"}

	auth := &fakeAuth{}
	data := newFakeData()
	tokens := session.NewTokenStore(false, "")

	srv := NewServer(Deps{
		Config:    cfg,
		Logger:    logger,
		Auth:      auth,
		Tokens:    tokens,
		Refresher: session.NewRefresher(auth, tokens, logger),
		Lists:     lists.NewRegistry(data, logger),
		Gear:      data,
		Guests:    guest.NewRegistry(storage.NewMemory(0), logger),
		Feed:      ws.NewFeed(cfg.AllowedOrigin, logger),
	})
	return &testServer{Server: srv, auth: auth, data: data, handler: srv.Handler()}
}

// do runs a request carrying cookies and returns the recorder.
func (ts *testServer) do(method, path, body string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func authCookies() []*http.Cookie {
	return []*http.Cookie{
		{Name: session.AccessTokenCookie, Value: validAccess},
		{Name: session.RefreshTokenCookie, Value: validRefresh},
	}
}

func responseCookies(rec *httptest.ResponseRecorder) map[string]*http.Cookie {
	out := map[string]*http.Cookie{}
	for _, c := range rec.Result().Cookies() {
		out[c.Name] = c
	}
	return out
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(http.MethodGet, "/health/ping", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"message":"pong"}`, rec.Body.String())
}

func TestRootRedirects(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodGet, "/", "")
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/login", rec.Header().Get("Location"))

	rec = ts.do(http.MethodGet, "/", "", authCookies()...)
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/app", rec.Header().Get("Location"))
}

func TestAppRequiresSession(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodGet, "/app", "")
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/login", rec.Header().Get("Location"))

	// Guests pass admission but have no user store.
	rec = ts.do(http.MethodGet, "/app/gear", "", &http.Cookie{Name: session.GuestSessionCookie, Value: "true"})
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/login", rec.Header().Get("Location"))
}

func TestCORSPreflight(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(http.MethodOptions, "/app/lists", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://localhost:5173", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
}

func TestSignIn(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodPost, "/auth/signin", `{"email":"hiker@example.com","password":"secret"}`,
		&http.Cookie{Name: session.GuestSessionCookie, Value: "true"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	res := decode[models.AuthResponse](t, rec)
	assert.Equal(t, "u1", res.Session.User.ID)
	assert.NotContains(t, rec.Body.String(), validAccess)

	cookies := responseCookies(rec)
	assert.Equal(t, validAccess, cookies[session.AccessTokenCookie].Value)
	assert.Equal(t, validRefresh, cookies[session.RefreshTokenCookie].Value)
	assert.True(t, cookies[session.AccessTokenCookie].HttpOnly)
	assert.Equal(t, -1, cookies[session.GuestSessionCookie].MaxAge)
}

func TestSignInFailure(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodPost, "/auth/signin", `{"email":"hiker@example.com","password":"wrong"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, responseCookies(rec))

	rec = ts.do(http.MethodPost, "/auth/signin", `{"email":"","password":""}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(http.MethodPost, "/auth/signin", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSignUpPendingConfirmation(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodPost, "/auth/signup", `{"email":"confirm@example.com","password":"secret"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, responseCookies(rec))

	rec = ts.do(http.MethodPost, "/auth/signup", `{"email":"new@example.com","password":"secret"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, responseCookies(rec), session.AccessTokenCookie)
}

func TestAuthRateLimit(t *testing.T) {
	ts := newTestServer(t)

	var limited bool
	for i := 0; i < 20; i++ {
		rec := ts.do(http.MethodPost, "/auth/signin", `{"email":"x@example.com","password":"wrong"}`)
		if rec.Code == http.StatusTooManyRequests {
			limited = true
			break
		}
	}
	assert.True(t, limited)
}

func TestCallback(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodPost, "/auth/callback", `{"refresh_token":"r"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(http.MethodPost, "/auth/callback", `{"access_token":"a"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	cookies := responseCookies(rec)
	assert.Equal(t, "a", cookies[session.AccessTokenCookie].Value)
	assert.Equal(t, -1, cookies[session.RefreshTokenCookie].MaxAge)

	rec = ts.do(http.MethodPost, "/auth/callback", `{"access_token":"a","refresh_token":"r"}`)
	assert.Len(t, responseCookies(rec), 2)
}

// An access token alone must not leave an earlier refresh token paired with it.
func TestCallbackAccessOnlyDropsOldRefresh(t *testing.T) {
	ts := newTestServer(t)
	old := []*http.Cookie{
		{Name: session.AccessTokenCookie, Value: "old-access"},
		{Name: session.RefreshTokenCookie, Value: "old-refresh"},
	}

	rec := ts.do(http.MethodPost, "/auth/callback", `{"access_token":"new-access"}`, old...)
	require.Equal(t, http.StatusOK, rec.Code)

	cookies := responseCookies(rec)
	assert.Equal(t, "new-access", cookies[session.AccessTokenCookie].Value)
	require.Contains(t, cookies, session.RefreshTokenCookie)
	assert.Equal(t, -1, cookies[session.RefreshTokenCookie].MaxAge)
	assert.Empty(t, cookies[session.RefreshTokenCookie].Value)
}

func TestSignInValidation(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodPost, "/auth/signin", `{"email":"not-an-email","password":"secret"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Please enter a valid email", decode[errorResponse](t, rec).Error)

	rec = ts.do(http.MethodPost, "/auth/signin", `{"email":"hiker@example.com"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "password is required", decode[errorResponse](t, rec).Error)
}

func TestSignOut(t *testing.T) {
	for _, path := range []string{"/auth/session", "/auth/callback"} {
		t.Run(path, func(t *testing.T) {
			ts := newTestServer(t)
			rec := ts.do(http.MethodGet, "/app", "", authCookies()...)
			require.Equal(t, http.StatusOK, rec.Code)
			require.Equal(t, 1, ts.Lists.Len())

			rec = ts.do(http.MethodDelete, path, "", authCookies()...)
			require.Equal(t, http.StatusOK, rec.Code)

			cookies := responseCookies(rec)
			assert.Equal(t, -1, cookies[session.AccessTokenCookie].MaxAge)
			assert.Equal(t, -1, cookies[session.RefreshTokenCookie].MaxAge)
			assert.Zero(t, ts.Lists.Len())
			assert.Equal(t, []string{validAccess}, ts.auth.logouts)
		})
	}
}

func TestSignOutWithoutSession(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(http.MethodDelete, "/auth/session", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, ts.auth.logouts)
}

func TestListLists(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodGet, "/app", "", authCookies()...)
	require.Equal(t, http.StatusOK, rec.Code)
	res := decode[struct {
		Lists []models.GearList `json:"lists"`
	}](t, rec)
	require.Len(t, res.Lists, 2)
	assert.Equal(t, "l2", res.Lists[0].ID)

	rec = ts.do(http.MethodGet, "/app?q=ALP", "", authCookies()...)
	res = decode[struct {
		Lists []models.GearList `json:"lists"`
	}](t, rec)
	require.Len(t, res.Lists, 1)
	assert.Equal(t, "Alps", res.Lists[0].Name)
}

func TestListLifecycle(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodPost, "/app/lists", "", authCookies()...)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[struct {
		List models.GearList `json:"list"`
	}](t, rec).List
	assert.Equal(t, defaultListName, created.Name)

	rec = ts.do(http.MethodPatch, "/app/lists/"+created.ID, `{"name":"Dolomites"}`, authCookies()...)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(http.MethodGet, "/app/lists/"+created.ID, "", authCookies()...)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[listDetails](t, rec)
	assert.Equal(t, "Dolomites", got.List.Name)
	assert.Empty(t, got.ListItems)

	rec = ts.do(http.MethodDelete, "/app/lists/"+created.ID, "", authCookies()...)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(http.MethodGet, "/app/lists/"+created.ID, "", authCookies()...)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateListPermissionDenied(t *testing.T) {
	ts := newTestServer(t)
	ts.data.denyWrite = true

	rec := ts.do(http.MethodPost, "/app/lists", `{"name":"Trip"}`, authCookies()...)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	res := decode[errorResponse](t, rec)
	assert.Equal(t, "Permission denied. Please check database permissions.", res.Error)
	assert.Equal(t, apperr.PermissionDenied.String(), res.Kind)
}

func TestListItems(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodPost, "/app/lists/l1/items", `{"item":{"name":"Stove","weight":50},"quantity":1}`, authCookies()...)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got := decode[listDetails](t, rec)
	require.Len(t, got.ListItems, 2)
	assert.Equal(t, 2, got.List.ItemCount)
	assert.Equal(t, 1250.0, got.List.TotalWeight)

	rec = ts.do(http.MethodDelete, "/app/lists/l1/items/li1", "", authCookies()...)
	require.Equal(t, http.StatusOK, rec.Code)
	got = decode[listDetails](t, rec)
	assert.Len(t, got.ListItems, 1)
	assert.Equal(t, 50.0, got.List.TotalWeight)

	// Unknown associations are ignored.
	rec = ts.do(http.MethodDelete, "/app/lists/l1/items/nope", "", authCookies()...)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(http.MethodPost, "/app/lists/l1/items", `{"item":{}}`, authCookies()...)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// Removing from a list nobody has opened yet still deletes the item.
func TestRemoveListItemColdCache(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodDelete, "/app/lists/l1/items/li1", "", authCookies()...)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	got := decode[listDetails](t, rec)
	require.NotNil(t, got.List)
	assert.Equal(t, "Alps", got.List.Name)
	assert.Empty(t, got.ListItems)
	ts.data.mu.Lock()
	assert.Empty(t, ts.data.listItems["l1"])
	ts.data.mu.Unlock()
}

func TestListValidation(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodPatch, "/app/lists/l1", `{"name":"   "}`, authCookies()...)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "name is required", decode[errorResponse](t, rec).Error)

	rec = ts.do(http.MethodPost, "/app/lists", `{"name":"`+strings.Repeat("x", 101)+`"}`, authCookies()...)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "name must be at most 100 characters", decode[errorResponse](t, rec).Error)

	rec = ts.do(http.MethodPost, "/app/lists/l1/items", `{"item":{"name":"Stove","weight":-5}}`, authCookies()...)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "weight must be at least 0", decode[errorResponse](t, rec).Error)

	// Existing gear is added by id alone.
	rec = ts.do(http.MethodPost, "/app/lists/l1/items", `{"item":{"id":"i1"},"quantity":2}`, authCookies()...)
	assert.NotEqual(t, http.StatusBadRequest, rec.Code)
}

func TestGear(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(http.MethodGet, "/app/gear", "", authCookies()...)
	require.Equal(t, http.StatusOK, rec.Code)
	res := decode[struct {
		Items      []models.Item     `json:"items"`
		Categories []models.Category `json:"categories"`
	}](t, rec)
	require.Len(t, res.Items, 1)
	assert.Equal(t, "Shelter", res.Items[0].Category.Name)
	assert.Len(t, res.Categories, 1)
}

func TestAuthenticatedUserOnGuestRoute(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(http.MethodGet, "/guest/list", "", authCookies()...)
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/app", rec.Header().Get("Location"))
}

func TestGuestFlow(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodGet, "/guest/list", "")
	require.Equal(t, http.StatusOK, rec.Code)
	cookies := responseCookies(rec)
	require.Contains(t, cookies, session.GuestSessionCookie)
	require.Contains(t, cookies, session.GuestIDCookie)
	guestCookies := []*http.Cookie{cookies[session.GuestSessionCookie], cookies[session.GuestIDCookie]}

	rec = ts.do(http.MethodPost, "/guest/list", `{"name":"Weekend"}`, guestCookies...)
	require.Equal(t, http.StatusOK, rec.Code)
	st := decode[guest.State](t, rec)
	require.NotNil(t, st.List)
	listID := st.List.ID

	rec = ts.do(http.MethodPost, "/guest/list", `{"name":"Another"}`, guestCookies...)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, guest.ErrOneList, *decode[guest.State](t, rec).Error)

	for i := 0; i < models.MaxGuestItems; i++ {
		rec = ts.do(http.MethodPost, "/guest/list/items", `{"name":"stake","weight":1,"weight_unit":"g"}`, guestCookies...)
		require.Equal(t, http.StatusOK, rec.Code)
	}
	rec = ts.do(http.MethodPost, "/guest/list/items", `{"name":"stake","weight":1,"weight_unit":"g"}`, guestCookies...)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	st = decode[guest.State](t, rec)
	assert.Equal(t, guest.ErrItemsLimit, *st.Error)
	assert.Len(t, st.Items, models.MaxGuestItems)
	assert.Equal(t, float64(models.MaxGuestItems), st.List.TotalWeight)

	itemID := st.Items[0].ID
	rec = ts.do(http.MethodPatch, "/guest/list/items/"+itemID, `{"weight":11}`, guestCookies...)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 30.0, decode[guest.State](t, rec).List.TotalWeight)

	rec = ts.do(http.MethodDelete, "/guest/list/items/"+itemID, "", guestCookies...)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.MaxGuestItems-1, decode[guest.State](t, rec).List.ItemCount)

	rec = ts.do(http.MethodPatch, "/guest/list/"+listID, `{"name":"Renamed"}`, guestCookies...)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Renamed", decode[guest.State](t, rec).List.Name)

	rec = ts.do(http.MethodGet, "/guest/export", "", guestCookies...)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "guest-list.json")

	rec = ts.do(http.MethodDelete, "/guest/list", "", guestCookies...)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, -1, responseCookies(rec)[session.GuestSessionCookie].MaxAge)
	assert.Zero(t, ts.Guests.Len())
}

func TestGuestValidation(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodGet, "/guest/list", "")
	require.Equal(t, http.StatusOK, rec.Code)
	cookies := responseCookies(rec)
	guestCookies := []*http.Cookie{cookies[session.GuestSessionCookie], cookies[session.GuestIDCookie]}

	rec = ts.do(http.MethodPost, "/guest/list", `{"name":"Weekend"}`, guestCookies...)
	require.Equal(t, http.StatusOK, rec.Code)
	listID := decode[guest.State](t, rec).List.ID

	rec = ts.do(http.MethodPost, "/guest/list/items", `{"name":"  ","weight":1}`, guestCookies...)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "name is required", decode[errorResponse](t, rec).Error)

	rec = ts.do(http.MethodPost, "/guest/list/items", `{"name":"tent","weight":-1}`, guestCookies...)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(http.MethodPatch, "/guest/list/"+listID, `{"name":""}`, guestCookies...)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(http.MethodGet, "/guest/list", "", guestCookies...)
	st := decode[guest.State](t, rec)
	assert.Empty(t, st.Items)
	assert.Equal(t, "Weekend", st.List.Name)
}

func TestGuestAddItemWithoutList(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(http.MethodPost, "/guest/list/items", `{"name":"tent"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, guest.ErrNoList, *decode[guest.State](t, rec).Error)
}

func TestRequireGuestWithoutGuestID(t *testing.T) {
	ts := newTestServer(t)
	h := ts.requireGuest(func(w http.ResponseWriter, r *http.Request, _ *guest.Store) {
		t.Fatal("handler must not run")
	})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/guest/list", nil))
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/login", rec.Header().Get("Location"))
}

func TestRecoverer(t *testing.T) {
	h := recoverer(zerolog.Nop(), http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/app", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestRequestLoggerRecordsStatus(t *testing.T) {
	var buf strings.Builder
	logger := zerolog.New(&buf)
	h := requestLogger(logger, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health/ping", nil))

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(buf.String()), &entry))
	assert.Equal(t, float64(http.StatusTeapot), entry["status"])
	assert.Equal(t, "/health/ping", entry["path"])
}
