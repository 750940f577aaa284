package api

import (
	"net/http"
	"strings"

	"github.com/vindennt/gearlist/internal/admission"
	"github.com/vindennt/gearlist/internal/lists"
	"github.com/vindennt/gearlist/internal/models"
	"github.com/vindennt/gearlist/internal/session"
	"github.com/vindennt/gearlist/internal/ws"
)

const defaultListName = "New List"

type userHandler func(w http.ResponseWriter, r *http.Request, store *lists.Store)

// requireUser hands the signed in user's list store to h. Anonymous callers,
// guests included, are sent to the login page.
func (s *Server) requireUser(h userHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess := session.FromContext(r.Context())
		if sess == nil {
			http.Redirect(w, r, admission.LoginPath, http.StatusSeeOther)
			return
		}
		h(w, r, s.Lists.Get(sess.User.ID))
	})
}

type listDetails struct {
	List      *models.GearList  `json:"list"`
	ListItems []models.ListItem `json:"listItems"`
}

func details(store *lists.Store) listDetails {
	st := store.Snapshot()
	return listDetails{List: st.ActiveList(), ListItems: st.ActiveListItems()}
}

func (s *Server) listLists(w http.ResponseWriter, r *http.Request, store *lists.Store) {
	query := strings.ToLower(r.URL.Query().Get("q"))

	if _, err := store.FetchUserLists(r.Context()); err != nil {
		writeAppError(w, "Failed to load lists", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"lists":       store.Search(query),
		"searchQuery": query,
	})
}

type listNameRequest struct {
	Name string `json:"name" validate:"max=100"`
}

type renameRequest struct {
	Name string `json:"name" validate:"required,notblank,max=100"`
}

func (s *Server) createList(w http.ResponseWriter, r *http.Request, store *lists.Store) {
	var req listNameRequest
	if !decodeJSON(w, r, &req, true) {
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = defaultListName
	}

	list, err := store.CreateList(r.Context(), name)
	if err != nil {
		writeAppError(w, "Failed to create list", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"success": true, "list": list})
}

func (s *Server) getList(w http.ResponseWriter, r *http.Request, store *lists.Store) {
	if err := store.SetActiveList(r.Context(), r.PathValue("id")); err != nil {
		writeAppError(w, "Error loading list", err)
		return
	}
	writeJSON(w, http.StatusOK, details(store))
}

func (s *Server) renameList(w http.ResponseWriter, r *http.Request, store *lists.Store) {
	var req renameRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}

	list, err := store.UpdateListName(r.Context(), r.PathValue("id"), strings.TrimSpace(req.Name))
	if err != nil {
		writeAppError(w, "Failed to rename list", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "list": list})
}

func (s *Server) deleteList(w http.ResponseWriter, r *http.Request, store *lists.Store) {
	if err := store.DeleteList(r.Context(), r.PathValue("id")); err != nil {
		writeAppError(w, "Failed to delete list", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

type addItemRequest struct {
	Item models.Item `json:"item"`
	models.ListItemOptions
}

func (s *Server) addListItem(w http.ResponseWriter, r *http.Request, store *lists.Store) {
	var req addItemRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}

	id := r.PathValue("id")
	if err := store.AddItemToList(r.Context(), id, req.Item, req.ListItemOptions); err != nil {
		writeAppError(w, "Failed to add item", err)
		return
	}
	writeJSON(w, http.StatusOK, listDetails{
		List:      listFrom(store, id),
		ListItems: store.Snapshot().ListItems[id],
	})
}

func (s *Server) removeListItem(w http.ResponseWriter, r *http.Request, store *lists.Store) {
	id := r.PathValue("id")
	if err := store.RemoveItemFromList(r.Context(), id, r.PathValue("listItemID")); err != nil {
		writeAppError(w, "Failed to remove item", err)
		return
	}
	items := store.Snapshot().ListItems[id]
	if items == nil {
		items = []models.ListItem{}
	}
	writeJSON(w, http.StatusOK, listDetails{List: listFrom(store, id), ListItems: items})
}

func listFrom(store *lists.Store, id string) *models.GearList {
	l, ok := store.Snapshot().Lists[id]
	if !ok {
		return nil
	}
	return &l
}

func (s *Server) listGear(w http.ResponseWriter, r *http.Request, _ *lists.Store) {
	ctx := r.Context()
	userID := session.FromContext(ctx).User.ID

	items, err := s.Gear.FetchItems(ctx, userID)
	if err != nil {
		writeAppError(w, "Failed to load gear", err)
		return
	}
	categories, err := s.Gear.FetchCategories(ctx)
	if err != nil {
		writeAppError(w, "Failed to load gear", err)
		return
	}

	if items == nil {
		items = []models.Item{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "categories": categories})
}

func (s *Server) listsFeed(w http.ResponseWriter, r *http.Request, store *lists.Store) {
	ws.Serve(s.Feed, w, r, store.Subscribe)
}
