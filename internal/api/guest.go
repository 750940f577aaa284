package api

import (
	"net/http"
	"strings"

	"github.com/vindennt/gearlist/internal/admission"
	"github.com/vindennt/gearlist/internal/guest"
	"github.com/vindennt/gearlist/internal/models"
	"github.com/vindennt/gearlist/internal/session"
	"github.com/vindennt/gearlist/internal/ws"
)

type guestHandler func(w http.ResponseWriter, r *http.Request, store *guest.Store)

// requireGuest hands the guest's store to h. Requests outside a guest session
// are sent to the login page.
func (s *Server) requireGuest(h guestHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := session.GuestIDFromContext(r.Context())
		if id == "" {
			http.Redirect(w, r, admission.LoginPath, http.StatusSeeOther)
			return
		}
		h(w, r, s.Guests.Get(r.Context(), id))
	})
}

// writeGuestState answers with the state. A failed create or add leaves its
// message in State.Error and is answered with 422.
func writeGuestState(w http.ResponseWriter, st guest.State, checkError bool) {
	status := http.StatusOK
	if checkError && st.Error != nil {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, st)
}

func (s *Server) getGuestList(w http.ResponseWriter, r *http.Request, store *guest.Store) {
	writeGuestState(w, store.Snapshot(), false)
}

func (s *Server) createGuestList(w http.ResponseWriter, r *http.Request, store *guest.Store) {
	var req listNameRequest
	if !decodeJSON(w, r, &req, true) {
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = defaultListName
	}

	store.CreateList(r.Context(), name)
	writeGuestState(w, store.Snapshot(), true)
}

func (s *Server) clearGuestList(w http.ResponseWriter, r *http.Request, _ *guest.Store) {
	s.Guests.Clear(r.Context(), session.GuestIDFromContext(r.Context()))
	s.Tokens.EndGuestSession(w)
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) renameGuestList(w http.ResponseWriter, r *http.Request, store *guest.Store) {
	var req renameRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}

	store.UpdateListName(r.Context(), r.PathValue("id"), strings.TrimSpace(req.Name))
	writeGuestState(w, store.Snapshot(), false)
}

func (s *Server) addGuestItem(w http.ResponseWriter, r *http.Request, store *guest.Store) {
	var in models.GuestItemInput
	if !decodeJSON(w, r, &in, false) {
		return
	}
	in.Name = strings.TrimSpace(in.Name)

	store.AddItem(r.Context(), in)
	writeGuestState(w, store.Snapshot(), true)
}

func (s *Server) updateGuestItem(w http.ResponseWriter, r *http.Request, store *guest.Store) {
	var patch models.GuestItemPatch
	if !decodeJSON(w, r, &patch, false) {
		return
	}

	store.UpdateItem(r.Context(), r.PathValue("id"), patch)
	writeGuestState(w, store.Snapshot(), false)
}

func (s *Server) removeGuestItem(w http.ResponseWriter, r *http.Request, store *guest.Store) {
	store.RemoveItem(r.Context(), r.PathValue("id"))
	writeGuestState(w, store.Snapshot(), false)
}

func (s *Server) exportGuestData(w http.ResponseWriter, r *http.Request, store *guest.Store) {
	w.Header().Set("Content-Disposition", `attachment; filename="guest-list.json"`)
	writeJSON(w, http.StatusOK, store.ExportData())
}

func (s *Server) guestFeed(w http.ResponseWriter, r *http.Request, store *guest.Store) {
	ws.Serve(s.Feed, w, r, store.Subscribe)
}
