package api

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/vindennt/gearlist/internal/config"
	"github.com/vindennt/gearlist/internal/guest"
	"github.com/vindennt/gearlist/internal/lists"
	"github.com/vindennt/gearlist/internal/models"
	"github.com/vindennt/gearlist/internal/session"
	"github.com/vindennt/gearlist/internal/ws"
)

// Authenticator is the hosted auth service as used by the handlers.
type Authenticator interface {
	SignIn(ctx context.Context, email, password string) (*models.Session, error)
	SignUp(ctx context.Context, email, password string) (*models.Session, error)
	GetUser(ctx context.Context, accessToken string) (*models.User, error)
	Logout(ctx context.Context, accessToken string) error
}

// Gear reads the user's item catalogue.
type Gear interface {
	FetchItems(ctx context.Context, userID string) ([]models.Item, error)
	FetchCategories(ctx context.Context) ([]models.Category, error)
}

type Deps struct {
	Config    *config.Config
	Logger    zerolog.Logger
	Auth      Authenticator
	Tokens    *session.TokenStore
	Refresher *session.Refresher
	Lists     *lists.Registry
	Gear      Gear
	Guests    *guest.Registry
	Feed      *ws.Feed
}

type Server struct {
	Deps

	logger      zerolog.Logger
	authLimiter *rate.Limiter
}

func NewServer(deps Deps) *Server {
	return &Server{
		Deps:   deps,
		logger: deps.Logger.With().Str("component", "api").Logger(),
		// Credential endpoints: 1 every 200ms, burst capacity of 10
		authLimiter: rate.NewLimiter(rate.Every(200*time.Millisecond), 10),
	}
}

// CORS middleware
func corsMiddleware(allowedOrigin string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", allowedOrigin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.Header().Set("Access-Control-Allow-Credentials", "true")
		w.Header().Set("Access-Control-Max-Age", "3600")
		w.Header().Add("Vary", "Origin")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	// Health Check
	mux.HandleFunc("GET /health/ping", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"message": "pong"})
	})
	mux.HandleFunc("GET /login", s.login)

	mux.Handle("POST /auth/signup", s.rateLimited(http.HandlerFunc(s.signUp)))
	mux.Handle("POST /auth/signin", s.rateLimited(http.HandlerFunc(s.signIn)))
	mux.HandleFunc("POST /auth/callback", s.storeSession)
	mux.HandleFunc("DELETE /auth/callback", s.signOut)
	mux.HandleFunc("DELETE /auth/session", s.signOut)

	mux.Handle("GET /app", s.requireUser(s.listLists))
	mux.Handle("POST /app/lists", s.requireUser(s.createList))
	mux.Handle("GET /app/lists/{id}", s.requireUser(s.getList))
	mux.Handle("PATCH /app/lists/{id}", s.requireUser(s.renameList))
	mux.Handle("DELETE /app/lists/{id}", s.requireUser(s.deleteList))
	mux.Handle("POST /app/lists/{id}/items", s.requireUser(s.addListItem))
	mux.Handle("DELETE /app/lists/{id}/items/{listItemID}", s.requireUser(s.removeListItem))
	mux.Handle("GET /app/gear", s.requireUser(s.listGear))
	mux.Handle("GET /app/ws", s.requireUser(s.listsFeed))

	mux.Handle("GET /guest/list", s.requireGuest(s.getGuestList))
	mux.Handle("POST /guest/list", s.requireGuest(s.createGuestList))
	mux.Handle("DELETE /guest/list", s.requireGuest(s.clearGuestList))
	mux.Handle("PATCH /guest/list/{id}", s.requireGuest(s.renameGuestList))
	mux.Handle("POST /guest/list/items", s.requireGuest(s.addGuestItem))
	mux.Handle("PATCH /guest/list/items/{id}", s.requireGuest(s.updateGuestItem))
	mux.Handle("DELETE /guest/list/items/{id}", s.requireGuest(s.removeGuestItem))
	mux.Handle("GET /guest/export", s.requireGuest(s.exportGuestData))
	mux.Handle("GET /guest/ws", s.requireGuest(s.guestFeed))
}

// Handler wires the routes behind the middleware chain. Outermost first:
// panic recovery, request logging, CORS, session refresh.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)

	var h http.Handler = mux
	h = s.Refresher.Middleware(h)
	h = corsMiddleware(s.Config.AllowedOrigin, h)
	h = requestLogger(s.logger, h)
	h = recoverer(s.logger, h)
	return h
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"signin": "/auth/signin",
		"signup": "/auth/signup",
		"guest":  "/guest/list",
	})
}

func (s *Server) rateLimited(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.authLimiter.Allow() {
			writeError(w, http.StatusTooManyRequests, "Too many requests", "")
			return
		}
		next.ServeHTTP(w, r)
	})
}
