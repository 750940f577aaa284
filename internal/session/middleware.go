package session

import (
	"context"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/vindennt/gearlist/internal/admission"
	"github.com/vindennt/gearlist/internal/apperr"
	"github.com/vindennt/gearlist/internal/models"
)

// Provider exchanges a stored token pair for a validated session.
type Provider interface {
	SetSession(ctx context.Context, pair models.TokenPair) (*models.Session, error)
}

// Refresher runs once per request: it refreshes the session from the token
// cookies, applies route admission and starts guest sessions.
type Refresher struct {
	provider Provider
	tokens   *TokenStore
	logger   zerolog.Logger
}

func NewRefresher(provider Provider, tokens *TokenStore, logger zerolog.Logger) *Refresher {
	return &Refresher{
		provider: provider,
		tokens:   tokens,
		logger:   logger.With().Str("component", "session").Logger(),
	}
}

func (rf *Refresher) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path
		if admission.IsPublic(path) {
			next.ServeHTTP(w, r)
			return
		}

		ctx := r.Context()
		sess := rf.Resolve(w, r)
		if sess != nil {
			ctx = WithSession(ctx, sess)
		}

		isGuestRoute := admission.IsGuestRoute(path)
		isGuestSession := rf.tokens.IsGuestSession(r)

		decision := admission.Decide(path, sess != nil, isGuestRoute, isGuestSession)
		if decision.IsRedirect() {
			rf.logger.Debug().Str("path", path).Str("action", decision.Action.String()).Msg("redirecting")
			http.Redirect(w, r, decision.Location(), http.StatusSeeOther)
			return
		}

		if isGuestRoute {
			var guestID string
			if decision.MarkGuest {
				guestID = rf.tokens.StartGuestSession(w)
				rf.logger.Info().Str("guest_id", guestID).Msg("guest session started")
			} else if guestID = rf.tokens.GuestID(r); guestID == "" {
				guestID = rf.tokens.IssueGuestID(w)
			}
			ctx = WithGuestID(ctx, guestID)
		}

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Resolve returns the validated session for r, or nil. Token cookies are
// rotated when the provider issued new values and cleared when the exchange
// fails. Provider errors never propagate.
func (rf *Refresher) Resolve(w http.ResponseWriter, r *http.Request) *models.Session {
	pair := rf.tokens.Read(r)
	if !pair.Complete() {
		// An incomplete pair is never sent upstream.
		return nil
	}

	sess, err := rf.provider.SetSession(r.Context(), pair)
	if err != nil || sess == nil {
		appErr := apperr.Classify(err)
		evt := rf.logger.Warn().Str("path", r.URL.Path)
		if appErr != nil {
			evt = evt.Str("kind", appErr.Kind.String()).Err(appErr)
		}
		evt.Msg("session refresh failed, clearing tokens")
		rf.tokens.Clear(w)
		return nil
	}

	n, err := rf.tokens.Rotate(w, pair, sess.TokenPair)
	if err != nil {
		rf.logger.Error().Err(err).Str("user_id", sess.User.ID).Msg("failed to write rotated tokens")
	}
	if n > 0 {
		rf.logger.Debug().Str("user_id", sess.User.ID).Int("cookies", n).Msg("tokens rotated")
	}
	return sess
}
