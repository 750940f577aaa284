package session

import (
	"context"

	"github.com/vindennt/gearlist/internal/models"
)

type contextKey string

const (
	sessionContextKey contextKey = "session"
	guestContextKey   contextKey = "guest_id"
)

func WithSession(ctx context.Context, s *models.Session) context.Context {
	return context.WithValue(ctx, sessionContextKey, s)
}

// FromContext returns the validated session or nil for anonymous requests.
func FromContext(ctx context.Context) *models.Session {
	s, _ := ctx.Value(sessionContextKey).(*models.Session)
	return s
}

// AccessToken is "" for anonymous requests.
func AccessToken(ctx context.Context) string {
	if s := FromContext(ctx); s != nil {
		return s.AccessToken
	}
	return ""
}

func WithGuestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, guestContextKey, id)
}

func GuestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(guestContextKey).(string)
	return id
}
