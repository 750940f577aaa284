package session

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/securecookie"

	"github.com/vindennt/gearlist/internal/models"
)

const (
	AccessTokenCookie  = "sb-access-token"
	RefreshTokenCookie = "sb-refresh-token"
	GuestSessionCookie = "guest-session"
	GuestIDCookie      = "guest-id"

	tokenMaxAge = 60 * 60 * 24 * 7 // 1 week
	guestMaxAge = 60 * 60 * 24     // 24 hours
)

// TokenStore keeps the access/refresh pair and the guest markers in cookies.
// It has no logic beyond get/set/delete.
type TokenStore struct {
	secure bool
	codec  *securecookie.SecureCookie
}

// NewTokenStore signs token cookies with hashKey. An empty key stores raw
// values.
func NewTokenStore(secure bool, hashKey string) *TokenStore {
	s := &TokenStore{secure: secure}
	if hashKey != "" {
		s.codec = securecookie.New([]byte(hashKey), nil).MaxAge(tokenMaxAge)
	}
	return s
}

// Read returns the stored pair. Missing or tampered cookies read as "".
func (s *TokenStore) Read(r *http.Request) models.TokenPair {
	return models.TokenPair{
		AccessToken:  s.get(r, AccessTokenCookie),
		RefreshToken: s.get(r, RefreshTokenCookie),
	}
}

// Write sets both token cookies.
func (s *TokenStore) Write(w http.ResponseWriter, pair models.TokenPair) error {
	return errors.Join(
		s.set(w, AccessTokenCookie, pair.AccessToken),
		s.set(w, RefreshTokenCookie, pair.RefreshToken),
	)
}

// Replace stores pair as the only tokens: present tokens are written and
// absent ones deleted, so no token of an earlier pair survives.
func (s *TokenStore) Replace(w http.ResponseWriter, pair models.TokenPair) error {
	var errs []error
	for _, c := range []struct{ name, value string }{
		{AccessTokenCookie, pair.AccessToken},
		{RefreshTokenCookie, pair.RefreshToken},
	} {
		if c.value == "" {
			s.remove(w, c.name)
			continue
		}
		errs = append(errs, s.set(w, c.name, c.value))
	}
	return errors.Join(errs...)
}

// Rotate rewrites only the tokens that differ between old and next and
// reports how many cookies were written. Tokens that fail to encode are not
// written or counted.
func (s *TokenStore) Rotate(w http.ResponseWriter, old, next models.TokenPair) (int, error) {
	written := 0
	var errs []error
	if next.AccessToken != old.AccessToken {
		if err := s.set(w, AccessTokenCookie, next.AccessToken); err != nil {
			errs = append(errs, err)
		} else {
			written++
		}
	}
	if next.RefreshToken != old.RefreshToken {
		if err := s.set(w, RefreshTokenCookie, next.RefreshToken); err != nil {
			errs = append(errs, err)
		} else {
			written++
		}
	}
	return written, errors.Join(errs...)
}

// Clear deletes both token cookies.
func (s *TokenStore) Clear(w http.ResponseWriter) {
	s.remove(w, AccessTokenCookie)
	s.remove(w, RefreshTokenCookie)
}

func (s *TokenStore) remove(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *TokenStore) IsGuestSession(r *http.Request) bool {
	c, err := r.Cookie(GuestSessionCookie)
	return err == nil && c.Value == "true"
}

func (s *TokenStore) GuestID(r *http.Request) string {
	c, err := r.Cookie(GuestIDCookie)
	if err != nil {
		return ""
	}
	if _, err := uuid.Parse(c.Value); err != nil {
		return ""
	}
	return c.Value
}

// StartGuestSession sets the guest flag and a fresh guest id.
func (s *TokenStore) StartGuestSession(w http.ResponseWriter) string {
	http.SetCookie(w, &http.Cookie{
		Name:   GuestSessionCookie,
		Value:  "true",
		Path:   "/",
		MaxAge: guestMaxAge,
	})
	return s.IssueGuestID(w)
}

func (s *TokenStore) IssueGuestID(w http.ResponseWriter) string {
	id := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     GuestIDCookie,
		Value:    id,
		Path:     "/",
		MaxAge:   guestMaxAge,
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return id
}

// EndGuestSession removes both guest cookies.
func (s *TokenStore) EndGuestSession(w http.ResponseWriter) {
	for _, name := range []string{GuestSessionCookie, GuestIDCookie} {
		http.SetCookie(w, &http.Cookie{Name: name, Value: "", Path: "/", MaxAge: -1})
	}
}

func (s *TokenStore) get(r *http.Request, name string) string {
	c, err := r.Cookie(name)
	if err != nil || c.Value == "" {
		return ""
	}
	if s.codec == nil {
		return c.Value
	}
	var v string
	if err := s.codec.Decode(name, c.Value, &v); err != nil {
		return ""
	}
	return v
}

func (s *TokenStore) set(w http.ResponseWriter, name, value string) error {
	if s.codec != nil {
		encoded, err := s.codec.Encode(name, value)
		if err != nil {
			return fmt.Errorf("encode %s cookie: %w", name, err)
		}
		value = encoded
	}
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   tokenMaxAge,
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}
