package api

import (
	"net/http"

	"github.com/vindennt/gearlist/internal/models"
)

func sessionResponse(sess *models.Session) models.SessionResponse {
	return models.SessionResponse{
		ExpiresIn: sess.ExpiresIn,
		TokenType: sess.TokenType,
		User:      sess.User,
	}
}

func (s *Server) readCredentials(w http.ResponseWriter, r *http.Request) (models.AuthRequest, bool) {
	var req models.AuthRequest
	ok := decodeJSON(w, r, &req, false)
	return req, ok
}

// startSession stores the tokens and ends any guest session along with its
// data.
func (s *Server) startSession(w http.ResponseWriter, r *http.Request, sess *models.Session) {
	if err := s.Tokens.Write(w, sess.TokenPair); err != nil {
		s.logger.Error().Err(err).Str("user_id", sess.User.ID).Msg("failed to write session tokens")
	}

	guestID := s.Tokens.GuestID(r)
	if guestID != "" {
		s.Guests.Clear(r.Context(), guestID)
	}
	if guestID != "" || s.Tokens.IsGuestSession(r) {
		s.Tokens.EndGuestSession(w)
	}
}

func (s *Server) signUp(w http.ResponseWriter, r *http.Request) {
	req, ok := s.readCredentials(w, r)
	if !ok {
		return
	}

	sess, err := s.Auth.SignUp(r.Context(), req.Email, req.Password)
	if err != nil {
		s.logger.Warn().Err(err).Msg("signup failed")
		writeError(w, http.StatusUnprocessableEntity, "Signup failed", err.Error())
		return
	}

	if sess == nil {
		writeJSON(w, http.StatusOK, models.AuthResponse{
			Message: "Signup successful, confirm your email to sign in",
		})
		return
	}

	s.startSession(w, r, sess)
	writeJSON(w, http.StatusOK, models.AuthResponse{
		Message: "Signup & signin successful",
		Session: sessionResponse(sess),
	})
}

func (s *Server) signIn(w http.ResponseWriter, r *http.Request) {
	req, ok := s.readCredentials(w, r)
	if !ok {
		return
	}

	sess, err := s.Auth.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		s.logger.Info().Err(err).Msg("signin failed")
		writeError(w, http.StatusUnauthorized, "Signin failed", err.Error())
		return
	}

	s.startSession(w, r, sess)
	writeJSON(w, http.StatusOK, models.AuthResponse{
		Message: "Signin successful",
		Session: sessionResponse(sess),
	})
}

// storeSession keeps the tokens posted by the OAuth redirect page. They are
// validated by the session middleware on the next request.
func (s *Server) storeSession(w http.ResponseWriter, r *http.Request) {
	var pair models.TokenPair
	if !decodeJSON(w, r, &pair, false) {
		return
	}
	if pair.AccessToken == "" {
		writeJSON(w, http.StatusBadRequest, map[string]bool{"success": false})
		return
	}

	// Tokens of an earlier session must not survive next to the new ones.
	if err := s.Tokens.Replace(w, pair); err != nil {
		s.logger.Error().Err(err).Msg("failed to store callback tokens")
		writeJSON(w, http.StatusInternalServerError, map[string]bool{"success": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// signOut clears the token cookies and drops the user's cached lists. The
// remote logout is best effort.
func (s *Server) signOut(w http.ResponseWriter, r *http.Request) {
	pair := s.Tokens.Read(r)
	s.Tokens.Clear(w)

	if pair.AccessToken != "" {
		ctx := r.Context()
		if user, err := s.Auth.GetUser(ctx, pair.AccessToken); err == nil {
			s.Lists.Close(user.ID)
		}
		if err := s.Auth.Logout(ctx, pair.AccessToken); err != nil {
			s.logger.Debug().Err(err).Msg("remote logout failed")
		}
	}

	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}
