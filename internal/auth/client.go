package auth

import (
	"context"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/supabase-community/gotrue-go"
	"github.com/supabase-community/gotrue-go/types"

	"github.com/vindennt/gearlist/internal/apperr"
	"github.com/vindennt/gearlist/internal/config"
	"github.com/vindennt/gearlist/internal/models"
)

// Access tokens this close to expiry are refreshed instead of validated.
const expiryLeeway = 10 * time.Second

type Client struct {
	AuthClient gotrue.Client

	now func() time.Time
}

func NewClient(cfg *config.Config) *Client {
	client := gotrue.New(
		cfg.Supabase.ProjectRef,
		cfg.Supabase.AnonKey,
	).WithCustomGoTrueURL(cfg.AuthURL()).WithClient(http.Client{
		Timeout: cfg.Supabase.Timeout,
	})
	return &Client{
		AuthClient: client,
		now:        time.Now,
	}
}

// SetSession exchanges a stored token pair for a validated session. A live
// access token is checked against the user endpoint and kept as is. An expired
// one is exchanged through the refresh grant, which rotates both tokens.
func (c *Client) SetSession(ctx context.Context, pair models.TokenPair) (*models.Session, error) {
	if !pair.Complete() {
		return nil, apperr.New(apperr.AuthInvalid, "incomplete token pair")
	}

	expiresAt, err := c.accessTokenExpiry(pair.AccessToken)
	if err != nil {
		return nil, err
	}

	if expiresAt.After(c.now().Add(expiryLeeway)) {
		user, err := c.GetUser(ctx, pair.AccessToken)
		if err == nil {
			return &models.Session{
				TokenPair: pair,
				TokenType: "bearer",
				ExpiresIn: int(expiresAt.Sub(c.now()).Seconds()),
				ExpiresAt: expiresAt.Unix(),
				User:      *user,
			}, nil
		}
		if apperr.KindOf(err) != apperr.AuthExpired {
			return nil, err
		}
	}

	return c.Refresh(ctx, pair.RefreshToken)
}

// Refresh runs the refresh_token grant.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*models.Session, error) {
	res, err := do(ctx, func() (*types.TokenResponse, error) {
		return c.AuthClient.RefreshToken(refreshToken)
	})
	if err != nil {
		return nil, apperr.Classify(err)
	}
	return toSession(res.Session), nil
}

func (c *Client) GetUser(ctx context.Context, accessToken string) (*models.User, error) {
	res, err := do(ctx, func() (*types.UserResponse, error) {
		return c.AuthClient.WithToken(accessToken).GetUser()
	})
	if err != nil {
		return nil, apperr.Classify(err)
	}
	return &models.User{ID: res.ID.String(), Email: res.Email}, nil
}

func (c *Client) SignIn(ctx context.Context, email, password string) (*models.Session, error) {
	res, err := do(ctx, func() (*types.TokenResponse, error) {
		return c.AuthClient.SignInWithEmailPassword(email, password)
	})
	if err != nil {
		return nil, apperr.Classify(err)
	}
	return toSession(res.Session), nil
}

// SignUp returns a nil session when the project requires email confirmation.
func (c *Client) SignUp(ctx context.Context, email, password string) (*models.Session, error) {
	res, err := do(ctx, func() (*types.SignupResponse, error) {
		return c.AuthClient.Signup(types.SignupRequest{
			Email:    email,
			Password: password,
		})
	})
	if err != nil {
		return nil, apperr.Classify(err)
	}
	if res.AccessToken == "" {
		return nil, nil
	}
	return toSession(res.Session), nil
}

// Logout revokes the refresh tokens of the session behind accessToken.
func (c *Client) Logout(ctx context.Context, accessToken string) error {
	_, err := do(ctx, func() (struct{}, error) {
		return struct{}{}, c.AuthClient.WithToken(accessToken).Logout()
	})
	if err != nil {
		return apperr.Classify(err)
	}
	return nil
}

func (c *Client) accessTokenExpiry(token string) (time.Time, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, &apperr.Error{Kind: apperr.AuthInvalid, Message: "malformed access token", Err: err}
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, apperr.New(apperr.AuthInvalid, "access token has no expiry")
	}
	return exp.Time, nil
}

func toSession(s types.Session) *models.Session {
	return &models.Session{
		TokenPair: models.TokenPair{
			AccessToken:  s.AccessToken,
			RefreshToken: s.RefreshToken,
		},
		TokenType: s.TokenType,
		ExpiresIn: s.ExpiresIn,
		ExpiresAt: s.ExpiresAt,
		User: models.User{
			ID:    s.User.ID.String(),
			Email: s.User.Email,
		},
	}
}

// gotrue-go has no context support. The HTTP client timeout bounds the call,
// ctx only stops the caller from waiting on it.
func do[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	type result struct {
		val T
		err error
	}

	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}

	done := make(chan result, 1)
	go func() {
		v, err := fn()
		done <- result{v, err}
	}()

	select {
	case r := <-done:
		return r.val, r.err
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}
