package db

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/supabase-community/postgrest-go"

	"github.com/vindennt/gearlist/internal/config"
	"github.com/vindennt/gearlist/internal/session"
)

type Client struct {
	restURL   string
	anonKey   string
	secretKey string
	timeout   time.Duration

	// Base transport for every request. Tests swap in an httptest transport.
	Transport http.RoundTripper
}

func NewClient(cfg *config.Config) *Client {
	return &Client{
		restURL:   cfg.RestURL(),
		anonKey:   cfg.Supabase.AnonKey,
		secretKey: cfg.Supabase.SecretKey,
		timeout:   cfg.Supabase.Timeout,
		Transport: http.DefaultTransport,
	}
}

// GetUserClient returns a PostgREST client acting as the user of ctx, so row
// level security applies. Anonymous contexts fall back to the anon key.
func (c *Client) GetUserClient(ctx context.Context) *postgrest.Client {
	client := c.newClient(ctx, c.anonKey)

	if token := session.AccessToken(ctx); token != "" {
		client.SetAuthToken(token)
	} else {
		client.SetAuthToken(c.anonKey)
	}

	return client
}

// GetSystemClient returns a PostgREST client using the secret key. It bypasses
// row level security and must never act on user input alone.
func (c *Client) GetSystemClient(ctx context.Context) *postgrest.Client {
	client := c.newClient(ctx, c.secretKey)
	client.SetAuthToken(c.secretKey)
	return client
}

func (c *Client) newClient(ctx context.Context, apiKey string) *postgrest.Client {
	client := postgrest.NewClient(c.restURL, "", map[string]string{
		"apikey": apiKey,
	})
	if client.Transport != nil {
		client.Transport.Parent = &contextTransport{ctx: ctx, timeout: c.timeout, base: c.Transport}
	}
	return client
}

// postgrest-go builds its requests without a context. contextTransport binds
// each request to the caller's context and the configured timeout.
type contextTransport struct {
	ctx     context.Context
	timeout time.Duration
	base    http.RoundTripper
}

func (t *contextTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := t.ctx
	if t.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		res, err := t.base.RoundTrip(req.WithContext(ctx))
		if err != nil {
			cancel()
			return nil, err
		}
		res.Body = &cancelBody{ReadCloser: res.Body, cancel: cancel}
		return res, nil
	}
	return t.base.RoundTrip(req.WithContext(ctx))
}

// cancelBody releases the request timeout once the body is closed.
type cancelBody struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (b *cancelBody) Close() error {
	defer b.cancel()
	return b.ReadCloser.Close()
}

// rpc calls a Postgres function. postgrest-go reports transport failures
// through ClientError and returns error bodies as plain strings, so both are
// turned into errors here.
func rpc(client *postgrest.Client, name string, body any) (string, error) {
	res := client.Rpc(name, "", body)
	if client.ClientError != nil {
		return "", client.ClientError
	}

	trimmed := strings.TrimSpace(res)
	if strings.HasPrefix(trimmed, "{") {
		var pgErr postgrest.ExecuteError
		if err := json.Unmarshal([]byte(trimmed), &pgErr); err == nil && pgErr.Code != "" && pgErr.Message != "" {
			return "", fmt.Errorf("(%s) %s", pgErr.Code, pgErr.Message)
		}
	}
	return res, nil
}
