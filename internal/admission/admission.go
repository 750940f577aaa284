// Package admission decides, from the path and the caller's session and guest
// state, whether a request proceeds or is redirected. It performs no I/O.
package admission

import "strings"

const (
	LoginPath = "/login"
	AppPath   = "/app"
)

var (
	publicPrefixes    = []string{"/auth/session", "/login", "/auth/callback", "/health"}
	protectedPrefixes = []string{"/app", "/app/lists"}
	guestPrefix       = "/guest"
)

type Action int

const (
	Allow Action = iota
	RedirectLogin
	RedirectApp
)

func (a Action) String() string {
	switch a {
	case RedirectLogin:
		return "redirect_login"
	case RedirectApp:
		return "redirect_app"
	default:
		return "allow"
	}
}

type Decision struct {
	Action Action
	// MarkGuest asks the caller to start a guest session. Only set with Allow.
	MarkGuest bool
}

// Location is the redirect target, "" for Allow.
func (d Decision) Location() string {
	switch d.Action {
	case RedirectLogin:
		return LoginPath
	case RedirectApp:
		return AppPath
	default:
		return ""
	}
}

func (d Decision) IsRedirect() bool {
	return d.Action != Allow
}

// Decide applies the admission rules in priority order.
func Decide(path string, hasSession, isGuestRoute, isGuestSession bool) Decision {
	if path == "/" {
		if hasSession {
			return Decision{Action: RedirectApp}
		}
		return Decision{Action: RedirectLogin}
	}

	// Authenticated users cannot be guests.
	if hasSession && isGuestRoute {
		return Decision{Action: RedirectApp}
	}

	if !hasSession && !isGuestRoute && !isGuestSession && IsProtected(path) {
		return Decision{Action: RedirectLogin}
	}

	return Decision{Action: Allow, MarkGuest: isGuestRoute && !isGuestSession}
}

// IsPublic reports whether path skips session processing entirely.
func IsPublic(path string) bool {
	return hasAnyPrefix(path, publicPrefixes)
}

func IsGuestRoute(path string) bool {
	return strings.HasPrefix(path, guestPrefix)
}

func IsProtected(path string) bool {
	return hasAnyPrefix(path, protectedPrefixes)
}

func hasAnyPrefix(path string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}
