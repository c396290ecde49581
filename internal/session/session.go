// Package session keeps per-browser state in a signed gorilla/sessions
// cookie: the logged-in user id, the anti-forgery nonce and one-shot flash
// messages.
//
// Mutating methods only change the in-request session. Nothing reaches the
// browser until Save is called, and Save must run before the response
// header is written.
package session

import (
	"encoding/gob"
	"net/http"

	"github.com/gorilla/sessions"
	"github.com/rs/xid"
	"github.com/sirupsen/logrus"
)

const (
	cookieName = "warbler_session"
	userKey    = "curr_user"
	nonceKey   = "csrf_nonce"
)

// Flash categories used by the templates for styling.
const (
	Success = "success"
	Danger  = "danger"
)

// Flash is a one-shot message shown on the next rendered page.
type Flash struct {
	Category string
	Message  string
}

func init() {
	// Flashes live in session.Values as interface{}; gob needs the concrete
	// type registered to encode them.
	gob.Register(Flash{})
}

// Options controls the session cookie.
type Options struct {
	Secure bool // set the Secure attribute (serve over HTTPS only)
	MaxAge int  // seconds; 0 means 16 hours
}

type Manager struct {
	store *sessions.CookieStore
	log   logrus.FieldLogger
}

// NewManager creates a cookie-backed session manager. secret authenticates
// the cookie with HMAC; changing it logs everyone out.
func NewManager(secret []byte, opts Options, log logrus.FieldLogger) *Manager {
	maxAge := opts.MaxAge
	if maxAge <= 0 {
		maxAge = 3600 * 16
	}

	store := sessions.NewCookieStore(secret)
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   opts.Secure,
		SameSite: http.SameSiteLaxMode,
	}
	store.MaxAge(maxAge)

	return &Manager{store: store, log: log}
}

// get returns the request's session. gorilla caches it per request, so
// every call within one request sees the same values.
func (m *Manager) get(r *http.Request) *sessions.Session {
	s, err := m.store.Get(r, cookieName)
	if err != nil {
		// A cookie signed with another key or tampered with still yields a
		// fresh, empty session.
		m.log.WithError(err).Debug("session: discarding undecodable cookie")
	}
	return s
}

// UserID returns the logged-in user's id.
func (m *Manager) UserID(r *http.Request) (int64, bool) {
	id, ok := m.get(r).Values[userKey].(int64)
	return id, ok && id != 0
}

// Login stores userID and rotates the nonce so tokens minted for the
// anonymous session stop working.
func (m *Manager) Login(r *http.Request, userID int64) {
	s := m.get(r)
	s.Values[userKey] = userID
	s.Values[nonceKey] = xid.New().String()
}

// Logout forgets the user and rotates the nonce. Flashes survive so a
// goodbye message can still be shown.
func (m *Manager) Logout(r *http.Request) {
	s := m.get(r)
	delete(s.Values, userKey)
	s.Values[nonceKey] = xid.New().String()
}

// Nonce returns the session's anti-forgery nonce, creating one if needed.
func (m *Manager) Nonce(r *http.Request) string {
	s := m.get(r)
	if nonce, ok := s.Values[nonceKey].(string); ok && nonce != "" {
		return nonce
	}
	nonce := xid.New().String()
	s.Values[nonceKey] = nonce
	return nonce
}

// CurrentNonce returns the nonce without creating one.
func (m *Manager) CurrentNonce(r *http.Request) (string, bool) {
	nonce, ok := m.get(r).Values[nonceKey].(string)
	return nonce, ok && nonce != ""
}

func (m *Manager) AddFlash(r *http.Request, category, message string) {
	m.get(r).AddFlash(Flash{Category: category, Message: message})
}

// Flashes removes and returns the pending flash messages.
func (m *Manager) Flashes(r *http.Request) []Flash {
	raw := m.get(r).Flashes()
	flashes := make([]Flash, 0, len(raw))
	for _, v := range raw {
		if f, ok := v.(Flash); ok {
			flashes = append(flashes, f)
		}
	}
	return flashes
}

// Save writes the session cookie header.
func (m *Manager) Save(w http.ResponseWriter, r *http.Request) error {
	return m.get(r).Save(r, w)
}
