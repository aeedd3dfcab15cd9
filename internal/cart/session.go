package cart

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/sessions"
)

const (
	SessionName = "storefront-session"
	cartIDKey   = "cart_id"
)

// Sessions resolves the cart id stored in the signed session cookie.
type Sessions struct {
	store sessions.Store
}

func NewSessions(store sessions.Store) *Sessions {
	return &Sessions{store: store}
}

// NewCookieStore builds the cookie store used for the cart session.
func NewCookieStore(secret []byte, secure bool) *sessions.CookieStore {
	store := sessions.NewCookieStore(secret)
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   86400 * 30,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
	return store
}

// CartID returns the session's cart id, or "" when the session has none.
func (s *Sessions) CartID(r *http.Request) string {
	session, err := s.store.Get(r, SessionName)
	if err != nil {
		return ""
	}
	id, _ := session.Values[cartIDKey].(string)
	return id
}

// Resolve returns the session's cart id, assigning and saving a new one when
// missing. A tampered or expired cookie is replaced.
func (s *Sessions) Resolve(w http.ResponseWriter, r *http.Request) (string, error) {
	// Get returns a fresh session alongside a decode error.
	session, _ := s.store.Get(r, SessionName)

	if id, ok := session.Values[cartIDKey].(string); ok && id != "" {
		return id, nil
	}

	id := uuid.NewString()
	session.Values[cartIDKey] = id
	if err := session.Save(r, w); err != nil {
		return "", err
	}
	return id, nil
}
