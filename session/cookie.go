package session

import (
	"net/http"

	"github.com/giygas/drug-portal-api/interfaces"
	"github.com/google/uuid"
)

// CookieName holds the session id
const CookieName = "sid"

// FromRequest returns the session named by the request cookie, creating one
// and setting the cookie when it is missing, malformed or expired.
func FromRequest(store interfaces.SessionStore, w http.ResponseWriter, r *http.Request) interfaces.SessionState {
	if c, err := r.Cookie(CookieName); err == nil {
		if _, err := uuid.Parse(c.Value); err == nil {
			if state, ok := store.Get(c.Value); ok {
				return state
			}
		}
	}

	state := store.Create()
	setSessionCookie(w, r, state.ID)
	return state
}

func setSessionCookie(w http.ResponseWriter, r *http.Request, id string) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
}
