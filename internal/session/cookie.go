package session

import (
	"net/http"
	"time"
)

// DefaultCookieName is used when config leaves the cookie name empty.
const DefaultCookieName = "bb_session"

// CookieOptions defines how the session cookie is issued.
type CookieOptions struct {
	Name   string
	Secure bool
}

func (o CookieOptions) name() string {
	if o.Name == "" {
		return DefaultCookieName
	}
	return o.Name
}

// SetCookie issues the session cookie to the client.
func SetCookie(w http.ResponseWriter, sid string, ttl time.Duration, opts CookieOptions) {
	http.SetCookie(w, &http.Cookie{
		Name:     opts.name(),
		Value:    sid,
		Path:     "/",
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		Secure:   opts.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearCookie removes the session cookie from the client.
func ClearCookie(w http.ResponseWriter, opts CookieOptions) {
	http.SetCookie(w, &http.Cookie{
		Name:     opts.name(),
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   opts.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// FromRequest extracts the session id from the request cookie.
func FromRequest(r *http.Request, opts CookieOptions) (string, bool) {
	c, err := r.Cookie(opts.name())
	if err != nil || c.Value == "" {
		return "", false
	}
	return c.Value, true
}
