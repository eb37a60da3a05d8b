package session

import "context"

// Session is the client-held login state: the API token and the id of the
// user it was issued to. Both are set together by login and cleared together
// by logout; a session with an empty token is the logged-out state.
type Session struct {
	Token  string `json:"token"`
	UserID string `json:"userId"`
}

// LoggedIn reports whether the session carries an auth token.
func (s Session) LoggedIn() bool {
	return s.Token != ""
}

// Store persists sessions across requests and process restarts. Save returns
// the opaque session id carried by the browser cookie. Stores never validate
// the embedded API token; they only reflect what was last written.
type Store interface {
	Save(ctx context.Context, sess Session) (string, error)
	Get(ctx context.Context, sid string) (Session, bool, error)
	Delete(ctx context.Context, sid string) error
}
