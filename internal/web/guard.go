package web

import "blogbeacon/internal/session"

// canModify reports whether the session user owns the entity with ownerID.
// It gates edit and delete affordances only; the upstream API enforces the
// real authorization on every mutation.
func canModify(sess session.Session, ownerID string) bool {
	return sess.LoggedIn() && ownerID != "" && sess.UserID == ownerID
}
