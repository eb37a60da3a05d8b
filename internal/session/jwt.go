package session

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// JWTStore is the stateless backend: the "session id" handed to the browser
// is itself an HMAC-signed token carrying the API token and user id, so no
// server-side state exists. Delete is a no-op; logout relies on clearing the
// cookie.
type JWTStore struct {
	secret []byte
	ttl    time.Duration
}

type sessionClaims struct {
	Token string `json:"tok"`
	jwt.RegisteredClaims
}

// NewJWTStore builds a signed-cookie session store.
func NewJWTStore(secret string, ttl time.Duration) *JWTStore {
	return &JWTStore{secret: []byte(secret), ttl: ttl}
}

// Save signs the session into a compact JWT.
func (s *JWTStore) Save(_ context.Context, sess Session) (string, error) {
	now := time.Now()
	claims := sessionClaims{
		Token: sess.Token,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sess.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// Get verifies the signature and expiry and unpacks the session.
// A bad or expired token reads as "no session", not as an error.
func (s *JWTStore) Get(_ context.Context, sid string) (Session, bool, error) {
	var claims sessionClaims
	token, err := jwt.ParseWithClaims(sid, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenSignatureInvalid
		}
		return s.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) || errors.Is(err, jwt.ErrTokenSignatureInvalid) || errors.Is(err, jwt.ErrTokenMalformed) {
			return Session{}, false, nil
		}
		return Session{}, false, err
	}
	if !token.Valid {
		return Session{}, false, nil
	}
	return Session{Token: claims.Token, UserID: claims.Subject}, true, nil
}

// Delete is a no-op for stateless sessions; provided for interface parity.
func (s *JWTStore) Delete(context.Context, string) error {
	return nil
}
