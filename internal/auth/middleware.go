package auth

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Modes accepted by Authenticator.
const (
	ModeDisabled = "disabled"
	ModeToken    = "token"
	ModeJWT      = "jwt"
)

// Authenticator resolves the owner of an incoming request.
//
// Mode controls how callers are identified:
//   - "disabled": every request acts as DefaultOwner.
//   - "token": a static Bearer token; requests act as DefaultOwner.
//   - "jwt": an HS256 Bearer JWT; the "sub" claim is the owner.
type Authenticator struct {
	Mode         string
	Token        string
	DefaultOwner string
	Secret       []byte
	Issuer       string
}

var errUnauthorized = errors.New("unauthorized")

// Owner extracts the owner identity from r.
func (a *Authenticator) Owner(r *http.Request) (string, error) {
	switch a.Mode {
	case ModeToken:
		tok, ok := bearer(r)
		if !ok || subtle.ConstantTimeCompare([]byte(tok), []byte(a.Token)) != 1 {
			return "", errUnauthorized
		}
		return a.DefaultOwner, nil
	case ModeJWT:
		tok, ok := bearer(r)
		if !ok {
			return "", errUnauthorized
		}
		return a.ParseToken(tok)
	default:
		return a.DefaultOwner, nil
	}
}

// ParseToken validates a signed JWT and returns its subject.
func (a *Authenticator) ParseToken(raw string) (string, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if a.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.Issuer))
	}
	token, err := jwt.ParseWithClaims(raw, &jwt.RegisteredClaims{}, func(*jwt.Token) (any, error) {
		return a.Secret, nil
	}, opts...)
	if err != nil {
		return "", fmt.Errorf("auth: parse token: %w", err)
	}
	sub, err := token.Claims.GetSubject()
	if err != nil || sub == "" {
		return "", fmt.Errorf("auth: token has no subject: %w", errUnauthorized)
	}
	return sub, nil
}

// IssueToken signs an HS256 JWT for owner valid for ttl.
func (a *Authenticator) IssueToken(owner string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   owner,
		Issuer:    a.Issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.Secret)
	if err != nil {
		return "", fmt.Errorf("auth: sign token: %w", err)
	}
	return signed, nil
}

// Middleware rejects unauthenticated requests with 401 and stores the owner
// in the request context otherwise.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		owner, err := a.Owner(r)
		if err != nil || owner == "" {
			w.Header().Set("Content-Type", "application/json; charset=utf-8")
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"unauthorized","kind":"not-authenticated"}` + "\n"))
			return
		}
		next.ServeHTTP(w, r.WithContext(WithOwner(r.Context(), owner)))
	})
}

func bearer(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	if !strings.HasPrefix(h, "Bearer ") {
		return "", false
	}
	return strings.TrimPrefix(h, "Bearer "), true
}
