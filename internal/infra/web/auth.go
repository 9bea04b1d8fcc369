package web

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"support-chat-router/internal/domain"
	"support-chat-router/internal/domain/model"
)

// Authenticator verifies the bearer tokens issued by the account service
// and maps their claims onto chat actors.
type Authenticator struct {
	secret []byte
}

func NewAuthenticator(secret string) *Authenticator {
	return &Authenticator{secret: []byte(secret)}
}

type tokenClaims struct {
	Email string `json:"email,omitempty"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

func (a *Authenticator) Verify(token string) (model.Actor, error) {
	var claims tokenClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
		}
		return a.secret, nil
	})
	if err != nil {
		return model.Actor{}, fmt.Errorf("%w: %v", domain.ErrUnauthorized, err)
	}

	role := model.Role(claims.Role)
	if role != model.RoleUser && role != model.RoleAgent {
		return model.Actor{}, fmt.Errorf("%w: unknown role %q", domain.ErrUnauthorized, claims.Role)
	}
	if claims.Subject == "" {
		return model.Actor{}, fmt.Errorf("%w: missing subject", domain.ErrUnauthorized)
	}
	return model.Actor{ID: claims.Subject, Email: claims.Email, Role: role}, nil
}

// FromRequest authenticates the Authorization header.
func (a *Authenticator) FromRequest(r *http.Request) (model.Actor, error) {
	header := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		return model.Actor{}, fmt.Errorf("%w: missing bearer token", domain.ErrUnauthorized)
	}
	return a.Verify(token)
}

// Sign issues a token for the actor. Dev tooling and tests only; in
// production the account service signs tokens.
func (a *Authenticator) Sign(actor model.Actor, ttl time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, tokenClaims{
		Email: actor.Email,
		Role:  string(actor.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actor.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	})
	return token.SignedString(a.secret)
}
