package web

import (
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"support-chat-router/internal/domain"
	"support-chat-router/internal/domain/model"
)

func TestVerifyRoundTrip(t *testing.T) {
	auth := NewAuthenticator("test-secret")

	token, err := auth.Sign(model.Actor{ID: "u-1", Email: "u1@example.com", Role: model.RoleUser}, time.Minute)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	actor, err := auth.Verify(token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if actor.ID != "u-1" || actor.Email != "u1@example.com" || actor.Role != model.RoleUser {
		t.Fatalf("unexpected actor %+v", actor)
	}
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	token, err := NewAuthenticator("secret-a").Sign(model.Actor{ID: "u-1", Role: model.RoleUser}, time.Minute)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if _, err := NewAuthenticator("secret-b").Verify(token); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	auth := NewAuthenticator("test-secret")
	token, err := auth.Sign(model.Actor{ID: "u-1", Role: model.RoleUser}, -time.Minute)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if _, err := auth.Verify(token); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestVerifyRejectsUnknownRole(t *testing.T) {
	auth := NewAuthenticator("test-secret")
	token, err := auth.Sign(model.Actor{ID: "u-1", Role: model.Role("superadmin")}, time.Minute)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if _, err := auth.Verify(token); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestFromRequestRequiresBearer(t *testing.T) {
	auth := NewAuthenticator("test-secret")

	r := httptest.NewRequest("GET", "/api/v1/history", nil)
	if _, err := auth.FromRequest(r); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}

	r.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
	if _, err := auth.FromRequest(r); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for non-bearer scheme, got %v", err)
	}
}
