package auth

import (
	"context"
	"errors"
	"testing"

	"anthrogate/internal/domain"
	"anthrogate/internal/store"
)

func TestAuthenticateMasterKeyBypass(t *testing.T) {
	keys := store.NewMemoryStore()
	a := New(keys, "master-secret", true)

	kc, err := a.Authenticate(context.Background(), "master-secret")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !kc.IsAdmin {
		t.Fatal("expected an admin KeyContext from the master key")
	}
}

func TestAuthenticateValidKey(t *testing.T) {
	keys := store.NewMemoryStore()
	raw := "sk-ant-test-key"
	keys.Put(context.Background(), &domain.APIKey{
		Key:      HashKey(raw),
		UserID:   "user-1",
		IsActive: true,
	})

	a := New(keys, "", true)
	kc, err := a.Authenticate(context.Background(), raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if kc.UserID != "user-1" {
		t.Fatalf("got UserID %q, want user-1", kc.UserID)
	}
}

func TestAuthenticateUnknownKey(t *testing.T) {
	a := New(store.NewMemoryStore(), "", true)
	_, err := a.Authenticate(context.Background(), "sk-ant-never-provisioned")

	var authFailure *Error
	if !errors.As(err, &authFailure) {
		t.Fatalf("expected *auth.Error, got %T: %v", err, err)
	}
	if authFailure.Reason != ReasonUnknown {
		t.Fatalf("got reason %q, want unknown", authFailure.Reason)
	}
	var classified *domain.Error
	if !errors.As(err, &classified) || classified.Kind != domain.ErrAuthentication {
		t.Fatalf("expected domain.ErrAuthentication, got %v", err)
	}
}

func TestAuthenticateInactiveKey(t *testing.T) {
	keys := store.NewMemoryStore()
	raw := "sk-ant-disabled"
	keys.Put(context.Background(), &domain.APIKey{
		Key:      HashKey(raw),
		IsActive: false,
	})

	a := New(keys, "", true)
	_, err := a.Authenticate(context.Background(), raw)

	var authFailure *Error
	if !errors.As(err, &authFailure) || authFailure.Reason != ReasonInactive {
		t.Fatalf("expected inactive reason, got %v", err)
	}
}

func TestAuthenticateMissingKeyWhenNotRequired(t *testing.T) {
	a := New(store.NewMemoryStore(), "", false)
	kc, err := a.Authenticate(context.Background(), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if kc.IsAdmin {
		t.Fatal("anonymous context should not be admin")
	}
}

func TestAuthenticateMissingKeyWhenRequired(t *testing.T) {
	a := New(store.NewMemoryStore(), "", true)
	_, err := a.Authenticate(context.Background(), "")

	var authFailure *Error
	if !errors.As(err, &authFailure) || authFailure.Reason != ReasonMissing {
		t.Fatalf("expected missing reason, got %v", err)
	}
}
