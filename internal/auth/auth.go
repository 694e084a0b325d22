// Package auth implements the Authenticator: validating an inbound API key and attaching its
// resolved KeyContext to the request.
package auth

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"

	"anthrogate/internal/domain"
	"anthrogate/internal/store"
)

// FailureReason distinguishes why authentication failed, for logging only — every reason maps to
// the same domain.ErrAuthentication kind and HTTP status on the wire (§7).
type FailureReason string

const (
	ReasonMissing  FailureReason = "missing"  // no key supplied on a required-auth request
	ReasonUnknown  FailureReason = "unknown"  // hash has no matching repository record
	ReasonInactive FailureReason = "inactive" // key exists but APIKey.IsActive is false
)

// Error wraps a FailureReason alongside the classified domain.Error the caller returns.
type Error struct {
	Reason FailureReason
	Cause  *domain.Error
}

func (e *Error) Error() string  { return e.Cause.Error() }
func (e *Error) Unwrap() error  { return e.Cause }

// Authenticator validates inbound keys against the Key Repository Contract (§4.6).
type Authenticator struct {
	keys         store.KeyRepository
	masterAPIKey string
	required     bool
}

// New builds an Authenticator. masterAPIKey may be empty, disabling the bypass. required mirrors
// security.require_api_key: when false, a missing key is let through as an anonymous context
// rather than rejected.
func New(keys store.KeyRepository, masterAPIKey string, required bool) *Authenticator {
	return &Authenticator{keys: keys, masterAPIKey: masterAPIKey, required: required}
}

// Authenticate implements §4.6: master-key bypass first, then SHA-256 hash + repository lookup.
func (a *Authenticator) Authenticate(ctx context.Context, rawKey string) (*domain.KeyContext, error) {
	if rawKey == "" {
		if !a.required {
			return &domain.KeyContext{}, nil
		}
		return nil, authErr(ReasonMissing, "request carries no API key")
	}

	if a.masterAPIKey != "" && constantTimeEqual(rawKey, a.masterAPIKey) {
		return &domain.KeyContext{
			Key:     rawKey,
			IsAdmin: true,
		}, nil
	}

	hashed := hashKey(rawKey)
	key, err := a.keys.Get(ctx, hashed)
	if errors.Is(err, store.ErrKeyNotFound) {
		return nil, authErr(ReasonUnknown, "API key not recognized")
	}
	if err != nil {
		return nil, domain.NewError(domain.ErrInternal, "looking up API key", err)
	}
	if !key.IsActive {
		return nil, authErr(ReasonInactive, "API key has been deactivated")
	}

	return &domain.KeyContext{
		Key:         key.Key,
		UserID:      key.UserID,
		RateLimit:   key.RateLimit,
		ServiceTier: key.ServiceTier,
	}, nil
}

// HashKey exposes the same hash Authenticate uses, for provisioning tools that need to write a
// store.KeyRepository record under the key the Authenticator will later look up.
func HashKey(rawKey string) string { return hashKey(rawKey) }

func hashKey(rawKey string) string {
	sum := sha256.Sum256([]byte(rawKey))
	return hex.EncodeToString(sum[:])
}

func constantTimeEqual(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func authErr(reason FailureReason, message string) *Error {
	return &Error{Reason: reason, Cause: domain.NewError(domain.ErrAuthentication, message, nil)}
}
