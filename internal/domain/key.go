package domain

import "time"

// ServiceTier is the backend cost/latency class a request may request, per the glossary.
type ServiceTier string

const (
	ServiceTierDefault  ServiceTier = "default"
	ServiceTierFlex     ServiceTier = "flex"
	ServiceTierPriority ServiceTier = "priority"
	ServiceTierReserved ServiceTier = "reserved"
)

// APIKey is a persisted credential record (§3 ApiKey).
type APIKey struct {
	Key         string            `json:"key"`
	UserID      string            `json:"user_id"`
	Name        string            `json:"name"`
	IsActive    bool              `json:"is_active"`
	RateLimit   *int              `json:"rate_limit,omitempty"` // requests/minute override
	ServiceTier ServiceTier       `json:"service_tier,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// UsageRecord is one append-only accounting entry (§3 UsageRecord).
type UsageRecord struct {
	APIKey          string
	Timestamp       time.Time
	RequestID       string
	Model           string
	InputTokens     int
	OutputTokens    int
	CacheReadTokens int
	CacheWriteTokens int
	Success         bool
	ErrorMessage    string
}

// KeyContext is what the Authenticator attaches to an in-flight request (§4.6).
type KeyContext struct {
	Key         string
	UserID      string
	IsAdmin     bool
	RateLimit   *int
	ServiceTier ServiceTier
}
