// Package store defines the Key Repository Contract (§4.6/§6): typed persistence interfaces for
// API keys, usage records, and custom model-ID mappings, kept deliberately narrow to the three
// logical tables named by the external interfaces (keyed by api_key, by (api_key, timestamp), and
// by anthropic_model_id).
package store

import (
	"context"
	"errors"
	"time"

	"anthrogate/internal/domain"
)

// ErrKeyNotFound is returned by KeyRepository.Get when no record matches.
var ErrKeyNotFound = errors.New("api key not found")

// KeyRepository is the persisted Keys table: primary key api_key, secondary index by user_id.
type KeyRepository interface {
	Get(ctx context.Context, apiKey string) (*domain.APIKey, error)
	Put(ctx context.Context, key *domain.APIKey) error
}

// UsageRepository is the append-only Usage table: primary key (api_key, timestamp), secondary
// index by request_id.
type UsageRepository interface {
	Record(ctx context.Context, record domain.UsageRecord) error
	ListByKey(ctx context.Context, apiKey string, since time.Time) ([]domain.UsageRecord, error)
}

// ModelMappingRepository is the custom mapping table used by §4.1's first lookup tier: primary key
// anthropic_model_id.
type ModelMappingRepository interface {
	ModelMapping(ctx context.Context, anthropicID string) (backendID string, ok bool, err error)
	PutModelMapping(ctx context.Context, anthropicID, backendID string) error
}

// Store bundles all three repositories, the shape the Pipeline Orchestrator and main wiring hold.
type Store interface {
	KeyRepository
	UsageRepository
	ModelMappingRepository
	Close() error
}

// ResolverAdapter adapts a ModelMappingRepository to the resolve package's narrower, context-free,
// error-free Store interface — the resolver "never errors" per §4.1, so a lookup failure here is
// simply treated as a tier-1 miss and falls through to the built-in table.
type ResolverAdapter struct {
	repo ModelMappingRepository
}

func NewResolverAdapter(repo ModelMappingRepository) *ResolverAdapter {
	return &ResolverAdapter{repo: repo}
}

func (a *ResolverAdapter) ModelMapping(anthropicID string) (string, bool) {
	backendID, ok, err := a.repo.ModelMapping(context.Background(), anthropicID)
	if err != nil {
		return "", false
	}
	return backendID, ok
}
