package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"anthrogate/internal/domain"
	"anthrogate/internal/store"
)

// Get implements store.KeyRepository, grounded on the teacher's TenantStore.GetAPIKeyByHash
// query shape (single-row SELECT + sql.NullString handling for optional fields).
func (s *Store) Get(ctx context.Context, apiKey string) (*domain.APIKey, error) {
	query := `
		SELECT api_key, user_id, name, is_active, rate_limit, service_tier, metadata
		FROM api_keys WHERE api_key = $1
	`

	var key domain.APIKey
	var rateLimit sql.NullInt64
	var serviceTier sql.NullString
	var metadataJSON []byte

	err := s.db.QueryRowContext(ctx, query, apiKey).Scan(
		&key.Key, &key.UserID, &key.Name, &key.IsActive, &rateLimit, &serviceTier, &metadataJSON)
	if err == sql.ErrNoRows {
		return nil, store.ErrKeyNotFound
	}
	if err != nil {
		return nil, err
	}

	if rateLimit.Valid {
		v := int(rateLimit.Int64)
		key.RateLimit = &v
	}
	if serviceTier.Valid {
		key.ServiceTier = domain.ServiceTier(serviceTier.String)
	}
	if len(metadataJSON) > 0 {
		if s.enc != nil {
			var ciphertext string
			if err := json.Unmarshal(metadataJSON, &ciphertext); err != nil {
				return nil, fmt.Errorf("reading encrypted key metadata: %w", err)
			}
			plaintext, err := s.enc.Decrypt(ciphertext)
			if err != nil {
				return nil, fmt.Errorf("decrypting key metadata: %w", err)
			}
			metadataJSON = []byte(plaintext)
		}
		json.Unmarshal(metadataJSON, &key.Metadata)
	}

	return &key, nil
}

// Put implements store.KeyRepository, upserting by the api_key primary key. When the store was
// configured with a metadata encryption key, the metadata column is encrypted at rest.
func (s *Store) Put(ctx context.Context, key *domain.APIKey) error {
	metadataJSON, err := json.Marshal(key.Metadata)
	if err != nil {
		metadataJSON = []byte("{}")
	}
	if s.enc != nil {
		ciphertext, err := s.enc.Encrypt(string(metadataJSON))
		if err != nil {
			return fmt.Errorf("encrypting key metadata: %w", err)
		}
		metadataJSON, err = json.Marshal(ciphertext)
		if err != nil {
			return fmt.Errorf("encoding encrypted key metadata: %w", err)
		}
	}

	var rateLimit interface{}
	if key.RateLimit != nil {
		rateLimit = *key.RateLimit
	}

	query := `
		INSERT INTO api_keys (api_key, user_id, name, is_active, rate_limit, service_tier, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (api_key) DO UPDATE SET
			user_id = EXCLUDED.user_id,
			name = EXCLUDED.name,
			is_active = EXCLUDED.is_active,
			rate_limit = EXCLUDED.rate_limit,
			service_tier = EXCLUDED.service_tier,
			metadata = EXCLUDED.metadata
	`
	_, err = s.db.ExecContext(ctx, query, key.Key, key.UserID, key.Name, key.IsActive,
		rateLimit, string(key.ServiceTier), metadataJSON)
	return err
}

// Record implements store.UsageRepository, grounded on the teacher's RecordUsage insert.
func (s *Store) Record(ctx context.Context, record domain.UsageRecord) error {
	query := `
		INSERT INTO usage_records (api_key, timestamp, request_id, model, input_tokens,
			output_tokens, cache_read_tokens, cache_write_tokens, success, error_message)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := s.db.ExecContext(ctx, query, record.APIKey, record.Timestamp, record.RequestID,
		record.Model, record.InputTokens, record.OutputTokens, record.CacheReadTokens,
		record.CacheWriteTokens, record.Success, record.ErrorMessage)
	return err
}

// ListByKey implements store.UsageRepository, scanning the (api_key, timestamp) primary key range.
func (s *Store) ListByKey(ctx context.Context, apiKey string, since time.Time) ([]domain.UsageRecord, error) {
	query := `
		SELECT api_key, timestamp, request_id, model, input_tokens, output_tokens,
			cache_read_tokens, cache_write_tokens, success, error_message
		FROM usage_records
		WHERE api_key = $1 AND timestamp >= $2
		ORDER BY timestamp DESC
	`
	rows, err := s.db.QueryContext(ctx, query, apiKey, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.UsageRecord
	for rows.Next() {
		var r domain.UsageRecord
		if err := rows.Scan(&r.APIKey, &r.Timestamp, &r.RequestID, &r.Model, &r.InputTokens,
			&r.OutputTokens, &r.CacheReadTokens, &r.CacheWriteTokens, &r.Success, &r.ErrorMessage); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ModelMapping implements store.ModelMappingRepository (§4.1 tier 1).
func (s *Store) ModelMapping(ctx context.Context, anthropicID string) (string, bool, error) {
	var backendID string
	err := s.db.QueryRowContext(ctx,
		"SELECT backend_model_id FROM model_mappings WHERE anthropic_model_id = $1", anthropicID).
		Scan(&backendID)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return backendID, true, nil
}

// ListModelMappings returns every custom anthropic-to-backend mapping, for GET /v1/models.
func (s *Store) ListModelMappings(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT anthropic_model_id FROM model_mappings")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// PutModelMapping implements store.ModelMappingRepository.
func (s *Store) PutModelMapping(ctx context.Context, anthropicID, backendID string) error {
	query := `
		INSERT INTO model_mappings (anthropic_model_id, backend_model_id)
		VALUES ($1, $2)
		ON CONFLICT (anthropic_model_id) DO UPDATE SET backend_model_id = EXCLUDED.backend_model_id
	`
	_, err := s.db.ExecContext(ctx, query, anthropicID, backendID)
	return err
}
