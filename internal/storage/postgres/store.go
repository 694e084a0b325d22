// Package postgres provides the Postgres-backed Key Repository Contract implementation.
package postgres

import (
	"encoding/base64"
	"fmt"
	"log"

	"anthrogate/internal/config"
	"anthrogate/internal/crypto"
)

// Store is the Postgres-backed implementation of store.Store, narrowed from the teacher's
// multi-tenant Store (users/roles/groups/provider configs/tools/dashboards) down to the three
// tables this spec's Key Repository Contract names: keys, usage, model mappings.
type Store struct {
	config *config.DatabaseConfig
	db     *DB
	enc    *crypto.EncryptionService // nil if no metadata_encryption_key was configured
}

// NewStore creates a new PostgreSQL-backed Store, running migrations if needed. If encKey is
// non-empty it is decoded as a base64 AES key and used to encrypt APIKey.Metadata at rest.
func NewStore(cfg *config.DatabaseConfig, encKey string) (*Store, error) {
	db, err := InitDB(cfg)
	if err != nil {
		return nil, err
	}

	store := &Store{config: cfg, db: db}
	if encKey != "" {
		keyBytes, err := base64.StdEncoding.DecodeString(encKey)
		if err != nil {
			return nil, fmt.Errorf("decoding metadata encryption key: %w", err)
		}
		enc, err := crypto.NewEncryptionService(keyBytes)
		if err != nil {
			return nil, fmt.Errorf("initializing metadata encryption: %w", err)
		}
		store.enc = enc
	}

	log.Println("anthrogate: postgres store initialized")
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// DB returns the database connection for direct access.
func (s *Store) DB() *DB {
	return s.db
}
