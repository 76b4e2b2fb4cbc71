package remembered

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/FedOAuth/FedOAuth/internal/logger"
)

// PGStore keeps remembered records in the shared postgres database.
type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Remember(ctx context.Context, typ string, ttl time.Duration, data string, keys ...string) error {
	expiry := nowFunc().Add(ttl)
	return s.store(ctx, typ, &expiry, data, keys)
}

func (s *PGStore) RememberForever(ctx context.Context, typ string, data string, keys ...string) error {
	return s.store(ctx, typ, nil, data, keys)
}

func (s *PGStore) store(ctx context.Context, typ string, expiry *time.Time, data string, keys []string) error {
	key := compositeKey(keys)
	logger.Debug("remembering", map[string]any{
		"type": typ, "key": key, "expiry": expiry,
	})

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO remembered (type, key, expiry, data)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (type, key)
		DO UPDATE SET expiry = EXCLUDED.expiry, data = EXCLUDED.data
	`, typ, key, expiry, data)
	if err != nil {
		return fmt.Errorf("remembered: store: %w", err)
	}
	return nil
}

func (s *PGStore) Get(ctx context.Context, typ string, keys ...string) (*Record, error) {
	key := compositeKey(keys)

	rec := Record{Type: typ, Key: key}
	var data sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT expiry, data FROM remembered
		WHERE type = $1 AND key = $2
	`, typ, key).Scan(&rec.Expiry, &data)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("remembered: get: %w", err)
	}
	rec.Data = data.String

	if rec.Expired() {
		_, err = s.db.ExecContext(ctx, `
			DELETE FROM remembered WHERE type = $1 AND key = $2
		`, typ, key)
		if err != nil {
			logger.Error("failed to delete expired record", map[string]any{
				"type": typ, "key": key, "error": err.Error(),
			})
		}
		return nil, ErrNotFound
	}
	return &rec, nil
}

func (s *PGStore) Cleanup(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM remembered WHERE expiry IS NOT NULL AND expiry < $1
	`, nowFunc())
	if err != nil {
		return 0, fmt.Errorf("remembered: cleanup: %w", err)
	}
	return res.RowsAffected()
}
