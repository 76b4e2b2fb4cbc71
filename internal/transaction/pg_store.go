package transaction

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/FedOAuth/FedOAuth/internal/logger"
)

// PGStore keeps transactions in the shared postgres database with the
// values bag serialized as jsonb.
type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

// Get looks up a transaction. A failed lookup is retried once: the
// transaction lookup is the first query of every request, so it is the
// one that inherits whatever mess a previously failed request left on
// the connection.
func (s *PGStore) Get(ctx context.Context, key string) (*Transaction, error) {
	tr, err := s.get(ctx, key)
	if err != nil && err != sql.ErrNoRows {
		logger.Warn("transaction lookup failed, retrying once", map[string]any{
			"key": key, "error": err.Error(),
		})
		tr, err = s.get(ctx, key)
	}
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("transaction: get: %w", err)
	}
	return tr, nil
}

func (s *PGStore) get(ctx context.Context, key string) (*Transaction, error) {
	tr := Transaction{Key: key}
	var raw []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT startmoment, "values" FROM transactions WHERE key = $1
	`, key).Scan(&tr.StartMoment, &raw)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(raw, &tr.Values); err != nil {
		return nil, err
	}
	return &tr, nil
}

func (s *PGStore) Save(ctx context.Context, tr *Transaction) error {
	raw, err := json.Marshal(tr.Values)
	if err != nil {
		return fmt.Errorf("transaction: marshal: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO transactions (key, startmoment, "values")
		VALUES ($1, $2, $3)
		ON CONFLICT (key)
		DO UPDATE SET "values" = EXCLUDED."values"
	`, tr.Key, tr.StartMoment, raw)
	if err != nil {
		return fmt.Errorf("transaction: save: %w", err)
	}
	return nil
}

func (s *PGStore) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM transactions WHERE key = $1
	`, key)
	if err != nil {
		return fmt.Errorf("transaction: delete: %w", err)
	}
	return nil
}

func (s *PGStore) Cleanup(ctx context.Context, olderThan time.Duration) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM transactions WHERE startmoment < $1
	`, nowFunc().Add(-olderThan))
	if err != nil {
		return 0, fmt.Errorf("transaction: cleanup: %w", err)
	}
	return res.RowsAffected()
}
