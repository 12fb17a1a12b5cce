package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"solana-leader-lab/internal/domain"
	"solana-leader-lab/internal/storage"
)

// AlertStore implements storage.AlertStore using PostgreSQL. Evidence is
// stored as JSONB so strategies can add fields without a migration.
type AlertStore struct {
	pool *Pool
}

// NewAlertStore creates a new AlertStore.
func NewAlertStore(pool *Pool) *AlertStore {
	return &AlertStore{pool: pool}
}

// Compile-time interface check.
var _ storage.AlertStore = (*AlertStore)(nil)

const alertColumns = `alert_id, strategy, wallet, votes, total_votes, confidence, evidence, created_at`

// Insert adds an alert. Returns ErrDuplicateKey if alert_id exists.
func (s *AlertStore) Insert(ctx context.Context, a *domain.Alert) error {
	if a == nil || a.ID == "" || a.Wallet == "" {
		return storage.ErrInvalidInput
	}

	evidence, err := json.Marshal(a.Evidence)
	if err != nil {
		return fmt.Errorf("marshal evidence: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO alerts (`+alertColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, a.ID, a.Strategy, a.Wallet, a.Votes, a.TotalVotes, a.Confidence, evidence, a.Timestamp.UTC())
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert alert: %w", err)
	}
	return nil
}

// GetByID returns ErrNotFound if the alert does not exist.
func (s *AlertStore) GetByID(ctx context.Context, id string) (*domain.Alert, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+alertColumns+`
		FROM alerts
		WHERE alert_id = $1
	`, id)
	if err != nil {
		return nil, fmt.Errorf("query alert by id: %w", err)
	}

	alerts, err := scanAlerts(rows)
	if err != nil {
		return nil, err
	}
	if len(alerts) == 0 {
		return nil, storage.ErrNotFound
	}
	return alerts[0], nil
}

// ListByTimeRange returns alerts created in [start, end), oldest first.
func (s *AlertStore) ListByTimeRange(ctx context.Context, start, end time.Time) ([]*domain.Alert, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+alertColumns+`
		FROM alerts
		WHERE created_at >= $1 AND created_at < $2
		ORDER BY created_at ASC, alert_id ASC
	`, start.UTC(), end.UTC())
	if err != nil {
		return nil, fmt.Errorf("query alerts by time range: %w", err)
	}
	return scanAlerts(rows)
}

// ListByWallet returns every alert naming wallet, oldest first.
func (s *AlertStore) ListByWallet(ctx context.Context, wallet string) ([]*domain.Alert, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+alertColumns+`
		FROM alerts
		WHERE wallet = $1
		ORDER BY created_at ASC, alert_id ASC
	`, wallet)
	if err != nil {
		return nil, fmt.Errorf("query alerts by wallet: %w", err)
	}
	return scanAlerts(rows)
}

// scanAlerts drains and closes rows.
func scanAlerts(rows pgx.Rows) ([]*domain.Alert, error) {
	defer rows.Close()

	var alerts []*domain.Alert
	for rows.Next() {
		var a domain.Alert
		var evidence []byte
		err := rows.Scan(
			&a.ID, &a.Strategy, &a.Wallet, &a.Votes, &a.TotalVotes,
			&a.Confidence, &evidence, &a.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("scan alert row: %w", err)
		}
		if len(evidence) > 0 {
			if err := json.Unmarshal(evidence, &a.Evidence); err != nil {
				return nil, fmt.Errorf("unmarshal evidence for %s: %w", a.ID, err)
			}
		}
		a.Timestamp = a.Timestamp.UTC()
		alerts = append(alerts, &a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate alert rows: %w", err)
	}
	return alerts, nil
}
