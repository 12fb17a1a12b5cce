package migrations

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"solana-leader-lab/internal/storage/postgres"
)

// RunPostgresMigrations applies the alert history schema. Every file uses
// IF NOT EXISTS, so it is safe to call on each start.
func RunPostgresMigrations(ctx context.Context, pool *postgres.Pool, log logrus.FieldLogger) error {
	if log == nil {
		log = logrus.StandardLogger()
	}

	files, err := load(PostgresFS, "postgres")
	if err != nil {
		return err
	}

	applied := 0
	for _, m := range files {
		if m.empty() {
			continue
		}
		// pgx simple protocol accepts the whole file in one Exec.
		if _, err := pool.Exec(ctx, m.sql); err != nil {
			return fmt.Errorf("apply migration %s: %w", m.name, err)
		}
		applied++
	}
	log.WithField("files", applied).Info("postgres schema up to date")
	return nil
}
