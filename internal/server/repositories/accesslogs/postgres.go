package accesslogs

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/lmsstorage/internal/dbx"
	"github.com/dmitrijs2005/lmsstorage/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Insert writes one entry. Empty IP address and user agent are stored as NULL.
func (r *PostgresRepository) Insert(ctx context.Context, entry *models.AccessLogEntry) error {
	query := `
		INSERT INTO file_access_logs (file_id, user_id, action, ip_address, user_agent)
		VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''))
		RETURNING id, created_at`

	err := r.db.QueryRowContext(ctx, query,
		entry.FileID, entry.UserID, string(entry.Action), entry.IPAddress, entry.UserAgent).
		Scan(&entry.ID, &entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM file_access_logs WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to purge access logs: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}
