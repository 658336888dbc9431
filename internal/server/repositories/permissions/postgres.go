package permissions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/lmsstorage/internal/common"
	"github.com/dmitrijs2005/lmsstorage/internal/dbx"
	"github.com/dmitrijs2005/lmsstorage/internal/server/models"
)

// fileFKConstraint is the default name Postgres gives file_permissions.file_id REFERENCES files(id).
const fileFKConstraint = "file_permissions_file_id_fkey"

// PostgresRepository implements the ledger over a dbx.DBTX (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) GetLevel(ctx context.Context, fileID, userID string) (models.AccessLevel, error) {
	query := `SELECT access_level FROM file_permissions WHERE file_id=$1 AND user_id=$2`

	var level string
	if err := r.db.QueryRowContext(ctx, query, fileID, userID).Scan(&level); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.AccessNone, nil
		}
		return models.AccessNone, fmt.Errorf("db error: %w", err)
	}

	l, err := models.ParseAccessLevel(level)
	if err != nil {
		return models.AccessNone, fmt.Errorf("stored level %q: %w", level, common.ErrInternal)
	}
	return l, nil
}

func (r *PostgresRepository) CreateOwner(ctx context.Context, fileID, userID string) error {
	query := `
		INSERT INTO file_permissions (file_id, user_id, access_level, granted_by)
		VALUES ($1, $2, 'owner', $2)`

	if _, err := r.db.ExecContext(ctx, query, fileID, userID); err != nil {
		if dbx.IsUniqueViolation(err, "") {
			return fmt.Errorf("owner for file %s: %w", fileID, common.ErrConflict)
		}
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// Upsert relies on the (file_id, user_id) unique key. The WHERE clause on the
// update branch keeps an existing owner row untouched, which shows up as zero
// rows affected.
func (r *PostgresRepository) Upsert(ctx context.Context, p *models.Permission) error {
	query := `
		INSERT INTO file_permissions (file_id, user_id, access_level, granted_by)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (file_id, user_id)
		DO UPDATE SET
			access_level = EXCLUDED.access_level,
			granted_by = EXCLUDED.granted_by
			WHERE file_permissions.access_level <> 'owner'`

	res, err := r.db.ExecContext(ctx, query, p.FileID, p.UserID, string(p.Level), p.GrantedBy)
	if err != nil {
		if dbx.IsForeignKeyViolation(err, fileFKConstraint) {
			return fmt.Errorf("file %s: %w", p.FileID, common.ErrNotFound)
		}
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}

	switch n {
	case 1:
		return nil
	case 0:
		return ErrOwnerImmutable
	default:
		return fmt.Errorf("unexpected rows affected: %d", n)
	}
}

func (r *PostgresRepository) DeleteAllForFile(ctx context.Context, fileID string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM file_permissions WHERE file_id=$1`, fileID)
	if err != nil {
		return 0, fmt.Errorf("failed to revoke permissions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}
