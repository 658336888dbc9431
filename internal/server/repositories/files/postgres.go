package files

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/lmsstorage/internal/common"
	"github.com/dmitrijs2005/lmsstorage/internal/dbx"
	"github.com/dmitrijs2005/lmsstorage/internal/server/models"
)

const filepathConstraint = "files_filepath_key"

// PostgresRepository implements the catalog over a dbx.DBTX (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, file *models.File) (*models.File, error) {
	query := `
		INSERT INTO files (user_id, filename, filepath, file_size, content_type, bucket_name)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at`

	err := r.db.QueryRowContext(ctx, query,
		file.UserID, file.Filename, file.StoragePath, file.Size, file.ContentType, file.Bucket).
		Scan(&file.ID, &file.CreatedAt, &file.UpdatedAt)
	if err != nil {
		if dbx.IsUniqueViolation(err, filepathConstraint) {
			return nil, fmt.Errorf("storage path %q: %w", file.StoragePath, common.ErrConflict)
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return file, nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.File, error) {
	query := `
		SELECT id, user_id, filename, filepath, file_size, content_type, bucket_name, created_at, updated_at
		FROM files WHERE id=$1`

	f := &models.File{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&f.ID, &f.UserID, &f.Filename, &f.StoragePath, &f.Size, &f.ContentType, &f.Bucket, &f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("failed to select file: %w", err)
	}
	return f, nil
}

func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM files WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return common.ErrNotFound
	}
	return nil
}

func (r *PostgresRepository) ListForUser(ctx context.Context, userID string, limit, offset int) ([]*models.FileSummary, error) {
	query := `
		SELECT f.id, f.filename, f.file_size, f.content_type, f.bucket_name, f.created_at, p.access_level
		FROM files f
		INNER JOIN file_permissions p ON p.file_id = f.id
		WHERE p.user_id=$1
		ORDER BY f.created_at DESC, f.id DESC
		LIMIT $2 OFFSET $3`

	rows, err := r.db.QueryContext(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to select files: %w", err)
	}
	defer rows.Close()

	result := make([]*models.FileSummary, 0)
	for rows.Next() {
		var item models.FileSummary
		var level string
		if err := rows.Scan(&item.ID, &item.Filename, &item.Size, &item.ContentType, &item.Bucket, &item.CreatedAt, &level); err != nil {
			return nil, err
		}
		item.AccessLevel = models.AccessLevel(level)
		result = append(result, &item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PostgresRepository) CountForUser(ctx context.Context, userID string) (int64, error) {
	query := `
		SELECT COUNT(*) FROM files f
		INNER JOIN file_permissions p ON p.file_id = f.id
		WHERE p.user_id=$1`

	var n int64
	if err := r.db.QueryRowContext(ctx, query, userID).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count files: %w", err)
	}
	return n, nil
}
