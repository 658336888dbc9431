// Package files is the file catalog: one metadata row per stored blob.
// It performs no authorization; callers check the permission ledger first.
package files

import (
	"context"

	"github.com/dmitrijs2005/lmsstorage/internal/server/models"
)

type Repository interface {
	// Create inserts a catalog row and fills in ID and timestamps.
	// A storage path collision yields common.ErrConflict.
	Create(ctx context.Context, file *models.File) (*models.File, error)
	// GetByID returns common.ErrNotFound when no row exists.
	GetByID(ctx context.Context, id string) (*models.File, error)
	// Delete returns common.ErrNotFound when no row was removed.
	Delete(ctx context.Context, id string) error
	// ListForUser returns files joined with userID's own permission row,
	// newest first.
	ListForUser(ctx context.Context, userID string, limit, offset int) ([]*models.FileSummary, error)
	// CountForUser counts the files userID holds any permission on.
	CountForUser(ctx context.Context, userID string) (int64, error)
}
