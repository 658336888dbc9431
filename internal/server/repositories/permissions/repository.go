// Package permissions is the permission ledger: the source of truth for which
// user holds which access level on which file.
package permissions

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/lmsstorage/internal/common"
	"github.com/dmitrijs2005/lmsstorage/internal/server/models"
)

// ErrOwnerImmutable is returned by Upsert when the target already owns the file.
var ErrOwnerImmutable = fmt.Errorf("owner permission cannot be replaced: %w", common.ErrInvalidArgument)

type Repository interface {
	// GetLevel returns models.AccessNone when no row exists for (fileID, userID).
	GetLevel(ctx context.Context, fileID, userID string) (models.AccessLevel, error)
	// CreateOwner inserts the single owner row for a freshly created file.
	CreateOwner(ctx context.Context, fileID, userID string) error
	// Upsert creates or replaces the row for (fileID, userID). Owner rows are
	// never replaced.
	Upsert(ctx context.Context, p *models.Permission) error
	// DeleteAllForFile removes every row for fileID and reports how many went.
	DeleteAllForFile(ctx context.Context, fileID string) (int64, error)
}
