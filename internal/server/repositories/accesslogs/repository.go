// Package accesslogs stores the file access audit trail.
package accesslogs

import (
	"context"
	"time"

	"github.com/dmitrijs2005/lmsstorage/internal/server/models"
)

type Repository interface {
	Insert(ctx context.Context, entry *models.AccessLogEntry) error
	// DeleteOlderThan removes entries created before cutoff.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}
