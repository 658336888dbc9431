package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/lmsstorage/internal/dbx"
	"github.com/dmitrijs2005/lmsstorage/internal/server/repositories/accesslogs"
	"github.com/dmitrijs2005/lmsstorage/internal/server/repositories/files"
	"github.com/dmitrijs2005/lmsstorage/internal/server/repositories/permissions"
)

// RepositoryManager vends repositories bound to a DBTX so the same code runs
// against the pool or inside a transaction.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Files(db dbx.DBTX) files.Repository
	Permissions(db dbx.DBTX) permissions.Repository
	AccessLogs(db dbx.DBTX) accesslogs.Repository
}
