package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/signerrelay/internal/dbx"
	"github.com/dmitrijs2005/signerrelay/internal/server/repositories/casts"
	"github.com/dmitrijs2005/signerrelay/internal/server/repositories/signers"
)

// RepositoryManager vends repositories bound to a DBTX and runs work
// transactionally where the backend supports it.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Signers(db dbx.DBTX) signers.Repository
	Casts(db dbx.DBTX) casts.Repository
	InTx(ctx context.Context, db *sql.DB, fn func(ctx context.Context, tx dbx.DBTX) error) error
}
