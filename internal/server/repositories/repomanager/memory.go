package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/signerrelay/internal/dbx"
	"github.com/dmitrijs2005/signerrelay/internal/server/repositories/casts"
	"github.com/dmitrijs2005/signerrelay/internal/server/repositories/signers"
)

// MemoryRepositoryManager hands out process-local repositories and ignores
// the DBTX argument. InTx has no rollback: each repository call is atomic
// on its own.
type MemoryRepositoryManager struct {
	signers *signers.MemoryRepository
	casts   *casts.MemoryRepository
}

func NewMemoryRepositoryManager() *MemoryRepositoryManager {
	return &MemoryRepositoryManager{
		signers: signers.NewMemoryRepository(),
		casts:   casts.NewMemoryRepository(),
	}
}

func (m *MemoryRepositoryManager) RunMigrations(context.Context, *sql.DB) error {
	return nil
}

func (m *MemoryRepositoryManager) Signers(dbx.DBTX) signers.Repository {
	return m.signers
}

func (m *MemoryRepositoryManager) Casts(dbx.DBTX) casts.Repository {
	return m.casts
}

func (m *MemoryRepositoryManager) InTx(ctx context.Context, _ *sql.DB, fn func(ctx context.Context, tx dbx.DBTX) error) error {
	return fn(ctx, nil)
}
