package casts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/signerrelay/internal/common"
	"github.com/dmitrijs2005/signerrelay/internal/dbx"
	"github.com/dmitrijs2005/signerrelay/internal/server/models"
)

// PostgresRepository implements Repository over a dbx.DBTX (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, c *models.Cast) error {
	query := `
		INSERT INTO casts (id, signer_id, author_fid, text, status, content_id, error, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := r.db.ExecContext(ctx, query,
		c.ID, c.SignerID, c.AuthorUserID, c.Text, string(c.Status), c.ContentID, c.Error, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) UpdateStatus(ctx context.Context, id string, status models.CastStatus, contentID, errMsg string, at time.Time) error {
	query := `
		UPDATE casts SET status = $2, content_id = $3, error = $4, updated_at = $5
		WHERE id = $1
	`
	res, err := r.db.ExecContext(ctx, query, id, string(status), contentID, errMsg, at)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

func (r *PostgresRepository) Find(ctx context.Context, id string) (*models.Cast, error) {
	query := `
		SELECT id, signer_id, author_fid, text, status, content_id, error, created_at, updated_at
		FROM casts WHERE id = $1
	`
	var (
		c      models.Cast
		status string
	)
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&c.ID, &c.SignerID, &c.AuthorUserID, &c.Text, &status, &c.ContentID, &c.Error, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	c.Status = models.CastStatus(status)
	return &c, nil
}
