package signers

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

const signerColumns = `id, public_key, state, owner_fid, approval_token, deeplink_url, deadline, created_at, last_checked_at`

// PostgresRepository implements Repository over a dbx.DBTX (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Upsert(ctx context.Context, s *models.Signer) (*models.Signer, error) {
	query := `
		INSERT INTO signers (id, public_key, state, state_rank, owner_fid, approval_token, deeplink_url, deadline, created_at, last_checked_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id)
		DO UPDATE SET
			public_key = COALESCE(EXCLUDED.public_key, signers.public_key),
			state = CASE WHEN signers.state_rank <= EXCLUDED.state_rank THEN EXCLUDED.state ELSE signers.state END,
			state_rank = GREATEST(signers.state_rank, EXCLUDED.state_rank),
			owner_fid = COALESCE(signers.owner_fid, EXCLUDED.owner_fid),
			approval_token = COALESCE(signers.approval_token, EXCLUDED.approval_token),
			deeplink_url = COALESCE(EXCLUDED.deeplink_url, signers.deeplink_url),
			deadline = COALESCE(signers.deadline, EXCLUDED.deadline),
			last_checked_at = EXCLUDED.last_checked_at
		RETURNING ` + signerColumns

	row := r.db.QueryRowContext(ctx, query,
		s.ID,
		nullBytes(s.PublicKey),
		string(s.State),
		s.State.Rank(),
		nullInt64(s.OwnerUserID),
		nullString(s.ApprovalToken),
		nullString(s.DeeplinkURL),
		nullTime(s.Deadline),
		s.CreatedAt,
		s.LastCheckedAt,
	)

	out, err := scanSigner(row)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return out, nil
}

func (r *PostgresRepository) Find(ctx context.Context, id string) (*models.Signer, error) {
	query := `SELECT ` + signerColumns + ` FROM signers WHERE id = $1`
	return r.findOne(ctx, query, id)
}

func (r *PostgresRepository) FindByToken(ctx context.Context, approvalToken string) (*models.Signer, error) {
	query := `SELECT ` + signerColumns + ` FROM signers WHERE approval_token = $1`
	return r.findOne(ctx, query, approvalToken)
}

func (r *PostgresRepository) findOne(ctx context.Context, query string, arg any) (*models.Signer, error) {
	s, err := scanSigner(r.db.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return s, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSigner(row rowScanner) (*models.Signer, error) {
	var (
		s        models.Signer
		state    string
		owner    sql.NullInt64
		token    sql.NullString
		deeplink sql.NullString
		deadline sql.NullTime
	)

	if err := row.Scan(&s.ID, &s.PublicKey, &state, &owner, &token, &deeplink, &deadline, &s.CreatedAt, &s.LastCheckedAt); err != nil {
		return nil, err
	}

	s.State = models.SignerState(state)
	if owner.Valid {
		fid := owner.Int64
		s.OwnerUserID = &fid
	}
	s.ApprovalToken = token.String
	s.DeeplinkURL = deeplink.String
	if deadline.Valid {
		s.Deadline = deadline.Time
	}
	return &s, nil
}

func nullBytes(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return b
}

func nullString(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}
