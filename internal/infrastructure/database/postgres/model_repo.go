package postgres

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/turtacn/lupa/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/lupa/internal/intelligence/model"
	"github.com/turtacn/lupa/pkg/errors"
)

// ModelRecord is one stored version of a named model. Model is nil in
// listings.
type ModelRecord struct {
	ID        int64        `json:"id"`
	Name      string       `json:"name"`
	Version   int          `json:"version"`
	Locale    string       `json:"locale"`
	Digest    string       `json:"digest"`
	Comment   string       `json:"comment,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
	Model     *model.Model `json:"model,omitempty"`
}

// ModelRepository persists model documents with monotonically increasing
// versions per name.
type ModelRepository interface {
	// Save stores m as the next version of name.
	Save(ctx context.Context, name string, m *model.Model, comment string) (*ModelRecord, error)
	Latest(ctx context.Context, name string) (*ModelRecord, error)
	Get(ctx context.Context, name string, version int) (*ModelRecord, error)
	// ListVersions returns every version of name, newest first, without
	// documents.
	ListVersions(ctx context.Context, name string) ([]*ModelRecord, error)
}

type modelRepo struct {
	pool   *pgxpool.Pool
	logger logging.Logger
}

func NewModelRepository(pool *pgxpool.Pool, log logging.Logger) ModelRepository {
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &modelRepo{pool: pool, logger: log.Named("model_repo")}
}

const (
	selectModel = `
		SELECT id, name, version, locale, digest, comment, created_at, document
		FROM models`
	selectModelMeta = `
		SELECT id, name, version, locale, digest, comment, created_at
		FROM models`
)

func digest(doc []byte) string {
	sum := sha256.Sum256(doc)
	return hex.EncodeToString(sum[:])
}

func (r *modelRepo) Save(ctx context.Context, name string, m *model.Model, comment string) (*ModelRecord, error) {
	if name == "" {
		return nil, errors.New(errors.ErrCodeBadRequest, "model name is empty")
	}
	if m == nil {
		return nil, errors.New(errors.ErrCodeModelInvalid, "model is nil")
	}
	doc, err := m.Marshal(model.FormatJSON)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "encode model")
	}
	locale := m.Locale
	if locale == "" {
		locale = model.DefaultLocale
	}

	rec := &ModelRecord{Name: name, Locale: locale, Digest: digest(doc), Comment: comment, Model: m}
	err = WithTransaction(ctx, r.pool, func(tx pgx.Tx, ctx context.Context) error {
		// Serializes concurrent saves of the same name.
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, name); err != nil {
			return err
		}
		if err := tx.QueryRow(ctx, `SELECT COALESCE(MAX(version), 0) + 1 FROM models WHERE name = $1`, name).Scan(&rec.Version); err != nil {
			return err
		}
		return tx.QueryRow(ctx, `
			INSERT INTO models (name, version, locale, digest, document, comment)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING id, created_at`,
			rec.Name, rec.Version, rec.Locale, rec.Digest, doc, rec.Comment,
		).Scan(&rec.ID, &rec.CreatedAt)
	})
	if err != nil {
		if _, ok := err.(*errors.AppError); ok {
			return nil, err
		}
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "save model").WithDetail(name)
	}

	r.logger.Info("model saved", logging.String("name", name), logging.Int("version", rec.Version), logging.String("digest", rec.Digest[:12]))
	return rec, nil
}

func (r *modelRepo) Latest(ctx context.Context, name string) (*ModelRecord, error) {
	row := r.pool.QueryRow(ctx, selectModel+` WHERE name = $1 ORDER BY version DESC LIMIT 1`, name)
	return r.scanOne(row, name)
}

func (r *modelRepo) Get(ctx context.Context, name string, version int) (*ModelRecord, error) {
	row := r.pool.QueryRow(ctx, selectModel+` WHERE name = $1 AND version = $2`, name, version)
	return r.scanOne(row, fmt.Sprintf("%s@%d", name, version))
}

func (r *modelRepo) scanOne(row pgx.Row, what string) (*ModelRecord, error) {
	rec := &ModelRecord{}
	var doc []byte
	err := row.Scan(&rec.ID, &rec.Name, &rec.Version, &rec.Locale, &rec.Digest, &rec.Comment, &rec.CreatedAt, &doc)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return nil, errors.New(errors.ErrCodeModelNotFound, "model not found").WithDetail(what)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "load model").WithDetail(what)
	}
	m, err := model.Parse(doc, model.FormatJSON)
	if err != nil {
		return nil, err
	}
	rec.Model = m
	return rec, nil
}

func (r *modelRepo) ListVersions(ctx context.Context, name string) ([]*ModelRecord, error) {
	rows, err := r.pool.Query(ctx, selectModelMeta+` WHERE name = $1 ORDER BY version DESC`, name)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "list model versions").WithDetail(name)
	}
	defer rows.Close()

	var out []*ModelRecord
	for rows.Next() {
		rec := &ModelRecord{}
		if err := rows.Scan(&rec.ID, &rec.Name, &rec.Version, &rec.Locale, &rec.Digest, &rec.Comment, &rec.CreatedAt); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "scan model version")
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "list model versions").WithDetail(name)
	}
	return out, nil
}
