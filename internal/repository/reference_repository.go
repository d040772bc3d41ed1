package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/gradelab/scriptgrade-backend/internal/apperr"
	"github.com/gradelab/scriptgrade-backend/internal/model"
)

// ReferenceRepository is the durable store for canonical answer sets.
type ReferenceRepository struct {
	pool *pgxpool.Pool
}

// NewReferenceRepository creates a new ReferenceRepository.
func NewReferenceRepository(pool *pgxpool.Pool) *ReferenceRepository {
	return &ReferenceRepository{pool: pool}
}

const referenceColumns = `id, exam_name, subject, status, is_active, page_paths,
	answers, created_at, updated_at`

// Create inserts a new reference key record.
func (r *ReferenceRepository) Create(ctx context.Context, ref *model.ReferenceKey) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO reference_keys (id, exam_name, subject, status, is_active, page_paths)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING created_at, updated_at`,
		ref.ID, ref.ExamName, ref.Subject, ref.Status, ref.IsActive, ref.PagePaths,
	).Scan(&ref.CreatedAt, &ref.UpdatedAt)
}

// Get retrieves a reference key by ID. A missing row is a NotFoundError.
func (r *ReferenceRepository) Get(ctx context.Context, id uuid.UUID) (*model.ReferenceKey, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+referenceColumns+` FROM reference_keys WHERE id = $1`, id)
	ref, err := scanReference(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &apperr.NotFoundError{Kind: "reference", ID: id.String()}
	}
	return ref, err
}

// List returns reference keys newest first, optionally narrowed to one
// exam name.
func (r *ReferenceRepository) List(ctx context.Context, examName string, limit int) ([]model.ReferenceKey, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT ` + referenceColumns + ` FROM reference_keys`
	var args []interface{}
	if examName != "" {
		query += ` WHERE exam_name = $1 ORDER BY created_at DESC LIMIT $2`
		args = []interface{}{examName, limit}
	} else {
		query += ` ORDER BY created_at DESC LIMIT $1`
		args = []interface{}{limit}
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var refs []model.ReferenceKey
	for rows.Next() {
		ref, err := scanReference(rows)
		if err != nil {
			return nil, err
		}
		refs = append(refs, *ref)
	}
	return refs, rows.Err()
}

// SetStatus moves the reference through its processing lifecycle,
// optionally attaching the structured answers.
func (r *ReferenceRepository) SetStatus(ctx context.Context, id uuid.UUID, status model.ReferenceStatus, answers []model.AnswerRecord) (*model.ReferenceKey, error) {
	var (
		row pgx.Row
		err error
	)
	if answers != nil {
		var b []byte
		b, err = json.Marshal(answers)
		if err != nil {
			return nil, fmt.Errorf("marshal answers: %w", err)
		}
		row = r.pool.QueryRow(ctx,
			`UPDATE reference_keys SET status = $1, answers = $2, updated_at = NOW()
			 WHERE id = $3 RETURNING `+referenceColumns, status, b, id)
	} else {
		row = r.pool.QueryRow(ctx,
			`UPDATE reference_keys SET status = $1, updated_at = NOW()
			 WHERE id = $2 RETURNING `+referenceColumns, status, id)
	}

	ref, err := scanReference(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &apperr.NotFoundError{Kind: "reference", ID: id.String()}
	}
	return ref, err
}

// SetActive flips the active flag. Activating a reference deactivates
// every other reference for the same exam name in the same transaction.
func (r *ReferenceRepository) SetActive(ctx context.Context, id uuid.UUID, active bool) (*model.ReferenceKey, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	if active {
		_, err = tx.Exec(ctx,
			`UPDATE reference_keys SET is_active = FALSE, updated_at = NOW()
			 WHERE exam_name = (SELECT exam_name FROM reference_keys WHERE id = $1)
			   AND id <> $1 AND is_active`, id)
		if err != nil {
			return nil, err
		}
	}

	row := tx.QueryRow(ctx,
		`UPDATE reference_keys SET is_active = $1, updated_at = NOW()
		 WHERE id = $2 RETURNING `+referenceColumns, active, id)
	ref, err := scanReference(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &apperr.NotFoundError{Kind: "reference", ID: id.String()}
	}
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return ref, nil
}

// Delete removes a reference key. Returns false when no row matched.
func (r *ReferenceRepository) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM reference_keys WHERE id = $1`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func scanReference(row pgx.Row) (*model.ReferenceKey, error) {
	var (
		ref     model.ReferenceKey
		answers []byte
	)
	err := row.Scan(
		&ref.ID, &ref.ExamName, &ref.Subject, &ref.Status, &ref.IsActive,
		&ref.PagePaths, &answers, &ref.CreatedAt, &ref.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(answers) > 0 {
		if err := json.Unmarshal(answers, &ref.Answers); err != nil {
			return nil, fmt.Errorf("unmarshal answers: %w", err)
		}
	}
	return &ref, nil
}
