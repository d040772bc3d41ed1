package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/gradelab/scriptgrade-backend/internal/apperr"
	"github.com/gradelab/scriptgrade-backend/internal/model"
)

// JobRepository is the durable job store. Partial updates are merged
// column-wise and always stamp updated_at.
type JobRepository struct {
	pool *pgxpool.Pool
}

// NewJobRepository creates a new JobRepository.
func NewJobRepository(pool *pgxpool.Pool) *JobRepository {
	return &JobRepository{pool: pool}
}

const jobColumns = `id, student_name, student_id, exam_name, subject, total_marks,
	reference_id, state, progress, page_paths, processed_page_paths,
	extracted_text, extraction_confidence, answers, total_obtained,
	total_possible, percentage, grade, feedback, report_path,
	error_message, execution_log, created_at, updated_at`

// Create inserts a new job record.
func (r *JobRepository) Create(ctx context.Context, j *model.Job) error {
	answers, err := json.Marshal(j.Answers)
	if err != nil {
		return fmt.Errorf("marshal answers: %w", err)
	}
	execLog, err := json.Marshal(orEmptyLog(j.ExecutionLog))
	if err != nil {
		return fmt.Errorf("marshal execution log: %w", err)
	}

	return r.pool.QueryRow(ctx,
		`INSERT INTO jobs (id, student_name, student_id, exam_name, subject, total_marks,
		        reference_id, state, progress, page_paths, answers, execution_log)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		 RETURNING created_at, updated_at`,
		j.ID, j.StudentName, j.StudentID, j.ExamName, j.Subject, j.TotalMarks,
		j.ReferenceID, j.State, j.Progress, j.PagePaths, answers, execLog,
	).Scan(&j.CreatedAt, &j.UpdatedAt)
}

// Get retrieves a job by ID. A missing job is a NotFoundError.
func (r *JobRepository) Get(ctx context.Context, id uuid.UUID) (*model.Job, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id)
	j, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &apperr.NotFoundError{Kind: "job", ID: id.String()}
	}
	return j, err
}

// Update applies a partial update atomically and returns the merged
// record. Nil fields in upd are left untouched; updated_at is always
// stamped.
func (r *JobRepository) Update(ctx context.Context, id uuid.UUID, upd *model.JobUpdate) (*model.Job, error) {
	sets := []string{"updated_at = NOW()"}
	args := []interface{}{}
	idx := 1

	add := func(col string, v interface{}) {
		sets = append(sets, fmt.Sprintf("%s = $%d", col, idx))
		args = append(args, v)
		idx++
	}

	if upd.State != nil {
		add("state", *upd.State)
	}
	if upd.Progress != nil {
		add("progress", *upd.Progress)
	}
	if upd.ProcessedPagePaths != nil {
		add("processed_page_paths", upd.ProcessedPagePaths)
	}
	if upd.ExtractedText != nil {
		add("extracted_text", *upd.ExtractedText)
	}
	if upd.ExtractionConfidence != nil {
		add("extraction_confidence", *upd.ExtractionConfidence)
	}
	if upd.Answers != nil {
		b, err := json.Marshal(upd.Answers)
		if err != nil {
			return nil, fmt.Errorf("marshal answers: %w", err)
		}
		add("answers", b)
	}
	if upd.TotalObtained != nil {
		add("total_obtained", *upd.TotalObtained)
	}
	if upd.TotalPossible != nil {
		add("total_possible", *upd.TotalPossible)
	}
	if upd.Percentage != nil {
		add("percentage", *upd.Percentage)
	}
	if upd.Grade != nil {
		add("grade", *upd.Grade)
	}
	if upd.Feedback != nil {
		b, err := json.Marshal(upd.Feedback)
		if err != nil {
			return nil, fmt.Errorf("marshal feedback: %w", err)
		}
		add("feedback", b)
	}
	if upd.ReportPath != nil {
		add("report_path", *upd.ReportPath)
	}
	if upd.ErrorMessage != nil {
		add("error_message", *upd.ErrorMessage)
	}
	if upd.ExecutionLog != nil {
		b, err := json.Marshal(upd.ExecutionLog)
		if err != nil {
			return nil, fmt.Errorf("marshal execution log: %w", err)
		}
		add("execution_log", b)
	}
	if upd.ReferenceID != nil {
		add("reference_id", *upd.ReferenceID)
	}

	query := fmt.Sprintf(
		`UPDATE jobs SET %s WHERE id = $%d RETURNING %s`,
		strings.Join(sets, ", "), idx, jobColumns)
	args = append(args, id)

	row := r.pool.QueryRow(ctx, query, args...)
	j, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &apperr.NotFoundError{Kind: "job", ID: id.String()}
	}
	return j, err
}

// Delete removes a job. Returns false when no row matched.
func (r *JobRepository) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM jobs WHERE id = $1`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// JobFilter narrows a job listing.
type JobFilter struct {
	State     *model.JobState
	StudentID string
}

// Query lists jobs newest first, optionally filtered, capped at limit.
func (r *JobRepository) Query(ctx context.Context, filter JobFilter, limit int) ([]model.Job, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT ` + jobColumns + ` FROM jobs`
	var conds []string
	var args []interface{}
	idx := 1

	if filter.State != nil {
		conds = append(conds, fmt.Sprintf("state = $%d", idx))
		args = append(args, *filter.State)
		idx++
	}
	if filter.StudentID != "" {
		conds = append(conds, fmt.Sprintf("student_id = $%d", idx))
		args = append(args, filter.StudentID)
		idx++
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", idx)
	args = append(args, limit)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []model.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *j)
	}
	return jobs, rows.Err()
}

// scanJob reads one job row, decoding the JSONB document columns.
func scanJob(row pgx.Row) (*model.Job, error) {
	var (
		j          model.Job
		refID      *uuid.UUID
		answers    []byte
		feedback   []byte
		execLog    []byte
		extText    *string
		grade      *string
		reportPath *string
		errMsg     *string
	)

	err := row.Scan(
		&j.ID, &j.StudentName, &j.StudentID, &j.ExamName, &j.Subject, &j.TotalMarks,
		&refID, &j.State, &j.Progress, &j.PagePaths, &j.ProcessedPagePaths,
		&extText, &j.ExtractionConfidence, &answers, &j.TotalObtained,
		&j.TotalPossible, &j.Percentage, &grade, &feedback, &reportPath,
		&errMsg, &execLog, &j.CreatedAt, &j.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	j.ReferenceID = refID
	j.ExtractedText = deref(extText)
	j.Grade = deref(grade)
	j.ReportPath = deref(reportPath)
	j.ErrorMessage = deref(errMsg)

	if len(answers) > 0 {
		if err := json.Unmarshal(answers, &j.Answers); err != nil {
			return nil, fmt.Errorf("unmarshal answers: %w", err)
		}
	}
	if len(feedback) > 0 {
		if err := json.Unmarshal(feedback, &j.Feedback); err != nil {
			return nil, fmt.Errorf("unmarshal feedback: %w", err)
		}
	}
	if len(execLog) > 0 {
		if err := json.Unmarshal(execLog, &j.ExecutionLog); err != nil {
			return nil, fmt.Errorf("unmarshal execution log: %w", err)
		}
	}

	return &j, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func orEmptyLog(l []model.ExecutionRecord) []model.ExecutionRecord {
	if l == nil {
		return []model.ExecutionRecord{}
	}
	return l
}
