package pipeline

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/gradelab/scriptgrade-backend/internal/model"
	"github.com/gradelab/scriptgrade-backend/internal/provider"
)

// ReferenceStore resolves canonical answer sets for grading. The
// pipeline only ever reads references.
type ReferenceStore interface {
	Get(ctx context.Context, id uuid.UUID) (*model.ReferenceKey, error)
}

// EventPublisher receives the job after every persisted stage
// transition. Publishing is best effort and must not block the
// pipeline.
type EventPublisher interface {
	Publish(ctx context.Context, job *model.Job)
}

// Providers bundles the capability providers a driver dispatches to.
type Providers struct {
	Preprocessor   provider.Preprocessor
	FastEngine     provider.VisionExtractor
	AccurateEngine provider.VisionExtractor
	Grader         provider.Grader
	Feedback       provider.FeedbackComposer
	Renderer       provider.ReportRenderer
}

// Policy groups the tunable grading constants. Zero values fall back to
// the defaults.
type Policy struct {
	ConfidenceThreshold  float64
	AssumedQuestionCount int
	GradeBands           []GradeBand
}

// DefaultReportFormat is used by the autonomous pipeline run.
const DefaultReportFormat = "xlsx"

// Driver is the top-level orchestration core. It sequences stages,
// enforces the transition table and exposes the two recomputation entry
// points (regrade and manual review). Stages for a single job execute
// strictly sequentially; at most one stage operation per job identifier
// is in flight at any time.
type Driver struct {
	store      JobStore
	refs       ReferenceStore
	providers  Providers
	exec       *Executor
	agg        *Aggregator
	structurer *Structurer
	assessor   *Assessor
	reviewer   *Reviewer
	retry      RetryPolicy
	locks      *jobLocks
	events     EventPublisher
	log        zerolog.Logger
}

// NewDriver wires the orchestration core. events may be nil.
func NewDriver(store JobStore, refs ReferenceStore, providers Providers, policy Policy, events EventPublisher, log zerolog.Logger) *Driver {
	return &Driver{
		store:      store,
		refs:       refs,
		providers:  providers,
		exec:       NewExecutor(store, log),
		agg:        NewAggregator(log),
		structurer: NewStructurer(policy.AssumedQuestionCount, log),
		assessor:   NewAssessor(providers.Grader, policy.GradeBands, log),
		reviewer:   NewReviewer(policy.GradeBands, log),
		retry:      NewRetryPolicy(policy.ConfidenceThreshold),
		locks:      newJobLocks(),
		events:     events,
		log:        log.With().Str("component", "driver").Logger(),
	}
}

// Run executes the full autonomous pipeline for an uploaded job:
// preprocess, extract, structure, grade, feedback, render. A failed
// job is not auto-recoverable; recovery is a fresh job over the same
// source pages.
func (d *Driver) Run(ctx context.Context, jobID uuid.UUID) (*model.Job, error) {
	if err := d.locks.acquire(jobID); err != nil {
		return nil, err
	}
	defer d.locks.release(jobID)

	job, err := d.store.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}

	stages := []struct {
		stage Stage
		fn    func(job *model.Job) StageFunc
	}{
		{StagePreprocess, d.preprocessStage},
		{StageExtract, d.extractStage},
		{StageStructure, d.structureStage},
		{StageGrade, func(j *model.Job) StageFunc { return d.gradeStage(j, j.ReferenceID) }},
		{StageFeedback, d.feedbackStage},
		{StageRender, func(j *model.Job) StageFunc { return d.renderStage(j, DefaultReportFormat) }},
	}

	for _, s := range stages {
		job, err = d.exec.Execute(ctx, job, s.stage, s.fn(job))
		d.publish(ctx, job)
		if err != nil {
			return job, err
		}
	}

	d.log.Info().
		Str("job_id", job.ID.String()).
		Float64("percentage", job.Percentage).
		Str("grade", job.Grade).
		Msg("pipeline completed")

	return job, nil
}

// Regrade re-runs the grading stage over the already-structured records,
// optionally swapping in a different reference key, and fully replaces
// the record set and all aggregates.
func (d *Driver) Regrade(ctx context.Context, jobID uuid.UUID, referenceID *uuid.UUID) (*model.Job, error) {
	if err := d.locks.acquire(jobID); err != nil {
		return nil, err
	}
	defer d.locks.release(jobID)

	job, err := d.store.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if len(job.Answers) == 0 {
		return job, Validationf("job has no structured answers to regrade")
	}

	refID := job.ReferenceID
	if referenceID != nil {
		refID = referenceID
	}

	fn := d.gradeStage(job, refID)
	job, err = d.exec.Execute(ctx, job, StageRegrade, func(ctx context.Context) (string, *model.JobUpdate, error) {
		summary, fields, err := fn(ctx)
		if err == nil && referenceID != nil {
			fields.ReferenceID = referenceID
		}
		return summary, fields, err
	})
	d.publish(ctx, job)
	return job, err
}

// Review applies manual overrides onto the existing record set and
// recomputes the aggregates from the entire updated set.
func (d *Driver) Review(ctx context.Context, jobID uuid.UUID, overrides []model.ReviewOverride, reviewerName string) (*model.Job, error) {
	if err := d.locks.acquire(jobID); err != nil {
		return nil, err
	}
	defer d.locks.release(jobID)

	job, err := d.store.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if len(job.Answers) == 0 {
		return job, Validationf("job has no graded answers to review")
	}

	job, err = d.exec.Execute(ctx, job, StageReview, func(ctx context.Context) (string, *model.JobUpdate, error) {
		result := d.reviewer.Apply(job.Answers, overrides, reviewerName)
		grade := result.Grade
		return fmt.Sprintf("%d overrides applied, %d skipped, score %.2f%%", result.Applied, result.Skipped, result.Totals.Percentage),
			&model.JobUpdate{
				Answers:       result.Answers,
				TotalObtained: &result.Totals.Obtained,
				TotalPossible: &result.Totals.Possible,
				Percentage:    &result.Totals.Percentage,
				Grade:         &grade,
			}, nil
	})
	d.publish(ctx, job)
	return job, err
}

// Render produces a report artifact for a finished or reviewed job.
func (d *Driver) Render(ctx context.Context, jobID uuid.UUID, format string) (*model.Job, error) {
	if err := d.locks.acquire(jobID); err != nil {
		return nil, err
	}
	defer d.locks.release(jobID)

	job, err := d.store.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}

	job, err = d.exec.Execute(ctx, job, StageRender, d.renderStage(job, format))
	d.publish(ctx, job)
	return job, err
}

// ─── Stage bodies ───────────────────────────────────────────────────

func (d *Driver) preprocessStage(job *model.Job) StageFunc {
	return func(ctx context.Context) (string, *model.JobUpdate, error) {
		processed, err := d.agg.PreprocessPages(ctx, d.providers.Preprocessor, job.PagePaths)
		if err != nil {
			return "", nil, err
		}
		return fmt.Sprintf("%d pages preprocessed", len(processed)),
			&model.JobUpdate{ProcessedPagePaths: processed}, nil
	}
}

func (d *Driver) extractStage(job *model.Job) StageFunc {
	return func(ctx context.Context) (string, *model.JobUpdate, error) {
		pages := job.ProcessedPagePaths
		if len(pages) == 0 {
			pages = job.PagePaths
		}

		result, err := d.agg.ExtractPages(ctx, d.providers.FastEngine, pages)
		if err != nil {
			return "", nil, err
		}

		if d.retry.ShouldRetry(result.AvgConfidence, false) {
			d.log.Warn().
				Str("job_id", job.ID.String()).
				Float64("confidence", result.AvgConfidence).
				Msg("low extraction confidence, retrying every page with accurate engine")
			retried, rerr := d.agg.ExtractPages(ctx, d.providers.AccurateEngine, pages)
			if rerr != nil {
				// Keep the fast engine's result; the retry is an upgrade
				// attempt, not a second chance to fail the stage.
				d.log.Error().Err(rerr).
					Str("job_id", job.ID.String()).
					Msg("accurate engine retry failed, keeping first result")
			} else {
				result = retried
			}
		}

		return fmt.Sprintf("confidence %.1f%% (%s)", result.AvgConfidence, result.Engine),
			&model.JobUpdate{
				ExtractedText:        &result.Text,
				ExtractionConfidence: &result.AvgConfidence,
			}, nil
	}
}

func (d *Driver) structureStage(job *model.Job) StageFunc {
	return func(ctx context.Context) (string, *model.JobUpdate, error) {
		if job.ExtractedText == "" {
			return "", nil, Validationf("no extracted text to structure")
		}
		records := d.structurer.Structure(job.ExtractedText, job.TotalMarks)
		return fmt.Sprintf("%d questions structured", len(records)),
			&model.JobUpdate{Answers: records}, nil
	}
}

func (d *Driver) gradeStage(job *model.Job, referenceID *uuid.UUID) StageFunc {
	return func(ctx context.Context) (string, *model.JobUpdate, error) {
		answerKey, err := d.resolveAnswerKey(ctx, referenceID)
		if err != nil {
			return "", nil, err
		}

		result, err := d.assessor.Assess(ctx, job.Answers, answerKey)
		if err != nil {
			return "", nil, err
		}

		grade := result.Grade
		summary := fmt.Sprintf("score %.2f%%, grade %s", result.Totals.Percentage, grade)
		if result.Fallbacks > 0 {
			summary += fmt.Sprintf(" (%d fallback verdicts)", result.Fallbacks)
		}
		return summary, &model.JobUpdate{
			Answers:       result.Answers,
			TotalObtained: &result.Totals.Obtained,
			TotalPossible: &result.Totals.Possible,
			Percentage:    &result.Totals.Percentage,
			Grade:         &grade,
		}, nil
	}
}

func (d *Driver) feedbackStage(job *model.Job) StageFunc {
	return func(ctx context.Context) (string, *model.JobUpdate, error) {
		result, err := d.providers.Feedback.Compose(ctx, provider.FeedbackRequest{
			StudentName: job.StudentName,
			Subject:     job.Subject,
			Answers:     job.Answers,
			Percentage:  job.Percentage,
			Grade:       job.Grade,
		})
		summary := "feedback composed"
		if err != nil {
			// The composer is decorative relative to the score; a failed
			// call degrades to deterministic fallback feedback.
			d.log.Warn().Err(err).
				Str("job_id", job.ID.String()).
				Msg("feedback composition failed, using fallback")
			result = fallbackFeedback(job.Percentage, job.Grade)
			summary = "fallback feedback applied"
		}

		fb := &model.Feedback{
			Overall:         result.Overall,
			Strengths:       result.Strengths,
			Improvements:    result.Improvements,
			Recommendations: result.Recommendations,
			Grade:           job.Grade,
		}
		return summary, &model.JobUpdate{Feedback: fb}, nil
	}
}

func (d *Driver) renderStage(job *model.Job, format string) StageFunc {
	return func(ctx context.Context) (string, *model.JobUpdate, error) {
		if format == "" {
			format = DefaultReportFormat
		}
		path, err := d.providers.Renderer.Render(ctx, job, format)
		if err != nil {
			return "", nil, &CapabilityError{Provider: "renderer", Err: err}
		}
		return fmt.Sprintf("report rendered (%s)", format),
			&model.JobUpdate{ReportPath: &path}, nil
	}
}

// resolveAnswerKey loads the reference's answer map. A nil reference ID
// means AI-only grading without an expected answer.
func (d *Driver) resolveAnswerKey(ctx context.Context, referenceID *uuid.UUID) (map[int]string, error) {
	if referenceID == nil {
		return nil, nil
	}
	ref, err := d.refs.Get(ctx, *referenceID)
	if err != nil {
		return nil, err
	}
	if ref.Status != model.ReferenceStatusProcessed {
		return nil, Validationf("reference %s is not processed yet (status %s)", ref.ID, ref.Status)
	}
	return ref.AnswerMap(), nil
}

// fallbackFeedback is the deterministic narrative used when the
// composer is unavailable.
func fallbackFeedback(percentage float64, grade string) provider.FeedbackResult {
	return provider.FeedbackResult{
		Overall:         fmt.Sprintf("Score: %.2f%%. The assessment completed automatically.", percentage),
		Strengths:       []string{"Completed the assessment"},
		Improvements:    []string{"Review the questions marked incorrect"},
		Recommendations: []string{"Go through the graded answers with your teacher"},
		Grade:           grade,
	}
}

func (d *Driver) publish(ctx context.Context, job *model.Job) {
	if d.events == nil || job == nil {
		return
	}
	d.events.Publish(ctx, job)
}
