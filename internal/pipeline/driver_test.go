package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/gradelab/scriptgrade-backend/internal/model"
	"github.com/gradelab/scriptgrade-backend/internal/provider"
)

// scriptedExtractor returns canned text per page path at a fixed
// confidence, counting calls so retry behavior is observable.
type scriptedExtractor struct {
	name       string
	texts      map[string]string
	confidence float64
	calls      int
}

func (s *scriptedExtractor) Name() string { return s.name }

func (s *scriptedExtractor) Extract(ctx context.Context, pagePath string) (string, float64, map[string]string, error) {
	s.calls++
	return s.texts[pagePath], s.confidence, nil, nil
}

type fakeComposer struct{ fail bool }

func (f *fakeComposer) Compose(ctx context.Context, req provider.FeedbackRequest) (provider.FeedbackResult, error) {
	if f.fail {
		return provider.FeedbackResult{}, errors.New("composer down")
	}
	return provider.FeedbackResult{
		Overall:   "solid attempt",
		Strengths: []string{"clear working"},
		Grade:     req.Grade,
	}, nil
}

type fakeRenderer struct{ fail bool }

func (f *fakeRenderer) Render(ctx context.Context, job *model.Job, format string) (string, error) {
	if f.fail {
		return "", errors.New("disk full")
	}
	return "/reports/report-" + job.ID.String() + "." + format, nil
}

type fakeRefStore struct {
	refs map[uuid.UUID]*model.ReferenceKey
}

func (f *fakeRefStore) Get(ctx context.Context, id uuid.UUID) (*model.ReferenceKey, error) {
	ref, ok := f.refs[id]
	if !ok {
		return nil, &NotFoundError{Kind: "reference", ID: id.String()}
	}
	return ref, nil
}

type captureEvents struct {
	mu   sync.Mutex
	jobs []*model.Job
}

func (c *captureEvents) Publish(ctx context.Context, job *model.Job) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.jobs = append(c.jobs, job)
}

func (c *captureEvents) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.jobs)
}

func runProviders(extractor *scriptedExtractor, grader provider.Grader) Providers {
	return Providers{
		Preprocessor:   &fakePreprocessor{},
		FastEngine:     extractor,
		AccurateEngine: extractor,
		Grader:         grader,
		Feedback:       &fakeComposer{},
		Renderer:       &fakeRenderer{},
	}
}

func TestRunCompletesPipeline(t *testing.T) {
	job := &model.Job{
		ID:          uuid.New(),
		StudentName: "amira",
		Subject:     "biology",
		State:       model.JobStateUploaded,
		Progress:    10,
		TotalMarks:  20,
		PagePaths:   []string{"p1.png", "p2.png"},
	}
	store := newMemStore(job)
	extractor := &scriptedExtractor{
		name:       "fast",
		confidence: 90,
		texts: map[string]string{
			"p1.png.processed": "Q1. Mitochondria produce energy.",
			"p2.png.processed": "Q2. Osmosis moves water.",
		},
	}
	grader := &fakeGrader{results: map[int]provider.GradeResult{
		1: {Marks: 8, IsCorrect: true, Explanation: "good"},
		2: {Marks: 6, IsCorrect: true, Explanation: "ok"},
	}}
	events := &captureEvents{}
	driver := NewDriver(store, &fakeRefStore{}, runProviders(extractor, grader), Policy{}, events, zerolog.Nop())

	got, err := driver.Run(context.Background(), job.ID)
	require.NoError(t, err)

	assert.Equal(t, model.JobStateCompleted, got.State)
	assert.Equal(t, 100, got.Progress)
	assert.Equal(t, 90.0, got.ExtractionConfidence)
	assert.Equal(t, 70.0, got.Percentage)
	assert.Equal(t, "C", got.Grade)
	assert.NotEmpty(t, got.ReportPath)
	require.NotNil(t, got.Feedback)
	assert.Equal(t, "solid attempt", got.Feedback.Overall)

	require.Len(t, got.ExecutionLog, 6)
	wantStages := []string{"preprocess", "extract", "structure", "grade", "feedback", "render"}
	for i, rec := range got.ExecutionLog {
		assert.Equal(t, wantStages[i], rec.Stage)
		assert.Equal(t, model.ExecutionSuccess, rec.Status)
	}

	assert.Equal(t, 6, events.count(), "one event per persisted stage")
}

func TestRunRetriesWithAccurateEngine(t *testing.T) {
	job := &model.Job{
		ID:         uuid.New(),
		State:      model.JobStateUploaded,
		Progress:   10,
		TotalMarks: 10,
		PagePaths:  []string{"p1.png"},
	}
	store := newMemStore(job)
	fast := &scriptedExtractor{
		name:       "fast",
		confidence: 50,
		texts:      map[string]string{"p1.png.processed": "Q1. smudged"},
	}
	accurate := &scriptedExtractor{
		name:       "accurate",
		confidence: 95,
		texts:      map[string]string{"p1.png.processed": "Q1. a clean transcription"},
	}
	providers := runProviders(fast, &fakeGrader{results: map[int]provider.GradeResult{}})
	providers.AccurateEngine = accurate
	driver := NewDriver(store, &fakeRefStore{}, providers, Policy{ConfidenceThreshold: 80}, nil, zerolog.Nop())

	got, err := driver.Run(context.Background(), job.ID)
	require.NoError(t, err)

	assert.Equal(t, 1, fast.calls)
	assert.Equal(t, 1, accurate.calls)
	assert.Equal(t, 95.0, got.ExtractionConfidence)
	require.NotEmpty(t, got.Answers)
	assert.Contains(t, got.Answers[0].AnswerText, "clean transcription")
}

// gatedPreprocessor blocks inside the first stage until released, so a
// second Run can be attempted while the first is in flight.
type gatedPreprocessor struct {
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func (g *gatedPreprocessor) Preprocess(ctx context.Context, pagePath string) (string, error) {
	g.once.Do(func() { close(g.started) })
	<-g.release
	return pagePath + ".processed", nil
}

func TestRunIsSingleFlightPerJob(t *testing.T) {
	job := &model.Job{
		ID:         uuid.New(),
		State:      model.JobStateUploaded,
		Progress:   10,
		TotalMarks: 10,
		PagePaths:  []string{"p1.png"},
	}
	store := newMemStore(job)
	gate := &gatedPreprocessor{started: make(chan struct{}), release: make(chan struct{})}
	extractor := &scriptedExtractor{
		name:       "fast",
		confidence: 90,
		texts:      map[string]string{"p1.png.processed": "Q1. answer"},
	}
	providers := runProviders(extractor, &fakeGrader{results: map[int]provider.GradeResult{}})
	providers.Preprocessor = gate
	driver := NewDriver(store, &fakeRefStore{}, providers, Policy{}, nil, zerolog.Nop())

	done := make(chan error, 1)
	go func() {
		_, err := driver.Run(context.Background(), job.ID)
		done <- err
	}()

	<-gate.started
	_, err := driver.Run(context.Background(), job.ID)
	assert.ErrorIs(t, err, ErrJobBusy)

	close(gate.release)
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("first run never finished")
	}
}

func TestRunStopsOnStageFailure(t *testing.T) {
	job := &model.Job{
		ID:         uuid.New(),
		State:      model.JobStateUploaded,
		Progress:   10,
		TotalMarks: 10,
		PagePaths:  []string{"p1.png"},
	}
	store := newMemStore(job)
	extractor := &scriptedExtractor{
		name:       "fast",
		confidence: 90,
		texts:      map[string]string{"p1.png.processed": "Q1. answer"},
	}
	providers := runProviders(extractor, &fakeGrader{results: map[int]provider.GradeResult{}})
	providers.Renderer = &fakeRenderer{fail: true}
	driver := NewDriver(store, &fakeRefStore{}, providers, Policy{}, nil, zerolog.Nop())

	got, err := driver.Run(context.Background(), job.ID)
	require.Error(t, err)

	assert.Equal(t, model.JobStateFailed, got.State)
	assert.Contains(t, got.ErrorMessage, "disk full")

	require.Len(t, got.ExecutionLog, 6)
	assert.Equal(t, model.ExecutionFailed, got.ExecutionLog[5].Status)
	for _, rec := range got.ExecutionLog[:5] {
		assert.Equal(t, model.ExecutionSuccess, rec.Status)
	}
}

func TestRegradeRequiresStructuredAnswers(t *testing.T) {
	job := &model.Job{
		ID:       uuid.New(),
		State:    model.JobStateCompleted,
		Progress: 100,
	}
	store := newMemStore(job)
	driver := NewDriver(store, &fakeRefStore{}, Providers{}, Policy{}, nil, zerolog.Nop())

	_, err := driver.Regrade(context.Background(), job.ID, nil)

	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
}

func TestRegradeSwapsReferenceKey(t *testing.T) {
	refID := uuid.New()
	job := &model.Job{
		ID:       uuid.New(),
		State:    model.JobStateCompleted,
		Progress: 100,
		Answers: []model.AnswerRecord{
			{QuestionNumber: 1, QuestionText: "q1", AnswerText: "four", MaxMarks: 10},
			{QuestionNumber: 2, QuestionText: "q2", AnswerText: "nine", MaxMarks: 10},
		},
	}
	store := newMemStore(job)
	refs := &fakeRefStore{refs: map[uuid.UUID]*model.ReferenceKey{
		refID: {
			ID:     refID,
			Status: model.ReferenceStatusProcessed,
			Answers: []model.AnswerRecord{
				{QuestionNumber: 1, AnswerText: "four"},
			},
		},
	}}
	grader := &fakeGrader{results: map[int]provider.GradeResult{
		1: {Marks: 10, IsCorrect: true},
		2: {Marks: 10, IsCorrect: true},
	}}
	driver := NewDriver(store, refs, Providers{Grader: grader}, Policy{}, nil, zerolog.Nop())

	got, err := driver.Regrade(context.Background(), job.ID, &refID)
	require.NoError(t, err)

	assert.Equal(t, model.JobStateGraded, got.State)
	assert.Equal(t, 100, got.Progress, "progress never drops on a recompute")
	assert.Equal(t, 100.0, got.Percentage)
	assert.Equal(t, "A", got.Grade)
	require.NotNil(t, got.ReferenceID)
	assert.Equal(t, refID, *got.ReferenceID)

	require.Len(t, grader.requests, 2)
	assert.Equal(t, "four", grader.requests[0].ExpectedAnswer)
	assert.Empty(t, grader.requests[1].ExpectedAnswer)
}

func TestRegradeRejectsUnprocessedReference(t *testing.T) {
	refID := uuid.New()
	job := &model.Job{
		ID:       uuid.New(),
		State:    model.JobStateGraded,
		Progress: 75,
		Answers:  structuredAnswers(),
	}
	store := newMemStore(job)
	refs := &fakeRefStore{refs: map[uuid.UUID]*model.ReferenceKey{
		refID: {ID: refID, Status: model.ReferenceStatusProcessing},
	}}
	driver := NewDriver(store, refs, Providers{Grader: &fakeGrader{}}, Policy{}, nil, zerolog.Nop())

	_, err := driver.Regrade(context.Background(), job.ID, &refID)

	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
}

func TestReviewRecomputesAggregates(t *testing.T) {
	job := &model.Job{
		ID:       uuid.New(),
		State:    model.JobStateFeedbackReady,
		Progress: 90,
		Answers: []model.AnswerRecord{
			{QuestionNumber: 1, MaxMarks: 10, MarksObtained: 5},
			{QuestionNumber: 2, MaxMarks: 10, MarksObtained: 5},
		},
	}
	store := newMemStore(job)
	driver := NewDriver(store, &fakeRefStore{}, Providers{}, Policy{}, nil, zerolog.Nop())

	got, err := driver.Review(context.Background(), job.ID, []model.ReviewOverride{
		{QuestionNumber: 1, MarksObtained: ptr(10.0)},
	}, "mr. okafor")
	require.NoError(t, err)

	assert.Equal(t, model.JobStateReviewed, got.State)
	assert.Equal(t, 75.0, got.Percentage)
	assert.Equal(t, "C", got.Grade)
	require.NotNil(t, got.Answers[0].ReviewedBy)
	assert.Equal(t, "mr. okafor", *got.Answers[0].ReviewedBy)
}

func TestReviewRequiresGradedAnswers(t *testing.T) {
	job := &model.Job{
		ID:       uuid.New(),
		State:    model.JobStateFeedbackReady,
		Progress: 90,
	}
	store := newMemStore(job)
	driver := NewDriver(store, &fakeRefStore{}, Providers{}, Policy{}, nil, zerolog.Nop())

	_, err := driver.Review(context.Background(), job.ID, nil, "reviewer")

	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
}

func TestRenderRejectsUnfinishedJob(t *testing.T) {
	job := newUploadedJob()
	store := newMemStore(job)
	driver := NewDriver(store, &fakeRefStore{}, Providers{Renderer: &fakeRenderer{}}, Policy{}, nil, zerolog.Nop())

	_, err := driver.Render(context.Background(), job.ID, "xlsx")

	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Zero(t, store.updates)
}

func TestRenderProducesArtifactForReviewedJob(t *testing.T) {
	job := &model.Job{
		ID:       uuid.New(),
		State:    model.JobStateReviewed,
		Progress: 92,
		Answers:  gradedAnswers(),
	}
	store := newMemStore(job)
	driver := NewDriver(store, &fakeRefStore{}, Providers{Renderer: &fakeRenderer{}}, Policy{}, nil, zerolog.Nop())

	got, err := driver.Render(context.Background(), job.ID, "json")
	require.NoError(t, err)

	assert.Equal(t, model.JobStateCompleted, got.State)
	assert.Contains(t, got.ReportPath, ".json")
}
