package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/gradelab/scriptgrade-backend/internal/model"
)

// memStore is an in-memory JobStore with the same merge semantics as the
// SQL repository: nil fields untouched, everything else replaced.
type memStore struct {
	mu      sync.Mutex
	jobs    map[uuid.UUID]*model.Job
	updates int
}

func newMemStore(jobs ...*model.Job) *memStore {
	s := &memStore{jobs: make(map[uuid.UUID]*model.Job)}
	for _, j := range jobs {
		s.jobs[j.ID] = j
	}
	return s
}

func (s *memStore) Get(ctx context.Context, id uuid.UUID) (*model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return nil, &NotFoundError{Kind: "job", ID: id.String()}
	}
	cp := *j
	return &cp, nil
}

func (s *memStore) Update(ctx context.Context, id uuid.UUID, upd *model.JobUpdate) (*model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return nil, &NotFoundError{Kind: "job", ID: id.String()}
	}
	s.updates++

	if upd.State != nil {
		j.State = *upd.State
	}
	if upd.Progress != nil {
		j.Progress = *upd.Progress
	}
	if upd.ProcessedPagePaths != nil {
		j.ProcessedPagePaths = upd.ProcessedPagePaths
	}
	if upd.ExtractedText != nil {
		j.ExtractedText = *upd.ExtractedText
	}
	if upd.ExtractionConfidence != nil {
		j.ExtractionConfidence = *upd.ExtractionConfidence
	}
	if upd.Answers != nil {
		j.Answers = upd.Answers
	}
	if upd.TotalObtained != nil {
		j.TotalObtained = *upd.TotalObtained
	}
	if upd.TotalPossible != nil {
		j.TotalPossible = *upd.TotalPossible
	}
	if upd.Percentage != nil {
		j.Percentage = *upd.Percentage
	}
	if upd.Grade != nil {
		j.Grade = *upd.Grade
	}
	if upd.Feedback != nil {
		j.Feedback = upd.Feedback
	}
	if upd.ReportPath != nil {
		j.ReportPath = *upd.ReportPath
	}
	if upd.ErrorMessage != nil {
		j.ErrorMessage = *upd.ErrorMessage
	}
	if upd.ExecutionLog != nil {
		j.ExecutionLog = upd.ExecutionLog
	}
	if upd.ReferenceID != nil {
		j.ReferenceID = upd.ReferenceID
	}

	cp := *j
	return &cp, nil
}

func newUploadedJob() *model.Job {
	return &model.Job{
		ID:         uuid.New(),
		State:      model.JobStateUploaded,
		Progress:   10,
		TotalMarks: 100,
		PagePaths:  []string{"p1.png"},
	}
}

func TestExecuteSuccessPersistsEverythingAtOnce(t *testing.T) {
	job := newUploadedJob()
	store := newMemStore(job)
	exec := NewExecutor(store, zerolog.Nop())

	processed := []string{"p1.png.processed"}
	got, err := exec.Execute(context.Background(), job, StagePreprocess, func(ctx context.Context) (string, *model.JobUpdate, error) {
		return "1 page preprocessed", &model.JobUpdate{ProcessedPagePaths: processed}, nil
	})
	require.NoError(t, err)

	assert.Equal(t, model.JobStatePreprocessed, got.State)
	assert.Equal(t, 25, got.Progress)
	assert.Equal(t, processed, got.ProcessedPagePaths)

	require.Len(t, got.ExecutionLog, 1)
	rec := got.ExecutionLog[0]
	assert.Equal(t, "preprocess", rec.Stage)
	assert.Equal(t, model.ExecutionSuccess, rec.Status)
	assert.Equal(t, "1 page preprocessed", rec.Summary)

	// One update for the running state, one for completion.
	assert.Equal(t, 2, store.updates)
}

func TestExecuteFailureMovesJobToFailed(t *testing.T) {
	job := newUploadedJob()
	store := newMemStore(job)
	exec := NewExecutor(store, zerolog.Nop())

	stageErr := errors.New("ocr binary missing")
	_, err := exec.Execute(context.Background(), job, StagePreprocess, func(ctx context.Context) (string, *model.JobUpdate, error) {
		return "", nil, stageErr
	})
	require.ErrorIs(t, err, stageErr)

	persisted, _ := store.Get(context.Background(), job.ID)
	assert.Equal(t, model.JobStateFailed, persisted.State)
	assert.Equal(t, "ocr binary missing", persisted.ErrorMessage)

	require.Len(t, persisted.ExecutionLog, 1)
	assert.Equal(t, model.ExecutionFailed, persisted.ExecutionLog[0].Status)
	assert.Equal(t, "ocr binary missing", persisted.ExecutionLog[0].Error)
}

func TestExecuteIllegalSourceStateMutatesNothing(t *testing.T) {
	job := newUploadedJob()
	job.State = model.JobStateGraded
	store := newMemStore(job)
	exec := NewExecutor(store, zerolog.Nop())

	_, err := exec.Execute(context.Background(), job, StagePreprocess, func(ctx context.Context) (string, *model.JobUpdate, error) {
		t.Fatal("stage body must not run")
		return "", nil, nil
	})

	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Zero(t, store.updates, "illegal transitions must not touch the store")
}

func TestExecutePreservesPartialDataOnFailure(t *testing.T) {
	job := newUploadedJob()
	job.State = model.JobStateExtracted
	job.ExtractedText = "already extracted"
	store := newMemStore(job)
	exec := NewExecutor(store, zerolog.Nop())

	_, err := exec.Execute(context.Background(), job, StageStructure, func(ctx context.Context) (string, *model.JobUpdate, error) {
		return "", nil, errors.New("boom")
	})
	require.Error(t, err)

	persisted, _ := store.Get(context.Background(), job.ID)
	assert.Equal(t, "already extracted", persisted.ExtractedText, "collected data survives the failure")
}
