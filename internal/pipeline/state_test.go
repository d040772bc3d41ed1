package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/gradelab/scriptgrade-backend/internal/model"
)

func TestCanStart(t *testing.T) {
	tests := []struct {
		name  string
		stage Stage
		from  model.JobState
		want  bool
	}{
		{"preprocess from uploaded", StagePreprocess, model.JobStateUploaded, true},
		{"preprocess from extracted", StagePreprocess, model.JobStateExtracted, false},
		{"extract requires preprocessed", StageExtract, model.JobStatePreprocessed, true},
		{"extract from uploaded", StageExtract, model.JobStateUploaded, false},
		{"grade requires structured", StageGrade, model.JobStateStructured, true},
		{"grade from graded", StageGrade, model.JobStateGraded, false},
		{"regrade from graded", StageRegrade, model.JobStateGraded, true},
		{"regrade from completed", StageRegrade, model.JobStateCompleted, true},
		{"regrade from reviewed", StageRegrade, model.JobStateReviewed, true},
		{"regrade from structured", StageRegrade, model.JobStateStructured, false},
		{"review from feedback ready", StageReview, model.JobStateFeedbackReady, true},
		{"review from reviewed is repeatable", StageReview, model.JobStateReviewed, true},
		{"review from graded", StageReview, model.JobStateGraded, false},
		{"render from feedback ready", StageRender, model.JobStateFeedbackReady, true},
		{"render from completed is repeatable", StageRender, model.JobStateCompleted, true},
		{"render from grading", StageRender, model.JobStateGrading, false},
		{"nothing starts from failed", StagePreprocess, model.JobStateFailed, false},
		{"unknown stage", Stage("bogus"), model.JobStateUploaded, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CanStart(tt.stage, tt.from))
		})
	}
}

func TestRunningAndDoneStates(t *testing.T) {
	assert.Equal(t, model.JobStateGrading, RunningState(StageRegrade))
	assert.Equal(t, model.JobStateGraded, DoneState(StageRegrade))
	assert.Equal(t, model.JobStateUnderReview, RunningState(StageReview))
	assert.Equal(t, model.JobStateCompleted, DoneState(StageRender))
}

func TestProgressForNeverDecreases(t *testing.T) {
	// Fresh pipeline walks upward normally.
	assert.Equal(t, 20, ProgressFor(model.JobStatePreprocessing, 10))
	assert.Equal(t, 100, ProgressFor(model.JobStateCompleted, 95))

	// Regrading a completed job would map to 65, but progress holds its
	// high-water mark.
	assert.Equal(t, 100, ProgressFor(model.JobStateGrading, 100))
	assert.Equal(t, 100, ProgressFor(model.JobStateGraded, 100))

	// Unknown states keep the current value.
	assert.Equal(t, 42, ProgressFor(model.JobStateFailed, 42))
}

func TestTerminalStates(t *testing.T) {
	assert.True(t, model.JobStateCompleted.Terminal())
	assert.True(t, model.JobStateFailed.Terminal())
	assert.False(t, model.JobStateGraded.Terminal())
	assert.False(t, model.JobStateUploaded.Terminal())
}
