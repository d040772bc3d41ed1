package pipeline

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/gradelab/scriptgrade-backend/internal/model"
)

func gradedAnswers() []model.AnswerRecord {
	return []model.AnswerRecord{
		{QuestionNumber: 1, MaxMarks: 50, MarksObtained: 30, IsCorrect: false, Explanation: "partial"},
		{QuestionNumber: 2, MaxMarks: 50, MarksObtained: 30, IsCorrect: false, Explanation: "partial"},
	}
}

func ptr[T any](v T) *T { return &v }

func TestApplyClampsOverrideToMaxMarks(t *testing.T) {
	reviewer := NewReviewer(nil, zerolog.Nop())

	result := reviewer.Apply(gradedAnswers(), []model.ReviewOverride{
		{QuestionNumber: 1, MarksObtained: ptr(55.0)},
	}, "ms. chen")

	rec := result.Answers[0]
	assert.Equal(t, 50.0, rec.MarksObtained, "override above max clamps to max")
	assert.True(t, rec.IsCorrect, "50/50 is at least half credit")
	require.NotNil(t, rec.ReviewedBy)
	assert.Equal(t, "ms. chen", *rec.ReviewedBy)

	// 50 + 30 of 100 total.
	assert.Equal(t, 80.0, result.Totals.Percentage)
	assert.Equal(t, "B", result.Grade)
	assert.Equal(t, 1, result.Applied)
	assert.Zero(t, result.Skipped)
}

func TestApplyRecomputesCorrectness(t *testing.T) {
	reviewer := NewReviewer(nil, zerolog.Nop())

	result := reviewer.Apply(gradedAnswers(), []model.ReviewOverride{
		{QuestionNumber: 1, MarksObtained: ptr(25.0)},
		{QuestionNumber: 2, MarksObtained: ptr(24.9)},
	}, "reviewer")

	assert.True(t, result.Answers[0].IsCorrect, "exactly half credit counts as correct")
	assert.False(t, result.Answers[1].IsCorrect)
}

func TestApplySkipsUnknownQuestions(t *testing.T) {
	reviewer := NewReviewer(nil, zerolog.Nop())

	result := reviewer.Apply(gradedAnswers(), []model.ReviewOverride{
		{QuestionNumber: 9, MarksObtained: ptr(10.0)},
		{QuestionNumber: 1, MarksObtained: ptr(40.0)},
	}, "reviewer")

	assert.Equal(t, 1, result.Applied)
	assert.Equal(t, 1, result.Skipped)
	assert.Equal(t, 40.0, result.Answers[0].MarksObtained)
}

func TestApplyReplacesTextOnlyWhenSupplied(t *testing.T) {
	reviewer := NewReviewer(nil, zerolog.Nop())

	result := reviewer.Apply(gradedAnswers(), []model.ReviewOverride{
		{QuestionNumber: 1, Explanation: ptr("corrected by hand"), ReviewerNotes: ptr("checked working")},
		{QuestionNumber: 2, Explanation: ptr("")},
	}, "reviewer")

	assert.Equal(t, "corrected by hand", result.Answers[0].Explanation)
	require.NotNil(t, result.Answers[0].ReviewerNotes)
	assert.Equal(t, "checked working", *result.Answers[0].ReviewerNotes)

	assert.Equal(t, "partial", result.Answers[1].Explanation, "empty override leaves the explanation alone")
	assert.Nil(t, result.Answers[1].ReviewerNotes)
}

func TestApplyIsIdempotent(t *testing.T) {
	reviewer := NewReviewer(nil, zerolog.Nop())
	overrides := []model.ReviewOverride{
		{QuestionNumber: 1, MarksObtained: ptr(45.0), Explanation: ptr("fixed")},
	}

	first := reviewer.Apply(gradedAnswers(), overrides, "reviewer")
	second := reviewer.Apply(first.Answers, overrides, "reviewer")

	assert.Equal(t, first.Totals, second.Totals)
	assert.Equal(t, first.Grade, second.Grade)
	assert.Equal(t, first.Answers, second.Answers)
}

func TestApplyDoesNotMutateInput(t *testing.T) {
	reviewer := NewReviewer(nil, zerolog.Nop())
	input := gradedAnswers()

	reviewer.Apply(input, []model.ReviewOverride{
		{QuestionNumber: 1, MarksObtained: ptr(50.0)},
	}, "reviewer")

	assert.Equal(t, 30.0, input[0].MarksObtained)
	assert.Nil(t, input[0].ReviewedBy)
}
