package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/gradelab/scriptgrade-backend/internal/model"
	"github.com/gradelab/scriptgrade-backend/internal/provider"
)

// fakeGrader scores by question number through a canned result map.
type fakeGrader struct {
	results  map[int]provider.GradeResult
	failures map[int]error
	requests []provider.GradeRequest
}

func (f *fakeGrader) Grade(ctx context.Context, req provider.GradeRequest) (provider.GradeResult, error) {
	f.requests = append(f.requests, req)
	if err, ok := f.failures[req.QuestionNumber]; ok {
		return provider.GradeResult{}, err
	}
	return f.results[req.QuestionNumber], nil
}

func structuredAnswers() []model.AnswerRecord {
	return []model.AnswerRecord{
		{QuestionNumber: 1, QuestionText: "q1", AnswerText: "a1", MaxMarks: 10},
		{QuestionNumber: 2, QuestionText: "q2", AnswerText: "a2", MaxMarks: 10},
	}
}

func TestAssessGradesEveryRecord(t *testing.T) {
	grader := &fakeGrader{results: map[int]provider.GradeResult{
		1: {Marks: 8, IsCorrect: true, Explanation: "good"},
		2: {Marks: 6, IsCorrect: true, Explanation: "ok"},
	}}
	assessor := NewAssessor(grader, nil, zerolog.Nop())

	result, err := assessor.Assess(context.Background(), structuredAnswers(), nil)
	require.NoError(t, err)

	assert.Equal(t, 14.0, result.Totals.Obtained)
	assert.Equal(t, 20.0, result.Totals.Possible)
	assert.Equal(t, 70.0, result.Totals.Percentage)
	assert.Equal(t, "C", result.Grade)
	assert.Zero(t, result.Fallbacks)
	assert.True(t, result.Answers[0].IsCorrect)
	assert.Equal(t, "good", result.Answers[0].Explanation)
}

func TestAssessPassesExpectedAnswers(t *testing.T) {
	grader := &fakeGrader{results: map[int]provider.GradeResult{}}
	assessor := NewAssessor(grader, nil, zerolog.Nop())

	_, err := assessor.Assess(context.Background(), structuredAnswers(), map[int]string{1: "the key"})
	require.NoError(t, err)

	require.Len(t, grader.requests, 2)
	assert.Equal(t, "the key", grader.requests[0].ExpectedAnswer)
	assert.Empty(t, grader.requests[1].ExpectedAnswer)
}

func TestAssessFallbackOnGraderError(t *testing.T) {
	grader := &fakeGrader{
		results:  map[int]provider.GradeResult{1: {Marks: 10, IsCorrect: true}},
		failures: map[int]error{2: errors.New("model unavailable")},
	}
	assessor := NewAssessor(grader, nil, zerolog.Nop())

	result, err := assessor.Assess(context.Background(), structuredAnswers(), nil)
	require.NoError(t, err, "a single grader failure must not abort the batch")

	assert.Equal(t, 1, result.Fallbacks)
	fallback := result.Answers[1]
	assert.Equal(t, 5.0, fallback.MarksObtained, "fallback awards half credit")
	assert.False(t, fallback.IsCorrect)
	assert.Contains(t, fallback.Explanation, "Manual review recommended")
}

func TestAssessClampsMarksAndCapsSuggestions(t *testing.T) {
	grader := &fakeGrader{results: map[int]provider.GradeResult{
		1: {Marks: 25, IsCorrect: true, Suggestions: []string{"a", "b", "c", "d", "e"}},
		2: {Marks: -3},
	}}
	assessor := NewAssessor(grader, nil, zerolog.Nop())

	result, err := assessor.Assess(context.Background(), structuredAnswers(), nil)
	require.NoError(t, err)

	assert.Equal(t, 10.0, result.Answers[0].MarksObtained)
	assert.Len(t, result.Answers[0].Suggestions, 3)
	assert.Equal(t, 0.0, result.Answers[1].MarksObtained)
}

func TestAssessEmptySetIsValidationError(t *testing.T) {
	assessor := NewAssessor(&fakeGrader{}, nil, zerolog.Nop())
	_, err := assessor.Assess(context.Background(), nil, nil)

	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
}

func TestAssessCancelledContextIsCapabilityError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assessor := NewAssessor(&fakeGrader{}, nil, zerolog.Nop())
	_, err := assessor.Assess(ctx, structuredAnswers(), nil)

	var ce *CapabilityError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "grader", ce.Provider)
}
