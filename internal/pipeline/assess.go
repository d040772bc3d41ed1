package pipeline

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/gradelab/scriptgrade-backend/internal/model"
	"github.com/gradelab/scriptgrade-backend/internal/provider"
)

// Assessor runs the grading stage: one grader call per answer record,
// with a deterministic per-question fallback so a single bad response
// never aborts the batch.
type Assessor struct {
	grader provider.Grader
	bands  []GradeBand
	log    zerolog.Logger
}

// NewAssessor creates an Assessor. bands == nil uses DefaultGradeBands.
func NewAssessor(grader provider.Grader, bands []GradeBand, log zerolog.Logger) *Assessor {
	if bands == nil {
		bands = DefaultGradeBands
	}
	return &Assessor{
		grader: grader,
		bands:  bands,
		log:    log.With().Str("component", "assessor").Logger(),
	}
}

// AssessResult is the graded record set with its recomputed aggregates.
type AssessResult struct {
	Answers   []model.AnswerRecord
	Totals    Totals
	Grade     string
	Fallbacks int
}

// Assess grades every record. answerKey maps question numbers to
// expected answers and may be nil. The input records are not mutated.
func (a *Assessor) Assess(ctx context.Context, answers []model.AnswerRecord, answerKey map[int]string) (AssessResult, error) {
	if len(answers) == 0 {
		return AssessResult{}, Validationf("no structured answers to grade")
	}
	if err := ctx.Err(); err != nil {
		// Batch-level failure: the grader cannot be invoked at all.
		return AssessResult{}, &CapabilityError{Provider: "grader", Err: err}
	}

	graded := make([]model.AnswerRecord, len(answers))
	fallbacks := 0

	for i, rec := range answers {
		req := provider.GradeRequest{
			QuestionNumber: rec.QuestionNumber,
			QuestionText:   rec.QuestionText,
			StudentAnswer:  rec.AnswerText,
			MaxMarks:       rec.MaxMarks,
			QuestionType:   rec.QuestionType,
		}
		if answerKey != nil {
			req.ExpectedAnswer = answerKey[rec.QuestionNumber]
		}

		result, err := a.grader.Grade(ctx, req)
		if err != nil {
			a.log.Warn().
				Err(err).
				Int("question", rec.QuestionNumber).
				Msg("grading failed, applying fallback")
			result = fallbackGrade(rec.MaxMarks)
			fallbacks++
		}

		rec.MarksObtained = clamp(result.Marks, 0, rec.MaxMarks)
		rec.IsCorrect = result.IsCorrect
		rec.Explanation = result.Explanation
		rec.Suggestions = capSuggestions(result.Suggestions)
		graded[i] = rec
	}

	totals := Aggregate(graded)
	return AssessResult{
		Answers:   graded,
		Totals:    totals,
		Grade:     LetterGrade(totals.Percentage, a.bands),
		Fallbacks: fallbacks,
	}, nil
}

// fallbackGrade is the deterministic verdict for a question whose
// grader call failed: half credit, a generic explanation and one
// generic suggestion.
func fallbackGrade(maxMarks float64) provider.GradeResult {
	return provider.GradeResult{
		Marks:       maxMarks * 0.5,
		IsCorrect:   false,
		Explanation: "Automatic assessment applied. Manual review recommended.",
		Suggestions: []string{"Request a manual review of this answer"},
	}
}

// capSuggestions keeps at most three suggestions.
func capSuggestions(s []string) []string {
	if len(s) > 3 {
		return s[:3]
	}
	return s
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
