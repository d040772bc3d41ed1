package pipeline

import (
	"github.com/rs/zerolog"
	"github.com/gradelab/scriptgrade-backend/internal/model"
)

// Reviewer applies manual per-question overrides onto an existing
// graded record set. Overrides replace and clamp, never increment, so
// applying the same set twice yields identical aggregates.
type Reviewer struct {
	bands []GradeBand
	log   zerolog.Logger
}

// NewReviewer creates a Reviewer. bands == nil uses DefaultGradeBands.
func NewReviewer(bands []GradeBand, log zerolog.Logger) *Reviewer {
	if bands == nil {
		bands = DefaultGradeBands
	}
	return &Reviewer{
		bands: bands,
		log:   log.With().Str("component", "reviewer").Logger(),
	}
}

// ReviewResult is the updated record set plus aggregates recomputed
// from the entire set.
type ReviewResult struct {
	Answers []model.AnswerRecord
	Totals  Totals
	Grade   string
	Applied int
	Skipped int
}

// Apply matches each override by question number. Unmatched entries are
// skipped and logged, never raised as errors. For a matched record:
// marks are clamped to [0, maxMarks], correctness is recomputed as
// marks >= 0.5*maxMarks, explanation and notes are replaced only when
// supplied, and the reviewer identity is recorded.
func (r *Reviewer) Apply(answers []model.AnswerRecord, overrides []model.ReviewOverride, reviewedBy string) ReviewResult {
	updated := make([]model.AnswerRecord, len(answers))
	copy(updated, answers)

	index := make(map[int]int, len(updated))
	for i, a := range updated {
		index[a.QuestionNumber] = i
	}

	applied, skipped := 0, 0
	for _, ov := range overrides {
		i, ok := index[ov.QuestionNumber]
		if !ok {
			r.log.Warn().
				Int("question", ov.QuestionNumber).
				Msg("override targets unknown question, skipping")
			skipped++
			continue
		}

		rec := &updated[i]
		if ov.MarksObtained != nil {
			rec.MarksObtained = clamp(*ov.MarksObtained, 0, rec.MaxMarks)
			rec.IsCorrect = rec.MarksObtained >= 0.5*rec.MaxMarks
		}
		if ov.Explanation != nil && *ov.Explanation != "" {
			rec.Explanation = *ov.Explanation
		}
		if ov.ReviewerNotes != nil && *ov.ReviewerNotes != "" {
			notes := *ov.ReviewerNotes
			rec.ReviewerNotes = &notes
		}
		name := reviewedBy
		rec.ReviewedBy = &name
		applied++
	}

	totals := Aggregate(updated)
	r.log.Info().
		Int("applied", applied).
		Int("skipped", skipped).
		Float64("percentage", totals.Percentage).
		Msg("review overrides applied")

	return ReviewResult{
		Answers: updated,
		Totals:  totals,
		Grade:   LetterGrade(totals.Percentage, r.bands),
		Applied: applied,
		Skipped: skipped,
	}
}
