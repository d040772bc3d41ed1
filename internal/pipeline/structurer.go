package pipeline

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"github.com/gradelab/scriptgrade-backend/internal/model"
)

// DefaultAssumedQuestionCount is the divisor for per-question mark
// allocation when no reference key says otherwise. A heuristic, not a
// measured count; kept configurable.
const DefaultAssumedQuestionCount = 10

// questionMarker matches an optional "Q"/"Question" prefix, a question
// number and a "."/":"/")" separator, e.g. "Q1.", "Question 2:", "3)".
var questionMarker = regexp.MustCompile(`(?i)^(?:Q(?:uestion)?\.?\s*)?(\d+)[.:)]\s*(.*)`)

var multipleChoiceMarkers = []string{"(a)", "(b)", "(c)", "(d)", "choose", "select"}
var trueFalseMarkers = []string{"true or false", "t/f", "true/false"}
var fillBlankMarkers = []string{"fill in", "blank", "______", "___"}

// Structurer turns joined extracted text into an ordered set of
// per-question answer records.
type Structurer struct {
	assumedQuestions int
	log              zerolog.Logger
}

// NewStructurer creates a Structurer. assumedQuestions <= 0 falls back
// to DefaultAssumedQuestionCount.
func NewStructurer(assumedQuestions int, log zerolog.Logger) *Structurer {
	if assumedQuestions <= 0 {
		assumedQuestions = DefaultAssumedQuestionCount
	}
	return &Structurer{
		assumedQuestions: assumedQuestions,
		log:              log.With().Str("component", "structurer").Logger(),
	}
}

// Structure scans the text line by line, detecting question boundaries
// via the marker pattern; non-marker lines accumulate as the current
// question's answer body. When no markers are found anywhere, the whole
// document becomes a single essay record carrying the full total marks.
func (s *Structurer) Structure(text string, totalMarks float64) []model.AnswerRecord {
	lines := splitNonEmptyLines(text)

	perQuestion := round1(totalMarks / float64(s.assumedQuestions))

	var records []model.AnswerRecord
	var current *model.AnswerRecord
	var body []string

	flush := func() {
		if current == nil {
			return
		}
		current.AnswerText = strings.TrimSpace(strings.Join(body, "\n"))
		current.QuestionType = classify(current.QuestionText, current.AnswerText)
		current.MaxMarks = perQuestion
		records = append(records, *current)
	}

	for _, line := range lines {
		m := questionMarker.FindStringSubmatch(line)
		if m == nil {
			if current != nil {
				body = append(body, line)
			}
			continue
		}
		flush()
		num, _ := strconv.Atoi(m[1])
		current = &model.AnswerRecord{
			QuestionNumber: num,
			QuestionText:   strings.TrimSpace(m[2]),
		}
		body = body[:0]
	}
	flush()

	if len(records) == 0 {
		s.log.Warn().Msg("no question markers found, structuring whole document as one essay")
		return []model.AnswerRecord{{
			QuestionNumber: 1,
			QuestionText:   "Full Test Paper Response",
			AnswerText:     strings.Join(lines, "\n"),
			QuestionType:   model.QuestionEssay,
			MaxMarks:       totalMarks,
		}}
	}

	s.log.Info().Int("questions", len(records)).Msg("structuring completed")
	return records
}

// classify applies the type heuristic in fixed order; first match wins.
func classify(questionText, answerText string) model.QuestionType {
	q := strings.ToLower(questionText)

	for _, m := range multipleChoiceMarkers {
		if strings.Contains(q, m) {
			return model.QuestionMultipleChoice
		}
	}
	for _, m := range trueFalseMarkers {
		if strings.Contains(q, m) {
			return model.QuestionTrueFalse
		}
	}
	for _, m := range fillBlankMarkers {
		if strings.Contains(q, m) {
			return model.QuestionFillBlank
		}
	}
	if len(strings.Fields(answerText)) > 50 {
		return model.QuestionEssay
	}
	return model.QuestionShortAnswer
}

func splitNonEmptyLines(text string) []string {
	raw := strings.Split(text, "\n")
	lines := make([]string, 0, len(raw))
	for _, l := range raw {
		if t := strings.TrimSpace(l); t != "" {
			lines = append(lines, t)
		}
	}
	return lines
}
