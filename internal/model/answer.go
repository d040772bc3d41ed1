package model

// QuestionType classifies a structured answer for grading.
type QuestionType string

const (
	QuestionMultipleChoice QuestionType = "multiple_choice"
	QuestionTrueFalse      QuestionType = "true_false"
	QuestionFillBlank      QuestionType = "fill_blank"
	QuestionEssay          QuestionType = "essay"
	QuestionShortAnswer    QuestionType = "short_answer"
)

// AnswerRecord is one graded question within a job. It is created by the
// structuring stage, filled in by grading, and may later be corrected by
// a manual review pass. Question numbers are unique within a job.
type AnswerRecord struct {
	QuestionNumber int          `json:"question_number"`
	QuestionText   string       `json:"question_text"`
	AnswerText     string       `json:"answer_text"`
	QuestionType   QuestionType `json:"question_type"`
	MaxMarks       float64      `json:"max_marks"`
	MarksObtained  float64      `json:"marks_obtained"`
	IsCorrect      bool         `json:"is_correct"`
	Explanation    string       `json:"explanation,omitempty"`
	Suggestions    []string     `json:"suggestions,omitempty"`
	ReviewerNotes  *string      `json:"reviewer_notes,omitempty"`
	ReviewedBy     *string      `json:"reviewed_by,omitempty"`
}
