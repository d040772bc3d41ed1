package model

import (
	"time"

	"github.com/google/uuid"
)

// JobState enumerates the pipeline states of a submission.
type JobState string

const (
	JobStateUploaded           JobState = "UPLOADED"
	JobStatePreprocessing      JobState = "PREPROCESSING"
	JobStatePreprocessed       JobState = "PREPROCESSED"
	JobStateExtracting         JobState = "EXTRACTING"
	JobStateExtracted          JobState = "EXTRACTED"
	JobStateStructuring        JobState = "STRUCTURING"
	JobStateStructured         JobState = "STRUCTURED"
	JobStateGrading            JobState = "GRADING"
	JobStateGraded             JobState = "GRADED"
	JobStateGeneratingFeedback JobState = "GENERATING_FEEDBACK"
	JobStateFeedbackReady      JobState = "FEEDBACK_READY"
	JobStateUnderReview        JobState = "UNDER_REVIEW"
	JobStateReviewed           JobState = "REVIEWED"
	JobStateRendering          JobState = "RENDERING"
	JobStateCompleted          JobState = "COMPLETED"
	JobStateFailed             JobState = "FAILED"
)

// Terminal reports whether no further stage may run from this state.
func (s JobState) Terminal() bool {
	return s == JobStateCompleted || s == JobStateFailed
}

// ExecutionStatus is the outcome of a single stage invocation.
type ExecutionStatus string

const (
	ExecutionSuccess ExecutionStatus = "success"
	ExecutionFailed  ExecutionStatus = "failed"
)

// ExecutionRecord is one append-only entry in a job's execution log.
type ExecutionRecord struct {
	Stage      string          `json:"stage"`
	Status     ExecutionStatus `json:"status"`
	DurationMS int64           `json:"duration_ms"`
	Summary    string          `json:"summary,omitempty"`
	Error      string          `json:"error,omitempty"`
	At         time.Time       `json:"at"`
}

// Job represents one answer-script submission's end-to-end processing record.
type Job struct {
	ID                   uuid.UUID         `json:"id"`
	StudentName          string            `json:"student_name"`
	StudentID            string            `json:"student_id"`
	ExamName             string            `json:"exam_name"`
	Subject              string            `json:"subject"`
	TotalMarks           float64           `json:"total_marks"`
	ReferenceID          *uuid.UUID        `json:"reference_id,omitempty"`
	State                JobState          `json:"state"`
	Progress             int               `json:"progress"`
	PagePaths            []string          `json:"page_paths"`
	ProcessedPagePaths   []string          `json:"processed_page_paths,omitempty"`
	ExtractedText        string            `json:"extracted_text,omitempty"`
	ExtractionConfidence float64           `json:"extraction_confidence"`
	Answers              []AnswerRecord    `json:"answers,omitempty"`
	TotalObtained        float64           `json:"total_obtained"`
	TotalPossible        float64           `json:"total_possible"`
	Percentage           float64           `json:"percentage"`
	Grade                string            `json:"grade,omitempty"`
	Feedback             *Feedback         `json:"feedback,omitempty"`
	ReportPath           string            `json:"report_path,omitempty"`
	ErrorMessage         string            `json:"error_message,omitempty"`
	ExecutionLog         []ExecutionRecord `json:"execution_log"`
	CreatedAt            time.Time         `json:"created_at"`
	UpdatedAt            time.Time         `json:"updated_at"`
}

// Feedback is the composed narrative feedback for a graded job.
type Feedback struct {
	Overall         string   `json:"overall"`
	Strengths       []string `json:"strengths"`
	Improvements    []string `json:"improvements"`
	Recommendations []string `json:"recommendations"`
	Grade           string   `json:"grade"`
}

// JobUpdate carries a partial job update. Nil fields are left untouched,
// so callers state exactly which columns a stage produced.
type JobUpdate struct {
	State                *JobState
	Progress             *int
	ProcessedPagePaths   []string
	ExtractedText        *string
	ExtractionConfidence *float64
	Answers              []AnswerRecord
	TotalObtained        *float64
	TotalPossible        *float64
	Percentage           *float64
	Grade                *string
	Feedback             *Feedback
	ReportPath           *string
	ErrorMessage         *string
	ExecutionLog         []ExecutionRecord
	ReferenceID          *uuid.UUID
}

// SubmitJobRequest is the multipart form payload for a new submission.
// The script file itself arrives as the "file" form part.
type SubmitJobRequest struct {
	StudentName string  `form:"student_name" binding:"required,min=1,max=120"`
	StudentID   string  `form:"student_id" binding:"required,min=1,max=64"`
	ExamName    string  `form:"exam_name" binding:"omitempty,max=200"`
	Subject     string  `form:"subject" binding:"omitempty,max=120"`
	TotalMarks  float64 `form:"total_marks" binding:"omitempty,gt=0"`
	ReferenceID string  `form:"reference_id" binding:"omitempty,uuid"`
}

// RegradeRequest asks for a full re-run of the grading stage.
type RegradeRequest struct {
	ReferenceID string `json:"reference_id" binding:"omitempty,uuid"`
}

// ReviewOverride is one caller-supplied per-question correction.
type ReviewOverride struct {
	QuestionNumber int      `json:"question_number" binding:"required,gt=0"`
	MarksObtained  *float64 `json:"marks_obtained" binding:"omitempty,gte=0"`
	Explanation    *string  `json:"explanation"`
	ReviewerNotes  *string  `json:"reviewer_notes"`
}

// ReviewRequest applies manual overrides to a graded job.
type ReviewRequest struct {
	Overrides    []ReviewOverride `json:"overrides" binding:"required,min=1,dive"`
	ReviewerName string           `json:"reviewer_name" binding:"required,min=1,max=120"`
}

// RenderRequest selects the report output format.
type RenderRequest struct {
	Format string `json:"format" binding:"omitempty,oneof=xlsx json"`
}
