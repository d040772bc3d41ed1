package provider

import (
	"context"

	"github.com/gradelab/scriptgrade-backend/internal/model"
)

// VisionExtractor extracts text from a single page image.
// Implementations are interchangeable engines with different
// speed/accuracy trade-offs.
type VisionExtractor interface {
	// Extract returns the recognized text, a confidence score in [0,100]
	// and engine-specific metadata.
	Extract(ctx context.Context, pagePath string) (text string, confidence float64, meta map[string]string, err error)
	// Name identifies the engine in logs and execution records.
	Name() string
}

// PageSplitter turns an uploaded document into an ordered list of
// per-page images. Single images pass through as a one-element list.
type PageSplitter interface {
	Split(ctx context.Context, sourcePath, outDir string) ([]string, error)
}

// Preprocessor normalizes a page image before extraction.
type Preprocessor interface {
	Preprocess(ctx context.Context, pagePath string) (processedPath string, err error)
}

// GradeRequest carries everything the grader needs for one question.
type GradeRequest struct {
	QuestionNumber int
	QuestionText   string
	StudentAnswer  string
	ExpectedAnswer string // empty when no reference key applies
	MaxMarks       float64
	QuestionType   model.QuestionType
}

// GradeResult is the grader's verdict for one question.
type GradeResult struct {
	Marks       float64
	IsCorrect   bool
	Explanation string
	Suggestions []string
}

// Grader scores a single student answer.
type Grader interface {
	Grade(ctx context.Context, req GradeRequest) (GradeResult, error)
}

// FeedbackRequest carries the graded record set for narrative feedback.
type FeedbackRequest struct {
	StudentName string
	Subject     string
	Answers     []model.AnswerRecord
	Percentage  float64
	Grade       string
}

// FeedbackResult is the composed feedback for the whole script.
type FeedbackResult struct {
	Overall         string
	Strengths       []string
	Improvements    []string
	Recommendations []string
	Grade           string
}

// FeedbackComposer writes the student-facing feedback narrative.
type FeedbackComposer interface {
	Compose(ctx context.Context, req FeedbackRequest) (FeedbackResult, error)
}

// ReportRenderer materializes a job into a downloadable artifact.
type ReportRenderer interface {
	Render(ctx context.Context, job *model.Job, format string) (artifactPath string, err error)
}
