package model

import (
	"time"

	"github.com/google/uuid"
)

// ReferenceStatus enumerates the lifecycle of a canonical answer set.
type ReferenceStatus string

const (
	ReferenceStatusUploaded   ReferenceStatus = "UPLOADED"
	ReferenceStatusProcessing ReferenceStatus = "PROCESSING"
	ReferenceStatusProcessed  ReferenceStatus = "PROCESSED"
	ReferenceStatusFailed     ReferenceStatus = "FAILED"
)

// ReferenceKey is a teacher-supplied canonical answer set with its own
// lifecycle, independent of any job. Once processed it is consumed
// read-only by the grading stage.
type ReferenceKey struct {
	ID        uuid.UUID       `json:"id"`
	ExamName  string          `json:"exam_name"`
	Subject   string          `json:"subject"`
	Status    ReferenceStatus `json:"status"`
	IsActive  bool            `json:"is_active"`
	PagePaths []string        `json:"page_paths"`
	Answers   []AnswerRecord  `json:"answers,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// AnswerMap returns the questionNumber -> expected answer text mapping
// used by the grading stage. Nil when the reference has no answers yet.
func (r *ReferenceKey) AnswerMap() map[int]string {
	if len(r.Answers) == 0 {
		return nil
	}
	m := make(map[int]string, len(r.Answers))
	for _, a := range r.Answers {
		m[a.QuestionNumber] = a.AnswerText
	}
	return m
}

// CreateReferenceRequest is the multipart form payload for uploading a
// reference answer script.
type CreateReferenceRequest struct {
	ExamName string `form:"exam_name" binding:"required,min=1,max=200"`
	Subject  string `form:"subject" binding:"omitempty,max=120"`
}
