package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"
	"github.com/gradelab/scriptgrade-backend/internal/model"
)

// FileRenderer materializes grading reports under a report directory,
// either as an XLSX workbook or as a raw JSON document.
type FileRenderer struct {
	reportDir string
	log       zerolog.Logger
}

// NewFileRenderer writes artifacts under reportDir.
func NewFileRenderer(reportDir string, log zerolog.Logger) *FileRenderer {
	return &FileRenderer{
		reportDir: reportDir,
		log:       log.With().Str("component", "renderer").Logger(),
	}
}

// Render produces the report artifact for one job and returns its path.
func (r *FileRenderer) Render(ctx context.Context, job *model.Job, format string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := os.MkdirAll(r.reportDir, 0o755); err != nil {
		return "", fmt.Errorf("create report dir: %w", err)
	}

	switch strings.ToLower(format) {
	case "xlsx":
		return r.renderXLSX(job)
	case "json":
		return r.renderJSON(job)
	default:
		return "", fmt.Errorf("unsupported report format %q", format)
	}
}

func (r *FileRenderer) renderJSON(job *model.Job) (string, error) {
	path := filepath.Join(r.reportDir, fmt.Sprintf("report-%s.json", job.ID))
	b, err := json.MarshalIndent(job, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal report: %w", err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return "", fmt.Errorf("write report: %w", err)
	}
	return path, nil
}

func (r *FileRenderer) renderXLSX(job *model.Job) (string, error) {
	f := excelize.NewFile()
	defer f.Close()

	const sheet = "Report"
	idx, err := f.NewSheet(sheet)
	if err != nil {
		return "", fmt.Errorf("create sheet: %w", err)
	}
	f.SetActiveSheet(idx)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return "", fmt.Errorf("drop default sheet: %w", err)
	}

	header := [][]interface{}{
		{"Student", job.StudentName},
		{"Student ID", job.StudentID},
		{"Exam", job.ExamName},
		{"Subject", job.Subject},
		{"Score", fmt.Sprintf("%.2f / %.2f", job.TotalObtained, job.TotalPossible)},
		{"Percentage", fmt.Sprintf("%.2f%%", job.Percentage)},
		{"Grade", job.Grade},
	}
	for i, row := range header {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return "", fmt.Errorf("write header row: %w", err)
		}
	}

	tableStart := len(header) + 2
	columns := []interface{}{"Q#", "Type", "Question", "Answer", "Marks", "Max", "Correct", "Explanation", "Reviewer Notes"}
	cell, _ := excelize.CoordinatesToCellName(1, tableStart)
	if err := f.SetSheetRow(sheet, cell, &columns); err != nil {
		return "", fmt.Errorf("write table header: %w", err)
	}

	for i, a := range job.Answers {
		notes := ""
		if a.ReviewerNotes != nil {
			notes = *a.ReviewerNotes
		}
		row := []interface{}{
			a.QuestionNumber,
			string(a.QuestionType),
			a.QuestionText,
			a.AnswerText,
			a.MarksObtained,
			a.MaxMarks,
			a.IsCorrect,
			a.Explanation,
			notes,
		}
		cell, _ := excelize.CoordinatesToCellName(1, tableStart+1+i)
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return "", fmt.Errorf("write answer row %d: %w", a.QuestionNumber, err)
		}
	}

	if job.Feedback != nil {
		fbStart := tableStart + len(job.Answers) + 2
		fbRows := [][]interface{}{
			{"Overall", job.Feedback.Overall},
			{"Strengths", strings.Join(job.Feedback.Strengths, "; ")},
			{"Improvements", strings.Join(job.Feedback.Improvements, "; ")},
			{"Recommendations", strings.Join(job.Feedback.Recommendations, "; ")},
		}
		for i, row := range fbRows {
			cell, _ := excelize.CoordinatesToCellName(1, fbStart+i)
			if err := f.SetSheetRow(sheet, cell, &row); err != nil {
				return "", fmt.Errorf("write feedback row: %w", err)
			}
		}
	}

	path := filepath.Join(r.reportDir, fmt.Sprintf("report-%s.xlsx", job.ID))
	if err := f.SaveAs(path); err != nil {
		return "", fmt.Errorf("save workbook: %w", err)
	}

	r.log.Info().Str("job_id", job.ID.String()).Str("path", path).Msg("report rendered")
	return path, nil
}
