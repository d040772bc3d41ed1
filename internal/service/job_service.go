package service

import (
	"context"
	"fmt"
	"mime/multipart"
	"os"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/gradelab/scriptgrade-backend/internal/config"
	"github.com/gradelab/scriptgrade-backend/internal/model"
	"github.com/gradelab/scriptgrade-backend/internal/provider"
	"github.com/gradelab/scriptgrade-backend/internal/repository"
)

// JobService handles submission intake and job lifecycle queries. The
// pipeline itself runs in the background worker; Submit only persists
// the job and enqueues it.
type JobService struct {
	jobRepo  *repository.JobRepository
	storage  *StorageService
	splitter provider.PageSplitter
	rdb      *redis.Client
	cfg      *config.Config
	log      zerolog.Logger
}

// NewJobService creates a new JobService.
func NewJobService(jobRepo *repository.JobRepository, storage *StorageService, splitter provider.PageSplitter, rdb *redis.Client, cfg *config.Config, log zerolog.Logger) *JobService {
	return &JobService{
		jobRepo:  jobRepo,
		storage:  storage,
		splitter: splitter,
		rdb:      rdb,
		cfg:      cfg,
		log:      log.With().Str("component", "job_service").Logger(),
	}
}

// Submit stores the uploaded script, splits it into pages, creates the
// job record and enqueues it for the pipeline worker.
func (s *JobService) Submit(ctx context.Context, req *model.SubmitJobRequest, file multipart.File, header *multipart.FileHeader) (*model.Job, error) {
	path, err := s.storage.SaveUpload(file, header)
	if err != nil {
		return nil, err
	}

	pages, err := s.splitter.Split(ctx, path, s.storage.PageDir(path))
	if err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("split document: %w", err)
	}

	totalMarks := req.TotalMarks
	if totalMarks <= 0 {
		totalMarks = s.cfg.DefaultTotalMarks
	}

	var refID *uuid.UUID
	if req.ReferenceID != "" {
		id, err := uuid.Parse(req.ReferenceID)
		if err != nil {
			return nil, fmt.Errorf("parse reference id: %w", err)
		}
		refID = &id
	}

	job := &model.Job{
		ID:           uuid.New(),
		StudentName:  req.StudentName,
		StudentID:    req.StudentID,
		ExamName:     req.ExamName,
		Subject:      req.Subject,
		TotalMarks:   totalMarks,
		ReferenceID:  refID,
		State:        model.JobStateUploaded,
		Progress:     10,
		PagePaths:    pages,
		ExecutionLog: []model.ExecutionRecord{},
	}

	if err := s.jobRepo.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}

	if err := s.rdb.RPush(ctx, config.WorkerKey.ProcessJobsQueue, job.ID.String()).Err(); err != nil {
		return nil, fmt.Errorf("enqueue job: %w", err)
	}

	s.log.Info().
		Str("job_id", job.ID.String()).
		Str("student_id", job.StudentID).
		Int("pages", len(pages)).
		Msg("job submitted")

	return job, nil
}

// Get retrieves a job by its ID.
func (s *JobService) Get(ctx context.Context, id uuid.UUID) (*model.Job, error) {
	return s.jobRepo.Get(ctx, id)
}

// List retrieves jobs newest first with optional filters.
func (s *JobService) List(ctx context.Context, filter repository.JobFilter, limit int) ([]model.Job, error) {
	return s.jobRepo.Query(ctx, filter, limit)
}

// Delete removes a job record. Uploaded pages and rendered reports are
// removed best effort.
func (s *JobService) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	job, err := s.jobRepo.Get(ctx, id)
	if err != nil {
		return false, err
	}

	deleted, err := s.jobRepo.Delete(ctx, id)
	if err != nil || !deleted {
		return deleted, err
	}

	for _, p := range job.PagePaths {
		os.Remove(p)
	}
	for _, p := range job.ProcessedPagePaths {
		os.Remove(p)
	}
	if job.ReportPath != "" {
		os.Remove(job.ReportPath)
	}
	return true, nil
}
