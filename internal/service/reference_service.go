package service

import (
	"context"
	"fmt"
	"mime/multipart"
	"os"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/gradelab/scriptgrade-backend/internal/config"
	"github.com/gradelab/scriptgrade-backend/internal/model"
	"github.com/gradelab/scriptgrade-backend/internal/pipeline"
	"github.com/gradelab/scriptgrade-backend/internal/provider"
	"github.com/gradelab/scriptgrade-backend/internal/repository"
)

// ReferenceService manages teacher-supplied answer keys. Processing a
// reference runs the same extraction and structuring used for student
// scripts, but no grading: the structured records become the expected
// answers.
type ReferenceService struct {
	refRepo      *repository.ReferenceRepository
	storage      *StorageService
	splitter     provider.PageSplitter
	preprocessor provider.Preprocessor
	extractor    provider.VisionExtractor
	agg          *pipeline.Aggregator
	structurer   *pipeline.Structurer
	cfg          *config.Config
	log          zerolog.Logger
}

// NewReferenceService creates a new ReferenceService.
func NewReferenceService(
	refRepo *repository.ReferenceRepository,
	storage *StorageService,
	splitter provider.PageSplitter,
	preprocessor provider.Preprocessor,
	extractor provider.VisionExtractor,
	cfg *config.Config,
	log zerolog.Logger,
) *ReferenceService {
	return &ReferenceService{
		refRepo:      refRepo,
		storage:      storage,
		splitter:     splitter,
		preprocessor: preprocessor,
		extractor:    extractor,
		agg:          pipeline.NewAggregator(log),
		structurer:   pipeline.NewStructurer(cfg.AssumedQuestionCount, log),
		cfg:          cfg,
		log:          log.With().Str("component", "reference_service").Logger(),
	}
}

// Create stores an uploaded reference script and records it as UPLOADED.
func (s *ReferenceService) Create(ctx context.Context, req *model.CreateReferenceRequest, file multipart.File, header *multipart.FileHeader) (*model.ReferenceKey, error) {
	path, err := s.storage.SaveUpload(file, header)
	if err != nil {
		return nil, err
	}

	pages, err := s.splitter.Split(ctx, path, s.storage.PageDir(path))
	if err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("split document: %w", err)
	}

	ref := &model.ReferenceKey{
		ID:        uuid.New(),
		ExamName:  req.ExamName,
		Subject:   req.Subject,
		Status:    model.ReferenceStatusUploaded,
		PagePaths: pages,
	}
	if err := s.refRepo.Create(ctx, ref); err != nil {
		return nil, fmt.Errorf("create reference: %w", err)
	}

	s.log.Info().
		Str("reference_id", ref.ID.String()).
		Str("exam", ref.ExamName).
		Int("pages", len(pages)).
		Msg("reference uploaded")
	return ref, nil
}

// Process extracts and structures the reference's answers. Failures
// move the reference to FAILED so it can be re-uploaded.
func (s *ReferenceService) Process(ctx context.Context, id uuid.UUID) (*model.ReferenceKey, error) {
	ref, err := s.refRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if ref.Status == model.ReferenceStatusProcessing {
		return nil, pipeline.ErrJobBusy
	}

	if _, err := s.refRepo.SetStatus(ctx, id, model.ReferenceStatusProcessing, nil); err != nil {
		return nil, err
	}

	answers, err := s.process(ctx, ref)
	if err != nil {
		if _, serr := s.refRepo.SetStatus(ctx, id, model.ReferenceStatusFailed, nil); serr != nil {
			s.log.Error().Err(serr).Str("reference_id", id.String()).Msg("failed to mark reference failed")
		}
		return nil, err
	}

	updated, err := s.refRepo.SetStatus(ctx, id, model.ReferenceStatusProcessed, answers)
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("reference_id", id.String()).
		Int("answers", len(answers)).
		Msg("reference processed")
	return updated, nil
}

func (s *ReferenceService) process(ctx context.Context, ref *model.ReferenceKey) ([]model.AnswerRecord, error) {
	pages, err := s.agg.PreprocessPages(ctx, s.preprocessor, ref.PagePaths)
	if err != nil {
		return nil, err
	}
	result, err := s.agg.ExtractPages(ctx, s.extractor, pages)
	if err != nil {
		return nil, err
	}
	if result.Text == "" {
		return nil, pipeline.Validationf("no text extracted from reference")
	}
	return s.structurer.Structure(result.Text, s.cfg.DefaultTotalMarks), nil
}

// Get retrieves a reference by its ID.
func (s *ReferenceService) Get(ctx context.Context, id uuid.UUID) (*model.ReferenceKey, error) {
	return s.refRepo.Get(ctx, id)
}

// List retrieves references newest first, optionally by exam name.
func (s *ReferenceService) List(ctx context.Context, examName string, limit int) ([]model.ReferenceKey, error) {
	return s.refRepo.List(ctx, examName, limit)
}

// SetActive activates or deactivates a reference. Only processed
// references can be activated; activation is exclusive per exam name.
func (s *ReferenceService) SetActive(ctx context.Context, id uuid.UUID, active bool) (*model.ReferenceKey, error) {
	if active {
		ref, err := s.refRepo.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if ref.Status != model.ReferenceStatusProcessed {
			return nil, pipeline.Validationf("reference %s is not processed yet (status %s)", id, ref.Status)
		}
	}
	return s.refRepo.SetActive(ctx, id, active)
}

// Delete removes a reference and its stored pages.
func (s *ReferenceService) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	ref, err := s.refRepo.Get(ctx, id)
	if err != nil {
		return false, err
	}

	deleted, err := s.refRepo.Delete(ctx, id)
	if err != nil || !deleted {
		return deleted, err
	}

	for _, p := range ref.PagePaths {
		os.Remove(p)
	}
	return true, nil
}
