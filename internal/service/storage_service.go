package service

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/gradelab/scriptgrade-backend/internal/config"
)

// Sentinel errors for script uploads.
var (
	ErrUnsupportedFileType = errors.New("unsupported file type")
	ErrFileTooLarge        = errors.New("file too large")
)

// Allowed answer-script MIME types. PDFs are split into page images
// before processing; plain images are taken as single-page scripts.
var allowedMIMETypes = map[string]string{
	"application/pdf": ".pdf",
	"image/jpeg":      ".jpg",
	"image/png":       ".png",
	"image/webp":      ".webp",
	"image/tiff":      ".tiff",
}

// StorageService persists uploaded answer scripts to local storage.
type StorageService struct {
	cfg *config.Config
}

// NewStorageService creates a new StorageService.
func NewStorageService(cfg *config.Config) *StorageService {
	return &StorageService{cfg: cfg}
}

// SaveUpload saves an uploaded script to local storage with a UUID
// filename and returns the absolute path of the saved file.
func (s *StorageService) SaveUpload(file multipart.File, header *multipart.FileHeader) (string, error) {
	contentType := header.Header.Get("Content-Type")
	ext, ok := allowedMIMETypes[contentType]
	if !ok {
		return "", fmt.Errorf("%w: %s (allowed: %s)",
			ErrUnsupportedFileType, contentType, strings.Join(allowedTypes(), ", "))
	}

	if header.Size > s.cfg.MaxUploadBytes {
		return "", fmt.Errorf("%w: %d bytes (max: %d)", ErrFileTooLarge, header.Size, s.cfg.MaxUploadBytes)
	}

	if err := os.MkdirAll(s.cfg.UploadDir, 0o755); err != nil {
		return "", fmt.Errorf("create upload dir: %w", err)
	}

	filename := uuid.New().String() + ext
	destPath := filepath.Join(s.cfg.UploadDir, filename)

	dst, err := os.Create(destPath)
	if err != nil {
		return "", fmt.Errorf("create file: %w", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, file); err != nil {
		return "", fmt.Errorf("write file: %w", err)
	}

	return destPath, nil
}

// PageDir returns the directory where a document's split pages live.
func (s *StorageService) PageDir(documentPath string) string {
	base := strings.TrimSuffix(filepath.Base(documentPath), filepath.Ext(documentPath))
	return filepath.Join(s.cfg.UploadDir, "pages", base)
}

func allowedTypes() []string {
	types := make([]string, 0, len(allowedMIMETypes))
	for t := range allowedMIMETypes {
		types = append(types, t)
	}
	return types
}
