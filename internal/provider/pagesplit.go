package provider

import (
	"context"
	"fmt"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/gen2brain/go-fitz"
	"github.com/rs/zerolog"
)

// FitzSplitter turns uploaded documents into ordered page images. PDFs
// are rendered page by page through MuPDF; plain images pass through as
// a single-page document.
type FitzSplitter struct {
	log zerolog.Logger
}

// NewFitzSplitter creates a FitzSplitter.
func NewFitzSplitter(log zerolog.Logger) *FitzSplitter {
	return &FitzSplitter{log: log.With().Str("component", "splitter").Logger()}
}

// Split renders each page of sourcePath into a PNG under outDir and
// returns the paths in page order.
func (s *FitzSplitter) Split(ctx context.Context, sourcePath, outDir string) ([]string, error) {
	if !strings.EqualFold(filepath.Ext(sourcePath), ".pdf") {
		return []string{sourcePath}, nil
	}

	doc, err := fitz.New(sourcePath)
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	defer doc.Close()

	if doc.NumPage() == 0 {
		return nil, fmt.Errorf("pdf has no pages")
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("create page dir: %w", err)
	}

	base := strings.TrimSuffix(filepath.Base(sourcePath), filepath.Ext(sourcePath))
	paths := make([]string, 0, doc.NumPage())

	for n := 0; n < doc.NumPage(); n++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		img, err := doc.Image(n)
		if err != nil {
			return nil, fmt.Errorf("page %d: render: %w", n+1, err)
		}

		path := filepath.Join(outDir, fmt.Sprintf("%s-page-%03d.png", base, n+1))
		f, err := os.Create(path)
		if err != nil {
			return nil, fmt.Errorf("page %d: create: %w", n+1, err)
		}
		if err := png.Encode(f, img); err != nil {
			f.Close()
			return nil, fmt.Errorf("page %d: encode: %w", n+1, err)
		}
		if err := f.Close(); err != nil {
			return nil, fmt.Errorf("page %d: close: %w", n+1, err)
		}
		paths = append(paths, path)
	}

	s.log.Info().
		Str("source", filepath.Base(sourcePath)).
		Int("pages", len(paths)).
		Msg("document split into pages")
	return paths, nil
}
