package provider

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	_ "image/jpeg"

	"github.com/rs/zerolog"
)

// GrayscalePreprocessor normalizes page images before OCR: grayscale
// conversion plus linear contrast stretching across the observed
// luminance range. The output is always PNG.
type GrayscalePreprocessor struct {
	outDir string
	log    zerolog.Logger
}

// NewGrayscalePreprocessor writes processed pages under outDir.
func NewGrayscalePreprocessor(outDir string, log zerolog.Logger) *GrayscalePreprocessor {
	return &GrayscalePreprocessor{
		outDir: outDir,
		log:    log.With().Str("component", "preprocessor").Logger(),
	}
}

// Preprocess normalizes one page image and returns the processed path.
func (p *GrayscalePreprocessor) Preprocess(ctx context.Context, pagePath string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	f, err := os.Open(pagePath)
	if err != nil {
		return "", fmt.Errorf("open page: %w", err)
	}
	src, _, err := image.Decode(f)
	f.Close()
	if err != nil {
		return "", fmt.Errorf("decode page: %w", err)
	}

	out := normalize(src)

	if err := os.MkdirAll(p.outDir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	base := strings.TrimSuffix(filepath.Base(pagePath), filepath.Ext(pagePath))
	outPath := filepath.Join(p.outDir, base+"-processed.png")

	dst, err := os.Create(outPath)
	if err != nil {
		return "", fmt.Errorf("create processed page: %w", err)
	}
	defer dst.Close()
	if err := png.Encode(dst, out); err != nil {
		return "", fmt.Errorf("encode processed page: %w", err)
	}

	return outPath, nil
}

// normalize converts to grayscale and stretches contrast so the darkest
// pixel maps to 0 and the brightest to 255.
func normalize(src image.Image) *image.Gray {
	bounds := src.Bounds()
	gray := image.NewGray(bounds)

	minV, maxV := uint8(255), uint8(0)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			g := color.GrayModel.Convert(src.At(x, y)).(color.Gray)
			gray.SetGray(x, y, g)
			if g.Y < minV {
				minV = g.Y
			}
			if g.Y > maxV {
				maxV = g.Y
			}
		}
	}

	if maxV <= minV {
		return gray // flat image, nothing to stretch
	}

	span := float64(maxV - minV)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			v := gray.GrayAt(x, y).Y
			stretched := uint8(float64(v-minV) / span * 255)
			gray.SetGray(x, y, color.Gray{Y: stretched})
		}
	}
	return gray
}
