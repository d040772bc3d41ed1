package provider

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
)

// TesseractExtractor is the fast extraction engine. It shells out to
// the tesseract binary in TSV mode so a per-word confidence is
// available alongside the recognized text.
type TesseractExtractor struct {
	lang string
	log  zerolog.Logger
}

// NewTesseractExtractor creates the fast engine. lang defaults to eng.
func NewTesseractExtractor(lang string, log zerolog.Logger) *TesseractExtractor {
	if lang == "" {
		lang = "eng"
	}
	return &TesseractExtractor{
		lang: lang,
		log:  log.With().Str("component", "tesseract").Logger(),
	}
}

// Name identifies the engine in logs and execution records.
func (t *TesseractExtractor) Name() string { return "tesseract" }

// Extract runs OCR over one page image and averages tesseract's
// per-word confidence into a page score.
func (t *TesseractExtractor) Extract(ctx context.Context, pagePath string) (string, float64, map[string]string, error) {
	cmd := exec.CommandContext(ctx, "tesseract", pagePath, "stdout", "-l", t.lang, "tsv")
	out, err := cmd.Output()
	if err != nil {
		return "", 0, nil, fmt.Errorf("tesseract: %w", err)
	}

	text, confidence, words := parseTSV(string(out))
	if strings.TrimSpace(text) == "" {
		t.log.Warn().Str("page", pagePath).Msg("no text recognized on page")
	}

	meta := map[string]string{
		"engine": t.Name(),
		"lang":   t.lang,
		"words":  strconv.Itoa(words),
	}
	return text, confidence, meta, nil
}

// parseTSV rebuilds page text from tesseract TSV output and averages
// the word-level confidences. Rows with conf -1 are layout markers and
// carry no text.
func parseTSV(tsv string) (string, float64, int) {
	var (
		b        strings.Builder
		confSum  float64
		words    int
		lastLine string
	)

	for i, row := range strings.Split(tsv, "\n") {
		if i == 0 {
			continue // header row
		}
		cols := strings.Split(row, "\t")
		if len(cols) < 12 {
			continue
		}

		conf, err := strconv.ParseFloat(cols[10], 64)
		if err != nil || conf < 0 {
			continue
		}
		word := strings.TrimSpace(cols[11])
		if word == "" {
			continue
		}

		// line_num resets per paragraph, so key on block:par:line.
		lineKey := cols[2] + ":" + cols[3] + ":" + cols[4]
		if words > 0 {
			if lineKey != lastLine {
				b.WriteByte('\n')
			} else {
				b.WriteByte(' ')
			}
		}
		lastLine = lineKey

		b.WriteString(word)
		confSum += conf
		words++
	}

	if words == 0 {
		return "", 0, 0
	}
	return b.String(), confSum / float64(words), words
}
