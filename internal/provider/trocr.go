package provider

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
)

// TrOCRExtractor is the accurate extraction engine. It posts pages to a
// transformer OCR sidecar over HTTP and is only invoked when the fast
// engine's confidence falls below the retry threshold.
type TrOCRExtractor struct {
	client *resty.Client
	log    zerolog.Logger
}

// NewTrOCRExtractor creates the accurate engine against the sidecar
// base URL, e.g. http://localhost:8601.
func NewTrOCRExtractor(baseURL string, timeout time.Duration, log zerolog.Logger) *TrOCRExtractor {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetRetryCount(2).
		SetRetryWaitTime(2 * time.Second)

	return &TrOCRExtractor{
		client: client,
		log:    log.With().Str("component", "trocr").Logger(),
	}
}

// Name identifies the engine in logs and execution records.
func (t *TrOCRExtractor) Name() string { return "trocr" }

// Extract sends one page image to the sidecar's /extract endpoint.
// The sidecar answers {"text": "...", "confidence": 93.1}.
func (t *TrOCRExtractor) Extract(ctx context.Context, pagePath string) (string, float64, map[string]string, error) {
	resp, err := t.client.R().
		SetContext(ctx).
		SetFile("file", pagePath).
		Post("/extract")
	if err != nil {
		return "", 0, nil, fmt.Errorf("trocr request: %w", err)
	}
	if resp.IsError() {
		return "", 0, nil, fmt.Errorf("trocr responded %d: %s", resp.StatusCode(), resp.String())
	}

	body := resp.String()
	if !gjson.Valid(body) {
		return "", 0, nil, fmt.Errorf("trocr returned invalid JSON")
	}

	text := gjson.Get(body, "text").String()
	confidence := gjson.Get(body, "confidence").Float()
	if text == "" {
		t.log.Warn().Str("page", pagePath).Msg("sidecar returned empty text")
	}

	meta := map[string]string{
		"engine": t.Name(),
		"model":  gjson.Get(body, "model").String(),
	}
	return text, confidence, meta, nil
}
