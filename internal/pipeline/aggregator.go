package pipeline

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/gradelab/scriptgrade-backend/internal/provider"
)

// PageBreakMarker separates page texts in the joined document. The
// structurer treats the joined text as one continuous document, so
// question numbering is assumed continuous across page boundaries.
const PageBreakMarker = "\n\n--- PAGE BREAK ---\n\n"

// Aggregator fans extraction out over the pages of a document and joins
// the results strictly in source page order.
type Aggregator struct {
	log zerolog.Logger
}

// NewAggregator creates an Aggregator.
func NewAggregator(log zerolog.Logger) *Aggregator {
	return &Aggregator{log: log.With().Str("component", "aggregator").Logger()}
}

// ExtractResult is the joined outcome of a multi-page extraction pass.
type ExtractResult struct {
	Text          string
	AvgConfidence float64
	Engine        string
}

// PreprocessPages runs the preprocessor over every page concurrently and
// returns the processed paths in source page order. An empty page list
// is an error, not a silent empty success.
func (a *Aggregator) PreprocessPages(ctx context.Context, pre provider.Preprocessor, pages []string) ([]string, error) {
	if len(pages) == 0 {
		return nil, Validationf("document has no pages")
	}

	processed := make([]string, len(pages))
	errs := make([]error, len(pages))

	var wg sync.WaitGroup
	for i, page := range pages {
		wg.Add(1)
		go func(i int, page string) {
			defer wg.Done()
			processed[i], errs[i] = pre.Preprocess(ctx, page)
		}(i, page)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			return nil, &CapabilityError{Provider: "preprocessor", Err: pageError(i, err)}
		}
	}
	return processed, nil
}

// ExtractPages runs the given engine over every page concurrently, joins
// the texts by page index (never by completion order) and averages the
// confidence over the page count.
func (a *Aggregator) ExtractPages(ctx context.Context, engine provider.VisionExtractor, pages []string) (ExtractResult, error) {
	if len(pages) == 0 {
		return ExtractResult{}, Validationf("document has no pages")
	}

	texts := make([]string, len(pages))
	confidences := make([]float64, len(pages))
	errs := make([]error, len(pages))

	var wg sync.WaitGroup
	for i, page := range pages {
		wg.Add(1)
		go func(i int, page string) {
			defer wg.Done()
			texts[i], confidences[i], _, errs[i] = engine.Extract(ctx, page)
		}(i, page)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			return ExtractResult{}, &CapabilityError{Provider: engine.Name(), Err: pageError(i, err)}
		}
	}

	var total float64
	for _, c := range confidences {
		total += c
	}

	result := ExtractResult{
		Text:          strings.Join(texts, PageBreakMarker),
		AvgConfidence: total / float64(len(pages)),
		Engine:        engine.Name(),
	}

	a.log.Info().
		Int("pages", len(pages)).
		Str("engine", result.Engine).
		Float64("avg_confidence", result.AvgConfidence).
		Msg("extraction pass completed")

	return result, nil
}

func pageError(i int, err error) error {
	return fmt.Errorf("page %d: %w", i+1, err)
}
