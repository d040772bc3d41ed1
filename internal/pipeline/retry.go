package pipeline

// DefaultConfidenceThreshold is the page-averaged confidence below which
// extraction is retried with the accurate engine.
const DefaultConfidenceThreshold = 80.0

// RetryPolicy decides whether a low-confidence extraction should be
// re-run in full with the accurate engine. The fallback is single and
// deterministic: the accurate result is adopted unconditionally, never
// compared against the first attempt.
type RetryPolicy struct {
	Threshold float64
}

// NewRetryPolicy creates a policy; threshold <= 0 uses the default.
func NewRetryPolicy(threshold float64) RetryPolicy {
	if threshold <= 0 {
		threshold = DefaultConfidenceThreshold
	}
	return RetryPolicy{Threshold: threshold}
}

// ShouldRetry reports whether every page must be re-extracted with the
// accurate engine. The decision is made once, on the page-averaged
// confidence; when triggered it covers the whole document, not only the
// low-confidence pages.
func (p RetryPolicy) ShouldRetry(avgConfidence float64, accurateUsed bool) bool {
	return avgConfidence < p.Threshold && !accurateUsed
}
