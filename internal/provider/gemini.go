package provider

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
	"google.golang.org/genai"
)

const (
	geminiMaxRetries = 3
	geminiBaseDelay  = time.Second
	geminiMaxDelay   = 30 * time.Second
	geminiTimeout    = 90 * time.Second
)

// GeminiAssessor implements both the Grader and the FeedbackComposer on
// top of the Gemini API. Calls are retried with exponential backoff on
// transient failures.
type GeminiAssessor struct {
	client *genai.Client
	model  string
	log    zerolog.Logger
}

// NewGeminiAssessor creates the assessor. model defaults to
// gemini-2.5-flash.
func NewGeminiAssessor(ctx context.Context, apiKey, model string, log zerolog.Logger) (*GeminiAssessor, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key not set")
	}
	if model == "" {
		model = "gemini-2.5-flash"
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}

	return &GeminiAssessor{
		client: client,
		model:  model,
		log:    log.With().Str("component", "gemini").Logger(),
	}, nil
}

// Grade scores one answer. The model is instructed to answer in a fixed
// line format so the verdict survives conversational padding.
func (g *GeminiAssessor) Grade(ctx context.Context, req GradeRequest) (GradeResult, error) {
	prompt := buildGradePrompt(req)

	raw, err := g.generate(ctx, prompt)
	if err != nil {
		return GradeResult{}, err
	}

	result, err := parseGradeResponse(raw, req.MaxMarks)
	if err != nil {
		return GradeResult{}, fmt.Errorf("question %d: %w", req.QuestionNumber, err)
	}
	return result, nil
}

// Compose writes the whole-script narrative feedback. The model answers
// in JSON, parsed defensively since models occasionally wrap output in
// code fences or add prose around it.
func (g *GeminiAssessor) Compose(ctx context.Context, req FeedbackRequest) (FeedbackResult, error) {
	prompt := buildFeedbackPrompt(req)

	raw, err := g.generate(ctx, prompt)
	if err != nil {
		return FeedbackResult{}, err
	}

	body := extractJSON(raw)
	if !gjson.Valid(body) {
		return FeedbackResult{}, fmt.Errorf("feedback response is not valid JSON")
	}

	result := FeedbackResult{
		Overall:         gjson.Get(body, "overall").String(),
		Strengths:       gjsonStrings(body, "strengths"),
		Improvements:    gjsonStrings(body, "improvements"),
		Recommendations: gjsonStrings(body, "recommendations"),
		Grade:           req.Grade,
	}
	if result.Overall == "" {
		return FeedbackResult{}, fmt.Errorf("feedback response missing overall summary")
	}
	return result, nil
}

// generate runs one prompt with retry and backoff on transient errors.
func (g *GeminiAssessor) generate(ctx context.Context, prompt string) (string, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, geminiTimeout)
	defer cancel()

	cfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(0.1)),
	}

	var lastErr error
	for attempt := 0; attempt <= geminiMaxRetries; attempt++ {
		if attempt > 0 {
			delay := backoffDelay(attempt)
			g.log.Warn().
				Int("attempt", attempt).
				Dur("delay", delay).
				Err(lastErr).
				Msg("retrying gemini call")
			select {
			case <-time.After(delay):
			case <-timeoutCtx.Done():
				return "", fmt.Errorf("gemini retry: %w", timeoutCtx.Err())
			}
		}

		resp, err := g.client.Models.GenerateContent(timeoutCtx, g.model, genai.Text(prompt), cfg)
		if err == nil {
			if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil ||
				len(resp.Candidates[0].Content.Parts) == 0 {
				return "", fmt.Errorf("gemini returned an empty response")
			}
			return resp.Text(), nil
		}

		lastErr = err
		if !retryableGeminiError(err) {
			return "", fmt.Errorf("gemini: %w", err)
		}
	}

	return "", fmt.Errorf("gemini: max retries exceeded: %w", lastErr)
}

func backoffDelay(attempt int) time.Duration {
	delay := geminiBaseDelay * time.Duration(math.Pow(2, float64(attempt-1)))
	if delay > geminiMaxDelay {
		delay = geminiMaxDelay
	}
	return delay
}

func retryableGeminiError(err error) bool {
	msg := err.Error()
	if strings.Contains(msg, "context canceled") ||
		strings.Contains(msg, "context deadline exceeded") {
		return false
	}
	if apiErr, ok := err.(*genai.APIError); ok {
		switch apiErr.Code {
		case 429, 500, 502, 503, 504:
			return true
		default:
			return false
		}
	}
	return strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "EOF")
}

func buildGradePrompt(req GradeRequest) string {
	var b strings.Builder
	b.WriteString("You are grading one exam answer. Respond ONLY with these lines:\n")
	b.WriteString("MARKS: <number between 0 and the maximum>\n")
	b.WriteString("IS_CORRECT: <true or false>\n")
	b.WriteString("EXPLANATION: <one or two sentences>\n")
	b.WriteString("SUGGESTION: <one improvement tip, optional, may repeat up to 3 times>\n\n")
	fmt.Fprintf(&b, "Question %d (%s, max %.1f marks): %s\n",
		req.QuestionNumber, req.QuestionType, req.MaxMarks, req.QuestionText)
	fmt.Fprintf(&b, "Student answer: %s\n", req.StudentAnswer)
	if req.ExpectedAnswer != "" {
		fmt.Fprintf(&b, "Expected answer: %s\n", req.ExpectedAnswer)
		b.WriteString("Grade against the expected answer, allowing equivalent phrasing.\n")
	} else {
		b.WriteString("No answer key is available. Grade on correctness and completeness alone.\n")
	}
	return b.String()
}

func buildFeedbackPrompt(req FeedbackRequest) string {
	var b strings.Builder
	b.WriteString("Write feedback for a student's graded exam. Respond ONLY with JSON:\n")
	b.WriteString(`{"overall": "...", "strengths": ["..."], "improvements": ["..."], "recommendations": ["..."]}` + "\n\n")
	fmt.Fprintf(&b, "Student: %s, Subject: %s, Score: %.2f%%, Grade: %s\n",
		req.StudentName, req.Subject, req.Percentage, req.Grade)
	b.WriteString("Graded answers:\n")
	for _, a := range req.Answers {
		fmt.Fprintf(&b, "Q%d (%.1f/%.1f): %s\n",
			a.QuestionNumber, a.MarksObtained, a.MaxMarks, a.Explanation)
	}
	b.WriteString("\nKeep it encouraging and specific. At most 4 items per list.\n")
	return b.String()
}

// parseGradeResponse reads the fixed MARKS/IS_CORRECT line format.
// Marks are clamped into [0, maxMarks].
func parseGradeResponse(raw string, maxMarks float64) (GradeResult, error) {
	var (
		result    GradeResult
		haveMarks bool
	)

	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "MARKS:"):
			v := strings.TrimSpace(strings.TrimPrefix(line, "MARKS:"))
			marks, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return result, fmt.Errorf("unparseable marks %q", v)
			}
			result.Marks = math.Min(math.Max(marks, 0), maxMarks)
			haveMarks = true
		case strings.HasPrefix(line, "IS_CORRECT:"):
			v := strings.TrimSpace(strings.TrimPrefix(line, "IS_CORRECT:"))
			result.IsCorrect = strings.EqualFold(v, "true")
		case strings.HasPrefix(line, "EXPLANATION:"):
			result.Explanation = strings.TrimSpace(strings.TrimPrefix(line, "EXPLANATION:"))
		case strings.HasPrefix(line, "SUGGESTION:"):
			s := strings.TrimSpace(strings.TrimPrefix(line, "SUGGESTION:"))
			if s != "" && len(result.Suggestions) < 3 {
				result.Suggestions = append(result.Suggestions, s)
			}
		}
	}

	if !haveMarks {
		return result, fmt.Errorf("response missing MARKS line")
	}
	return result, nil
}

// extractJSON strips markdown code fences and surrounding prose so the
// first JSON object in the response can be parsed.
func extractJSON(raw string) string {
	raw = strings.TrimSpace(raw)
	if i := strings.Index(raw, "```"); i >= 0 {
		raw = raw[i+3:]
		raw = strings.TrimPrefix(raw, "json")
		if j := strings.Index(raw, "```"); j >= 0 {
			raw = raw[:j]
		}
	}
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start >= 0 && end > start {
		return raw[start : end+1]
	}
	return strings.TrimSpace(raw)
}

func gjsonStrings(body, path string) []string {
	var out []string
	for _, v := range gjson.Get(body, path).Array() {
		if s := strings.TrimSpace(v.String()); s != "" {
			out = append(out, s)
		}
	}
	return out
}
