package provider

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseGradeResponse(t *testing.T) {
	raw := `MARKS: 7.5
IS_CORRECT: true
EXPLANATION: Mostly right, one term missing.
SUGGESTION: Define osmosis precisely.
SUGGESTION: Mention the membrane.`

	result, err := parseGradeResponse(raw, 10)
	require.NoError(t, err)

	assert.Equal(t, 7.5, result.Marks)
	assert.True(t, result.IsCorrect)
	assert.Equal(t, "Mostly right, one term missing.", result.Explanation)
	assert.Equal(t, []string{"Define osmosis precisely.", "Mention the membrane."}, result.Suggestions)
}

func TestParseGradeResponseClampsMarks(t *testing.T) {
	over, err := parseGradeResponse("MARKS: 15", 10)
	require.NoError(t, err)
	assert.Equal(t, 10.0, over.Marks)

	under, err := parseGradeResponse("MARKS: -2", 10)
	require.NoError(t, err)
	assert.Equal(t, 0.0, under.Marks)
}

func TestParseGradeResponseCapsSuggestions(t *testing.T) {
	raw := `MARKS: 5
SUGGESTION: a
SUGGESTION: b
SUGGESTION: c
SUGGESTION: d`

	result, err := parseGradeResponse(raw, 10)
	require.NoError(t, err)
	assert.Len(t, result.Suggestions, 3)
}

func TestParseGradeResponseSurvivesPadding(t *testing.T) {
	raw := `Sure, here is the grading:

  MARKS: 4
  IS_CORRECT: FALSE
  EXPLANATION: The answer names the wrong capital.

Hope this helps!`

	result, err := parseGradeResponse(raw, 10)
	require.NoError(t, err)

	assert.Equal(t, 4.0, result.Marks)
	assert.False(t, result.IsCorrect)
	assert.Equal(t, "The answer names the wrong capital.", result.Explanation)
}

func TestParseGradeResponseMissingMarks(t *testing.T) {
	_, err := parseGradeResponse("IS_CORRECT: true", 10)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MARKS")
}

func TestParseGradeResponseUnparseableMarks(t *testing.T) {
	_, err := parseGradeResponse("MARKS: seven", 10)
	require.Error(t, err)
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"bare object", `{"overall": "good"}`, `{"overall": "good"}`},
		{
			"fenced json",
			"```json\n{\"overall\": \"good\"}\n```",
			`{"overall": "good"}`,
		},
		{
			"prose around object",
			`Here you go: {"overall": "good"} thanks!`,
			`{"overall": "good"}`,
		},
		{"no object at all", "plain text", "plain text"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, extractJSON(tt.raw))
		})
	}
}

func TestGjsonStrings(t *testing.T) {
	body := `{"strengths": ["clear working", "  ", "good structure"]}`

	assert.Equal(t, []string{"clear working", "good structure"}, gjsonStrings(body, "strengths"))
	assert.Nil(t, gjsonStrings(body, "missing"))
}

func TestBackoffDelay(t *testing.T) {
	assert.Equal(t, geminiBaseDelay, backoffDelay(1))
	assert.Equal(t, 2*geminiBaseDelay, backoffDelay(2))
	assert.Equal(t, geminiMaxDelay, backoffDelay(10), "delay is capped")
}
