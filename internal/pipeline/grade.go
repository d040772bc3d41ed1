package pipeline

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/gradelab/scriptgrade-backend/internal/model"
)

// GradeBand maps a minimum percentage to a letter grade.
type GradeBand struct {
	MinPercentage float64
	Letter        string
}

// DefaultGradeBands is the 5-band scheme used throughout: >=90 A,
// >=80 B, >=70 C, >=60 D, else F. Bands must be sorted by descending
// MinPercentage with a catch-all zero band last.
var DefaultGradeBands = []GradeBand{
	{90, "A"},
	{80, "B"},
	{70, "C"},
	{60, "D"},
	{0, "F"},
}

// ParseGradeBands parses a banding spec of the form
// "A:90,B:80,C:70,D:60,F:0" (letter:minimum percentage). Bands are
// sorted by descending minimum; the lowest band is the catch-all. An
// empty spec returns nil, which resolves to DefaultGradeBands.
func ParseGradeBands(spec string) ([]GradeBand, error) {
	if strings.TrimSpace(spec) == "" {
		return nil, nil
	}

	var bands []GradeBand
	for _, part := range strings.Split(spec, ",") {
		letter, min, ok := strings.Cut(strings.TrimSpace(part), ":")
		letter = strings.TrimSpace(letter)
		if !ok || letter == "" {
			return nil, fmt.Errorf("invalid grade band %q", part)
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(min), 64)
		if err != nil || v < 0 || v > 100 {
			return nil, fmt.Errorf("invalid minimum in grade band %q", part)
		}
		bands = append(bands, GradeBand{MinPercentage: v, Letter: letter})
	}

	sort.Slice(bands, func(i, j int) bool {
		return bands[i].MinPercentage > bands[j].MinPercentage
	})
	return bands, nil
}

// LetterGrade resolves a percentage against a banding table.
func LetterGrade(percentage float64, bands []GradeBand) string {
	if len(bands) == 0 {
		bands = DefaultGradeBands
	}
	for _, b := range bands {
		if percentage >= b.MinPercentage {
			return b.Letter
		}
	}
	return bands[len(bands)-1].Letter
}

// Totals is the aggregate score of an answer record set.
type Totals struct {
	Obtained   float64
	Possible   float64
	Percentage float64
}

// Aggregate recomputes totals from the entire record set. It is the
// single source of truth for both grading and review so the two
// recomputation paths cannot drift apart.
func Aggregate(answers []model.AnswerRecord) Totals {
	var t Totals
	for _, a := range answers {
		t.Obtained += a.MarksObtained
		t.Possible += a.MaxMarks
	}
	if t.Possible > 0 {
		t.Percentage = round2(100 * t.Obtained / t.Possible)
	}
	return t
}

// round2 rounds to two decimal places.
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// round1 rounds to one decimal place, used for per-question mark
// allocation.
func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
