package evaluator

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ErrInvalidOutput matches every *ParseError.
var ErrInvalidOutput = errors.New("invalid evaluation output")

// Score bounds.
const (
	MaxOverallScore   = 100
	MaxDimensionScore = 10
)

var (
	overallPattern   = regexp.MustCompile(`(?i)overall\s*score\s*[=:]\s*(-?\d+)`)
	dimensionPattern = regexp.MustCompile(`(?i)dimension\s*scores\s*[=:]\s*\[([^\]]*)\]`)
)

// Output is the structured evaluation of one artifact.
type Output struct {
	PK              string `json:"pk"`
	Kind            string `json:"kind"`
	OverallScore    int    `json:"overall_score"`
	DimensionScores []int  `json:"dimension_scores"`
}

// ParseError reports a model response that does not follow the score format.
type ParseError struct {
	Reason string
	Raw    string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("invalid evaluation output: %s", e.Reason)
}

// Is makes errors.Is(err, ErrInvalidOutput) succeed.
func (e *ParseError) Is(target error) bool {
	return target == ErrInvalidOutput
}

// ParseOutput extracts scores from a response such as
// "Overall Score=86. Dimension Scores=[9, 8, 9]".
// A positive dims requires exactly that many dimension scores.
func ParseOutput(raw string, dims int) (Output, error) {
	m := overallPattern.FindStringSubmatch(raw)
	if m == nil {
		return Output{}, &ParseError{Reason: "missing overall score", Raw: raw}
	}
	overall, err := strconv.Atoi(m[1])
	if err != nil {
		return Output{}, &ParseError{Reason: fmt.Sprintf("overall score %q is not an integer", m[1]), Raw: raw}
	}
	if overall < 0 || overall > MaxOverallScore {
		return Output{}, &ParseError{Reason: fmt.Sprintf("overall score %d outside [0,%d]", overall, MaxOverallScore), Raw: raw}
	}

	d := dimensionPattern.FindStringSubmatch(raw)
	if d == nil {
		return Output{}, &ParseError{Reason: "missing dimension scores", Raw: raw}
	}
	var scores []int
	for _, field := range strings.Split(d[1], ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		v, err := strconv.Atoi(field)
		if err != nil {
			return Output{}, &ParseError{Reason: fmt.Sprintf("dimension score %q is not an integer", field), Raw: raw}
		}
		if v < 0 || v > MaxDimensionScore {
			return Output{}, &ParseError{Reason: fmt.Sprintf("dimension score %d outside [0,%d]", v, MaxDimensionScore), Raw: raw}
		}
		scores = append(scores, v)
	}
	if len(scores) == 0 {
		return Output{}, &ParseError{Reason: "empty dimension scores", Raw: raw}
	}
	if dims > 0 && len(scores) != dims {
		return Output{}, &ParseError{Reason: fmt.Sprintf("expected %d dimension scores, got %d", dims, len(scores)), Raw: raw}
	}

	return Output{OverallScore: overall, DimensionScores: scores}, nil
}
