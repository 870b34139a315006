package evaluator

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Artifact kinds scored by the evaluator.
const (
	KindInsight    = "insight"
	KindIdea       = "idea"
	KindProposal   = "proposal"
	KindReview     = "review"
	KindRebuttal   = "rebuttal"
	KindMetaReview = "meta_review"
)

// criteria lists the dimensions each kind is scored on, in order.
var criteria = map[string][]string{
	KindInsight:    {"novelty", "relevance", "clarity", "depth", "accuracy", "evidence", "specificity", "coherence", "impact", "actionability"},
	KindIdea:       {"novelty", "validity", "significance", "feasibility", "clarity", "ethics", "grounding in insights", "scope", "impact", "originality"},
	KindProposal:   {"novelty", "validity", "significance", "rigour", "clarity", "ethics", "consistency with idea", "methodology", "experiments", "presentation"},
	KindReview:     {"summarization", "strengths", "weaknesses", "ethics", "constructiveness", "specificity", "fairness", "evidence", "clarity", "score calibration"},
	KindRebuttal:   {"responsiveness", "clarity", "evidence", "tone", "coverage", "accuracy", "persuasiveness", "consistency", "specificity", "concision"},
	KindMetaReview: {"summarization", "synthesis of reviews", "use of rebuttals", "fairness", "decision justification", "clarity", "ethics", "consistency", "specificity", "calibration"},
}

// Criteria returns the scoring dimensions for kind.
func Criteria(kind string) []string {
	return append([]string(nil), criteria[kind]...)
}

// section is one labelled piece of context in a prompt.
type section struct {
	label string
	value any
}

func buildPrompt(kind string, sections ...section) (string, error) {
	dims := criteria[kind]
	if dims == nil {
		return "", fmt.Errorf("unknown evaluation kind %q", kind)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Please evaluate the %s below.\n\n", strings.ReplaceAll(kind, "_", " "))
	for _, s := range sections {
		data, err := json.Marshal(s.value)
		if err != nil {
			return "", fmt.Errorf("failed to serialize %s: %w", s.label, err)
		}
		fmt.Fprintf(&b, "%s:\n%s\n\n", s.label, data)
	}

	b.WriteString("Score each dimension from 1 to 10:\n")
	for i, d := range dims {
		fmt.Fprintf(&b, "%d. %s\n", i+1, d)
	}
	b.WriteString("\nThen give an overall score from 0 to 100.\n")
	fmt.Fprintf(&b, "Answer in exactly this format: Overall Score=<int>. Dimension Scores=[<%d comma-separated ints>].", len(dims))
	return b.String(), nil
}
