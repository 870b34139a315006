// Package artifacts provides the work-artifact stores: the paper store, the
// run-scoped progress store and the run-scoped event log.
//
// Artifacts are immutable once added. The engine routes them between stages
// without inspecting their contents.
package artifacts

import "errors"

// ErrExists is returned when an artifact with the same primary key was
// already added.
var ErrExists = errors.New("artifact already exists")

// ErrUnknownProposal is returned when a review, rebuttal or meta-review names
// a proposal that is not in the current run.
var ErrUnknownProposal = errors.New("unknown proposal")

// Kind names an artifact type. Kinds double as bucket names.
type Kind string

const (
	KindPaper      Kind = "paper"
	KindInsight    Kind = "insight"
	KindIdea       Kind = "idea"
	KindProposal   Kind = "proposal"
	KindReview     Kind = "review"
	KindRebuttal   Kind = "rebuttal"
	KindMetaReview Kind = "meta_review"
	KindEvent      Kind = "event"
)

// ProgressKinds lists the kinds kept by ProgressStore.
var ProgressKinds = []Kind{KindInsight, KindIdea, KindProposal, KindReview, KindRebuttal, KindMetaReview}

// Paper is a reference publication.
type Paper struct {
	PK        string    `json:"pk"`
	Title     string    `json:"title"`
	Abstract  string    `json:"abstract"`
	Authors   []string  `json:"authors,omitempty"`
	URL       string    `json:"url,omitempty"`
	Domain    string    `json:"domain,omitempty"`
	Embedding []float32 `json:"embedding,omitempty"`
}

// Insight is a finding extracted from papers.
type Insight struct {
	PK      string `json:"pk"`
	Content string `json:"content"`
}

// Idea is a research idea synthesized from insights.
type Idea struct {
	PK      string `json:"pk"`
	Content string `json:"content"`
}

// Proposal is a written submission.
type Proposal struct {
	PK       string `json:"pk"`
	Title    string `json:"title"`
	Abstract string `json:"abstract"`
	Content  string `json:"content,omitempty"`
}

// Review is one reviewer's assessment of a proposal.
type Review struct {
	PK         string `json:"pk"`
	ProposalPK string `json:"proposal_pk"`
	ReviewerPK string `json:"reviewer_pk"`
	Summary    string `json:"summary"`
	Strength   string `json:"strength,omitempty"`
	Weakness   string `json:"weakness,omitempty"`
	Ethical    string `json:"ethical,omitempty"`
	Score      int    `json:"score"`
}

// Rebuttal answers one review.
type Rebuttal struct {
	PK         string `json:"pk"`
	ProposalPK string `json:"proposal_pk"`
	ReviewerPK string `json:"reviewer_pk"`
	AuthorPK   string `json:"author_pk"`
	Content    string `json:"content"`
}

// MetaReview is the chair's decision on a proposal.
type MetaReview struct {
	PK         string `json:"pk"`
	ProposalPK string `json:"proposal_pk"`
	ChairPK    string `json:"chair_pk"`
	Summary    string `json:"summary"`
	Strength   string `json:"strength,omitempty"`
	Weakness   string `json:"weakness,omitempty"`
	Decision   bool   `json:"decision"`
}
