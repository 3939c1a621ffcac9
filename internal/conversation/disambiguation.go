package conversation

import (
	"github.com/apichafoko/RegistroCirugias-sub001/internal/directory"
)

// DisambiguationKind classifies the outcome of matching a partial name
// against the candidate set.
type DisambiguationKind int

const (
	// DisambiguationNone means no candidate matched; the raw text is
	// accepted as a free-text value rather than blocking the conversation.
	DisambiguationNone DisambiguationKind = iota
	// DisambiguationOne means exactly one candidate matched and binds
	// directly.
	DisambiguationOne
	// DisambiguationMany means several candidates matched and a numbered
	// choice sub-dialog is needed.
	DisambiguationMany
)

// DisambiguationResult is the outcome of ResolveCandidates.
type DisambiguationResult struct {
	Kind       DisambiguationKind
	Match      directory.Candidate   // set when Kind == DisambiguationOne
	Candidates []directory.Candidate // set when Kind == DisambiguationMany
}

// ResolveCandidates owns the dialog decision around a candidate set. The
// search itself is the directory's concern; this only splits zero/one/many.
func ResolveCandidates(candidates []directory.Candidate) DisambiguationResult {
	switch len(candidates) {
	case 0:
		return DisambiguationResult{Kind: DisambiguationNone}
	case 1:
		return DisambiguationResult{Kind: DisambiguationOne, Match: candidates[0]}
	default:
		return DisambiguationResult{Kind: DisambiguationMany, Candidates: candidates}
	}
}
