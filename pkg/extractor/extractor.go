// Package extractor defines the concept/intent extraction contract. The
// engine consumes structured analysis output; how it is produced (an LLM
// call, a local heuristic) is an implementation concern of the Analyzer.
//
// Extraction is best-effort: when an Analyzer fails, ingestion
// degrades to a content-length importance heuristic and proceeds without
// intent, sentiment, or concepts. It never blocks a message from being
// persisted.
package extractor

import "context"

// ConceptCandidate is one concept surfaced from a piece of text.
type ConceptCandidate struct {
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence"`
}

// Analysis is the structured output of analyzing one message's text.
type Analysis struct {
	Intent         string             `json:"intent"`
	Sentiment      float64            `json:"sentiment"`
	ImportanceHint float64            `json:"importance_hint"`
	Concepts       []ConceptCandidate `json:"concepts"`
}

// Analyzer derives intent, sentiment, importance, and candidate concepts
// from raw text.
type Analyzer interface {
	Analyze(ctx context.Context, text string) (*Analysis, error)
}
