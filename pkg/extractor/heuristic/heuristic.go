// Package heuristic provides a local, dependency-free Analyzer. It is the
// default for development and the fallback story when no LLM-backed
// extractor is configured: crude, fast, and deterministic.
package heuristic

import (
	"context"
	"sort"
	"strings"
	"unicode"

	"github.com/omnii-ai/brainmem/pkg/brain"
	"github.com/omnii-ai/brainmem/pkg/extractor"
)

// Analyzer implements extractor.Analyzer with word-level heuristics.
type Analyzer struct{}

// NewAnalyzer creates a heuristic analyzer.
func NewAnalyzer() *Analyzer {
	return &Analyzer{}
}

var positiveWords = map[string]bool{
	"great": true, "good": true, "love": true, "thanks": true, "awesome": true,
	"perfect": true, "happy": true, "excellent": true, "yes": true,
}

var negativeWords = map[string]bool{
	"bad": true, "hate": true, "terrible": true, "awful": true, "angry": true,
	"no": true, "problem": true, "wrong": true, "broken": true,
}

var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true, "but": true,
	"is": true, "are": true, "was": true, "were": true, "be": true, "to": true,
	"of": true, "in": true, "on": true, "at": true, "for": true, "with": true,
	"it": true, "this": true, "that": true, "i": true, "you": true, "we": true,
	"my": true, "me": true, "your": true, "can": true, "do": true, "will": true,
	"have": true, "has": true, "not": true, "so": true, "just": true,
	"about": true, "what": true, "when": true, "how": true, "please": true,
}

func (a *Analyzer) Analyze(_ context.Context, text string) (*extractor.Analysis, error) {
	words := tokenize(text)

	analysis := &extractor.Analysis{
		Intent:         classifyIntent(text, words),
		Sentiment:      scoreSentiment(words),
		ImportanceHint: ImportanceFromLength(text),
		Concepts:       surfaceConcepts(text),
	}

	return analysis, nil
}

// ImportanceFromLength maps content length onto a modest importance score.
// This is also the degraded-mode importance used when an analyzer fails.
func ImportanceFromLength(text string) float64 {
	const saturation = 280.0 // roughly two SMS segments
	return brain.ClampUnit(0.1 + 0.5*float64(len(text))/saturation)
}

func classifyIntent(text string, words []string) string {
	trimmed := strings.TrimSpace(text)
	if strings.HasSuffix(trimmed, "?") {
		return "question"
	}

	for _, w := range words {
		switch w {
		case "remind", "schedule", "tomorrow", "tonight", "later":
			return "schedule"
		case "please", "can", "could", "would", "need":
			return "request"
		}
	}

	return "statement"
}

func scoreSentiment(words []string) float64 {
	score := 0.0
	for _, w := range words {
		if positiveWords[w] {
			score += 0.25
		}
		if negativeWords[w] {
			score -= 0.25
		}
	}

	switch {
	case score > 1:
		return 1
	case score < -1:
		return -1
	}
	return score
}

// surfaceConcepts treats capitalized words and repeated non-stopwords as
// concept candidates, with confidence rising with frequency.
func surfaceConcepts(text string) []extractor.ConceptCandidate {
	freq := make(map[string]int)
	capitalized := make(map[string]bool)

	for _, raw := range strings.Fields(text) {
		cleaned := strings.TrimFunc(raw, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsNumber(r)
		})
		if len(cleaned) < 3 {
			continue
		}

		lower := strings.ToLower(cleaned)
		if stopWords[lower] {
			continue
		}

		freq[lower]++
		if unicode.IsUpper([]rune(cleaned)[0]) {
			capitalized[lower] = true
		}
	}

	candidates := make([]extractor.ConceptCandidate, 0, len(freq))
	for name, count := range freq {
		confidence := 0.4 + 0.15*float64(count-1)
		if capitalized[name] {
			confidence += 0.2
		}
		if confidence < 0.5 && !capitalized[name] && count < 2 {
			// Single lowercase occurrences are too noisy to keep.
			continue
		}
		candidates = append(candidates, extractor.ConceptCandidate{
			Name:       name,
			Confidence: brain.ClampUnit(confidence),
		})
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Confidence != candidates[j].Confidence {
			return candidates[i].Confidence > candidates[j].Confidence
		}
		return candidates[i].Name < candidates[j].Name
	})

	const maxConcepts = 8
	if len(candidates) > maxConcepts {
		candidates = candidates[:maxConcepts]
	}

	return candidates
}

func tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	return fields
}
