// Package models defines the shared domain types for newsbrief:
// raw articles, per-article analysis results, and the assembled
// coverage report returned by the pipeline.
package models

import "time"

// Sentiment is the classification label assigned to an article summary.
type Sentiment string

const (
	SentimentPositive Sentiment = "POSITIVE"
	SentimentNeutral  Sentiment = "NEUTRAL"
	SentimentNegative Sentiment = "NEGATIVE"
)

// Valid reports whether the label is one of the three known sentiments.
func (s Sentiment) Valid() bool {
	switch s {
	case SentimentPositive, SentimentNeutral, SentimentNegative:
		return true
	}
	return false
}

// Labels returns all sentiment labels in canonical order.
func Labels() []Sentiment {
	return []Sentiment{SentimentPositive, SentimentNeutral, SentimentNegative}
}

// Article is a raw article as returned by a fetcher. Immutable once
// fetched within a request.
type Article struct {
	Title       string    `json:"title"`
	URL         string    `json:"url"`
	RawText     string    `json:"-"`
	PublishedAt time.Time `json:"published_at,omitempty"`
}

// ArticleAnalysis is the inference output for a single article. An
// article whose inference call fails produces no ArticleAnalysis.
type ArticleAnalysis struct {
	Title     string    `json:"title"`
	Summary   string    `json:"summary"`
	URL       string    `json:"url"`
	Topics    []string  `json:"topics"`
	Sentiment Sentiment `json:"sentiment"`
}

// SentimentDistribution counts analyses per sentiment label. All three
// labels are always present, zero-filled when absent.
type SentimentDistribution map[Sentiment]int

// Total returns the number of analyses counted across all labels.
func (d SentimentDistribution) Total() int {
	n := 0
	for _, c := range d {
		n += c
	}
	return n
}

// CoverageDifference is the symmetric difference of topics between one
// pair of articles.
type CoverageDifference struct {
	Comparison   string   `json:"comparison"`
	UniqueTopics []string `json:"unique_topics"`
}

// CoverageReport describes how topic coverage overlaps and diverges
// across the analyzed articles.
type CoverageReport struct {
	CommonTopics []string             `json:"common_topics"`
	UniqueTopics [][]string           `json:"unique_topics"`
	Differences  []CoverageDifference `json:"differences,omitempty"`
}

// Report is the fully assembled analysis response for one company query.
type Report struct {
	Company               string                `json:"company"`
	Articles              []ArticleAnalysis     `json:"articles"`
	SentimentDistribution SentimentDistribution `json:"sentiment_distribution"`
	CoverageAnalysis      CoverageReport        `json:"coverage_analysis"`
	Verdict               string                `json:"verdict"`
	// Audio is the base64-encoded spoken digest; nil when localization
	// failed or is disabled.
	Audio *string `json:"audio"`
}
