// Package analysis computes cross-article coverage comparisons: topic
// overlap, per-article exclusive topics, pairwise differences, and the
// aggregate sentiment distribution.
package analysis

import (
	"fmt"
	"sort"

	"github.com/seenimoa/newsbrief/pkg/models"
)

// Compare builds the coverage report and sentiment distribution for a
// set of analyzed articles. Output is deterministic: per-article
// results follow input order and all topic lists are sorted.
func Compare(analyses []models.ArticleAnalysis) (models.CoverageReport, models.SentimentDistribution) {
	sets := make([]map[string]struct{}, len(analyses))
	for i, a := range analyses {
		sets[i] = toSet(a.Topics)
	}

	report := models.CoverageReport{
		CommonTopics: sortedSlice(intersectAll(sets)),
		UniqueTopics: make([][]string, len(analyses)),
		Differences:  pairwiseDifferences(analyses, sets),
	}

	for i := range sets {
		report.UniqueTopics[i] = sortedSlice(subtract(sets[i], unionExcept(sets, i)))
	}

	return report, Distribution(analyses)
}

// Distribution counts analyses per sentiment label, zero-filled so all
// three labels are always present.
func Distribution(analyses []models.ArticleAnalysis) models.SentimentDistribution {
	dist := make(models.SentimentDistribution, 3)
	for _, label := range models.Labels() {
		dist[label] = 0
	}
	for _, a := range analyses {
		if a.Sentiment.Valid() {
			dist[a.Sentiment]++
		} else {
			dist[models.SentimentNeutral]++
		}
	}
	return dist
}

// Jaccard returns |A∩B| / |A∪B| for two topic lists. Two empty sets
// score 0 to avoid division by zero; identical non-empty sets score 1.
func Jaccard(a, b []string) float64 {
	sa, sb := toSet(a), toSet(b)
	union := len(sa)
	inter := 0
	for topic := range sb {
		if _, ok := sa[topic]; ok {
			inter++
		} else {
			union++
		}
	}
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

// Verdict states the overall coverage sentiment for a company from the
// modal distribution label. Ties resolve POSITIVE, NEUTRAL, NEGATIVE.
func Verdict(company string, dist models.SentimentDistribution) string {
	best := models.SentimentPositive
	for _, label := range models.Labels() {
		if dist[label] > dist[best] {
			best = label
		}
	}
	return fmt.Sprintf("Overall sentiment towards %s is %s.", company, lower(best))
}

// pairwiseDifferences lists the symmetric topic difference for every
// article pair, labelled "title A vs title B".
func pairwiseDifferences(analyses []models.ArticleAnalysis, sets []map[string]struct{}) []models.CoverageDifference {
	var diffs []models.CoverageDifference
	for i := 0; i < len(analyses); i++ {
		for j := i + 1; j < len(analyses); j++ {
			sym := subtract(sets[i], sets[j])
			for topic := range subtract(sets[j], sets[i]) {
				sym[topic] = struct{}{}
			}
			diffs = append(diffs, models.CoverageDifference{
				Comparison:   fmt.Sprintf("%s vs %s", analyses[i].Title, analyses[j].Title),
				UniqueTopics: sortedSlice(sym),
			})
		}
	}
	return diffs
}

// --- Set helpers ---

func toSet(topics []string) map[string]struct{} {
	s := make(map[string]struct{}, len(topics))
	for _, t := range topics {
		s[t] = struct{}{}
	}
	return s
}

// intersectAll returns the intersection of all sets. With one set the
// result is that set; with zero sets it is empty.
func intersectAll(sets []map[string]struct{}) map[string]struct{} {
	if len(sets) == 0 {
		return map[string]struct{}{}
	}
	common := make(map[string]struct{}, len(sets[0]))
	for t := range sets[0] {
		common[t] = struct{}{}
	}
	for _, s := range sets[1:] {
		for t := range common {
			if _, ok := s[t]; !ok {
				delete(common, t)
			}
		}
	}
	return common
}

// unionExcept returns the union of all sets other than sets[skip].
func unionExcept(sets []map[string]struct{}, skip int) map[string]struct{} {
	u := make(map[string]struct{})
	for i, s := range sets {
		if i == skip {
			continue
		}
		for t := range s {
			u[t] = struct{}{}
		}
	}
	return u
}

func subtract(a, b map[string]struct{}) map[string]struct{} {
	out := make(map[string]struct{})
	for t := range a {
		if _, ok := b[t]; !ok {
			out[t] = struct{}{}
		}
	}
	return out
}

func sortedSlice(s map[string]struct{}) []string {
	out := make([]string, 0, len(s))
	for t := range s {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

func lower(s models.Sentiment) string {
	b := []byte(s)
	for i := range b {
		if b[i] >= 'A' && b[i] <= 'Z' {
			b[i] += 'a' - 'A'
		}
	}
	return string(b)
}
