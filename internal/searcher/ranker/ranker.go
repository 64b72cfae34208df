// Package ranker scores documents against a query: TF-IDF term weights,
// cosine similarity between query and document vectors, and a fixed blend
// with the document's normalized authority score.
package ranker

import (
	"math"
	"slices"
)

// AuthorityWeight is the share of the final rank taken by authority.
const AuthorityWeight = 0.5

// DocFrequencies supplies document frequencies for IDF. Terms that are
// unknown report ok=false.
type DocFrequencies interface {
	DocFrequency(term string) (count int64, ok bool)
	TotalDocs() int64
}

// TFIDF weights a term ratio by ln(totalDocs/containing). A term found in no
// document weighs 0. A term found in every document gets ln((N+1)/N), the
// smallest positive IDF, instead of collapsing to 0.
func TFIDF(ratio float64, totalDocs, containing int64) float64 {
	if containing <= 0 || totalDocs <= 0 {
		return 0
	}
	if containing >= totalDocs {
		return ratio * math.Log(float64(totalDocs+1)/float64(totalDocs))
	}
	return ratio * math.Log(float64(totalDocs)/float64(containing))
}

// Cosine returns the cosine similarity of the document and query vectors
// over the union of document terms and queryTerms. Each component is the
// term's TF-IDF weight when df knows the term and its raw ratio otherwise;
// a term missing from a vector contributes 0. A zero-magnitude vector
// yields 0. The result is clamped to [0, 1].
func Cosine(doc, query map[string]float64, queryTerms []string, df DocFrequencies) float64 {
	terms := make([]string, 0, len(doc)+len(queryTerms))
	for t := range doc {
		terms = append(terms, t)
	}
	terms = append(terms, queryTerms...)
	slices.Sort(terms)
	terms = slices.Compact(terms)

	var total int64
	if df != nil {
		total = df.TotalDocs()
	}
	weight := func(ratios map[string]float64, term string) float64 {
		ratio, ok := ratios[term]
		if !ok {
			return 0
		}
		if df == nil {
			return ratio
		}
		count, known := df.DocFrequency(term)
		if !known {
			return ratio
		}
		return TFIDF(ratio, total, count)
	}

	var dot, magDoc, magQuery float64
	for _, t := range terms {
		d := weight(doc, t)
		q := weight(query, t)
		dot += d * q
		magDoc += d * d
		magQuery += q * q
	}
	mag := math.Sqrt(magDoc * magQuery)
	if mag == 0 || math.IsNaN(mag) || math.IsInf(mag, 0) {
		return 0
	}
	return clamp01(dot / mag)
}

// NormalizeAuthority scales score by the table maximum. Missing scores and
// a zero maximum give 0.
func NormalizeAuthority(score, maxScore float64) float64 {
	if maxScore <= 0 || score <= 0 {
		return 0
	}
	return clamp01(score / maxScore)
}

// Blend combines cosine similarity and normalized authority into a rank in
// [0, 1].
func Blend(cosine, authority float64) float64 {
	return clamp01(AuthorityWeight*clamp01(authority) + (1-AuthorityWeight)*clamp01(cosine))
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
