package search

import (
	"math"
	"sort"
)

// BM25 Okapi constants (standard defaults).
const (
	bm25K1      = 1.5
	bm25B       = 0.75
	bm25Epsilon = 0.25
)

// bm25 is an Okapi BM25 scoring structure over a fixed document set.
// Negative IDF values (terms in more than half the documents) are floored
// at epsilon * average IDF so very common terms still contribute a small
// positive weight.
type bm25 struct {
	termFreqs []map[string]int // per document
	docLens   []int
	avgDocLen float64
	idf       map[string]float64
}

func newBM25(docs [][]string) *bm25 {
	b := &bm25{
		termFreqs: make([]map[string]int, len(docs)),
		docLens:   make([]int, len(docs)),
		idf:       make(map[string]float64),
	}

	docFreq := make(map[string]int)
	totalLen := 0
	for i, doc := range docs {
		freqs := make(map[string]int, len(doc))
		for _, tok := range doc {
			freqs[tok]++
		}
		b.termFreqs[i] = freqs
		b.docLens[i] = len(doc)
		totalLen += len(doc)
		for tok := range freqs {
			docFreq[tok]++
		}
	}
	if len(docs) > 0 {
		b.avgDocLen = float64(totalLen) / float64(len(docs))
	}

	n := float64(len(docs))
	idfSum := 0.0
	var negative []string
	for tok, df := range docFreq {
		idf := math.Log(n-float64(df)+0.5) - math.Log(float64(df)+0.5)
		b.idf[tok] = idf
		idfSum += idf
		if idf < 0 {
			negative = append(negative, tok)
		}
	}
	if len(b.idf) > 0 {
		eps := bm25Epsilon * idfSum / float64(len(b.idf))
		for _, tok := range negative {
			b.idf[tok] = eps
		}
	}

	return b
}

// score returns the BM25 score of document i for the query tokens.
func (b *bm25) score(i int, query []string) float64 {
	s := 0.0
	norm := bm25K1 * (1 - bm25B + bm25B*float64(b.docLens[i])/b.avgDocLen)
	for _, tok := range query {
		f := float64(b.termFreqs[i][tok])
		if f == 0 {
			continue
		}
		s += b.idf[tok] * f * (bm25K1 + 1) / (f + norm)
	}
	return s
}

// topK scores every document and returns the indices of the k best,
// descending by score. Ties keep original insertion order; zero-score
// documents are excluded.
func (b *bm25) topK(query []string, k int) ([]int, []float64) {
	if len(b.termFreqs) == 0 || len(query) == 0 {
		return nil, nil
	}

	scores := make([]float64, len(b.termFreqs))
	order := make([]int, len(b.termFreqs))
	for i := range scores {
		scores[i] = b.score(i, query)
		order[i] = i
	}
	sort.SliceStable(order, func(a, c int) bool {
		return scores[order[a]] > scores[order[c]]
	})

	var idxs []int
	var out []float64
	for _, i := range order {
		if len(idxs) >= k {
			break
		}
		if scores[i] <= 0 {
			continue
		}
		idxs = append(idxs, i)
		out = append(out, scores[i])
	}
	return idxs, out
}
