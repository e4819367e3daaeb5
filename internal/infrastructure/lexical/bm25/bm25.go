// Package bm25 implements Okapi BM25 keyword ranking over a fixed document
// set. Postings are roaring bitmaps keyed by term.
package bm25

import (
	"math"
	"sort"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/mohitrock850/Autonomous-Compliance-Auditor/internal/core/domain"
)

const (
	DefaultK1      = 1.5
	DefaultB       = 0.75
	DefaultEpsilon = 0.25
)

type Params struct {
	K1      float64
	B       float64
	Epsilon float64
}

func DefaultParams() Params {
	return Params{K1: DefaultK1, B: DefaultB, Epsilon: DefaultEpsilon}
}

// posting holds the documents containing a term. freqs[i] is the term
// frequency of the i-th document in ascending id order.
type posting struct {
	docs  *roaring.Bitmap
	freqs []uint32
	idf   float64
}

// Index is immutable after construction and safe for concurrent use.
type Index struct {
	params  Params
	docLens []uint32
	avgdl   float64
	terms   map[string]*posting
}

// New indexes pre-tokenized documents; document i is chunk id i.
func New(docs [][]string, params Params) *Index {
	idx := &Index{
		params:  params,
		docLens: make([]uint32, len(docs)),
		terms:   make(map[string]*posting),
	}

	for id, tokens := range docs {
		idx.docLens[id] = uint32(len(tokens))

		counts := make(map[string]uint32, len(tokens))
		order := make([]string, 0, len(tokens))
		for _, tok := range tokens {
			if counts[tok] == 0 {
				order = append(order, tok)
			}
			counts[tok]++
		}
		for _, tok := range order {
			p := idx.terms[tok]
			if p == nil {
				p = &posting{docs: roaring.New()}
				idx.terms[tok] = p
			}
			p.docs.Add(uint32(id))
			p.freqs = append(p.freqs, counts[tok])
		}
	}

	idx.finish()
	return idx
}

// finish derives corpus statistics. Negative IDFs are floored to
// epsilon times the mean IDF.
func (idx *Index) finish() {
	var total uint64
	for _, l := range idx.docLens {
		total += uint64(l)
	}
	if len(idx.docLens) > 0 {
		idx.avgdl = float64(total) / float64(len(idx.docLens))
	}

	terms := make([]string, 0, len(idx.terms))
	for term := range idx.terms {
		terms = append(terms, term)
	}
	sort.Strings(terms)

	n := float64(len(idx.docLens))
	var (
		idfSum   float64
		negative []*posting
	)
	for _, term := range terms {
		p := idx.terms[term]
		p.docs.RunOptimize()
		df := float64(p.docs.GetCardinality())
		p.idf = math.Log(n-df+0.5) - math.Log(df+0.5)
		idfSum += p.idf
		if p.idf < 0 {
			negative = append(negative, p)
		}
	}
	if len(idx.terms) == 0 {
		return
	}
	floor := idx.params.Epsilon * idfSum / float64(len(idx.terms))
	for _, p := range negative {
		p.idf = floor
	}
}

func (idx *Index) Len() int { return len(idx.docLens) }

// TopN scores every document containing at least one query token. Query
// tokens count with multiplicity. Results are ordered by score descending,
// ties by ascending id.
func (idx *Index) TopN(tokens []string, n int) []domain.LexicalHit {
	if n <= 0 || len(tokens) == 0 || len(idx.docLens) == 0 {
		return nil
	}

	queryCounts := make(map[string]int, len(tokens))
	order := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		if _, ok := idx.terms[tok]; !ok {
			continue
		}
		if queryCounts[tok] == 0 {
			order = append(order, tok)
		}
		queryCounts[tok]++
	}
	if len(order) == 0 {
		return nil
	}

	bitmaps := make([]*roaring.Bitmap, 0, len(order))
	for _, tok := range order {
		bitmaps = append(bitmaps, idx.terms[tok].docs)
	}
	candidates := roaring.FastOr(bitmaps...)

	avgdl := idx.avgdl
	if avgdl == 0 {
		avgdl = 1
	}
	k1, b := idx.params.K1, idx.params.B

	scores := make(map[uint32]float64, candidates.GetCardinality())
	for _, tok := range order {
		p := idx.terms[tok]
		weight := float64(queryCounts[tok]) * p.idf
		it := p.docs.Iterator()
		for i := 0; it.HasNext(); i++ {
			id := it.Next()
			f := float64(p.freqs[i])
			dl := float64(idx.docLens[id])
			scores[id] += weight * (f * (k1 + 1) / (f + k1*(1-b+b*dl/avgdl)))
		}
	}

	hits := make([]domain.LexicalHit, 0, len(scores))
	for _, id := range candidates.ToArray() {
		hits = append(hits, domain.LexicalHit{ChunkID: int(id), Score: scores[id]})
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ChunkID < hits[j].ChunkID
	})

	if len(hits) > n {
		hits = hits[:n]
	}
	return hits
}
