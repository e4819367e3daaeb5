package bm25

import (
	"encoding/gob"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/RoaringBitmap/roaring/v2"
)

const snapshotVersion = 1

var ErrCorrupt = errors.New("corrupt lexical index")

type snapshot struct {
	Version  int
	K1       float64
	B        float64
	Epsilon  float64
	DocLens  []uint32
	Terms    []string
	Postings [][]uint32
	Freqs    [][]uint32
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (cw *countingWriter) Write(p []byte) (int, error) {
	n, err := cw.w.Write(p)
	cw.n += int64(n)
	return n, err
}

// WriteTo encodes the index as a gob snapshot. Terms are written in sorted
// order so equal corpora produce identical files.
func (idx *Index) WriteTo(w io.Writer) (int64, error) {
	terms := make([]string, 0, len(idx.terms))
	for term := range idx.terms {
		terms = append(terms, term)
	}
	sort.Strings(terms)

	snap := snapshot{
		Version:  snapshotVersion,
		K1:       idx.params.K1,
		B:        idx.params.B,
		Epsilon:  idx.params.Epsilon,
		DocLens:  idx.docLens,
		Terms:    terms,
		Postings: make([][]uint32, len(terms)),
		Freqs:    make([][]uint32, len(terms)),
	}
	for i, term := range terms {
		p := idx.terms[term]
		snap.Postings[i] = p.docs.ToArray()
		snap.Freqs[i] = p.freqs
	}

	cw := &countingWriter{w: w}
	if err := gob.NewEncoder(cw).Encode(&snap); err != nil {
		return cw.n, fmt.Errorf("encode lexical index: %w", err)
	}
	return cw.n, nil
}

// Read decodes a snapshot and recomputes corpus statistics.
func Read(r io.Reader) (*Index, error) {
	var snap snapshot
	if err := gob.NewDecoder(r).Decode(&snap); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrCorrupt, err)
	}
	if snap.Version != snapshotVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrCorrupt, snap.Version)
	}
	if len(snap.Postings) != len(snap.Terms) || len(snap.Freqs) != len(snap.Terms) {
		return nil, fmt.Errorf("%w: %d terms, %d postings, %d freqs", ErrCorrupt, len(snap.Terms), len(snap.Postings), len(snap.Freqs))
	}

	idx := &Index{
		params:  Params{K1: snap.K1, B: snap.B, Epsilon: snap.Epsilon},
		docLens: snap.DocLens,
		terms:   make(map[string]*posting, len(snap.Terms)),
	}
	if idx.docLens == nil {
		idx.docLens = []uint32{}
	}

	docCount := uint32(len(idx.docLens))
	for i, term := range snap.Terms {
		ids, freqs := snap.Postings[i], snap.Freqs[i]
		if len(ids) != len(freqs) {
			return nil, fmt.Errorf("%w: term %q has %d docs and %d freqs", ErrCorrupt, term, len(ids), len(freqs))
		}
		for j, id := range ids {
			if id >= docCount || (j > 0 && ids[j-1] >= id) {
				return nil, fmt.Errorf("%w: term %q has invalid posting %d", ErrCorrupt, term, id)
			}
		}
		docs := roaring.New()
		docs.AddMany(ids)
		idx.terms[term] = &posting{docs: docs, freqs: freqs}
	}

	idx.finish()
	return idx, nil
}
