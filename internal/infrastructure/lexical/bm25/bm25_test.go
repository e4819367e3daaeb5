package bm25

import (
	"bytes"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func corpus(texts ...string) [][]string {
	docs := make([][]string, len(texts))
	for i, text := range texts {
		docs[i] = strings.Fields(strings.ToLower(text))
	}
	return docs
}

var policyCorpus = corpus(
	"vpn is required for remote access",
	"passwords rotate every 90 days",
	"vpn logs are retained",
	"the badge policy",
)

func TestTopNOkapiScores(t *testing.T) {
	idx := New(policyCorpus, DefaultParams())

	hits := idx.TopN(strings.Fields("is vpn required?"), 10)
	require.Len(t, hits, 2)
	assert.Equal(t, 0, hits[0].ChunkID)
	assert.InDelta(t, 0.7367807481627858, hits[0].Score, 1e-9)
	assert.Equal(t, 2, hits[1].ChunkID)
	assert.InDelta(t, 0, hits[1].Score, 1e-12)
}

func TestTopNOnlyMatchingDocuments(t *testing.T) {
	idx := New(policyCorpus, DefaultParams())

	assert.Empty(t, idx.TopN([]string{"firewall"}, 10))
	assert.Empty(t, idx.TopN(nil, 10))
	assert.Empty(t, idx.TopN([]string{"vpn"}, 0))
}

func TestTopNTiesByAscendingID(t *testing.T) {
	idx := New(corpus("policy a", "policy b", "policy c"), DefaultParams())

	hits := idx.TopN([]string{"policy"}, 10)
	require.Len(t, hits, 3)
	for i, h := range hits {
		assert.Equal(t, i, h.ChunkID)
		assert.Equal(t, hits[0].Score, h.Score)
	}

	// A term in every document has a negative raw idf, floored to
	// epsilon times the mean idf.
	meanIDF := (3*(math.Log(2.5)-math.Log(1.5)) + math.Log(0.5) - math.Log(3.5)) / 4
	assert.InDelta(t, DefaultEpsilon*meanIDF, hits[0].Score, 1e-12)
}

func TestTopNCountsQueryMultiplicity(t *testing.T) {
	idx := New(policyCorpus, DefaultParams())

	once := idx.TopN([]string{"passwords"}, 1)
	twice := idx.TopN([]string{"passwords", "passwords"}, 1)
	require.Len(t, once, 1)
	require.Len(t, twice, 1)
	assert.InDelta(t, 2*once[0].Score, twice[0].Score, 1e-12)
}

func TestTopNIsDeterministicAndBounded(t *testing.T) {
	idx := New(policyCorpus, DefaultParams())
	query := []string{"vpn", "the", "days"}

	first := idx.TopN(query, 2)
	require.Len(t, first, 2)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, idx.TopN(query, 2))
	}
}

func TestWriteToReadRoundTrip(t *testing.T) {
	idx := New(policyCorpus, DefaultParams())

	var buf bytes.Buffer
	n, err := idx.WriteTo(&buf)
	require.NoError(t, err)
	assert.Equal(t, int64(buf.Len()), n)

	loaded, err := Read(&buf)
	require.NoError(t, err)
	assert.Equal(t, idx.Len(), loaded.Len())

	for _, q := range [][]string{{"vpn"}, {"is", "vpn", "required?"}, {"badge", "policy"}} {
		assert.Equal(t, idx.TopN(q, 10), loaded.TopN(q, 10))
	}
}

func TestWriteToIsStable(t *testing.T) {
	var a, b bytes.Buffer
	_, err := New(policyCorpus, DefaultParams()).WriteTo(&a)
	require.NoError(t, err)
	_, err = New(policyCorpus, DefaultParams()).WriteTo(&b)
	require.NoError(t, err)
	assert.Equal(t, a.Bytes(), b.Bytes())
}

func TestReadRejectsGarbage(t *testing.T) {
	_, err := Read(bytes.NewReader([]byte("not gob")))
	assert.ErrorIs(t, err, ErrCorrupt)
}
