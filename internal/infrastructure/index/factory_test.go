package index

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mohitrock850/Autonomous-Compliance-Auditor/internal/infrastructure/vectorindex/flat"
)

func TestFactoryBuildsAlignedIndexes(t *testing.T) {
	f := NewFactory(flat.CompressionLZ4)

	vectors, err := f.NewVectorIndex(2, [][]float32{{0, 1}, {1, 0}})
	require.NoError(t, err)
	lexical, err := f.NewLexicalIndex([][]string{{"vpn"}, {"badge"}})
	require.NoError(t, err)

	assert.Equal(t, vectors.Len(), lexical.Len())
	assert.Equal(t, 2, vectors.Dimension())

	hits := lexical.TopN([]string{"badge"}, 5)
	require.Len(t, hits, 1)
	assert.Equal(t, 1, hits[0].ChunkID)
}

func TestFactoryRejectsRaggedVectors(t *testing.T) {
	_, err := NewFactory(flat.CompressionNone).NewVectorIndex(2, [][]float32{{0, 1}, {1}})
	assert.ErrorIs(t, err, flat.ErrDimensionMismatch)
}
