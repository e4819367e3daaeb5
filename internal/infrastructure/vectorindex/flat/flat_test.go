package flat

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIndexSearch(t *testing.T) {
	idx, err := New(3, [][]float32{
		{1, 2, 3},
		{4, 5, 6},
		{7, 8, 9},
	})
	require.NoError(t, err)

	hits, err := idx.Search([]float32{0, 0, 0}, 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, 0, hits[0].ChunkID)
	assert.Equal(t, float32(14), hits[0].Distance)
	assert.Equal(t, 1, hits[1].ChunkID)
	assert.Equal(t, float32(77), hits[1].Distance)
}

func TestIndexSearchTiesByID(t *testing.T) {
	idx, err := New(2, [][]float32{{1, 0}, {0, 1}, {-1, 0}, {5, 5}})
	require.NoError(t, err)

	hits, err := idx.Search([]float32{0, 0}, 10)
	require.NoError(t, err)
	require.Len(t, hits, 4)
	assert.Equal(t, []int{0, 1, 2, 3}, []int{hits[0].ChunkID, hits[1].ChunkID, hits[2].ChunkID, hits[3].ChunkID})
}

func TestIndexSearchBounds(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	vectors := make([][]float32, 50)
	for i := range vectors {
		vectors[i] = []float32{rng.Float32(), rng.Float32(), rng.Float32(), rng.Float32()}
	}
	idx, err := New(4, vectors)
	require.NoError(t, err)

	for _, n := range []int{0, 1, 10, 50, 80} {
		hits, err := idx.Search(vectors[3], n)
		require.NoError(t, err)
		assert.LessOrEqual(t, len(hits), n)
		for i, h := range hits {
			assert.True(t, h.ChunkID >= 0 && h.ChunkID < idx.Len())
			if i > 0 {
				assert.LessOrEqual(t, hits[i-1].Distance, h.Distance)
			}
		}
	}

	hits, err := idx.Search(vectors[3], 1)
	require.NoError(t, err)
	assert.Equal(t, 3, hits[0].ChunkID)
}

func TestIndexDimensionMismatch(t *testing.T) {
	_, err := New(3, [][]float32{{1, 2}})
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	idx, err := New(2, [][]float32{{1, 2}})
	require.NoError(t, err)
	_, err = idx.Search([]float32{1, 2, 3}, 1)
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestIndexRoundTripAllCodecs(t *testing.T) {
	vectors := make([][]float32, 64)
	for i := range vectors {
		vectors[i] = make([]float32, 16)
		for j := range vectors[i] {
			vectors[i][j] = float32(i%4) * 0.25
		}
	}

	for _, c := range []Compression{CompressionNone, CompressionLZ4, CompressionZstd} {
		t.Run(c.String(), func(t *testing.T) {
			idx, err := New(16, vectors, WithCompression(c))
			require.NoError(t, err)

			var buf bytes.Buffer
			n, err := idx.WriteTo(&buf)
			require.NoError(t, err)
			assert.Equal(t, int64(buf.Len()), n)

			loaded, err := Read(&buf)
			require.NoError(t, err)
			assert.Equal(t, idx.Dimension(), loaded.Dimension())
			assert.Equal(t, idx.Len(), loaded.Len())
			for id := range vectors {
				got, ok := loaded.Vector(id)
				require.True(t, ok)
				assert.Equal(t, vectors[id], got)
			}
		})
	}
}

func TestReadDetectsCorruption(t *testing.T) {
	idx, err := New(2, [][]float32{{1, 2}, {3, 4}}, WithCompression(CompressionNone))
	require.NoError(t, err)

	var buf bytes.Buffer
	_, err = idx.WriteTo(&buf)
	require.NoError(t, err)

	raw := buf.Bytes()
	flipped := append([]byte(nil), raw...)
	flipped[len(flipped)-1] ^= 0xff
	_, err = Read(bytes.NewReader(flipped))
	assert.ErrorIs(t, err, ErrCorrupt)

	badMagic := append([]byte(nil), raw...)
	copy(badMagic, "NOPE")
	_, err = Read(bytes.NewReader(badMagic))
	assert.ErrorIs(t, err, ErrCorrupt)

	_, err = Read(bytes.NewReader(raw[:len(raw)-3]))
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestParseCompression(t *testing.T) {
	c, err := ParseCompression("LZ4")
	require.NoError(t, err)
	assert.Equal(t, CompressionLZ4, c)

	c, err = ParseCompression("")
	require.NoError(t, err)
	assert.Equal(t, CompressionZstd, c)

	_, err = ParseCompression("brotli")
	assert.Error(t, err)
}
