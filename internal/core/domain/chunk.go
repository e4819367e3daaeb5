package domain

// ChunkRecord is the persisted chunk metadata row. Its position in the
// metadata array is the chunk id.
type ChunkRecord struct {
	Source   string `json:"source"`
	ChunkNum int    `json:"chunk_num"`
	Content  string `json:"content"`
}

// Chunk is a loaded chunk with its ordinal id. ID equals the row of its
// embedding in the vector index and its row in the lexical index.
type Chunk struct {
	ID         int    `json:"id"`
	Source     string `json:"source"`
	ChunkIndex int    `json:"chunk_index"`
	Content    string `json:"content"`
}

func ChunkFromRecord(id int, rec ChunkRecord) Chunk {
	return Chunk{
		ID:         id,
		Source:     rec.Source,
		ChunkIndex: rec.ChunkNum,
		Content:    rec.Content,
	}
}
