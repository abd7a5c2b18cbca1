package store

import (
	"encoding/json"
	"fmt"
	"log/slog"
)

// GetAllDataChunks loads every knowledge-base chunk with its embedding.
// Chunks are written by the offline indexing job; this service only reads them.
func (s *SQLiteStore) GetAllDataChunks() ([]DataChunk, error) {
	rows, err := s.db.Query("SELECT id, content, COALESCE(embedding_json, '') FROM data_chunks ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to query data_chunks: %w", err)
	}
	defer rows.Close()

	var chunks []DataChunk
	for rows.Next() {
		var chunk DataChunk
		if err := rows.Scan(&chunk.ID, &chunk.Content, &chunk.EmbeddingJSON); err != nil {
			return nil, fmt.Errorf("failed to scan data_chunk row: %w", err)
		}
		if chunk.EmbeddingJSON == "" {
			slog.Warn("Empty embedding for chunk, it will never be retrieved", slog.Int64("chunk_id", chunk.ID))
		} else if err := json.Unmarshal([]byte(chunk.EmbeddingJSON), &chunk.Embedding); err != nil {
			slog.Warn("Failed to unmarshal embedding for chunk",
				slog.Int64("chunk_id", chunk.ID),
				slog.Any("error", err))
			chunk.Embedding = nil
		}
		chunks = append(chunks, chunk)
	}
	return chunks, rows.Err()
}
