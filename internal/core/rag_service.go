package core

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/google/generative-ai-go/genai"

	"github.com/prukaya/finbuddy/internal/session"
	"github.com/prukaya/finbuddy/internal/store"
	"github.com/prukaya/finbuddy/internal/utils"
)

const (
	NumRelevantChunks   = 3   // Number of chunks to retrieve for context
	SimilarityThreshold = 0.7 // Minimum similarity score to consider a chunk relevant
	MaxHistoryTurns     = 10  // Most recent turns replayed to the model

	roleUser  = "user"
	roleModel = "model"
)

// Embedder turns text into an embedding vector.
type Embedder interface {
	GetEmbedding(ctx context.Context, text string) ([]float32, error)
}

// ChatCompleter produces the model reply for a prompt history ending in a user turn.
type ChatCompleter interface {
	GetChatCompletion(ctx context.Context, promptHistory []*genai.Content) (string, error)
}

// ChunkSource supplies the knowledge-base chunks.
type ChunkSource interface {
	GetAllDataChunks() ([]store.DataChunk, error)
}

type RAGService struct {
	embedder   Embedder
	completer  ChatCompleter
	dataChunks []store.DataChunk // In-memory cache of data chunks and their embeddings
	logger     *slog.Logger
}

func NewRAGService(chunks ChunkSource, embedder Embedder, completer ChatCompleter) (*RAGService, error) {
	logger := slog.Default().With(slog.String("component", "core.rag"))

	dataChunks, err := chunks.GetAllDataChunks()
	if err != nil {
		return nil, fmt.Errorf("failed to load data chunks for RAG service: %w", err)
	}
	if len(dataChunks) == 0 {
		logger.Warn("RAG service initialized with no data chunks; answers will have no retrieved context")
	} else {
		logger.Info("RAG service initialized", slog.Int("chunks", len(dataChunks)))
	}

	return &RAGService{
		embedder:   embedder,
		completer:  completer,
		dataChunks: dataChunks,
		logger:     logger,
	}, nil
}

type ScoredChunk struct {
	Chunk      store.DataChunk
	Similarity float32
}

func (s *RAGService) GetRelevantContext(ctx context.Context, query string) (string, error) {
	if len(s.dataChunks) == 0 {
		return "", nil // No context if no data
	}

	queryEmbedding, err := s.embedder.GetEmbedding(ctx, query)
	if err != nil {
		return "", fmt.Errorf("failed to get query embedding: %w", err)
	}

	scoredChunks := make([]ScoredChunk, 0, len(s.dataChunks))
	for _, chunk := range s.dataChunks {
		if len(chunk.Embedding) == 0 {
			continue
		}
		similarity, err := utils.CosineSimilarity(queryEmbedding, chunk.Embedding)
		if err != nil {
			s.logger.Debug("Skipping chunk", slog.Int64("chunk_id", chunk.ID), slog.Any("error", err))
			continue
		}

		if similarity >= SimilarityThreshold {
			scoredChunks = append(scoredChunks, ScoredChunk{Chunk: chunk, Similarity: similarity})
		}
	}

	// Sort by similarity in descending order
	sort.SliceStable(scoredChunks, func(i, j int) bool {
		return scoredChunks[i].Similarity > scoredChunks[j].Similarity
	})

	var contextBuilder strings.Builder
	retrievedCount := 0
	for i := 0; i < len(scoredChunks) && retrievedCount < NumRelevantChunks; i++ {
		contextBuilder.WriteString(scoredChunks[i].Chunk.Content)
		contextBuilder.WriteString("\n\n") // Separate chunks clearly
		retrievedCount++
	}

	if retrievedCount == 0 {
		s.logger.Debug("No relevant chunks found", slog.Float64("threshold", SimilarityThreshold))
		return "", nil
	}

	s.logger.Debug("Retrieved relevant chunks", slog.Int("count", retrievedCount))
	return strings.TrimSpace(contextBuilder.String()), nil
}

// GenerateResponse answers query given the prior conversation turns.
func (s *RAGService) GenerateResponse(ctx context.Context, query string, history []session.Turn) (string, error) {
	relevantContext, err := s.GetRelevantContext(ctx, query)
	if err != nil {
		// Retrieval is best effort; the model can still answer from history.
		s.logger.Warn("Failed to get relevant context, proceeding without it", slog.Any("error", err))
		relevantContext = ""
	}

	prompt := BuildPrompt(history, query, relevantContext)

	modelResponse, err := s.completer.GetChatCompletion(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("failed to get LLM completion: %w", err)
	}
	return modelResponse, nil
}

// BuildPrompt converts the conversation into Gemini contents: the most recent
// turns (starting with a user turn) followed by the query wrapped with context.
func BuildPrompt(history []session.Turn, query, relevantContext string) []*genai.Content {
	if len(history) > MaxHistoryTurns {
		history = history[len(history)-MaxHistoryTurns:]
	}
	// Gemini requires the replayed history to open with a user turn.
	for len(history) > 0 && history[0].Role != session.RoleUser {
		history = history[1:]
	}

	contents := make([]*genai.Content, 0, len(history)+1)
	for _, turn := range history {
		role := roleUser
		if turn.Role == session.RoleAssistant {
			role = roleModel
		}
		contents = append(contents, &genai.Content{
			Role:  role,
			Parts: []genai.Part{genai.Text(turn.Content)},
		})
	}

	var finalUserContent string
	if relevantContext != "" {
		finalUserContent = fmt.Sprintf("Based on our previous conversation and the following potentially relevant context from Singapore personal-finance material:\n\n--- CONTEXT START ---\n%s\n--- CONTEXT END ---\n\nNow, please answer my question: %s", relevantContext, query)
	} else {
		finalUserContent = query
	}

	return append(contents, &genai.Content{
		Role:  roleUser,
		Parts: []genai.Part{genai.Text(finalUserContent)},
	})
}
