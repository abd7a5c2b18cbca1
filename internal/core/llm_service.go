package core

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

const (
	defaultChatModelName      = "gemini-1.5-flash-latest"
	defaultEmbeddingModelName = "text-embedding-004"

	// RefusalReply is the sentence the model is instructed to use for off-topic questions.
	RefusalReply = "I'm sorry, I can't answer that as it is against my guidelines."

	chatSystemInstruction = "You are PRUKaya, an AI-powered financial buddy guiding young Singaporeans toward smarter decisions " +
		"about saving, investing and insurance. You cover insurance providers across Singapore, not only Prudential. " +
		"Keep responses under 300 words. Use the provided context where it is relevant and give clear, practical, actionable steps. " +
		"When the question is vague, ask a clarifying question. Stay neutral and do not promote any specific product. " +
		"Point to CPF, IRAS or other government resources when useful, and to the /listallpolicies command for policy listings. " +
		"Do not recommend agent consultations or unrelated external websites. " +
		"Refuse non-financial, business finance or sensitive topics by replying exactly: \"" + RefusalReply + "\""
)

type LLMService struct {
	client *genai.Client
}

func NewLLMService(ctx context.Context, apiKey string) (*LLMService, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	return &LLMService{
		client: client,
	}, nil
}

func (s *LLMService) Close() {
	if s.client != nil {
		if err := s.client.Close(); err != nil {
			slog.Error("Error closing GenAI client", slog.Any("error", err))
		} else {
			slog.Debug("GenAI client closed")
		}
	}
}

func (s *LLMService) GetEmbedding(ctx context.Context, text string) ([]float32, error) {
	em := s.client.EmbeddingModel(defaultEmbeddingModelName)
	res, err := em.EmbedContent(ctx, genai.Text(text))
	if err != nil {
		return nil, fmt.Errorf("gemini embedding request failed: %w", err)
	}

	if res.Embedding == nil || len(res.Embedding.Values) == 0 {
		return nil, fmt.Errorf("no embedding data received from gemini")
	}
	return res.Embedding.Values, nil
}

// GetChatCompletion replays promptHistory and sends its final user turn.
func (s *LLMService) GetChatCompletion(ctx context.Context, promptHistory []*genai.Content) (string, error) {
	if len(promptHistory) == 0 {
		return "", fmt.Errorf("prompt history is empty for chat completion")
	}

	lastUserMessage := promptHistory[len(promptHistory)-1]
	if lastUserMessage.Role != roleUser {
		return "", fmt.Errorf("last message in history is not from 'user', cannot proceed with chat completion")
	}

	model := s.client.GenerativeModel(defaultChatModelName)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(chatSystemInstruction)},
	}

	chatSession := model.StartChat()
	chatSession.History = promptHistory[:len(promptHistory)-1]

	resp, err := chatSession.SendMessage(ctx, lastUserMessage.Parts...)
	if err != nil {
		return "", fmt.Errorf("gemini chat SendMessage failed: %w", err)
	}

	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("gemini response had no candidates")
	}

	var responseText strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			responseText.WriteString(string(txt))
		} else {
			slog.Debug("Gemini response part was not text", slog.String("type", fmt.Sprintf("%T", part)))
		}
	}

	if responseText.Len() == 0 {
		return "", fmt.Errorf("gemini response contained no text")
	}

	return responseText.String(), nil
}
