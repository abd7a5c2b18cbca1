// Package answer is the bot's client for the RAG answer service.
package answer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/prukaya/finbuddy/internal/auth"
	"github.com/prukaya/finbuddy/internal/session"
)

// ErrUnavailable wraps every failure of the answer service: transport errors,
// non-success statuses and malformed payloads.
var ErrUnavailable = errors.New("answer service unavailable")

const tokenSubject = "prukaya-bot"

// QueryRequest is the JSON body accepted by POST /api/query.
type QueryRequest struct {
	Query       string         `json:"query"`
	ChatHistory []session.Turn `json:"chat_history"`
}

// QueryResponse is the JSON body returned by POST /api/query.
type QueryResponse struct {
	Response string `json:"response"`
}

type Client struct {
	baseURL    string
	jwtSecret  string
	httpClient *http.Client
}

func NewClient(baseURL, jwtSecret string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		jwtSecret:  jwtSecret,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Answer sends the query and prior turns to the RAG service and returns the
// cleaned reply.
func (c *Client) Answer(ctx context.Context, query string, history []session.Turn) (string, error) {
	if history == nil {
		history = []session.Turn{}
	}
	body, err := json.Marshal(QueryRequest{Query: query, ChatHistory: history})
	if err != nil {
		return "", fmt.Errorf("%w: encode request: %v", ErrUnavailable, err)
	}

	token, err := auth.GenerateJWT(c.jwtSecret, tokenSubject, auth.ServiceTokenTTL)
	if err != nil {
		return "", fmt.Errorf("%w: sign token: %v", ErrUnavailable, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/query", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%w: build request: %v", ErrUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("%w: status %d: %s", ErrUnavailable, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var out QueryResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("%w: decode response: %v", ErrUnavailable, err)
	}

	reply := CleanOutput(out.Response)
	if reply == "" {
		return "", fmt.Errorf("%w: empty response", ErrUnavailable)
	}
	return reply, nil
}

// CleanOutput strips markdown emphasis and heading markers that Telegram
// would otherwise show verbatim.
func CleanOutput(text string) string {
	return strings.TrimSpace(strings.NewReplacer("*", "", "#", "").Replace(text))
}
