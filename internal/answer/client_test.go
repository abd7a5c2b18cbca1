package answer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prukaya/finbuddy/internal/auth"
	"github.com/prukaya/finbuddy/internal/session"
)

func TestClient_Answer(t *testing.T) {
	var got QueryRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/query", r.URL.Path)
		sub, err := auth.ValidateJWT("secret", strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "))
		assert.NoError(t, err)
		assert.Equal(t, tokenSubject, sub)

		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(QueryResponse{Response: "## Tip\n**Save** 20% of income."})
	}))
	defer srv.Close()

	client := NewClient(srv.URL+"/", "secret", time.Second)
	history := []session.Turn{
		{Role: session.RoleUser, Content: "hi"},
		{Role: session.RoleAssistant, Content: "hello"},
	}

	reply, err := client.Answer(context.Background(), "how much to save?", history)
	require.NoError(t, err)
	assert.Equal(t, "Tip\nSave 20% of income.", reply)
	assert.Equal(t, "how much to save?", got.Query)
	assert.Equal(t, history, got.ChatHistory)
}

func TestClient_AnswerEmptyHistoryEncodesArray(t *testing.T) {
	var raw map[string]json.RawMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&raw))
		_ = json.NewEncoder(w).Encode(QueryResponse{Response: "ok"})
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, "secret", time.Second).Answer(context.Background(), "q", nil)
	require.NoError(t, err)
	assert.JSONEq(t, "[]", string(raw["chat_history"]))
}

func TestClient_AnswerFailures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"server error", func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "boom", http.StatusInternalServerError)
		}},
		{"malformed payload", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("not json"))
		}},
		{"empty reply", func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewEncoder(w).Encode(QueryResponse{Response: " ** "})
		}},
		{"timeout", func(w http.ResponseWriter, r *http.Request) {
			time.Sleep(200 * time.Millisecond)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			_, err := NewClient(srv.URL, "secret", 50*time.Millisecond).Answer(context.Background(), "q", nil)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrUnavailable)
		})
	}
}

func TestClient_AnswerUnreachable(t *testing.T) {
	_, err := NewClient("http://127.0.0.1:1", "secret", time.Second).Answer(context.Background(), "q", nil)
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestCleanOutput(t *testing.T) {
	assert.Equal(t, "Heading\nbold text", CleanOutput("  # Heading\n**bold** text  "))
}
