package engine

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestOpenAIEngine_ChatAndEmbed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer sk-test" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		switch r.URL.Path {
		case "/chat/completions":
			json.NewEncoder(w).Encode(map[string]any{
				"choices": []map[string]any{{"message": map[string]string{"role": "assistant", "content": "42"}}},
			})
		case "/embeddings":
			json.NewEncoder(w).Encode(map[string]any{
				"data": []map[string]any{{"index": 0, "embedding": []float32{0.5, 0.25}}},
			})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	e := NewOpenAIEngine("sk-test", srv.URL)
	answer, err := e.Chat(context.Background(), "gpt-4o-mini", []Message{{Role: RoleUser, Content: "q"}})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if answer != "42" {
		t.Errorf("Chat = %q, want 42", answer)
	}

	vec, err := e.Embed(context.Background(), "text-embedding-3-small", "hello")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vec) != 2 || vec[0] != 0.5 {
		t.Errorf("Embed = %v", vec)
	}
}
