package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"ContentCurator/internal/config"
	"ContentCurator/internal/retry"
)

func newTestClient(url string) *OpenAIClient {
	return NewOpenAIClient(config.AIConfig{
		Endpoint: url,
		Model:    "test-model",
		APIKey:   "test-key",
	})
}

func TestCompleteReturnsFirstChoiceContent(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("unexpected auth header: %s", got)
		}

		var req struct {
			Model    string `json:"model"`
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Model != "test-model" {
			t.Errorf("unexpected model: %s", req.Model)
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"{\"score\":0.8,\"pass\":true}"}}]}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	got, err := client.Complete(context.Background(), "rate this")
	if err != nil {
		t.Fatalf("Complete error: %v", err)
	}
	if got != `{"score":0.8,"pass":true}` {
		t.Fatalf("unexpected content: %s", got)
	}
}

func TestCompleteServerErrorIsRetryable(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	_, err := client.Complete(context.Background(), "rate this")
	if err == nil {
		t.Fatal("expected error")
	}

	var perm retry.Permanent
	if errors.As(err, &perm) {
		t.Fatalf("5xx must stay retryable, got permanent: %v", err)
	}
}

func TestCompleteClientErrorIsPermanent(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad key", http.StatusUnauthorized)
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	_, err := client.Complete(context.Background(), "rate this")
	if err == nil {
		t.Fatal("expected error")
	}

	var perm retry.Permanent
	if !errors.As(err, &perm) {
		t.Fatalf("4xx should be permanent, got: %v", err)
	}
}

func TestCompleteMisconfiguredClient(t *testing.T) {
	t.Parallel()

	client := NewOpenAIClient(config.AIConfig{})
	_, err := client.Complete(context.Background(), "rate this")
	if err == nil {
		t.Fatal("expected error for missing configuration")
	}
}
