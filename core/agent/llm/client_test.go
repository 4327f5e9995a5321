package llm

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/goccy/go-json"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClientWithConfig(ClientConfig{APIKey: "test-key", BaseURL: srv.URL + "/v1"})
}

func TestCompleteJSONSendsJSONModeRequest(t *testing.T) {
	var got map[string]any
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"id":"x","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"{\"score\":80}"}}]}`)
	})

	content, err := client.CompleteJSON(context.Background(), "system", "user")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if content != `{"score":80}` {
		t.Errorf("unexpected content %q", content)
	}

	if got["model"] != DefaultModel {
		t.Errorf("expected model %s, got %v", DefaultModel, got["model"])
	}
	format, _ := got["response_format"].(map[string]any)
	if format["type"] != "json_object" {
		t.Errorf("expected json_object response format, got %v", got["response_format"])
	}
	messages, _ := got["messages"].([]any)
	if len(messages) != 2 {
		t.Errorf("expected system and user messages, got %d", len(messages))
	}
}

func TestCompleteJSONNoChoices(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"id":"x","object":"chat.completion","choices":[]}`)
	})

	_, err := client.CompleteJSON(context.Background(), "", "user")
	if !errors.Is(err, ErrEmptyResponse) {
		t.Errorf("expected ErrEmptyResponse, got %v", err)
	}
}

func TestCompleteJSONAPIError(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		io.WriteString(w, `{"error":{"message":"bad key","type":"invalid_request_error"}}`)
	})

	if _, err := client.CompleteJSON(context.Background(), "", "user"); err == nil {
		t.Error("expected error for 401 response")
	}
}

func TestNewClientWithConfigDefaults(t *testing.T) {
	c := NewClientWithConfig(ClientConfig{APIKey: "k"})
	if c.Model() != DefaultModel || c.maxTokens != 512 {
		t.Errorf("unexpected defaults: model=%s maxTokens=%d", c.Model(), c.maxTokens)
	}
}
