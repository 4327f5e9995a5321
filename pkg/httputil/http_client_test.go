package httputil

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestLLMClientConfig(t *testing.T) {
	cfg := LLMClientConfig(45 * time.Second)
	if cfg.ResponseTimeout != 45*time.Second {
		t.Errorf("expected 45s timeout, got %v", cfg.ResponseTimeout)
	}
	if cfg.MaxConnsPerHost != 8 {
		t.Errorf("expected 8 conns per host, got %d", cfg.MaxConnsPerHost)
	}

	if got := LLMClientConfig(0).ResponseTimeout; got != DefaultClientConfig().ResponseTimeout {
		t.Errorf("zero timeout should keep the default, got %v", got)
	}
}

func TestNewClientTimesOut(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	cfg := DefaultClientConfig()
	cfg.ResponseTimeout = 20 * time.Millisecond
	client := NewClient(cfg)

	if _, err := client.Get(srv.URL); err == nil {
		t.Error("expected timeout error")
	}

	if client.Transport.(*http.Transport).MaxConnsPerHost != cfg.MaxConnsPerHost {
		t.Error("transport should carry the configured limits")
	}
}
