package bootstrap

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"ideabox/config"
	"ideabox/core/port/out"
)

func testConfig(t *testing.T, backend string) *config.Config {
	t.Helper()
	return &config.Config{
		Port:               "0",
		Environment:        "test",
		MailboxFetchPolicy: "unseen",
		MailboxFetchLimit:  5,
		IntakeEnabled:      true,
		IntakeInterval:     time.Hour,
		PersistBackend:     backend,
		PersistFile:        filepath.Join(t.TempDir(), "submissions.json"),
		WorkerID:           "test",
		WorkerCount:        1,
		WorkerQueueSize:    4,
		AllowedOrigins:     []string{"*"},
	}
}

func TestNewDependenciesDegradesWithoutCredentials(t *testing.T) {
	deps, cleanup, err := NewDependencies(context.Background(), testConfig(t, config.BackendMemory))
	if err != nil {
		t.Fatalf("NewDependencies failed: %v", err)
	}
	defer cleanup()

	if deps.LLMClient != nil {
		t.Error("no API key should mean no LLM client")
	}
	if deps.Snapshot != nil {
		t.Error("memory backend should have no snapshot")
	}
	if deps.Mailbox.Configured() || deps.Mailer.Configured() {
		t.Error("providers should report unconfigured")
	}
	if deps.Store.Len() != 0 {
		t.Errorf("expected empty store, got %d", deps.Store.Len())
	}
}

func TestNewDependenciesFileBackendHasReadinessCheck(t *testing.T) {
	deps, cleanup, err := NewDependencies(context.Background(), testConfig(t, config.BackendFile))
	if err != nil {
		t.Fatalf("NewDependencies failed: %v", err)
	}
	defer cleanup()

	if _, ok := deps.Checks["snapshot"]; !ok {
		t.Error("file backend should register a snapshot check")
	}
}

func TestSecondProcessOnSameSnapshotRefusesToStart(t *testing.T) {
	cfg := testConfig(t, config.BackendFile)
	_, cleanup, err := NewDependencies(context.Background(), cfg)
	if err != nil {
		t.Fatalf("first process: %v", err)
	}

	if _, _, err := NewDependencies(context.Background(), cfg); !errors.Is(err, out.ErrSnapshotOwned) {
		t.Fatalf("second process: expected ErrSnapshotOwned, got %v", err)
	}

	cleanup()
	_, cleanupAgain, err := NewDependencies(context.Background(), cfg)
	if err != nil {
		t.Fatalf("process after shutdown: %v", err)
	}
	cleanupAgain()
}

func TestWorkerTriggerOnlyWhenScheduling(t *testing.T) {
	cfg := testConfig(t, config.BackendMemory)
	deps, cleanup, err := NewDependencies(context.Background(), cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer cleanup()

	if NewWorker(deps, false).Trigger() != nil {
		t.Error("api-only worker should not expose an intake trigger")
	}
	if NewWorker(deps, true).Trigger() == nil {
		t.Error("scheduling worker should expose an intake trigger")
	}

	cfg.IntakeEnabled = false
	if NewWorker(deps, true).Trigger() != nil {
		t.Error("disabled intake should not expose a trigger")
	}
}

func TestAPIRoutes(t *testing.T) {
	deps, cleanup, err := NewDependencies(context.Background(), testConfig(t, config.BackendFile))
	if err != nil {
		t.Fatal(err)
	}
	defer cleanup()

	w := NewWorker(deps, false)
	if err := w.Start(); err != nil {
		t.Fatal(err)
	}
	defer w.Stop(context.Background())

	app := NewAPI(deps, w.Pool, w.Trigger())

	tests := []struct {
		method     string
		path       string
		body       string
		wantStatus int
		wantBody   string
	}{
		{method: http.MethodGet, path: "/api/inputs", wantStatus: 200, wantBody: "[]"},
		{method: http.MethodGet, path: "/health", wantStatus: 200, wantBody: `"status":"ok"`},
		{method: http.MethodGet, path: "/ready", wantStatus: 200, wantBody: `"snapshot":"healthy"`},
		{method: http.MethodGet, path: "/metrics", wantStatus: 200, wantBody: "ideabox_"},
		{method: http.MethodGet, path: "/api/events/status", wantStatus: 200, wantBody: `"connections"`},
		{method: http.MethodPost, path: "/api/ingest", wantStatus: 503, wantBody: "SERVICE_UNAVAILABLE"},
		{method: http.MethodPost, path: "/api/reward/1", body: `{"amount":100}`, wantStatus: 404, wantBody: "NOT_FOUND"},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			var body io.Reader
			if tt.body != "" {
				body = strings.NewReader(tt.body)
			}
			req := httptest.NewRequest(tt.method, tt.path, body)
			req.Header.Set("Content-Type", "application/json")

			resp, err := app.Test(req, 5000)
			if err != nil {
				t.Fatal(err)
			}
			data, _ := io.ReadAll(resp.Body)
			if resp.StatusCode != tt.wantStatus {
				t.Errorf("expected %d, got %d: %s", tt.wantStatus, resp.StatusCode, data)
			}
			if !strings.Contains(string(data), tt.wantBody) {
				t.Errorf("expected %q in %s", tt.wantBody, data)
			}
		})
	}
}
