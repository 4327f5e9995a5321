package http

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"

	"ideabox/core/domain"
	"ideabox/core/service/submission"
	"ideabox/infra/middleware"
	"ideabox/pkg/apperr"
)

type stubRewards struct {
	calls  []int64
	amount int
	err    error
}

func (s *stubRewards) Reward(ctx context.Context, id int64, amount int) (domain.PublicSubmission, error) {
	s.calls = append(s.calls, id)
	s.amount = amount
	if s.err != nil {
		return domain.PublicSubmission{}, s.err
	}
	return domain.PublicSubmission{ID: id, Status: domain.StatusRewarded}, nil
}

type stubTrigger struct{ queued bool }

func (s *stubTrigger) TriggerIntake() bool { return s.queued }

func newTestApp(t *testing.T, rewards *stubRewards) (*fiber.App, *submission.Store) {
	t.Helper()

	store := submission.NewStore(nil)
	store.AddIfAbsent(domain.Submission{
		Title:          "Double work in the archive system",
		ContactAddress: "anna@corp.example",
		Status:         domain.StatusInbox,
		Score:          94,
		Scored:         true,
	})

	app := fiber.New(fiber.Config{
		ErrorHandler: middleware.ErrorHandler(),
		JSONEncoder:  json.Marshal,
		JSONDecoder:  json.Unmarshal,
	})
	app.Use(middleware.RequestID())

	api := app.Group("/api")
	NewSubmissionHandler(submission.NewService(store, nil), rewards, &stubTrigger{queued: true}).Register(api)
	return app, store
}

func do(t *testing.T, app *fiber.App, method, path, body string) (*http.Response, string) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	data, _ := io.ReadAll(resp.Body)
	return resp, string(data)
}

func TestListNeverExposesContactAddress(t *testing.T) {
	app, _ := newTestApp(t, &stubRewards{})

	resp, body := do(t, app, http.MethodGet, "/api/inputs", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, body)
	}
	if strings.Contains(body, "anna@") || strings.Contains(body, "contact") {
		t.Errorf("list leaks contact address: %s", body)
	}

	var items []map[string]any
	if err := json.Unmarshal([]byte(body), &items); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(items) != 1 || items[0]["aiScore"] != float64(94) || items[0]["title"] != "Double work in the archive system" {
		t.Errorf("unexpected items %v", items)
	}
}

func TestUpdateStatus(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		body       string
		wantStatus int
		wantCode   string
	}{
		{name: "ok", path: "/api/inputs/1/status", body: `{"status":"reviewed"}`, wantStatus: http.StatusOK},
		{name: "unknown id", path: "/api/inputs/99/status", body: `{"status":"reviewed"}`, wantStatus: http.StatusNotFound, wantCode: apperr.CodeNotFound},
		{name: "bad id", path: "/api/inputs/abc/status", body: `{"status":"reviewed"}`, wantStatus: http.StatusBadRequest, wantCode: apperr.CodeInvalidInput},
		{name: "missing status", path: "/api/inputs/1/status", body: `{}`, wantStatus: http.StatusBadRequest, wantCode: apperr.CodeValidationFailed},
		{name: "too long", path: "/api/inputs/1/status", body: `{"status":"` + strings.Repeat("x", 33) + `"}`, wantStatus: http.StatusBadRequest, wantCode: apperr.CodeValidationFailed},
		{name: "reserved", path: "/api/inputs/1/status", body: `{"status":"rewarded"}`, wantStatus: http.StatusBadRequest, wantCode: apperr.CodeInvalidInput},
		{name: "malformed json", path: "/api/inputs/1/status", body: `{"status":`, wantStatus: http.StatusBadRequest, wantCode: apperr.CodeBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app, store := newTestApp(t, &stubRewards{})

			resp, body := do(t, app, http.MethodPut, tt.path, tt.body)
			if resp.StatusCode != tt.wantStatus {
				t.Fatalf("expected %d, got %d: %s", tt.wantStatus, resp.StatusCode, body)
			}
			if tt.wantCode != "" && !strings.Contains(body, `"code":"`+tt.wantCode+`"`) {
				t.Errorf("expected code %s in %s", tt.wantCode, body)
			}
			if tt.wantStatus == http.StatusOK {
				got, _ := store.Get(1)
				if got.Status != "reviewed" {
					t.Errorf("store not updated: %q", got.Status)
				}
				if strings.Contains(body, "anna@") {
					t.Errorf("response leaks contact address: %s", body)
				}
			}
		})
	}
}

func TestReward(t *testing.T) {
	rewards := &stubRewards{}
	app, _ := newTestApp(t, rewards)

	resp, body := do(t, app, http.MethodPost, "/api/reward/1", `{"amount":500}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, body)
	}

	var got map[string]any
	json.Unmarshal([]byte(body), &got)
	if got["success"] != true || got["new_status"] != "rewarded" {
		t.Errorf("unexpected body %s", body)
	}
	if len(rewards.calls) != 1 || rewards.calls[0] != 1 || rewards.amount != 500 {
		t.Errorf("unexpected reward call %+v", rewards)
	}
}

func TestRewardErrors(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		err        error
		wantStatus int
	}{
		{name: "zero amount", body: `{"amount":0}`, wantStatus: http.StatusBadRequest},
		{name: "non integer amount", body: `{"amount":"lots"}`, wantStatus: http.StatusBadRequest},
		{name: "not found", body: `{"amount":10}`, err: apperr.NotFound("submission"), wantStatus: http.StatusNotFound},
		{name: "already rewarded", body: `{"amount":10}`, err: apperr.Conflict("submission has already been rewarded"), wantStatus: http.StatusConflict},
		{name: "send failure", body: `{"amount":10}`, err: apperr.ExternalError("smtp", errors.New("535 auth failed")), wantStatus: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app, _ := newTestApp(t, &stubRewards{err: tt.err})

			resp, body := do(t, app, http.MethodPost, "/api/reward/1", tt.body)
			if resp.StatusCode != tt.wantStatus {
				t.Errorf("expected %d, got %d: %s", tt.wantStatus, resp.StatusCode, body)
			}
			if !strings.Contains(body, `"success":false`) {
				t.Errorf("expected error envelope, got %s", body)
			}
		})
	}
}

func TestIngestQueuesCycle(t *testing.T) {
	app, _ := newTestApp(t, &stubRewards{})

	resp, body := do(t, app, http.MethodPost, "/api/ingest", "")
	if resp.StatusCode != http.StatusAccepted || !strings.Contains(body, `"queued":true`) {
		t.Errorf("unexpected response %d %s", resp.StatusCode, body)
	}
}

func TestReadyReportsFailingCheck(t *testing.T) {
	app := fiber.New()
	NewHealthHandler(map[string]HealthChecker{
		"snapshot": HealthCheckFunc(func(ctx context.Context) error { return nil }),
		"redis":    HealthCheckFunc(func(ctx context.Context) error { return errors.New("connection refused") }),
		"mongodb":  nil,
	}).Register(app)

	resp, body := do(t, app, http.MethodGet, "/ready", "")
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", resp.StatusCode)
	}
	if !strings.Contains(body, "not configured") || !strings.Contains(body, "unhealthy: connection refused") {
		t.Errorf("unexpected body %s", body)
	}

	resp, _ = do(t, app, http.MethodGet, "/health", "")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("health should always be 200, got %d", resp.StatusCode)
	}
}
