package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mohammad-safakhou/dailydigest/config"
)

func testJobConfig() *config.Config {
	return &config.Config{
		LLM: config.LLMConfig{APIKey: "k", BaseURL: "https://x/v1", Model: "m"},
		Email: config.EmailConfig{
			APIKey:     "rk",
			Recipients: []string{"a@example.com"},
		},
		Cron: config.CronConfig{Secret: "s3cret", MaxRetries: 3, RetryDelay: 30 * time.Second},
	}
}

func TestRunWithRetrySucceedsOnThirdAttempt(t *testing.T) {
	runner := NewJobRunner(testJobConfig(), nil, nil, nil)
	var sleeps int
	runner.sleep = func(ctx context.Context, d time.Duration) error {
		if d != 30*time.Second {
			t.Fatalf("unexpected retry delay %v", d)
		}
		sleeps++
		return nil
	}

	calls := 0
	attempts, err := runner.RunWithRetry(context.Background(), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("transient failure")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("RunWithRetry: %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
	if sleeps != 2 {
		t.Fatalf("expected exactly 2 sleeps, got %d", sleeps)
	}
}

func TestRunWithRetryReturnsLastError(t *testing.T) {
	runner := NewJobRunner(testJobConfig(), nil, nil, nil)
	runner.sleep = func(ctx context.Context, d time.Duration) error { return nil }

	calls := 0
	attempts, err := runner.RunWithRetry(context.Background(), func(ctx context.Context) error {
		calls++
		if calls == 3 {
			return errors.New("final failure")
		}
		return errors.New("earlier failure")
	})
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
	if err == nil || err.Error() != "final failure" {
		t.Fatalf("expected last attempt's error, got %v", err)
	}
}

func TestRunRefusesIncompleteConfig(t *testing.T) {
	cfg := testJobConfig()
	cfg.LLM.APIKey = ""
	runner := NewJobRunner(cfg, nil, nil, nil)
	attempts, err := runner.Run(context.Background())
	if err == nil {
		t.Fatal("expected configuration error")
	}
	if attempts != 0 {
		t.Fatalf("no attempts may run with bad config, got %d", attempts)
	}
}

func TestCronEndpointAuth(t *testing.T) {
	e := newEcho()
	h := &Handlers{Cfg: testJobConfig(), Runner: NewJobRunner(testJobConfig(), nil, nil, nil)}
	h.Register(e)

	// Missing header.
	req := httptest.NewRequest(http.MethodGet, "/api/cron", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}

	// Wrong token.
	req = httptest.NewRequest(http.MethodGet, "/api/cron", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with wrong token, got %d", rec.Code)
	}
}

func TestCronEndpointUnauthorizedWhenSecretUnset(t *testing.T) {
	cfg := testJobConfig()
	cfg.Cron.Secret = ""
	e := newEcho()
	h := &Handlers{Cfg: cfg, Runner: NewJobRunner(cfg, nil, nil, nil)}
	h.Register(e)

	req := httptest.NewRequest(http.MethodGet, "/api/cron", nil)
	req.Header.Set("Authorization", "Bearer anything")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("unset secret must disable the endpoint, got %d", rec.Code)
	}
}

func TestCronEndpointReportsJobFailure(t *testing.T) {
	cfg := testJobConfig()
	cfg.Email.Recipients = nil // job config incomplete -> immediate failure
	e := newEcho()
	h := &Handlers{Cfg: cfg, Runner: NewJobRunner(cfg, nil, nil, nil)}
	h.Register(e)

	req := httptest.NewRequest(http.MethodGet, "/api/cron", nil)
	req.Header.Set("Authorization", "Bearer s3cret")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	var res JobResult
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.Success || res.Error == "" {
		t.Fatalf("expected failure payload, got %+v", res)
	}
}
