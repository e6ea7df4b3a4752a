package server

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/mohammad-safakhou/dailydigest/config"
	"github.com/mohammad-safakhou/dailydigest/internal/digest"
	"github.com/mohammad-safakhou/dailydigest/internal/llm"
	"github.com/mohammad-safakhou/dailydigest/internal/mail"
	"github.com/mohammad-safakhou/dailydigest/internal/telemetry"
)

const cronLockKey = "digest:cron:lock"

// JobRunner executes the unattended digest job: full pipeline plus delivery,
// wrapped in a bounded retry loop. Unlike the interactive pipeline, which
// surfaces the first failure immediately, the job retries the whole sequence
// and reports only the final attempt's error.
type JobRunner struct {
	Cfg        *config.Config
	Pipeline   *digest.Pipeline
	Dispatcher *mail.Dispatcher
	Rdb        *redis.Client
	Logger     *log.Logger

	// sleep is swapped out by tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewJobRunner wires the scheduled job.
func NewJobRunner(cfg *config.Config, p *digest.Pipeline, d *mail.Dispatcher, rdb *redis.Client) *JobRunner {
	return &JobRunner{
		Cfg:        cfg,
		Pipeline:   p,
		Dispatcher: d,
		Rdb:        rdb,
		Logger:     log.New(log.Writer(), "[CRON] ", log.LstdFlags),
		sleep:      ctxSleep,
	}
}

// JobResult is the response shape of GET /api/cron.
type JobResult struct {
	Success  bool   `json:"success"`
	Attempts int    `json:"attempts"`
	Error    string `json:"error,omitempty"`
}

// Run validates configuration, takes the distributed lock when Redis is
// available, and drives the retry loop around one pipeline+send sequence.
func (j *JobRunner) Run(ctx context.Context) (int, error) {
	if err := j.Cfg.ValidateJob(); err != nil {
		return 0, err
	}
	if j.Rdb != nil {
		ok, err := j.Rdb.SetNX(ctx, cronLockKey, "1", 10*time.Minute).Result()
		if err == nil && !ok {
			return 0, fmt.Errorf("another scheduled run is already in progress")
		}
		if err == nil {
			defer j.Rdb.Del(context.Background(), cronLockKey)
		}
	}
	return j.RunWithRetry(ctx, j.once)
}

// RunWithRetry retries job up to cron.max_retries times with a fixed delay
// between attempts, returning the attempt count and the last error if every
// attempt failed.
func (j *JobRunner) RunWithRetry(ctx context.Context, job func(ctx context.Context) error) (int, error) {
	maxAttempts := j.Cfg.Cron.MaxRetries
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		telemetry.CronAttempts.Inc()
		if lastErr = job(ctx); lastErr == nil {
			j.Logger.Printf("job succeeded on attempt %d/%d", attempt, maxAttempts)
			return attempt, nil
		}
		j.Logger.Printf("attempt %d/%d failed: %v", attempt, maxAttempts, lastErr)
		if attempt < maxAttempts {
			if err := j.sleep(ctx, j.Cfg.Cron.RetryDelay); err != nil {
				return attempt, err
			}
		}
	}
	return maxAttempts, lastErr
}

func (j *JobRunner) once(ctx context.Context) error {
	creds := llm.Credentials{
		APIKey:  j.Cfg.LLM.APIKey,
		BaseURL: j.Cfg.LLM.BaseURL,
		Model:   j.Cfg.LLM.Model,
	}
	data, err := j.Pipeline.Run(ctx, creds, nil)
	if err != nil {
		return err
	}
	_, err = j.Dispatcher.Send(ctx, data, j.Cfg.Email.Recipients)
	return err
}

// ctxSleep waits for d unless the context ends first.
func ctxSleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// cron handles GET /api/cron. The shared secret is mandatory: an unset
// secret disables the endpoint rather than leaving it open.
func (h *Handlers) cron(c echo.Context) error {
	secret := h.Cfg.Cron.Secret
	if secret == "" || c.Request().Header.Get("Authorization") != "Bearer "+secret {
		return echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	attempts, err := h.Runner.Run(c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, JobResult{Attempts: attempts, Error: err.Error()})
	}
	return c.JSON(http.StatusOK, JobResult{Success: true, Attempts: attempts})
}
