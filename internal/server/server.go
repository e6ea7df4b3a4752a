// Package server exposes the digest service over HTTP: the request relay,
// digest delivery, the scheduled-job trigger, and operational endpoints.
package server

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/mohammad-safakhou/dailydigest/config"
	"github.com/mohammad-safakhou/dailydigest/internal/digest"
	"github.com/mohammad-safakhou/dailydigest/internal/llm"
	"github.com/mohammad-safakhou/dailydigest/internal/mail"
	"github.com/mohammad-safakhou/dailydigest/internal/probe"
	"github.com/mohammad-safakhou/dailydigest/internal/relay"
)

// Handlers carries the shared dependencies behind the HTTP routes.
type Handlers struct {
	Cfg        *config.Config
	Relay      *relay.Relay
	LLM        *llm.Client
	Dispatcher *mail.Dispatcher
	Runner     *JobRunner
	Logger     *log.Logger

	// KeepAlive overrides the streamed-relay keep-alive cadence; zero means
	// the default.
	KeepAlive time.Duration
}

// Run wires dependencies and serves until the listener fails.
func Run(cfg *config.Config) error {
	e := newEcho()
	e.Debug = cfg.General.Debug

	rly := relay.New()
	client := llm.NewClient(rly)
	checker := probe.NewChecker(rly)
	pipeline := digest.New(client, checker, log.New(log.Writer(), "[PIPELINE] ", log.LstdFlags))
	TunePipeline(pipeline, cfg)
	sender := mail.NewResendClient(cfg.Email.APIKey, cfg.Email.BaseURL)
	dispatcher := mail.NewDispatcher(sender, cfg.Email.From, cfg.Email.SendDelay, nil)

	var rdb *redis.Client
	if cfg.Redis.Host != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     fmt.Sprintf("%s:%s", cfg.Redis.Host, cfg.Redis.Port),
			Password: cfg.Redis.Pass,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			// The lock is an optimization; run without it rather than refuse to start.
			log.Printf("[SERVER] redis unreachable (%s:%s), running without run lock: %v", cfg.Redis.Host, cfg.Redis.Port, err)
			rdb = nil
		}
	}

	runner := NewJobRunner(cfg, pipeline, dispatcher, rdb)
	h := &Handlers{
		Cfg:        cfg,
		Relay:      rly,
		LLM:        client,
		Dispatcher: dispatcher,
		Runner:     runner,
		Logger:     log.New(log.Writer(), "[SERVER] ", log.LstdFlags),
	}
	h.Register(e)

	if cfg.Cron.Schedule != "" {
		sched := &Scheduler{Runner: runner, Spec: cfg.Cron.Schedule, Stop: make(chan struct{})}
		sched.Start()
		defer sched.Shutdown()
	}

	addr := cfg.General.Listen
	if addr == "" {
		addr = ":8080"
	}
	h.Logger.Printf("listening on %s", addr)
	return e.Start(addr)
}

func newEcho() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	baseLogger := log.New(log.Writer(), "[HTTP] ", log.LstdFlags)
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		msg := err.Error()
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
			if he.Message != nil {
				msg = fmt.Sprint(he.Message)
			}
		}
		req := c.Request()
		baseLogger.Printf("%d %s %s from %s: %v", code, req.Method, req.URL.Path, c.RealIP(), err)
		if !c.Response().Committed {
			_ = c.JSON(code, map[string]interface{}{"error": msg})
		}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{"Content-Type", "Authorization"},
	}))
	return e
}

// TunePipeline copies the completion settings from configuration onto the
// pipeline, keeping its built-in defaults where the config is zero.
func TunePipeline(p *digest.Pipeline, cfg *config.Config) {
	if cfg.LLM.MaxTokens > 0 {
		p.MaxTokens = cfg.LLM.MaxTokens
	}
	if cfg.LLM.Temperature > 0 {
		p.Temperature = cfg.LLM.Temperature
	}
	if cfg.LLM.Timeout > 0 {
		p.Timeout = cfg.LLM.Timeout
	}
}

// Register attaches all routes. The metrics endpoint honors the telemetry
// switch; a nil config keeps it on.
func (h *Handlers) Register(e *echo.Echo) {
	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	if h.Cfg == nil || h.Cfg.Telemetry.Enabled {
		e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	}

	api := e.Group("/api")
	api.POST("/relay", h.relay)
	api.POST("/digest", h.sendDigest)
	api.GET("/cron", h.cron)
	api.GET("/models", h.models)
}
