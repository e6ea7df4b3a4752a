package digest

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/mohammad-safakhou/dailydigest/internal/llm"
	"github.com/mohammad-safakhou/dailydigest/internal/telemetry"
)

// Completer issues one completion request and returns the assistant text.
type Completer interface {
	Complete(ctx context.Context, creds llm.Credentials, req llm.CompletionRequest) (string, error)
}

// LinkChecker reports whether a URL is alive.
type LinkChecker interface {
	IsAlive(ctx context.Context, url string) bool
}

// Pipeline orchestrates discovery, validation and elaboration. It holds no
// per-run state: credentials and the progress sink are explicit parameters
// and nothing survives between invocations.
type Pipeline struct {
	llm     Completer
	checker LinkChecker
	logger  *log.Logger

	// MaxProbes bounds concurrent liveness checks during validation.
	MaxProbes int
	// MaxTokens and Temperature are passed through to both completion calls.
	MaxTokens   int
	Temperature float64
	// Timeout bounds each completion call; a stalled upstream stream aborts
	// instead of hanging the run. Zero disables the bound.
	Timeout time.Duration
}

// New builds a pipeline with default tuning.
func New(completer Completer, checker LinkChecker, logger *log.Logger) *Pipeline {
	if logger == nil {
		logger = log.New(log.Writer(), "[PIPELINE] ", log.LstdFlags)
	}
	return &Pipeline{
		llm:         completer,
		checker:     checker,
		logger:      logger,
		MaxProbes:   8,
		MaxTokens:   8000,
		Temperature: 0.4,
		Timeout:     5 * time.Minute,
	}
}

type emitFunc func(level Level, format string, args ...any)

// Run executes one full pipeline pass. Any phase's fatal condition aborts the
// whole run; there is no partial result. The discovery minimum per category
// is advisory only: the run proceeds with whatever non-empty candidate set
// the model returns.
func (p *Pipeline) Run(ctx context.Context, creds llm.Credentials, progress ProgressFunc) (Data, error) {
	runID := uuid.NewString()[:8]
	start := time.Now()
	emit := func(level Level, format string, args ...any) {
		msg := fmt.Sprintf(format, args...)
		p.logger.Printf("[run %s] %s", runID, msg)
		if progress != nil {
			progress(level, msg)
		}
	}

	data, err := p.run(ctx, creds, emit)
	if err != nil {
		telemetry.PipelineRuns.WithLabelValues("failed").Inc()
		emit(LevelError, "pipeline failed: %v", err)
		return Data{}, err
	}
	telemetry.PipelineRuns.WithLabelValues("succeeded").Inc()
	telemetry.PipelineDuration.Observe(time.Since(start).Seconds())
	emit(LevelSuccess, "digest ready: %d social, %d health items", len(data.Social), len(data.Health))
	return data, nil
}

func (p *Pipeline) run(ctx context.Context, creds llm.Credentials, emit emitFunc) (Data, error) {
	candidates, err := p.discover(ctx, creds, emit)
	if err != nil {
		return Data{}, err
	}
	validated, err := p.validate(ctx, candidates, emit)
	if err != nil {
		return Data{}, err
	}
	return p.elaborate(ctx, creds, validated, emit)
}

func (p *Pipeline) discover(ctx context.Context, creds llm.Credentials, emit emitFunc) ([]Candidate, error) {
	emit(LevelInfo, "discovering candidate stories with %s", creds.Model)
	temp := p.Temperature
	req := llm.CompletionRequest{
		Messages:    []llm.Message{{Role: "user", Content: discoveryPrompt(time.Now())}},
		Stream:      true,
		MaxTokens:   p.MaxTokens,
		Temperature: &temp,
	}
	if supportsSearch(creds.Model) {
		req.Tools = searchTools
	}
	raw, err := p.complete(ctx, creds, req)
	if err != nil {
		return nil, fmt.Errorf("discovery: %w", err)
	}
	var out struct {
		Candidates []Candidate `json:"candidates"`
	}
	if err := llm.ExtractJSON(raw, &out); err != nil {
		return nil, fmt.Errorf("discovery: %w", err)
	}
	if len(out.Candidates) == 0 {
		return nil, fmt.Errorf("discovery: %w", ErrNoCandidates)
	}
	emit(LevelInfo, "found %d candidates", len(out.Candidates))
	return out.Candidates, nil
}

// validate probes every candidate concurrently, bounded by MaxProbes, and
// waits for all verdicts before filtering. Failed probes remove candidates
// silently; only a clean sweep of failures aborts the run.
func (p *Pipeline) validate(ctx context.Context, candidates []Candidate, emit emitFunc) ([]Candidate, error) {
	emit(LevelInfo, "validating %d candidate links", len(candidates))
	alive := make([]bool, len(candidates))
	g := new(errgroup.Group)
	g.SetLimit(p.MaxProbes)
	for i, c := range candidates {
		g.Go(func() error {
			alive[i] = p.checker.IsAlive(ctx, c.URL)
			verdict := "dead"
			if alive[i] {
				verdict = "alive"
			}
			telemetry.ProbeVerdicts.WithLabelValues(verdict).Inc()
			return nil
		})
	}
	_ = g.Wait() // probes report verdicts, never errors; this is a pure join

	validated := make([]Candidate, 0, len(candidates))
	for i, ok := range alive {
		if ok {
			validated = append(validated, candidates[i])
		}
	}
	if len(validated) == 0 {
		return nil, &ValidationExhaustedError{Candidates: len(candidates)}
	}
	emit(LevelInfo, "%d of %d links passed the liveness check", len(validated), len(candidates))
	return validated, nil
}

// complete issues one completion call under the pipeline's timeout.
func (p *Pipeline) complete(ctx context.Context, creds llm.Credentials, req llm.CompletionRequest) (string, error) {
	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}
	return p.llm.Complete(ctx, creds, req)
}

func (p *Pipeline) elaborate(ctx context.Context, creds llm.Credentials, validated []Candidate, emit emitFunc) (Data, error) {
	emit(LevelInfo, "elaborating %d validated leads", len(validated))
	temp := p.Temperature
	raw, err := p.complete(ctx, creds, llm.CompletionRequest{
		Messages:    []llm.Message{{Role: "user", Content: elaborationPrompt(validated)}},
		Stream:      true,
		MaxTokens:   p.MaxTokens,
		Temperature: &temp,
	})
	if err != nil {
		return Data{}, fmt.Errorf("elaboration: %w", err)
	}
	var out Data
	if err := llm.ExtractJSON(raw, &out); err != nil {
		return Data{}, fmt.Errorf("elaboration: %w", err)
	}

	allowed := make(map[string]bool, len(validated))
	for _, c := range validated {
		allowed[c.URL] = true
	}
	out.Social = p.keepValidated(out.Social, allowed, emit)
	out.Health = p.keepValidated(out.Health, allowed, emit)
	return out, nil
}

// keepValidated enforces the source invariant: every item must point at a URL
// that passed validation. Items with invented URLs are dropped, scores are
// clamped into [0,100], and nil slices become empty ones.
func (p *Pipeline) keepValidated(items []Item, allowed map[string]bool, emit emitFunc) []Item {
	kept := make([]Item, 0, len(items))
	for _, it := range items {
		if !allowed[it.SourceURL] {
			emit(LevelInfo, "dropping %q: source_url was not among validated links", it.Title)
			continue
		}
		if it.AIScore < 0 {
			it.AIScore = 0
		}
		if it.AIScore > 100 {
			it.AIScore = 100
		}
		if it.Tags == nil {
			it.Tags = []string{}
		}
		kept = append(kept, it)
	}
	return kept
}
