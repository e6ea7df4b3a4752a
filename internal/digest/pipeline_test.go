package digest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/mohammad-safakhou/dailydigest/internal/llm"
)

type fakeCompleter struct {
	responses []string
	calls     []llm.CompletionRequest
}

func (f *fakeCompleter) Complete(_ context.Context, _ llm.Credentials, req llm.CompletionRequest) (string, error) {
	f.calls = append(f.calls, req)
	if len(f.responses) == 0 {
		return "", errors.New("unexpected completion call")
	}
	resp := f.responses[0]
	f.responses = f.responses[1:]
	return resp, nil
}

type fakeChecker struct {
	mu     sync.Mutex
	alive  map[string]bool
	probes int
}

func (f *fakeChecker) IsAlive(_ context.Context, url string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.probes++
	return f.alive[url]
}

func testCreds() llm.Credentials {
	return llm.Credentials{APIKey: "k", BaseURL: "https://x/v1", Model: "m"}
}

func TestRunFailsOnEmptyDiscovery(t *testing.T) {
	completer := &fakeCompleter{responses: []string{`{"candidates":[]}`}}
	checker := &fakeChecker{alive: map[string]bool{}}
	p := New(completer, checker, nil)

	_, err := p.Run(context.Background(), testCreds(), nil)
	if !errors.Is(err, ErrNoCandidates) {
		t.Fatalf("expected ErrNoCandidates, got %v", err)
	}
	if checker.probes != 0 {
		t.Fatalf("no probes may run after empty discovery, got %d", checker.probes)
	}
	if len(completer.calls) != 1 {
		t.Fatalf("expected exactly one completion call, got %d", len(completer.calls))
	}
}

func TestRunFailsWhenValidationExhausted(t *testing.T) {
	completer := &fakeCompleter{responses: []string{
		`{"candidates":[{"title":"A","url":"https://a","category":"social"},{"title":"B","url":"https://b","category":"health"}]}`,
	}}
	checker := &fakeChecker{alive: map[string]bool{}}
	p := New(completer, checker, nil)

	_, err := p.Run(context.Background(), testCreds(), nil)
	var ve *ValidationExhaustedError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationExhaustedError, got %v", err)
	}
	if ve.Candidates != 2 {
		t.Fatalf("expected 2 candidates in error, got %d", ve.Candidates)
	}
	if len(completer.calls) != 1 {
		t.Fatalf("elaboration must not run after exhausted validation, calls=%d", len(completer.calls))
	}
	if checker.probes != 2 {
		t.Fatalf("expected 2 probes, got %d", checker.probes)
	}
}

func TestRunEndToEnd(t *testing.T) {
	completer := &fakeCompleter{responses: []string{
		`{"candidates":[{"title":"A","url":"https://a","category":"social"}]}`,
		`{"social":[{"title":"A","summary_cn":"摘要","summary_en":"summary","source_url":"https://a","source_name":"X","ai_score":80,"ai_score_reason":"notable","tags":["x"]}]}`,
	}}
	checker := &fakeChecker{alive: map[string]bool{"https://a": true}}
	p := New(completer, checker, nil)

	var progress []string
	data, err := p.Run(context.Background(), testCreds(), func(_ Level, msg string) {
		progress = append(progress, msg)
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(data.Social) != 1 || len(data.Health) != 0 {
		t.Fatalf("expected 1 social / 0 health, got %d/%d", len(data.Social), len(data.Health))
	}
	item := data.Social[0]
	if item.SourceURL != "https://a" || item.AIScore != 80 || item.SourceName != "X" {
		t.Fatalf("unexpected item: %+v", item)
	}
	if len(progress) == 0 {
		t.Fatal("expected progress messages")
	}

	// Both completion calls must stream with the configured tuning.
	for i, call := range completer.calls {
		if !call.Stream {
			t.Fatalf("call %d must request streaming", i)
		}
		if call.Temperature == nil || *call.Temperature != p.Temperature {
			t.Fatalf("call %d temperature not set", i)
		}
		if call.MaxTokens != p.MaxTokens {
			t.Fatalf("call %d max tokens not set", i)
		}
	}
}

// stalledCompleter never answers; it waits for the caller's deadline.
type stalledCompleter struct{}

func (stalledCompleter) Complete(ctx context.Context, _ llm.Credentials, _ llm.CompletionRequest) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func TestRunAbortsStalledCompletion(t *testing.T) {
	p := New(stalledCompleter{}, &fakeChecker{}, nil)
	p.Timeout = 10 * time.Millisecond

	done := make(chan error, 1)
	go func() {
		_, err := p.Run(context.Background(), testCreds(), nil)
		done <- err
	}()
	select {
	case err := <-done:
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("expected deadline error, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("run must abort a stalled completion instead of hanging")
	}
}

func TestRunDropsInventedSourceURLs(t *testing.T) {
	completer := &fakeCompleter{responses: []string{
		`{"candidates":[{"title":"A","url":"https://a","category":"social"}]}`,
		`{"social":[{"title":"A","source_url":"https://invented.example","ai_score":50,"tags":[]}]}`,
	}}
	checker := &fakeChecker{alive: map[string]bool{"https://a": true}}
	p := New(completer, checker, nil)

	data, err := p.Run(context.Background(), testCreds(), nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(data.Social) != 0 {
		t.Fatalf("item with invented source_url must be dropped, got %+v", data.Social)
	}
}

func TestRunClampsScoreAndCoercesArrays(t *testing.T) {
	completer := &fakeCompleter{responses: []string{
		`{"candidates":[{"title":"A","url":"https://a","category":"health"}]}`,
		`{"health":[{"title":"A","source_url":"https://a","ai_score":150}]}`,
	}}
	checker := &fakeChecker{alive: map[string]bool{"https://a": true}}
	p := New(completer, checker, nil)

	data, err := p.Run(context.Background(), testCreds(), nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if data.Social == nil || len(data.Social) != 0 {
		t.Fatalf("missing social array must coerce to empty, got %#v", data.Social)
	}
	if len(data.Health) != 1 {
		t.Fatalf("expected 1 health item")
	}
	if got := data.Health[0].AIScore; got != 100 {
		t.Fatalf("score must clamp to 100, got %d", got)
	}
	if data.Health[0].Tags == nil {
		t.Fatal("tags must coerce to empty slice")
	}
}

func TestSearchToolSkippedForNonSearchModels(t *testing.T) {
	completer := &fakeCompleter{responses: []string{`{"candidates":[]}`}}
	p := New(completer, &fakeChecker{}, nil)

	creds := testCreds()
	creds.Model = "deepseek-chat"
	_, _ = p.Run(context.Background(), creds, nil)
	if len(completer.calls) != 1 {
		t.Fatalf("expected one call, got %d", len(completer.calls))
	}
	if completer.calls[0].Tools != nil {
		t.Fatalf("non-search model must not get tools, got %v", completer.calls[0].Tools)
	}
}
