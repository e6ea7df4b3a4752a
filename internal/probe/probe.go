// Package probe performs cheap liveness checks on candidate source URLs so
// hallucinated or dead links never reach the final digest.
package probe

import (
	"context"
	"net/http"
	"strings"

	"github.com/mohammad-safakhou/dailydigest/internal/relay"
)

// Browsers get different treatment than bots on many news sites.
const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0 Safari/537.36"

const firstChunk = 4096

// Doer forwards the probe request; satisfied by *relay.Relay.
type Doer interface {
	Do(ctx context.Context, req relay.Request) (*http.Response, error)
}

// Checker probes URLs through the relay.
type Checker struct {
	doer Doer
}

// NewChecker builds a liveness checker.
func NewChecker(doer Doer) *Checker {
	return &Checker{doer: doer}
}

// IsAlive issues one GET and inspects only the first available chunk of the
// body. An "event: error" marker or a JSON error fragment in that chunk, or
// any transport failure, means dead. This trades thoroughness for speed
// across many concurrent checks.
func (c *Checker) IsAlive(ctx context.Context, url string) bool {
	resp, err := c.doer.Do(ctx, relay.Request{
		TargetURL: url,
		Method:    http.MethodGet,
		Headers:   map[string]string{"User-Agent": userAgent},
	})
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	buf := make([]byte, firstChunk)
	n, _ := resp.Body.Read(buf)
	chunk := string(buf[:n])
	if strings.Contains(chunk, "event: error") || strings.Contains(chunk, `"error":`) {
		return false
	}
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}
