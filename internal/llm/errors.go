package llm

import "fmt"

// UpstreamError reports a non-success status or an explicit error payload
// from the completions provider.
type UpstreamError struct {
	Status  int
	Message string
}

func (e *UpstreamError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("upstream error (status %d): %s", e.Status, e.Message)
	}
	return fmt.Sprintf("upstream error: %s", e.Message)
}

const excerptLimit = 200

// ParseError is raised when no JSON value can be recovered from model output.
// It carries a truncated excerpt of the offending input for diagnostics.
type ParseError struct {
	Excerpt string
	Err     error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("could not extract JSON from model output: %v (input: %q)", e.Err, e.Excerpt)
}

func (e *ParseError) Unwrap() error { return e.Err }

func excerpt(s string) string {
	if len(s) > excerptLimit {
		return s[:excerptLimit] + "..."
	}
	return s
}
