package digest

import (
	"errors"
	"fmt"
)

// ErrNoCandidates means discovery produced an empty candidate list.
var ErrNoCandidates = errors.New("no candidates found")

// ValidationExhaustedError means every discovered link failed the liveness
// check, so there is nothing to elaborate.
type ValidationExhaustedError struct {
	Candidates int
}

func (e *ValidationExhaustedError) Error() string {
	return fmt.Sprintf("all %d candidate links failed the liveness check; consider a stronger model with working web search", e.Candidates)
}
