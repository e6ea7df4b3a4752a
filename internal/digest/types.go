// Package digest runs the three-phase content pipeline: discovery of
// candidate news leads, liveness validation of their links, and elaboration
// into a full bilingual digest.
package digest

import "time"

// Categories are the only two values a candidate or item may carry.
const (
	CategorySocial = "social"
	CategoryHealth = "health"
)

// Item is one curated news item. Items are created only by the elaboration
// phase and never mutated afterwards.
type Item struct {
	Title         string   `json:"title"`
	SummaryEN     string   `json:"summary_en"`
	SummaryCN     string   `json:"summary_cn"`
	SourceURL     string   `json:"source_url"`
	SourceName    string   `json:"source_name"`
	AIScore       int      `json:"ai_score"`
	AIScoreReason string   `json:"ai_score_reason"`
	Tags          []string `json:"tags"`
	XHSTitles     []string `json:"xhs_titles,omitempty"`
}

// Data is the complete pipeline output for one run, immutable once returned.
// Item ordering follows the elaboration response.
type Data struct {
	Social []Item `json:"social"`
	Health []Item `json:"health"`
}

// Empty reports whether the digest carries no items at all.
func (d Data) Empty() bool {
	return len(d.Social) == 0 && len(d.Health) == 0
}

// Candidate is a discovery-phase lead. Candidates are consumed by validation
// and never leave the pipeline.
type Candidate struct {
	Title    string `json:"title"`
	URL      string `json:"url"`
	Category string `json:"category"`
}

// Level classifies a progress message.
type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelError   Level = "error"
)

// LogEntry is an append-only progress record. The pipeline emits messages
// through a ProgressFunc and retains nothing; entries belong to the caller.
type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message"`
	Type      Level     `json:"type"`
}

// ProgressFunc receives pipeline progress. It is called from the pipeline
// goroutine only.
type ProgressFunc func(level Level, message string)
