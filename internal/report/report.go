// Package report assembles the per-run summary the pipeline emits.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"text/template"
	"time"

	"github.com/google/uuid"

	"github.com/FranksOps/trendhound/internal/store"
)

// maxKeywordSample caps how many keywords the summary lists verbatim.
const maxKeywordSample = 10

// Database summarizes the persistence phase of one run.
type Database struct {
	ProcessedCount int      `json:"processed_count"`
	ErrorCount     int      `json:"error_count"`
	Inserted       []string `json:"inserted,omitempty"`
	Updated        []string `json:"updated,omitempty"`
	VerifiedCount  int      `json:"verified_count"`
	SampledCount   int      `json:"sampled_count"`
}

// Report is the machine-readable outcome of one collection run.
type Report struct {
	RunID                string         `json:"run_id"`
	Success              bool           `json:"success"`
	KeywordsCount        int            `json:"keywords_count"`
	KeywordsSample       []string       `json:"keywords_sample,omitempty"`
	ExecutionTimeSeconds float64        `json:"execution_time_seconds"`
	Sources              map[string]int `json:"sources"`
	Database             *Database      `json:"database,omitempty"`
	Error                string         `json:"error,omitempty"`
	Timestamp            string         `json:"timestamp"`
}

// New creates an empty report stamped with a fresh run ID and the current
// time. The pipeline fills in the rest as phases complete.
func New() *Report {
	return &Report{
		RunID:     uuid.NewString(),
		Sources:   make(map[string]int),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

// SetKeywords records the final keyword set, keeping at most a small
// sample verbatim.
func (r *Report) SetKeywords(keywords []string) {
	r.KeywordsCount = len(keywords)
	sample := keywords
	if len(sample) > maxKeywordSample {
		sample = sample[:maxKeywordSample]
	}
	r.KeywordsSample = append([]string{}, sample...)
}

// SetDatabase records the persistence outcome.
func (r *Report) SetDatabase(stats store.UpsertStats) {
	r.Database = &Database{
		ProcessedCount: stats.ProcessedCount,
		ErrorCount:     stats.ErrorCount,
		Inserted:       stats.InsertedKeywords,
		Updated:        stats.UpdatedKeywords,
		VerifiedCount:  stats.VerifiedCount,
		SampledCount:   stats.SampledCount,
	}
}

// WriteJSON writes the report to the provided writer in JSON format.
func WriteJSON(w io.Writer, r *Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(r); err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	return nil
}

// WriteText writes a human-readable run summary to the provided writer.
func WriteText(w io.Writer, r *Report) error {
	const textTmpl = `Trendhound Run Summary
----------------------
Run ID:        {{.RunID}}
Timestamp:     {{.Timestamp}}
Success:       {{.Success}}
Duration:      {{printf "%.1f" .ExecutionTimeSeconds}}s
Keywords:      {{.KeywordsCount}}
{{- if .KeywordsSample}}
Sample:
{{- range .KeywordsSample}}
  {{.}}
{{- end}}
{{- end}}

Sources:
{{- range $name, $count := .Sources}}
  {{$name}}: {{$count}}
{{- else}}
  None
{{- end}}
{{- if .Database}}

Database:
  Processed:   {{.Database.ProcessedCount}}
  Errors:      {{.Database.ErrorCount}}
  Inserted:    {{len .Database.Inserted}}
  Updated:     {{len .Database.Updated}}
  Verified:    {{.Database.VerifiedCount}}/{{.Database.SampledCount}}
{{- end}}
{{- if .Error}}

Error: {{.Error}}
{{- end}}
`

	t, err := template.New("textReport").Parse(textTmpl)
	if err != nil {
		return fmt.Errorf("parse report template: %w", err)
	}

	if err := t.Execute(w, r); err != nil {
		return fmt.Errorf("render report: %w", err)
	}

	return nil
}
