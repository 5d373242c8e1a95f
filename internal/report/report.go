// Package report renders the minimization results as a JSON document and
// writes matched outcomes back into the HAR capture.
package report

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/pretty"

	"github.com/usestring/harslim/pkg/har"
)

// ExchangeSummary describes one observed response. Status is null for
// exchanges that never produced a response.
type ExchangeSummary struct {
	Status *int `json:"status"`
	Length int  `json:"length"`
}

// Counts pairs a phase's candidate count with its surviving count.
type Counts struct {
	Candidates int `json:"candidates"`
	Final      int `json:"final"`
}

// Entry is the per-record report row.
type Entry struct {
	Index            int             `json:"index"`
	Method           string          `json:"method"`
	URL              string          `json:"url"`
	Path             string          `json:"path"`
	Query            url.Values      `json:"query,omitempty"`
	Baseline         ExchangeSummary `json:"baseline"`
	Final            ExchangeSummary `json:"final"`
	Matched          bool            `json:"matched"`
	Headers          Counts          `json:"headers"`
	Body             Counts          `json:"body"`
	MinimizedHeaders har.Headers     `json:"minimized_headers"`
	MinimizedBody    *string         `json:"minimized_body"`
	Error            string          `json:"error,omitempty"`
}

// Document is the top-level report.
type Document struct {
	RunID       string    `json:"run_id"`
	GeneratedAt time.Time `json:"generated_at"`
	Entries     []Entry   `json:"entries"`
}

// NewDocument builds a report over the processed records, in order.
func NewDocument(processed []*har.ProcessedRequest) *Document {
	doc := &Document{
		RunID:       uuid.NewString(),
		GeneratedAt: time.Now().UTC(),
		Entries:     make([]Entry, 0, len(processed)),
	}
	for _, p := range processed {
		doc.Entries = append(doc.Entries, entryFrom(p))
	}
	return doc
}

func entryFrom(p *har.ProcessedRequest) Entry {
	e := Entry{
		Index:  p.Record.Index,
		Method: p.Record.Method,
		URL:    p.Record.URL,
		Path:   p.Record.Path,
		Query:  p.Record.Query,
	}
	if p.Baseline != nil {
		e.Baseline = ExchangeSummary{Status: p.Baseline.Status, Length: p.Baseline.Size()}
		e.Error = p.Baseline.Error
	}
	if out := p.Outcome; out != nil {
		e.Matched = out.Matched
		e.Headers = Counts{Candidates: out.HeaderCandidates, Final: out.FinalHeaders}
		e.Body = Counts{Candidates: out.BodyCandidates, Final: out.FinalBodyFields}
		e.MinimizedHeaders = out.Headers
		e.MinimizedBody = out.Body
		if out.Response != nil {
			e.Final = ExchangeSummary{Status: out.Response.Status, Length: out.Response.Size()}
			if e.Error == "" {
				e.Error = out.Response.Error
			}
		}
	}
	return e
}

// WriteFile renders the document as prettified JSON at path, creating
// parent directories.
func (d *Document) WriteFile(path string) error {
	raw, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("marshaling report: %w", err)
	}
	raw = pretty.Pretty(raw)

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating report dir: %w", err)
		}
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return fmt.Errorf("writing report: %w", err)
	}
	return nil
}

// Apply writes matched outcomes back into the capture. Unmatched records
// keep their original entries. With annotate set, each rewritten entry
// gains a `_minimized` metadata block.
func Apply(capture *har.Capture, processed []*har.ProcessedRequest, annotate bool) error {
	for _, p := range processed {
		out := p.Outcome
		if out == nil || !out.Matched {
			continue
		}

		body := out.Body
		if body == p.Record.Body {
			// Identical pointer means the body phase changed nothing;
			// leave the original postData untouched.
			body = nil
		}

		var meta *har.RewriteMeta
		if annotate {
			meta = &har.RewriteMeta{
				OriginalHeaderCount: len(p.Record.Headers),
				FinalHeaderCount:    out.FinalHeaders,
				HeaderCandidates:    out.HeaderCandidates,
				BodyCandidates:      out.BodyCandidates,
				Matched:             out.Matched,
			}
		}
		if err := capture.Rewrite(p.Record.Index, out.Headers, body, p.Record.MimeType, meta); err != nil {
			return fmt.Errorf("rewriting entry %d: %w", p.Record.Index, err)
		}
	}
	return nil
}
