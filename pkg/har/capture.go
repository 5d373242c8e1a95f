package har

import (
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
)

// Capture holds a parsed HAR document. The raw document is kept as a
// generic JSON value so entries that minimization never touches round-trip
// unchanged through Encode.
type Capture struct {
	records []*RequestRecord
	raw     map[string]any
}

// Load parses a HAR document from r.
func Load(r io.Reader) (*Capture, error) {
	var raw map[string]any
	dec := json.NewDecoder(r)
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decoding HAR: %w", err)
	}

	c := &Capture{raw: raw}
	for idx, entry := range c.entries() {
		rec, err := recordFromEntry(idx, entry)
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", idx, err)
		}
		c.records = append(c.records, rec)
	}
	return c, nil
}

// LoadFile parses the HAR document at path.
func LoadFile(path string) (*Capture, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening HAR: %w", err)
	}
	defer f.Close()
	return Load(f)
}

// Records returns the captured requests in capture order.
func (c *Capture) Records() []*RequestRecord {
	return c.records
}

// entries returns the raw log.entries array, nil when absent.
func (c *Capture) entries() []any {
	log, ok := c.raw["log"].(map[string]any)
	if !ok {
		return nil
	}
	entries, _ := log["entries"].([]any)
	return entries
}

func recordFromEntry(idx int, entry any) (*RequestRecord, error) {
	em, ok := entry.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("entry is not an object")
	}
	req, _ := em["request"].(map[string]any)

	rec := &RequestRecord{
		Index:  idx,
		Method: stringField(req, "method", "GET"),
		URL:    stringField(req, "url", ""),
		Query:  url.Values{},
	}
	if u, err := url.Parse(rec.URL); err == nil {
		rec.Path = u.Path
		rec.Query = u.Query()
	}

	if hdrs, ok := req["headers"].([]any); ok {
		for _, h := range hdrs {
			hm, ok := h.(map[string]any)
			if !ok {
				continue
			}
			name := stringField(hm, "name", "")
			if name == "" {
				continue
			}
			rec.Headers = append(rec.Headers, Header{Name: name, Value: stringField(hm, "value", "")})
		}
	}

	if post, ok := req["postData"].(map[string]any); ok {
		if text, ok := post["text"].(string); ok {
			rec.Body = &text
		}
		if mime, ok := post["mimeType"].(string); ok && mime != "" {
			rec.MimeType = &mime
		}
	}
	return rec, nil
}

func stringField(m map[string]any, key, fallback string) string {
	if m == nil {
		return fallback
	}
	if v, ok := m[key].(string); ok {
		return v
	}
	return fallback
}

// RewriteMeta is the optional per-entry metadata block attached to
// rewritten entries.
type RewriteMeta struct {
	OriginalHeaderCount int
	FinalHeaderCount    int
	HeaderCandidates    int
	BodyCandidates      int
	Matched             bool
}

// Rewrite replaces the header list of the entry at index and, when body is
// non-nil, its postData text. A previously declared mimeType is never
// cleared; when the entry has no postData block and the record declared a
// mime type, it is carried over alongside the new body. Entries without a
// body override keep their original payload untouched.
func (c *Capture) Rewrite(index int, headers Headers, body *string, mimeType *string, meta *RewriteMeta) error {
	entries := c.entries()
	if index < 0 || index >= len(entries) {
		return fmt.Errorf("entry index %d out of range", index)
	}
	em, ok := entries[index].(map[string]any)
	if !ok {
		return fmt.Errorf("entry %d is not an object", index)
	}
	req, ok := em["request"].(map[string]any)
	if !ok {
		req = map[string]any{}
		em["request"] = req
	}

	hdrs := make([]any, 0, len(headers))
	for _, h := range headers {
		hdrs = append(hdrs, map[string]any{"name": h.Name, "value": h.Value})
	}
	req["headers"] = hdrs

	if body != nil {
		post, ok := req["postData"].(map[string]any)
		if !ok {
			post = map[string]any{}
			req["postData"] = post
		}
		post["text"] = *body
		if _, declared := post["mimeType"]; !declared && mimeType != nil {
			post["mimeType"] = *mimeType
		}
	}

	if meta != nil {
		em["_minimized"] = map[string]any{
			"original_header_count": meta.OriginalHeaderCount,
			"final_header_count":    meta.FinalHeaderCount,
			"header_candidates":     meta.HeaderCandidates,
			"body_candidates":       meta.BodyCandidates,
			"matched":               meta.Matched,
		}
	}
	return nil
}

// Encode writes the (possibly rewritten) document to w.
func (c *Capture) Encode(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(c.raw)
}

// WriteFile writes the document to path, creating parent directories.
func (c *Capture) WriteFile(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating output dir: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating HAR output: %w", err)
	}
	defer f.Close()
	if err := c.Encode(f); err != nil {
		return fmt.Errorf("encoding HAR: %w", err)
	}
	return nil
}
