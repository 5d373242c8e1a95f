// Package minimize drives the per-request minimization state machine:
// baseline, header reduction, body reduction, cross-validation, the
// fallback cascade and the optional blank-value refinement.
package minimize

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/usestring/harslim/internal/compare"
	"github.com/usestring/harslim/internal/config"
	"github.com/usestring/harslim/internal/ddmin"
	"github.com/usestring/harslim/internal/replay"
	"github.com/usestring/harslim/pkg/contenttype"
	"github.com/usestring/harslim/pkg/har"
)

// accepted is the explicit "last accepted" slot: the most recent state
// whose probe the oracle confirmed, paired with that probe's response.
type accepted[T any] struct {
	state T
	resp  *har.ResponseSnapshot
}

// Minimizer reduces one request at a time against a live endpoint.
type Minimizer struct {
	cfg            *config.Config
	client         *replay.Client
	cmp            *compare.Comparator
	candidateRegex []*regexp.Regexp
}

// New builds a minimizer, compiling the header candidate patterns so a
// bad pattern fails at startup.
func New(cfg *config.Config, client *replay.Client, cmp *compare.Comparator) (*Minimizer, error) {
	m := &Minimizer{cfg: cfg, client: client, cmp: cmp}
	for _, pattern := range cfg.Minimize.Headers.CandidateRegex {
		re, err := regexp.Compile("(?i)" + pattern)
		if err != nil {
			return nil, fmt.Errorf("compiling header candidate regex %q: %w", pattern, err)
		}
		m.candidateRegex = append(m.candidateRegex, re)
	}
	return m, nil
}

// Minimize runs the full state machine for one record and returns the
// baseline snapshot and the outcome. The record itself is never mutated.
func (m *Minimizer) Minimize(ctx context.Context, rec *har.RequestRecord) (*har.ResponseSnapshot, *har.MinimizationOutcome) {
	slog.Info("minimizing request", slog.Int("index", rec.Index), slog.String("method", rec.Method), slog.String("url", rec.URL))

	originalHeaders := rec.Headers.Clone()
	baseline := m.client.Exchange(ctx, rec, originalHeaders, nil)
	if !baseline.Healthy() {
		slog.Warn("baseline exchange failed", slog.Int("index", rec.Index), slog.String("error", baseline.Error))
		return baseline, &har.MinimizationOutcome{
			Headers:          originalHeaders,
			Body:             rec.Body,
			Response:         baseline,
			Matched:          false,
			HeaderCandidates: len(originalHeaders),
			FinalHeaders:     len(originalHeaders),
		}
	}

	budget := m.cfg.MaxTestsPerRequest
	kind := contenttype.Resolve(m.cfg.Minimize.Body.Mode, mimeType(rec))

	headersState := originalHeaders
	bodyState := rec.Body
	headerCandidates, bodyCandidates := 0, 0
	bestHeader := accepted[har.Headers]{state: originalHeaders, resp: baseline}
	bestBody := accepted[*string]{state: rec.Body, resp: baseline}
	bodyPhaseRan := false

	// The second phase always builds on the first phase's reduced state:
	// the header predicate probes with the current body, the body
	// predicate with the current headers.
	for _, phase := range m.cfg.Minimize.Order {
		switch phase {
		case config.PhaseHeaders:
			if !m.cfg.Minimize.Headers.Enabled {
				continue
			}
			var used int
			headersState, headerCandidates, bestHeader, used = m.minimizeHeaders(ctx, rec, headersState, bodyState, baseline, budget)
			budget = remaining(budget, used)
		case config.PhaseBody:
			if !m.cfg.Minimize.Body.Enabled {
				continue
			}
			bodyPhaseRan = true
			var used int
			bodyState, bodyCandidates, bestBody, used = m.minimizeBody(ctx, rec, headersState, baseline, kind, budget)
			budget = remaining(budget, used)
		}
	}
	if !bodyPhaseRan {
		// With no body phase, the best-known body state is the original
		// body as last observed alongside the best header state.
		bestBody = accepted[*string]{state: rec.Body, resp: bestHeader.resp}
	}

	// Cross-validation: the two reductions were found independently and
	// may not compose, so confirm the combined state with one exchange.
	finalHeaders, finalBody := headersState, bodyState
	finalResp := m.client.Exchange(ctx, rec, finalHeaders, finalBody)
	matched := m.cmp.Equivalent(baseline, finalResp)
	if !matched {
		slog.Info("cross-validation failed, applying fallback", slog.Int("index", rec.Index))
		finalHeaders, finalBody, finalResp, matched = m.fallback(rec, baseline, finalHeaders, bestHeader, bestBody)
	}

	if matched && m.cfg.Minimize.Body.TryBlankValues {
		if blanked, resp, ok := m.tryBlankValues(ctx, rec, finalHeaders, baseline, kind, finalBody); ok {
			finalBody, finalResp = blanked, resp
			matched = m.cmp.Equivalent(baseline, finalResp)
		}
	}

	return baseline, &har.MinimizationOutcome{
		Headers:          finalHeaders,
		Body:             finalBody,
		Response:         finalResp,
		Matched:          matched,
		HeaderCandidates: headerCandidates,
		BodyCandidates:   bodyCandidates,
		FinalHeaders:     len(finalHeaders),
		FinalBodyFields:  countFields(kind, finalBody),
	}
}

// fallback tries the remembered best states in order: the best body
// state (already paired with reduced headers), then the best header
// state with the original body, then the untouched baseline. The oracle
// is invoked uniformly on every branch, including the baseline one,
// rather than shortcutting on reflexivity.
func (m *Minimizer) fallback(
	rec *har.RequestRecord,
	baseline *har.ResponseSnapshot,
	reducedHeaders har.Headers,
	bestHeader accepted[har.Headers],
	bestBody accepted[*string],
) (har.Headers, *string, *har.ResponseSnapshot, bool) {
	if bestBody.resp != nil && m.cmp.Equivalent(baseline, bestBody.resp) {
		return reducedHeaders, bestBody.state, bestBody.resp, true
	}
	if bestHeader.resp != nil && m.cmp.Equivalent(baseline, bestHeader.resp) {
		return bestHeader.state, rec.Body, bestHeader.resp, true
	}
	return rec.Headers.Clone(), rec.Body, baseline, m.cmp.Equivalent(baseline, baseline)
}

// headerProbe tests one candidate-header remainder, recording the most
// recent accepted (header set, response) pair.
type headerProbe struct {
	m        *Minimizer
	ctx      context.Context
	rec      *har.RequestRecord
	fixed    har.Headers
	body     *string
	baseline *har.ResponseSnapshot
	last     accepted[har.Headers]
}

func (p *headerProbe) test(remainder []har.Header) bool {
	headers := make(har.Headers, 0, len(p.fixed)+len(remainder))
	headers = append(headers, p.fixed...)
	headers = append(headers, remainder...)
	resp := p.m.client.Exchange(p.ctx, p.rec, headers, p.body)
	if p.m.cmp.Equivalent(p.baseline, resp) {
		p.last = accepted[har.Headers]{state: headers, resp: resp}
		return true
	}
	return false
}

func (m *Minimizer) minimizeHeaders(
	ctx context.Context,
	rec *har.RequestRecord,
	current har.Headers,
	body *string,
	baseline *har.ResponseSnapshot,
	budget int,
) (har.Headers, int, accepted[har.Headers], int) {
	cfg := m.cfg.Minimize.Headers
	protected := lowerSet(cfg.Protected)
	ignored := lowerSet(cfg.Ignore)

	var fixed, candidates har.Headers
	for _, h := range current {
		name := strings.ToLower(h.Name)
		if protected[name] || ignored[name] || !m.headerEligible(name) {
			fixed = append(fixed, h)
			continue
		}
		candidates = append(candidates, h)
	}
	if len(candidates) == 0 {
		return current, 0, accepted[har.Headers]{state: current, resp: baseline}, 0
	}

	probe := &headerProbe{
		m:        m,
		ctx:      ctx,
		rec:      rec,
		fixed:    fixed,
		body:     body,
		baseline: baseline,
		last:     accepted[har.Headers]{state: current, resp: baseline},
	}
	_, used := ddmin.Reduce(candidates, probe.test, budget)

	// The engine's terminal return and the last accepted probe coincide
	// on the success path; when nothing was removed the last accepted
	// state is still the untouched input, so it is authoritative.
	return probe.last.state, len(candidates), probe.last, used
}

// headerEligible reports whether a (lowercased) header name may be a
// candidate given the allow patterns; with none configured, every
// unprotected header is eligible.
func (m *Minimizer) headerEligible(name string) bool {
	if len(m.candidateRegex) == 0 {
		return true
	}
	for _, re := range m.candidateRegex {
		if re.MatchString(name) {
			return true
		}
	}
	return false
}

// bodyProbe tests one candidate-field remainder. Excluded candidates are
// either omitted or blanked in place per policy; field order follows the
// original document.
type bodyProbe struct {
	m        *Minimizer
	ctx      context.Context
	rec      *har.RequestRecord
	headers  har.Headers
	baseline *har.ResponseSnapshot
	kind     contenttype.Kind
	fields   []Field
	fixed    map[string]bool
	blank    bool
	last     accepted[*string]
}

func (p *bodyProbe) build(active []Field) string {
	keep := make(map[string]bool, len(active))
	for _, f := range active {
		keep[f.Key] = true
	}
	out := make([]Field, 0, len(p.fields))
	for _, f := range p.fields {
		switch {
		case p.fixed[f.Key] || keep[f.Key]:
			out = append(out, f)
		case p.blank:
			out = append(out, Field{Key: f.Key, Value: blankValue(p.kind)})
		}
	}
	return encodeFields(p.kind, out)
}

func (p *bodyProbe) test(remainder []Field) bool {
	text := p.build(remainder)
	resp := p.m.client.Exchange(p.ctx, p.rec, p.headers, &text)
	if p.m.cmp.Equivalent(p.baseline, resp) {
		p.last = accepted[*string]{state: &text, resp: resp}
		return true
	}
	return false
}

func (m *Minimizer) minimizeBody(
	ctx context.Context,
	rec *har.RequestRecord,
	headers har.Headers,
	baseline *har.ResponseSnapshot,
	kind contenttype.Kind,
	budget int,
) (*string, int, accepted[*string], int) {
	skip := accepted[*string]{state: rec.Body, resp: baseline}
	if kind == contenttype.Raw || rec.Body == nil {
		return rec.Body, 0, skip, 0
	}
	fields, ok := decodeFields(kind, *rec.Body)
	if !ok || len(fields) == 0 {
		return rec.Body, 0, skip, 0
	}

	fixed, candidates := m.splitBodyFields(fields)
	if len(candidates) == 0 {
		return rec.Body, 0, skip, 0
	}

	probe := &bodyProbe{
		m:        m,
		ctx:      ctx,
		rec:      rec,
		headers:  headers,
		baseline: baseline,
		kind:     kind,
		fields:   fields,
		fixed:    fixed,
		blank:    m.cfg.Minimize.Body.RemovedMeansBlank,
		last:     skip,
	}
	_, used := ddmin.Reduce(candidates, probe.test, budget)
	return probe.last.state, len(candidates), probe.last, used
}

// splitBodyFields partitions decoded fields into the fixed key set and
// the candidate list, honoring protected_keys and only_keys.
func (m *Minimizer) splitBodyFields(fields []Field) (map[string]bool, []Field) {
	cfg := m.cfg.Minimize.Body
	protected := make(map[string]bool, len(cfg.ProtectedKeys))
	for _, k := range cfg.ProtectedKeys {
		protected[k] = true
	}
	var only map[string]bool
	if len(cfg.OnlyKeys) > 0 {
		only = make(map[string]bool, len(cfg.OnlyKeys))
		for _, k := range cfg.OnlyKeys {
			only[k] = true
		}
	}

	fixed := make(map[string]bool)
	var candidates []Field
	for _, f := range fields {
		if protected[f.Key] || (only != nil && !only[f.Key]) {
			fixed[f.Key] = true
			continue
		}
		candidates = append(candidates, f)
	}
	return fixed, candidates
}

// tryBlankValues runs the unbounded refinement pass: surviving candidate
// fields keep their structure but lose their values one chunk at a time.
// Returns the refined body and its response only when the refinement is
// oracle-confirmed and textually different from the input body.
func (m *Minimizer) tryBlankValues(
	ctx context.Context,
	rec *har.RequestRecord,
	headers har.Headers,
	baseline *har.ResponseSnapshot,
	kind contenttype.Kind,
	current *string,
) (*string, *har.ResponseSnapshot, bool) {
	if kind == contenttype.Raw || current == nil || *current == "" {
		return nil, nil, false
	}
	fields, ok := decodeFields(kind, *current)
	if !ok || len(fields) == 0 {
		return nil, nil, false
	}
	fixed, candidates := m.splitBodyFields(fields)
	if len(candidates) == 0 {
		return nil, nil, false
	}

	// Fields are only ever blanked here, never removed, so the probe
	// always blanks excluded candidates regardless of the removal policy.
	probe := &bodyProbe{
		m:        m,
		ctx:      ctx,
		rec:      rec,
		headers:  headers,
		baseline: baseline,
		kind:     kind,
		fields:   fields,
		fixed:    fixed,
		blank:    true,
	}
	kept, _ := ddmin.Reduce(candidates, probe.test, ddmin.NoLimit)

	// One confirmation exchange on the converged state.
	text := probe.build(kept)
	resp := m.client.Exchange(ctx, rec, headers, &text)
	if m.cmp.Equivalent(baseline, resp) {
		probe.last = accepted[*string]{state: &text, resp: resp}
	}

	if probe.last.resp == nil || probe.last.state == nil || *probe.last.state == *current {
		return nil, nil, false
	}
	return probe.last.state, probe.last.resp, true
}

func lowerSet(names []string) map[string]bool {
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[strings.ToLower(n)] = true
	}
	return set
}

func remaining(budget, used int) int {
	if budget -= used; budget < 0 {
		return 0
	}
	return budget
}

func mimeType(rec *har.RequestRecord) string {
	if rec.MimeType == nil {
		return ""
	}
	return *rec.MimeType
}
