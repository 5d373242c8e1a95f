// Package compare decides whether a candidate response is equivalent to
// the baseline, per the configured signal policy. The comparator is pure
// and stateless once built.
package compare

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/itchyny/gojq"

	"github.com/usestring/harslim/internal/config"
	"github.com/usestring/harslim/pkg/har"
)

// Comparator evaluates the configured equivalence signals.
type Comparator struct {
	cfg   config.Compare
	regex []*regexp.Regexp
	jq    []*gojq.Code
}

// New compiles the regex and JQ signals up front so a bad expression
// fails at startup rather than mid-batch.
func New(cfg config.Compare) (*Comparator, error) {
	c := &Comparator{cfg: cfg}

	for _, expr := range cfg.Regex {
		re, err := regexp.Compile("(?m)" + expr)
		if err != nil {
			return nil, fmt.Errorf("compiling compare regex %q: %w", expr, err)
		}
		c.regex = append(c.regex, re)
	}

	for _, expr := range cfg.NeedJQ {
		query, err := gojq.Parse(expr)
		if err != nil {
			return nil, fmt.Errorf("parsing jq expression %q: %w", expr, err)
		}
		code, err := gojq.Compile(query)
		if err != nil {
			return nil, fmt.Errorf("compiling jq expression %q: %w", expr, err)
		}
		c.jq = append(c.jq, code)
	}

	return c, nil
}

// Equivalent reports whether candidate matches baseline under the active
// signals. Unhealthy snapshots never match. With no signal enabled every
// healthy candidate is accepted; otherwise the enabled signal verdicts
// combine with AND (default) or OR.
func (c *Comparator) Equivalent(baseline, candidate *har.ResponseSnapshot) bool {
	if !baseline.Healthy() || !candidate.Healthy() {
		return false
	}

	checks := []struct {
		enabled bool
		result  func() bool
	}{
		{c.cfg.StatusCode, func() bool { return statusEqual(baseline, candidate) }},
		{c.cfg.LengthCheck, func() bool { return c.lengthWithin(baseline, candidate) }},
		{len(c.cfg.NeedAll) > 0, func() bool { return c.needAll(candidate) }},
		{len(c.cfg.NeedAny) > 0, func() bool { return c.needAny(candidate) }},
		{len(c.regex) > 0, func() bool { return c.regexMatch(candidate) }},
		{len(c.jq) > 0, func() bool { return c.jqMatch(candidate) }},
	}

	var active []bool
	for _, check := range checks {
		if check.enabled {
			active = append(active, check.result())
		}
	}
	if len(active) == 0 {
		return true
	}

	if strings.EqualFold(c.cfg.Logic, "OR") {
		for _, ok := range active {
			if ok {
				return true
			}
		}
		return false
	}
	for _, ok := range active {
		if !ok {
			return false
		}
	}
	return true
}

func statusEqual(base, cand *har.ResponseSnapshot) bool {
	return base.StatusCode() == cand.StatusCode()
}

// lengthWithin checks relative body-length closeness. An empty baseline
// body only matches an empty candidate body, regardless of tolerance.
func (c *Comparator) lengthWithin(base, cand *har.ResponseSnapshot) bool {
	if base.Size() == 0 {
		return cand.Size() == 0
	}
	delta := float64(base.Size() - cand.Size())
	if delta < 0 {
		delta = -delta
	}
	return delta/float64(base.Size()) <= c.cfg.LengthTolerance
}

func (c *Comparator) needAll(cand *har.ResponseSnapshot) bool {
	if cand.Body == nil {
		return false
	}
	for _, token := range c.cfg.NeedAll {
		if !strings.Contains(*cand.Body, token) {
			return false
		}
	}
	return true
}

func (c *Comparator) needAny(cand *har.ResponseSnapshot) bool {
	if cand.Body == nil {
		return false
	}
	for _, token := range c.cfg.NeedAny {
		if strings.Contains(*cand.Body, token) {
			return true
		}
	}
	return false
}

func (c *Comparator) regexMatch(cand *har.ResponseSnapshot) bool {
	if cand.Body == nil {
		return false
	}
	for _, re := range c.regex {
		if !re.MatchString(*cand.Body) {
			return false
		}
	}
	return true
}

// jqMatch runs every compiled JQ expression against the candidate body
// parsed as JSON; each must yield a truthy first value. A missing or
// undecodable body fails the signal.
func (c *Comparator) jqMatch(cand *har.ResponseSnapshot) bool {
	if cand.Body == nil {
		return false
	}
	var input any
	if err := json.Unmarshal([]byte(*cand.Body), &input); err != nil {
		return false
	}
	for _, code := range c.jq {
		if !truthyResult(code, input) {
			return false
		}
	}
	return true
}

func truthyResult(code *gojq.Code, input any) bool {
	iter := code.Run(input)
	v, ok := iter.Next()
	if !ok {
		return false
	}
	if _, isErr := v.(error); isErr {
		return false
	}
	// jq truthiness: everything except null and false.
	if v == nil {
		return false
	}
	if b, isBool := v.(bool); isBool {
		return b
	}
	return true
}
