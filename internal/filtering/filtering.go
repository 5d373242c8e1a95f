// Package filtering selects which captured records enter minimization.
// Each criterion builds a document bitmap over record positions and the
// selection is their intersection, so criteria compose without ordering
// concerns.
package filtering

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/usestring/harslim/internal/config"
	"github.com/usestring/harslim/pkg/har"
)

// Selector applies the filter and scope criteria to a capture.
type Selector struct {
	filter config.Filter
	scope  config.Scope

	urlRegex   []*regexp.Regexp
	scopeRegex []*regexp.Regexp
}

// New compiles the selection criteria. Regex patterns fail at
// construction rather than per record.
func New(filter config.Filter, scope config.Scope) (*Selector, error) {
	s := &Selector{filter: filter, scope: scope}
	for _, pattern := range filter.URLRegex {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("compiling url_regex %q: %w", pattern, err)
		}
		s.urlRegex = append(s.urlRegex, re)
	}
	for _, pattern := range scope.IncludeRegex {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("compiling include_regex %q: %w", pattern, err)
		}
		s.scopeRegex = append(s.scopeRegex, re)
	}
	return s, nil
}

// Select returns the admitted records in capture order. Empty criteria
// admit everything.
func (s *Selector) Select(records []*har.RequestRecord) []*har.RequestRecord {
	result := allPositions(len(records))

	if len(s.filter.Methods) > 0 {
		result = roaring.And(result, s.methodBitmap(records))
	}
	if len(s.filter.Hosts) > 0 {
		result = roaring.And(result, s.hostBitmap(records))
	}
	if len(s.urlRegex) > 0 {
		result = roaring.And(result, s.urlRegexBitmap(records))
	}
	if len(s.filter.IndexRange) == 2 {
		result = roaring.And(result, s.indexRangeBitmap(records))
	}
	if len(s.scope.IncludeURLs) > 0 || len(s.scopeRegex) > 0 {
		result = roaring.And(result, s.scopeBitmap(records))
	}

	selected := make([]*har.RequestRecord, 0, result.GetCardinality())
	for _, pos := range result.ToArray() {
		selected = append(selected, records[pos])
	}
	return selected
}

func allPositions(n int) *roaring.Bitmap {
	bm := roaring.New()
	if n > 0 {
		bm.AddRange(0, uint64(n))
	}
	return bm
}

func (s *Selector) methodBitmap(records []*har.RequestRecord) *roaring.Bitmap {
	allowed := make(map[string]bool, len(s.filter.Methods))
	for _, m := range s.filter.Methods {
		allowed[strings.ToUpper(m)] = true
	}
	bm := roaring.New()
	for pos, rec := range records {
		if allowed[strings.ToUpper(rec.Method)] {
			bm.Add(uint32(pos))
		}
	}
	return bm
}

func (s *Selector) hostBitmap(records []*har.RequestRecord) *roaring.Bitmap {
	allowed := make(map[string]bool, len(s.filter.Hosts))
	for _, h := range s.filter.Hosts {
		allowed[strings.ToLower(h)] = true
	}
	bm := roaring.New()
	for pos, rec := range records {
		if allowed[rec.Host()] {
			bm.Add(uint32(pos))
		}
	}
	return bm
}

func (s *Selector) urlRegexBitmap(records []*har.RequestRecord) *roaring.Bitmap {
	bm := roaring.New()
	for pos, rec := range records {
		for _, re := range s.urlRegex {
			if re.MatchString(rec.URL) {
				bm.Add(uint32(pos))
				break
			}
		}
	}
	return bm
}

// indexRangeBitmap admits records whose capture ordinal falls in the
// inclusive [lo, hi] range. Ordinals are the record's position in the
// original capture, not its position in the records slice.
func (s *Selector) indexRangeBitmap(records []*har.RequestRecord) *roaring.Bitmap {
	lo, hi := s.filter.IndexRange[0], s.filter.IndexRange[1]
	bm := roaring.New()
	for pos, rec := range records {
		if rec.Index >= lo && rec.Index <= hi {
			bm.Add(uint32(pos))
		}
	}
	return bm
}

// scopeBitmap admits records matching the URL allow list or any scope
// regex; either grant suffices.
func (s *Selector) scopeBitmap(records []*har.RequestRecord) *roaring.Bitmap {
	allowed := make(map[string]bool, len(s.scope.IncludeURLs))
	for _, u := range s.scope.IncludeURLs {
		allowed[u] = true
	}
	bm := roaring.New()
	for pos, rec := range records {
		if allowed[rec.URL] {
			bm.Add(uint32(pos))
			continue
		}
		for _, re := range s.scopeRegex {
			if re.MatchString(rec.URL) {
				bm.Add(uint32(pos))
				break
			}
		}
	}
	return bm
}
