// Package har models HTTP archive captures and the per-request
// minimization results produced from them.
package har

import (
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Header is a single name/value pair from a captured request.
// Repeated names are legal and order is significant.
type Header struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Headers is an ordered slice of header pairs.
type Headers []Header

// Get returns the first value for the given header name (case-insensitive).
// Returns an empty string if the header is not found.
func (h Headers) Get(name string) string {
	for _, hdr := range h {
		if strings.EqualFold(hdr.Name, name) {
			return hdr.Value
		}
	}
	return ""
}

// Values returns all values for the given header name (case-insensitive).
func (h Headers) Values(name string) []string {
	var values []string
	for _, hdr := range h {
		if strings.EqualFold(hdr.Name, name) {
			values = append(values, hdr.Value)
		}
	}
	return values
}

// Clone returns a copy of the header list that can be mutated freely.
func (h Headers) Clone() Headers {
	if h == nil {
		return nil
	}
	out := make(Headers, len(h))
	copy(out, h)
	return out
}

// RequestRecord is one captured request, tied to its position in the
// original capture by Index. Records are created once by the loader and
// never mutated; minimization works on copies.
type RequestRecord struct {
	Index    int
	Method   string
	URL      string
	Path     string
	Query    url.Values
	Headers  Headers
	Body     *string
	MimeType *string
}

// BodyText returns the body, or an empty string when absent.
func (r *RequestRecord) BodyText() string {
	if r.Body == nil {
		return ""
	}
	return *r.Body
}

// Host returns the host portion of the request URL, lowercased.
func (r *RequestRecord) Host() string {
	u, err := url.Parse(r.URL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Host)
}

// ResponseSnapshot captures the outcome of a single HTTP exchange.
// Transport failures are recorded in Error with Status absent; snapshots
// are never merged or mutated after creation.
type ResponseSnapshot struct {
	Status  *int
	Body    *string
	Elapsed time.Duration
	Error   string
	Headers http.Header
}

// Healthy reports whether the exchange produced an HTTP response at all.
func (s *ResponseSnapshot) Healthy() bool {
	return s.Error == "" && s.Status != nil
}

// Size returns the response body length, 0 when the body is absent.
func (s *ResponseSnapshot) Size() int {
	if s.Body == nil {
		return 0
	}
	return len(*s.Body)
}

// StatusCode returns the status code, or 0 when absent.
func (s *ResponseSnapshot) StatusCode() int {
	if s.Status == nil {
		return 0
	}
	return *s.Status
}

// MinimizationOutcome is the result of minimizing one request.
type MinimizationOutcome struct {
	Headers  Headers
	Body     *string
	Response *ResponseSnapshot
	Matched  bool

	HeaderCandidates int
	BodyCandidates   int
	FinalHeaders     int
	FinalBodyFields  int
}

// ProcessedRequest pairs a record with its baseline and outcome, as handed
// to the reporting layer.
type ProcessedRequest struct {
	Record   *RequestRecord
	Baseline *ResponseSnapshot
	Outcome  *MinimizationOutcome
}
