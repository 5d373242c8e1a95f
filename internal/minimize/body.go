package minimize

import (
	"encoding/json"
	"io"
	"net/url"
	"strings"

	"github.com/usestring/harslim/pkg/contenttype"
)

// Field is one body field identifier plus its encoded value. For JSON
// bodies Value holds the raw JSON text of the value; for form bodies it
// holds the decoded plain text. Reduction operates on Field slices and
// every concrete body is derived from one via encodeFields.
type Field struct {
	Key   string
	Value string
}

// blankValue is the empty replacement for a blanked field.
func blankValue(kind contenttype.Kind) string {
	if kind == contenttype.JSON {
		return `""`
	}
	return ""
}

// decodeFields parses body text into ordered fields. Reports false when
// the text is not a reducible object for the kind: invalid JSON, a JSON
// non-object, or a raw body. Duplicate keys collapse to their first
// position with the last value winning.
func decodeFields(kind contenttype.Kind, text string) ([]Field, bool) {
	switch kind {
	case contenttype.JSON:
		return decodeJSONObject(text)
	case contenttype.Form:
		return decodeForm(text), true
	default:
		return nil, false
	}
}

// decodeJSONObject scans a JSON object with a token decoder so field
// order is preserved and values stay raw, never reinterpreted.
func decodeJSONObject(text string) ([]Field, bool) {
	dec := json.NewDecoder(strings.NewReader(text))
	tok, err := dec.Token()
	if err != nil {
		return nil, false
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, false
	}

	var fields []Field
	index := make(map[string]int)
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, false
		}
		key, ok := keyTok.(string)
		if !ok {
			return nil, false
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, false
		}
		if i, seen := index[key]; seen {
			fields[i].Value = string(raw)
			continue
		}
		index[key] = len(fields)
		fields = append(fields, Field{Key: key, Value: string(raw)})
	}
	if _, err := dec.Token(); err != nil {
		return nil, false
	}
	// Reject trailing content after the closing brace.
	if _, err := dec.Token(); err != io.EOF {
		return nil, false
	}
	return fields, true
}

func decodeForm(text string) []Field {
	var fields []Field
	index := make(map[string]int)
	for _, seg := range strings.Split(text, "&") {
		if seg == "" {
			continue
		}
		rawKey, rawValue, _ := strings.Cut(seg, "=")
		key, err := url.QueryUnescape(rawKey)
		if err != nil {
			key = rawKey
		}
		value, err := url.QueryUnescape(rawValue)
		if err != nil {
			value = rawValue
		}
		if i, seen := index[key]; seen {
			fields[i].Value = value
			continue
		}
		index[key] = len(fields)
		fields = append(fields, Field{Key: key, Value: value})
	}
	return fields
}

// encodeFields builds body text from ordered fields.
func encodeFields(kind contenttype.Kind, fields []Field) string {
	if kind == contenttype.JSON {
		var sb strings.Builder
		sb.WriteByte('{')
		for i, f := range fields {
			if i > 0 {
				sb.WriteByte(',')
			}
			key, _ := json.Marshal(f.Key)
			sb.Write(key)
			sb.WriteByte(':')
			sb.WriteString(f.Value)
		}
		sb.WriteByte('}')
		return sb.String()
	}

	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		parts = append(parts, url.QueryEscape(f.Key)+"="+url.QueryEscape(f.Value))
	}
	return strings.Join(parts, "&")
}

// countFields returns the decoded field count of a body, 0 when the body
// is absent or not decodable for the kind.
func countFields(kind contenttype.Kind, body *string) int {
	if body == nil || *body == "" {
		return 0
	}
	fields, ok := decodeFields(kind, *body)
	if !ok {
		return 0
	}
	return len(fields)
}
