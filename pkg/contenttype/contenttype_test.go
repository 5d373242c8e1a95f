package contenttype

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		want        Kind
	}{
		// JSON
		{"application/json", "application/json", JSON},
		{"vendor json", "application/vnd.api+json", JSON},
		{"json with charset", "application/json; charset=utf-8", JSON},
		{"json with complex params", "application/json; charset=utf-8; boundary=something", JSON},

		// Form
		{"form-urlencoded", "application/x-www-form-urlencoded", Form},
		{"form with charset", "application/x-www-form-urlencoded; charset=utf-8", Form},

		// Raw
		{"text/plain", "text/plain", Raw},
		{"html", "text/html", Raw},
		{"xml", "application/xml", Raw},
		{"octet-stream", "application/octet-stream", Raw},
		{"multipart", "multipart/form-data; boundary=x", Raw},

		// Edge cases
		{"empty", "", Raw},
		{"uppercase", "Application/JSON", JSON},
		{"malformed", ";;garbage", Raw},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.contentType))
		})
	}
}

func TestResolve(t *testing.T) {
	tests := []struct {
		name     string
		mode     string
		declared string
		want     Kind
	}{
		{"forced json ignores declared", "json", "text/plain", JSON},
		{"forced form ignores declared", "form", "application/json", Form},
		{"auto json", "auto", "application/json", JSON},
		{"auto form", "auto", "application/x-www-form-urlencoded", Form},
		{"auto raw", "auto", "text/plain", Raw},
		{"empty mode is auto", "", "application/json", JSON},
		{"auto with no declared type", "auto", "", Raw},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Resolve(tt.mode, tt.declared))
		})
	}
}
