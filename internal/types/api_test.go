package types

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestCrawlRequestValidate(t *testing.T) {
	tests := []struct {
		name    string
		req     CrawlRequest
		wantErr bool
	}{
		{"valid", CrawlRequest{URL: "https://shop.example.com/products/1"}, false},
		{"empty url", CrawlRequest{URL: "  "}, true},
		{"url too long", CrawlRequest{URL: "https://example.com/" + strings.Repeat("a", MaxURLLength)}, true},
		{"negative timeout", CrawlRequest{URL: "https://example.com", MaxTimeout: -1}, true},
		{"timeout too large", CrawlRequest{URL: "https://example.com", MaxTimeout: MaxTimeoutMs + 1}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidRequest) {
				t.Errorf("expected ErrInvalidRequest, got %v", err)
			}
		})
	}
}

func TestSearchRequestValidate(t *testing.T) {
	tests := []struct {
		name    string
		keyword string
		wantErr bool
	}{
		{"valid", "wireless mouse", false},
		{"hangul", "무선 마우스", false},
		{"empty", "", true},
		{"whitespace", "   ", true},
		{"newline", "mouse\nkeyboard", true},
		{"too long", strings.Repeat("가", MaxKeywordLength+1), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := SearchRequest{Keyword: tt.keyword}
			if err := req.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestResponseOmitsEmptyPayloads(t *testing.T) {
	data, err := json.Marshal(Response{Status: StatusError, Message: "boom"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	s := string(data)
	for _, field := range []string{`"product"`, `"results"`, `"pool"`, `"errorKind"`} {
		if strings.Contains(s, field) {
			t.Errorf("unexpected field %s in %s", field, s)
		}
	}
	for _, field := range []string{`"status"`, `"message"`, `"startTimestamp"`, `"endTimestamp"`, `"version"`} {
		if !strings.Contains(s, field) {
			t.Errorf("missing field %s in %s", field, s)
		}
	}
}
