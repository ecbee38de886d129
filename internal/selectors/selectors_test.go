package selectors

import (
	"errors"
	"strings"
	"testing"
)

func TestEmbeddedSelectors(t *testing.T) {
	sel, err := Embedded()
	if err != nil {
		t.Fatalf("Embedded() error = %v", err)
	}

	if sel.Version != SchemaVersion {
		t.Errorf("Expected version %d, got %d", SchemaVersion, sel.Version)
	}
	if len(sel.AccessDenied) == 0 {
		t.Error("Expected access denied markers")
	}
	for _, marker := range sel.AccessDenied {
		if marker != strings.ToLower(marker) {
			t.Errorf("Marker %q must be lowercase", marker)
		}
	}
	if sel.Detail.Name.Empty() {
		t.Error("Expected detail name selectors")
	}
	if sel.Detail.Thumbnail.Attr != "content" {
		t.Errorf("Expected thumbnail attr content, got %q", sel.Detail.Thumbnail.Attr)
	}
	if sel.Search.Link.Attr != "href" {
		t.Errorf("Expected search link attr href, got %q", sel.Search.Link.Attr)
	}
}

func TestSearchURL(t *testing.T) {
	sel := &Selectors{Search: Search{URLTemplate: "https://shop.example.com/search?q={keyword}&page=1"}}

	got := sel.SearchURL("wireless+mouse")
	want := "https://shop.example.com/search?q=wireless+mouse&page=1"
	if got != want {
		t.Errorf("SearchURL() = %q, want %q", got, want)
	}
}

func TestProductID(t *testing.T) {
	sel := &Selectors{Reviews: Reviews{ProductIDPattern: `/products?/(\d+)`}}

	tests := []struct {
		url    string
		want   string
		wantOK bool
	}{
		{"https://shop.example.com/products/12345?itemId=9", "12345", true},
		{"https://shop.example.com/product/77", "77", true},
		{"https://shop.example.com/search?q=1", "", false},
	}

	for _, tt := range tests {
		got, ok := sel.ProductID(tt.url)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("ProductID(%q) = (%q, %v), want (%q, %v)", tt.url, got, ok, tt.want, tt.wantOK)
		}
	}

	if _, ok := (&Selectors{}).ProductID("https://shop.example.com/products/1"); ok {
		t.Error("Expected no product ID without a pattern")
	}
}

func TestSelectorsValidate(t *testing.T) {
	valid := func() *Selectors {
		s, err := Embedded()
		if err != nil {
			t.Fatalf("Embedded() error = %v", err)
		}
		return s
	}

	tests := []struct {
		name    string
		mutate  func(s *Selectors)
		wantErr string
	}{
		{"embedded", func(s *Selectors) {}, ""},
		{"no markers", func(s *Selectors) { s.AccessDenied = nil }, "access_denied"},
		{"no name", func(s *Selectors) { s.Detail.Name = Field{} }, "detail.name"},
		{"template without keyword", func(s *Selectors) { s.Search.URLTemplate = "https://shop.example.com/search" }, "url_template"},
		{"no item", func(s *Selectors) { s.Search.Item = "" }, "search.item"},
		{"no link", func(s *Selectors) { s.Search.Link = Field{} }, "search.link"},
		{
			"endpoint without pattern",
			func(s *Selectors) {
				s.Reviews = Reviews{Endpoint: "/api/reviews/{product_id}", TextField: "content"}
			},
			"product_id_pattern is required",
		},
		{
			"bad pattern",
			func(s *Selectors) {
				s.Reviews = Reviews{Endpoint: "/api/reviews/{product_id}", ProductIDPattern: "(", TextField: "content"}
			},
			"product_id_pattern",
		},
		{
			"pattern without group",
			func(s *Selectors) {
				s.Reviews = Reviews{Endpoint: "/api/reviews/{product_id}", ProductIDPattern: `\d+`, TextField: "content"}
			},
			"capture group",
		},
		{
			"endpoint without text field",
			func(s *Selectors) {
				s.Reviews = Reviews{Endpoint: "/api/reviews"}
			},
			"text_field",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := valid()
			tt.mutate(s)
			err := s.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() expected error containing %q", tt.wantErr)
			}
			if !errors.Is(err, ErrInvalidSelectors) {
				t.Errorf("error %v does not wrap ErrInvalidSelectors", err)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestParseRejectsUnknownVersion(t *testing.T) {
	_, err := parse([]byte("version: 2\n"))
	if !errors.Is(err, ErrInvalidSelectors) {
		t.Fatalf("Expected ErrInvalidSelectors, got %v", err)
	}
}

func TestMergeOverridesOnlySetValues(t *testing.T) {
	base, err := Embedded()
	if err != nil {
		t.Fatalf("Embedded() error = %v", err)
	}

	override := &Selectors{
		AccessDenied: []string{"custom block"},
		Detail:       Detail{Price: Field{CSS: []string{".final-price"}}},
		Search:       Search{URLTemplate: "https://other.example.com/s?k={keyword}"},
	}
	merged := merge(base, override)

	if len(merged.AccessDenied) != 1 || merged.AccessDenied[0] != "custom block" {
		t.Errorf("AccessDenied not overridden: %v", merged.AccessDenied)
	}
	if merged.Detail.Price.CSS[0] != ".final-price" {
		t.Errorf("Detail.Price not overridden: %v", merged.Detail.Price)
	}
	if merged.Detail.Name.CSS[0] != base.Detail.Name.CSS[0] {
		t.Error("Detail.Name should fall back to base")
	}
	if merged.Search.Item != base.Search.Item {
		t.Error("Search.Item should fall back to base")
	}
	if merged.Search.URLTemplate != override.Search.URLTemplate {
		t.Error("Search.URLTemplate not overridden")
	}
	if base.AccessDenied[0] == "custom block" {
		t.Error("merge must not modify base")
	}
}
