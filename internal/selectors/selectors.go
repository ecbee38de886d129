// Package selectors loads the CSS selectors and content markers the
// extractor uses to read product pages and search results.
package selectors

import (
	_ "embed"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// SchemaVersion is the selectors file format understood by this build.
const SchemaVersion = 1

// Placeholders substituted into templates.
const (
	KeywordPlaceholder   = "{keyword}"
	ProductIDPlaceholder = "{product_id}"
)

//go:embed selectors.yaml
var embeddedYAML []byte

// ErrInvalidSelectors is returned for files that fail validation.
var ErrInvalidSelectors = errors.New("invalid selectors")

// Field locates one value. Selectors are tried in order and the first match
// with non-empty text (or attribute, when Attr is set) wins.
type Field struct {
	CSS  []string `yaml:"css"`
	Attr string   `yaml:"attr,omitempty"`
}

// Empty reports whether the field has no selectors.
func (f Field) Empty() bool {
	return len(f.CSS) == 0
}

// Detail holds the product page fields.
type Detail struct {
	Name         Field `yaml:"name"`
	Brand        Field `yaml:"brand"`
	Price        Field `yaml:"price"`
	OriginPrice  Field `yaml:"origin_price"`
	DiscountRate Field `yaml:"discount_rate"`
	Rating       Field `yaml:"rating"`
	ReviewCount  Field `yaml:"review_count"`
	Thumbnail    Field `yaml:"thumbnail"`
	DetailImages Field `yaml:"detail_images"`
	// ReviewTexts is the fallback when no review endpoint is configured.
	ReviewTexts Field `yaml:"review_texts"`
}

// Search holds the search page template and per-item fields, relative to Item.
type Search struct {
	URLTemplate  string `yaml:"url_template"`
	Item         string `yaml:"item"`
	Name         Field  `yaml:"name"`
	Link         Field  `yaml:"link"`
	Thumbnail    Field  `yaml:"thumbnail"`
	Price        Field  `yaml:"price"`
	OriginPrice  Field  `yaml:"origin_price"`
	DiscountRate Field  `yaml:"discount_rate"`
	Rating       Field  `yaml:"rating"`
	ReviewCount  Field  `yaml:"review_count"`
}

// Reviews configures the in-page review fetch. Endpoint may be relative to
// the product page. An empty Endpoint disables the fetch.
type Reviews struct {
	Endpoint         string `yaml:"endpoint"`
	ProductIDPattern string `yaml:"product_id_pattern"`
	ItemsPath        string `yaml:"items_path"`
	AuthorField      string `yaml:"author_field"`
	RatingField      string `yaml:"rating_field"`
	TextField        string `yaml:"text_field"`
	DateField        string `yaml:"date_field"`
	Limit            int    `yaml:"limit"`
}

// Selectors is the whole selectors file.
type Selectors struct {
	Version      int      `yaml:"version"`
	AccessDenied []string `yaml:"access_denied"`
	Detail       Detail   `yaml:"detail"`
	Search       Search   `yaml:"search"`
	Reviews      Reviews  `yaml:"reviews"`
}

// Embedded parses the compiled-in selectors.
func Embedded() (*Selectors, error) {
	s, err := parse(embeddedYAML)
	if err != nil {
		return nil, fmt.Errorf("embedded selectors: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("embedded selectors: %w", err)
	}

	log.Debug().
		Int("access_denied_markers", len(s.AccessDenied)).
		Str("search_template", s.Search.URLTemplate).
		Bool("reviews_enabled", s.Reviews.Endpoint != "").
		Msg("Selectors loaded")

	return s, nil
}

func parse(data []byte) (*Selectors, error) {
	var s Selectors
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("%w: invalid YAML: %w", ErrInvalidSelectors, err)
	}
	if s.Version != 0 && s.Version != SchemaVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrInvalidSelectors, s.Version)
	}
	return &s, nil
}

// Validate checks that the selectors can drive both job kinds.
func (s *Selectors) Validate() error {
	var errs []error
	if len(s.AccessDenied) == 0 {
		errs = append(errs, errors.New("access_denied needs at least one marker"))
	}
	if s.Detail.Name.Empty() {
		errs = append(errs, errors.New("detail.name needs at least one selector"))
	}
	if !strings.Contains(s.Search.URLTemplate, KeywordPlaceholder) {
		errs = append(errs, fmt.Errorf("search.url_template must contain %s", KeywordPlaceholder))
	}
	if s.Search.Item == "" {
		errs = append(errs, errors.New("search.item is required"))
	}
	if s.Search.Name.Empty() || s.Search.Link.Empty() {
		errs = append(errs, errors.New("search.name and search.link need at least one selector"))
	}

	if r := s.Reviews; r.Endpoint != "" {
		if strings.Contains(r.Endpoint, ProductIDPlaceholder) {
			if r.ProductIDPattern == "" {
				errs = append(errs, errors.New("reviews.product_id_pattern is required when endpoint uses "+ProductIDPlaceholder))
			} else if re, err := regexp.Compile(r.ProductIDPattern); err != nil {
				errs = append(errs, fmt.Errorf("reviews.product_id_pattern: %w", err))
			} else if re.NumSubexp() < 1 {
				errs = append(errs, errors.New("reviews.product_id_pattern needs a capture group"))
			}
		}
		if r.TextField == "" {
			errs = append(errs, errors.New("reviews.text_field is required when endpoint is set"))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidSelectors, errors.Join(errs...))
	}
	return nil
}

// SearchURL renders the search template for keyword. The keyword must
// already be query-escaped.
func (s *Selectors) SearchURL(escapedKeyword string) string {
	return strings.ReplaceAll(s.Search.URLTemplate, KeywordPlaceholder, escapedKeyword)
}

// ProductID extracts the product identifier from a product URL.
func (s *Selectors) ProductID(productURL string) (string, bool) {
	if s.Reviews.ProductIDPattern == "" {
		return "", false
	}
	re, err := regexp.Compile(s.Reviews.ProductIDPattern)
	if err != nil {
		return "", false
	}
	m := re.FindStringSubmatch(productURL)
	if len(m) < 2 || m[1] == "" {
		return "", false
	}
	return m[1], true
}

// merge returns a copy of base with every non-empty value of override applied.
func merge(base, override *Selectors) *Selectors {
	out := *base
	out.Version = SchemaVersion

	if len(override.AccessDenied) > 0 {
		out.AccessDenied = override.AccessDenied
	}

	od, bd := override.Detail, &out.Detail
	mergeField(&bd.Name, od.Name)
	mergeField(&bd.Brand, od.Brand)
	mergeField(&bd.Price, od.Price)
	mergeField(&bd.OriginPrice, od.OriginPrice)
	mergeField(&bd.DiscountRate, od.DiscountRate)
	mergeField(&bd.Rating, od.Rating)
	mergeField(&bd.ReviewCount, od.ReviewCount)
	mergeField(&bd.Thumbnail, od.Thumbnail)
	mergeField(&bd.DetailImages, od.DetailImages)
	mergeField(&bd.ReviewTexts, od.ReviewTexts)

	oss, bs := override.Search, &out.Search
	mergeString(&bs.URLTemplate, oss.URLTemplate)
	mergeString(&bs.Item, oss.Item)
	mergeField(&bs.Name, oss.Name)
	mergeField(&bs.Link, oss.Link)
	mergeField(&bs.Thumbnail, oss.Thumbnail)
	mergeField(&bs.Price, oss.Price)
	mergeField(&bs.OriginPrice, oss.OriginPrice)
	mergeField(&bs.DiscountRate, oss.DiscountRate)
	mergeField(&bs.Rating, oss.Rating)
	mergeField(&bs.ReviewCount, oss.ReviewCount)

	// Review settings only make sense together, so they are replaced as a unit.
	if override.Reviews.Endpoint != "" {
		out.Reviews = override.Reviews
	}

	return &out
}

func mergeField(dst *Field, src Field) {
	if !src.Empty() {
		*dst = src
	}
}

func mergeString(dst *string, src string) {
	if src != "" {
		*dst = src
	}
}
