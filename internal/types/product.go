package types

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ProductSchemaVersion is bumped whenever a field is added to, removed from,
// or changes meaning in ProductDetail or ProductSummary.
const ProductSchemaVersion = 1

// Review is a single customer review attached to a product detail.
type Review struct {
	Author string `json:"author,omitempty"`
	Rating int    `json:"rating,omitempty"`
	Text   string `json:"text"`
	Date   string `json:"date,omitempty"`
}

// ProductDetail is the structured result of a detail crawl.
//
// Required: Name. Everything else is optional and left at its zero value
// when the page does not expose it.
type ProductDetail struct {
	SchemaVersion int       `json:"schemaVersion"`
	URL           string    `json:"url"`
	Name          string    `json:"name"`
	Brand         string    `json:"brand,omitempty"`
	Price         int64     `json:"price,omitempty"`
	OriginPrice   int64     `json:"originPrice,omitempty"`
	DiscountRate  int       `json:"discountRate,omitempty"`
	Rating        float64   `json:"rating,omitempty"`
	ReviewCount   int       `json:"reviewCount,omitempty"`
	Thumbnail     string    `json:"thumbnail,omitempty"`
	DetailImages  []string  `json:"detailImages"`
	Reviews       []Review  `json:"reviews"`
	CrawledAt     time.Time `json:"crawledAt"`
}

// Validate reports whether the detail satisfies the schema.
func (d *ProductDetail) Validate() error {
	if d == nil {
		return fmt.Errorf("%w: detail is nil", ErrSchemaInvalid)
	}
	var errs []error
	if strings.TrimSpace(d.Name) == "" {
		errs = append(errs, errors.New("name is required"))
	}
	if d.Price < 0 || d.OriginPrice < 0 {
		errs = append(errs, errors.New("price cannot be negative"))
	}
	if d.DiscountRate < 0 || d.DiscountRate > 100 {
		errs = append(errs, fmt.Errorf("discount rate %d out of range", d.DiscountRate))
	}
	if d.Rating < 0 || d.Rating > 5 {
		errs = append(errs, fmt.Errorf("rating %.1f out of range", d.Rating))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrSchemaInvalid, errors.Join(errs...))
	}
	return nil
}

// ProductSummary is one entry of a search result list.
//
// Required: Name and URL.
type ProductSummary struct {
	SchemaVersion int     `json:"schemaVersion"`
	Name          string  `json:"name"`
	URL           string  `json:"url"`
	Thumbnail     string  `json:"thumbnail,omitempty"`
	Price         int64   `json:"price,omitempty"`
	OriginPrice   int64   `json:"originPrice,omitempty"`
	DiscountRate  int     `json:"discountRate,omitempty"`
	Rating        float64 `json:"rating,omitempty"`
	ReviewCount   int     `json:"reviewCount,omitempty"`
}

// Validate reports whether the summary satisfies the schema.
func (s *ProductSummary) Validate() error {
	switch {
	case strings.TrimSpace(s.Name) == "":
		return fmt.Errorf("%w: name is required", ErrSchemaInvalid)
	case strings.TrimSpace(s.URL) == "":
		return fmt.Errorf("%w: url is required", ErrSchemaInvalid)
	case s.Price < 0 || s.OriginPrice < 0:
		return fmt.Errorf("%w: price cannot be negative", ErrSchemaInvalid)
	}
	return nil
}
