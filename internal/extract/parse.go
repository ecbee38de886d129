package extract

import (
	"math"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/Rorqualx/crawlpool/internal/selectors"
	"github.com/Rorqualx/crawlpool/internal/types"
)

var (
	numberPattern = regexp.MustCompile(`\d[\d,.]*`)
	spacePattern  = regexp.MustCompile(`\s+`)
)

func newDocument(html string) (*goquery.Document, error) {
	return goquery.NewDocumentFromReader(strings.NewReader(html))
}

// ParseDetail reads product fields from a rendered product page. Missing
// fields stay at their zero value; schema validation is the caller's job.
func ParseDetail(doc *goquery.Document, pageURL string, sel *selectors.Selectors) *types.ProductDetail {
	d := sel.Detail
	root := doc.Selection

	detail := &types.ProductDetail{
		URL:          pageURL,
		Name:         fieldValue(root, d.Name),
		Brand:        fieldValue(root, d.Brand),
		Price:        parsePrice(fieldValue(root, d.Price)),
		OriginPrice:  parsePrice(fieldValue(root, d.OriginPrice)),
		DiscountRate: parsePercent(fieldValue(root, d.DiscountRate)),
		Rating:       parseRating(fieldValue(root, d.Rating)),
		ReviewCount:  parseCount(fieldValue(root, d.ReviewCount)),
		Thumbnail:    resolveURL(pageURL, fieldValue(root, d.Thumbnail)),
		DetailImages: resolveAll(pageURL, fieldValues(root, d.DetailImages)),
		Reviews:      []types.Review{},
	}
	detail.OriginPrice, detail.DiscountRate = reconcilePrices(detail.Price, detail.OriginPrice, detail.DiscountRate)
	return detail
}

// ParseSearch reads result summaries from a rendered search page. Items that
// fail schema validation are dropped, as are repeats of a URL.
func ParseSearch(doc *goquery.Document, pageURL string, sel *selectors.Selectors) []types.ProductSummary {
	s := sel.Search
	results := []types.ProductSummary{}
	seen := make(map[string]bool)

	doc.Find(s.Item).Each(func(_ int, item *goquery.Selection) {
		summary := types.ProductSummary{
			Name:         fieldValue(item, s.Name),
			URL:          resolveURL(pageURL, fieldValue(item, s.Link)),
			Thumbnail:    resolveURL(pageURL, fieldValue(item, s.Thumbnail)),
			Price:        parsePrice(fieldValue(item, s.Price)),
			OriginPrice:  parsePrice(fieldValue(item, s.OriginPrice)),
			DiscountRate: parsePercent(fieldValue(item, s.DiscountRate)),
			Rating:       parseRating(fieldValue(item, s.Rating)),
			ReviewCount:  parseCount(fieldValue(item, s.ReviewCount)),
		}
		summary.OriginPrice, summary.DiscountRate = reconcilePrices(summary.Price, summary.OriginPrice, summary.DiscountRate)

		if summary.Validate() != nil || seen[summary.URL] {
			return
		}
		seen[summary.URL] = true
		summary.SchemaVersion = types.ProductSchemaVersion
		results = append(results, summary)
	})
	return results
}

// parseReviewTexts is the fallback when no review endpoint is configured.
func parseReviewTexts(doc *goquery.Document, f selectors.Field, limit int) []types.Review {
	reviews := []types.Review{}
	for _, text := range fieldValues(doc.Selection, f) {
		reviews = append(reviews, types.Review{Text: text})
		if limit > 0 && len(reviews) >= limit {
			break
		}
	}
	return reviews
}

// fieldValue returns the first non-empty value f locates under scope.
func fieldValue(scope *goquery.Selection, f selectors.Field) string {
	for _, css := range f.CSS {
		var value string
		scope.Find(css).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			value = nodeValue(s, f.Attr)
			return value == ""
		})
		if value != "" {
			return value
		}
	}
	return ""
}

// fieldValues returns every non-empty value of the first selector in f that
// matches anything, without duplicates.
func fieldValues(scope *goquery.Selection, f selectors.Field) []string {
	for _, css := range f.CSS {
		var values []string
		seen := make(map[string]bool)
		scope.Find(css).Each(func(_ int, s *goquery.Selection) {
			if v := nodeValue(s, f.Attr); v != "" && !seen[v] {
				seen[v] = true
				values = append(values, v)
			}
		})
		if len(values) > 0 {
			return values
		}
	}
	return nil
}

// nodeValue reads attr when set. Without attr, or when a meta or img node
// lacks it, the node's natural value is used: content for meta, the first
// image source for img, text otherwise.
func nodeValue(s *goquery.Selection, attr string) string {
	if attr != "" {
		if v, ok := s.Attr(attr); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}

	switch goquery.NodeName(s) {
	case "meta":
		v, _ := s.Attr("content")
		return strings.TrimSpace(v)
	case "img":
		for _, a := range []string{"src", "data-src", "data-original"} {
			if v, ok := s.Attr(a); ok && strings.TrimSpace(v) != "" {
				return strings.TrimSpace(v)
			}
		}
		return ""
	}

	if attr != "" {
		return ""
	}
	return collapseSpace(s.Text())
}

func collapseSpace(s string) string {
	return strings.TrimSpace(spacePattern.ReplaceAllString(s, " "))
}

// resolveURL makes ref absolute against base. Unresolvable or non-http
// references yield "".
func resolveURL(base, ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ""
	}
	refURL, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return ""
	}
	abs := baseURL.ResolveReference(refURL)
	if abs.Scheme != "http" && abs.Scheme != "https" {
		return ""
	}
	return abs.String()
}

func resolveAll(base string, refs []string) []string {
	out := []string{}
	for _, ref := range refs {
		if abs := resolveURL(base, ref); abs != "" {
			out = append(out, abs)
		}
	}
	return out
}

// parsePrice reads the first amount in s as whole currency units:
// "12,900원" is 12900, "$1,299.99" is 1299, "1.234.567" is 1234567.
func parsePrice(s string) int64 {
	raw := numberPattern.FindString(s)
	if raw == "" {
		return 0
	}
	raw = strings.ReplaceAll(raw, ",", "")
	raw = strings.TrimRight(raw, ".")

	if strings.Count(raw, ".") == 1 {
		whole, frac, _ := strings.Cut(raw, ".")
		if len(frac) == 3 {
			// A lone three digit group is a thousands separator.
			raw = whole + frac
		} else {
			raw = whole
		}
	} else {
		raw = strings.ReplaceAll(raw, ".", "")
	}

	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// parsePercent reads the first integer in s as a percentage in [0, 100].
func parsePercent(s string) int {
	raw := numberPattern.FindString(s)
	if raw == "" {
		return 0
	}
	raw, _, _ = strings.Cut(strings.ReplaceAll(raw, ",", ""), ".")
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 || n > 100 {
		return 0
	}
	return n
}

// parseRating reads a 0-5 rating. Values in (5, 100] are star widths given
// as a percentage, as in "width: 90%", and are scaled to 4.5.
func parseRating(s string) float64 {
	raw := numberPattern.FindString(s)
	if raw == "" {
		return 0
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(raw, ",", ""), 64)
	if err != nil || v < 0 {
		return 0
	}
	if v > 5 {
		if v > 100 {
			return 0
		}
		v = v / 20
	}
	return math.Round(v*10) / 10
}

// parseCount reads the first integer in s, ignoring thousands separators.
func parseCount(s string) int {
	raw := numberPattern.FindString(s)
	if raw == "" {
		return 0
	}
	raw = strings.ReplaceAll(raw, ",", "")
	raw, _, _ = strings.Cut(raw, ".")
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// reconcilePrices fills the discount rate from the two prices when the page
// shows both but no rate, and drops an origin price that is not above price.
func reconcilePrices(price, origin int64, rate int) (int64, int) {
	if origin <= price {
		return 0, rate
	}
	if rate == 0 && price > 0 {
		rate = int(math.Round(float64(origin-price) * 100 / float64(origin)))
	}
	return origin, rate
}
