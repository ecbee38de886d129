// Package extract turns pooled browser pages into product data.
//
// A detail crawl navigates to a product page, rejects blocked responses,
// reads fields with goquery and fetches reviews in-page. A search opens the
// configured search URL, waits for the first result, scrolls to trigger lazy
// loading and reads the result list.
package extract

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-rod/rod"
	"github.com/rs/zerolog/log"

	"github.com/Rorqualx/crawlpool/internal/blockpage"
	"github.com/Rorqualx/crawlpool/internal/config"
	"github.com/Rorqualx/crawlpool/internal/humanize"
	"github.com/Rorqualx/crawlpool/internal/pool"
	"github.com/Rorqualx/crawlpool/internal/security"
	"github.com/Rorqualx/crawlpool/internal/selectors"
	"github.com/Rorqualx/crawlpool/internal/types"
)

// requestIdleWindow is how long the network must stay quiet for a page to
// count as settled.
const requestIdleWindow = 500 * time.Millisecond

// errNotRodPage is returned for pages that did not come from the browser package.
var errNotRodPage = errors.New("page does not expose a rod page")

// RodPage is implemented by pages backed by go-rod.
type RodPage interface {
	Rod() *rod.Page
}

// Extractor implements pool.Extractor on rod pages.
type Extractor struct {
	cfg       *config.Config
	selectors *selectors.Manager
	now       func() time.Time
}

// New returns an Extractor reading selectors from sel on every job, so hot
// reloads apply to the next job.
func New(cfg *config.Config, sel *selectors.Manager) *Extractor {
	return &Extractor{cfg: cfg, selectors: sel, now: time.Now}
}

// Detail crawls one product page.
func (e *Extractor) Detail(ctx context.Context, page pool.Page, target string) (*types.ProductDetail, error) {
	rp, err := rodOf(page)
	if err != nil {
		return nil, types.NewExtractionError(target, err)
	}
	sel := e.selectors.Get()

	finalURL, err := e.navigate(ctx, rp, target, true)
	if err != nil {
		return nil, err
	}

	doc, err := e.document(ctx, rp, target)
	if err != nil {
		return nil, err
	}
	if marker, hit := findMarker(doc, sel.AccessDenied); hit {
		log.Debug().Str("url", security.RedactURL(target)).Str("marker", marker).Msg("Access denied marker found")
		return nil, blocked(target, 0, doc)
	}

	detail := ParseDetail(doc, finalURL, sel)
	detail.URL = target
	detail.CrawledAt = e.now().UTC()
	detail.Reviews = e.reviews(ctx, rp, finalURL, doc, sel)

	log.Debug().
		Str("url", security.RedactURL(target)).
		Bool("has_name", detail.Name != "").
		Int("images", len(detail.DetailImages)).
		Int("reviews", len(detail.Reviews)).
		Msg("Detail extracted")

	return detail, nil
}

// Search runs one keyword search.
func (e *Extractor) Search(ctx context.Context, page pool.Page, keyword string) ([]types.ProductSummary, error) {
	rp, err := rodOf(page)
	if err != nil {
		return nil, types.NewExtractionError(keyword, err)
	}
	sel := e.selectors.Get()
	searchURL := sel.SearchURL(url.QueryEscape(keyword))

	finalURL, err := e.navigate(ctx, rp, searchURL, false)
	if err != nil {
		return nil, err
	}

	if err := e.waitForResults(ctx, rp, sel.Search.Item); err != nil {
		// A block page never shows results; report it as what it is.
		if doc, docErr := e.document(ctx, rp, searchURL); docErr == nil {
			if _, hit := findMarker(doc, sel.AccessDenied); hit {
				return nil, blocked(searchURL, 0, doc)
			}
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, types.NewNoResultsError(keyword)
		}
		return nil, types.NewNavigationError(searchURL, err)
	}

	scroller := humanize.NewScroller(rp.Context(ctx))
	if _, err := scroller.ScrollThrough(ctx); err != nil {
		log.Debug().Err(err).Msg("Scrolling search results failed, parsing what loaded")
	}

	doc, err := e.document(ctx, rp, searchURL)
	if err != nil {
		return nil, err
	}

	results := ParseSearch(doc, finalURL, sel)
	log.Debug().
		Str("keyword", keyword).
		Int("results", len(results)).
		Msg("Search extracted")

	return results, nil
}

// navigate loads target within NavigationTimeout and checks the document
// status. With waitIdle it also waits, within the same bound, for the
// network to go quiet; running out of time there is not an error.
// It returns the final document URL after redirects.
func (e *Extractor) navigate(ctx context.Context, rp *rod.Page, target string, waitIdle bool) (string, error) {
	capture, stop := captureDocument(ctx, rp)
	defer stop()

	nav, cancel := withTimeout(rp.Context(ctx), e.cfg.NavigationTimeout)
	defer cancel()

	var idle func()
	if waitIdle {
		idle = nav.WaitRequestIdle(humanize.Jitter(requestIdleWindow, 0.3), nil, nil, nil)
	}

	if err := nav.Navigate(target); err != nil {
		return "", navigationError(target, "navigation", err)
	}
	if err := nav.WaitLoad(); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return "", navigationError(target, "page load", err)
	}
	if idle != nil {
		idle()
	}

	if status := capture.Status(); status != 0 && (status < 200 || status > 299) {
		doc, _ := e.document(ctx, rp, target)
		return "", blocked(target, status, doc)
	}

	finalURL := capture.URL()
	if finalURL == "" {
		finalURL = target
	}
	return finalURL, nil
}

func (e *Extractor) waitForResults(ctx context.Context, rp *rod.Page, itemSelector string) error {
	wait, cancel := withTimeout(rp.Context(ctx), e.cfg.SearchWaitTimeout)
	defer cancel()
	_, err := wait.Element(itemSelector)
	return err
}

func (e *Extractor) document(ctx context.Context, rp *rod.Page, target string) (*goquery.Document, error) {
	html, err := rp.Context(ctx).HTML()
	if err != nil {
		return nil, navigationError(target, "reading content", err)
	}
	doc, err := newDocument(html)
	if err != nil {
		return nil, types.NewExtractionError(target, err)
	}
	return doc, nil
}

// reviews never fails: any problem yields an empty list.
func (e *Extractor) reviews(ctx context.Context, rp *rod.Page, productURL string, doc *goquery.Document, sel *selectors.Selectors) []types.Review {
	cfg := sel.Reviews
	if cfg.Endpoint == "" {
		return parseReviewTexts(doc, sel.Detail.ReviewTexts, cfg.Limit)
	}

	endpoint, ok := reviewEndpoint(productURL, sel)
	if !ok {
		log.Debug().Str("url", security.RedactURL(productURL)).Msg("No review endpoint for product")
		return []types.Review{}
	}

	timeout := e.cfg.ReviewTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	rctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	body, err := fetchJSON(rctx, rp, endpoint, timeout)
	if err != nil {
		log.Debug().Err(err).Str("endpoint", security.RedactURL(endpoint)).Msg("Review fetch failed, continuing without reviews")
		return []types.Review{}
	}
	return decodeReviews(body, cfg)
}

// blocked builds the access-denied error for target, classifying the block
// page when doc is available.
func blocked(target string, status int, doc *goquery.Document) *types.CrawlError {
	err := types.NewAccessDeniedError(target, status)
	if doc == nil {
		return err
	}
	if info := blockpage.Detect(status, visibleText(doc)); info.Detected {
		err.WithBlock(info.Code, info.Description, info.RetryAfter)
		log.Debug().
			Str("url", security.RedactURL(target)).
			Str("block_code", info.Code).
			Str("category", string(info.Category)).
			Msg("Block page classified")
	}
	return err
}

// findMarker looks for access-denied markers in the page's visible text.
func findMarker(doc *goquery.Document, markers []string) (string, bool) {
	text := visibleText(doc)
	for _, marker := range markers {
		if marker != "" && strings.Contains(text, strings.ToLower(marker)) {
			return marker, true
		}
	}
	return "", false
}

// visibleText is the lowercased title and body text without scripts, which
// routinely mention words like "blocked" in code.
func visibleText(doc *goquery.Document) string {
	clone := doc.Selection.Clone()
	clone.Find("script, style, noscript, template").Remove()
	return strings.ToLower(clone.Find("title").Text() + " " + clone.Find("body").Text())
}

func rodOf(page pool.Page) (*rod.Page, error) {
	rp, ok := page.(RodPage)
	if !ok || rp.Rod() == nil {
		return nil, fmt.Errorf("%w: %T", errNotRodPage, page)
	}
	return rp.Rod(), nil
}

// withTimeout bounds p by d. A zero d means no bound.
func withTimeout(p *rod.Page, d time.Duration) (*rod.Page, func()) {
	if d <= 0 {
		return p, func() {}
	}
	p = p.Timeout(d)
	return p, func() { p.CancelTimeout() }
}

func navigationError(target, stage string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return types.NewTimeoutError(target, stage)
	}
	return types.NewNavigationError(target, err)
}
