package extract

import (
	"context"
	"fmt"
	"math"
	"net/url"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/ysmood/gson"

	"github.com/Rorqualx/crawlpool/internal/selectors"
	"github.com/Rorqualx/crawlpool/internal/types"
)

// fetchJSONScript runs inside the product page so the request carries the
// page's cookies and origin. It resolves to {ok, status, body}.
const fetchJSONScript = `async (endpoint, timeoutMs) => {
  const ctl = new AbortController();
  const timer = setTimeout(() => ctl.abort(), timeoutMs);
  try {
    const res = await fetch(endpoint, {
      credentials: 'include',
      headers: { 'Accept': 'application/json' },
      signal: ctl.signal,
    });
    if (!res.ok) return { ok: false, status: res.status };
    return { ok: true, status: res.status, body: await res.json() };
  } finally {
    clearTimeout(timer);
  }
}`

// reviewEndpoint renders the configured endpoint for productURL.
func reviewEndpoint(productURL string, sel *selectors.Selectors) (string, bool) {
	endpoint := sel.Reviews.Endpoint
	if endpoint == "" {
		return "", false
	}
	if strings.Contains(endpoint, selectors.ProductIDPlaceholder) {
		id, ok := sel.ProductID(productURL)
		if !ok {
			return "", false
		}
		endpoint = strings.ReplaceAll(endpoint, selectors.ProductIDPlaceholder, url.PathEscape(id))
	}
	abs := resolveURL(productURL, endpoint)
	return abs, abs != ""
}

// fetchJSON evaluates fetchJSONScript on page and returns the decoded body.
func fetchJSON(ctx context.Context, page *rod.Page, endpoint string, timeout time.Duration) (gson.JSON, error) {
	res, err := page.Context(ctx).Evaluate(
		rod.Eval(fetchJSONScript, endpoint, timeout.Milliseconds()).ByPromise(),
	)
	if err != nil {
		return gson.New(nil), err
	}
	if !res.Value.Get("ok").Bool() {
		return gson.New(nil), fmt.Errorf("review endpoint answered HTTP %d", res.Value.Get("status").Int())
	}
	return res.Value.Get("body"), nil
}

// decodeReviews maps the fetched JSON onto reviews using the configured
// field paths. Entries without text are skipped.
func decodeReviews(body gson.JSON, cfg selectors.Reviews) []types.Review {
	items := body
	if cfg.ItemsPath != "" {
		items = body.Get(cfg.ItemsPath)
	}

	reviews := []types.Review{}
	for _, item := range items.Arr() {
		text := jsonString(item, cfg.TextField)
		if text == "" {
			continue
		}
		review := types.Review{
			Author: jsonString(item, cfg.AuthorField),
			Text:   text,
			Date:   jsonString(item, cfg.DateField),
		}
		if cfg.RatingField != "" {
			review.Rating = int(math.Round(item.Get(cfg.RatingField).Num()))
		}
		reviews = append(reviews, review)
		if cfg.Limit > 0 && len(reviews) >= cfg.Limit {
			break
		}
	}
	return reviews
}

func jsonString(j gson.JSON, path string) string {
	if path == "" {
		return ""
	}
	v := j.Get(path)
	if v.Nil() {
		return ""
	}
	return collapseSpace(v.Str())
}
