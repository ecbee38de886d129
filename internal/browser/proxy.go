package browser

import (
	"context"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/rs/zerolog/log"

	"github.com/Rorqualx/crawlpool/internal/config"
	"github.com/Rorqualx/crawlpool/internal/security"
)

// ProxyConfig holds the proxy a session routes through.
type ProxyConfig struct {
	URL      string
	Username string
	Password string
}

// proxyFromConfig returns nil when no proxy is configured.
func proxyFromConfig(cfg *config.Config) *ProxyConfig {
	if !cfg.HasProxy() {
		return nil
	}
	return &ProxyConfig{
		URL:      cfg.ProxyURL,
		Username: cfg.ProxyUsername,
		Password: cfg.ProxyPassword,
	}
}

// needsAuth reports whether pages must answer proxy auth challenges.
func (p *ProxyConfig) needsAuth() bool {
	return p != nil && p.URL != "" && p.Username != ""
}

// SetPageProxy answers proxy authentication challenges for a page.
// The proxy server itself is set at launch time (--proxy-server); this only
// supplies credentials.
//
// The returned cleanup stops the event listeners and must be called when the
// page is closed. It is safe to call more than once.
func SetPageProxy(ctx context.Context, page *rod.Page, proxy *ProxyConfig) (cleanup func(), err error) {
	if !proxy.needsAuth() {
		return func() {}, nil
	}

	log.Debug().
		Str("proxy_url", security.RedactProxyURL(proxy.URL)).
		Msg("Setting up proxy authentication")

	// Enabling Fetch pauses every request, so both events must be handled.
	if err := (proto.FetchEnable{HandleAuthRequests: true}).Call(page); err != nil {
		return func() {}, err
	}

	listenerCtx, cancel := context.WithCancel(ctx)
	pageWithCtx := page.Context(listenerCtx)

	wait := pageWithCtx.EachEvent(
		func(e *proto.FetchAuthRequired) {
			_ = proto.FetchContinueWithAuth{
				RequestID: e.RequestID,
				AuthChallengeResponse: &proto.FetchAuthChallengeResponse{
					Response: proto.FetchAuthChallengeResponseResponseProvideCredentials,
					Username: proxy.Username,
					Password: proxy.Password,
				},
			}.Call(page)
		},
		func(e *proto.FetchRequestPaused) {
			if e.ResponseStatusCode == nil {
				_ = proto.FetchContinueRequest{RequestID: e.RequestID}.Call(page)
			}
		},
	)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		wait()
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			wg.Wait()
		})
	}, nil
}
