// Package browser creates Chrome sessions and pages for the page pool.
//
// Every session is a fresh browser process with its own randomized
// fingerprint and an incognito context; every page is patched with stealth
// scripts and the fingerprint overrides before it is handed out.
package browser

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/rs/zerolog/log"

	"github.com/Rorqualx/crawlpool/internal/config"
	"github.com/Rorqualx/crawlpool/internal/pool"
)

// SessionFactory launches browser sessions. It implements pool.SessionFactory.
type SessionFactory struct {
	cfg   *config.Config
	proxy *ProxyConfig

	mu   sync.Mutex
	rand *rand.Rand
}

// FactoryOption customizes a SessionFactory.
type FactoryOption func(*SessionFactory)

// WithRand makes fingerprint generation deterministic.
func WithRand(r *rand.Rand) FactoryOption {
	return func(f *SessionFactory) { f.rand = r }
}

// NewSessionFactory returns a factory using cfg's browser and proxy settings.
func NewSessionFactory(cfg *config.Config, opts ...FactoryOption) *SessionFactory {
	f := &SessionFactory{
		cfg:   cfg,
		proxy: proxyFromConfig(cfg),
		rand:  rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// nextFingerprint draws a fingerprint; rand.Rand is not safe for concurrent use.
func (f *SessionFactory) nextFingerprint() Fingerprint {
	f.mu.Lock()
	defer f.mu.Unlock()
	return NewFingerprint(f.rand, f.cfg.Locales)
}

// NewSession launches a browser, connects to it and opens an incognito
// context. The launch honors ctx; a browser that started before ctx ended is
// closed again.
func (f *SessionFactory) NewSession(ctx context.Context) (pool.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	fp := f.nextFingerprint()
	l := newLauncher(f.cfg, fp).Context(ctx)

	start := time.Now()
	controlURL, err := l.Launch()
	if err != nil {
		releaseLauncher(l)
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		releaseLauncher(l)
		return nil, fmt.Errorf("failed to connect to browser: %w", err)
	}

	if f.cfg.IgnoreCertErrors {
		log.Warn().Msg("Certificate validation disabled - MITM attacks possible")
		if err := b.IgnoreCertErrors(true); err != nil {
			log.Warn().Err(err).Msg("Failed to set IgnoreCertErrors")
		}
	}

	incognito, err := b.Incognito()
	if err != nil {
		_ = b.Close()
		releaseLauncher(l)
		return nil, fmt.Errorf("failed to create incognito context: %w", err)
	}

	log.Debug().
		Str("user_agent", fp.UserAgent).
		Str("locale", fp.Locale).
		Str("timezone", fp.Timezone).
		Str("window", fp.WindowSize()).
		Dur("duration", time.Since(start)).
		Msg("Browser session launched")

	return &Session{
		launcher:    l,
		browser:     b,
		incognito:   incognito,
		fingerprint: fp,
		proxy:       f.proxy,
	}, nil
}

// Session is one browser process and its incognito context.
type Session struct {
	launcher    *launcher.Launcher
	browser     *rod.Browser
	incognito   *rod.Browser
	fingerprint Fingerprint
	proxy       *ProxyConfig

	closeOnce sync.Once
	closeErr  error
}

// Fingerprint returns the identity shared by the session's pages.
func (s *Session) Fingerprint() Fingerprint {
	return s.fingerprint
}

// NewPage opens a blank tab in the incognito context and applies the
// session fingerprint. The page is closed again if any step fails.
func (s *Session) NewPage(ctx context.Context) (pool.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rp, err := s.incognito.Context(ctx).Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return nil, fmt.Errorf("create target: %w", err)
	}
	// Detach from ctx: the page outlives the creation call.
	rp = rp.Context(context.Background())

	page := &Page{rod: rp, cleanup: func() {}}
	if err := s.preparePage(ctx, page); err != nil {
		_ = page.Close()
		return nil, err
	}
	return page, nil
}

func (s *Session) preparePage(ctx context.Context, page *Page) error {
	if err := applyStealth(page.rod, s.fingerprint); err != nil {
		return err
	}
	if err := applyFingerprint(page.rod, s.fingerprint); err != nil {
		return err
	}

	cleanup, err := SetPageProxy(context.WithoutCancel(ctx), page.rod, s.proxy)
	if err != nil {
		return fmt.Errorf("proxy auth: %w", err)
	}
	page.cleanup = cleanup
	return nil
}

// Close disposes the incognito context, closes the browser and removes its
// profile directory. Safe to call twice.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		var errs []error
		if s.incognito != nil {
			if err := s.incognito.Close(); err != nil {
				errs = append(errs, fmt.Errorf("dispose context: %w", err))
			}
		}
		if s.browser != nil {
			if err := s.browser.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close browser: %w", err))
			}
		}
		if s.launcher != nil {
			releaseLauncher(s.launcher)
		}
		s.closeErr = errors.Join(errs...)
	})
	return s.closeErr
}

// profileCleanupTimeout bounds the wait for the browser process to exit
// before its profile directory is removed.
const profileCleanupTimeout = 10 * time.Second

// releaseLauncher kills the browser process and deletes the user data
// directory the launcher created. A launcher whose process never started
// has nothing to release.
func releaseLauncher(l *launcher.Launcher) {
	if l.PID() == 0 {
		return
	}
	l.Kill()

	done := make(chan struct{})
	go func() {
		l.Cleanup()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(profileCleanupTimeout):
		log.Warn().
			Str("user_data_dir", l.Get(flags.UserDataDir)).
			Msg("Browser did not exit, profile directory left behind")
	}
}

// Page is a pooled tab. It implements pool.Page.
type Page struct {
	rod     *rod.Page
	cleanup func()

	closeOnce sync.Once
	closeErr  error
}

// Rod exposes the underlying rod page to extractors.
func (p *Page) Rod() *rod.Page {
	return p.rod
}

// Close stops the page's listeners and closes the tab. Safe to call twice.
func (p *Page) Close() error {
	p.closeOnce.Do(func() {
		p.cleanup()
		p.closeErr = p.rod.Close()
	})
	return p.closeErr
}
