package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Rorqualx/crawlpool/internal/config"
	"github.com/Rorqualx/crawlpool/internal/types"
)

func testConfig(maxPages int, idleDelay time.Duration) *config.Config {
	return &config.Config{
		MaxPages:             maxPages,
		IdleTeardownDelay:    idleDelay,
		SessionLaunchTimeout: 5 * time.Second,
		JobTimeout:           5 * time.Second,
	}
}

type fakePage struct {
	id     int
	closes atomic.Int32
}

func (p *fakePage) Close() error {
	p.closes.Add(1)
	return nil
}

type fakeSession struct {
	factory *fakeFactory
	closes  atomic.Int32

	mu    sync.Mutex
	pages []*fakePage
}

func (s *fakeSession) NewPage(ctx context.Context) (Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	n := s.factory.pageCalls.Add(1)
	if fail := s.factory.failPageCall; fail > 0 && n == fail {
		return nil, errors.New("target crashed")
	}
	page := &fakePage{id: int(n)}
	s.pages = append(s.pages, page)
	return page, nil
}

func (s *fakeSession) Close() error {
	s.closes.Add(1)
	return nil
}

func (s *fakeSession) createdPages() []*fakePage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*fakePage(nil), s.pages...)
}

type fakeFactory struct {
	delay        time.Duration
	failPageCall int32 // 1-based NewPage call that fails; 0 disables

	pageCalls atomic.Int32

	mu       sync.Mutex
	failNext int
	attempts int
	sessions []*fakeSession
}

func (f *fakeFactory) NewSession(ctx context.Context) (Session, error) {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts++
	if f.failNext > 0 {
		f.failNext--
		return nil, errors.New("chrome failed to start")
	}
	s := &fakeSession{factory: f}
	f.sessions = append(f.sessions, s)
	return s, nil
}

func (f *fakeFactory) created() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sessions)
}

func (f *fakeFactory) session(i int) *fakeSession {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sessions[i]
}

// fakeExtractor delegates to per-test funcs and falls back to instant success.
type fakeExtractor struct {
	detail func(ctx context.Context, page Page, url string) (*types.ProductDetail, error)
	search func(ctx context.Context, page Page, keyword string) ([]types.ProductSummary, error)
}

func (e *fakeExtractor) Detail(ctx context.Context, page Page, url string) (*types.ProductDetail, error) {
	if e.detail != nil {
		return e.detail(ctx, page, url)
	}
	return &types.ProductDetail{URL: url, Name: "Product at " + url}, nil
}

func (e *fakeExtractor) Search(ctx context.Context, page Page, keyword string) ([]types.ProductSummary, error) {
	if e.search != nil {
		return e.search(ctx, page, keyword)
	}
	return []types.ProductSummary{{Name: keyword, URL: "https://shop.example.com/p/" + keyword}}, nil
}

// gatedExtractor blocks each detail crawl until its target's gate is opened.
type gatedExtractor struct {
	fakeExtractor

	mu    sync.Mutex
	gates map[string]chan struct{}
}

func newGatedExtractor(targets ...string) *gatedExtractor {
	g := &gatedExtractor{gates: make(map[string]chan struct{})}
	for _, t := range targets {
		g.gates[t] = make(chan struct{})
	}
	g.detail = func(ctx context.Context, _ Page, url string) (*types.ProductDetail, error) {
		g.mu.Lock()
		gate, ok := g.gates[url]
		g.mu.Unlock()
		if ok {
			select {
			case <-gate:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		return &types.ProductDetail{URL: url, Name: url}, nil
	}
	return g
}

func (g *gatedExtractor) open(target string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	close(g.gates[target])
}

// manualScheduler holds the scheduled task until Fire is called.
type manualScheduler struct {
	mu       sync.Mutex
	fn       func()
	delay    time.Duration
	canceled int
}

func (s *manualScheduler) Schedule(d time.Duration, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fn = fn
	s.delay = d
}

func (s *manualScheduler) Cancel() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fn == nil {
		return false
	}
	s.fn = nil
	s.canceled++
	return true
}

func (s *manualScheduler) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fn != nil
}

func (s *manualScheduler) Fire() {
	s.mu.Lock()
	fn := s.fn
	s.fn = nil
	s.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func (s *manualScheduler) cancelCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.canceled
}

// dispatchLog records request targets in dispatch order.
type dispatchLog struct {
	mu      sync.Mutex
	targets []string
	ids     []string
}

func (d *dispatchLog) hook(r *Request) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.targets = append(d.targets, r.Target)
	d.ids = append(d.ids, r.ID)
}

func (d *dispatchLog) snapshot() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.targets...)
}

func target(i int) string {
	return fmt.Sprintf("https://shop.example.com/products/%d", i)
}
