// Package pool runs crawl and search jobs against a fixed set of pages leased
// from a single browser session.
//
// The session is created lazily by the first request (or an explicit
// Initialize), serves queued requests in arrival order, and is torn down once
// no work remains so the next burst of requests gets a fresh fingerprint.
//
// Lock ordering: Pool.mu is acquired before the scheduler's lock.
// Never hold Pool.mu while performing browser I/O.
package pool

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/Rorqualx/crawlpool/internal/config"
	"github.com/Rorqualx/crawlpool/internal/metrics"
	"github.com/Rorqualx/crawlpool/internal/types"
)

// Page is a leasable rendering handle bound to a Session.
type Page interface {
	Close() error
}

// Session owns the browser and its isolated context. Pages are created from it.
type Session interface {
	NewPage(ctx context.Context) (Page, error)
	Close() error
}

// SessionFactory creates a ready-to-use Session with its fingerprint applied.
type SessionFactory interface {
	NewSession(ctx context.Context) (Session, error)
}

// Extractor turns a leased page into structured data.
type Extractor interface {
	Detail(ctx context.Context, page Page, url string) (*types.ProductDetail, error)
	Search(ctx context.Context, page Page, keyword string) ([]types.ProductSummary, error)
}

type lifecycle int

const (
	stateUninitialized lifecycle = iota
	stateInitializing
	stateReady
	stateTearingDown
)

func (s lifecycle) String() string {
	switch s {
	case stateInitializing:
		return "initializing"
	case stateReady:
		return "ready"
	case stateTearingDown:
		return "tearing_down"
	default:
		return "uninitialized"
	}
}

// Status is a point-in-time snapshot of the pool.
type Status struct {
	Initialized      bool   `json:"isInitialized"`
	State            string `json:"state"`
	MaxPages         int    `json:"maxPages"`
	AvailablePages   int    `json:"availablePages"`
	QueueLength      int    `json:"queueLength"`
	ProcessingCount  int    `json:"processingCount"`
	CleanupScheduled bool   `json:"hasCleanupScheduled"`
	SessionsCreated  int64  `json:"sessionsCreated"`
	Generation       uint64 `json:"generation"`
}

// Pool is the page pool, request queue, dispatcher and idle reaper.
// The zero value is not usable; create one with New.
type Pool struct {
	cfg        *config.Config
	factory    SessionFactory
	extractor  Extractor
	ids        IDGenerator
	scheduler  Scheduler
	onDispatch func(*Request)

	initGroup singleflight.Group

	mu           sync.Mutex
	state        lifecycle
	session      Session
	idle         []Page
	queue        requestQueue
	processing   int
	generation   uint64 // bumped on every teardown; leases from older generations are discarded
	created      int64
	initDone     chan struct{} // closed when the current initialize attempt finishes
	teardownDone chan struct{} // closed when the current teardown finishes

	jobs sync.WaitGroup
}

// Option customizes a Pool.
type Option func(*Pool)

// WithIDGenerator replaces the default UUID request IDs.
func WithIDGenerator(g IDGenerator) Option {
	return func(p *Pool) { p.ids = g }
}

// WithScheduler replaces the timer used for delayed idle teardown.
func WithScheduler(s Scheduler) Option {
	return func(p *Pool) { p.scheduler = s }
}

// WithDispatchHook registers fn to be called each time a request is handed a
// page. fn runs with the pool lock held and must not block or call the pool.
func WithDispatchHook(fn func(*Request)) Option {
	return func(p *Pool) { p.onDispatch = fn }
}

// New creates a pool. No browser is launched until the first request or an
// explicit Initialize.
func New(cfg *config.Config, factory SessionFactory, extractor Extractor, opts ...Option) *Pool {
	p := &Pool{
		cfg:       cfg,
		factory:   factory,
		extractor: extractor,
		ids:       UUIDGenerator{},
		scheduler: NewTimerScheduler(),
	}
	for _, opt := range opts {
		opt(p)
	}

	log.Info().
		Int("max_pages", cfg.MaxPages).
		Dur("idle_teardown_delay", cfg.IdleTeardownDelay).
		Msg("Page pool created")

	p.mu.Lock()
	p.publishLocked()
	p.mu.Unlock()
	return p
}

// Initialize makes sure a session with MaxPages pages exists.
//
// Concurrent callers share one creation attempt. The attempt itself is not
// bound to ctx, so a caller giving up does not abort creation for the others.
// On failure nothing is left half-created and a later call retries cleanly.
func (p *Pool) Initialize(ctx context.Context) error {
	p.mu.Lock()
	ready := p.state == stateReady
	p.mu.Unlock()
	if ready {
		return nil
	}

	ch := p.initGroup.DoChan("session", func() (interface{}, error) {
		return nil, p.initialize()
	})

	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Pool) initialize() error {
	p.mu.Lock()
	for p.state == stateTearingDown {
		done := p.teardownDone
		p.mu.Unlock()
		<-done
		p.mu.Lock()
	}
	if p.state == stateReady {
		p.mu.Unlock()
		return nil
	}
	p.state = stateInitializing
	p.initDone = make(chan struct{})
	p.mu.Unlock()

	start := time.Now()
	log.Info().Int("max_pages", p.cfg.MaxPages).Msg("Initializing browser session")

	ctx, cancel := launchContext(p.cfg.SessionLaunchTimeout)
	defer cancel()

	session, pages, err := p.launch(ctx)

	p.mu.Lock()
	defer p.mu.Unlock()

	close(p.initDone)
	p.initDone = nil

	if err != nil {
		p.state = stateUninitialized
		p.publishLocked()
		metrics.RecordSessionEvent("create_failed")
		log.Error().Err(err).Dur("elapsed", time.Since(start)).Msg("Failed to initialize browser session")
		return err
	}

	p.session = session
	p.idle = pages
	p.state = stateReady
	p.created++
	metrics.RecordSessionEvent("created")

	log.Info().
		Int("pages", len(pages)).
		Int("queued", p.queue.len()).
		Uint64("generation", p.generation).
		Dur("elapsed", time.Since(start)).
		Msg("Browser session ready")

	p.dispatchLocked()
	p.publishLocked()
	return nil
}

func launchContext(timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(context.Background())
	}
	return context.WithTimeout(context.Background(), timeout)
}

// launch creates the session and its pages. On any failure every resource
// created so far is released before returning.
func (p *Pool) launch(ctx context.Context) (Session, []Page, error) {
	session, err := p.factory.NewSession(ctx)
	if err != nil {
		return nil, nil, types.NewSessionCreateError(err)
	}

	pages := make([]Page, p.cfg.MaxPages)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i := range pages {
		g.Go(func() error {
			page, err := session.NewPage(gctx)
			if err != nil {
				return fmt.Errorf("page %d: %w", i, err)
			}
			pages[i] = page
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		for _, page := range pages {
			if page == nil {
				continue
			}
			if cerr := page.Close(); cerr != nil {
				log.Debug().Err(cerr).Msg("Failed to close page during rollback")
			}
		}
		if cerr := session.Close(); cerr != nil {
			log.Warn().Err(cerr).Msg("Failed to close session during rollback")
		}
		return nil, nil, types.NewPageCreateError(err)
	}

	return session, pages, nil
}

// Crawl runs a detail crawl of url on the next free page.
func (p *Pool) Crawl(ctx context.Context, url string) (*types.ProductDetail, error) {
	res, err := p.submit(ctx, KindDetail, url)
	if err != nil {
		return nil, err
	}
	return res.detail, nil
}

// Search runs a keyword search on the next free page.
func (p *Pool) Search(ctx context.Context, keyword string) ([]types.ProductSummary, error) {
	res, err := p.submit(ctx, KindSearch, keyword)
	if err != nil {
		return nil, err
	}
	return res.summaries, nil
}

// submit enqueues a request, makes sure a session exists and waits for the
// request's single completion. A request still queued when ctx ends is
// withdrawn; one already running keeps its page until the job finishes.
func (p *Pool) submit(ctx context.Context, kind Kind, target string) (result, error) {
	if strings.TrimSpace(target) == "" {
		return result{}, fmt.Errorf("%w: empty %s target", types.ErrInvalidTarget, kind)
	}

	req := newRequest(p.ids.NewID(), kind, target)

	p.mu.Lock()
	if p.scheduler.Cancel() {
		log.Debug().Str("request_id", req.ID).Msg("Canceled pending idle teardown")
	}
	p.queue.push(req)
	p.dispatchLocked()
	p.publishLocked()
	p.mu.Unlock()

	log.Debug().
		Str("request_id", req.ID).
		Str("kind", string(kind)).
		Msg("Request enqueued")

	if err := p.Initialize(ctx); err != nil {
		if p.withdraw(req) {
			return result{}, err
		}
		// A concurrent initialize already handed this request a page.
	}

	select {
	case res := <-req.done:
		return res, res.err
	case <-ctx.Done():
		if p.withdraw(req) {
			log.Debug().Str("request_id", req.ID).Msg("Queued request withdrawn")
			return result{}, fmt.Errorf("%w: %w", types.ErrRequestCanceled, ctx.Err())
		}
		return result{}, ctx.Err()
	}
}

// withdraw removes req from the queue if it has not been dispatched yet.
func (p *Pool) withdraw(req *Request) bool {
	p.mu.Lock()
	removed := p.queue.remove(req)
	var teardown func()
	if removed {
		teardown = p.idleCheckLocked()
		p.publishLocked()
	}
	p.mu.Unlock()

	if teardown != nil {
		teardown()
	}
	return removed
}

// Cleanup closes all pages, then the session, and cancels any pending idle
// teardown. It is a no-op on a pool that was never initialized and safe to
// call repeatedly. Requests still queued wait for the next Initialize; a
// caller that cleans up with a non-empty queue must initialize again or
// those requests block until their contexts end.
func (p *Pool) Cleanup(ctx context.Context) error {
	p.mu.Lock()
	p.scheduler.Cancel()
	for {
		var wait chan struct{}
		switch p.state {
		case stateInitializing:
			wait = p.initDone
		case stateTearingDown:
			wait = p.teardownDone
		}
		if wait == nil {
			break
		}
		p.mu.Unlock()
		select {
		case <-wait:
		case <-ctx.Done():
			return ctx.Err()
		}
		p.mu.Lock()
	}

	if p.state != stateReady {
		p.mu.Unlock()
		return nil
	}
	session, pages := p.detachLocked()
	p.mu.Unlock()

	metrics.RecordSessionEvent("cleanup")
	return p.finishTeardown(session, pages, "cleanup")
}

// Close waits for in-flight jobs, bounded by ctx, and then cleans up.
// The teardown itself runs even when ctx has already ended; a launch in
// progress is bounded by SessionLaunchTimeout.
func (p *Pool) Close(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		p.jobs.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		log.Warn().Msg("Timed out waiting for in-flight jobs, cleaning up anyway")
	}
	return p.Cleanup(context.WithoutCancel(ctx))
}

// Status returns a snapshot of the pool. It has no side effects.
func (p *Pool) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()

	return Status{
		Initialized:      p.state == stateReady,
		State:            p.state.String(),
		MaxPages:         p.cfg.MaxPages,
		AvailablePages:   len(p.idle),
		QueueLength:      p.queue.len(),
		ProcessingCount:  p.processing,
		CleanupScheduled: p.scheduler.Pending(),
		SessionsCreated:  p.created,
		Generation:       p.generation,
	}
}

// detachLocked moves the session and idle pages out of the pool so no lease
// can be granted from them, and marks the pool as tearing down. The caller
// must pass the returned values to finishTeardown after releasing mu.
func (p *Pool) detachLocked() (Session, []Page) {
	session, pages := p.session, p.idle
	p.idle = nil
	p.session = nil
	p.processing = 0
	p.generation++
	p.state = stateTearingDown
	p.teardownDone = make(chan struct{})
	p.scheduler.Cancel()
	p.publishLocked()
	return session, pages
}

func (p *Pool) finishTeardown(session Session, pages []Page, reason string) error {
	start := time.Now()
	err := closeAll(session, pages)

	p.mu.Lock()
	p.state = stateUninitialized
	close(p.teardownDone)
	p.teardownDone = nil
	p.publishLocked()
	p.mu.Unlock()

	event := log.Info()
	if err != nil {
		event = log.Warn().Err(err)
	}
	event.
		Str("reason", reason).
		Int("pages", len(pages)).
		Dur("elapsed", time.Since(start)).
		Msg("Browser session torn down")
	return err
}

// closeAll closes pages before the session that owns them.
func closeAll(session Session, pages []Page) error {
	var g errgroup.Group
	g.SetLimit(4)
	for _, page := range pages {
		if page != nil {
			g.Go(page.Close)
		}
	}
	err := g.Wait()

	if session != nil {
		if cerr := session.Close(); cerr != nil {
			err = errors.Join(err, cerr)
		}
	}
	return err
}

func (p *Pool) publishLocked() {
	metrics.UpdatePoolMetrics(p.cfg.MaxPages, len(p.idle), p.processing, p.queue.len(), p.state == stateReady)
}
