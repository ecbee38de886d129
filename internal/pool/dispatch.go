package pool

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Rorqualx/crawlpool/internal/metrics"
	"github.com/Rorqualx/crawlpool/internal/types"
)

// dispatchLocked pairs idle pages with queued requests, oldest request first,
// until either side runs out. Every push to the queue and every page return
// calls it.
func (p *Pool) dispatchLocked() {
	for p.state == stateReady && len(p.idle) > 0 && p.queue.len() > 0 {
		req := p.queue.pop()

		last := len(p.idle) - 1
		page := p.idle[last]
		p.idle[last] = nil
		p.idle = p.idle[:last]
		p.processing++

		wait := time.Since(req.EnqueuedAt)
		metrics.RecordQueueWait(wait)
		if p.onDispatch != nil {
			p.onDispatch(req)
		}

		log.Debug().
			Str("request_id", req.ID).
			Str("kind", string(req.Kind)).
			Dur("queue_wait", wait).
			Int("available", len(p.idle)).
			Int("queued", p.queue.len()).
			Msg("Request dispatched")

		p.jobs.Add(1)
		go p.runJob(req, page, p.generation)
	}
}

// runJob executes one request on one leased page. The deferred block is the
// only place the lease ends, so it runs exactly once whatever the outcome.
func (p *Pool) runJob(req *Request, page Page, gen uint64) {
	defer p.jobs.Done()

	start := time.Now()
	var res result

	defer func() {
		if r := recover(); r != nil {
			res = result{err: fmt.Errorf("%w: %v", types.ErrJobPanicked, r)}
			log.Error().
				Str("request_id", req.ID).
				Interface("panic", r).
				Msg("Job panicked")
		}

		teardown, stale := p.release(page, gen)
		req.done <- res

		if stale {
			if err := page.Close(); err != nil {
				log.Debug().Err(err).Str("request_id", req.ID).Msg("Failed to close page from torn-down session")
			}
		}

		p.recordOutcome(req, res, time.Since(start))

		if teardown != nil {
			teardown()
		}
	}()

	res = p.execute(req, page)
}

func (p *Pool) execute(req *Request, page Page) result {
	ctx := context.Background()
	if p.cfg.JobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.JobTimeout)
		defer cancel()
	}

	switch req.Kind {
	case KindDetail:
		detail, err := p.extractor.Detail(ctx, page, req.Target)
		if err != nil {
			return result{err: err}
		}
		if err := detail.Validate(); err != nil {
			return result{err: types.NewExtractionError(req.Target, err)}
		}
		detail.SchemaVersion = types.ProductSchemaVersion
		return result{detail: detail}

	case KindSearch:
		summaries, err := p.extractor.Search(ctx, page, req.Target)
		if err != nil {
			return result{err: err}
		}
		return result{summaries: summaries}

	default:
		return result{err: fmt.Errorf("%w: unknown request kind %q", types.ErrInvalidRequest, req.Kind)}
	}
}

// release ends a lease. Pages from a torn-down session are reported stale and
// must be closed by the caller instead of being pooled. The returned teardown,
// if non-nil, must be run after mu is released.
func (p *Pool) release(page Page, gen uint64) (teardown func(), stale bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	stale = gen != p.generation
	if !stale {
		p.processing--
		p.idle = append(p.idle, page)
	}

	p.dispatchLocked()
	teardown = p.idleCheckLocked()
	p.publishLocked()
	return teardown, stale
}

func (p *Pool) recordOutcome(req *Request, res result, elapsed time.Duration) {
	outcome := "success"
	var ce *types.CrawlError
	switch {
	case res.err == nil:
	case errors.Is(res.err, types.ErrSchemaInvalid):
		outcome = "schema_invalid"
	case errors.As(res.err, &ce):
		outcome = ce.Kind
	case errors.Is(res.err, types.ErrJobPanicked):
		outcome = "panic"
	default:
		outcome = "error"
	}
	metrics.RecordJob(string(req.Kind), outcome, elapsed)

	event := log.Info()
	if res.err != nil {
		event = log.Warn().Err(res.err)
	}
	event.
		Str("request_id", req.ID).
		Str("kind", string(req.Kind)).
		Str("outcome", outcome).
		Dur("elapsed", elapsed).
		Msg("Job finished")
}
