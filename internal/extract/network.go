package extract

import (
	"context"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/rs/zerolog/log"
)

// documentCapture records the last main-frame document response, so the final
// hop of a redirect chain wins.
type documentCapture struct {
	mu     sync.RWMutex
	status int // 0 until a document response was seen
	url    string
}

func (c *documentCapture) set(status int, url string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.status = status
	c.url = url
}

// Status returns the captured HTTP status, or 0 if none was seen.
func (c *documentCapture) Status() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}

// URL returns the final document URL, or "" if none was seen.
func (c *documentCapture) URL() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.url
}

// captureDocument starts listening for the page's main-frame document
// responses. The subscription is active when it returns, so it must be
// called before Navigate. The returned stop func must be called when done;
// it is safe to call more than once.
func captureDocument(ctx context.Context, page *rod.Page) (*documentCapture, func()) {
	capture := &documentCapture{}

	listenerCtx, cancel := context.WithCancel(ctx)
	mainFrame := page.FrameID

	wait := page.Context(listenerCtx).EachEvent(func(e *proto.NetworkResponseReceived) {
		if e.Type != proto.NetworkResourceTypeDocument || e.Response == nil {
			return
		}
		// Iframes also load documents; only the top frame decides the outcome.
		if mainFrame != "" && e.FrameID != "" && e.FrameID != mainFrame {
			return
		}
		log.Debug().
			Int("status_code", e.Response.Status).
			Str("url", e.Response.URL).
			Msg("Captured document response")
		capture.set(e.Response.Status, e.Response.URL)
	})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer func() {
			if r := recover(); r != nil {
				log.Error().Interface("panic", r).Msg("Recovered from panic in document capture listener")
			}
		}()
		wait()
	}()

	var once sync.Once
	return capture, func() {
		once.Do(func() {
			cancel()
			wg.Wait()
		})
	}
}
