package humanize

import (
	"context"
	"math"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/rs/zerolog/log"
)

// ScrollConfig controls how a page is scrolled to trigger lazy loading.
type ScrollConfig struct {
	// MinScrollSteps and MaxScrollSteps bound the increments per screen.
	MinScrollSteps int
	MaxScrollSteps int
	// Delay between increments.
	MinStepDelayMs int
	MaxStepDelayMs int
	// Pause after each screen, giving lazy content time to arrive.
	MinPauseMs int
	MaxPauseMs int
	// MaxScreens caps how far down the page is scrolled.
	MaxScreens int
}

// DefaultScrollConfig returns defaults for reading a result listing.
func DefaultScrollConfig() ScrollConfig {
	return ScrollConfig{
		MinScrollSteps: 6,
		MaxScrollSteps: 14,
		MinStepDelayMs: 20,
		MaxStepDelayMs: 60,
		MinPauseMs:     250,
		MaxPauseMs:     600,
		MaxScreens:     6,
	}
}

// Scroller scrolls a page the way a reader skims it.
type Scroller struct {
	page   *rod.Page
	config ScrollConfig
}

// NewScroller creates a scroller with the default config.
func NewScroller(page *rod.Page) *Scroller {
	return NewScrollerWithConfig(page, DefaultScrollConfig())
}

// NewScrollerWithConfig creates a scroller with a custom config.
func NewScrollerWithConfig(page *rod.Page, config ScrollConfig) *Scroller {
	return &Scroller{page: page, config: config}
}

// ScrollThrough scrolls down one screen at a time until the bottom is
// reached, the page stops growing, or MaxScreens screens were scrolled.
// It returns the number of screens scrolled.
func (s *Scroller) ScrollThrough(ctx context.Context) (int, error) {
	screens := 0
	for screens < s.config.MaxScreens {
		m, err := s.metrics()
		if err != nil {
			return screens, err
		}

		from := m.top
		to := math.Min(from+m.viewport*0.9, m.height-m.viewport)
		if to-from < 1 {
			break
		}

		if err := s.smoothScrollTo(ctx, from, to); err != nil {
			return screens, err
		}
		screens++

		if !RandomWait(ctx, s.config.MinPauseMs, s.config.MaxPauseMs) {
			return screens, ctx.Err()
		}
	}

	log.Debug().Int("screens", screens).Msg("Scrolled through page")
	return screens, nil
}

type layout struct {
	top, viewport, height float64
}

func (s *Scroller) metrics() (layout, error) {
	res, err := proto.PageGetLayoutMetrics{}.Call(s.page)
	if err != nil {
		return layout{}, err
	}
	if res.CSSVisualViewport == nil || res.CSSContentSize == nil {
		return layout{}, ErrNoLayout
	}
	return layout{
		top:      res.CSSVisualViewport.PageY,
		viewport: res.CSSVisualViewport.ClientHeight,
		height:   res.CSSContentSize.Height,
	}, nil
}

func (s *Scroller) smoothScrollTo(ctx context.Context, fromY, toY float64) error {
	for _, y := range scrollPlan(fromY, toY, s.config.MinScrollSteps, s.config.MaxScrollSteps) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := s.page.Eval(`(y) => window.scrollTo({top: y, behavior: 'instant'})`, y); err != nil {
			log.Debug().Err(err).Msg("Scroll step failed")
		}
		if !RandomWait(ctx, s.config.MinStepDelayMs, s.config.MaxStepDelayMs) {
			return ctx.Err()
		}
	}
	return nil
}

// scrollPlan returns the intermediate positions from fromY to toY, eased so
// the motion decelerates. The step count grows with distance. The last
// position is always toY.
func scrollPlan(fromY, toY float64, minSteps, maxSteps int) []float64 {
	distance := math.Abs(toY - fromY)
	if distance < 1 {
		return nil
	}
	if minSteps < 1 {
		minSteps = 1
	}

	steps := minSteps + int(distance/100)
	if maxSteps >= minSteps && steps > maxSteps {
		steps = maxSteps
	}

	plan := make([]float64, steps)
	for i := 1; i <= steps; i++ {
		t := float64(i) / float64(steps)
		plan[i-1] = fromY + (toY-fromY)*easeOutCubic(t)
	}
	plan[steps-1] = toY
	return plan
}

// easeOutCubic provides deceleration easing for natural scroll ending.
func easeOutCubic(t float64) float64 {
	return 1 - math.Pow(1-t, 3)
}
