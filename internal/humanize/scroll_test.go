package humanize

import (
	"math"
	"testing"
)

func floatsClose(a, b, tolerance float64) bool {
	return math.Abs(a-b) <= tolerance
}

func TestDefaultScrollConfig(t *testing.T) {
	config := DefaultScrollConfig()

	if config.MinScrollSteps <= 0 {
		t.Error("MinScrollSteps should be positive")
	}
	if config.MaxScrollSteps < config.MinScrollSteps {
		t.Error("MaxScrollSteps should be >= MinScrollSteps")
	}
	if config.MaxStepDelayMs < config.MinStepDelayMs {
		t.Error("MaxStepDelayMs should be >= MinStepDelayMs")
	}
	if config.MaxPauseMs < config.MinPauseMs {
		t.Error("MaxPauseMs should be >= MinPauseMs")
	}
	if config.MaxScreens <= 0 {
		t.Error("MaxScreens should be positive")
	}
}

func TestEaseOutCubic(t *testing.T) {
	if !floatsClose(easeOutCubic(0), 0, 0.001) || !floatsClose(easeOutCubic(1), 1, 0.001) {
		t.Errorf("easeOutCubic endpoints wrong: f(0)=%v f(1)=%v", easeOutCubic(0), easeOutCubic(1))
	}
	if easeOutCubic(0.5) <= 0.5 {
		t.Errorf("easeOutCubic(0.5) = %v, expected > 0.5 for deceleration", easeOutCubic(0.5))
	}

	prev := 0.0
	for i := 0; i <= 100; i++ {
		v := easeOutCubic(float64(i) / 100.0)
		if v < prev {
			t.Fatalf("easeOutCubic is not monotonic at %d", i)
		}
		prev = v
	}
}

func TestScrollPlan(t *testing.T) {
	tests := []struct {
		name      string
		from, to  float64
		min, max  int
		wantSteps int
	}{
		{"no distance", 100, 100.5, 6, 14, 0},
		{"short", 0, 150, 6, 14, 7},
		{"capped", 0, 5000, 6, 14, 14},
		{"upward", 900, 0, 6, 14, 14},
		{"zero min", 0, 50, 0, 0, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan := scrollPlan(tt.from, tt.to, tt.min, tt.max)
			if len(plan) != tt.wantSteps {
				t.Fatalf("len(plan) = %d, want %d", len(plan), tt.wantSteps)
			}
			if len(plan) == 0 {
				return
			}
			if plan[len(plan)-1] != tt.to {
				t.Errorf("plan ends at %v, want %v", plan[len(plan)-1], tt.to)
			}

			prev := tt.from
			for i, y := range plan {
				if (tt.to > tt.from && y < prev) || (tt.to < tt.from && y > prev) {
					t.Fatalf("step %d moves backwards: %v after %v", i, y, prev)
				}
				prev = y
			}
		})
	}
}
