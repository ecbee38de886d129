package config

import (
	"testing"
	"time"
)

var allEnvVars = []string{
	"HOST", "PORT", "HEADLESS", "BROWSER_PATH", "IGNORE_CERT_ERRORS", "LOCALES",
	"MAX_PAGES", "SESSION_LAUNCH_TIMEOUT", "IDLE_TEARDOWN_DELAY", "JOB_TIMEOUT",
	"NAVIGATION_TIMEOUT", "SEARCH_WAIT_TIMEOUT", "REVIEW_TIMEOUT", "SHUTDOWN_TIMEOUT",
	"PROXY_URL", "PROXY_USERNAME", "PROXY_PASSWORD",
	"LOG_LEVEL", "LOG_FILE",
	"RATE_LIMIT_ENABLED", "RATE_LIMIT_RPM", "TRUST_PROXY",
	"METRICS_ENABLED", "METRICS_PORT",
	"SELECTORS_PATH", "SELECTORS_HOT_RELOAD",
	"CORS_ALLOWED_ORIGINS", "API_KEY_ENABLED", "API_KEY", "ALLOW_PRIVATE_TARGETS",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, env := range allEnvVars {
		t.Setenv(env, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg := Load()

	if cfg.Host != "127.0.0.1" {
		t.Errorf("Expected default host '127.0.0.1', got %q", cfg.Host)
	}
	if cfg.Port != 8192 {
		t.Errorf("Expected default port 8192, got %d", cfg.Port)
	}
	if !cfg.Headless {
		t.Error("Expected Headless to be true by default")
	}
	if cfg.MaxPages != 5 {
		t.Errorf("Expected default MaxPages 5, got %d", cfg.MaxPages)
	}
	if cfg.IdleTeardownDelay != 0 {
		t.Errorf("Expected immediate idle teardown by default, got %v", cfg.IdleTeardownDelay)
	}
	if cfg.NavigationTimeout != 30*time.Second {
		t.Errorf("Expected navigation timeout 30s, got %v", cfg.NavigationTimeout)
	}
	if cfg.SearchWaitTimeout != 10*time.Second {
		t.Errorf("Expected search wait timeout 10s, got %v", cfg.SearchWaitTimeout)
	}
	if cfg.ReviewTimeout != 10*time.Second {
		t.Errorf("Expected review timeout 10s, got %v", cfg.ReviewTimeout)
	}
	if len(cfg.Locales) != 2 || cfg.Locales[0] != "ko-KR" {
		t.Errorf("Unexpected default locales %v", cfg.Locales)
	}
	if cfg.MetricsEnabled {
		t.Error("Expected metrics to be disabled by default")
	}
	if cfg.LogLevel != "info" {
		t.Errorf("Expected default log level 'info', got %q", cfg.LogLevel)
	}
}

func TestLoadFromEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "9999")
	t.Setenv("HEADLESS", "false")
	t.Setenv("MAX_PAGES", "3")
	t.Setenv("IDLE_TEARDOWN_DELAY", "45s")
	t.Setenv("NAVIGATION_TIMEOUT", "20s")
	t.Setenv("LOCALES", "ja-JP, en-GB ,")
	t.Setenv("PROXY_URL", "http://proxy:8080")
	t.Setenv("LOG_FILE", "/var/log/crawlpool.log")
	t.Setenv("METRICS_ENABLED", "true")

	cfg := Load()

	if cfg.Port != 9999 {
		t.Errorf("Port = %d", cfg.Port)
	}
	if cfg.Headless {
		t.Error("Expected Headless false")
	}
	if cfg.MaxPages != 3 {
		t.Errorf("MaxPages = %d", cfg.MaxPages)
	}
	if cfg.IdleTeardownDelay != 45*time.Second {
		t.Errorf("IdleTeardownDelay = %v", cfg.IdleTeardownDelay)
	}
	if cfg.NavigationTimeout != 20*time.Second {
		t.Errorf("NavigationTimeout = %v", cfg.NavigationTimeout)
	}
	if len(cfg.Locales) != 2 || cfg.Locales[0] != "ja-JP" || cfg.Locales[1] != "en-GB" {
		t.Errorf("Locales = %v", cfg.Locales)
	}
	if !cfg.HasProxy() {
		t.Error("Expected HasProxy")
	}
	if cfg.LogFile != "/var/log/crawlpool.log" {
		t.Errorf("LogFile = %q", cfg.LogFile)
	}
	if !cfg.MetricsEnabled {
		t.Error("Expected metrics enabled")
	}
}

func TestLoadInvalidValuesFallBack(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "not-a-number")
	t.Setenv("HEADLESS", "maybe")
	t.Setenv("NAVIGATION_TIMEOUT", "-5s")
	t.Setenv("IDLE_TEARDOWN_DELAY", "-1s")

	cfg := Load()

	if cfg.Port != 8192 {
		t.Errorf("Port = %d, want default", cfg.Port)
	}
	if !cfg.Headless {
		t.Error("Expected default Headless on parse failure")
	}
	if cfg.NavigationTimeout != 30*time.Second {
		t.Errorf("NavigationTimeout = %v, want default", cfg.NavigationTimeout)
	}
	if cfg.IdleTeardownDelay != 0 {
		t.Errorf("IdleTeardownDelay = %v, want default", cfg.IdleTeardownDelay)
	}
}

func TestIdleTeardownDelayAcceptsZero(t *testing.T) {
	clearEnv(t)
	t.Setenv("IDLE_TEARDOWN_DELAY", "0s")

	if got := Load().IdleTeardownDelay; got != 0 {
		t.Errorf("IdleTeardownDelay = %v, want 0", got)
	}
}

func TestValidateClamps(t *testing.T) {
	clearEnv(t)

	tests := []struct {
		name   string
		mutate func(*Config)
		check  func(*testing.T, *Config)
	}{
		{
			name:   "pages too small",
			mutate: func(c *Config) { c.MaxPages = 0 },
			check: func(t *testing.T, c *Config) {
				if c.MaxPages != 5 {
					t.Errorf("MaxPages = %d, want 5", c.MaxPages)
				}
			},
		},
		{
			name:   "pages too large",
			mutate: func(c *Config) { c.MaxPages = 500 },
			check: func(t *testing.T, c *Config) {
				if c.MaxPages != maxMaxPages {
					t.Errorf("MaxPages = %d, want %d", c.MaxPages, maxMaxPages)
				}
			},
		},
		{
			name:   "idle delay too long",
			mutate: func(c *Config) { c.IdleTeardownDelay = 48 * time.Hour },
			check: func(t *testing.T, c *Config) {
				if c.IdleTeardownDelay != maxIdleTeardown {
					t.Errorf("IdleTeardownDelay = %v", c.IdleTeardownDelay)
				}
			},
		},
		{
			name:   "job timeout below navigation plus review",
			mutate: func(c *Config) { c.JobTimeout = 5 * time.Second },
			check: func(t *testing.T, c *Config) {
				if want := c.NavigationTimeout + c.ReviewTimeout; c.JobTimeout != want {
					t.Errorf("JobTimeout = %v, want %v", c.JobTimeout, want)
				}
			},
		},
		{
			name:   "bad log level",
			mutate: func(c *Config) { c.LogLevel = "verbose" },
			check: func(t *testing.T, c *Config) {
				if c.LogLevel != "info" {
					t.Errorf("LogLevel = %q", c.LogLevel)
				}
			},
		},
		{
			name:   "browser path traversal",
			mutate: func(c *Config) { c.BrowserPath = "/opt/../../bin/sh" },
			check: func(t *testing.T, c *Config) {
				if c.BrowserPath != "" {
					t.Errorf("BrowserPath = %q, want cleared", c.BrowserPath)
				}
			},
		},
		{
			name:   "metrics port conflict",
			mutate: func(c *Config) { c.MetricsEnabled = true; c.MetricsPort = c.Port },
			check: func(t *testing.T, c *Config) {
				if c.MetricsEnabled {
					t.Error("Expected metrics disabled on port conflict")
				}
			},
		},
		{
			name:   "hot reload without path",
			mutate: func(c *Config) { c.SelectorsHotReload = true },
			check: func(t *testing.T, c *Config) {
				if c.SelectorsHotReload {
					t.Error("Expected hot reload disabled without a path")
				}
			},
		},
		{
			name:   "proxy with unsupported scheme",
			mutate: func(c *Config) { c.ProxyURL = "ftp://proxy.example.com:21" },
			check: func(t *testing.T, c *Config) {
				if c.ProxyURL != "" {
					t.Errorf("ProxyURL = %q, want cleared", c.ProxyURL)
				}
			},
		},
		{
			name:   "socks proxy kept",
			mutate: func(c *Config) { c.ProxyURL = "socks5://127.0.0.1:1080" },
			check: func(t *testing.T, c *Config) {
				if c.ProxyURL != "socks5://127.0.0.1:1080" {
					t.Errorf("ProxyURL = %q", c.ProxyURL)
				}
			},
		},
		{
			name:   "empty locales",
			mutate: func(c *Config) { c.Locales = nil },
			check: func(t *testing.T, c *Config) {
				if len(c.Locales) != 1 || c.Locales[0] != "en-US" {
					t.Errorf("Locales = %v", c.Locales)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Load()
			tt.mutate(cfg)
			cfg.Validate()
			tt.check(t, cfg)
		})
	}
}

func TestLoadSecurityFromEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example.com, https://b.example.com")
	t.Setenv("API_KEY_ENABLED", "true")
	t.Setenv("API_KEY", "0123456789abcdef0123")
	t.Setenv("ALLOW_PRIVATE_TARGETS", "true")

	cfg := Load()
	if len(cfg.CORSAllowedOrigins) != 2 || cfg.CORSAllowedOrigins[1] != "https://b.example.com" {
		t.Errorf("CORSAllowedOrigins = %v", cfg.CORSAllowedOrigins)
	}
	if !cfg.APIKeyEnabled || cfg.APIKey != "0123456789abcdef0123" {
		t.Errorf("API key settings = %v/%q", cfg.APIKeyEnabled, cfg.APIKey)
	}
	if !cfg.AllowPrivateTargets {
		t.Error("Expected AllowPrivateTargets")
	}
}
