// Package config provides application configuration management.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Rorqualx/crawlpool/internal/security"
)

// Configuration upper bounds to prevent resource exhaustion.
const (
	maxMaxPages          = 20
	maxTimeout           = 10 * time.Minute
	maxIdleTeardown      = 1 * time.Hour
	maxRateLimitRPM      = 10000 // Maximum requests per minute per IP
	minAPIKeyLength      = 16
	defaultMaxPages      = 5
	defaultPort          = 8192
	defaultMetricsPort   = 9192
	defaultLaunchTimeout = 60 * time.Second
)

// Config holds all application configuration.
// Configuration is loaded from environment variables at startup.
type Config struct {
	// Server settings
	Host string
	Port int

	// Browser settings
	Headless         bool
	BrowserPath      string
	IgnoreCertErrors bool
	Locales          []string // Candidate locales for session fingerprints

	// Pool settings
	MaxPages             int
	SessionLaunchTimeout time.Duration
	IdleTeardownDelay    time.Duration // 0 tears the session down as soon as the pool goes idle
	JobTimeout           time.Duration // Upper bound on a single job, independent of the caller

	// Extraction timeouts
	NavigationTimeout time.Duration
	SearchWaitTimeout time.Duration
	ReviewTimeout     time.Duration

	ShutdownTimeout time.Duration

	// Proxy defaults
	ProxyURL      string
	ProxyUsername string
	ProxyPassword string

	// Logging
	LogLevel string
	LogFile  string // Optional rotating log file, in addition to stdout

	// Security
	RateLimitEnabled    bool
	RateLimitRPM        int      // Requests per minute per IP
	TrustProxy          bool     // Trust X-Forwarded-For headers (only enable behind a reverse proxy)
	CORSAllowedOrigins  []string // Allowed CORS origins (empty = reject cross-origin requests)
	APIKeyEnabled       bool
	APIKey              string
	AllowPrivateTargets bool // Allow crawl targets on loopback and private networks

	// Metrics
	MetricsEnabled bool
	MetricsPort    int

	// Selectors settings
	SelectorsPath      string // Path to external selectors.yaml override file
	SelectorsHotReload bool   // Enable file watching for hot-reload of selectors
}

// Load loads configuration from environment variables.
// Returns a Config with values from environment or sensible defaults.
func Load() *Config {
	return &Config{
		// Server - default to localhost; set HOST=0.0.0.0 explicitly to bind to all interfaces
		Host: getEnvString("HOST", "127.0.0.1"),
		Port: getEnvInt("PORT", defaultPort),

		Headless:         getEnvBool("HEADLESS", true),
		BrowserPath:      getEnvString("BROWSER_PATH", ""),
		IgnoreCertErrors: getEnvBool("IGNORE_CERT_ERRORS", false),
		Locales:          getEnvStringSlice("LOCALES", []string{"ko-KR", "en-US"}),

		MaxPages:             getEnvInt("MAX_PAGES", defaultMaxPages),
		SessionLaunchTimeout: getEnvDuration("SESSION_LAUNCH_TIMEOUT", defaultLaunchTimeout),
		IdleTeardownDelay:    getEnvNonNegativeDuration("IDLE_TEARDOWN_DELAY", 0),
		JobTimeout:           getEnvDuration("JOB_TIMEOUT", 2*time.Minute),

		NavigationTimeout: getEnvDuration("NAVIGATION_TIMEOUT", 30*time.Second),
		SearchWaitTimeout: getEnvDuration("SEARCH_WAIT_TIMEOUT", 10*time.Second),
		ReviewTimeout:     getEnvDuration("REVIEW_TIMEOUT", 10*time.Second),

		ShutdownTimeout: getEnvDuration("SHUTDOWN_TIMEOUT", 30*time.Second),

		ProxyURL:      getEnvString("PROXY_URL", ""),
		ProxyUsername: getEnvString("PROXY_USERNAME", ""),
		ProxyPassword: getEnvString("PROXY_PASSWORD", ""),

		LogLevel: getEnvString("LOG_LEVEL", "info"),
		LogFile:  getEnvString("LOG_FILE", ""),

		RateLimitEnabled: getEnvBool("RATE_LIMIT_ENABLED", true),
		RateLimitRPM:     getEnvInt("RATE_LIMIT_RPM", 60),
		TrustProxy:       getEnvBool("TRUST_PROXY", false),

		CORSAllowedOrigins:  getEnvStringSlice("CORS_ALLOWED_ORIGINS", nil),
		APIKeyEnabled:       getEnvBool("API_KEY_ENABLED", false),
		APIKey:              getEnvString("API_KEY", ""),
		AllowPrivateTargets: getEnvBool("ALLOW_PRIVATE_TARGETS", false),

		MetricsEnabled: getEnvBool("METRICS_ENABLED", false),
		MetricsPort:    getEnvInt("METRICS_PORT", defaultMetricsPort),

		SelectorsPath:      getEnvString("SELECTORS_PATH", ""),
		SelectorsHotReload: getEnvBool("SELECTORS_HOT_RELOAD", false),
	}
}

// HasProxy returns true if a default proxy is configured.
func (c *Config) HasProxy() bool {
	return c.ProxyURL != ""
}

// Validate checks configuration values and logs warnings for invalid values.
// Invalid values are corrected to sensible defaults.
func (c *Config) Validate() {
	// Port validation - allow 0 for system-assigned ports
	if c.Port < 0 || c.Port > 65535 {
		log.Warn().Int("port", c.Port).Int("default", defaultPort).Msg("Invalid port, using default")
		c.Port = defaultPort
	}

	// BrowserPath validation - prevent path traversal
	if c.BrowserPath != "" {
		if strings.Contains(c.BrowserPath, "..") {
			log.Error().
				Str("path", c.BrowserPath).
				Msg("BrowserPath contains path traversal sequence (..), ignoring")
			c.BrowserPath = ""
		} else if !isAbsPath(c.BrowserPath) {
			log.Warn().
				Str("path", c.BrowserPath).
				Msg("BrowserPath should be an absolute path")
		}
	}

	if c.MaxPages < 1 {
		log.Warn().Int("pages", c.MaxPages).Int("default", defaultMaxPages).Msg("Invalid page pool size, using default")
		c.MaxPages = defaultMaxPages
	} else if c.MaxPages > maxMaxPages {
		log.Warn().
			Int("pages", c.MaxPages).
			Int("max", maxMaxPages).
			Msg("Page pool size too large, capping to maximum")
		c.MaxPages = maxMaxPages
	}

	c.SessionLaunchTimeout = clampDuration("SESSION_LAUNCH_TIMEOUT", c.SessionLaunchTimeout, 5*time.Second, 5*time.Minute)
	c.NavigationTimeout = clampDuration("NAVIGATION_TIMEOUT", c.NavigationTimeout, time.Second, maxTimeout)
	c.SearchWaitTimeout = clampDuration("SEARCH_WAIT_TIMEOUT", c.SearchWaitTimeout, time.Second, maxTimeout)
	c.ReviewTimeout = clampDuration("REVIEW_TIMEOUT", c.ReviewTimeout, time.Second, maxTimeout)
	c.JobTimeout = clampDuration("JOB_TIMEOUT", c.JobTimeout, time.Second, maxTimeout)
	c.ShutdownTimeout = clampDuration("SHUTDOWN_TIMEOUT", c.ShutdownTimeout, time.Second, maxTimeout)

	if c.IdleTeardownDelay < 0 {
		log.Warn().Dur("delay", c.IdleTeardownDelay).Msg("Negative idle teardown delay, tearing down immediately")
		c.IdleTeardownDelay = 0
	} else if c.IdleTeardownDelay > maxIdleTeardown {
		log.Warn().
			Dur("delay", c.IdleTeardownDelay).
			Dur("max", maxIdleTeardown).
			Msg("Idle teardown delay too long, capping to maximum")
		c.IdleTeardownDelay = maxIdleTeardown
	}

	// A job has to fit at least one navigation plus the review fetch.
	if minJob := c.NavigationTimeout + c.ReviewTimeout; c.JobTimeout < minJob {
		log.Warn().
			Dur("job_timeout", c.JobTimeout).
			Dur("min", minJob).
			Msg("JOB_TIMEOUT shorter than navigation plus review timeouts, raising")
		c.JobTimeout = minJob
	}

	if len(c.Locales) == 0 {
		log.Warn().Msg("No locales configured, using en-US")
		c.Locales = []string{"en-US"}
	}

	// Rate limit validation with upper bound
	if c.RateLimitEnabled {
		if c.RateLimitRPM < 1 {
			log.Warn().Int("rpm", c.RateLimitRPM).Msg("Invalid rate limit, using 60 RPM")
			c.RateLimitRPM = 60
		} else if c.RateLimitRPM > maxRateLimitRPM {
			log.Warn().
				Int("rpm", c.RateLimitRPM).
				Int("max", maxRateLimitRPM).
				Msg("Rate limit too high, capping to maximum")
			c.RateLimitRPM = maxRateLimitRPM
		}
	}

	validLogLevels := map[string]bool{
		"trace": true, "debug": true, "info": true,
		"warn": true, "error": true, "fatal": true,
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		log.Warn().Str("level", c.LogLevel).Msg("Invalid log level, using 'info'")
		c.LogLevel = "info"
	}

	if c.LogFile != "" && strings.Contains(c.LogFile, "..") {
		log.Error().Str("path", c.LogFile).Msg("LogFile contains path traversal sequence (..), ignoring")
		c.LogFile = ""
	}

	if c.IgnoreCertErrors {
		if c.ProxyURL == "" {
			log.Warn().Msg("WARNING: IGNORE_CERT_ERRORS enabled without a proxy - this exposes you to MITM attacks")
		} else {
			log.Info().Msg("IGNORE_CERT_ERRORS enabled for proxy compatibility")
		}
	}

	c.validateProxy()
	c.validateAPIKey()

	if c.AllowPrivateTargets {
		log.Warn().Msg("ALLOW_PRIVATE_TARGETS enabled - the browser may be pointed at internal services")
	}

	if c.MetricsEnabled && c.MetricsPort == c.Port {
		log.Error().Int("port", c.MetricsPort).Msg("METRICS_PORT conflicts with PORT, disabling metrics")
		c.MetricsEnabled = false
	}

	if c.SelectorsPath != "" {
		if strings.Contains(c.SelectorsPath, "..") {
			log.Error().
				Str("path", c.SelectorsPath).
				Msg("SelectorsPath contains path traversal sequence (..), ignoring")
			c.SelectorsPath = ""
		} else if c.SelectorsHotReload {
			if _, err := os.Stat(c.SelectorsPath); os.IsNotExist(err) {
				log.Warn().
					Str("path", c.SelectorsPath).
					Msg("SelectorsPath does not exist - hot-reload will watch for file creation")
			}
		}
	}
	if c.SelectorsHotReload && c.SelectorsPath == "" {
		log.Warn().Msg("SELECTORS_HOT_RELOAD enabled but SELECTORS_PATH not set - hot-reload disabled")
		c.SelectorsHotReload = false
	}
}

func (c *Config) validateProxy() {
	if c.ProxyURL != "" {
		if err := security.ValidateProxyURL(c.ProxyURL); err != nil {
			log.Error().
				Err(err).
				Str("proxy", security.RedactProxyURL(c.ProxyURL)).
				Msg("Invalid PROXY_URL, proxy disabled")
			c.ProxyURL = ""
		} else if strings.Contains(c.ProxyURL, "@") {
			log.Warn().Msg("ProxyURL contains embedded credentials (@) - use PROXY_USERNAME and PROXY_PASSWORD instead")
		}
	}

	if c.ProxyUsername != "" && c.ProxyPassword == "" {
		log.Warn().Msg("PROXY_USERNAME set but PROXY_PASSWORD is empty - authentication may fail")
	}
	if (c.ProxyUsername != "" || c.ProxyPassword != "") && c.ProxyURL == "" {
		log.Warn().Msg("Proxy credentials set but PROXY_URL is empty - credentials will not be used")
	}
}

func (c *Config) validateAPIKey() {
	if !c.APIKeyEnabled {
		return
	}
	switch {
	case c.APIKey == "":
		log.Error().Msg("API_KEY_ENABLED is true but API_KEY is empty - authentication will always fail")
	case len(c.APIKey) < minAPIKeyLength:
		log.Error().
			Int("length", len(c.APIKey)).
			Int("min_required", minAPIKeyLength).
			Msg("API_KEY is too short for secure authentication - consider using a longer key")
	}
}

func clampDuration(key string, d, lo, hi time.Duration) time.Duration {
	if d < lo {
		log.Warn().Str("key", key).Dur("value", d).Dur("min", lo).Msg("Duration too short, using minimum")
		return lo
	}
	if d > hi {
		log.Warn().Str("key", key).Dur("value", d).Dur("max", hi).Msg("Duration too long, using maximum")
		return hi
	}
	return d
}

func isAbsPath(p string) bool {
	return strings.HasPrefix(p, "/") || strings.HasPrefix(p, "C:") || strings.HasPrefix(p, "c:")
}

// Helper functions for environment variable parsing

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		intValue, err := strconv.ParseInt(value, 10, 32)
		if err == nil {
			return int(intValue)
		}
		log.Warn().
			Str("key", key).
			Str("value", value).
			Err(err).
			Int("default", defaultValue).
			Msg("Invalid integer in environment variable, using default")
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		boolValue, err := strconv.ParseBool(value)
		if err == nil {
			return boolValue
		}
		log.Warn().
			Str("key", key).
			Str("value", value).
			Err(err).
			Bool("default", defaultValue).
			Msg("Invalid boolean in environment variable, using default")
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		duration, err := time.ParseDuration(value)
		if err == nil {
			if duration > 0 {
				return duration
			}
			log.Warn().
				Str("key", key).
				Str("value", value).
				Dur("default", defaultValue).
				Msg("Duration must be positive, using default")
			return defaultValue
		}
		log.Warn().
			Str("key", key).
			Str("value", value).
			Err(err).
			Dur("default", defaultValue).
			Msg("Invalid duration in environment variable, using default")
	}
	return defaultValue
}

// getEnvNonNegativeDuration is getEnvDuration for settings where 0 is meaningful.
func getEnvNonNegativeDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		duration, err := time.ParseDuration(value)
		if err == nil && duration >= 0 {
			return duration
		}
		log.Warn().
			Str("key", key).
			Str("value", value).
			Dur("default", defaultValue).
			Msg("Invalid or negative duration in environment variable, using default")
	}
	return defaultValue
}

func getEnvStringSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		result := make([]string, 0, len(parts))
		for _, part := range parts {
			trimmed := strings.TrimSpace(part)
			if trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return defaultValue
}
