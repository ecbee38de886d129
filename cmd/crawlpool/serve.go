package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/Rorqualx/crawlpool/internal/handlers"
	"github.com/Rorqualx/crawlpool/internal/metrics"
	"github.com/Rorqualx/crawlpool/internal/middleware"
	"github.com/Rorqualx/crawlpool/internal/types"
	"github.com/Rorqualx/crawlpool/pkg/version"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Flags().Changed("port") {
			cfg.Port = servePort
		}
		return runServer()
	},
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "listen port, overrides PORT")
}

func runServer() error {
	printBanner()

	a, err := newApp(cfg)
	if err != nil {
		return err
	}

	var limiter *middleware.RateLimiter
	if cfg.RateLimitEnabled {
		log.Info().
			Int("requests_per_minute", cfg.RateLimitRPM).
			Bool("trust_proxy", cfg.TrustProxy).
			Msg("Rate limiting enabled")
		limiter = middleware.NewRateLimiter(cfg.RateLimitRPM, cfg.TrustProxy)
	}

	router := handlers.NewRouter(handlers.New(a.pool, a.targets), cfg, limiter)

	// Crawls hold the connection while queued and running, so the write
	// timeout must outlast the largest maxTimeout a caller may ask for.
	writeTimeout := time.Duration(types.MaxTimeoutMs)*time.Millisecond + 10*time.Second

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           h2c.NewHandler(router, &http2.Server{}),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       120 * time.Second,
	}

	stopCh := make(chan struct{})

	var metricsServer *http.Server
	if cfg.MetricsEnabled {
		metrics.SetBuildInfo(version.Full(), version.GoVersion())
		go metrics.StartRuntimeCollector(10*time.Second, stopCh)

		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", metrics.Handler())
		metricsServer = &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.MetricsPort),
			Handler:           metricsMux,
			ReadHeaderTimeout: 10 * time.Second,
			WriteTimeout:      10 * time.Second,
		}

		go func() {
			log.Info().Int("port", cfg.MetricsPort).Msg("Prometheus metrics server started")
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Msg("Metrics server failed")
			}
		}()
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info().
			Str("address", addr).
			Bool("metrics_enabled", cfg.MetricsEnabled).
			Bool("rate_limit_enabled", cfg.RateLimitEnabled).
			Bool("api_key_enabled", cfg.APIKeyEnabled).
			Msg("crawlpool is ready to accept requests")

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	var runErr error
	select {
	case sig := <-quit:
		log.Info().Str("signal", sig.String()).Msg("Shutting down...")
	case err := <-serverErr:
		log.Error().Err(err).Msg("Server failed")
		runErr = err
	}

	close(stopCh)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	// Stop taking requests first; in-flight crawls finish inside Shutdown
	// or are abandoned when ctx runs out, and the pool is closed after.
	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server shutdown error")
	}
	if metricsServer != nil {
		if err := metricsServer.Shutdown(ctx); err != nil {
			log.Error().Err(err).Msg("Metrics server shutdown error")
		}
	}

	a.close(ctx)
	if limiter != nil {
		limiter.Close()
	}

	log.Info().Msg("Shutdown complete")
	return runErr
}

// printBanner prints the startup banner.
func printBanner() {
	banner := `
                         _                  _
  ___ _ __ __ ___      _| |_ __   ___   ___ | |
 / __| '__/ _' \ \ /\ / / | '_ \ / _ \ / _ \| |
| (__| | | (_| |\ V  V /| | |_) | (_) | (_) | |
 \___|_|  \__,_| \_/\_/ |_| .__/ \___/ \___/|_|
                          |_|
`
	fmt.Fprintln(os.Stderr, banner)
	log.Info().
		Str("version", version.Full()).
		Str("go_version", version.GoVersion()).
		Msg("Starting crawlpool")
}
