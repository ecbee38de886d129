package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Rorqualx/crawlpool/internal/types"
)

var (
	oneShotTimeout time.Duration
	prettyJSON     bool
)

var crawlCmd = &cobra.Command{
	Use:   "crawl <url>",
	Short: "Crawl one product page and print it as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		req := types.CrawlRequest{URL: args[0]}
		if err := req.Validate(); err != nil {
			return err
		}
		return runOneShot(func(ctx context.Context, a *app) (any, error) {
			target, err := a.targets.Validate(ctx, req.URL)
			if err != nil {
				return nil, err
			}
			return a.pool.Crawl(ctx, target)
		})
	},
}

var searchCmd = &cobra.Command{
	Use:   "search <keyword>",
	Short: "Run one keyword search and print the results as JSON",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		req := types.SearchRequest{Keyword: strings.Join(args, " ")}
		if err := req.Validate(); err != nil {
			return err
		}
		return runOneShot(func(ctx context.Context, a *app) (any, error) {
			return a.pool.Search(ctx, req.Keyword)
		})
	},
}

func init() {
	for _, cmd := range []*cobra.Command{crawlCmd, searchCmd} {
		cmd.Flags().DurationVarP(&oneShotTimeout, "timeout", "t", 2*time.Minute, "overall time limit, browser launch included")
		cmd.Flags().BoolVar(&prettyJSON, "pretty", false, "indent the JSON output")
	}
}

// runOneShot runs a single job, prints its result to stdout and tears the
// browser down before returning.
func runOneShot(job func(ctx context.Context, a *app) (any, error)) error {
	a, err := newApp(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, oneShotTimeout)
	defer cancel()

	result, jobErr := job(ctx, a)

	closeCtx, closeCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer closeCancel()
	a.close(closeCtx)

	if jobErr != nil {
		return jobErr
	}

	enc := json.NewEncoder(os.Stdout)
	if prettyJSON {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(result); err != nil {
		return fmt.Errorf("writing result: %w", err)
	}
	return nil
}
