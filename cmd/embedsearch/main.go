// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/poiesic/embedsearch"
	"github.com/poiesic/embedsearch/backfill"
	"github.com/poiesic/embedsearch/config"
	"github.com/poiesic/embedsearch/core"
	"github.com/poiesic/embedsearch/search"
	"github.com/urfave/cli/v2"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "embedsearch",
		Usage: "Backfill text embeddings and serve semantic search",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to a YAML configuration file",
			},
		},
		Before: setupLogger,
		Commands: []*cli.Command{
			{
				Name:   "backfill",
				Usage:  "Embed records that have no embedding and store the vectors",
				Action: backfillCommand,
				Flags: append(append(storeFlags(), embeddingFlags()...),
					&cli.IntFlag{
						Name:  "batch-size",
						Usage: "Maximum number of records selected per pass",
						Value: backfill.DefaultBatchSize,
					},
					&cli.IntFlag{
						Name:  "workers",
						Usage: "Number of records processed concurrently",
						Value: 1,
					},
					&cli.IntFlag{
						Name:  "max-retries",
						Usage: "Maximum attempts for an embedding call",
						Value: 3,
					},
					&cli.DurationFlag{
						Name:  "retry-delay",
						Usage: "Base delay for exponential backoff",
					},
					&cli.IntFlag{
						Name:  "report-interval",
						Usage: "Report progress every N records",
						Value: 50,
					},
					&cli.BoolFlag{
						Name:  "until-exhausted",
						Usage: "Repeat passes until no record is left to embed",
					},
					&cli.IntFlag{
						Name:  "max-passes",
						Usage: "Stop after N passes with --until-exhausted (0 means no limit)",
					},
					&cli.BoolFlag{
						Name:  "progress",
						Usage: "Print a progress line to stderr",
					},
				),
			},
			{
				Name:   "serve",
				Usage:  "Serve the search endpoint over HTTP",
				Action: serveCommand,
				Flags: append(append(storeFlags(), embeddingFlags()...),
					&cli.StringFlag{
						Name:  "addr",
						Usage: "Listen address",
						Value: "0.0.0.0:5000",
					},
					&cli.DurationFlag{
						Name:  "request-timeout",
						Usage: "Upper bound for a single search request",
					},
					&cli.Float64Flag{
						Name:  "rate-limit",
						Usage: "Search requests per second (0 disables limiting)",
					},
					&cli.IntFlag{
						Name:  "rate-burst",
						Usage: "Burst size for --rate-limit",
					},
					&cli.Int64Flag{
						Name:  "max-in-flight",
						Usage: "Maximum concurrent searches (0 means no cap)",
					},
					&cli.IntFlag{
						Name:  "match-count",
						Usage: "Maximum number of results per search",
						Value: search.DefaultMatchCount,
					},
					&cli.Float64Flag{
						Name:  "threshold",
						Usage: "Minimum similarity score",
					},
				),
			},
			{
				Name:      "search",
				Usage:     "Run one search and print the ranked records",
				ArgsUsage: "QUERY",
				Action:    searchCommand,
				Flags: append(append(storeFlags(), embeddingFlags()...),
					&cli.IntFlag{
						Name:  "match-count",
						Usage: "Maximum number of results",
						Value: search.DefaultMatchCount,
					},
					&cli.Float64Flag{
						Name:  "threshold",
						Usage: "Minimum similarity score",
					},
					&cli.BoolFlag{
						Name:  "trace",
						Usage: "Print each search stage to stderr",
					},
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Print results as JSON",
					},
				),
			},
			{
				Name:   "seed",
				Usage:  "Import JSON-lines records into the embedded store",
				Action: seedCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "db",
						Aliases:  []string{"d"},
						Usage:    "Path to BadgerDB database directory",
						Required: true,
					},
					&cli.StringFlag{
						Name:    "file",
						Aliases: []string{"f"},
						Usage:   "JSON-lines file with id, review and sentiment fields (- for stdin)",
						Value:   "-",
					},
				},
			},
		},
	}
}

func storeFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "backend",
			Usage: "Record store backend (postgrest, badger)",
			Value: config.BackendPostgREST,
		},
		&cli.StringFlag{
			Name:    "db",
			Aliases: []string{"d"},
			Usage:   "Path to BadgerDB database directory (badger backend)",
		},
		&cli.StringFlag{
			Name:  "supabase-url",
			Usage: "PostgREST endpoint (default from " + config.EnvStoreURL + ")",
		},
		&cli.StringFlag{
			Name:  "supabase-key",
			Usage: "Service key (default from " + config.EnvStoreKey + ")",
		},
		&cli.StringFlag{
			Name:  "table",
			Usage: "Table holding the records",
		},
	}
}

func embeddingFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "embedding-host",
			Usage: "Embedding service host URL (default from " + config.EnvEmbeddingHost + ")",
		},
		&cli.StringFlag{
			Name:  "embedding-model",
			Usage: "Embedding model name (default from " + config.EnvEmbeddingModel + ")",
		},
		&cli.IntFlag{
			Name:  "dimensions",
			Usage: "Expected embedding length",
		},
	}
}

// loadConfig layers the config file, the environment and explicit flags,
// in that order.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, err
	}
	cfg.ApplyEnv(os.Getenv)

	if c.IsSet("log-level") {
		cfg.Logging.Level = c.String("log-level")
	} else if err := configureLogger(cfg.Logging.Level); err != nil {
		return nil, err
	}

	setString := func(dst *string, name string) {
		if c.IsSet(name) {
			*dst = c.String(name)
		}
	}
	setInt := func(dst *int, name string) {
		if c.IsSet(name) {
			*dst = c.Int(name)
		}
	}
	setFloat := func(dst *float64, name string) {
		if c.IsSet(name) {
			*dst = c.Float64(name)
		}
	}

	setString(&cfg.Store.Backend, "backend")
	setString(&cfg.Store.Path, "db")
	setString(&cfg.Store.URL, "supabase-url")
	setString(&cfg.Store.Key, "supabase-key")
	setString(&cfg.Store.Table, "table")

	setString(&cfg.Embedding.Host, "embedding-host")
	setString(&cfg.Embedding.Model, "embedding-model")
	setInt(&cfg.Embedding.Dimensions, "dimensions")

	setInt(&cfg.Backfill.BatchSize, "batch-size")
	setInt(&cfg.Backfill.Workers, "workers")
	setInt(&cfg.Backfill.MaxRetries, "max-retries")
	setInt(&cfg.Backfill.ReportInterval, "report-interval")
	setInt(&cfg.Backfill.MaxPasses, "max-passes")
	if c.IsSet("retry-delay") {
		cfg.Backfill.RetryDelay = c.Duration("retry-delay")
	}
	if c.IsSet("until-exhausted") {
		cfg.Backfill.UntilExhausted = c.Bool("until-exhausted")
	}

	setInt(&cfg.Search.MatchCount, "match-count")
	setFloat(&cfg.Search.Threshold, "threshold")

	setString(&cfg.Server.Addr, "addr")
	setFloat(&cfg.Server.RateLimit, "rate-limit")
	setInt(&cfg.Server.RateBurst, "rate-burst")
	if c.IsSet("request-timeout") {
		cfg.Server.RequestTimeout = c.Duration("request-timeout")
	}
	if c.IsSet("max-in-flight") {
		cfg.Server.MaxInFlight = c.Int64("max-in-flight")
	}

	return cfg, nil
}

func openApp(c *cli.Context) (context.Context, context.CancelFunc, *embedsearch.App, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, nil, nil, err
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	app, err := embedsearch.NewApp(ctx, cfg)
	if err != nil {
		stop()
		return nil, nil, nil, err
	}
	return ctx, stop, app, nil
}

func backfillCommand(c *cli.Context) error {
	ctx, stop, app, err := openApp(c)
	if err != nil {
		return err
	}
	defer stop()
	defer app.Close()

	var opts []backfill.Option
	if c.Bool("progress") {
		opts = append(opts, backfill.WithProgress(c.App.ErrWriter))
	}
	job, err := app.NewBackfillJob(opts...)
	if err != nil {
		return err
	}
	defer job.Release()

	cfg := app.Config()
	var outcome *backfill.Outcome
	if cfg.Backfill.UntilExhausted {
		outcome, err = job.RunUntilExhausted(ctx, cfg.Backfill.MaxPasses)
	} else {
		outcome, err = job.RunOnce(ctx)
	}
	if outcome != nil {
		printOutcome(c.App.Writer, outcome)
	}
	if err != nil {
		return fmt.Errorf("backfill failed: %w", err)
	}
	return nil
}

func printOutcome(w io.Writer, outcome *backfill.Outcome) {
	fmt.Fprintf(w, "Backfill complete: %s\n", outcome.Summary())
	for _, entry := range outcome.Failed() {
		fmt.Fprintf(w, "  failed %s: %s: %v\n", entry.ID, entry.Detail, entry.Err)
	}
}

func serveCommand(c *cli.Context) error {
	gin.SetMode(gin.ReleaseMode)

	ctx, stop, app, err := openApp(c)
	if err != nil {
		return err
	}
	defer stop()
	defer app.Close()

	srv, err := app.NewServer()
	if err != nil {
		return err
	}
	return srv.Run(ctx, app.Config().Server.Addr)
}

func searchCommand(c *cli.Context) error {
	query := strings.Join(c.Args().Slice(), " ")
	if core.IsBlank(query) {
		return errors.New("a query is required")
	}

	ctx, stop, app, err := openApp(c)
	if err != nil {
		return err
	}
	defer stop()
	defer app.Close()

	service, err := app.NewSearchService()
	if err != nil {
		return err
	}

	var monitor search.SearchMonitor
	if c.Bool("trace") {
		monitor = search.NewTraceMonitor(c.App.ErrWriter)
	}
	results, err := service.SearchWithMonitor(ctx, query, monitor)
	if err != nil {
		return err
	}

	if c.Bool("json") {
		enc := json.NewEncoder(c.App.Writer)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}
	if len(results) == 0 {
		fmt.Fprintln(c.App.Writer, "No results.")
		return nil
	}
	for i, r := range results {
		fmt.Fprintf(c.App.Writer, "%2d. [%.4f] %s (%s)\n    %s\n", i+1, r.SimilarityScore, r.ID, r.Sentiment, r.Text)
	}
	return nil
}

func seedCommand(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	cfg.Store.Backend = config.BackendBadger

	var in io.Reader = os.Stdin
	if name := c.String("file"); name != "-" {
		f, err := os.Open(name)
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}

	records, err := embedsearch.ReadRecords(in)
	if err != nil {
		return fmt.Errorf("read records: %w", err)
	}

	store, err := embedsearch.OpenStore(cfg, slog.Default())
	if err != nil {
		return err
	}
	defer store.Close()

	added, err := embedsearch.SeedStore(c.Context, store, records)
	if err != nil {
		return fmt.Errorf("seed after %d records: %w", added, err)
	}
	fmt.Fprintf(c.App.Writer, "Seeded %d records into %s\n", added, cfg.Store.Path)
	return nil
}

func setupLogger(c *cli.Context) error {
	return configureLogger(c.String("log-level"))
}

func configureLogger(levelStr string) error {
	level, err := config.ParseLevel(levelStr)
	if err != nil {
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", levelStr)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	return nil
}
