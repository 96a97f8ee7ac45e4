package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/conorfennell/recall/internal/config"
	"github.com/conorfennell/recall/internal/deck"
	"github.com/conorfennell/recall/internal/storage"
	"github.com/conorfennell/recall/internal/study"
	"github.com/conorfennell/recall/internal/web"
	"github.com/spf13/pflag"
)

const usage = `Usage: recall [flags] [command]

Commands:
  serve               Run the HTTP API (default)
  import <path|url>   Import markdown decks from a directory or git repository
  sync                Re-import every known source
  stats               Print deck statistics

Flags:
`

func main() {
	fs := pflag.NewFlagSet("recall", pflag.ExitOnError)
	config.RegisterFlags(fs)
	fs.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		fs.PrintDefaults()
	}
	fs.Parse(os.Args[1:])

	cfg, err := config.Load(fs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "recall: %v\n", err)
		os.Exit(2)
	}

	logger := cfg.NewLogger()
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, fs.Args(), logger); err != nil {
		logger.Error("recall failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, args []string, logger *slog.Logger) error {
	db, err := storage.Open(cfg.DB)
	if err != nil {
		return err
	}
	defer db.Close()
	logger.Info("Database opened successfully", "path", cfg.DB)

	importer := deck.NewImporter(db, cfg.ReposDir, logger)
	svc := study.NewService(db, study.WithLogger(logger))

	command := "serve"
	if len(args) > 0 {
		command = args[0]
	}

	switch command {
	case "serve":
		if cfg.Seed {
			if _, err := importer.Seed(ctx); err != nil {
				return fmt.Errorf("seed: %w", err)
			}
		}
		return serve(ctx, cfg, web.NewServer(svc, db, importer, web.Limits{Due: cfg.DueLimit, New: cfg.NewLimit}, logger), logger)

	case "import":
		if len(args) != 2 {
			return errors.New("import takes exactly one path or git URL")
		}
		report, err := importer.Import(ctx, args[1])
		if err != nil {
			return err
		}
		printReport(report)
		return nil

	case "sync":
		reports, err := importer.SyncAll(ctx)
		if err != nil {
			return err
		}
		for _, r := range reports {
			printReport(r)
		}
		return nil

	case "stats":
		stats, err := svc.Stats(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("Learned: %d\nDue today: %d\nNew remaining: %d\n", stats.TotalLearned, stats.DueToday, stats.NewRemaining)
		return nil

	default:
		return fmt.Errorf("unknown command %q", command)
	}
}

func serve(ctx context.Context, cfg *config.Config, handler http.Handler, logger *slog.Logger) error {
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", "addr", cfg.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func printReport(r *deck.Report) {
	fmt.Printf("%s: %d cards parsed, %d new, %d already present, %d errors.\n",
		r.Source, r.Parsed, r.Created, r.Duplicates, len(r.Errors))
	for _, e := range r.Errors {
		fmt.Printf("- %s\n", e)
	}
}
