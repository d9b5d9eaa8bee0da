package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/ragbot/internal/core/domain"
	"github.com/custodia-labs/ragbot/internal/logger"
	"github.com/custodia-labs/ragbot/internal/metrics"
)

var (
	indexForce       bool
	indexWatch       bool
	indexMetricsAddr string
)

var indexCmd = &cobra.Command{
	Use:   "index [path]",
	Short: "Index documents into the vector database",
	Long: `Loads, chunks and embeds the documents under path (default: index.data_path)
and writes them to the configured collection.

A directory is searched recursively for .txt, .pdf, .docx, .doc, .md and
.html files. Files that have not changed since the last run are skipped
unless --force is given. Files that failed to load are reported and the
run continues.

With --watch the directory is re-indexed whenever a file changes.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runIndex,
}

func init() {
	indexCmd.Flags().BoolVar(&indexForce, "force", false, "re-index every file, ignoring the manifest")
	indexCmd.Flags().BoolVar(&indexWatch, "watch", false, "keep running and re-index on changes")
	indexCmd.Flags().StringVar(&indexMetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address, e.g. :9090")
	rootCmd.AddCommand(indexCmd)
}

func runIndex(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	settings, err := loadSettings(configPath)
	if err != nil {
		return err
	}
	path := settings.Index.DataPath
	if len(args) > 0 {
		path = args[0]
	}

	indexer, closeFn, err := buildIngest(ctx, settings, indexForce)
	if err != nil {
		return fmt.Errorf("index setup failed: %w", err)
	}
	defer closeFn()

	if indexMetricsAddr != "" {
		shutdown := serveMetrics(indexMetricsAddr)
		defer shutdown()
		cmd.Printf("Serving metrics on %s/metrics\n", indexMetricsAddr)
	}

	st := newStyles(cmd.OutOrStdout())
	cmd.Printf("Indexing %s into collection %q...\n", path, settings.Index.CollectionName)

	if !indexWatch {
		report, err := indexer.Ingest(ctx, path)
		if report != nil {
			cmd.Println(st.report(report))
		}
		if err != nil {
			return fmt.Errorf("index failed: %w", err)
		}
		return nil
	}

	cmd.Println("Watching for changes. Press Ctrl+C to stop.")
	err = indexer.Watch(ctx, path, func(report *domain.IngestReport, err error) {
		if report != nil {
			cmd.Println(st.report(report))
		}
		if err != nil {
			cmd.PrintErrln(st.Error.Render("index failed: " + err.Error()))
		}
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// serveMetrics starts the /metrics endpoint and returns its shutdown func.
func serveMetrics(addr string) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server: %v", err)
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}
