package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/markdave123-py/docchat/internal/app"
	"github.com/markdave123-py/docchat/internal/config"
	db "github.com/markdave123-py/docchat/internal/core/database"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Index every document in DOCS_DIR",
		Long: `ingest extracts, chunks and embeds every regular file in the docs
directory and stores the chunks in the configured vector backend. Files that
were ingested before are replaced, not duplicated.`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadConfig()
			if err != nil {
				return err
			}
			if dir != "" {
				cfg.DocsDir = dir
			}
			return run(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVarP(&dir, "dir", "d", "", "directory to ingest (default DOCS_DIR)")
	return cmd
}

func run(ctx context.Context, cfg *config.Config) error {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	dbClient, err := db.NewDatabaseClient(ctx, cfg)
	if err != nil {
		return err
	}
	defer dbClient.Close()

	ix, err := app.NewIndexing(ctx, cfg, dbClient, logger)
	if err != nil {
		return err
	}
	defer ix.Close()
	if ix.Ingestor == nil {
		return errors.New("the hosted vector backend is filled through the upload API, not ingest")
	}

	res, err := ix.Ingestor.IngestDir(ctx, cfg.DocsDir)
	if err != nil {
		return err
	}
	for _, f := range res.Files {
		if f.Error != "" {
			logger.Warn("file not ingested", "path", f.Path, "error", f.Error)
		}
	}
	fmt.Printf("Ingested %d chunks from %d files (%d failed)\n", res.Chunks, len(res.Files), res.Failed)
	return nil
}
