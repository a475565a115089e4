package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/Translation-Memory-Service/internal/app"
	"github.com/Adithya-Monish-Kumar-K/Translation-Memory-Service/internal/importer"
	"github.com/Adithya-Monish-Kumar-K/Translation-Memory-Service/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Translation-Memory-Service/pkg/logger"
)

var importFlags struct {
	backend    string
	cursor     int64
	batchSize  int
	dryRun     bool
	rebuild    bool
	standalone bool
	configPath string
}

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Bulk import translation units into a backend",
	Long: `Stream translation units from the corpus database into a writable backend.

Without --cursor the import resumes after the backend's checkpoint, the
revision up to which every unit was stored or rejected for good. --rebuild clears the backend first. With --standalone the
import runs in this process against the configured corpus and data
directory instead of asking a running server; the server must not hold the
same data directory open.`,
	Args: cobra.NoArgs,
	RunE: runImport,
}

func init() {
	f := importCmd.Flags()
	f.StringVarP(&importFlags.backend, "backend", "b", "", "backend to write to (default from config)")
	f.Int64Var(&importFlags.cursor, "cursor", -1, "import units with a revision above this one")
	f.IntVar(&importFlags.batchSize, "batch-size", 0, "documents per bulk request (default from config)")
	f.BoolVar(&importFlags.dryRun, "dry-run", false, "validate documents without writing them")
	f.BoolVar(&importFlags.rebuild, "rebuild", false, "clear the backend and import everything")
	f.BoolVar(&importFlags.standalone, "standalone", false, "run the import in-process")
	f.StringVar(&importFlags.configPath, "config", "configs/development.yaml", "config file for --standalone")
}

func runImport(_ *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	req := importer.Request{
		Backend:   importFlags.backend,
		BatchSize: importFlags.batchSize,
		DryRun:    importFlags.dryRun,
		Rebuild:   importFlags.rebuild,
	}
	if importFlags.cursor >= 0 {
		req.Cursor = &importFlags.cursor
	}

	var (
		result *importer.Result
		err    error
	)
	if importFlags.standalone {
		result, err = importStandalone(ctx, req)
	} else {
		result, err = newClient(0).runImport(ctx, req)
	}
	if result != nil {
		if jsonOutput {
			_ = printJSON(result)
		} else {
			printSummary(result)
		}
	}
	return err
}

func importStandalone(ctx context.Context, req importer.Request) (*importer.Result, error) {
	cfg, err := config.Load(importFlags.configPath)
	if err != nil {
		return nil, err
	}
	logger.Setup(os.Stderr, cfg.Logging.Level, "text")
	a, err := app.New(ctx, cfg, nil)
	if err != nil {
		return nil, err
	}
	defer a.Close()
	return a.RunImport(ctx, req)
}

func printSummary(r *importer.Result) {
	fmt.Printf("job:        %s\n", r.JobID)
	fmt.Printf("backend:    %s\n", r.Backend)
	fmt.Printf("cursor:     %d -> %d (read up to %d)\n", r.Cursor, r.Checkpoint, r.LastRevision)
	fmt.Printf("attempted:  %d\n", r.Attempted)
	fmt.Printf("succeeded:  %d\n", r.Succeeded)
	fmt.Printf("failed:     %d\n", r.Failed)
	for i, f := range r.Failures {
		if i == 20 {
			fmt.Printf("  ... %d more\n", len(r.Failures)-i)
			break
		}
		fmt.Printf("  %s: %s\n", f.DocumentID, f.Reason)
	}
}
