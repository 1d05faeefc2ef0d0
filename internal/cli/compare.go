package cli

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/TermuxHackz/Enhanced-IPSW-Firmware-Analysis-Tool/pkg/engine"
	"github.com/TermuxHackz/Enhanced-IPSW-Firmware-Analysis-Tool/pkg/models"
	"github.com/TermuxHackz/Enhanced-IPSW-Firmware-Analysis-Tool/pkg/report"
	"github.com/TermuxHackz/Enhanced-IPSW-Firmware-Analysis-Tool/pkg/storage"
	"github.com/TermuxHackz/Enhanced-IPSW-Firmware-Analysis-Tool/pkg/storage/pebbledb"
)

// CompareOptions carries the parsed compare flags.
type CompareOptions struct {
	RulesPath string
	CachePath string
	Workers   int
	Format    string // "json" or "text"
	Verbose   bool
	Quiet     bool
	Progress  bool
}

// RunCompare parses flags and executes a comparison, writing the result to
// stdout. Interrupts cancel the run cooperatively; a cancelled run prints
// nothing but the failure.
func RunCompare(args []string) error {
	fs := flag.NewFlagSet("compare", flag.ContinueOnError)
	opts := CompareOptions{}
	fs.StringVar(&opts.RulesPath, "rules", "", "YAML classification rule table (default: built-in)")
	fs.StringVar(&opts.CachePath, "cache", "", "tree cache directory (PebbleDB); empty disables caching")
	fs.IntVar(&opts.Workers, "workers", 0, "extraction/hashing workers per tree (0 = default)")
	fs.StringVar(&opts.Format, "format", "json", "output format: json or text")
	fs.BoolVar(&opts.Verbose, "verbose", false, "debug-level diagnostics on stderr")
	fs.BoolVar(&opts.Quiet, "quiet", false, "suppress diagnostics")
	fs.BoolVar(&opts.Progress, "progress", false, "report stage progress on stderr")
	if err := fs.Parse(args); err != nil {
		return err
	}
	rest := fs.Args()
	if len(rest) != 2 {
		return fmt.Errorf("compare requires exactly two firmware containers, got %d", len(rest))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return RunCompareLogic(ctx, RealFileSystem{}, os.Stdout, opts, filepath.Clean(rest[0]), filepath.Clean(rest[1]))
}

// RunCompareLogic is the testable core behind RunCompare.
func RunCompareLogic(ctx context.Context, fsys FileSystem, out io.Writer, opts CompareOptions, oldPath, newPath string) error {
	if oldPath == newPath {
		return fmt.Errorf("both arguments name the same container: %s", oldPath)
	}
	if err := ValidateContainerArg(fsys, oldPath); err != nil {
		return err
	}
	if err := ValidateContainerArg(fsys, newPath); err != nil {
		return err
	}
	if opts.Format != "json" && opts.Format != "text" {
		return fmt.Errorf("unknown output format %q", opts.Format)
	}

	table, err := LoadTableArg(opts.RulesPath)
	if err != nil {
		return err
	}

	var cache storage.TreeCache
	if opts.CachePath != "" {
		pc, cerr := pebbledb.Open(opts.CachePath, pebbledb.DefaultOptions())
		if cerr != nil {
			return fmt.Errorf("failed to open tree cache: %w", cerr)
		}
		defer pc.Close()
		cache = pc
	}

	logger := NewLogger(opts.Verbose, opts.Quiet)
	var progress engine.ProgressFunc
	if opts.Progress {
		progress = func(stage string, pct int) {
			fmt.Fprintf(os.Stderr, "[%3d%%] %s\n", pct, stage)
		}
	}

	eng := engine.New(engine.Options{
		Logger:   logger,
		Table:    table,
		Cache:    cache,
		Workers:  opts.Workers,
		Progress: progress,
	})

	result, err := eng.Compare(ctx, oldPath, newPath)
	if err != nil {
		return err
	}

	return WriteResult(out, opts.Format, result)
}

// WriteResult renders a result in the requested format.
func WriteResult(out io.Writer, format string, result *models.AnalysisResult) error {
	if format == "text" {
		_, err := io.WriteString(out, report.Render(result, report.Options{Timestamp: time.Now()}))
		return err
	}
	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(result)
}
