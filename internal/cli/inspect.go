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

	"github.com/TermuxHackz/Enhanced-IPSW-Firmware-Analysis-Tool/pkg/archive"
	"github.com/TermuxHackz/Enhanced-IPSW-Firmware-Analysis-Tool/pkg/manifest"
	"github.com/TermuxHackz/Enhanced-IPSW-Firmware-Analysis-Tool/pkg/models"
)

// InspectOptions carries the parsed inspect flags.
type InspectOptions struct {
	Workers int
	Verbose bool
	Quiet   bool
}

// RunInspect extracts a single firmware container and prints its flattened
// tree as JSON, without any comparison.
func RunInspect(args []string) error {
	fs := flag.NewFlagSet("inspect", flag.ContinueOnError)
	opts := InspectOptions{}
	fs.IntVar(&opts.Workers, "workers", 0, "extraction/hashing workers (0 = default)")
	fs.BoolVar(&opts.Verbose, "verbose", false, "debug-level diagnostics on stderr")
	fs.BoolVar(&opts.Quiet, "quiet", false, "suppress diagnostics")
	if err := fs.Parse(args); err != nil {
		return err
	}
	rest := fs.Args()
	if len(rest) != 1 {
		return fmt.Errorf("inspect requires exactly one firmware container, got %d", len(rest))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return RunInspectLogic(ctx, RealFileSystem{}, os.Stdout, opts, filepath.Clean(rest[0]))
}

// RunInspectLogic is the testable core behind RunInspect.
func RunInspectLogic(ctx context.Context, fsys FileSystem, out io.Writer, opts InspectOptions, containerPath string) error {
	if err := ValidateContainerArg(fsys, containerPath); err != nil {
		return err
	}

	ext := archive.NewExtractor(NewLogger(opts.Verbose, opts.Quiet))
	ext.Workers = opts.Workers

	handle, err := ext.Extract(ctx, containerPath)
	if err != nil {
		return err
	}
	defer handle.Close()

	handle.Tree.Info = manifest.FromCaptured(handle.Manifests)

	view := struct {
		Container   string               `json:"container"`
		Digest      string               `json:"digest"`
		Info        *models.FirmwareInfo `json:"info,omitempty"`
		Entries     []models.FileEntry   `json:"entries"`
		Diagnostics []models.Diagnostic  `json:"diagnostics,omitempty"`
	}{
		Container:   handle.Tree.Container,
		Digest:      handle.Tree.Digest,
		Info:        handle.Tree.Info,
		Diagnostics: handle.Tree.Diagnostics,
	}
	for _, p := range handle.Tree.SortedPaths() {
		view.Entries = append(view.Entries, handle.Tree.Entries[p])
	}

	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(view)
}
