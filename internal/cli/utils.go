package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/TermuxHackz/Enhanced-IPSW-Firmware-Analysis-Tool/pkg/classify"
)

// NewLogger builds the CLI's diagnostics sink: structured text on stderr,
// info level unless verbose. Quiet mode discards everything, which is what
// tests inject.
func NewLogger(verbose, quiet bool) *slog.Logger {
	if quiet {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// ValidateContainerArg rejects the obvious bad inputs before any extraction
// work starts, so the user gets a specific message instead of a deep error.
func ValidateContainerArg(fsys FileSystem, p string) error {
	info, err := fsys.Stat(p)
	if os.IsNotExist(err) {
		return fmt.Errorf("firmware container does not exist: %s", p)
	}
	if err != nil {
		return fmt.Errorf("cannot access %s: %w", p, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory, not a firmware container", p)
	}
	if info.Size() == 0 {
		return fmt.Errorf("firmware container is empty: %s", p)
	}
	return nil
}

// LoadTableArg resolves the --rules flag: empty means the built-in table.
func LoadTableArg(rulesPath string) (*classify.Table, error) {
	if rulesPath == "" {
		return classify.DefaultTable(), nil
	}
	return classify.LoadTable(filepath.Clean(rulesPath))
}

// ExitError prints an error and terminates with a non-zero status.
func ExitError(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

// SuggestCommand offers the closest known subcommand for a typo, or "" when
// nothing is close enough to be helpful.
func SuggestCommand(input string) string {
	commands := []string{"compare", "inspect", "rules", "version"}
	best := ""
	bestDist := 3 // anything further than two edits is noise
	for _, c := range commands {
		if d := editDistance(input, c); d < bestDist {
			bestDist = d
			best = c
		}
	}
	return best
}

func editDistance(a, b string) int {
	la, lb := len(a), len(b)
	prev := make([]int, lb+1)
	cur := make([]int, lb+1)
	for j := 0; j <= lb; j++ {
		prev[j] = j
	}
	for i := 1; i <= la; i++ {
		cur[0] = i
		for j := 1; j <= lb; j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			cur[j] = min3(cur[j-1]+1, prev[j]+1, prev[j-1]+cost)
		}
		prev, cur = cur, prev
	}
	return prev[lb]
}

func min3(a, b, c int) int {
	m := a
	if b < m {
		m = b
	}
	if c < m {
		m = c
	}
	return m
}
