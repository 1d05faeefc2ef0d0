// Package engine wires the comparison pipeline:
// extract -> hash -> diff -> classify -> assess.
// Data flows strictly forward; no stage reaches back into an earlier one.
package engine

import (
	"context"
	"io"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/TermuxHackz/Enhanced-IPSW-Firmware-Analysis-Tool/pkg/archive"
	"github.com/TermuxHackz/Enhanced-IPSW-Firmware-Analysis-Tool/pkg/assess"
	"github.com/TermuxHackz/Enhanced-IPSW-Firmware-Analysis-Tool/pkg/classify"
	"github.com/TermuxHackz/Enhanced-IPSW-Firmware-Analysis-Tool/pkg/diff"
	"github.com/TermuxHackz/Enhanced-IPSW-Firmware-Analysis-Tool/pkg/manifest"
	"github.com/TermuxHackz/Enhanced-IPSW-Firmware-Analysis-Tool/pkg/models"
	"github.com/TermuxHackz/Enhanced-IPSW-Firmware-Analysis-Tool/pkg/storage"
)

// ProgressFunc receives non-blocking stage notifications. pct is a rough
// 0-100 figure for display only; callers must not derive logic from it.
type ProgressFunc func(stage string, pct int)

// Options configures an Engine. The zero value works: default rule table,
// no cache, discarded logs.
type Options struct {
	// Logger is the injected diagnostics sink. Nil discards events.
	Logger *slog.Logger
	// Table overrides the built-in classification rule table.
	Table *classify.Table
	// Cache, when set, short-circuits extraction for containers whose
	// digest has been seen before. The engine never owns the cache; the
	// caller closes it.
	Cache storage.TreeCache
	// Workers bounds the per-tree extract+hash pool.
	Workers int
	// MaxDepth bounds nested container recursion.
	MaxDepth int
	// Progress, when set, is invoked on stage transitions.
	Progress ProgressFunc
}

// Engine runs comparisons. Safe for concurrent use: each Compare call owns
// its own handles, workspaces and result, and shares no mutable state with
// other runs.
type Engine struct {
	log      *slog.Logger
	table    *classify.Table
	cache    storage.TreeCache
	progress ProgressFunc
	ext      *archive.Extractor
}

// New builds an engine from options.
func New(opts Options) *Engine {
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	table := opts.Table
	if table == nil {
		table = classify.DefaultTable()
	}
	ext := archive.NewExtractor(log)
	ext.Workers = opts.Workers
	ext.MaxDepth = opts.MaxDepth

	return &Engine{
		log:      log,
		table:    table,
		cache:    opts.Cache,
		progress: opts.Progress,
		ext:      ext,
	}
}

// Compare analyzes two firmware containers and returns the classified delta.
// The two sides are extracted and hashed concurrently; they share no state.
// On any fatal error or cancellation, no result is returned and both
// workspaces are released; a partial delta is never presented as complete.
func (e *Engine) Compare(ctx context.Context, oldPath, newPath string) (*models.AnalysisResult, error) {
	e.report(models.StageValidate, 0)
	e.log.Info("stage entered", "stage", models.StageValidate, "old", oldPath, "new", newPath)

	var oldSide, newSide *side
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s, err := e.loadSide(gctx, oldPath)
		oldSide = s
		return err
	})
	g.Go(func() error {
		s, err := e.loadSide(gctx, newPath)
		newSide = s
		return err
	})
	err := g.Wait()

	// Workspaces are released on every exit path, including the one where
	// only one side failed.
	defer func() {
		if oldSide != nil {
			oldSide.close()
		}
		if newSide != nil {
			newSide.close()
		}
	}()
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e.report(models.StageDiff, 60)
	e.log.Info("stage entered", "stage", models.StageDiff,
		"old_entries", len(oldSide.tree.Entries), "new_entries", len(newSide.tree.Entries))
	records := diff.Trees(oldSide.tree, newSide.tree)

	e.report(models.StageClassify, 80)
	e.log.Info("stage entered", "stage", models.StageClassify, "records", len(records))
	records = e.table.Apply(records)

	e.report(models.StageAssess, 95)
	diagnostics := append(append([]models.Diagnostic{}, oldSide.tree.Diagnostics...), newSide.tree.Diagnostics...)
	summary := assess.Summarize(records, diagnostics)

	result := &models.AnalysisResult{
		OldContainer: oldPath,
		NewContainer: newPath,
		OldInfo:      oldSide.tree.Info,
		NewInfo:      newSide.tree.Info,
		Records:      records,
		Summary:      summary,
		Diagnostics:  diagnostics,
	}

	e.report(models.StageAssess, 100)
	e.log.Info("comparison complete",
		"records", len(records), "verdict", summary.Verdict, "degraded", summary.Degraded)
	return result, nil
}

// side is one container's extraction state for the duration of a run.
type side struct {
	tree   *models.FirmwareTree
	handle *archive.Handle
}

func (s *side) close() {
	if s.handle != nil {
		s.handle.Close()
		s.handle = nil
	}
}

// loadSide produces a firmware tree for one container, via the cache when
// possible. Cache failures degrade to a plain extraction; a broken cache
// must never fail a comparison.
func (e *Engine) loadSide(ctx context.Context, containerPath string) (*side, error) {
	digest, _, err := archive.DigestFile(containerPath)
	if err != nil {
		return nil, &archive.ArchiveOpenError{Path: containerPath, Err: err}
	}

	if e.cache != nil {
		if tree, cerr := e.cache.GetTree(digest); cerr == nil && tree != nil {
			e.log.Info("tree cache hit", "container", containerPath, "digest", digest)
			tree.Container = containerPath
			return &side{tree: tree}, nil
		} else if cerr != nil {
			e.log.Warn("tree cache read failed", "container", containerPath, "error", cerr)
		}
	}

	e.report(models.StageExtract, 10)
	handle, err := e.ext.ExtractDigested(ctx, containerPath, digest)
	if err != nil {
		return nil, err
	}

	handle.Tree.Info = manifest.FromCaptured(handle.Manifests)

	if e.cache != nil {
		if cerr := e.cache.PutTree(digest, handle.Tree); cerr != nil {
			e.log.Warn("tree cache write failed", "container", containerPath, "error", cerr)
		}
	}
	return &side{tree: handle.Tree, handle: handle}, nil
}

func (e *Engine) report(stage string, pct int) {
	if e.progress != nil {
		e.progress(stage, pct)
	}
}
