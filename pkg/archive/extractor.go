package archive

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/TermuxHackz/Enhanced-IPSW-Firmware-Analysis-Tool/pkg/models"
)

var (
	magicZip  = []byte{'P', 'K', 0x03, 0x04}
	magicGzip = []byte{0x1f, 0x8b}
)

// Extractor opens firmware containers and flattens them into firmware trees.
// Safe for concurrent use; each Extract call owns its own workspace.
type Extractor struct {
	log      *slog.Logger
	Workers  int // per-tree hashing workers; 0 means models.DefaultHashWorkers
	MaxDepth int // nested container recursion bound; 0 means models.MaxNestedDepth
}

// NewExtractor returns an extractor that reports stage diagnostics to log.
// A nil logger discards events.
func NewExtractor(log *slog.Logger) *Extractor {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Extractor{log: log}
}

// Handle is a validated, opened firmware container. It owns the extraction
// workspace until Close; releasing it removes all temporary storage.
type Handle struct {
	Tree *models.FirmwareTree
	// Manifests holds raw top-level plist payloads captured during
	// extraction so the metadata layer never re-opens the container.
	Manifests map[string][]byte

	workspace string
}

// Close releases the extraction workspace. Idempotent.
func (h *Handle) Close() error {
	if h.workspace == "" {
		return nil
	}
	ws := h.workspace
	h.workspace = ""
	return os.RemoveAll(ws)
}

// Extract validates and flattens the container at containerPath.
// The container's own digest is computed first; callers that already hold it
// (for a cache probe) should use ExtractDigested instead.
func (e *Extractor) Extract(ctx context.Context, containerPath string) (*Handle, error) {
	digest, _, err := DigestFile(containerPath)
	if err != nil {
		return nil, &ArchiveOpenError{Path: containerPath, Err: err}
	}
	return e.ExtractDigested(ctx, containerPath, digest)
}

// ExtractDigested flattens a container whose identity digest is already
// known. Per-member failures degrade into unreadable entries and
// diagnostics; the only fatal outcomes are an unopenable top-level
// container, workspace exhaustion, and cancellation.
func (e *Extractor) ExtractDigested(ctx context.Context, containerPath, digest string) (*Handle, error) {
	info, err := os.Stat(containerPath)
	if err != nil {
		return nil, &ArchiveOpenError{Path: containerPath, Err: err}
	}
	if !info.Mode().IsRegular() {
		return nil, &ArchiveOpenError{Path: containerPath, Err: fmt.Errorf("not a regular file")}
	}
	if info.Size() == 0 {
		return nil, &ArchiveOpenError{Path: containerPath, Err: fmt.Errorf("container is empty")}
	}

	kind, err := sniffContainer(containerPath)
	if err != nil {
		return nil, &ArchiveOpenError{Path: containerPath, Err: err}
	}

	workspace, err := os.MkdirTemp("", "fwd-extract-")
	if err != nil {
		return nil, &StorageError{Path: containerPath, Err: err}
	}

	col := newCollector()
	e.log.Info("stage entered", "stage", models.StageExtract, "container", containerPath)

	switch kind {
	case containerZip:
		zr, zerr := zip.OpenReader(containerPath)
		if zerr != nil {
			os.RemoveAll(workspace)
			return nil, &ArchiveOpenError{Path: containerPath, Err: zerr}
		}
		err = e.walkZip(ctx, &zr.Reader, "", 0, []string{digest}, workspace, col)
		zr.Close()
	case containerTarGz:
		f, ferr := os.Open(containerPath)
		if ferr != nil {
			os.RemoveAll(workspace)
			return nil, &ArchiveOpenError{Path: containerPath, Err: ferr}
		}
		err = e.walkTarGz(ctx, f, containerPath, "", 0, []string{digest}, workspace, col)
		f.Close()
	}
	if err != nil {
		// Cancellation or storage failure. Partial results are discarded,
		// never returned.
		os.RemoveAll(workspace)
		return nil, err
	}

	tree := &models.FirmwareTree{
		Container:   containerPath,
		Digest:      digest,
		Entries:     col.entries,
		Diagnostics: col.diags,
	}
	e.log.Info("extraction complete",
		"container", containerPath, "entries", len(col.entries), "degraded", len(col.diags))

	return &Handle{Tree: tree, Manifests: col.manifests, workspace: workspace}, nil
}

type containerKind int

const (
	containerZip containerKind = iota
	containerTarGz
)

// sniffContainer identifies the container format by magic bytes, not by
// extension. An .ipsw is a zip; a renamed one still opens.
func sniffContainer(p string) (containerKind, error) {
	f, err := os.Open(p)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	head := make([]byte, 4)
	if _, err := io.ReadFull(f, head); err != nil {
		return 0, fmt.Errorf("container too short to identify: %w", err)
	}
	switch {
	case bytes.HasPrefix(head, magicZip):
		return containerZip, nil
	case bytes.HasPrefix(head, magicGzip):
		return containerTarGz, nil
	}
	return 0, fmt.Errorf("not a recognized firmware container (zip or tar.gz)")
}

// -- Zip traversal --

func (e *Extractor) walkZip(ctx context.Context, zr *zip.Reader, prefix string, depth int, ancestors []string, workspace string, col *collector) error {
	// The derived context is for the workers only. The errgroup cancels it
	// once Wait returns, so the success path must consult the parent.
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers())

	for _, f := range zr.File {
		if err := gctx.Err(); err != nil {
			break
		}
		if f.FileInfo().IsDir() {
			continue
		}
		name, ok := normalizePath(f.Name)
		if !ok {
			col.diagnostic(prefix+f.Name, models.StageExtract, "unsafe member path skipped")
			continue
		}
		full := prefix + name
		f := f

		switch {
		case f.Mode()&fs.ModeSymlink != 0:
			e.recordZipSymlink(full, f, col)
		case looksNested(name) && depth < e.maxDepth() && f.UncompressedSize64 <= models.MaxNestedArchiveSize:
			g.Go(func() error {
				return e.expandNestedZipMember(gctx, full, f, depth, ancestors, workspace, col)
			})
		default:
			g.Go(func() error {
				e.hashZipMember(full, f, depth, col)
				return gctx.Err()
			})
		}
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

func (e *Extractor) recordZipSymlink(full string, f *zip.File, col *collector) {
	rc, err := f.Open()
	if err != nil {
		col.degraded(full, models.StageExtract, err)
		return
	}
	defer rc.Close()
	target, err := io.ReadAll(io.LimitReader(rc, models.MaxLinkTargetSize))
	if err != nil {
		col.degraded(full, models.StageExtract, err)
		return
	}
	col.add(models.FileEntry{
		Path:       full,
		Size:       int64(len(target)),
		Kind:       models.EntrySymlink,
		LinkTarget: string(target),
	})
}

func (e *Extractor) hashZipMember(full string, f *zip.File, depth int, col *collector) {
	rc, err := f.Open()
	if err != nil {
		col.degraded(full, models.StageExtract, err)
		return
	}
	defer rc.Close()

	// Top-level plists are captured whole for manifest parsing; everything
	// else is streamed straight into the hasher.
	if depth == 0 && isManifestCandidate(full) && f.UncompressedSize64 <= models.MaxManifestSize {
		data, rerr := io.ReadAll(io.LimitReader(rc, models.MaxManifestSize+1))
		if rerr != nil {
			col.degraded(full, models.StageHash, rerr)
			return
		}
		digest, n, _ := Digest(bytes.NewReader(data))
		col.manifest(full, data)
		col.add(models.FileEntry{Path: full, Size: n, Digest: digest, Kind: models.EntryRegular})
		return
	}

	digest, n, err := Digest(rc)
	if err != nil {
		col.degraded(full, models.StageHash, err)
		return
	}
	col.add(models.FileEntry{Path: full, Size: n, Digest: digest, Kind: models.EntryRegular})
}

// expandNestedZipMember copies a nested container to the workspace, hashes it
// along the way, records it as a nested-archive entry, then recurses into it.
// The temp copy is removed as soon as the recursion returns so workspace
// usage stays bounded by nesting depth, not tree size.
func (e *Extractor) expandNestedZipMember(ctx context.Context, full string, f *zip.File, depth int, ancestors []string, workspace string, col *collector) error {
	rc, err := f.Open()
	if err != nil {
		col.degraded(full, models.StageExtract, err)
		return ctx.Err()
	}
	defer rc.Close()

	tmp, err := os.CreateTemp(workspace, "nested-*")
	if err != nil {
		return &StorageError{Path: workspace, Err: err}
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	digest, n, err := copyAndDigest(tmp, rc)
	closeErr := tmp.Close()
	if err != nil {
		col.degraded(full, models.StageExtract, err)
		return ctx.Err()
	}
	if closeErr != nil {
		return &StorageError{Path: tmpName, Err: closeErr}
	}

	col.add(models.FileEntry{Path: full, Size: n, Digest: digest, Kind: models.EntryNestedArchive})

	for _, anc := range ancestors {
		if anc == digest {
			col.diagnostic(full, models.StageExtract, "self-referential nested container not expanded")
			return ctx.Err()
		}
	}

	return e.expandContainerFile(ctx, tmpName, full+"/", depth+1, lineage(ancestors, digest), workspace, col)
}

// lineage extends an ancestor-digest chain into a fresh slice. Sibling nested
// archives expand on concurrent workers that share the parent chain, so
// appending in place would race on the backing array.
func lineage(ancestors []string, digest string) []string {
	out := make([]string, len(ancestors), len(ancestors)+1)
	copy(out, ancestors)
	return append(out, digest)
}

// expandContainerFile opens a materialized nested container by magic and
// recurses. A member that merely looked like an archive is re-recorded as a
// plain blob; one that is an archive but will not open degrades.
func (e *Extractor) expandContainerFile(ctx context.Context, p, prefix string, depth int, ancestors []string, workspace string, col *collector) error {
	kind, err := sniffContainer(p)
	if err != nil {
		// Extension lied; the blob entry already recorded is the truth.
		return ctx.Err()
	}
	switch kind {
	case containerZip:
		zr, zerr := zip.OpenReader(p)
		if zerr != nil {
			col.degraded(strings.TrimSuffix(prefix, "/"), models.StageExtract, zerr)
			return ctx.Err()
		}
		defer zr.Close()
		return e.walkZip(ctx, &zr.Reader, prefix, depth, ancestors, workspace, col)
	case containerTarGz:
		f, ferr := os.Open(p)
		if ferr != nil {
			return &StorageError{Path: p, Err: ferr}
		}
		defer f.Close()
		return e.walkTarGz(ctx, f, p, prefix, depth, ancestors, workspace, col)
	}
	return ctx.Err()
}

// -- Tar traversal --

// walkTarGz streams a gzip-compressed tar. Tar offers no random access, so
// members are processed sequentially; cancellation is observed between
// member boundaries. origin names the container for error reporting.
func (e *Extractor) walkTarGz(ctx context.Context, r io.Reader, origin, prefix string, depth int, ancestors []string, workspace string, col *collector) error {
	gz, err := gzip.NewReader(r)
	if err != nil {
		if prefix == "" {
			return &ArchiveOpenError{Path: origin, Err: err}
		}
		col.degraded(strings.TrimSuffix(prefix, "/"), models.StageExtract, err)
		return ctx.Err()
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			// The stream is corrupt from here on; keep what we have.
			col.diagnostic(strings.TrimSuffix(prefix, "/"), models.StageExtract,
				fmt.Sprintf("tar stream truncated: %v", err))
			return ctx.Err()
		}
		name, ok := normalizePath(hdr.Name)
		if !ok || hdr.Typeflag == tar.TypeDir {
			continue
		}
		full := prefix + name

		switch hdr.Typeflag {
		case tar.TypeSymlink, tar.TypeLink:
			col.add(models.FileEntry{
				Path:       full,
				Size:       int64(len(hdr.Linkname)),
				Kind:       models.EntrySymlink,
				LinkTarget: hdr.Linkname,
			})
		case tar.TypeReg:
			if looksNested(name) && depth < e.maxDepth() && hdr.Size <= models.MaxNestedArchiveSize {
				if err := e.expandNestedTarMember(ctx, full, tr, depth, ancestors, workspace, col); err != nil {
					return err
				}
				continue
			}
			digest, n, herr := Digest(tr)
			if herr != nil {
				col.degraded(full, models.StageHash, herr)
				continue
			}
			col.add(models.FileEntry{Path: full, Size: n, Digest: digest, Kind: models.EntryRegular})
		}
	}
}

func (e *Extractor) expandNestedTarMember(ctx context.Context, full string, r io.Reader, depth int, ancestors []string, workspace string, col *collector) error {
	tmp, err := os.CreateTemp(workspace, "nested-*")
	if err != nil {
		return &StorageError{Path: workspace, Err: err}
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	digest, n, err := copyAndDigest(tmp, r)
	closeErr := tmp.Close()
	if err != nil {
		col.degraded(full, models.StageExtract, err)
		return ctx.Err()
	}
	if closeErr != nil {
		return &StorageError{Path: tmpName, Err: closeErr}
	}

	col.add(models.FileEntry{Path: full, Size: n, Digest: digest, Kind: models.EntryNestedArchive})

	for _, anc := range ancestors {
		if anc == digest {
			col.diagnostic(full, models.StageExtract, "self-referential nested container not expanded")
			return ctx.Err()
		}
	}
	return e.expandContainerFile(ctx, tmpName, full+"/", depth+1, lineage(ancestors, digest), workspace, col)
}

// -- Helpers --

func (e *Extractor) workers() int {
	if e.Workers > 0 {
		return e.Workers
	}
	return models.DefaultHashWorkers
}

func (e *Extractor) maxDepth() int {
	if e.MaxDepth > 0 {
		return e.MaxDepth
	}
	return models.MaxNestedDepth
}

func copyAndDigest(dst io.Writer, src io.Reader) (string, int64, error) {
	h := sha256.New()
	n, err := io.CopyBuffer(io.MultiWriter(dst, h), src, make([]byte, models.ChunkSize))
	if err != nil {
		return "", n, err
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}

// looksNested decides by name whether a member deserves a magic sniff as a
// sub-container. The sniff is authoritative; this only gates the temp copy.
func looksNested(name string) bool {
	lower := strings.ToLower(name)
	switch {
	case strings.HasSuffix(lower, ".zip"),
		strings.HasSuffix(lower, ".ipsw"),
		strings.HasSuffix(lower, ".tgz"),
		strings.HasSuffix(lower, ".tar.gz"):
		return true
	}
	return false
}

func isManifestCandidate(p string) bool {
	if strings.Contains(p, "/") {
		return false
	}
	return strings.HasSuffix(strings.ToLower(p), ".plist")
}

// normalizePath converts archive member names to clean forward-slash paths.
// Absolute paths and parent-dir escapes are rejected rather than silently
// rewritten; the caller records the rejection.
func normalizePath(name string) (string, bool) {
	p := strings.ReplaceAll(name, "\\", "/")
	p = strings.TrimPrefix(p, "./")
	cleaned := path.Clean(p)
	if cleaned == "." || cleaned == "" {
		return "", false
	}
	if strings.HasPrefix(cleaned, "/") || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", false
	}
	return cleaned, true
}

// -- Collector --

// collector accumulates entries from concurrent workers. First occurrence of
// a path wins; duplicates and per-member failures become diagnostics.
type collector struct {
	mu        sync.Mutex
	entries   map[string]models.FileEntry
	diags     []models.Diagnostic
	manifests map[string][]byte
}

func newCollector() *collector {
	return &collector{
		entries:   make(map[string]models.FileEntry),
		manifests: make(map[string][]byte),
	}
}

func (c *collector) add(e models.FileEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.entries[e.Path]; exists {
		c.diags = append(c.diags, models.Diagnostic{
			Path:    e.Path,
			Stage:   models.StageExtract,
			Message: "duplicate member path; first occurrence kept",
		})
		return
	}
	c.entries[e.Path] = e
}

func (c *collector) degraded(path, stage string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.entries[path]; !exists {
		c.entries[path] = models.FileEntry{Path: path, Kind: models.EntryUnreadable}
	} else {
		prev := c.entries[path]
		prev.Kind = models.EntryUnreadable
		c.entries[path] = prev
	}
	c.diags = append(c.diags, models.Diagnostic{Path: path, Stage: stage, Message: err.Error()})
}

func (c *collector) diagnostic(path, stage, msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.diags = append(c.diags, models.Diagnostic{Path: path, Stage: stage, Message: msg})
}

func (c *collector) manifest(path string, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.manifests[path] = data
}
