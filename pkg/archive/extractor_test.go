package archive_test

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/TermuxHackz/Enhanced-IPSW-Firmware-Analysis-Tool/pkg/archive"
	"github.com/TermuxHackz/Enhanced-IPSW-Firmware-Analysis-Tool/pkg/models"
	"github.com/TermuxHackz/Enhanced-IPSW-Firmware-Analysis-Tool/pkg/testutil"
)

func sha(data []byte) string {
	s := sha256.Sum256(data)
	return hex.EncodeToString(s[:])
}

func extract(t *testing.T, containerPath string) *archive.Handle {
	t.Helper()
	h, err := archive.NewExtractor(nil).Extract(context.Background(), containerPath)
	if err != nil {
		t.Fatalf("Extract(%s): %v", containerPath, err)
	}
	t.Cleanup(func() { h.Close() })
	return h
}

func TestExtractFlattensZip(t *testing.T) {
	t.Parallel()

	kernel := []byte("kernel image bytes")
	p := testutil.WriteZip(t, t.TempDir(), "fw.ipsw", []testutil.ZipEntry{
		{Name: "kernelcache.release", Data: kernel},
		{Name: "Firmware/dfu/iBSS.img4", Data: []byte("ibss")},
		{Name: "usr/lib/current", Data: []byte("versions/A"), Mode: fs.ModeSymlink},
	})

	h := extract(t, p)
	tree := h.Tree

	if len(tree.Entries) != 3 {
		t.Fatalf("expected 3 entries, got %d: %v", len(tree.Entries), tree.SortedPaths())
	}
	if len(tree.Diagnostics) != 0 {
		t.Errorf("unexpected diagnostics: %v", tree.Diagnostics)
	}
	if tree.Digest == "" {
		t.Error("container digest not recorded")
	}

	kc := tree.Entries["kernelcache.release"]
	if kc.Kind != models.EntryRegular {
		t.Errorf("kernelcache kind = %s", kc.Kind)
	}
	if kc.Digest != sha(kernel) {
		t.Errorf("kernelcache digest mismatch")
	}
	if kc.Size != int64(len(kernel)) {
		t.Errorf("kernelcache size = %d, want %d", kc.Size, len(kernel))
	}

	link := tree.Entries["usr/lib/current"]
	if link.Kind != models.EntrySymlink {
		t.Fatalf("symlink kind = %s", link.Kind)
	}
	if link.LinkTarget != "versions/A" {
		t.Errorf("link target = %q", link.LinkTarget)
	}
}

func TestExtractNestedArchive(t *testing.T) {
	t.Parallel()

	inner := testutil.BuildZipBytes(t, []testutil.ZipEntry{
		{Name: "inner.txt", Data: []byte("nested content")},
	})
	p := testutil.WriteZip(t, t.TempDir(), "outer.zip", []testutil.ZipEntry{
		{Name: "top.txt", Data: []byte("top")},
		{Name: "payload.zip", Data: inner},
	})

	h := extract(t, p)
	tree := h.Tree

	nested := tree.Entries["payload.zip"]
	if nested.Kind != models.EntryNestedArchive {
		t.Errorf("payload.zip kind = %s, want nested-archive", nested.Kind)
	}
	if nested.Digest != sha(inner) {
		t.Errorf("nested container digest mismatch")
	}

	member := tree.Entries["payload.zip/inner.txt"]
	if member.Kind != models.EntryRegular {
		t.Fatalf("nested member missing or wrong kind: %+v", member)
	}
	if member.Digest != sha([]byte("nested content")) {
		t.Errorf("nested member digest mismatch")
	}
}

// A live (never cancelled) context must survive a full extraction: the
// worker pool's internal context winds down when the pool drains, and that
// must not read as a cancelled run.
func TestExtractLeavesCallerContextLive(t *testing.T) {
	t.Parallel()

	entries := make([]testutil.ZipEntry, 0, 20)
	for i := 0; i < 20; i++ {
		entries = append(entries, testutil.ZipEntry{
			Name: fmt.Sprintf("files/blob-%02d.bin", i),
			Data: []byte(fmt.Sprintf("payload %d", i)),
		})
	}
	p := testutil.WriteZip(t, t.TempDir(), "fw.ipsw", entries)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h, err := archive.NewExtractor(nil).Extract(ctx, p)
	if err != nil {
		t.Fatalf("Extract with a live context: %v", err)
	}
	defer h.Close()

	if len(h.Tree.Entries) != 20 {
		t.Errorf("expected 20 entries, got %d", len(h.Tree.Entries))
	}
	if ctx.Err() != nil {
		t.Errorf("caller context cancelled by extraction: %v", ctx.Err())
	}
}

// Sibling nested archives under one parent expand on concurrent workers
// sharing the parent's ancestor chain; both must come out complete.
func TestExtractSiblingNestedArchives(t *testing.T) {
	t.Parallel()

	sibA := testutil.BuildZipBytes(t, []testutil.ZipEntry{
		{Name: "left.txt", Data: []byte("left")},
	})
	sibB := testutil.BuildZipBytes(t, []testutil.ZipEntry{
		{Name: "right.txt", Data: []byte("right")},
	})
	bundle := testutil.BuildZipBytes(t, []testutil.ZipEntry{
		{Name: "a.zip", Data: sibA},
		{Name: "b.zip", Data: sibB},
	})
	p := testutil.WriteZip(t, t.TempDir(), "outer.zip", []testutil.ZipEntry{
		{Name: "bundle.zip", Data: bundle},
	})

	h := extract(t, p)
	tree := h.Tree

	for path, want := range map[string]string{
		"bundle.zip/a.zip/left.txt":  sha([]byte("left")),
		"bundle.zip/b.zip/right.txt": sha([]byte("right")),
	} {
		entry, ok := tree.Entries[path]
		if !ok {
			t.Fatalf("entry %s missing: %v", path, tree.SortedPaths())
		}
		if entry.Digest != want {
			t.Errorf("%s digest mismatch", path)
		}
	}
	if len(tree.Diagnostics) != 0 {
		t.Errorf("unexpected diagnostics: %v", tree.Diagnostics)
	}
}

func TestExtractNestedDepthBound(t *testing.T) {
	t.Parallel()

	innermost := testutil.BuildZipBytes(t, []testutil.ZipEntry{
		{Name: "c.txt", Data: []byte("deep")},
	})
	middle := testutil.BuildZipBytes(t, []testutil.ZipEntry{
		{Name: "b.zip", Data: innermost},
	})
	p := testutil.WriteZip(t, t.TempDir(), "outer.zip", []testutil.ZipEntry{
		{Name: "a.zip", Data: middle},
	})

	ext := archive.NewExtractor(nil)
	ext.MaxDepth = 1
	h, err := ext.Extract(context.Background(), p)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	defer h.Close()

	if h.Tree.Entries["a.zip"].Kind != models.EntryNestedArchive {
		t.Errorf("a.zip should have been expanded at depth 0")
	}
	if got := h.Tree.Entries["a.zip/b.zip"].Kind; got != models.EntryRegular {
		t.Errorf("b.zip at the depth bound should stay an opaque blob, got %s", got)
	}
	if _, exists := h.Tree.Entries["a.zip/b.zip/c.txt"]; exists {
		t.Error("recursion exceeded the configured depth bound")
	}
}

func TestExtractCorruptMemberDegrades(t *testing.T) {
	t.Parallel()

	p := testutil.WriteZip(t, t.TempDir(), "fw.zip", []testutil.ZipEntry{
		{Name: "good.bin", Data: []byte("good")},
		{Name: "bad.bin", Data: []byte("corrupted"), BadCRC: true},
	})

	h := extract(t, p)
	tree := h.Tree

	if tree.Entries["good.bin"].Digest != sha([]byte("good")) {
		t.Errorf("healthy member affected by its corrupt sibling")
	}
	if tree.Entries["bad.bin"].Kind != models.EntryUnreadable {
		t.Errorf("corrupt member kind = %s, want unreadable", tree.Entries["bad.bin"].Kind)
	}
	if len(tree.Diagnostics) == 0 {
		t.Fatal("corrupt member produced no diagnostic")
	}
	if tree.Diagnostics[0].Path != "bad.bin" {
		t.Errorf("diagnostic path = %s", tree.Diagnostics[0].Path)
	}
}

func TestExtractRejectsUnrecognizedContainer(t *testing.T) {
	t.Parallel()

	p := filepath.Join(t.TempDir(), "not-an-archive.ipsw")
	if err := os.WriteFile(p, []byte("this is just text, no magic"), 0644); err != nil {
		t.Fatal(err)
	}

	_, err := archive.NewExtractor(nil).Extract(context.Background(), p)
	var openErr *archive.ArchiveOpenError
	if !errors.As(err, &openErr) {
		t.Fatalf("expected ArchiveOpenError, got %v", err)
	}
	if openErr.Path != p {
		t.Errorf("error path = %s, want %s", openErr.Path, p)
	}
}

func TestExtractRejectsEmptyContainer(t *testing.T) {
	t.Parallel()

	p := filepath.Join(t.TempDir(), "empty.zip")
	if err := os.WriteFile(p, nil, 0644); err != nil {
		t.Fatal(err)
	}

	_, err := archive.NewExtractor(nil).Extract(context.Background(), p)
	var openErr *archive.ArchiveOpenError
	if !errors.As(err, &openErr) {
		t.Fatalf("expected ArchiveOpenError, got %v", err)
	}
}

func TestExtractRejectsMissingContainer(t *testing.T) {
	t.Parallel()

	_, err := archive.NewExtractor(nil).Extract(context.Background(), filepath.Join(t.TempDir(), "absent.ipsw"))
	var openErr *archive.ArchiveOpenError
	if !errors.As(err, &openErr) {
		t.Fatalf("expected ArchiveOpenError, got %v", err)
	}
}

func TestExtractDuplicatePathFirstWins(t *testing.T) {
	t.Parallel()

	p := testutil.WriteZip(t, t.TempDir(), "dup.zip", []testutil.ZipEntry{
		{Name: "config.plist", Data: []byte("first")},
		{Name: "config.plist", Data: []byte("second")},
	})

	ext := archive.NewExtractor(nil)
	ext.Workers = 1 // deterministic ordering for first-wins assertion
	h, err := ext.Extract(context.Background(), p)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	defer h.Close()

	if len(h.Tree.Entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(h.Tree.Entries))
	}
	if h.Tree.Entries["config.plist"].Digest != sha([]byte("first")) {
		t.Errorf("duplicate did not resolve to first occurrence")
	}
	if len(h.Tree.Diagnostics) != 1 {
		t.Errorf("expected 1 duplicate diagnostic, got %d", len(h.Tree.Diagnostics))
	}
}

func TestExtractSkipsUnsafePaths(t *testing.T) {
	t.Parallel()

	p := testutil.WriteZip(t, t.TempDir(), "evil.zip", []testutil.ZipEntry{
		{Name: "../escape.bin", Data: []byte("evil")},
		{Name: "/etc/passwd", Data: []byte("evil")},
		{Name: "safe.bin", Data: []byte("fine")},
	})

	h := extract(t, p)
	if len(h.Tree.Entries) != 1 {
		t.Fatalf("expected only the safe entry, got %v", h.Tree.SortedPaths())
	}
	if _, ok := h.Tree.Entries["safe.bin"]; !ok {
		t.Error("safe entry missing")
	}
	if len(h.Tree.Diagnostics) != 2 {
		t.Errorf("expected 2 skip diagnostics, got %d", len(h.Tree.Diagnostics))
	}
}

func TestExtractCancellation(t *testing.T) {
	t.Parallel()

	p := testutil.WriteZip(t, t.TempDir(), "fw.zip", []testutil.ZipEntry{
		{Name: "a.bin", Data: []byte("a")},
		{Name: "b.bin", Data: []byte("b")},
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := archive.NewExtractor(nil).Extract(ctx, p)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestExtractCapturesTopLevelManifests(t *testing.T) {
	t.Parallel()

	manifest := []byte("<plist></plist>")
	p := testutil.WriteZip(t, t.TempDir(), "fw.ipsw", []testutil.ZipEntry{
		{Name: "BuildManifest.plist", Data: manifest},
		{Name: "Firmware/nested.plist", Data: []byte("not top level")},
	})

	h := extract(t, p)

	if string(h.Manifests["BuildManifest.plist"]) != string(manifest) {
		t.Error("top-level manifest payload not captured")
	}
	if _, ok := h.Manifests["Firmware/nested.plist"]; ok {
		t.Error("nested plist must not be captured as a manifest")
	}
	// Captured manifests still appear in the tree like any other member.
	if h.Tree.Entries["BuildManifest.plist"].Digest != sha(manifest) {
		t.Error("manifest entry missing from the tree")
	}
}

func TestExtractTarGz(t *testing.T) {
	t.Parallel()

	p := testutil.WriteTarGz(t, t.TempDir(), "fw.tar.gz", []testutil.TarEntry{
		{Name: "boot/loader.bin", Data: []byte("loader")},
		{Name: "lib/libc.so", Linkname: "libc.so.6"},
	})

	h := extract(t, p)
	tree := h.Tree

	if tree.Entries["boot/loader.bin"].Digest != sha([]byte("loader")) {
		t.Errorf("tar member digest mismatch")
	}
	link := tree.Entries["lib/libc.so"]
	if link.Kind != models.EntrySymlink || link.LinkTarget != "libc.so.6" {
		t.Errorf("tar symlink not recorded: %+v", link)
	}
}

func TestHandleCloseRemovesWorkspace(t *testing.T) {
	// Redirecting TMPDIR lets the test enumerate every workspace the
	// extractor creates. Not parallel: t.Setenv forbids it.
	scratch := t.TempDir()
	t.Setenv("TMPDIR", scratch)

	inner := testutil.BuildZipBytes(t, []testutil.ZipEntry{
		{Name: "inner.txt", Data: []byte("data")},
	})
	p := testutil.WriteZip(t, t.TempDir(), "fw.zip", []testutil.ZipEntry{
		{Name: "payload.zip", Data: inner},
	})

	h, err := archive.NewExtractor(nil).Extract(context.Background(), p)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if err := h.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := h.Close(); err != nil {
		t.Fatalf("second Close must be a no-op, got %v", err)
	}

	entries, err := os.ReadDir(scratch)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("workspace not removed, %d entries remain", len(entries))
	}
}
