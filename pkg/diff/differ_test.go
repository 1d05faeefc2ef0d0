package diff_test

import (
	"sort"
	"testing"

	"github.com/TermuxHackz/Enhanced-IPSW-Firmware-Analysis-Tool/pkg/diff"
	"github.com/TermuxHackz/Enhanced-IPSW-Firmware-Analysis-Tool/pkg/models"
)

func tree(entries ...models.FileEntry) *models.FirmwareTree {
	t := &models.FirmwareTree{Entries: make(map[string]models.FileEntry)}
	for _, e := range entries {
		t.Entries[e.Path] = e
	}
	return t
}

func regular(path, digest string, size int64) models.FileEntry {
	return models.FileEntry{Path: path, Digest: digest, Size: size, Kind: models.EntryRegular}
}

func TestTreesPartition(t *testing.T) {
	t.Parallel()

	oldTree := tree(
		regular("kept.bin", "aaa", 10),
		regular("changed.bin", "bbb", 20),
		regular("gone.bin", "ccc", 30),
	)
	newTree := tree(
		regular("kept.bin", "aaa", 10),
		regular("changed.bin", "ddd", 20),
		regular("fresh.bin", "eee", 40),
	)

	records := diff.Trees(oldTree, newTree)
	if len(records) != 4 {
		t.Fatalf("expected 4 records, got %d", len(records))
	}

	byPath := make(map[string]models.ChangeRecord)
	for _, r := range records {
		byPath[r.Path] = r
	}

	if byPath["kept.bin"].Kind != models.ChangeUnchanged {
		t.Errorf("kept.bin = %s, want unchanged", byPath["kept.bin"].Kind)
	}
	if byPath["changed.bin"].Kind != models.ChangeModified {
		t.Errorf("changed.bin = %s, want modified", byPath["changed.bin"].Kind)
	}
	if byPath["gone.bin"].Kind != models.ChangeRemoved {
		t.Errorf("gone.bin = %s, want removed", byPath["gone.bin"].Kind)
	}
	if byPath["fresh.bin"].Kind != models.ChangeAdded {
		t.Errorf("fresh.bin = %s, want added", byPath["fresh.bin"].Kind)
	}

	// Field invariants per kind.
	if r := byPath["gone.bin"]; r.Old == nil || r.New != nil {
		t.Error("removed record must carry only the old entry")
	}
	if r := byPath["fresh.bin"]; r.New == nil || r.Old != nil {
		t.Error("added record must carry only the new entry")
	}
	if r := byPath["changed.bin"]; r.Old == nil || r.New == nil {
		t.Error("modified record must carry both entries")
	}
}

func TestTreesOrderedByPath(t *testing.T) {
	t.Parallel()

	oldTree := tree(regular("z.bin", "1", 1), regular("a.bin", "2", 1))
	newTree := tree(regular("m.bin", "3", 1), regular("a.bin", "2", 1))

	records := diff.Trees(oldTree, newTree)
	paths := make([]string, len(records))
	for i, r := range records {
		paths[i] = r.Path
	}
	if !sort.StringsAreSorted(paths) {
		t.Errorf("records not path-ordered: %v", paths)
	}
}

func TestTreesDigestIsAuthoritative(t *testing.T) {
	t.Parallel()

	// Same size, different digest: still modified.
	oldTree := tree(regular("f.bin", "aaa", 100))
	newTree := tree(regular("f.bin", "bbb", 100))

	records := diff.Trees(oldTree, newTree)
	if records[0].Kind != models.ChangeModified {
		t.Errorf("equal sizes with differing digests must be modified, got %s", records[0].Kind)
	}
}

func TestTreesSymlinksCompareByTarget(t *testing.T) {
	t.Parallel()

	link := func(target string) models.FileEntry {
		return models.FileEntry{Path: "lib/cur", Kind: models.EntrySymlink, LinkTarget: target}
	}

	same := diff.Trees(tree(link("v1")), tree(link("v1")))
	if same[0].Kind != models.ChangeUnchanged {
		t.Errorf("identical symlinks = %s, want unchanged", same[0].Kind)
	}

	retargeted := diff.Trees(tree(link("v1")), tree(link("v2")))
	if retargeted[0].Kind != models.ChangeModified {
		t.Errorf("retargeted symlink = %s, want modified", retargeted[0].Kind)
	}

	// A path that flips between symlink and regular file is a modification
	// even if the digest fields happen to collide as empty strings.
	flipped := diff.Trees(tree(link("v1")), tree(regular("lib/cur", "", 2)))
	if flipped[0].Kind != models.ChangeModified {
		t.Errorf("kind flip = %s, want modified", flipped[0].Kind)
	}
}

func TestTreesUnreadableNeverEqual(t *testing.T) {
	t.Parallel()

	bad := models.FileEntry{Path: "f.bin", Kind: models.EntryUnreadable}
	good := regular("f.bin", "aaa", 10)

	for _, pair := range [][2]*models.FirmwareTree{
		{tree(bad), tree(good)},
		{tree(good), tree(bad)},
		{tree(bad), tree(bad)},
	} {
		records := diff.Trees(pair[0], pair[1])
		if records[0].Kind != models.ChangeModified {
			t.Errorf("unreadable entry compared equal: %s", records[0].Kind)
		}
	}
}

func TestTreesEmptyBothSides(t *testing.T) {
	t.Parallel()

	if records := diff.Trees(tree(), tree()); len(records) != 0 {
		t.Errorf("two empty trees produced %d records", len(records))
	}
}
