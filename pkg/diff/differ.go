// Package diff compares two firmware trees by path and digest.
package diff

import (
	"sort"

	"github.com/TermuxHackz/Enhanced-IPSW-Firmware-Analysis-Tool/pkg/models"
)

// Trees returns one change record per path in the union of both trees,
// ordered by path, byte-wise lexicographic. The digest is authoritative:
// equal sizes with differing digests are Modified, and sizes or timestamps
// never enter the comparison because firmware containers do not carry
// meaningful timestamps.
//
// Renames are not detected; a renamed file appears as one Removed plus one
// Added record. Classification fields are left zero for the classifier to
// fill.
func Trees(oldTree, newTree *models.FirmwareTree) []models.ChangeRecord {
	union := make(map[string]struct{}, len(oldTree.Entries)+len(newTree.Entries))
	for p := range oldTree.Entries {
		union[p] = struct{}{}
	}
	for p := range newTree.Entries {
		union[p] = struct{}{}
	}

	paths := make([]string, 0, len(union))
	for p := range union {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	records := make([]models.ChangeRecord, 0, len(paths))
	for _, p := range paths {
		oldEntry, inOld := oldTree.Entries[p]
		newEntry, inNew := newTree.Entries[p]

		switch {
		case inOld && inNew:
			rec := models.ChangeRecord{Path: p, Old: entryRef(oldEntry), New: entryRef(newEntry)}
			if sameContent(oldEntry, newEntry) {
				rec.Kind = models.ChangeUnchanged
			} else {
				rec.Kind = models.ChangeModified
			}
			records = append(records, rec)
		case inOld:
			records = append(records, models.ChangeRecord{
				Path: p, Kind: models.ChangeRemoved, Old: entryRef(oldEntry),
			})
		default:
			records = append(records, models.ChangeRecord{
				Path: p, Kind: models.ChangeAdded, New: entryRef(newEntry),
			})
		}
	}
	return records
}

// sameContent decides identity per entry kind. Symlinks compare by target
// string, unreadable entries never compare equal to anything (their content
// is unknown on at least one side), everything else compares by digest.
func sameContent(a, b models.FileEntry) bool {
	if a.Kind == models.EntryUnreadable || b.Kind == models.EntryUnreadable {
		return false
	}
	if a.Kind == models.EntrySymlink || b.Kind == models.EntrySymlink {
		return a.Kind == b.Kind && a.LinkTarget == b.LinkTarget
	}
	return a.Digest == b.Digest
}

// entryRef copies the entry onto the heap so records stay valid after the
// source tree is discarded with its handle.
func entryRef(e models.FileEntry) *models.FileEntry {
	c := e
	return &c
}
