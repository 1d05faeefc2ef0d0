package models

import "sort"

// -- File Entries & Trees --

// EntryKind describes what an extracted path points at.
type EntryKind string

const (
	// EntryRegular is an ordinary file with hashable content.
	EntryRegular EntryKind = "regular"
	// EntrySymlink records the link target string; the target is never followed.
	EntrySymlink EntryKind = "symlink"
	// EntryNestedArchive marks a member that was itself a container and was
	// recursively flattened under its own path prefix.
	EntryNestedArchive EntryKind = "nested-archive"
	// EntryUnreadable marks a member that failed to extract or hash. The rest
	// of the tree is still usable; the failure shows up in Diagnostics.
	EntryUnreadable EntryKind = "unreadable"
)

// FileEntry is one extracted member of a firmware container.
// Immutable after extraction. Path is normalized to forward slashes with the
// nested-archive prefix already applied.
type FileEntry struct {
	Path       string    `json:"path"`
	Size       int64     `json:"size"`
	Digest     string    `json:"digest,omitempty"`
	Kind       EntryKind `json:"kind"`
	LinkTarget string    `json:"link_target,omitempty"`
}

// FirmwareTree is the flat path -> entry mapping built from one container.
// No two entries share a path; the first occurrence of a duplicate path wins
// and the duplicate is recorded as a diagnostic.
type FirmwareTree struct {
	Container   string               `json:"container"`
	Digest      string               `json:"digest,omitempty"`
	Entries     map[string]FileEntry `json:"entries"`
	Info        *FirmwareInfo        `json:"info,omitempty"`
	Diagnostics []Diagnostic         `json:"diagnostics,omitempty"`
}

// SortedPaths returns the entry paths in byte-wise lexicographic order.
// Extraction order is nondeterministic under the worker pool, so every
// consumer that needs stable output goes through this.
func (t *FirmwareTree) SortedPaths() []string {
	paths := make([]string, 0, len(t.Entries))
	for p := range t.Entries {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// FirmwareInfo is metadata lifted from the container's build manifest.
type FirmwareInfo struct {
	ProductVersion string   `json:"product_version,omitempty"`
	ProductBuild   string   `json:"product_build,omitempty"`
	DeviceClasses  []string `json:"device_classes,omitempty"`
}

// Diagnostic is a non-fatal per-entry failure note. These accumulate on the
// result instead of aborting the run.
type Diagnostic struct {
	Path    string `json:"path"`
	Stage   string `json:"stage"`
	Message string `json:"message"`
}

// -- Change Records --

// ChangeKind partitions the union of paths across the two trees.
type ChangeKind string

const (
	ChangeAdded     ChangeKind = "added"
	ChangeRemoved   ChangeKind = "removed"
	ChangeModified  ChangeKind = "modified"
	ChangeUnchanged ChangeKind = "unchanged"
)

// Category tags the subsystem a change belongs to.
type Category string

const (
	CategorySecurity     Category = "security"
	CategoryBootChain    Category = "boot-chain"
	CategoryKernel       Category = "kernel"
	CategoryPerformance  Category = "performance"
	CategorySystem       Category = "system-component"
	CategoryFeature      Category = "feature"
	CategoryUnclassified Category = "unclassified"
)

// Severity ranks a change's urgency, independent of its category.
type Severity string

const (
	SeverityCritical      Severity = "critical"
	SeverityHigh          Severity = "high"
	SeverityMedium        Severity = "medium"
	SeverityLow           Severity = "low"
	SeverityInformational Severity = "informational"
)

// Rank maps severities onto a total order. Higher is more urgent.
// Unknown severities rank below informational so a corrupt rule table can
// never promote a change.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 5
	case SeverityHigh:
		return 4
	case SeverityMedium:
		return 3
	case SeverityLow:
		return 2
	case SeverityInformational:
		return 1
	}
	return 0
}

// ChangeRecord describes one path's before/after state and classification.
// Invariants: Added has no Old, Removed has no New, Modified and Unchanged
// carry both with differing/equal digests respectively.
type ChangeRecord struct {
	Path     string     `json:"path"`
	Kind     ChangeKind `json:"kind"`
	Old      *FileEntry `json:"old,omitempty"`
	New      *FileEntry `json:"new,omitempty"`
	Category Category   `json:"category"`
	Severity Severity   `json:"severity"`
	Rule     string     `json:"rule,omitempty"`
}

// SizeDelta reports the byte growth of a change. Added counts the full new
// size, Removed the full negative old size.
func (c *ChangeRecord) SizeDelta() int64 {
	var oldSize, newSize int64
	if c.Old != nil {
		oldSize = c.Old.Size
	}
	if c.New != nil {
		newSize = c.New.Size
	}
	return newSize - oldSize
}

// -- Analysis Result --

// Verdict is the single overall priority the assessor produces.
type Verdict string

const (
	// VerdictUrgent means at least one critical-severity change exists.
	VerdictUrgent Verdict = "urgent"
	// VerdictMedium means at least one high-severity change exists and no
	// critical ones.
	VerdictMedium Verdict = "medium"
	// VerdictLow covers everything else, including an empty delta.
	VerdictLow Verdict = "low"
)

// Summary aggregates the classified records.
type Summary struct {
	TotalPaths int `json:"total_paths"`
	Added      int `json:"added"`
	Removed    int `json:"removed"`
	Modified   int `json:"modified"`
	Unchanged  int `json:"unchanged"`

	// ByCategory and BySeverity count only actual changes; unchanged records
	// are excluded so an untouched kernelcache cannot inflate the numbers.
	ByCategory map[Category]int              `json:"by_category,omitempty"`
	BySeverity map[Severity]int              `json:"by_severity,omitempty"`
	ByPair     map[Category]map[Severity]int `json:"by_pair,omitempty"`

	// Degraded counts entries that could not be fully analyzed on either side.
	Degraded int     `json:"degraded,omitempty"`
	Verdict  Verdict `json:"verdict"`
}

// AnalysisResult is the sole object handed to the presentation layer.
// Immutable once produced; Records are ordered by path, byte-wise.
type AnalysisResult struct {
	OldContainer string        `json:"old_container"`
	NewContainer string        `json:"new_container"`
	OldInfo      *FirmwareInfo `json:"old_info,omitempty"`
	NewInfo      *FirmwareInfo `json:"new_info,omitempty"`

	Records     []ChangeRecord `json:"records"`
	Summary     Summary        `json:"summary"`
	Diagnostics []Diagnostic   `json:"diagnostics,omitempty"`
}

// Changes returns the records that are not Unchanged, preserving order.
func (r *AnalysisResult) Changes() []ChangeRecord {
	out := make([]ChangeRecord, 0, len(r.Records))
	for _, rec := range r.Records {
		if rec.Kind != ChangeUnchanged {
			out = append(out, rec)
		}
	}
	return out
}
