package models

import "time"

//-- Section --

const (
	// FilePermReadWrite defines standard non-executable file permissions.
	FilePermReadWrite = 0644
	// FilePermSecure enforces strict owner-only access for workspace contents.
	FilePermSecure = 0600

	// caps how deep nested containers are opened. A malformed or adversarial
	// archive that nests beyond this is recorded as unreadable instead of
	// recursing forever.
	MaxNestedDepth = 4
	// caps the size of a single nested container copied into the workspace.
	// Anything larger is treated as an opaque blob and hashed in place.
	MaxNestedArchiveSize = 8 * 1024 * 1024 * 1024 // 8 GB
	// caps manifest plists read into memory for metadata extraction.
	MaxManifestSize = 16 * 1024 * 1024 // 16 MB
	// caps a YAML rule table file. Stops a padding bomb from blowing the heap.
	MaxRuleTableSize = 4 * 1024 * 1024 // 4 MB
	// caps symlink target strings read out of archive members.
	MaxLinkTargetSize = 4096

	// ChunkSize is the read buffer used when streaming entry content into the
	// hasher. Entries are never held in memory whole.
	ChunkSize = 256 * 1024

	// DefaultHashWorkers bounds the per-tree worker pool that extracts and
	// hashes entries. Zero in options means this value.
	DefaultHashWorkers = 4

	// sets a hard deadline for the release poll so the CLI exits within a
	// predictable window even when GitHub is unreachable.
	UpdateCheckTimeout = 15 * time.Second
	// limits the buffer for release API responses.
	MaxAPIResponseSize = 2 * 1024 * 1024 // 2 MB

	// controls how many change records the text report lists per category
	// before truncating to keep the output readable.
	MaxReportLines = 25
)

// Pipeline stage names reported through the progress callback and log events.
const (
	StageValidate = "validate"
	StageExtract  = "extract"
	StageHash     = "hash"
	StageDiff     = "diff"
	StageClassify = "classify"
	StageAssess   = "assess"
)
