package archive

import "fmt"

// ArchiveOpenError means the top-level container could not be opened or is
// structurally invalid. Fatal for the whole comparison run.
type ArchiveOpenError struct {
	Path string
	Err  error
}

func (e *ArchiveOpenError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("cannot open firmware container %s", e.Path)
	}
	return fmt.Sprintf("cannot open firmware container %s: %v", e.Path, e.Err)
}

func (e *ArchiveOpenError) Unwrap() error { return e.Err }

// StorageError means the extraction workspace could not be created or ran out
// of space or permissions. Fatal.
type StorageError struct {
	Path string
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("extraction workspace failure at %s: %v", e.Path, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }
