package cli

import "os"

// FileSystem abstracts the few OS calls input validation needs, to enable
// hermetic testing.
type FileSystem interface {
	Stat(name string) (os.FileInfo, error)
}

// RealFileSystem backs FileSystem with the process filesystem.
type RealFileSystem struct{}

func (RealFileSystem) Stat(name string) (os.FileInfo, error) { return os.Stat(name) }
