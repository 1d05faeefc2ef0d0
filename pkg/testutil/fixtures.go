// Package testutil builds firmware container fixtures for tests.
// Exported for use in external test packages.
package testutil

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"compress/gzip"
	"hash/crc32"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
)

// ZipEntry describes one member for the zip builders.
type ZipEntry struct {
	Name string
	Data []byte
	// Mode zero means a regular 0644 file. Set fs.ModeSymlink to record a
	// symlink whose Data is the target string.
	Mode fs.FileMode
	// BadCRC writes the member with a deliberately wrong checksum so reads
	// fail mid-stream, simulating a corrupt member inside a valid container.
	BadCRC bool
}

// BuildZipBytes assembles an in-memory zip container.
func BuildZipBytes(t *testing.T, entries []ZipEntry) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	for _, e := range entries {
		hdr := &zip.FileHeader{Name: e.Name, Method: zip.Store}
		mode := e.Mode
		if mode == 0 {
			mode = 0644
		}
		hdr.SetMode(mode)

		if e.BadCRC {
			// CreateRaw trusts the caller's checksum, which lets us plant a
			// member that passes structural parsing but fails on read.
			hdr.CRC32 = crc32.ChecksumIEEE(e.Data) ^ 0xdeadbeef
			hdr.CompressedSize64 = uint64(len(e.Data))
			hdr.UncompressedSize64 = uint64(len(e.Data))
			w, err := zw.CreateRaw(hdr)
			if err != nil {
				t.Fatalf("CreateRaw(%s): %v", e.Name, err)
			}
			if _, err := w.Write(e.Data); err != nil {
				t.Fatalf("write raw %s: %v", e.Name, err)
			}
			continue
		}

		w, err := zw.CreateHeader(hdr)
		if err != nil {
			t.Fatalf("CreateHeader(%s): %v", e.Name, err)
		}
		if _, err := w.Write(e.Data); err != nil {
			t.Fatalf("write %s: %v", e.Name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
	return buf.Bytes()
}

// WriteZip writes a zip container into dir and returns its path.
func WriteZip(t *testing.T, dir, name string, entries []ZipEntry) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, BuildZipBytes(t, entries), 0644); err != nil {
		t.Fatalf("write container %s: %v", p, err)
	}
	return p
}

// TarEntry describes one member for the tar.gz builder.
type TarEntry struct {
	Name     string
	Data     []byte
	Linkname string // non-empty records a symlink
}

// BuildTarGzBytes assembles an in-memory tar.gz container.
func BuildTarGzBytes(t *testing.T, entries []TarEntry) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)

	for _, e := range entries {
		hdr := &tar.Header{Name: e.Name, Mode: 0644}
		if e.Linkname != "" {
			hdr.Typeflag = tar.TypeSymlink
			hdr.Linkname = e.Linkname
		} else {
			hdr.Typeflag = tar.TypeReg
			hdr.Size = int64(len(e.Data))
		}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatalf("tar header %s: %v", e.Name, err)
		}
		if e.Linkname == "" {
			if _, err := tw.Write(e.Data); err != nil {
				t.Fatalf("tar write %s: %v", e.Name, err)
			}
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("close tar: %v", err)
	}
	if err := gz.Close(); err != nil {
		t.Fatalf("close gzip: %v", err)
	}
	return buf.Bytes()
}

// WriteTarGz writes a tar.gz container into dir and returns its path.
func WriteTarGz(t *testing.T, dir, name string, entries []TarEntry) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, BuildTarGzBytes(t, entries), 0644); err != nil {
		t.Fatalf("write container %s: %v", p, err)
	}
	return p
}
