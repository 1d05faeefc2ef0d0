package archive

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/TermuxHackz/Enhanced-IPSW-Firmware-Analysis-Tool/pkg/models"
)

// EmptyDigest is the SHA-256 of zero bytes. Hashing an empty file is not an
// error; it yields exactly this constant.
const EmptyDigest = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"

// Digest streams r through SHA-256 and returns the hex digest and the number
// of bytes consumed. Content is never buffered whole; peak memory is one
// chunk regardless of input size. Identical bytes always produce an identical
// digest no matter how the reader chunks them.
func Digest(r io.Reader) (string, int64, error) {
	h := sha256.New()
	n, err := io.CopyBuffer(h, r, make([]byte, models.ChunkSize))
	if err != nil {
		return "", n, fmt.Errorf("stream read failed after %d bytes: %w", n, err)
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}

// DigestFile hashes a file on disk. Used for container identity before
// extraction and by the digest cache key.
func DigestFile(path string) (string, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, fmt.Errorf("failed to open %s for hashing: %w", path, err)
	}
	defer f.Close()
	return Digest(bufio.NewReaderSize(f, models.ChunkSize))
}
