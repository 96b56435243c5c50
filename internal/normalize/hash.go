package normalize

import (
	"crypto/sha256"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
)

// FileHash computes the hex-encoded SHA-256 of the file at path.
func FileHash(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open file for hash: %w", err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hash file: %w", err)
	}
	return fmt.Sprintf("%x", h.Sum(nil)), nil
}

// FilesHash computes a single digest over several files. Files are ordered by
// base name and each contributes its name and content hash, so the result
// identifies a dataset regardless of the order paths are passed in.
func FilesHash(paths []string) (string, error) {
	sorted := append([]string(nil), paths...)
	sort.Slice(sorted, func(i, j int) bool {
		return filepath.Base(sorted[i]) < filepath.Base(sorted[j])
	})

	h := sha256.New()
	for _, p := range sorted {
		fh, err := FileHash(p)
		if err != nil {
			return "", err
		}
		h.Write([]byte(filepath.Base(p)))
		h.Write([]byte{0})
		h.Write([]byte(fh))
		h.Write([]byte{0})
	}
	return fmt.Sprintf("%x", h.Sum(nil)), nil
}
