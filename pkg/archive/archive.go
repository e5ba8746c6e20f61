// Package archive provides read access to zip-packed model distributions.
// Entry names are matched case-insensitively with either path separator,
// as model files reference textures with Windows paths.
package archive

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"slices"

	"github.com/Faultbox/midgard-mmd/pkg/encoding"
)

// ErrNotFound is returned when an entry does not exist.
var ErrNotFound = errors.New("archive: entry not found")

// Archive represents an opened zip archive.
type Archive struct {
	zr       *zip.ReadCloser
	fileList map[string]*Entry
}

// Entry describes a file in the archive.
type Entry struct {
	Name             string // normalized
	CompressedSize   uint64
	UncompressedSize uint64
	Method           uint16

	file *zip.File
}

// Open opens an archive for reading.
func Open(path string) (*Archive, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("opening archive: %w", err)
	}

	a := &Archive{
		zr:       zr,
		fileList: make(map[string]*Entry, len(zr.File)),
	}
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		name := encoding.NormalizePath(entryName(f))
		a.fileList[name] = &Entry{
			Name:             name,
			CompressedSize:   f.CompressedSize64,
			UncompressedSize: f.UncompressedSize64,
			Method:           f.Method,
			file:             f,
		}
	}
	return a, nil
}

// entryName decodes names written by Japanese tools, which store Shift-JIS
// without setting the UTF-8 flag.
func entryName(f *zip.File) string {
	if f.NonUTF8 {
		return encoding.Decode(encoding.ShiftJIS, []byte(f.Name))
	}
	return f.Name
}

// Close closes the archive.
func (a *Archive) Close() error {
	if a.zr != nil {
		return a.zr.Close()
	}
	return nil
}

// List returns all file paths in the archive, sorted.
func (a *Archive) List() []string {
	result := make([]string, 0, len(a.fileList))
	for path := range a.fileList {
		result = append(result, path)
	}
	slices.Sort(result)
	return result
}

// Contains checks if a file exists.
func (a *Archive) Contains(path string) bool {
	_, ok := a.fileList[encoding.NormalizePath(path)]
	return ok
}

// Stat returns the entry for path.
func (a *Archive) Stat(path string) (*Entry, bool) {
	e, ok := a.fileList[encoding.NormalizePath(path)]
	return e, ok
}

// Read reads and decompresses a file from the archive.
func (a *Archive) Read(path string) ([]byte, error) {
	entry, ok := a.fileList[encoding.NormalizePath(path)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}

	rc, err := entry.file.Open()
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer rc.Close()

	result, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return result, nil
}
