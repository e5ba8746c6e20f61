package assets

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/Faultbox/midgard-mmd/pkg/archive"
	"github.com/Faultbox/midgard-mmd/pkg/encoding"
)

// ErrNotFound is returned when no source holds the requested path.
var ErrNotFound = errors.New("asset not found")

// Source is a read-only tree of asset files addressed by normalized path.
type Source interface {
	Read(path string) ([]byte, error)
	Contains(path string) bool
	List() []string
	Close() error
}

// DirSource serves files below a directory. Lookups are case-insensitive:
// the tree is indexed once on first use.
type DirSource struct {
	root string

	once  sync.Once
	index map[string]string // normalized -> relative on-disk path
	err   error
}

// NewDirSource returns a source rooted at dir.
func NewDirSource(dir string) *DirSource {
	return &DirSource{root: dir}
}

func (d *DirSource) scan() {
	d.index = make(map[string]string)
	d.err = filepath.WalkDir(d.root, func(path string, e fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if e.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(d.root, path)
		if err != nil {
			return err
		}
		d.index[encoding.NormalizePath(filepath.ToSlash(rel))] = rel
		return nil
	})
}

func (d *DirSource) lookup(path string) (string, bool) {
	d.once.Do(d.scan)
	rel, ok := d.index[encoding.NormalizePath(path)]
	return rel, ok
}

// Read reads a file from the directory.
func (d *DirSource) Read(path string) ([]byte, error) {
	rel, ok := d.lookup(path)
	if !ok {
		if d.err != nil {
			return nil, fmt.Errorf("scanning %s: %w", d.root, d.err)
		}
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	return os.ReadFile(filepath.Join(d.root, rel))
}

// Contains checks if a file exists.
func (d *DirSource) Contains(path string) bool {
	_, ok := d.lookup(path)
	return ok
}

// List returns all normalized file paths, sorted.
func (d *DirSource) List() []string {
	d.once.Do(d.scan)
	out := make([]string, 0, len(d.index))
	for p := range d.index {
		out = append(out, p)
	}
	slices.Sort(out)
	return out
}

// Close is a no-op.
func (d *DirSource) Close() error { return nil }

// MapSource serves files held in memory.
type MapSource map[string][]byte

// Read returns the stored bytes for path.
func (m MapSource) Read(path string) ([]byte, error) {
	want := encoding.NormalizePath(path)
	for k, v := range m {
		if encoding.NormalizePath(k) == want {
			return v, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
}

// Contains checks if a file exists.
func (m MapSource) Contains(path string) bool {
	_, err := m.Read(path)
	return err == nil
}

// List returns all normalized file paths, sorted.
func (m MapSource) List() []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, encoding.NormalizePath(k))
	}
	slices.Sort(out)
	return out
}

// Close is a no-op.
func (m MapSource) Close() error { return nil }

// archiveSource adapts archive.Archive to Source.
type archiveSource struct {
	*archive.Archive
}

func (a archiveSource) Read(path string) ([]byte, error) {
	data, err := a.Archive.Read(path)
	if errors.Is(err, archive.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	return data, err
}

// OpenSource opens path as a zip archive when it ends in .zip, and as a
// directory otherwise.
func OpenSource(path string) (Source, error) {
	if strings.EqualFold(filepath.Ext(path), ".zip") {
		a, err := archive.Open(path)
		if err != nil {
			return nil, err
		}
		return archiveSource{a}, nil
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s: not a directory or zip archive", path)
	}
	return NewDirSource(path), nil
}
