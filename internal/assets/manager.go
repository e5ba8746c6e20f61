// Package assets loads models, motions and their textures from directories
// and zip archives, with an in-memory cache.
package assets

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/Faultbox/midgard-mmd/internal/logger"
	"github.com/Faultbox/midgard-mmd/pkg/encoding"
	"github.com/Faultbox/midgard-mmd/pkg/formats"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// MissingAssetError reports a texture that a model references but that
// could not be found or decoded. It is not fatal: the slot is filled with
// a placeholder.
type MissingAssetError struct {
	Ref  string // as written in the model
	Path string // resolved lookup path
	Err  error
}

func (e *MissingAssetError) Error() string {
	return fmt.Sprintf("missing asset %q (%s): %v", e.Ref, e.Path, e.Err)
}

func (e *MissingAssetError) Unwrap() error { return e.Err }

// Texture is a resolved texture slot of a model.
type Texture struct {
	Ref         string
	Path        string
	Info        TextureInfo
	Data        []byte
	Placeholder bool // true when the file is missing or unreadable
}

// Character is a model with its motion and textures.
type Character struct {
	ModelPath string
	Model     *formats.PMX
	Motion    *formats.VMD // nil when no motion was requested
	Textures  []Texture    // parallel to Model.Textures
	Missing   []*MissingAssetError
}

// Manager handles asset loading from a stack of sources.
type Manager struct {
	sources []Source
	cache   *Cache
	mu      sync.RWMutex
}

// NewManager creates a new asset manager whose cache holds at most
// cacheLimit bytes (0 for unbounded).
func NewManager(cacheLimit int64) *Manager {
	return &Manager{
		cache: NewCache(cacheLimit),
	}
}

// AddSource adds a source to the manager.
// Sources are searched in reverse order (last added = highest priority).
func (m *Manager) AddSource(s Source) {
	m.mu.Lock()
	m.sources = append(m.sources, s)
	m.mu.Unlock()
}

// AddPath opens a directory or zip archive and adds it as a source.
func (m *Manager) AddPath(path string) error {
	s, err := OpenSource(path)
	if err != nil {
		return fmt.Errorf("opening source %s: %w", path, err)
	}
	m.AddSource(s)
	logger.Debug("asset source added", zap.String("path", path))
	return nil
}

// Load loads a file from the sources.
func (m *Manager) Load(ctx context.Context, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	key := encoding.NormalizePath(path)
	if data, ok := m.cache.Get(key); ok {
		return data, nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	for i := len(m.sources) - 1; i >= 0; i-- {
		data, err := m.sources[i].Read(path)
		if err == nil {
			m.cache.Set(key, data)
			return data, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
}

// List returns the normalized paths of every file across all sources,
// sorted and without duplicates.
func (m *Manager) List() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []string
	for _, s := range m.sources {
		out = append(out, s.List()...)
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// LoadModel loads and decodes a PMX model.
func (m *Manager) LoadModel(ctx context.Context, path string) (*formats.PMX, error) {
	data, err := m.Load(ctx, path)
	if err != nil {
		return nil, err
	}
	model, err := formats.ParsePMX(data)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	return model, nil
}

// LoadMotion loads and decodes a VMD motion.
func (m *Manager) LoadMotion(ctx context.Context, path string) (*formats.VMD, error) {
	data, err := m.Load(ctx, path)
	if err != nil {
		return nil, err
	}
	motion, err := formats.ParseVMD(data)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	return motion, nil
}

// ResolveTextures looks up every texture the model references, relative
// to the model's directory. Missing or undecodable textures become
// placeholders and are reported, never returned as a failure; only
// context cancellation stops resolution.
func (m *Manager) ResolveTextures(ctx context.Context, modelPath string, model *formats.PMX) ([]Texture, []*MissingAssetError, error) {
	textures := make([]Texture, len(model.Textures))
	var missing []*MissingAssetError

	for i, ref := range model.Textures {
		t := &textures[i]
		t.Ref = ref
		t.Path = TexturePath(modelPath, ref)

		data, err := m.Load(ctx, t.Path)
		if err == nil {
			t.Info, err = ProbeTexture(data)
			t.Data = data
		}
		if ctx.Err() != nil {
			return nil, nil, ctx.Err()
		}
		if err != nil {
			t.Placeholder = true
			t.Data = nil
			miss := &MissingAssetError{Ref: ref, Path: t.Path, Err: err}
			missing = append(missing, miss)
			logger.Warn("texture unavailable, using placeholder",
				zap.String("model", modelPath),
				zap.String("texture", ref),
				zap.Error(err))
		}
	}
	return textures, missing, nil
}

// LoadCharacter loads a model and, when motionPath is not empty, a motion.
// Both are fetched and decoded concurrently; textures are resolved once
// the model is available.
func (m *Manager) LoadCharacter(ctx context.Context, modelPath, motionPath string) (*Character, error) {
	c := &Character{ModelPath: modelPath}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		model, err := m.LoadModel(gctx, modelPath)
		if err != nil {
			return err
		}
		c.Model = model
		return nil
	})
	if motionPath != "" {
		g.Go(func() error {
			motion, err := m.LoadMotion(gctx, motionPath)
			if err != nil {
				return err
			}
			c.Motion = motion
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	textures, missing, err := m.ResolveTextures(ctx, modelPath, c.Model)
	if err != nil {
		return nil, err
	}
	c.Textures, c.Missing = textures, missing

	logger.Info("character loaded",
		zap.String("model", c.Model.Name),
		zap.Int("bones", len(c.Model.Bones)),
		zap.Int("morphs", len(c.Model.Morphs)),
		zap.Int("textures", len(textures)),
		zap.Int("missing", len(missing)))
	return c, nil
}

// CacheStats returns cache hit and miss counts.
func (m *Manager) CacheStats() (hits, misses int) {
	return m.cache.Stats()
}

// Close closes all sources.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error
	for _, s := range m.sources {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	m.sources = nil
	m.cache.Clear()
	return errors.Join(errs...)
}
