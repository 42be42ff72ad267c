// Package local implements the artifact store on a (possibly in-memory) filesystem.
package local

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/JakeFAU/usn-result-scraper/internal/artifact"
	"github.com/JakeFAU/usn-result-scraper/internal/portal"
)

// Config captures the parameters for the filesystem store.
type Config struct {
	// RootDir is the directory all year folders are created under.
	RootDir string `mapstructure:"root_dir" yaml:"root_dir"`
}

// Store writes artifacts below RootDir and never overwrites an existing file.
type Store struct {
	// mu serializes exclusive creation; not every afero.Fs makes O_EXCL atomic.
	mu     sync.Mutex
	fs     afero.Fs
	root   string
	logger *zap.Logger
}

// New creates the root directory if needed and returns a Store.
func New(fsys afero.Fs, cfg Config, logger *zap.Logger) (*Store, error) {
	if strings.TrimSpace(cfg.RootDir) == "" {
		return nil, errors.New("root directory is required")
	}
	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	info, err := fsys.Stat(cfg.RootDir)
	switch {
	case err == nil && !info.IsDir():
		return nil, fmt.Errorf("root path %s is not a directory", cfg.RootDir)
	case err != nil && !os.IsNotExist(err):
		return nil, fmt.Errorf("stat root directory: %w", err)
	case err != nil:
		if mkErr := fsys.MkdirAll(cfg.RootDir, 0o750); mkErr != nil {
			return nil, fmt.Errorf("create root directory: %w", mkErr)
		}
	}
	return &Store{fs: fsys, root: cfg.RootDir, logger: logger}, nil
}

// Root returns the configured root directory.
func (s *Store) Root() string {
	return s.root
}

// Save writes res.PDF at its deterministic path. If the file already exists it is
// left untouched and its path is returned with Created=false.
func (s *Store) Save(ctx context.Context, res portal.Result) (artifact.Saved, error) {
	if err := ctx.Err(); err != nil {
		return artifact.Saved{}, fmt.Errorf("context canceled: %w", err)
	}
	rel, err := artifact.RelativePath(res)
	if err != nil {
		return artifact.Saved{}, err
	}
	target := filepath.Join(s.root, filepath.FromSlash(rel))
	if err := s.fs.MkdirAll(filepath.Dir(target), 0o750); err != nil {
		return artifact.Saved{}, fmt.Errorf("create branch folder for %s: %w", target, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	f, err := s.fs.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if errors.Is(err, os.ErrExist) {
		s.logger.Info("artifact already exists, skipping", zap.String("path", target))
		return artifact.Saved{Path: target}, nil
	}
	if err != nil {
		return artifact.Saved{}, fmt.Errorf("create %s: %w", target, err)
	}
	if _, err := f.Write(res.PDF); err != nil {
		_ = f.Close()
		s.discard(target)
		return artifact.Saved{}, fmt.Errorf("write %s: %w", target, err)
	}
	if err := f.Close(); err != nil {
		s.discard(target)
		return artifact.Saved{}, fmt.Errorf("close %s: %w", target, err)
	}
	s.logger.Info("artifact saved", zap.String("path", target), zap.String("usn", res.USN))
	return artifact.Saved{Path: target, Created: true}, nil
}

// discard removes a partially written file so a later run can retry it.
func (s *Store) discard(target string) {
	if err := s.fs.Remove(target); err != nil && !os.IsNotExist(err) {
		s.logger.Warn("failed to remove partial artifact", zap.String("path", target), zap.Error(err))
	}
}

// List walks the root and returns every parseable artifact, sorted by path.
func (s *Store) List(ctx context.Context) ([]artifact.Artifact, error) {
	exists, err := afero.DirExists(s.fs, s.root)
	if err != nil {
		return nil, fmt.Errorf("stat root directory: %w", err)
	}
	out := []artifact.Artifact{}
	if !exists {
		return out, nil
	}
	walkErr := afero.Walk(s.fs, s.root, func(p string, info fs.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if info.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(s.root, p)
		if relErr != nil {
			return nil
		}
		if a, ok := artifact.Describe(filepath.ToSlash(rel), info.Size(), info.ModTime()); ok {
			out = append(out, a)
		}
		return nil
	})
	if walkErr != nil {
		return nil, fmt.Errorf("walk %s: %w", s.root, walkErr)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}
