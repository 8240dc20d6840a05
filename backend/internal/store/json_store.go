package store

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/hack-pad/hackpadfs"
	osfs "github.com/hack-pad/hackpadfs/os"
	"go.uber.org/zap"

	"emergent-kg/backend/internal/graph"
	apperrors "emergent-kg/backend/pkg/errors"
	"emergent-kg/backend/pkg/logger"
)

// JSONStore keeps the document as one JSON file. Every Save rewrites the
// whole file through a temp file and a rename.
type JSONStore struct {
	fs     hackpadfs.FS
	path   string
	mu     sync.Mutex
	logger *zap.Logger
}

// NewJSONStore serves path inside fs. Paths follow io/fs rules: slash
// separated, no leading slash.
func NewJSONStore(fs hackpadfs.FS, path string) *JSONStore {
	return &JSONStore{
		fs:     fs,
		path:   path,
		logger: logger.Get(),
	}
}

// OpenJSONFile serves a file on the host filesystem.
func OpenJSONFile(path string) (*JSONStore, error) {
	fs, rel, err := hostFS(path)
	if err != nil {
		return nil, err
	}
	return NewJSONStore(fs, rel), nil
}

// hostFS maps a host path onto the hackpadfs os filesystem.
func hostFS(path string) (hackpadfs.FS, string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, "", fmt.Errorf("failed to resolve %s: %w", path, err)
	}
	fs := osfs.NewFS()
	rel, err := fs.FromOSPath(abs)
	if err != nil {
		return nil, "", fmt.Errorf("failed to map %s: %w", abs, err)
	}
	return fs, rel, nil
}

// Path is the file name inside the store filesystem.
func (s *JSONStore) Path() string { return s.path }

// Load reads and decodes the document. A missing file is a load error, not
// an empty graph.
func (s *JSONStore) Load(ctx context.Context) (*graph.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.NewContextCancelled("load graph", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read()
}

// Save encodes doc and swaps it into place.
func (s *JSONStore) Save(ctx context.Context, doc *graph.Document) error {
	if err := ctx.Err(); err != nil {
		return apperrors.NewContextCancelled("save graph", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.write(doc)
}

// Update loads the document, hands it to fn and saves what fn returns
// without releasing the file lock in between.
func (s *JSONStore) Update(ctx context.Context, fn func(doc *graph.Document) (*graph.Document, error)) error {
	if err := ctx.Err(); err != nil {
		return apperrors.NewContextCancelled("update graph", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read()
	if err != nil {
		return err
	}
	next, err := fn(doc)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return apperrors.NewContextCancelled("update graph", err)
	}
	return s.write(next)
}

func (s *JSONStore) read() (*graph.Document, error) {
	data, err := hackpadfs.ReadFile(s.fs, s.path)
	if err != nil {
		if errors.Is(err, hackpadfs.ErrNotExist) {
			return nil, apperrors.NewLoadFailed(s.path, "file does not exist", err)
		}
		return nil, apperrors.NewLoadFailed(s.path, "read failed", err)
	}
	return graph.Decode(data, s.path)
}

func (s *JSONStore) write(doc *graph.Document) error {
	data, err := graph.Encode(doc)
	if err != nil {
		return apperrors.NewStoreWriteFailed(s.path, err)
	}
	if err := writeAtomic(s.fs, s.path, data); err != nil {
		return apperrors.NewStoreWriteFailed(s.path, err)
	}

	s.logger.Debug("graph saved",
		zap.String("path", s.path),
		zap.Int("nodes", len(doc.Nodes)),
		zap.Int("edges", len(doc.Edges)),
	)
	return nil
}

// writeAtomic writes data beside path and renames it over path. Filesystems
// without rename support get a direct full-file write.
func writeAtomic(fs hackpadfs.FS, path string, data []byte) error {
	tmp := path + ".tmp"
	if err := hackpadfs.WriteFullFile(fs, tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	err := hackpadfs.Rename(fs, tmp, path)
	if errors.Is(err, hackpadfs.ErrNotImplemented) {
		_ = hackpadfs.Remove(fs, tmp)
		return hackpadfs.WriteFullFile(fs, path, data, 0o644)
	}
	if err != nil {
		_ = hackpadfs.Remove(fs, tmp)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}
