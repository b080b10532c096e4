package artifact

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"graderelay/pkg/utils"
)

// Store manages the zip artifacts handed to workers: it allocates unique
// paths under one directory and removes them once their result has been
// processed.
type Store struct {
	BaseDir string
}

// NewStore creates a store rooted at baseDir.
func NewStore(baseDir string) *Store {
	return &Store{BaseDir: baseDir}
}

// EnsureDir creates the artifact directory if it is missing.
func (s *Store) EnsureDir() error {
	return os.MkdirAll(s.BaseDir, 0o755)
}

// Allocate reserves a fresh artifact path for a push. The name embeds a hash
// of the project and SHA so operators can tell artifacts apart, plus a UUID
// so concurrent jobs for the same push never collide.
func (s *Store) Allocate(project, sha string) (string, error) {
	if err := s.EnsureDir(); err != nil {
		return "", err
	}
	name := fmt.Sprintf("%s-%s.zip", utils.HashString(project+"@"+sha)[:12], uuid.NewString())
	return filepath.Join(s.BaseDir, name), nil
}

// Remove deletes an artifact file. Paths outside the store are refused;
// the only paths that reach here come back through opaque tokens, and a
// token is not a license to delete arbitrary files.
func (s *Store) Remove(path string) error {
	if filepath.Dir(filepath.Clean(path)) != filepath.Clean(s.BaseDir) {
		return fmt.Errorf("refusing to remove %s: outside %s", path, s.BaseDir)
	}
	return os.Remove(path)
}
