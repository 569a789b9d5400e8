// Package sandbox confines tool output paths to a workspace directory.
package sandbox

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var (
	// ErrPathEscape indicates a path resolves outside the workspace root.
	ErrPathEscape = errors.New("path escapes workspace")

	// ErrEmptyPath indicates an empty path was provided.
	ErrEmptyPath = errors.New("path cannot be empty")
)

// Sandbox resolves relative paths under a fixed root directory.
type Sandbox struct {
	root string
}

// New creates a sandbox rooted at root. The root is made absolute but does
// not need to exist yet.
func New(root string) (*Sandbox, error) {
	if root == "" {
		return nil, fmt.Errorf("sandbox root: %w", ErrEmptyPath)
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve sandbox root: %w", err)
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		abs = resolved
	}
	return &Sandbox{root: filepath.Clean(abs)}, nil
}

// Root returns the absolute workspace root.
func (s *Sandbox) Root() string { return s.root }

// Resolve returns the absolute path of rel under the root. Absolute input,
// lexical escapes, and escapes through an existing symlinked ancestor all
// fail with ErrPathEscape.
func (s *Sandbox) Resolve(rel string) (string, error) {
	if rel == "" {
		return "", ErrEmptyPath
	}
	if filepath.IsAbs(rel) || strings.HasPrefix(rel, "/") || filepath.VolumeName(rel) != "" {
		return "", fmt.Errorf("%w: absolute path %q", ErrPathEscape, rel)
	}

	full := filepath.Join(s.root, rel)
	if !s.contains(full) {
		return "", fmt.Errorf("%w: %q", ErrPathEscape, rel)
	}

	// The deepest existing ancestor must also stay inside once symlinks
	// are followed.
	existing := full
	for existing != s.root {
		if _, err := os.Lstat(existing); err == nil {
			break
		}
		existing = filepath.Dir(existing)
	}
	if existing == s.root {
		return full, nil
	}
	resolved, err := filepath.EvalSymlinks(existing)
	if err != nil {
		return "", fmt.Errorf("failed to resolve path: %w", err)
	}
	if !s.contains(resolved) {
		return "", fmt.Errorf("%w: %q resolves through a link", ErrPathEscape, rel)
	}

	return full, nil
}

func (s *Sandbox) contains(path string) bool {
	path = filepath.Clean(path)
	if path == s.root {
		return true
	}
	return strings.HasPrefix(path, s.root+string(filepath.Separator))
}
