// Package pathguard confines logical relative paths to a fixed root directory.
package pathguard

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// ErrPathViolation reports a path that resolves outside the configured root.
var ErrPathViolation = errors.New("path escapes root")

// Resolver maps relative paths to absolute paths inside root.
type Resolver struct {
	root string
}

// New returns a resolver for root. The root is made absolute and, when it
// exists, canonicalized so symlinked roots compare correctly.
func New(root string) (*Resolver, error) {
	if strings.TrimSpace(root) == "" {
		return nil, errors.New("pathguard: root is required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("pathguard: absolute root: %w", err)
	}
	if real, err := filepath.EvalSymlinks(abs); err == nil {
		abs = real
	} else if !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("pathguard: canonical root: %w", err)
	}
	return &Resolver{root: abs}, nil
}

// Root returns the canonical root directory.
func (r *Resolver) Root() string {
	return r.root
}

// Resolve returns the absolute path for rel. An empty path or "." is the
// root itself. Absolute input is accepted only when it already lies inside
// the root. Symlinks along the existing part of the path must not lead
// outside the root; the returned path is the lexical one, not the link
// target.
func (r *Resolver) Resolve(rel string) (string, error) {
	var target string
	switch {
	case rel == "" || rel == ".":
		target = r.root
	case filepath.IsAbs(rel):
		target = filepath.Clean(rel)
	default:
		target = filepath.Join(r.root, filepath.FromSlash(rel))
	}
	if !Within(target, r.root) {
		return "", fmt.Errorf("%w: %q", ErrPathViolation, rel)
	}
	if err := r.checkLinks(target); err != nil {
		if errors.Is(err, ErrPathViolation) {
			return "", fmt.Errorf("%w: %q", ErrPathViolation, rel)
		}
		return "", err
	}
	return target, nil
}

// Rel converts an absolute path inside the root back to a slash-separated
// relative path. The root itself is ".".
func (r *Resolver) Rel(abs string) (string, error) {
	if !Within(abs, r.root) {
		return "", fmt.Errorf("%w: %q", ErrPathViolation, abs)
	}
	rel, err := filepath.Rel(r.root, abs)
	if err != nil {
		return "", err
	}
	return filepath.ToSlash(rel), nil
}

// checkLinks evaluates the deepest existing ancestor of target and verifies
// the real location still sits under the root.
func (r *Resolver) checkLinks(target string) error {
	dir := target
	for Within(dir, r.root) {
		real, err := filepath.EvalSymlinks(dir)
		if err == nil {
			if !Within(real, r.root) {
				return ErrPathViolation
			}
			return nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("pathguard: evaluate %s: %w", dir, err)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return nil
}

// Within reports whether path is root or a descendant of root. Both must be
// absolute and clean.
func Within(path, root string) bool {
	if path == root {
		return true
	}
	prefix := root
	if !strings.HasSuffix(prefix, string(os.PathSeparator)) {
		prefix += string(os.PathSeparator)
	}
	return strings.HasPrefix(path, prefix)
}
