// Package security holds path validation for operator-supplied file paths.
package security

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ValidatePathWithinDirectory checks that filePath resolves inside safeDir,
// rejecting traversal via .. components or symlinks. The export API accepts
// relative file names from callers; everything it writes must stay under
// the configured export directory.
func ValidatePathWithinDirectory(filePath, safeDir string) error {
	absPath, err := filepath.Abs(filepath.Clean(filePath))
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}
	absSafeDir, err := filepath.Abs(safeDir)
	if err != nil {
		return fmt.Errorf("failed to resolve safe directory: %w", err)
	}

	// Resolve symlinks along the deepest existing ancestor, so a link
	// like exports/escape -> /etc cannot smuggle writes outside.
	canonical := absPath
	if resolved, err := filepath.EvalSymlinks(absPath); err == nil {
		canonical = resolved
	} else {
		checkPath := absPath
		for {
			parent := filepath.Dir(checkPath)
			if parent == checkPath {
				break
			}
			if resolved, err := filepath.EvalSymlinks(parent); err == nil {
				rel, err := filepath.Rel(parent, absPath)
				if err != nil {
					return fmt.Errorf("failed to relativize path: %w", err)
				}
				canonical = filepath.Join(resolved, rel)
				break
			}
			checkPath = parent
		}
	}

	canonicalSafeDir := absSafeDir
	if resolved, err := filepath.EvalSymlinks(absSafeDir); err == nil {
		canonicalSafeDir = resolved
	}

	rel, err := filepath.Rel(canonicalSafeDir, canonical)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(os.PathSeparator)) {
		return fmt.Errorf("path %q escapes directory %q", filePath, safeDir)
	}
	return nil
}
