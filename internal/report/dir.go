// Package report manages the on-disk report directory movements write to
// during the report phase. All paths are resolved against a single root and
// must stay inside it; archived copies live under archive/ and are never read
// back as the current version.
package report

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ArchiveDirName holds rotated historical report copies.
const ArchiveDirName = "archive"

// ErrPathEscape is returned when a report name resolves outside the root.
var ErrPathEscape = fmt.Errorf("report path escapes the report directory")

// Dir is a report directory rooted at an absolute path.
type Dir struct {
	root string
}

// NewDir creates (if needed) and opens a report directory.
func NewDir(root string) (*Dir, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve report directory: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create report directory: %w", err)
	}
	return &Dir{root: abs}, nil
}

// Root returns the absolute report directory path.
func (d *Dir) Root() string {
	return d.root
}

// Resolve maps a report name to an absolute path, rejecting any name that
// resolves outside the root. The check happens before any filesystem write.
func (d *Dir) Resolve(name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("report name must not be empty")
	}
	target := filepath.Join(d.root, filepath.Clean(name))
	if target != d.root && !strings.HasPrefix(target, d.root+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q", ErrPathEscape, name)
	}
	if target == d.root {
		return "", fmt.Errorf("%w: %q", ErrPathEscape, name)
	}
	return target, nil
}

// Append appends content to the named report, creating it (and any
// subdirectories named in the report path) on first write.
func (d *Dir) Append(name, content string) error {
	target, err := d.Resolve(name)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("failed to create report subdirectory: %w", err)
	}

	f, err := os.OpenFile(target, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open report %s: %w", name, err)
	}
	defer func() { _ = f.Close() }()

	if !strings.HasSuffix(content, "\n") {
		content += "\n"
	}
	if _, err := f.WriteString(content); err != nil {
		return fmt.Errorf("failed to write report %s: %w", name, err)
	}
	return nil
}

// Exists reports whether the current version of the named report is on disk.
func (d *Dir) Exists(name string) bool {
	target, err := d.Resolve(name)
	if err != nil {
		return false
	}
	info, err := os.Stat(target)
	return err == nil && !info.IsDir()
}

// ReadLatest returns the current version of the named report. Only the live
// file under the root is consulted, never anything under archive/.
func (d *Dir) ReadLatest(name string) (string, error) {
	target, err := d.Resolve(name)
	if err != nil {
		return "", err
	}
	rel, err := filepath.Rel(d.root, target)
	if err == nil && strings.HasPrefix(rel, ArchiveDirName+string(filepath.Separator)) {
		return "", fmt.Errorf("refusing to read archived report %q", name)
	}
	data, err := os.ReadFile(target)
	if err != nil {
		return "", fmt.Errorf("failed to read report %s: %w", name, err)
	}
	return string(data), nil
}
