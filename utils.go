package lblstats

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// filesByExtInDir returns all regular files with file extension ext found directly in directory
// dirPath, sorted by name. All files are returned if ext is empty.
func filesByExtInDir(dirPath, ext string) ([]string, error) {
	entries, err := os.ReadDir(dirPath)
	if err != nil {
		return nil, fmt.Errorf("cannot read directory %q: %w", dirPath, err)
	}

	files := make([]string, 0, len(entries))
	for _, e := range entries {
		// Must be a regular file or a symlink and have the requested extension/suffix.
		if (!e.Type().IsRegular() && e.Type()&os.ModeSymlink == 0) || !strings.HasSuffix(e.Name(), ext) {
			continue
		}
		files = append(files, filepath.Join(dirPath, e.Name()))
	}
	sort.Strings(files)

	return files, nil
}

// writeFileAtomic writes the output of write to a temporary file next to path and renames it to
// path once it was written and closed successfully. An existing file at path is replaced.
func writeFileAtomic(path string, write func(w io.Writer) error) (err error) {
	dir, base := filepath.Split(path)
	if dir == "" {
		dir = "."
	}
	tmp, err := os.CreateTemp(dir, "."+base+".tmp*")
	if err != nil {
		return fmt.Errorf("cannot create a temporary file for %q: %w", path, err)
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp.Name())
		}
	}()

	if err := write(tmp); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("cannot write %q: %w", path, err)
	}
	if err := tmp.Chmod(0644); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("cannot write %q: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("cannot write %q: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("cannot replace %q: %w", path, err)
	}

	return nil
}

// closeWithErrCheck calls c.Close(). If it returns an error, and (*e == nil), e is set to that
// error.
func closeWithErrCheck(c io.Closer, e *error) {
	err := c.Close()
	if err != nil && *e == nil {
		*e = err
	}
}
