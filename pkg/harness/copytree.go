package harness

import (
	"io"
	"os"
	"path/filepath"

	"agentspaces/internal/logging"
	"agentspaces/pkg/aspdiag"
)

// CopyTree materializes src into dst, preferring hardlinks for
// regular files when useHardlinks is set. Hardlinks fail silently
// into a copy on cross-device errors, which is the common case for
// dev/project spaces whose sources must stay writable by the caller.
// Returns the relative file paths written, sorted by directory walk
// order.
func CopyTree(src, dst string, useHardlinks bool) ([]string, error) {
	var files []string
	err := filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)

		if info.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		if info.Mode()&os.ModeSymlink != 0 {
			link, err := os.Readlink(path)
			if err != nil {
				return err
			}
			if err := os.Symlink(link, target); err != nil {
				return err
			}
			files = append(files, rel)
			return nil
		}

		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}

		if useHardlinks {
			if err := os.Link(path, target); err == nil {
				files = append(files, rel)
				return nil
			}
			logging.Debug("hardlink failed, falling back to copy", "path", path)
		}

		if err := copyFile(path, target, info.Mode()); err != nil {
			return err
		}
		files = append(files, rel)
		return nil
	})
	if err != nil {
		return nil, aspdiag.Wrap(aspdiag.CodeFilesystemError, "materialize tree", err)
	}
	return files, nil
}

func copyFile(src, dst string, mode os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return err
}
