package filetree

import (
	"errors"
	"io/fs"
	"os"
)

// errCrossDevice signals that rename(2) cannot move between filesystems.
var errCrossDevice = errors.New("cross-device move")

// renameChecked is the portable fallback: check, then rename. A concurrent
// creator can win the window between the two calls.
func renameChecked(src, dst string) error {
	if _, err := os.Lstat(dst); err == nil {
		return fs.ErrExist
	} else if !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return os.Rename(src, dst)
}
