//go:build !linux

package filetree

func renameNoReplace(src, dst string) error {
	return renameChecked(src, dst)
}
