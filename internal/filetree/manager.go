package filetree

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"docintake/internal/fileutil"
	"docintake/internal/logging"
	"docintake/internal/pathguard"
	"docintake/internal/textutil"
)

// SidecarExt is the extension of metadata sidecar records.
const SidecarExt = ".json"

// Kind distinguishes files from directories in a listing.
type Kind string

const (
	KindFile Kind = "file"
	KindDir  Kind = "dir"
)

// FileNode is one entry of a listing, addressed relative to the content root.
type FileNode struct {
	RelativePath string
	Kind         Kind
}

// Listing holds the immediate children of a directory. Dirs and Files are
// disjoint and sorted.
type Listing struct {
	Path  string
	Dirs  []string
	Files []string
}

// Nodes flattens the listing into FileNodes, directories first.
func (l Listing) Nodes() []FileNode {
	nodes := make([]FileNode, 0, len(l.Dirs)+len(l.Files))
	for _, name := range l.Dirs {
		nodes = append(nodes, FileNode{RelativePath: joinRel(l.Path, name), Kind: KindDir})
	}
	for _, name := range l.Files {
		nodes = append(nodes, FileNode{RelativePath: joinRel(l.Path, name), Kind: KindFile})
	}
	return nodes
}

// MovePlan is a validated move, fully resolved before any mutation.
type MovePlan struct {
	Source      string
	Destination string
	src         string
	dst         string
	isDir       bool
}

// DeleteResult reports the primary deletion and the best-effort sidecar
// cleanup. SidecarErr never affects the primary result.
type DeleteResult struct {
	Path           string
	Sidecar        string
	SidecarRemoved bool
	SidecarErr     error
}

// Manager performs confined operations on the content tree.
type Manager struct {
	content  *pathguard.Resolver
	metadata *pathguard.Resolver
	logger   *slog.Logger
}

// New returns a manager rooted at contentRoot with sidecars under
// metadataRoot. metadataRoot may be empty to disable sidecar cleanup.
func New(contentRoot, metadataRoot string, logger *slog.Logger) (*Manager, error) {
	content, err := pathguard.New(contentRoot)
	if err != nil {
		return nil, fmt.Errorf("content root: %w", err)
	}
	m := &Manager{
		content: content,
		logger:  logging.NewComponentLogger(logger, "filetree"),
	}
	if strings.TrimSpace(metadataRoot) != "" {
		metadata, err := pathguard.New(metadataRoot)
		if err != nil {
			return nil, fmt.Errorf("metadata root: %w", err)
		}
		m.metadata = metadata
	}
	return m, nil
}

// Root returns the canonical content root.
func (m *Manager) Root() string {
	return m.content.Root()
}

// List returns the sorted directories and files directly under rel.
func (m *Manager) List(rel string) (Listing, error) {
	abs, err := m.content.Resolve(rel)
	if err != nil {
		return Listing{}, opError("list", rel, err)
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		switch {
		case errors.Is(err, fs.ErrNotExist):
			return Listing{}, opError("list", rel, ErrNotFound)
		case isNotDir(abs):
			return Listing{}, opError("list", rel, ErrNotDirectory)
		default:
			return Listing{}, opError("list", rel, err)
		}
	}

	listing := Listing{Path: m.relOf(abs), Dirs: []string{}, Files: []string{}}
	for _, entry := range entries {
		isDir := entry.IsDir()
		if entry.Type()&fs.ModeSymlink != 0 {
			// Links are shown by what they point at; broken links list as files.
			if info, err := os.Stat(filepath.Join(abs, entry.Name())); err == nil {
				isDir = info.IsDir()
			}
		}
		if isDir {
			listing.Dirs = append(listing.Dirs, entry.Name())
		} else {
			listing.Files = append(listing.Files, entry.Name())
		}
	}
	sort.Strings(listing.Dirs)
	sort.Strings(listing.Files)
	return listing, nil
}

// CreateFolder creates parent/name, including missing intermediate
// directories. The name is a single segment and is NFC-normalized.
func (m *Manager) CreateFolder(parent, name string) error {
	clean, err := textutil.NormalizeName(name)
	if err != nil {
		return opError("create", joinRel(parent, name), err)
	}
	rel := joinRel(parent, clean)
	abs, err := m.content.Resolve(rel)
	if err != nil {
		return opError("create", rel, err)
	}
	if abs == m.content.Root() {
		return opError("create", rel, ErrAlreadyExists)
	}
	if _, err := os.Lstat(abs); err == nil {
		return opError("create", rel, ErrAlreadyExists)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return opError("create", rel, err)
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return opError("create", rel, wrapFS(err))
	}
	if err := os.Mkdir(abs, 0o755); err != nil {
		return opError("create", rel, wrapFS(err))
	}
	m.logger.Info("folder created",
		logging.String("path", rel),
		logging.String(logging.FieldEventType, "folder_created"),
	)
	return nil
}

// PlanMove validates a move from src to dst without touching the tree.
func (m *Manager) PlanMove(src, dst string) (MovePlan, error) {
	srcAbs, err := m.content.Resolve(src)
	if err != nil {
		return MovePlan{}, opError("move", src, err)
	}
	dstAbs, err := m.content.Resolve(dst)
	if err != nil {
		return MovePlan{}, opError("move", dst, err)
	}
	root := m.content.Root()
	if srcAbs == root || dstAbs == root {
		return MovePlan{}, opError("move", src, fmt.Errorf("%w: the root cannot be moved or replaced", ErrInvalidMove))
	}

	info, err := os.Lstat(srcAbs)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return MovePlan{}, opError("move", src, ErrNotFound)
		}
		return MovePlan{}, opError("move", src, err)
	}
	if info.IsDir() && dstAbs != srcAbs && pathguard.Within(dstAbs, srcAbs) {
		return MovePlan{}, opError("move", src, fmt.Errorf("%w: destination is inside the source folder", ErrInvalidMove))
	}

	parent, err := os.Stat(filepath.Dir(dstAbs))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return MovePlan{}, opError("move", path.Dir(cleanRel(dst)), ErrNotFound)
		}
		return MovePlan{}, opError("move", dst, err)
	}
	if !parent.IsDir() {
		return MovePlan{}, opError("move", path.Dir(cleanRel(dst)), ErrNotDirectory)
	}
	if _, err := os.Lstat(dstAbs); err == nil {
		return MovePlan{}, opError("move", dst, ErrAlreadyExists)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return MovePlan{}, opError("move", dst, err)
	}

	return MovePlan{
		Source:      m.relOf(srcAbs),
		Destination: m.relOf(dstAbs),
		src:         srcAbs,
		dst:         dstAbs,
		isDir:       info.IsDir(),
	}, nil
}

// Move renames src to dst. A rename is a move with an unchanged parent. The
// destination is never overwritten and a failed move leaves the tree as it
// was.
func (m *Manager) Move(src, dst string) error {
	plan, err := m.PlanMove(src, dst)
	if err != nil {
		return err
	}
	return m.apply(plan)
}

func (m *Manager) apply(plan MovePlan) error {
	err := renameNoReplace(plan.src, plan.dst)
	if errors.Is(err, errCrossDevice) {
		err = moveAcrossDevices(plan)
	}
	if err != nil {
		return opError("move", plan.Source, wrapFS(err))
	}
	m.logger.Info("entry moved",
		logging.String("source", plan.Source),
		logging.String("destination", plan.Destination),
		logging.String(logging.FieldEventType, "entry_moved"),
	)
	return nil
}

// moveAcrossDevices copies a file and removes the source. If the source
// cannot be removed the copy is rolled back.
func moveAcrossDevices(plan MovePlan) error {
	if plan.isDir {
		return errors.New("moving folders across filesystems is not supported")
	}
	if err := fileutil.CopyFileExclusive(plan.src, plan.dst); err != nil {
		return err
	}
	if err := os.Remove(plan.src); err != nil {
		_ = os.Remove(plan.dst)
		return err
	}
	return nil
}

// Drop moves item into folder, keeping its base name. Dropping a folder onto
// itself or into its own subtree is rejected before the filesystem is read.
func (m *Manager) Drop(item, folder string) error {
	itemRel := cleanRel(item)
	folderRel := cleanRel(folder)
	if itemRel == "." {
		return opError("drop", item, fmt.Errorf("%w: the root cannot be moved", ErrInvalidMove))
	}
	if folderRel == itemRel || strings.HasPrefix(folderRel, itemRel+"/") {
		return opError("drop", item, ErrInvalidDrop)
	}

	folderAbs, err := m.content.Resolve(folderRel)
	if err != nil {
		return opError("drop", folder, err)
	}
	info, err := os.Stat(folderAbs)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return opError("drop", folder, ErrNotFound)
		}
		return opError("drop", folder, err)
	}
	if !info.IsDir() {
		return opError("drop", folder, ErrNotDirectory)
	}
	return m.Move(itemRel, joinRel(folderRel, path.Base(itemRel)))
}

// Delete removes a file or an empty folder, then tries to remove the file's
// metadata sidecar.
func (m *Manager) Delete(rel string) (DeleteResult, error) {
	abs, err := m.content.Resolve(rel)
	if err != nil {
		return DeleteResult{}, opError("delete", rel, err)
	}
	if abs == m.content.Root() {
		return DeleteResult{}, opError("delete", rel, fmt.Errorf("%w: the root cannot be deleted", ErrInvalidMove))
	}
	info, err := os.Lstat(abs)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return DeleteResult{}, opError("delete", rel, ErrNotFound)
		}
		return DeleteResult{}, opError("delete", rel, err)
	}
	if err := os.Remove(abs); err != nil {
		if info.IsDir() && !errors.Is(err, fs.ErrNotExist) {
			if entries, readErr := os.ReadDir(abs); readErr == nil && len(entries) > 0 {
				return DeleteResult{}, opError("delete", rel, ErrNotEmpty)
			}
		}
		return DeleteResult{}, opError("delete", rel, wrapFS(err))
	}

	result := DeleteResult{Path: m.relOf(abs)}
	if !info.IsDir() {
		m.removeSidecar(&result)
	}
	m.logger.Info("entry deleted",
		logging.String("path", result.Path),
		logging.Bool("sidecar_removed", result.SidecarRemoved),
		logging.String(logging.FieldEventType, "entry_deleted"),
	)
	return result, nil
}

// SidecarPath returns the relative sidecar path for a content file.
func SidecarPath(rel string) string {
	rel = cleanRel(rel)
	return strings.TrimSuffix(rel, path.Ext(rel)) + SidecarExt
}

func (m *Manager) removeSidecar(result *DeleteResult) {
	if m.metadata == nil {
		return
	}
	result.Sidecar = SidecarPath(result.Path)
	abs, err := m.metadata.Resolve(result.Sidecar)
	if err != nil {
		result.SidecarErr = err
	} else if err := os.Remove(abs); err == nil {
		result.SidecarRemoved = true
	} else if !errors.Is(err, fs.ErrNotExist) {
		result.SidecarErr = err
	}
	if result.SidecarErr != nil {
		logging.WarnWithContext(m.logger, "sidecar cleanup failed; document deleted", "sidecar_delete_failed",
			logging.String("sidecar", result.Sidecar),
			logging.Error(result.SidecarErr),
			logging.String(logging.FieldErrorHint, "remove the metadata file manually"),
			logging.String(logging.FieldImpact, "orphaned metadata record remains"),
		)
	}
}

func (m *Manager) relOf(abs string) string {
	rel, err := m.content.Rel(abs)
	if err != nil {
		return abs
	}
	return rel
}

// cleanRel is lexical only; escapes survive for the resolver to reject.
func cleanRel(rel string) string {
	if rel == "" {
		return "."
	}
	return path.Clean(filepath.ToSlash(rel))
}

func joinRel(dir, name string) string {
	return cleanRel(path.Join(filepath.ToSlash(dir), name))
}

func isNotDir(abs string) bool {
	info, err := os.Stat(abs)
	return err == nil && !info.IsDir()
}

// wrapFS maps filesystem errors onto the package sentinels.
func wrapFS(err error) error {
	switch {
	case errors.Is(err, fs.ErrExist):
		return fmt.Errorf("%w: %v", ErrAlreadyExists, err)
	case errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	default:
		return err
	}
}
