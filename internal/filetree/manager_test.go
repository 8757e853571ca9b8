package filetree_test

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"docintake/internal/filetree"
	"docintake/internal/logging"
	"docintake/internal/pathguard"
	"docintake/internal/textutil"
)

type fixture struct {
	mgr      *filetree.Manager
	content  string
	metadata string
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	base := t.TempDir()
	content := filepath.Join(base, "processed")
	metadata := filepath.Join(base, "metadata")
	for _, dir := range []string{content, metadata} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", dir, err)
		}
	}
	mgr, err := filetree.New(content, metadata, logging.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return fixture{mgr: mgr, content: mgr.Root(), metadata: metadata}
}

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return string(data)
}

func TestMoveCreateFolderListScenario(t *testing.T) {
	f := newFixture(t)
	writeFile(t, filepath.Join(f.content, "a.pdf"), "A")
	writeFile(t, filepath.Join(f.content, "b.pdf"), "B")

	err := f.mgr.Move("a.pdf", "F/a.pdf")
	if !errors.Is(err, filetree.ErrNotFound) {
		t.Fatalf("move before folder exists: got %v, want ErrNotFound", err)
	}
	if got := readFile(t, filepath.Join(f.content, "a.pdf")); got != "A" {
		t.Fatalf("source changed after failed move: %q", got)
	}

	if err := f.mgr.CreateFolder(".", "F"); err != nil {
		t.Fatalf("CreateFolder: %v", err)
	}
	if err := f.mgr.Move("a.pdf", "F/a.pdf"); err != nil {
		t.Fatalf("Move: %v", err)
	}

	sub, err := f.mgr.List("F")
	if err != nil {
		t.Fatalf("List(F): %v", err)
	}
	if !reflect.DeepEqual(sub.Files, []string{"a.pdf"}) || len(sub.Dirs) != 0 {
		t.Fatalf("List(F) = %+v", sub)
	}

	root, err := f.mgr.List("")
	if err != nil {
		t.Fatalf("List(root): %v", err)
	}
	if !reflect.DeepEqual(root.Files, []string{"b.pdf"}) || !reflect.DeepEqual(root.Dirs, []string{"F"}) {
		t.Fatalf("List(root) = %+v", root)
	}
	nodes := root.Nodes()
	want := []filetree.FileNode{{RelativePath: "F", Kind: filetree.KindDir}, {RelativePath: "b.pdf", Kind: filetree.KindFile}}
	if !reflect.DeepEqual(nodes, want) {
		t.Fatalf("Nodes() = %+v, want %+v", nodes, want)
	}
}

func TestMoveNeverOverwrites(t *testing.T) {
	f := newFixture(t)
	writeFile(t, filepath.Join(f.content, "a.pdf"), "source bytes")
	writeFile(t, filepath.Join(f.content, "b.pdf"), "existing bytes")

	err := f.mgr.Move("a.pdf", "b.pdf")
	if !errors.Is(err, filetree.ErrAlreadyExists) {
		t.Fatalf("got %v, want ErrAlreadyExists", err)
	}
	if got := readFile(t, filepath.Join(f.content, "a.pdf")); got != "source bytes" {
		t.Fatalf("source modified: %q", got)
	}
	if got := readFile(t, filepath.Join(f.content, "b.pdf")); got != "existing bytes" {
		t.Fatalf("destination modified: %q", got)
	}

	if err := f.mgr.Move("a.pdf", "a.pdf"); !errors.Is(err, filetree.ErrAlreadyExists) {
		t.Fatalf("self rename: got %v, want ErrAlreadyExists", err)
	}
}

func TestRenameFolderKeepsContents(t *testing.T) {
	f := newFixture(t)
	writeFile(t, filepath.Join(f.content, "Acme", "2024", "invoice.pdf"), "x")

	if err := f.mgr.Move("Acme", "Acme Ltd"); err != nil {
		t.Fatalf("Move: %v", err)
	}
	if got := readFile(t, filepath.Join(f.content, "Acme Ltd", "2024", "invoice.pdf")); got != "x" {
		t.Fatalf("unexpected content %q", got)
	}
	if err := f.mgr.Move("Acme Ltd", "Acme Ltd/2024/nested"); !errors.Is(err, filetree.ErrInvalidMove) {
		t.Fatalf("move into own subtree: got %v, want ErrInvalidMove", err)
	}
}

func TestOperationsRejectEscapes(t *testing.T) {
	f := newFixture(t)
	writeFile(t, filepath.Join(f.content, "a.pdf"), "A")
	outside := filepath.Join(filepath.Dir(f.content), "outside.pdf")

	checks := []struct {
		name string
		run  func() error
	}{
		{"list parent", func() error { _, err := f.mgr.List(".."); return err }},
		{"move out", func() error { return f.mgr.Move("a.pdf", "../outside.pdf") }},
		{"move in", func() error { return f.mgr.Move("../metadata", "stolen") }},
		{"create", func() error { return f.mgr.CreateFolder("../x", "y") }},
		{"delete", func() error { _, err := f.mgr.Delete("../metadata"); return err }},
		{"drop", func() error { return f.mgr.Drop("a.pdf", "..") }},
	}
	for _, c := range checks {
		err := c.run()
		if !errors.Is(err, pathguard.ErrPathViolation) {
			t.Fatalf("%s: got %v, want ErrPathViolation", c.name, err)
		}
		if filetree.Outcome(err).Code != "path_violation" {
			t.Fatalf("%s: unexpected outcome %+v", c.name, filetree.Outcome(err))
		}
	}
	if _, err := os.Stat(outside); !os.IsNotExist(err) {
		t.Fatalf("file escaped the root: %v", err)
	}
}

func TestCreateFolder(t *testing.T) {
	f := newFixture(t)

	if err := f.mgr.CreateFolder("clients/acme", "Résumés"); err != nil {
		t.Fatalf("CreateFolder with missing intermediates: %v", err)
	}
	if _, err := os.Stat(filepath.Join(f.content, "clients", "acme", "Résumés")); err != nil {
		t.Fatalf("expected NFC folder name on disk: %v", err)
	}
	if err := f.mgr.CreateFolder("clients/acme", "Résumés"); !errors.Is(err, filetree.ErrAlreadyExists) {
		t.Fatalf("got %v, want ErrAlreadyExists", err)
	}
	if err := f.mgr.CreateFolder(".", "a/b"); !errors.Is(err, textutil.ErrInvalidName) {
		t.Fatalf("got %v, want ErrInvalidName", err)
	}
}

func TestListErrors(t *testing.T) {
	f := newFixture(t)
	writeFile(t, filepath.Join(f.content, "a.pdf"), "A")

	if _, err := f.mgr.List("missing"); !errors.Is(err, filetree.ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
	if _, err := f.mgr.List("a.pdf"); !errors.Is(err, filetree.ErrNotDirectory) {
		t.Fatalf("got %v, want ErrNotDirectory", err)
	}
}

func TestDeleteRemovesSidecarBestEffort(t *testing.T) {
	f := newFixture(t)
	writeFile(t, filepath.Join(f.content, "Acme", "invoice_2024.pdf"), "pdf")
	writeFile(t, filepath.Join(f.metadata, "Acme", "invoice_2024.json"), "{}")
	writeFile(t, filepath.Join(f.content, "Acme", "orphan.pdf"), "pdf")

	res, err := f.mgr.Delete("Acme/invoice_2024.pdf")
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if !res.SidecarRemoved || res.SidecarErr != nil || res.Sidecar != "Acme/invoice_2024.json" {
		t.Fatalf("unexpected result %+v", res)
	}
	if _, err := os.Stat(filepath.Join(f.metadata, "Acme", "invoice_2024.json")); !os.IsNotExist(err) {
		t.Fatalf("sidecar not removed: %v", err)
	}

	res, err = f.mgr.Delete("Acme/orphan.pdf")
	if err != nil {
		t.Fatalf("Delete without sidecar: %v", err)
	}
	if res.SidecarRemoved || res.SidecarErr != nil {
		t.Fatalf("missing sidecar should be silent, got %+v", res)
	}

	if _, err := f.mgr.Delete("Acme/orphan.pdf"); !errors.Is(err, filetree.ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}

func TestDeleteSidecarFailureIsNonFatal(t *testing.T) {
	f := newFixture(t)
	writeFile(t, filepath.Join(f.content, "report.pdf"), "pdf")
	// A non-empty directory where the sidecar file should be cannot be removed.
	writeFile(t, filepath.Join(f.metadata, "report.json", "keep"), "x")

	res, err := f.mgr.Delete("report.pdf")
	if err != nil {
		t.Fatalf("primary delete should succeed: %v", err)
	}
	if res.SidecarErr == nil {
		t.Fatal("expected sidecar error to be reported")
	}
	if _, err := os.Stat(filepath.Join(f.content, "report.pdf")); !os.IsNotExist(err) {
		t.Fatalf("document still present: %v", err)
	}
}

func TestDeleteFolders(t *testing.T) {
	f := newFixture(t)
	writeFile(t, filepath.Join(f.content, "full", "a.pdf"), "A")
	if err := os.Mkdir(filepath.Join(f.content, "empty"), 0o755); err != nil {
		t.Fatal(err)
	}

	if _, err := f.mgr.Delete("empty"); err != nil {
		t.Fatalf("delete empty folder: %v", err)
	}
	if _, err := f.mgr.Delete("full"); !errors.Is(err, filetree.ErrNotEmpty) {
		t.Fatalf("got %v, want ErrNotEmpty", err)
	}
	if _, err := f.mgr.Delete(""); !errors.Is(err, filetree.ErrInvalidMove) {
		t.Fatalf("deleting the root: got %v", err)
	}
}

func TestDrop(t *testing.T) {
	f := newFixture(t)
	writeFile(t, filepath.Join(f.content, "a.pdf"), "A")
	writeFile(t, filepath.Join(f.content, "F", "G", "keep.pdf"), "K")

	if err := f.mgr.Drop("F", "F"); !errors.Is(err, filetree.ErrInvalidDrop) {
		t.Fatalf("drop onto self: got %v, want ErrInvalidDrop", err)
	}
	if err := f.mgr.Drop("F", "F/G"); !errors.Is(err, filetree.ErrInvalidDrop) {
		t.Fatalf("drop into own subtree: got %v, want ErrInvalidDrop", err)
	}
	if err := f.mgr.Drop("a.pdf", "missing"); !errors.Is(err, filetree.ErrNotFound) {
		t.Fatalf("drop onto missing folder: got %v", err)
	}
	if err := f.mgr.Drop("a.pdf", "F/G/keep.pdf"); !errors.Is(err, filetree.ErrNotDirectory) {
		t.Fatalf("drop onto file: got %v", err)
	}
	if err := f.mgr.Drop("a.pdf", "F/G"); err != nil {
		t.Fatalf("Drop: %v", err)
	}
	if got := readFile(t, filepath.Join(f.content, "F", "G", "a.pdf")); got != "A" {
		t.Fatalf("unexpected content %q", got)
	}
}

func TestPlanMoveDoesNotMutate(t *testing.T) {
	f := newFixture(t)
	writeFile(t, filepath.Join(f.content, "a.pdf"), "A")
	if err := os.Mkdir(filepath.Join(f.content, "F"), 0o755); err != nil {
		t.Fatal(err)
	}

	plan, err := f.mgr.PlanMove("a.pdf", "F/renamed.pdf")
	if err != nil {
		t.Fatalf("PlanMove: %v", err)
	}
	if plan.Source != "a.pdf" || plan.Destination != "F/renamed.pdf" {
		t.Fatalf("unexpected plan %+v", plan)
	}
	if _, err := os.Stat(filepath.Join(f.content, "a.pdf")); err != nil {
		t.Fatalf("plan mutated the tree: %v", err)
	}
}

func TestOutcome(t *testing.T) {
	if res := filetree.Outcome(nil); !res.Success || res.Code != "ok" {
		t.Fatalf("unexpected success outcome %+v", res)
	}
	err := &filetree.OpError{Op: "move", Path: "a.pdf", Err: filetree.ErrAlreadyExists}
	res := filetree.Outcome(err)
	if res.Success || res.Code != "already_exists" || res.Message != "move a.pdf: already exists" {
		t.Fatalf("unexpected failure outcome %+v", res)
	}
}

func TestSidecarPath(t *testing.T) {
	tests := map[string]string{
		"a.pdf":              "a.json",
		"Acme/2024/b.PDF":    "Acme/2024/b.json",
		"noext":              "noext.json",
		"dir.v2/file.tar.gz": "dir.v2/file.tar.json",
	}
	for in, want := range tests {
		if got := filetree.SidecarPath(in); got != want {
			t.Fatalf("SidecarPath(%q) = %q, want %q", in, got, want)
		}
	}
}
