package dirtree

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/dhcgn/mbox-to-archive/source"
)

const twoMessages = "From - Mon Jan 01 10:00:00 2001\n" +
	"Subject: one\n\nbody\n\n" +
	"From - Tue Jan 02 10:00:00 2001\n" +
	"Subject: two\n\nbody\n"

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func profile(t *testing.T) string {
	t.Helper()
	root := filepath.Join(t.TempDir(), "Local Folders")
	writeFile(t, filepath.Join(root, "Inbox"), twoMessages)
	writeFile(t, filepath.Join(root, "Inbox.msf"), "// index")
	writeFile(t, filepath.Join(root, "Inbox.sbd", "Work"), twoMessages)
	writeFile(t, filepath.Join(root, "Inbox.sbd", "Work.msf"), "// index")
	writeFile(t, filepath.Join(root, "notes", "a.eml"), "Subject: a\r\n\r\nA\r\n")
	writeFile(t, filepath.Join(root, "notes", "b.eml"), "Subject: b\r\n\r\nB\r\n")
	writeFile(t, filepath.Join(root, "notes", "readme.txt"), "ignored")
	if err := os.MkdirAll(filepath.Join(root, "Trash.sbd"), 0o755); err != nil {
		t.Fatal(err)
	}
	return root
}

func names(folders []source.Folder) []string {
	var out []string
	for _, f := range folders {
		out = append(out, f.Name())
	}
	return out
}

func TestDirtree_Hierarchy(t *testing.T) {
	src, err := Open(Options{Path: profile(t)})
	if err != nil {
		t.Fatal(err)
	}
	defer src.Close()

	root, err := src.OpenRoot()
	if err != nil {
		t.Fatal(err)
	}
	if root.Name() != "Local Folders" {
		t.Errorf("root Name() = %q", root.Name())
	}
	if err := root.Open(); err != nil {
		t.Fatal(err)
	}
	defer root.Close()

	if root.HoldsMessages() {
		t.Error("root holds no eml files")
	}
	subs, err := root.Subfolders()
	if err != nil {
		t.Fatal(err)
	}
	if got := names(subs); !reflect.DeepEqual(got, []string{"Inbox", "Trash", "notes"}) {
		t.Fatalf("subfolders = %v", got)
	}

	inbox := subs[0]
	if !inbox.HoldsFolders() {
		t.Error("Inbox has an .sbd directory")
	}
	children, err := inbox.Subfolders()
	if err != nil {
		t.Fatal(err)
	}
	if got := names(children); !reflect.DeepEqual(got, []string{"Work"}) {
		t.Errorf("Inbox subfolders = %v", got)
	}

	if err := inbox.Open(); err != nil {
		t.Fatal(err)
	}
	it, err := inbox.Messages()
	if err != nil {
		t.Fatal(err)
	}
	count := 0
	for it.Next() {
		count++
	}
	inbox.Close()
	if count != 2 {
		t.Errorf("Inbox messages = %d", count)
	}

	notes := subs[2]
	if err := notes.Open(); err != nil {
		t.Fatal(err)
	}
	defer notes.Close()
	it, err = notes.Messages()
	if err != nil {
		t.Fatal(err)
	}
	var labels []string
	for it.Next() {
		labels = append(labels, it.Handle().Label())
	}
	if !reflect.DeepEqual(labels, []string{"a", "b"}) {
		t.Errorf("notes labels = %v", labels)
	}
}

func TestDirtree_EnumerationRequiresOpen(t *testing.T) {
	src, err := Open(Options{Path: profile(t)})
	if err != nil {
		t.Fatal(err)
	}
	root, _ := src.OpenRoot()
	if _, err := root.Subfolders(); err == nil {
		t.Error("expected error before Open")
	}
}

func TestOpen_NotADirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "file")
	writeFile(t, path, "x")
	if _, err := Open(Options{Path: path}); err == nil {
		t.Error("expected error for a regular file")
	}
}
