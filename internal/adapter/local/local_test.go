package local

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/Ning0612/Hotfolder/internal/adapter"
	"github.com/Ning0612/Hotfolder/internal/domain"
	"github.com/Ning0612/Hotfolder/internal/testutil"
)

func drain(t *testing.T, s adapter.DirStream, batch int) []adapter.DirEntry {
	t.Helper()
	var all []adapter.DirEntry
	for {
		entries, err := s.Next(batch)
		if errors.Is(err, io.EOF) {
			return all
		}
		if err != nil {
			t.Fatalf("Next() error = %v", err)
		}
		all = append(all, entries...)
	}
}

func TestNew(t *testing.T) {
	dir := t.TempDir()

	if _, err := New(dir); err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if _, err := New(filepath.Join(dir, "missing")); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	file := testutil.CreateTestFile(t, dir, "f.txt", []byte("x"))
	if _, err := New(file); !errors.Is(err, domain.ErrNotDirectory) {
		t.Errorf("expected ErrNotDirectory, got %v", err)
	}
}

func TestResolvePath(t *testing.T) {
	a, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	tests := []struct {
		path    string
		wantErr bool
	}{
		{"", false},
		{".", false},
		{"scan.pdf", false},
		{"sub/../scan.pdf", false},
		{"..", true},
		{"../etc/passwd", true},
		{"sub/../../x", true},
		{"..foo", false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			_, err := a.resolvePath(tt.path)
			if tt.wantErr && !errors.Is(err, domain.ErrPermissionDenied) {
				t.Errorf("resolvePath(%q) expected ErrPermissionDenied, got %v", tt.path, err)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("resolvePath(%q) error = %v", tt.path, err)
			}
		})
	}
}

func TestOpenDir_Batches(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.pdf", "b.pdf", "c.pdf", ".DS_Store"} {
		testutil.CreateTestFile(t, dir, name, []byte(name))
	}
	if err := os.Mkdir(filepath.Join(dir, "sub"), 0755); err != nil {
		t.Fatal(err)
	}

	a, _ := New(dir)
	stream, err := a.OpenDir(context.Background())
	if err != nil {
		t.Fatalf("OpenDir() error = %v", err)
	}
	defer stream.Close()

	entries := drain(t, stream, 2)
	if len(entries) != 5 {
		t.Fatalf("expected 5 entries, got %d", len(entries))
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })

	types := map[string]domain.FileType{}
	for _, e := range entries {
		if e.Err != nil {
			t.Errorf("unexpected entry error for %s: %v", e.Name, e.Err)
		}
		types[e.Name] = e.Info.Type
	}
	if types["sub"] != domain.FileTypeDirectory {
		t.Errorf("sub should be a directory, got %v", types["sub"])
	}
	if types["a.pdf"] != domain.FileTypeRegular {
		t.Errorf("a.pdf should be regular, got %v", types["a.pdf"])
	}
}

func TestOpenDir_Restartable(t *testing.T) {
	dir := t.TempDir()
	a, _ := New(dir)

	first, _ := a.OpenDir(context.Background())
	if got := drain(t, first, 64); len(got) != 0 {
		t.Fatalf("expected empty directory, got %d", len(got))
	}
	first.Close()

	testutil.CreateTestFile(t, dir, "late.pdf", []byte("x"))

	second, _ := a.OpenDir(context.Background())
	defer second.Close()
	if got := drain(t, second, 64); len(got) != 1 {
		t.Fatalf("fresh enumeration should see the new file, got %d", len(got))
	}
}

func TestOpenDir_RootRemoved(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "hot")
	os.Mkdir(dir, 0755)
	a, _ := New(dir)
	os.RemoveAll(dir)

	if _, err := a.OpenDir(context.Background()); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestReadStatDelete(t *testing.T) {
	dir := t.TempDir()
	testutil.CreateTestFile(t, dir, "scan.pdf", []byte("hello"))
	os.Mkdir(filepath.Join(dir, "sub"), 0755)

	a, _ := New(dir)
	ctx := context.Background()

	info, err := a.Stat(ctx, "scan.pdf")
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	if info.Size != 5 || !info.IsFile() {
		t.Errorf("unexpected info: %+v", info)
	}

	r, err := a.Read(ctx, "scan.pdf")
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	data, _ := io.ReadAll(r)
	r.Close()
	if string(data) != "hello" {
		t.Errorf("Read() = %q", data)
	}

	if _, err := a.Read(ctx, "sub"); !errors.Is(err, domain.ErrNotFile) {
		t.Errorf("Read(dir) expected ErrNotFile, got %v", err)
	}

	if err := a.Delete(ctx, "scan.pdf"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := a.Delete(ctx, "scan.pdf"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("second Delete() expected ErrNotFound, got %v", err)
	}
	if _, err := a.Stat(ctx, "scan.pdf"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Stat() after delete expected ErrNotFound, got %v", err)
	}
}
