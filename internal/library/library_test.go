package library

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/modshelf/previewcache/internal/cache"
)

func writeFile(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir failed: %v", err)
	}
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatalf("write failed: %v", err)
	}
}

func TestCollect(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "zeta", "preview.png"))
	writeFile(t, filepath.Join(root, "alpha", "preview.jpg"))
	writeFile(t, filepath.Join(root, "alpha", "readme.txt"))
	writeFile(t, filepath.Join(root, "banner.webp"))

	items, err := Collect(root, true)
	if err != nil {
		t.Fatalf("Collect failed: %v", err)
	}

	want := []cache.ModID{"alpha/preview", "banner", "zeta/preview"}
	if len(items) != len(want) {
		t.Fatalf("expected %d items, got %d: %+v", len(want), len(items), items)
	}
	for i, item := range items {
		if item.ID != want[i] {
			t.Errorf("item %d: got ID %q, want %q", i, item.ID, want[i])
		}
		if !filepath.IsAbs(item.Path) {
			t.Errorf("item %d: path %q is not absolute", i, item.Path)
		}
		if item.Size != 1 {
			t.Errorf("item %d: size %d, want 1", i, item.Size)
		}
	}
}

func TestFindRejectsFiles(t *testing.T) {
	file := filepath.Join(t.TempDir(), "a.png")
	writeFile(t, file)

	if _, err := Find(file, false); !errors.Is(err, ErrNotDirectory) {
		t.Errorf("expected ErrNotDirectory, got %v", err)
	}
	if _, err := Find(filepath.Join(file, "missing"), false); err == nil {
		t.Error("expected error for missing root")
	}
}

func TestModIDFor(t *testing.T) {
	root := filepath.Join("/", "library")
	tests := []struct {
		path string
		want cache.ModID
	}{
		{filepath.Join(root, "armor", "preview.png"), "armor/preview"},
		{filepath.Join(root, "icon.webp"), "icon"},
		{filepath.Join("/", "elsewhere", "cover.jpg"), "cover"},
	}

	for _, tt := range tests {
		if got := ModIDFor(root, tt.path); got != tt.want {
			t.Errorf("ModIDFor(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestDisplayName(t *testing.T) {
	tests := map[cache.ModID]string{
		"armor_pack/preview-hd": "Armor Pack / Preview Hd",
		"icon":                  "Icon",
		"big__gap":              "Big Gap",
	}

	for id, want := range tests {
		if got := DisplayName(id); got != want {
			t.Errorf("DisplayName(%q) = %q, want %q", id, got, want)
		}
	}
}

func TestIsImage(t *testing.T) {
	for path, want := range map[string]bool{
		"a/b/preview.PNG": true,
		"cover.jpeg":      true,
		"notes.txt":       false,
		"archive.png.zip": false,
	} {
		if got := IsImage(path); got != want {
			t.Errorf("IsImage(%q) = %v, want %v", path, got, want)
		}
	}
}

func TestStat(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "armor", "preview.png")
	writeFile(t, path)

	item, err := Stat(root, path)
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}
	if item.ID != "armor/preview" || item.Path != path || item.Size != 1 {
		t.Errorf("unexpected item: %+v", item)
	}

	if _, err := Stat(root, filepath.Join(root, "armor")); err == nil {
		t.Error("expected error for directory")
	}
	if _, err := Stat(root, filepath.Join(root, "gone.png")); err == nil {
		t.Error("expected error for missing file")
	}
}
