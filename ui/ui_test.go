package ui

import (
	"image"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/modshelf/previewcache/internal/cache"
	"github.com/modshelf/previewcache/internal/library"
	"github.com/modshelf/previewcache/internal/preview"
	"github.com/muesli/termenv"
)

func newTestModel(t *testing.T, width, height int) model {
	t.Helper()
	cm := cache.NewCacheManager(nil)
	m := newModel(Config{
		ThumbWidth:   8,
		ThumbHeight:  8,
		ColorProfile: "ascii",
	}, preview.NewLoader(cm, preview.WithThumbnailSize(8, 8)))
	m.common.root = "/library"
	return update(t, m, tea.WindowSizeMsg{Width: width, Height: height})
}

func update(t *testing.T, m model, msg tea.Msg) model {
	t.Helper()
	next, _ := m.Update(msg)
	um, ok := next.(model)
	if !ok {
		t.Fatalf("unexpected model type %T", next)
	}
	return um
}

func keyRunes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func addItems(t *testing.T, m model, ids ...string) model {
	t.Helper()
	for _, id := range ids {
		m = update(t, m, foundItemMsg(library.Item{
			Path: "/library/" + id + ".png",
			ID:   cache.ModID(id),
			Name: library.DisplayName(cache.ModID(id)),
		}))
	}
	return m
}

func TestRenderThumbnail(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 4, 3))

	lines := renderThumbnail(termenv.Ascii, img, 6, 3)
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d", len(lines))
	}

	want := []string{"▀▀▀▀  ", "▀▀▀▀  ", "      "}
	for i, line := range lines {
		if line != want[i] {
			t.Errorf("line %d: got %q, want %q", i, line, want[i])
		}
	}
}

func TestRenderThumbnailColors(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 1, 2))
	lines := renderThumbnail(termenv.TrueColor, img, 1, 1)
	// Transparent pixels carry no color.
	if lines[0] != upperHalfBlock {
		t.Errorf("unexpected rendering %q", lines[0])
	}

	for y := 0; y < 2; y++ {
		img.Pix[y*img.Stride+3] = 0xff
	}
	lines = renderThumbnail(termenv.TrueColor, img, 1, 1)
	if !strings.Contains(lines[0], "\x1b[") {
		t.Errorf("expected escape sequences, got %q", lines[0])
	}
}

func TestGridLayout(t *testing.T) {
	g := newGridLayout(10, 10, 50, 30)
	if g.columns != 4 || g.thumbRows != 5 || g.rows != 4 {
		t.Errorf("unexpected layout %+v", g)
	}
	if g.perPage() != 16 {
		t.Errorf("expected 16 per page, got %d", g.perPage())
	}

	tiny := newGridLayout(10, 10, 3, 3)
	if tiny.perPage() != 1 {
		t.Errorf("expected at least one cell, got %d", tiny.perPage())
	}
}

func TestFilterItems(t *testing.T) {
	items := []library.Item{
		{ID: "armor/preview"},
		{ID: "boots/icon"},
		{ID: "cape"},
	}

	if got := filterItems(items, ""); len(got) != 3 {
		t.Errorf("empty filter should keep everything, got %d", len(got))
	}

	got := filterItems(items, "arm")
	if len(got) == 0 || got[0].ID != "armor/preview" {
		t.Errorf("expected armor first, got %+v", got)
	}

	if got := filterItems(items, "zzz"); len(got) != 0 {
		t.Errorf("expected no matches, got %+v", got)
	}
}

func TestModel_Paging(t *testing.T) {
	// 8px thumbnails are 10 columns wide and 6 rows tall with captions,
	// so a 40x20 terminal fits 4x2 cells per page.
	m := newTestModel(t, 40, 20)
	m = addItems(t, m, "a0", "a1", "a2", "a3", "a4", "a5", "a6", "a7", "a8", "a9")

	if m.paginator.PerPage != 8 {
		t.Fatalf("expected 8 per page, got %d", m.paginator.PerPage)
	}
	if m.paginator.TotalPages != 2 {
		t.Fatalf("expected 2 pages, got %d", m.paginator.TotalPages)
	}

	m = update(t, m, tea.KeyMsg{Type: tea.KeyPgDown})
	if m.paginator.Page != 1 || m.cursor != 8 {
		t.Errorf("expected page 1 cursor 8, got page %d cursor %d", m.paginator.Page, m.cursor)
	}

	m = update(t, m, tea.KeyMsg{Type: tea.KeyRight})
	m = update(t, m, tea.KeyMsg{Type: tea.KeyRight})
	if m.cursor != 9 {
		t.Errorf("cursor should stop at the last item, got %d", m.cursor)
	}

	m = update(t, m, tea.KeyMsg{Type: tea.KeyUp})
	if m.cursor != 5 || m.paginator.Page != 0 {
		t.Errorf("expected cursor 5 on page 0, got cursor %d page %d", m.cursor, m.paginator.Page)
	}

	m = update(t, m, keyRunes("x"))
	if m.cursor != 5 {
		t.Errorf("unbound key moved the cursor to %d", m.cursor)
	}
}

func TestModel_ItemsStaySorted(t *testing.T) {
	m := newTestModel(t, 80, 40)
	m = addItems(t, m, "cape", "armor", "boots", "armor")

	if len(m.items) != 3 {
		t.Fatalf("expected duplicates to collapse, got %d items", len(m.items))
	}
	for i, want := range []cache.ModID{"armor", "boots", "cape"} {
		if m.items[i].ID != want {
			t.Errorf("item %d: got %q, want %q", i, m.items[i].ID, want)
		}
	}
}

func TestModel_Filter(t *testing.T) {
	m := newTestModel(t, 80, 40)
	m = addItems(t, m, "armor", "boots", "cape")

	m = update(t, m, keyRunes("/"))
	if m.state != stateFiltering {
		t.Fatalf("expected filtering state, got %s", m.state)
	}

	m = update(t, m, keyRunes("b"))
	m = update(t, m, keyRunes("o"))
	if len(m.visible) != 1 || m.visible[0].ID != "boots" {
		t.Errorf("expected only boots, got %+v", m.visible)
	}

	m = update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	if m.state != stateBrowse || !m.filterApplied() {
		t.Errorf("enter should keep the filter and return to the grid")
	}

	m = update(t, m, tea.KeyMsg{Type: tea.KeyEsc})
	if m.filterApplied() || len(m.visible) != 3 {
		t.Errorf("esc should clear the filter, got %d visible", len(m.visible))
	}
}

func TestModel_ClearCache(t *testing.T) {
	m := newTestModel(t, 80, 40)
	cm := m.loader.Cache()
	cm.PutFastPath("armor", preview.NewBitmap(image.NewRGBA(image.Rect(0, 0, 8, 8)), "png"))
	cm.PutAsset("/library/armor.png", preview.NewBitmap(image.NewRGBA(image.Rect(0, 0, 16, 16)), "png"))

	m = update(t, m, keyRunes("c"))

	if n := cm.Stats().ItemCount(); n != 0 {
		t.Errorf("expected empty cache, got %d items", n)
	}
	if m.stats.Size() != 0 {
		t.Errorf("stats should be refreshed, got size %d", m.stats.Size())
	}
	if !strings.Contains(m.statusMessage, "Cleared cache") {
		t.Errorf("unexpected status message %q", m.statusMessage)
	}
}

func TestModel_Reload(t *testing.T) {
	m := newTestModel(t, 80, 40)
	m = addItems(t, m, "armor", "boots")
	m = update(t, m, searchFinishedMsg{})
	m.loader.Cache().PutFastPath("armor", preview.NewBitmap(image.NewRGBA(image.Rect(0, 0, 8, 8)), "png"))

	m = update(t, m, keyRunes("r"))

	if !m.searching {
		t.Error("reload should start a new search")
	}
	if len(m.items) != 0 || len(m.visible) != 0 {
		t.Error("reload should drop the current listing")
	}
	if n := m.loader.Cache().Stats().ItemCount(); n != 0 {
		t.Errorf("reload should clear the cache, got %d items", n)
	}
}

func TestModel_FileRemoved(t *testing.T) {
	m := newTestModel(t, 80, 40)
	m = addItems(t, m, "armor", "boots")
	cm := m.loader.Cache()
	cm.PutFastPath("armor", preview.NewBitmap(image.NewRGBA(image.Rect(0, 0, 8, 8)), "png"))
	cm.PutAsset("/library/armor.png", preview.NewBitmap(image.NewRGBA(image.Rect(0, 0, 16, 16)), "png"))

	m = update(t, m, fileChangedMsg{path: "/library/armor.png", removed: true})

	if len(m.items) != 1 || m.items[0].ID != "boots" {
		t.Errorf("expected only boots to remain, got %+v", m.items)
	}
	if n := cm.Stats().ItemCount(); n != 0 {
		t.Errorf("removed image should be invalidated, got %d cached", n)
	}
}

func TestModel_ThumbnailFailure(t *testing.T) {
	m := newTestModel(t, 80, 40)
	m = addItems(t, m, "armor")

	m = update(t, m, thumbnailLoadedMsg{id: "armor", err: preview.ErrUnsupportedFormat})
	if m.failed["armor"] == nil {
		t.Fatal("failure should be recorded")
	}
	if m.pending["armor"] {
		t.Error("failed load should no longer be pending")
	}
	if !strings.Contains(m.View(), "failed") {
		t.Error("failed thumbnail should render a placeholder")
	}
}

func TestModel_View(t *testing.T) {
	m := newTestModel(t, 160, 40)
	m = addItems(t, m, "cape")
	m = update(t, m, searchFinishedMsg{})
	m.loader.Cache().PutFastPath("cape", preview.NewBitmap(image.NewRGBA(image.Rect(0, 0, 8, 8)), "png"))

	view := m.View()
	for _, want := range []string{"Cape", "1 image", "asset 0", upperHalfBlock} {
		if !strings.Contains(view, want) {
			t.Errorf("view is missing %q", want)
		}
	}
}

func TestStatsView(t *testing.T) {
	s := cache.ManagerStats{
		Asset:    cache.TierStats{Capacity: 256_000_000, Size: 3_400_000, ItemCount: 12, HitRate: 0.87},
		FastPath: cache.TierStats{Capacity: cache.Unlimited, ItemCount: 2},
	}

	got := statsView(s)
	for _, want := range []string{"asset 12 · 3.4 MB/256 MB · 87%", "fast 2 · 0 B/unlimited · 0%"} {
		if !strings.Contains(got, want) {
			t.Errorf("statsView() = %q, missing %q", got, want)
		}
	}
}

func TestLibraryWatcher(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "preview.png")
	if err := os.WriteFile(path, []byte("v1"), 0o644); err != nil {
		t.Fatal(err)
	}

	w, err := newLibraryWatcher(time.Millisecond)
	if err != nil {
		t.Fatalf("unable to create watcher: %v", err)
	}
	defer w.close() //nolint:errcheck
	w.add(path)

	msgs := make(chan tea.Msg, 1)
	go func() { msgs <- w.next() }()

	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("v2"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case msg := <-msgs:
		changed, ok := msg.(fileChangedMsg)
		if !ok {
			t.Fatalf("unexpected message %T", msg)
		}
		if changed.path != path || changed.removed {
			t.Errorf("unexpected change %+v", changed)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for change")
	}
}
