// Package library finds mod preview images on disk and derives the logical
// identifiers the fast-path cache tier is keyed by.
package library

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/modshelf/previewcache/internal/cache"
	"github.com/muesli/gitcha"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// ErrNotDirectory is returned when a library root is not a directory.
var ErrNotDirectory = errors.New("not a directory")

// ImageExtensions are the file patterns treated as preview images.
var ImageExtensions = []string{
	"*.png", "*.jpg", "*.jpeg", "*.gif", "*.webp",
}

var ignorePatterns = []string{
	".git", "node_modules", ".cache",
}

// Item is one preview image in the library.
type Item struct {
	Path    string      // Absolute path; the asset tier key
	ID      cache.ModID // Path relative to the root without extension
	Name    string      // Human readable title
	Modtime time.Time
	Size    int64 // File size in bytes
}

// Asset returns the asset tier key for the item.
func (i Item) Asset() cache.AssetPath {
	return cache.AssetPath(i.Path)
}

// Find starts a search for preview images below root. Unless all is set,
// files ignored by git are skipped. The channel is closed when the search
// completes.
func Find(root string, all bool) (chan gitcha.SearchResult, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("unable to stat library: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s: %w", root, ErrNotDirectory)
	}

	root, err = filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("unable to get absolute path: %w", err)
	}

	log.Debug("searching library", "root", root, "all", all)
	if all {
		return gitcha.FindAllFilesExcept(root, ImageExtensions, nil)
	}
	return gitcha.FindFilesExcept(root, ImageExtensions, ignorePatterns)
}

// Collect runs Find to completion and returns the items sorted by ID.
func Collect(root string, all bool) ([]Item, error) {
	ch, err := Find(root, all)
	if err != nil {
		return nil, err
	}

	root, _ = filepath.Abs(root)
	var items []Item
	for res := range ch {
		items = append(items, NewItem(root, res))
	}

	slices.SortFunc(items, func(a, b Item) int {
		return strings.Compare(string(a.ID), string(b.ID))
	})
	return items, nil
}

// NewItem converts a search result below root into an Item.
func NewItem(root string, res gitcha.SearchResult) Item {
	item := Item{
		Path: res.Path,
		ID:   ModIDFor(root, res.Path),
	}
	item.Name = DisplayName(item.ID)
	if res.Info != nil {
		item.Modtime = res.Info.ModTime()
		item.Size = res.Info.Size()
	}
	return item
}

// Stat builds an Item for a single file below root, used when a new image
// appears after the initial search.
func Stat(root, path string) (Item, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Item{}, fmt.Errorf("unable to stat image: %w", err)
	}
	if info.IsDir() {
		return Item{}, fmt.Errorf("%s: is a directory", path)
	}
	return NewItem(root, gitcha.SearchResult{Path: path, Info: info}), nil
}

// IsImage reports whether path matches one of ImageExtensions.
func IsImage(path string) bool {
	base := strings.ToLower(filepath.Base(path))
	for _, pattern := range ImageExtensions {
		if ok, _ := filepath.Match(pattern, base); ok {
			return true
		}
	}
	return false
}

// ModIDFor derives the logical identifier of the image at path: its
// slash-separated path relative to root, without extension. Paths outside
// root fall back to the base name.
func ModIDFor(root, path string) cache.ModID {
	rel, err := filepath.Rel(root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		rel = filepath.Base(path)
	}
	rel = strings.TrimSuffix(rel, filepath.Ext(rel))
	return cache.ModID(filepath.ToSlash(rel))
}

// DisplayName turns an identifier such as "armor_pack/preview-hd" into
// "Armor Pack / Preview Hd".
func DisplayName(id cache.ModID) string {
	// Casers are stateful and must not be shared between goroutines.
	caser := cases.Title(language.English)
	parts := strings.Split(string(id), "/")
	for i, p := range parts {
		p = strings.NewReplacer("_", " ", "-", " ").Replace(p)
		parts[i] = caser.String(strings.Join(strings.Fields(p), " "))
	}
	return strings.Join(parts, " / ")
}
