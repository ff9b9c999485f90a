package ui

import (
	"github.com/modshelf/previewcache/internal/library"
	"github.com/sahilm/fuzzy"
)

// itemSource exposes items to the fuzzy matcher by identifier.
type itemSource []library.Item

func (s itemSource) String(i int) string { return string(s[i].ID) }
func (s itemSource) Len() int            { return len(s) }

// filterItems returns the items matching term, best match first. An empty
// term matches everything in library order.
func filterItems(items []library.Item, term string) []library.Item {
	if term == "" {
		return items
	}

	matches := fuzzy.FindFrom(term, itemSource(items))
	filtered := make([]library.Item, 0, len(matches))
	for _, m := range matches {
		filtered = append(filtered, items[m.Index])
	}
	return filtered
}
