package ui

import "time"

// Config contains TUI-specific configuration.
type Config struct {
	ShowAllFiles bool
	EnableMouse  bool

	// Library directory to browse
	Path string

	// Thumbnail bounds in pixels. Two pixel rows share one terminal row.
	ThumbWidth  int
	ThumbHeight int

	// For debugging the UI
	WatchEnabled  bool          `env:"PREVIEWCACHE_WATCH"          envDefault:"true"`
	ReloadEvery   time.Duration `env:"PREVIEWCACHE_RELOAD_EVERY"   envDefault:"250ms"`
	ColorProfile  string        `env:"PREVIEWCACHE_COLOR_PROFILE"`
	StatsInterval time.Duration `env:"PREVIEWCACHE_STATS_INTERVAL" envDefault:"1s"`
}
