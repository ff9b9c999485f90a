package ui

import (
	"context"
	"path/filepath"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
	"github.com/modshelf/previewcache/internal/library"
	"golang.org/x/time/rate"
)

// fileChangedMsg reports that a preview image was written, created or
// removed below the library root.
type fileChangedMsg struct {
	path    string
	removed bool
}

// libraryWatcher follows the directories holding preview images so changed
// files can be re-decoded. Reload bursts, such as a mod update rewriting
// many images at once, are throttled.
type libraryWatcher struct {
	fs      *fsnotify.Watcher
	limiter *rate.Limiter
	dirs    map[string]struct{}
}

func newLibraryWatcher(every time.Duration) (*libraryWatcher, error) {
	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if every <= 0 {
		every = 250 * time.Millisecond
	}
	return &libraryWatcher{
		fs:      fs,
		limiter: rate.NewLimiter(rate.Every(every), 4),
		dirs:    make(map[string]struct{}),
	}, nil
}

// add starts watching the directory containing path.
func (w *libraryWatcher) add(path string) {
	dir := filepath.Dir(path)
	if _, ok := w.dirs[dir]; ok {
		return
	}
	if err := w.fs.Add(dir); err != nil {
		log.Error("error adding dir to fsnotify watcher", "dir", dir, "error", err)
		return
	}
	w.dirs[dir] = struct{}{}
	log.Debug("fsnotify watching dir", "dir", dir)
}

// next blocks until an image changes and returns it as a message. It
// returns nil once the watcher is closed.
func (w *libraryWatcher) next() tea.Msg {
	for {
		select {
		case event, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			if !library.IsImage(event.Name) {
				continue
			}

			switch {
			case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
				log.Debug("fsnotify event", "file", event.Name, "event", event.Op)
				return fileChangedMsg{path: event.Name, removed: true}
			case event.Has(fsnotify.Write), event.Has(fsnotify.Create):
				if err := w.limiter.Wait(context.Background()); err != nil {
					log.Debug("reload throttle", "error", err)
				}
				log.Debug("fsnotify event", "file", event.Name, "event", event.Op)
				return fileChangedMsg{path: event.Name}
			}
		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			log.Debug("fsnotify error", "error", err)
		}
	}
}

func (w *libraryWatcher) close() error {
	return w.fs.Close()
}
