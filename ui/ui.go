// Package ui provides the grid browser for a library of mod preview images.
package ui

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/paginator"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"
	"github.com/modshelf/previewcache/internal/cache"
	"github.com/modshelf/previewcache/internal/library"
	"github.com/modshelf/previewcache/internal/preview"
	"github.com/muesli/gitcha"
	"github.com/muesli/termenv"
)

const (
	statusMessageTimeout = time.Second * 3 // how long to show status messages like "copied!"
	ellipsis             = "…"

	// header, blank line, pagination and status bar
	chromeHeight = 4
)

// NewProgram returns a new Tea program browsing cfg.Path through loader.
func NewProgram(cfg Config, loader *preview.Loader) *tea.Program {
	log.Debug(
		"Starting previewcache",
		"path",
		cfg.Path,
		"watch",
		cfg.WatchEnabled,
	)

	opts := []tea.ProgramOption{tea.WithAltScreen()}
	if cfg.EnableMouse {
		opts = append(opts, tea.WithMouseCellMotion())
	}
	m := newModel(cfg, loader)
	return tea.NewProgram(m, opts...)
}

type errMsg struct{ err error }

func (e errMsg) Error() string { return e.err.Error() }

type (
	initSearchMsg struct {
		root string
		ch   chan gitcha.SearchResult
	}
	foundItemMsg       library.Item
	searchFinishedMsg  struct{}
	thumbnailLoadedMsg struct {
		id  cache.ModID
		err error
	}
	imageInfoMsg struct {
		item   library.Item
		bitmap *preview.Bitmap
		err    error
	}
	statusMessageTimeoutMsg struct{}
	statsTickMsg            time.Time
)

// state is the top-level application state.
type state int

const (
	stateBrowse state = iota
	stateFiltering
)

func (s state) String() string {
	return map[state]string{
		stateBrowse:    "showing grid",
		stateFiltering: "editing filter",
	}[s]
}

// Common stuff we'll need to access in all models.
type commonModel struct {
	cfg     Config
	root    string
	width   int
	height  int
	profile termenv.Profile
}

type model struct {
	common    *commonModel
	state     state
	searching bool
	fatalErr  error
	loader    *preview.Loader

	items   []library.Item // everything found, sorted by ID
	visible []library.Item // items passing the filter
	cursor  int            // index into visible

	pending map[cache.ModID]bool
	failed  map[cache.ModID]error

	paginator   paginator.Model
	spinner     spinner.Model
	filterInput textinput.Model
	showHelp    bool

	stats              cache.ManagerStats
	statusMessage      string
	statusMessageTimer *time.Timer

	// Channel that receives paths to preview images
	// (via the github.com/muesli/gitcha package)
	finder  chan gitcha.SearchResult
	watcher *libraryWatcher
}

func newModel(cfg Config, loader *preview.Loader) model {
	if cfg.ThumbWidth <= 0 {
		cfg.ThumbWidth = preview.DefaultThumbWidth
	}
	if cfg.ThumbHeight <= 0 {
		cfg.ThumbHeight = preview.DefaultThumbHeight
	}

	common := &commonModel{
		cfg:     cfg,
		profile: colorProfile(cfg.ColorProfile),
	}

	p := paginator.New()
	p.Type = paginator.Dots
	p.ActiveDot = selectedNameStyle("•")
	p.InactiveDot = dimStyle("•")
	p.KeyMap = paginator.KeyMap{
		PrevPage: key.NewBinding(key.WithKeys("pgup", "b", "u")),
		NextPage: key.NewBinding(key.WithKeys("pgdown", "f", "d")),
	}

	sp := spinner.New(spinner.WithSpinner(spinner.Line))
	sp.Style = sp.Style.Foreground(fuchsia)

	ti := textinput.New()
	ti.Prompt = "Find: "
	ti.PromptStyle = ti.PromptStyle.Foreground(fuchsia)
	ti.CharLimit = 64

	m := model{
		common:      common,
		state:       stateBrowse,
		searching:   true,
		loader:      loader,
		pending:     make(map[cache.ModID]bool),
		failed:      make(map[cache.ModID]error),
		paginator:   p,
		spinner:     sp,
		filterInput: ti,
		stats:       loader.Cache().Stats(),
	}

	if cfg.WatchEnabled {
		w, err := newLibraryWatcher(cfg.ReloadEvery)
		if err != nil {
			log.Error("error creating fsnotify watcher", "error", err)
		} else {
			m.watcher = w
		}
	}

	m.layout()
	return m
}

func colorProfile(name string) termenv.Profile {
	switch strings.ToLower(name) {
	case "ascii":
		return termenv.Ascii
	case "ansi":
		return termenv.ANSI
	case "ansi256":
		return termenv.ANSI256
	case "truecolor":
		return termenv.TrueColor
	default:
		return termenv.ColorProfile()
	}
}

func (m model) Init() tea.Cmd {
	log.Debug("Init() called", "state", m.state)
	cmds := []tea.Cmd{
		m.spinner.Tick,
		findItems(*m.common),
		statsTick(m.common.cfg.StatsInterval),
	}
	if m.watcher != nil {
		cmds = append(cmds, m.watcher.next)
	}
	return tea.Batch(cmds...)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	// If there's been an error, any key exits
	if m.fatalErr != nil {
		if _, ok := msg.(tea.KeyMsg); ok {
			return m, m.quit()
		}
	}

	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.state == stateFiltering {
			return m.updateFilter(msg)
		}
		return m.handleKey(msg)

	// Window size is received when starting up and on every resize
	case tea.WindowSizeMsg:
		m.common.width = msg.Width
		m.common.height = msg.Height
		m.layout()
		cmds = append(cmds, m.loadVisible()...)

	case errMsg:
		m.fatalErr = msg.err

	case initSearchMsg:
		m.finder = msg.ch
		m.common.root = msg.root
		cmds = append(cmds, findNextItem(msg.root, m.finder))

	case foundItemMsg:
		item := library.Item(msg)
		m.addItem(item)
		if m.watcher != nil {
			m.watcher.add(item.Path)
		}
		cmds = append(cmds, m.loadVisible()...)
		cmds = append(cmds, findNextItem(m.common.root, m.finder))

	case searchFinishedMsg:
		log.Debug("library search finished", "items", len(m.items))
		m.searching = false

	case thumbnailLoadedMsg:
		delete(m.pending, msg.id)
		if msg.err != nil {
			log.Debug("unable to load thumbnail", "id", msg.id, "error", msg.err)
			m.failed[msg.id] = msg.err
		} else {
			delete(m.failed, msg.id)
		}

	case imageInfoMsg:
		if msg.err != nil {
			cmds = append(cmds, m.showStatusMessage(errorStyle("Unable to decode "+msg.item.Name)))
			break
		}
		cmds = append(cmds, m.showStatusMessage(fmt.Sprintf("%s · %d×%d %s · %s on disk",
			msg.item.Name,
			msg.bitmap.Width(),
			msg.bitmap.Height(),
			msg.bitmap.Format(),
			humanize.Bytes(uint64(max(msg.item.Size, 0))), //nolint:gosec
		)))

	case fileChangedMsg:
		cmds = append(cmds, m.handleFileChange(msg)...)
		if m.watcher != nil {
			cmds = append(cmds, m.watcher.next)
		}

	case statsTickMsg:
		m.stats = m.loader.Cache().Stats()
		cmds = append(cmds, statsTick(m.common.cfg.StatsInterval))

	case statusMessageTimeoutMsg:
		m.statusMessage = ""

	case spinner.TickMsg:
		if m.searching {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			cmds = append(cmds, cmd)
		}
	}

	return m, tea.Batch(cmds...)
}

func (m model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	g := m.gridLayout()

	switch msg.String() {
	case "q", "ctrl+c":
		return m, m.quit()

	case "ctrl+z":
		return m, tea.Suspend

	case "esc":
		if m.filterApplied() {
			m.resetFilter()
			return m, tea.Batch(m.loadVisible()...)
		}

	case "/":
		m.state = stateFiltering
		return m, m.filterInput.Focus()

	case "?":
		m.showHelp = !m.showHelp
		m.layout()
		return m, tea.Batch(m.loadVisible()...)

	case "left", "h":
		m.moveCursor(-1)
	case "right", "l":
		m.moveCursor(1)
	case "up", "k":
		m.moveCursor(-g.columns)
	case "down", "j":
		m.moveCursor(g.columns)
	case "home", "g":
		m.moveCursor(-len(m.visible))
	case "end", "G":
		m.moveCursor(len(m.visible))

	case "enter":
		if item, ok := m.selected(); ok {
			return m, imageInfo(m.loader, item)
		}

	case "y":
		item, ok := m.selected()
		if !ok {
			break
		}
		if err := clipboard.WriteAll(item.Path); err != nil {
			log.Warn("unable to copy to clipboard", "error", err)
			return m, m.showStatusMessage(errorStyle("Clipboard unavailable"))
		}
		return m, m.showStatusMessage("Copied " + item.Path)

	case "c":
		freed := m.loader.Cache().Stats().Size()
		m.loader.Cache().ClearAll()
		clear(m.failed)
		m.stats = m.loader.Cache().Stats()
		log.Info("cache cleared", "freed", humanize.Bytes(uint64(max(freed, 0)))) //nolint:gosec
		cmds := append(m.loadVisible(),
			m.showStatusMessage("Cleared cache, freed "+humanize.Bytes(uint64(max(freed, 0))))) //nolint:gosec
		return m, tea.Batch(cmds...)

	case "r":
		return m, m.reload()

	default:
		page := m.paginator.Page
		var cmd tea.Cmd
		m.paginator, cmd = m.paginator.Update(msg)
		if m.paginator.Page != page {
			m.cursor = min(m.paginator.Page*g.perPage(), max(len(m.visible)-1, 0))
		}
		return m, tea.Batch(append(m.loadVisible(), cmd)...)
	}

	return m, tea.Batch(m.loadVisible()...)
}

func (m model) updateFilter(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.resetFilter()
		return m, tea.Batch(m.loadVisible()...)
	case "enter", "tab", "down":
		m.filterInput.Blur()
		m.state = stateBrowse
		return m, nil
	case "ctrl+c":
		return m, m.quit()
	}

	var cmd tea.Cmd
	m.filterInput, cmd = m.filterInput.Update(msg)
	m.applyFilter()
	return m, tea.Batch(append(m.loadVisible(), cmd)...)
}

// reload drops every cached image and searches the library again.
func (m *model) reload() tea.Cmd {
	m.loader.Cache().ClearAll()
	m.items = nil
	m.visible = nil
	m.cursor = 0
	m.paginator.Page = 0
	clear(m.pending)
	clear(m.failed)
	m.stats = m.loader.Cache().Stats()
	m.searching = true
	log.Info("reloading library", "root", m.common.root)
	return tea.Batch(m.spinner.Tick, findItems(*m.common))
}

func (m *model) handleFileChange(msg fileChangedMsg) []tea.Cmd {
	i := slices.IndexFunc(m.items, func(it library.Item) bool { return it.Path == msg.path })

	if msg.removed {
		if i < 0 {
			return nil
		}
		item := m.items[i]
		m.loader.Cache().Invalidate(item.Asset(), item.ID)
		m.items = slices.Delete(m.items, i, i+1)
		m.applyFilter()
		log.Debug("image removed", "id", item.ID)
		return m.loadVisible()
	}

	if i < 0 {
		item, err := library.Stat(m.common.root, msg.path)
		if err != nil {
			log.Debug("ignoring change", "path", msg.path, "error", err)
			return nil
		}
		m.addItem(item)
		return m.loadVisible()
	}

	item := m.items[i]
	m.pending[item.ID] = true
	return []tea.Cmd{reloadThumbnail(m.loader, item)}
}

func (m *model) addItem(item library.Item) {
	i, found := slices.BinarySearchFunc(m.items, item.ID, func(it library.Item, id cache.ModID) int {
		return strings.Compare(string(it.ID), string(id))
	})
	if found {
		m.items[i] = item
	} else {
		m.items = slices.Insert(m.items, i, item)
	}
	m.applyFilter()
}

func (m *model) applyFilter() {
	m.visible = filterItems(m.items, m.filterInput.Value())
	m.paginator.SetTotalPages(len(m.visible))
	if len(m.visible) == 0 {
		m.paginator.TotalPages = 1
	}
	m.moveCursor(0)
}

func (m model) filterApplied() bool {
	return m.filterInput.Value() != ""
}

func (m *model) resetFilter() {
	m.filterInput.Reset()
	m.filterInput.Blur()
	m.state = stateBrowse
	m.applyFilter()
}

func (m *model) moveCursor(delta int) {
	m.cursor = max(0, min(m.cursor+delta, len(m.visible)-1))
	if per := m.paginator.PerPage; per > 0 {
		m.paginator.Page = m.cursor / per
	}
}

func (m model) selected() (library.Item, bool) {
	if m.cursor < 0 || m.cursor >= len(m.visible) {
		return library.Item{}, false
	}
	return m.visible[m.cursor], true
}

func (m model) gridLayout() gridLayout {
	height := m.common.height - chromeHeight
	if m.showHelp {
		height--
	}
	return newGridLayout(m.common.cfg.ThumbWidth, m.common.cfg.ThumbHeight, m.common.width, height)
}

// layout recomputes the page size after a resize.
func (m *model) layout() {
	m.paginator.PerPage = m.gridLayout().perPage()
	m.paginator.SetTotalPages(len(m.visible))
	m.moveCursor(0)
}

// loadVisible queues thumbnail loads for items on the current page that are
// neither cached nor already loading.
func (m model) loadVisible() []tea.Cmd {
	start, end := m.paginator.GetSliceBounds(len(m.visible))
	var cmds []tea.Cmd
	for _, item := range m.visible[start:end] {
		if m.pending[item.ID] || m.failed[item.ID] != nil {
			continue
		}
		if m.loader.Cache().FastPath().Contains(item.ID) {
			continue
		}
		m.pending[item.ID] = true
		cmds = append(cmds, loadThumbnail(m.loader, item))
	}
	return cmds
}

func (m *model) showStatusMessage(msg string) tea.Cmd {
	m.statusMessage = msg
	if m.statusMessageTimer != nil {
		m.statusMessageTimer.Stop()
	}
	m.statusMessageTimer = time.NewTimer(statusMessageTimeout)
	return waitForStatusMessageTimeout(m.statusMessageTimer)
}

func (m model) quit() tea.Cmd {
	if m.watcher != nil {
		if err := m.watcher.close(); err != nil {
			log.Debug("unable to close watcher", "error", err)
		}
	}
	return tea.Quit
}

func (m model) View() string {
	if m.fatalErr != nil {
		return errorView(m.fatalErr, true)
	}

	var b strings.Builder
	fmt.Fprintln(&b, m.headerView())
	fmt.Fprintln(&b)

	g := m.gridLayout()
	body := m.gridView(g)
	fmt.Fprint(&b, body)

	// Pin the footer to the bottom of the screen.
	used := strings.Count(body, "\n") + 1
	if body == "" {
		used = 0
	}
	avail := m.common.height - chromeHeight
	if m.showHelp {
		avail--
	}
	fmt.Fprint(&b, strings.Repeat("\n", max(avail-used, 0)+1))

	if m.paginator.TotalPages > 1 {
		fmt.Fprint(&b, " "+m.paginator.View())
	}
	fmt.Fprintln(&b)

	m.statusBarView(&b)
	if m.showHelp {
		fmt.Fprint(&b, "\n"+m.helpView())
	}
	return b.String()
}

func (m model) headerView() string {
	switch {
	case m.state == stateFiltering:
		return " " + m.filterInput.View()
	case m.filterApplied():
		return " " + subtleStyle("Filter: ") + m.filterInput.Value() + dimStyle("  (esc to clear)")
	default:
		return " " + subtleStyle(m.common.root)
	}
}

func (m model) gridView(g gridLayout) string {
	if len(m.visible) == 0 {
		switch {
		case m.searching:
			return " " + m.spinner.View() + subtleStyle(" Looking for preview images…")
		case m.filterApplied():
			return " " + subtleStyle("Nothing matches.")
		default:
			return " " + subtleStyle("No preview images found.")
		}
	}

	start, end := m.paginator.GetSliceBounds(len(m.visible))
	cells := make([]string, 0, end-start)
	for i, item := range m.visible[start:end] {
		cells = append(cells, m.cellView(item, start+i == m.cursor, g))
	}
	return gridView(cells, g)
}

func (m model) cellView(item library.Item, selected bool, g gridLayout) string {
	var thumb []string
	img, ok := m.loader.Cache().GetFastPath(item.ID)
	bm, isBitmap := img.(*preview.Bitmap)
	switch {
	case ok && isBitmap:
		thumb = renderThumbnail(m.common.profile, bm.Image(), g.thumbWidth, g.thumbRows)
	case m.failed[item.ID] != nil:
		thumb = placeholderCell("failed", g.thumbWidth, g.thumbRows)
	default:
		thumb = placeholderCell("loading", g.thumbWidth, g.thumbRows)
	}
	return cellView(thumb, item.Name, selected, g.thumbWidth)
}

func errorView(err error, fatal bool) string {
	exitMsg := "press any key to "
	if fatal {
		exitMsg += "exit"
	} else {
		exitMsg += "return"
	}
	s := fmt.Sprintf("%s\n\n%v\n\n%s",
		errorTitleStyle("ERROR"),
		err,
		subtleStyle(exitMsg),
	)
	return "\n" + indent(s, 3)
}

// COMMANDS

func findItems(m commonModel) tea.Cmd {
	return func() tea.Msg {
		log.Info("findItems")
		var (
			root = m.cfg.Path
			err  error
		)

		if root == "" {
			root, err = os.Getwd()
		} else {
			root, err = filepath.Abs(root)
		}
		if err != nil {
			log.Error("error finding preview images", "error", err)
			return errMsg{err}
		}

		ch, err := library.Find(root, m.cfg.ShowAllFiles)
		if err != nil {
			log.Error("error finding preview images", "error", err)
			return errMsg{err}
		}

		log.Debug("library directory is", "root", root)
		return initSearchMsg{ch: ch, root: root}
	}
}

func findNextItem(root string, ch chan gitcha.SearchResult) tea.Cmd {
	return func() tea.Msg {
		res, ok := <-ch
		if ok {
			// Okay now find the next one
			return foundItemMsg(library.NewItem(root, res))
		}
		// We're done
		log.Debug("library search finished")
		return searchFinishedMsg{}
	}
}

func loadThumbnail(l *preview.Loader, item library.Item) tea.Cmd {
	return func() tea.Msg {
		_, err := l.Thumbnail(item.Asset(), item.ID)
		return thumbnailLoadedMsg{id: item.ID, err: err}
	}
}

func reloadThumbnail(l *preview.Loader, item library.Item) tea.Cmd {
	return func() tea.Msg {
		_, err := l.Reload(item.Asset(), item.ID)
		return thumbnailLoadedMsg{id: item.ID, err: err}
	}
}

func imageInfo(l *preview.Loader, item library.Item) tea.Cmd {
	return func() tea.Msg {
		bm, err := l.Full(item.Asset())
		return imageInfoMsg{item: item, bitmap: bm, err: err}
	}
}

func statsTick(every time.Duration) tea.Cmd {
	if every <= 0 {
		every = time.Second
	}
	return tea.Tick(every, func(t time.Time) tea.Msg {
		return statsTickMsg(t)
	})
}

func waitForStatusMessageTimeout(t *time.Timer) tea.Cmd {
	return func() tea.Msg {
		<-t.C
		return statusMessageTimeoutMsg{}
	}
}

// ETC

// Lightweight version of reflow's indent function.
func indent(s string, n int) string {
	if n <= 0 || s == "" {
		return s
	}
	l := strings.Split(s, "\n")
	b := strings.Builder{}
	i := strings.Repeat(" ", n)
	for _, v := range l {
		fmt.Fprintf(&b, "%s%s\n", i, v)
	}
	return b.String()
}
