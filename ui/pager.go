package ui

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/glamour/styles"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/pagecast/internal/audio"
	"github.com/dgnsrekt/pagecast/internal/playback"
	"github.com/fsnotify/fsnotify"
	runewidth "github.com/mattn/go-runewidth"
)

// horizontal margin around page text
const pageMargin = 2

// reloadSettle is how long file events are coalesced before a reload.
const reloadSettle = 150 * time.Millisecond

var markdownExtensions = []string{
	".md", ".mdown", ".mkdn", ".mkd", ".markdown",
}

func isMarkdownFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, v := range markdownExtensions {
		if ext == v {
			return true
		}
	}
	return false
}

func renderPageCmd(cfg Config, key renderKey) tea.Cmd {
	return func() tea.Msg {
		out, err := renderPage(cfg, key)
		if err != nil {
			log.Error("error rendering page", "page", key.page, "error", err)
			out = key.text
		}
		return contentRenderedMsg{key: key, content: out}
	}
}

// renderPage renders the text of one page for the viewport.
func renderPage(cfg Config, key renderKey) (string, error) {
	width := max(0, key.width-2*pageMargin)
	if cfg.GlamourMaxWidth > 0 {
		width = min(width, int(cfg.GlamourMaxWidth)) //nolint:gosec
	}

	switch {
	case key.path == "":
		return "\n" + indent(emptyPageStyle("No document loaded."), pageMargin), nil
	case strings.TrimSpace(key.text) == "":
		return "\n" + indent(emptyPageStyle("This page has no text."), pageMargin), nil
	case !cfg.GlamourEnabled || !isMarkdownFile(key.path):
		return "\n" + indent(lipgloss.NewStyle().Width(width).Render(key.text), pageMargin), nil
	}

	options := []glamour.TermRendererOption{
		glamourStyle(cfg.GlamourStyle),
		glamour.WithWordWrap(width),
	}
	if cfg.PreserveNewLines {
		options = append(options, glamour.WithPreservedNewLines())
	}
	r, err := glamour.NewTermRenderer(options...)
	if err != nil {
		return "", fmt.Errorf("error creating glamour renderer: %w", err)
	}

	out, err := r.Render(key.text)
	if err != nil {
		return "", fmt.Errorf("error rendering markdown: %w", err)
	}
	return out, nil
}

func glamourStyle(style string) glamour.TermRendererOption {
	switch {
	case style == "" || style == styles.AutoStyle:
		return glamour.WithAutoStyle()
	case styles.DefaultStyles[style] != nil:
		return glamour.WithStandardStyle(style)
	default:
		return glamour.WithStylePath(style)
	}
}

func (m model) statusBarView() string {
	showStatusMessage := m.statusMessage != ""

	noteStyle, posStyle, helpStyle := statusBarNoteStyle, statusBarPageStyle, statusBarHelpStyle
	switch {
	case showStatusMessage && m.statusIsError:
		noteStyle, posStyle, helpStyle = statusBarErrorStyle, statusBarErrorStyle, statusBarErrorHelpStyle
	case showStatusMessage:
		noteStyle, posStyle, helpStyle = statusBarMessageStyle, statusBarMessageStyle, statusBarMessageHelpStyle
	}

	logo := logoView()

	pos := " -/- "
	if m.snap.Loaded {
		pos = fmt.Sprintf(" %d/%d ", m.snap.Page+1, m.snap.TotalPages)
	}

	helpNote := " ? Help "

	note := m.statusMessage
	if !showStatusMessage {
		note = m.noteText()
	}

	avail := max(0, m.width-lipgloss.Width(logo)-runewidth.StringWidth(pos)-runewidth.StringWidth(helpNote))
	note = runewidth.Truncate(" "+note+" ", avail, ellipsis)
	note += strings.Repeat(" ", max(0, avail-runewidth.StringWidth(note)))

	return logo + noteStyle(note) + posStyle(pos) + helpStyle(helpNote)
}

func (m model) noteText() string {
	if !m.snap.Loaded {
		if m.busy > 0 {
			return m.spinner.View() + " Loading " + filepath.Base(m.cfg.Path)
		}
		return "No document"
	}

	parts := []string{
		filepath.Base(m.snap.Document.Path),
		m.stateText(),
		"rate " + m.snap.Rate.String(),
	}
	if m.snap.AutoAdvance {
		parts = append(parts, "auto")
	}
	return strings.Join(parts, " · ")
}

func (m model) stateText() string {
	switch {
	case m.snap.Pending:
		return m.spinner.View() + " synthesizing"
	case m.snap.NoAudio:
		return "no text"
	case m.snap.State == playback.StatePlaying && m.deps.Player != nil &&
		m.deps.Player.State() == audio.StatePaused:
		return "paused"
	default:
		return m.snap.State.String()
	}
}

func (m model) helpView() string {
	return helpViewStyle.
		Width(m.width).
		Padding(1, pageMargin).
		Render(m.help.View(m.keys))
}

func helpHeight(s string) int {
	return lipgloss.Height(s)
}

func (m *model) initWatcher() {
	var err error
	m.watcher, err = fsnotify.NewWatcher()
	if err != nil {
		log.Error("error creating fsnotify watcher", "error", err)
	}
}

// watchFile blocks until the document changes and reports it as a reloadMsg
// or removedMsg. Bursts of events, as editors produce on save, are coalesced.
func (m model) watchFile() tea.Msg {
	if m.watcher == nil {
		return nil
	}
	dir := m.localDir()

	if err := m.watcher.Add(dir); err != nil {
		log.Error("error adding dir to fsnotify watcher", "error", err)
		return nil
	}

	log.Info("fsnotify watching dir", "dir", dir)

	var (
		result tea.Msg
		settle <-chan time.Time
	)
	for {
		select {
		case event, ok := <-m.watcher.Events:
			if !ok {
				return nil
			}
			if event.Name != m.cfg.Path {
				continue
			}

			log.Debug("fsnotify event", "file", event.Name, "event", event.Op)
			switch {
			case event.Has(fsnotify.Write), event.Has(fsnotify.Create):
				result = reloadMsg{}
			case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
				result = removedMsg{}
			default:
				continue
			}
			settle = time.After(reloadSettle)
		case <-settle:
			return result
		case err, ok := <-m.watcher.Errors:
			if !ok {
				return nil
			}
			log.Debug("fsnotify error", "dir", dir, "error", err)
		}
	}
}

func (m *model) unwatchFile() {
	if m.watcher == nil {
		return
	}
	if err := m.watcher.Close(); err != nil {
		log.Error("fsnotify fail to close watcher", "error", err)
		return
	}
	log.Debug("fsnotify watcher closed", "dir", m.localDir())
}

func (m model) localDir() string {
	return filepath.Dir(m.cfg.Path)
}
