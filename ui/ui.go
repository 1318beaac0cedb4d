// Package ui provides the terminal reader for pagecast.
package ui

import (
	"context"
	"path/filepath"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/pagecast/internal/audio"
	"github.com/dgnsrekt/pagecast/internal/document"
	"github.com/dgnsrekt/pagecast/internal/playback"
	"github.com/dgnsrekt/pagecast/internal/synth"
	"github.com/fsnotify/fsnotify"
)

const (
	statusMessageTimeout = time.Second * 3 // how long to show status messages like "copied!"
	statusBarHeight      = 1
	ellipsis             = "…"
)

// Controller is the part of *playback.Controller the reader drives.
type Controller interface {
	Snapshot() playback.Snapshot
	LoadDocument(store document.Store) (playback.Snapshot, error)
	Unload() playback.Snapshot
	RequestAudio(ctx context.Context) (playback.Snapshot, error)
	NavigateNext(ctx context.Context) (playback.Snapshot, error)
	NavigatePrev(ctx context.Context) (playback.Snapshot, error)
	JumpTo(ctx context.Context, index int) (playback.Snapshot, error)
	PlaybackCompleted(ctx context.Context, instance uint64) (playback.Snapshot, error)
	ChangeRate(r synth.Rate) (playback.Snapshot, error)
	SetAutoAdvance(on bool) playback.Snapshot
	Find(query string) ([]document.Entry, error)
}

// Player is the part of *audio.Player the reader drives.
type Player interface {
	TogglePause() audio.PlayerState
	State() audio.PlayerState
}

// Deps are the components behind the reader.
type Deps struct {
	Controller Controller
	Player     Player // optional
	Open       func(path string) (document.Store, error)
}

// NewProgram returns a new Tea program.
func NewProgram(cfg Config, deps Deps) *tea.Program {
	log.Debug(
		"Starting pagecast",
		"path",
		cfg.Path,
		"glamour",
		cfg.GlamourEnabled,
		"watch",
		cfg.Watch,
	)

	opts := []tea.ProgramOption{tea.WithAltScreen()}
	if cfg.EnableMouse {
		opts = append(opts, tea.WithMouseCellMotion())
	}
	return tea.NewProgram(newModel(cfg, deps), opts...)
}

// CompletionNotifier returns a playback completion callback that forwards
// completions into p.
func CompletionNotifier(p *tea.Program) func(instance uint64) {
	return func(instance uint64) {
		p.Send(playbackDoneMsg{instance: instance})
	}
}

type (
	// snapshotMsg carries the result of a controller command.
	snapshotMsg struct {
		op   string
		snap playback.Snapshot
		err  error
	}
	playbackDoneMsg struct{ instance uint64 }
	contentRenderedMsg struct {
		key     renderKey
		content string
	}
	statusMsg struct {
		text  string
		isErr bool
	}
	statusMessageTimeoutMsg struct{ id int }
	reloadMsg               struct{}
	removedMsg              struct{}
)

// renderKey identifies rendered page content.
type renderKey struct {
	path  string
	page  int
	text  string
	width int
}

type model struct {
	cfg    Config
	deps   Deps
	keys   keyMap
	ctx    context.Context
	cancel context.CancelFunc

	width  int
	height int

	viewport viewport.Model
	help     help.Model
	spinner  spinner.Model
	jump     textinput.Model
	jumping  bool
	showHelp bool

	snap     playback.Snapshot
	busy     int // controller commands in flight
	spinning bool
	want     renderKey
	shown    renderKey

	statusMessage string
	statusIsError bool
	statusID      int

	watcher *fsnotify.Watcher
}

func newModel(cfg Config, deps Deps) model {
	if abs, err := filepath.Abs(cfg.Path); err == nil {
		cfg.Path = abs
	}

	ctx, cancel := context.WithCancel(context.Background())

	vp := viewport.New(0, 0)
	vp.YPosition = 0

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	ti := textinput.New()
	ti.Prompt = "go to page: "
	ti.PromptStyle = jumpPromptStyle
	ti.Placeholder = "number or title"
	ti.CharLimit = 64

	h := help.New()
	h.ShowAll = true

	m := model{
		cfg:      cfg,
		deps:     deps,
		keys:     newKeyMap(),
		ctx:      ctx,
		cancel:   cancel,
		viewport: vp,
		help:     h,
		spinner:  sp,
		jump:     ti,
		busy:     1, // initial load
		spinning: true,
	}
	m.snap = deps.Controller.Snapshot()
	if cfg.Watch {
		m.initWatcher()
	}
	return m
}

func (m model) Init() tea.Cmd {
	cmds := []tea.Cmd{m.loadDocument("load"), m.spinner.Tick}
	if m.watcher != nil {
		cmds = append(cmds, m.watchFile)
	}
	return tea.Batch(cmds...)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.jumping {
			return m.updateJump(msg)
		}
		if cmd, ok := m.handleKey(msg); ok {
			m.refresh(&cmds)
			cmds = append(cmds, cmd)
			return m, tea.Batch(cmds...)
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		m.setSize()

	case snapshotMsg:
		m.busy = max(0, m.busy-1)
		if cmd := m.handleResult(msg); cmd != nil {
			cmds = append(cmds, cmd)
		}

	case playbackDoneMsg:
		cmds = append(cmds, m.completed(msg.instance))

	case contentRenderedMsg:
		if msg.key == m.want {
			if msg.key.page != m.shown.page || msg.key.path != m.shown.path {
				m.viewport.GotoTop()
			}
			m.viewport.SetContent(msg.content)
			m.shown = msg.key
		}

	case statusMsg:
		cmds = append(cmds, m.showStatusMessage(msg.text, msg.isErr))

	case statusMessageTimeoutMsg:
		if msg.id == m.statusID {
			m.statusMessage = ""
			m.statusIsError = false
		}

	case spinner.TickMsg:
		if m.busy == 0 && !m.snap.Pending {
			m.spinning = false
			break
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		m.spinning = true
		cmds = append(cmds, cmd)

	case reloadMsg:
		log.Info("document changed on disk, reloading", "path", m.cfg.Path)
		cmds = append(cmds, m.loadDocument("reload"), m.watchFile)
		m.busy++

	case removedMsg:
		log.Info("document removed", "path", m.cfg.Path)
		m.snap = m.deps.Controller.Unload()
		cmds = append(cmds, m.showStatusMessage("Document removed", true), m.watchFile)
	}

	m.viewport, _ = m.viewport.Update(msg)
	m.refresh(&cmds)
	return m, tea.Batch(cmds...)
}

// refresh pulls the latest snapshot and schedules rendering and the spinner
// as needed.
func (m *model) refresh(cmds *[]tea.Cmd) {
	m.snap = m.deps.Controller.Snapshot()

	want := renderKey{
		path:  m.snap.Document.Path,
		page:  m.snap.Page,
		text:  m.snap.Text,
		width: m.viewport.Width,
	}
	if want != m.want && m.width > 0 {
		m.want = want
		*cmds = append(*cmds, renderPageCmd(m.cfg, want))
	}

	if (m.busy > 0 || m.snap.Pending) && !m.spinning {
		m.spinning = true
		*cmds = append(*cmds, m.spinner.Tick)
	}
}

func (m model) View() string {
	if m.width == 0 {
		return ""
	}

	var b []string
	b = append(b, m.viewport.View())
	if m.jumping {
		b = append(b, m.jump.View())
	}
	b = append(b, m.statusBarView())
	if m.showHelp {
		b = append(b, m.helpView())
	}

	out := b[0]
	for _, s := range b[1:] {
		out += "\n" + s
	}
	return out
}

func (m *model) setSize() {
	h := m.height - statusBarHeight
	if m.jumping {
		h--
	}
	if m.showHelp {
		h -= helpHeight(m.helpView())
	}
	m.viewport.Width = m.width
	m.viewport.Height = max(0, h)
}

func (m *model) showStatusMessage(text string, isErr bool) tea.Cmd {
	m.statusID++
	m.statusMessage = text
	m.statusIsError = isErr
	id := m.statusID
	return tea.Tick(statusMessageTimeout, func(time.Time) tea.Msg {
		return statusMessageTimeoutMsg{id: id}
	})
}

func (m *model) quit() tea.Cmd {
	m.cancel()
	m.unwatchFile()
	return tea.Quit
}
