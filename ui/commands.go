package ui

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/pagecast/internal/audio"
	"github.com/dgnsrekt/pagecast/internal/playback"
	"github.com/muesli/termenv"
)

// rateStep is the rate change per key press, in percent.
const rateStep = 10

type command func(ctx context.Context) (playback.Snapshot, error)

// dispatch runs a controller command off the event loop.
func (m *model) dispatch(op string, fn command) tea.Cmd {
	m.busy++
	ctx := m.ctx
	return func() tea.Msg {
		snap, err := fn(ctx)
		return snapshotMsg{op: op, snap: snap, err: err}
	}
}

// completed reports the end of a playback instance to the controller.
func (m *model) completed(instance uint64) tea.Cmd {
	ctl := m.deps.Controller
	return m.dispatch("completed", func(ctx context.Context) (playback.Snapshot, error) {
		return ctl.PlaybackCompleted(ctx, instance)
	})
}

func (m model) loadDocument(op string) tea.Cmd {
	var (
		ctx      = m.ctx
		ctl      = m.deps.Controller
		open     = m.deps.Open
		path     = m.cfg.Path
		autoPlay = m.cfg.AutoPlay
	)
	return func() tea.Msg {
		store, err := open(path)
		if err != nil {
			return snapshotMsg{op: op, snap: ctl.Snapshot(), err: err}
		}
		snap, err := ctl.LoadDocument(store)
		if err != nil {
			_ = store.Close()
			return snapshotMsg{op: op, snap: snap, err: err}
		}
		if !autoPlay {
			return snapshotMsg{op: op, snap: snap, err: err}
		}
		snap, err = ctl.RequestAudio(ctx)
		return snapshotMsg{op: op, snap: snap, err: err}
	}
}

// handleKey runs the command bound to msg. It reports false for keys it
// does not handle so they can scroll the viewport.
func (m *model) handleKey(msg tea.KeyMsg) (tea.Cmd, bool) {
	ctl := m.deps.Controller

	switch {
	case key.Matches(msg, m.keys.Quit):
		return m.quit(), true

	case key.Matches(msg, m.keys.Help):
		m.showHelp = !m.showHelp
		m.setSize()
		return nil, true

	case key.Matches(msg, m.keys.Next):
		return m.dispatch("next", ctl.NavigateNext), true

	case key.Matches(msg, m.keys.Prev):
		return m.dispatch("prev", ctl.NavigatePrev), true

	case key.Matches(msg, m.keys.Retry):
		return m.dispatch("read", ctl.RequestAudio), true

	case key.Matches(msg, m.keys.Jump):
		if !m.snap.Loaded {
			return m.showStatusMessage("No document loaded", true), true
		}
		m.jumping = true
		m.jump.Reset()
		m.setSize()
		return m.jump.Focus(), true

	case key.Matches(msg, m.keys.Auto):
		snap := ctl.SetAutoAdvance(!m.snap.AutoAdvance)
		if snap.AutoAdvance {
			return m.showStatusMessage("Auto-advance on", false), true
		}
		return m.showStatusMessage("Auto-advance off", false), true

	case key.Matches(msg, m.keys.Faster):
		return m.changeRate(rateStep), true

	case key.Matches(msg, m.keys.Slower):
		return m.changeRate(-rateStep), true

	case key.Matches(msg, m.keys.Pause):
		return m.togglePause(), true

	case key.Matches(msg, m.keys.Yank):
		return yankCmd(m.snap.Text), true
	}

	return nil, false
}

func (m *model) changeRate(delta int) tea.Cmd {
	r := m.snap.Rate.Step(delta)
	if r == m.snap.Rate {
		return m.showStatusMessage("Rate limit reached ("+r.String()+")", false)
	}
	snap, err := m.deps.Controller.ChangeRate(r)
	if err != nil {
		return m.showStatusMessage(err.Error(), true)
	}
	return m.showStatusMessage(fmt.Sprintf("Rate %s from the next page, r to reread", snap.Rate), false)
}

func (m *model) togglePause() tea.Cmd {
	if m.deps.Player == nil {
		return nil
	}
	switch m.deps.Player.TogglePause() {
	case audio.StatePaused:
		return m.showStatusMessage("Paused", false)
	case audio.StatePlaying:
		return m.showStatusMessage("Resumed", false)
	default:
		return m.showStatusMessage("Nothing is playing", false)
	}
}

func (m model) updateJump(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg.Type {
	case tea.KeyCtrlC:
		return m, m.quit()
	case tea.KeyEsc:
		m.closeJump()
	case tea.KeyEnter:
		q := strings.TrimSpace(m.jump.Value())
		m.closeJump()
		if q != "" {
			cmds = append(cmds, m.jumpTo(q))
		}
	default:
		var cmd tea.Cmd
		m.jump, cmd = m.jump.Update(msg)
		cmds = append(cmds, cmd)
	}

	m.refresh(&cmds)
	return m, tea.Batch(cmds...)
}

func (m *model) closeJump() {
	m.jumping = false
	m.jump.Blur()
	m.setSize()
}

// jumpTo goes to a 1-based page number, or to the page whose title best
// matches q.
func (m *model) jumpTo(q string) tea.Cmd {
	ctl := m.deps.Controller

	if n, err := strconv.Atoi(q); err == nil {
		return m.dispatch("jump", func(ctx context.Context) (playback.Snapshot, error) {
			return ctl.JumpTo(ctx, n-1)
		})
	}
	return m.dispatch("jump", func(ctx context.Context) (playback.Snapshot, error) {
		found, err := ctl.Find(q)
		if err != nil {
			return ctl.Snapshot(), err
		}
		if len(found) == 0 {
			return ctl.Snapshot(), fmt.Errorf("no page matches %q", q)
		}
		return ctl.JumpTo(ctx, found[0].Page)
	})
}

// handleResult turns the outcome of a controller command into a status
// message.
func (m *model) handleResult(msg snapshotMsg) tea.Cmd {
	switch {
	case errors.Is(msg.err, playback.ErrStale), errors.Is(msg.err, context.Canceled):
		return nil
	case msg.err != nil:
		log.Debug("command failed", "op", msg.op, "error", msg.err)
		return m.showStatusMessage(msg.err.Error(), true)
	case msg.snap.Err != nil:
		return m.showStatusMessage("Playback failed: "+msg.snap.Err.Error(), true)
	case msg.snap.NoAudio:
		return m.showStatusMessage(fmt.Sprintf("Page %d has no text", msg.snap.Page+1), false)
	case msg.snap.State == playback.StateFinished:
		return m.showStatusMessage("Finished reading", false)
	}
	return nil
}

func yankCmd(text string) tea.Cmd {
	return func() tea.Msg {
		if strings.TrimSpace(text) == "" {
			return statusMsg{text: "Nothing to copy", isErr: true}
		}
		// OSC52 reaches the local terminal over ssh
		termenv.Copy(text)
		if err := clipboard.WriteAll(text); err != nil {
			log.Error("error copying page text", "error", err)
			return statusMsg{text: "Could not copy: " + err.Error(), isErr: true}
		}
		return statusMsg{text: "Copied page text"}
	}
}
