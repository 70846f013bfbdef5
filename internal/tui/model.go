// Package tui is the terminal front end of the interactive session. All
// state lives in session.Controller; the model only translates key presses
// into controller events and renders snapshots.
package tui

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/cursor"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/starford/xq/internal/apperr"
	"github.com/starford/xq/internal/ranking"
	"github.com/starford/xq/internal/session"
)

const (
	defaultWidth  = 80
	defaultHeight = 24
	minListRows   = 3
)

type resultsMsg struct {
	seq     uint64
	results []ranking.Ranked
	err     error
}

type previewErrMsg struct{ err error }

// Model is the bubbletea model of one session.
type Model struct {
	ctrl    *session.Controller
	input   textinput.Model
	preview viewport.Model
	keys    keyMap
	styles  styles
	width   int
	height  int
	status  string
}

// New wraps ctrl in a model. The controller's current text seeds the input.
func New(ctrl *session.Controller) *Model {
	in := textinput.New()
	in.Prompt = "> "
	in.Placeholder = "search notes"
	in.SetValue(ctrl.Snapshot().Text)
	in.Cursor.SetMode(cursor.CursorStatic)
	in.Focus()

	st := defaultStyles()
	in.PromptStyle = st.prompt

	return &Model{
		ctrl:    ctrl,
		input:   in,
		preview: viewport.New(defaultWidth, defaultHeight/2),
		keys:    newKeyMap(),
		styles:  st,
		width:   defaultWidth,
		height:  defaultHeight,
	}
}

// Init runs the seeded query so results are visible immediately.
func (m *Model) Init() tea.Cmd {
	return m.submit()
}

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.resizePreview()
		return m, nil

	case resultsMsg:
		m.ctrl.Deliver(msg.seq, msg.results, msg.err)
		return m, nil

	case previewErrMsg:
		m.status = msg.err.Error()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	m.status = ""
	switch {
	case key.Matches(msg, m.keys.cancel):
		m.ctrl.Cancel()
		return m, tea.Quit

	case key.Matches(msg, m.keys.selectNote):
		if _, err := m.ctrl.Select(); err != nil {
			if m.ctrl.State() == session.Querying {
				return m, m.submit()
			}
			m.status = "nothing to select"
			return m, nil
		}
		return m, tea.Quit

	case key.Matches(msg, m.keys.up):
		m.ctrl.Prev()
		return m, m.refreshPreview()

	case key.Matches(msg, m.keys.down):
		m.ctrl.Next()
		return m, m.refreshPreview()

	case key.Matches(msg, m.keys.top):
		m.ctrl.Top()
		return m, m.refreshPreview()

	case key.Matches(msg, m.keys.bottom):
		m.ctrl.Bottom()
		return m, m.refreshPreview()

	case key.Matches(msg, m.keys.preview):
		if m.ctrl.State() == session.Previewing {
			m.ctrl.ClosePreview()
			return m, nil
		}
		return m, m.openPreview()
	}

	before := m.input.Value()
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	if m.input.Value() == before {
		return m, cmd
	}
	m.ctrl.Edit(m.input.Value())
	return m, tea.Batch(cmd, m.submit())
}

// submit compiles the current text and returns the command that runs it.
// Syntax errors surface through the controller snapshot.
func (m *Model) submit() tea.Cmd {
	req, err := m.ctrl.Submit()
	if err != nil {
		return nil
	}
	return func() tea.Msg {
		results, err := m.ctrl.Execute(req)
		return resultsMsg{seq: req.Seq, results: results, err: err}
	}
}

func (m *Model) openPreview() tea.Cmd {
	p, err := m.ctrl.OpenPreview()
	if err != nil {
		if errors.Is(err, session.ErrNoResult) {
			return nil
		}
		return func() tea.Msg { return previewErrMsg{err: err} }
	}
	m.preview.SetContent(m.renderBody(p))
	m.preview.GotoTop()
	return nil
}

func (m *Model) refreshPreview() tea.Cmd {
	if m.ctrl.State() != session.Previewing {
		return nil
	}
	return m.openPreview()
}

func (m *Model) resizePreview() {
	m.preview.Width = m.width
	m.preview.Height = max(m.height/2, minListRows)
}

// View implements tea.Model.
func (m *Model) View() string {
	snap := m.ctrl.Snapshot()
	var b strings.Builder
	b.WriteString(m.input.View())
	b.WriteByte('\n')

	if snap.Err != nil {
		b.WriteString(m.styles.err.Render(describeError(snap.Err)))
		b.WriteByte('\n')
	}

	rows := m.height - 3
	if snap.State == session.Previewing {
		rows -= m.preview.Height + 1
	}
	rows = max(rows, minListRows)
	b.WriteString(m.renderList(snap, rows))

	if snap.State == session.Previewing {
		b.WriteString(m.styles.border.Width(m.width).Render(m.preview.View()))
		b.WriteByte('\n')
	}

	b.WriteString(m.renderStatus(snap))
	return b.String()
}

func (m *Model) renderList(snap session.Snapshot, rows int) string {
	if len(snap.Results) == 0 {
		if snap.State == session.Browsing {
			return m.styles.status.Render("no matches") + "\n"
		}
		return ""
	}
	first := 0
	if snap.Cursor >= rows {
		first = snap.Cursor - rows + 1
	}
	last := min(first+rows, len(snap.Results))

	var b strings.Builder
	for i := first; i < last; i++ {
		r := snap.Results[i]
		marker := "  "
		title := m.styles.title.Render(r.Title)
		if i == snap.Cursor {
			marker = m.styles.cursor.Render("▸ ")
			title = m.styles.cursor.Render(r.Title)
		}
		fmt.Fprintf(&b, "%s%s %s\n", marker, title, m.styles.path.Render(r.Path))
	}
	return b.String()
}

func (m *Model) renderStatus(snap session.Snapshot) string {
	if m.status != "" {
		return m.styles.err.Render(m.status)
	}
	help := make([]string, 0, len(m.keys.help()))
	for _, k := range m.keys.help() {
		h := k.Help()
		help = append(help, h.Key+" "+h.Desc)
	}
	count := fmt.Sprintf("%d/%d", min(snap.Cursor+1, len(snap.Results)), len(snap.Results))
	return m.styles.status.Render(count + "  " + strings.Join(help, " · "))
}

func (m *Model) renderBody(p *session.Preview) string {
	body := p.Doc.Body
	var b strings.Builder
	prev := 0
	for _, s := range p.Highlights {
		b.WriteString(body[prev:s.Start])
		b.WriteString(m.styles.highlight.Render(body[s.Start:s.End]))
		prev = s.End
	}
	b.WriteString(body[prev:])
	return b.String()
}

func describeError(err error) string {
	var qe *apperr.QuerySyntaxError
	if errors.As(err, &qe) {
		return fmt.Sprintf("%s at %d: %q", qe.Reason, qe.Pos, qe.Token)
	}
	return err.Error()
}
