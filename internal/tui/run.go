package tui

import (
	"context"
	"io"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/starford/xq/internal/session"
)

// Run drives ctrl interactively until the user selects or cancels. The
// interface is drawn on out so that stdout stays free for the selection.
func Run(ctx context.Context, ctrl *session.Controller, out io.Writer) (session.Snapshot, error) {
	p := tea.NewProgram(New(ctrl),
		tea.WithContext(ctx),
		tea.WithOutput(out),
		tea.WithAltScreen(),
	)
	if _, err := p.Run(); err != nil {
		ctrl.Cancel()
		return ctrl.Snapshot(), err
	}
	// Quitting from outside the model, e.g. on ctx cancellation, leaves a
	// live session behind.
	ctrl.Cancel()
	return ctrl.Snapshot(), nil
}
