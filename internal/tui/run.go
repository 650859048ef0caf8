package tui

import (
	"context"
	"errors"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/tobert/trace-studio/internal/storage"
)

// Run draws the traces table on the terminal until the user quits or ctx
// is cancelled.
func Run(ctx context.Context, feed *storage.Feed, controls Controls, opts Options) error {
	changes, unsubscribe := feed.Subscribe()
	defer unsubscribe()

	m := New(feed, controls, changes, opts)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil {
		if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("failed to run terminal UI: %w", err)
	}
	return nil
}
