package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog/log"
	"github.com/saravenpi/fieldpost/internal/i18n"
	"github.com/saravenpi/fieldpost/internal/models"
	"github.com/saravenpi/fieldpost/internal/reconciler"
)

// FarmSource lists the farms a new conversation can be started with.
type FarmSource interface {
	FetchFarms(ctx context.Context) ([]models.Farm, error)
}

// App carries what every screen needs.
type App struct {
	Ctx        context.Context
	Reconciler *reconciler.Reconciler
	Farms      FarmSource
	Now        func() time.Time
}

func (a *App) now() time.Time {
	if a.Now != nil {
		return a.Now()
	}
	return time.Now()
}

func (a *App) catalog() *i18n.Catalog {
	if sess := a.Reconciler.Session(); sess != nil {
		return sess.Catalog()
	}
	return i18n.Default()
}

func (a *App) t(key string) string {
	return a.catalog().T(key)
}

func (a *App) userID() string {
	if sess := a.Reconciler.Session(); sess != nil {
		return sess.UserID
	}
	return ""
}

// changedMsg tells the current screen to re-read the reconciler snapshot.
type changedMsg struct{}

// Run starts the terminal program on the given screen and forwards
// reconciler changes to whichever screen is showing.
func Run(app *App, initial tea.Model) error {
	p := tea.NewProgram(initial, tea.WithAltScreen())

	ctx, cancel := context.WithCancel(app.Ctx)
	defer cancel()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-app.Reconciler.Changes():
				p.Send(changedMsg{})
			}
		}
	}()

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("terminal program failed: %w", err)
	}
	log.Info().Msg("Terminal program exited")
	return nil
}

// resize replays the last known window size on a freshly built screen.
func resize(model tea.Model, width, height int) (tea.Model, tea.Cmd) {
	if width <= 0 {
		return model, nil
	}
	return model.Update(tea.WindowSizeMsg{Width: width, Height: height})
}

// formatThreadTime renders a timestamp for the thread list.
func formatThreadTime(t, now time.Time, catalog *i18n.Catalog) string {
	if t.IsZero() {
		return ""
	}

	switch models.DayBucket(t, now) {
	case models.BucketToday:
		return t.In(now.Location()).Format("15:04")
	case models.BucketYesterday:
		return catalog.T("messages.yesterday")
	case models.BucketThisWeek:
		return t.In(now.Location()).Format("Mon")
	default:
		return t.In(now.Location()).Format("Jan 2")
	}
}

// preview shortens text to one line of at most n runes.
func preview(text string, n int) string {
	text = strings.Join(strings.Fields(text), " ")
	runes := []rune(text)
	if len(runes) <= n {
		return text
	}
	return string(runes[:n-3]) + "..."
}
