package ui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/saravenpi/fieldpost/internal/i18n"
	"github.com/saravenpi/fieldpost/internal/models"
)

type threadItem struct {
	thread  models.Thread
	when    string
	catalog *i18n.Catalog
}

type threadsLoadedMsg struct {
	err error
}

func (i threadItem) Title() string {
	title := i.thread.ContextName
	if title == "" {
		title = i.catalog.T("messages.unknown_farm")
	}
	if i.thread.CounterpartyName != "" {
		title += " · " + i.thread.CounterpartyName
	}
	if i.thread.Unread {
		title = unreadStyle.Render("● ") + title
	}
	return title
}

func (i threadItem) Description() string {
	text := i.thread.LastMessage.Body
	if text == "" {
		text = i.thread.LastMessage.Subject
	}
	return fmt.Sprintf("%s • %s", i.when, preview(text, 50))
}

func (i threadItem) FilterValue() string {
	return i.thread.ContextName + " " + i.thread.CounterpartyName
}

type ConversationsModel struct {
	app          *App
	threads      []models.Thread
	list         list.Model
	loading      bool
	err          error
	spinner      spinner.Model
	windowWidth  int
	windowHeight int
}

func NewConversationsModel(app *App) ConversationsModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = statusStyle

	delegate := list.NewDefaultDelegate()
	delegate.Styles.SelectedTitle = delegate.Styles.SelectedTitle.
		Foreground(selectedTitleColor).
		BorderForeground(selectedTitleColor).
		Bold(true)
	delegate.Styles.SelectedDesc = delegate.Styles.SelectedDesc.
		Foreground(selectedDescColor).
		BorderForeground(selectedTitleColor)

	l := list.New([]list.Item{}, delegate, 80, 20)
	l.Title = app.t("messages.your_conversations")
	l.SetShowStatusBar(false)
	l.SetFilteringEnabled(true)
	l.SetShowHelp(false)

	return ConversationsModel{
		app:          app,
		list:         l,
		loading:      true,
		spinner:      s,
		windowWidth:  80,
		windowHeight: 30,
	}
}

func (m ConversationsModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.loadThreadsCmd())
}

func (m ConversationsModel) loadThreadsCmd() tea.Cmd {
	return func() tea.Msg {
		err := m.app.Reconciler.LoadThreads(m.app.Ctx)
		return threadsLoadedMsg{err: err}
	}
}

// refresh copies the reconciler's thread list into the view.
func (m *ConversationsModel) refresh() {
	snap := m.app.Reconciler.Snapshot()
	m.loading = snap.Loading
	m.err = snap.LoadErr
	m.threads = snap.Threads

	catalog := m.app.catalog()
	now := m.app.now()
	items := make([]list.Item, len(m.threads))
	for i, thread := range m.threads {
		items[i] = threadItem{
			thread:  thread,
			when:    formatThreadTime(thread.LastMessage.CreatedAt, now, catalog),
			catalog: catalog,
		}
	}
	m.list.SetItems(items)
	m.list.Title = fmt.Sprintf("%s - %d", m.app.t("messages.your_conversations"), len(m.threads))
}

func (m ConversationsModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.windowWidth = msg.Width
		m.windowHeight = msg.Height
		m.list.SetWidth(msg.Width)
		m.list.SetHeight(msg.Height - 4)
		return m, nil

	case threadsLoadedMsg, changedMsg:
		m.refresh()
		return m, nil

	case spinner.TickMsg:
		if m.loading {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			return m, cmd
		}
		return m, nil

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}

		if m.list.FilterState() == list.Filtering {
			var cmd tea.Cmd
			m.list, cmd = m.list.Update(msg)
			return m, cmd
		}

		switch msg.String() {
		case "q":
			return m, tea.Quit

		case "esc":
			next, cmd := resize(NewMenuModel(m.app), m.windowWidth, m.windowHeight)
			return next, tea.Batch(next.Init(), cmd)

		case "r":
			if !m.loading {
				m.loading = true
				return m, tea.Batch(m.spinner.Tick, m.loadThreadsCmd())
			}
			return m, nil

		case "n":
			next, cmd := resize(NewNewConversationModel(m.app, Prefill{}), m.windowWidth, m.windowHeight)
			return next, tea.Batch(next.Init(), cmd)

		case "enter":
			if m.loading || len(m.threads) == 0 {
				return m, nil
			}
			if item, ok := m.list.SelectedItem().(threadItem); ok {
				next, cmd := resize(NewMessagesModel(m.app, item.thread), m.windowWidth, m.windowHeight)
				return next, tea.Batch(next.Init(), cmd)
			}
			return m, nil
		}

		var cmd tea.Cmd
		m.list, cmd = m.list.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m ConversationsModel) View() string {
	if m.loading && len(m.threads) == 0 {
		return fmt.Sprintf("\n  %s %s\n", m.spinner.View(), m.app.t("messages.loading"))
	}

	if m.err != nil {
		s := titleStyle.Render(m.app.t("messages.your_conversations")) + "\n\n"
		s += errorStyle.Render(m.app.t("messages.error_loading")) + "\n\n"
		s += helpStyle.Render("r: retry • esc: back • q: quit")
		return s
	}

	if len(m.threads) == 0 {
		s := titleStyle.Render(m.app.t("messages.your_conversations")) + "\n\n"
		s += normalStyle.Render("  "+m.app.t("messages.no_conversations")) + "\n"
		s += "\n" + helpStyle.Render("n: new conversation • r: refresh • esc: back • q: quit")
		return s
	}

	s := m.list.View() + "\n"
	s += helpStyle.Render("↑↓/jk: navigate • enter: open • n: new • /: search • r: refresh • esc: back • q: quit")

	return s
}
