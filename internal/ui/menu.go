package ui

import (
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
)

type menuAction int

const (
	actionConversations menuAction = iota
	actionNewConversation
)

type menuItem struct {
	title  string
	desc   string
	action menuAction
}

func (i menuItem) FilterValue() string { return i.title }
func (i menuItem) Title() string       { return i.title }
func (i menuItem) Description() string { return i.desc }

type MenuModel struct {
	app          *App
	list         list.Model
	windowWidth  int
	windowHeight int
}

// NewMenuModel creates the main menu with Conversations and New conversation options.
func NewMenuModel(app *App) MenuModel {
	items := []list.Item{
		menuItem{title: "💬 " + app.t("app.conversations"), desc: app.t("app.conversations_desc"), action: actionConversations},
		menuItem{title: "🌱 " + app.t("app.new_conversation"), desc: app.t("app.new_conversation_desc"), action: actionNewConversation},
	}

	delegate := list.NewDefaultDelegate()
	delegate.Styles.SelectedTitle = delegate.Styles.SelectedTitle.
		Foreground(selectedTitleColor).
		BorderForeground(selectedTitleColor).
		Bold(true)
	delegate.Styles.SelectedDesc = delegate.Styles.SelectedDesc.
		Foreground(selectedDescColor).
		BorderForeground(selectedTitleColor)

	l := list.New(items, delegate, 80, 14)
	l.Title = app.t("app.title")
	l.SetShowStatusBar(false)
	l.SetFilteringEnabled(false)
	l.SetShowHelp(false)

	return MenuModel{
		app:          app,
		list:         l,
		windowWidth:  80,
		windowHeight: 30,
	}
}

func (m MenuModel) Init() tea.Cmd {
	return nil
}

func (m MenuModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.windowWidth = msg.Width
		m.windowHeight = msg.Height
		m.list.SetWidth(msg.Width)
		m.list.SetHeight(msg.Height - 4)
		return m, nil

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" || msg.String() == "q" {
			return m, tea.Quit
		}

		if msg.String() == "enter" {
			selectedItem, ok := m.list.SelectedItem().(menuItem)
			if !ok {
				return m, nil
			}

			var next tea.Model
			switch selectedItem.action {
			case actionConversations:
				next = NewConversationsModel(m.app)
			case actionNewConversation:
				next = NewNewConversationModel(m.app, Prefill{})
			default:
				return m, nil
			}
			next, cmd := resize(next, m.windowWidth, m.windowHeight)
			return next, tea.Batch(next.Init(), cmd)
		}
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m MenuModel) View() string {
	s := m.list.View() + "\n"
	s += helpStyle.Render("↑↓/jk: navigate • enter: select • q: quit")
	return s
}
