package ui

import (
	"errors"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/saravenpi/fieldpost/internal/models"
	"github.com/saravenpi/fieldpost/internal/reconciler"
)

// Prefill seeds the new conversation form, for example from an order inquiry.
type Prefill struct {
	FarmID  string
	Subject string
	Body    string
}

type farmItem struct {
	farm    models.Farm
	ownedBy string
}

func (i farmItem) Title() string       { return i.farm.Name }
func (i farmItem) Description() string { return i.ownedBy + " " + i.farm.OwnerName }
func (i farmItem) FilterValue() string { return i.farm.Name }

type farmsFetchedMsg struct {
	farms []models.Farm
	err   error
}

type threadStartedMsg struct {
	key models.ThreadKey
	err error
}

var errMissingFields = errors.New("missing fields")

const (
	focusFarm = iota
	focusSubject
	focusBody
	focusCount
)

type NewConversationModel struct {
	app          *App
	prefill      Prefill
	farms        list.Model
	farmCount    int
	subjectInput textinput.Model
	bodyInput    textinput.Model
	spinner      spinner.Model
	focusIndex   int
	loading      bool
	starting     bool
	windowWidth  int
	windowHeight int
	err          error
}

func NewNewConversationModel(app *App, prefill Prefill) NewConversationModel {
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

	farms := list.New([]list.Item{}, delegate, 60, 10)
	farms.Title = app.t("messages.select_farm")
	farms.SetShowStatusBar(false)
	farms.SetFilteringEnabled(false)
	farms.SetShowHelp(false)

	subjectInput := textinput.New()
	subjectInput.Placeholder = app.t("messages.subject_placeholder")
	subjectInput.CharLimit = 200
	subjectInput.Width = 60
	subjectInput.SetValue(prefill.Subject)

	bodyInput := textinput.New()
	bodyInput.Placeholder = app.t("messages.message_placeholder")
	bodyInput.CharLimit = 1000
	bodyInput.Width = 60
	bodyInput.SetValue(prefill.Body)

	return NewConversationModel{
		app:          app,
		prefill:      prefill,
		farms:        farms,
		subjectInput: subjectInput,
		bodyInput:    bodyInput,
		spinner:      s,
		loading:      true,
	}
}

func (m NewConversationModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.fetchFarmsCmd())
}

func (m NewConversationModel) fetchFarmsCmd() tea.Cmd {
	return func() tea.Msg {
		farms, err := m.app.Farms.FetchFarms(m.app.Ctx)
		return farmsFetchedMsg{farms: farms, err: err}
	}
}

func (m NewConversationModel) startThreadCmd(farm models.Farm, subject, body string) tea.Cmd {
	return func() tea.Msg {
		key, err := m.app.Reconciler.StartThread(m.app.Ctx, farm, subject, body)
		return threadStartedMsg{key: key, err: err}
	}
}

func (m *NewConversationModel) setFocus(i int) {
	m.focusIndex = (i + focusCount) % focusCount
	m.subjectInput.Blur()
	m.bodyInput.Blur()
	switch m.focusIndex {
	case focusSubject:
		m.subjectInput.Focus()
	case focusBody:
		m.bodyInput.Focus()
	}
}

func (m NewConversationModel) selectedFarm() (models.Farm, bool) {
	item, ok := m.farms.SelectedItem().(farmItem)
	if !ok {
		return models.Farm{}, false
	}
	return item.farm, true
}

func (m NewConversationModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.windowWidth = msg.Width
		m.windowHeight = msg.Height
		m.farms.SetWidth(msg.Width - 6)
		m.farms.SetHeight(max(msg.Height-16, 6))
		m.subjectInput.Width = msg.Width - 20
		m.bodyInput.Width = msg.Width - 20
		return m, nil

	case farmsFetchedMsg:
		m.loading = false
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}

		userID := m.app.userID()
		ownedBy := m.app.t("messages.owned_by")
		items := make([]list.Item, 0, len(msg.farms))
		selected := -1
		for _, farm := range msg.farms {
			// Farms owned by the user themselves cannot be messaged.
			if farm.OwnerID == "" || farm.OwnerID == userID {
				continue
			}
			if farm.ID == m.prefill.FarmID {
				selected = len(items)
			}
			items = append(items, farmItem{farm: farm, ownedBy: ownedBy})
		}
		m.farms.SetItems(items)
		m.farmCount = len(items)
		if selected >= 0 {
			m.farms.Select(selected)
			m.setFocus(focusSubject)
			if m.prefill.Subject != "" {
				m.setFocus(focusBody)
			}
		}
		return m, nil

	case threadStartedMsg:
		m.starting = false
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}

		thread, ok := m.app.Reconciler.Thread(msg.key)
		if !ok {
			thread = models.Thread{Key: msg.key}
			if farm, found := m.selectedFarm(); found {
				thread.ContextName = farm.Name
				thread.CounterpartyName = farm.OwnerName
			}
		}
		next, cmd := resize(NewMessagesModel(m.app, thread), m.windowWidth, m.windowHeight)
		return next, tea.Batch(next.Init(), cmd)

	case spinner.TickMsg:
		if m.loading || m.starting {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			return m, cmd
		}
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			return m, tea.Quit

		case "esc":
			next, cmd := resize(NewMenuModel(m.app), m.windowWidth, m.windowHeight)
			return next, tea.Batch(next.Init(), cmd)

		case "tab":
			m.setFocus(m.focusIndex + 1)
			return m, nil

		case "shift+tab":
			m.setFocus(m.focusIndex - 1)
			return m, nil

		case "enter", "ctrl+s":
			if m.starting || m.loading {
				return m, nil
			}
			if m.focusIndex != focusBody && msg.String() == "enter" {
				m.setFocus(m.focusIndex + 1)
				return m, nil
			}

			farm, ok := m.selectedFarm()
			subject := strings.TrimSpace(m.subjectInput.Value())
			body := strings.TrimSpace(m.bodyInput.Value())
			if !ok || subject == "" || body == "" {
				m.err = errMissingFields
				return m, nil
			}

			m.err = nil
			m.starting = true
			return m, tea.Batch(m.spinner.Tick, m.startThreadCmd(farm, subject, body))
		}
	}

	var cmd tea.Cmd
	switch m.focusIndex {
	case focusFarm:
		m.farms, cmd = m.farms.Update(msg)
	case focusSubject:
		m.subjectInput, cmd = m.subjectInput.Update(msg)
	case focusBody:
		m.bodyInput, cmd = m.bodyInput.Update(msg)
	}
	return m, cmd
}

func (m NewConversationModel) errorText() string {
	switch {
	case errors.Is(m.err, errMissingFields),
		errors.Is(m.err, reconciler.ErrMissingSubject),
		errors.Is(m.err, reconciler.ErrEmptyMessage),
		errors.Is(m.err, reconciler.ErrNoTarget):
		return m.app.t("messages.missing_fields")
	case errors.Is(m.err, reconciler.ErrWriteFailed):
		return m.app.t("messages.send_error")
	default:
		return m.app.t("messages.error_loading")
	}
}

func label(text string, focused bool) string {
	if focused {
		return inputStyle.Render("> " + text + ":")
	}
	return "  " + text + ":"
}

func (m NewConversationModel) View() string {
	style := lipgloss.NewStyle().
		Padding(1, 2).
		Border(lipgloss.RoundedBorder()).
		BorderForeground(selectedTitleColor)

	content := titleStyle.Render(m.app.t("app.new_conversation")) + "\n"

	var farms string
	switch {
	case m.loading:
		farms = m.spinner.View() + " " + m.app.t("messages.loading")
	case m.farmCount == 0:
		farms = normalStyle.Render(m.app.t("messages.no_farms_available"))
	default:
		farms = m.farms.View()
	}
	if m.focusIndex == focusFarm {
		farms = inputStyle.Render("> ") + "\n" + farms
	}

	content += style.Render(
		farms + "\n\n" +
			label(m.app.t("messages.subject"), m.focusIndex == focusSubject) + "\n" +
			m.subjectInput.View() + "\n\n" +
			label(m.app.t("messages.message"), m.focusIndex == focusBody) + "\n" +
			m.bodyInput.View(),
	)

	if m.starting {
		content += "\n\n" + m.spinner.View() + " " + m.app.t("messages.sending")
	}

	if m.err != nil {
		content += "\n\n" + errorStyle.Render(m.errorText())
	}

	content += "\n\n" + helpStyle.Render("tab: switch field • enter: next/send • ctrl+s: send • esc: back • ctrl+c: quit")

	return content
}
