package ui

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"
	"github.com/saravenpi/fieldpost/internal/models"
	"github.com/saravenpi/fieldpost/internal/reconciler"
)

type threadOpenedMsg struct {
	err error
}

type messageSentMsg struct {
	err error
}

type MessagesModel struct {
	app           *App
	thread        models.Thread
	messages      []models.ThreadMessage
	viewport      viewport.Model
	textarea      textarea.Model
	loading       bool
	sending       bool
	composing     bool
	live          bool
	err           error
	sendErr       error
	spinner       spinner.Model
	windowWidth   int
	windowHeight  int
	viewportReady bool
}

func NewMessagesModel(app *App, thread models.Thread) MessagesModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = statusStyle

	vp := viewport.New(80, 20)

	ta := textarea.New()
	ta.Placeholder = app.t("messages.type_message")
	ta.CharLimit = 1000
	ta.SetHeight(3)
	ta.ShowLineNumbers = false

	return MessagesModel{
		app:           app,
		thread:        thread,
		viewport:      vp,
		textarea:      ta,
		loading:       true,
		live:          true,
		spinner:       s,
		windowWidth:   80,
		windowHeight:  30,
		viewportReady: true,
	}
}

func (m MessagesModel) Init() tea.Cmd {
	// StartThread leaves its thread open already.
	if snap := m.app.Reconciler.Snapshot(); snap.Open != nil && snap.Open.Key == m.thread.Key && !snap.Open.Loading {
		return func() tea.Msg { return threadOpenedMsg{} }
	}
	return tea.Batch(m.spinner.Tick, m.openThreadCmd())
}

func (m MessagesModel) openThreadCmd() tea.Cmd {
	return func() tea.Msg {
		err := m.app.Reconciler.OpenThread(m.app.Ctx, m.thread.Key)
		return threadOpenedMsg{err: err}
	}
}

func (m MessagesModel) sendMessageCmd(body string) tea.Cmd {
	subject := m.thread.LastMessage.Subject
	return func() tea.Msg {
		err := m.app.Reconciler.Send(m.app.Ctx, m.thread.Key, subject, body)
		return messageSentMsg{err: err}
	}
}

// refresh copies the open thread out of the reconciler. Snapshots for any
// other thread are ignored.
func (m *MessagesModel) refresh() {
	snap := m.app.Reconciler.Snapshot()
	open := snap.Open
	if open == nil || open.Key != m.thread.Key {
		return
	}

	atBottom := m.viewport.AtBottom() || len(m.messages) == 0
	m.messages = open.Messages
	m.loading = open.Loading
	m.live = open.Live
	m.err = open.Err
	if open.SendErr != nil {
		m.sendErr = open.SendErr
	}
	if t, ok := m.app.Reconciler.Thread(m.thread.Key); ok {
		m.thread = t
	}

	m.updateViewportContent()
	if atBottom {
		m.viewport.GotoBottom()
	}
}

func (m *MessagesModel) layout() {
	headerHeight := 4
	textareaHeight := 5
	helpHeight := 3
	availableHeight := m.windowHeight - headerHeight - helpHeight

	m.viewport.Width = m.windowWidth - 4
	if m.composing {
		m.viewport.Height = availableHeight - textareaHeight
		m.textarea.SetWidth(m.windowWidth - 4)
	} else {
		m.viewport.Height = availableHeight
	}
	if m.viewport.Height < 1 {
		m.viewport.Height = 1
	}
}

func (m MessagesModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.windowWidth = msg.Width
		m.windowHeight = msg.Height
		m.layout()
		m.updateViewportContent()
		return m, nil

	case threadOpenedMsg:
		m.refresh()
		if msg.err != nil && m.err == nil {
			m.err = msg.err
		}
		m.loading = false
		return m, nil

	case changedMsg:
		m.refresh()
		return m, nil

	case messageSentMsg:
		m.sending = false
		if msg.err != nil {
			m.sendErr = msg.err
			m.refresh()
			return m, nil
		}

		m.sendErr = nil
		m.textarea.Reset()
		m.textarea.Blur()
		m.composing = false
		m.layout()
		m.refresh()
		m.viewport.GotoBottom()
		return m, nil

	case spinner.TickMsg:
		if m.loading || m.sending {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			return m, cmd
		}
		return m, nil

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}

		if msg.String() == "esc" {
			if m.composing {
				m.composing = false
				m.textarea.Reset()
				m.textarea.Blur()
				m.sendErr = nil
				m.layout()
				return m, nil
			}
			m.app.Reconciler.CloseThread()
			next, cmd := resize(NewConversationsModel(m.app), m.windowWidth, m.windowHeight)
			return next, tea.Batch(next.Init(), cmd)
		}

		if m.composing {
			switch msg.String() {
			case "ctrl+s":
				if m.sending {
					return m, nil
				}
				body := strings.TrimSpace(m.textarea.Value())
				if body == "" {
					return m, nil
				}
				m.sending = true
				m.sendErr = nil
				return m, tea.Batch(m.spinner.Tick, m.sendMessageCmd(body))
			default:
				var cmd tea.Cmd
				m.textarea, cmd = m.textarea.Update(msg)
				return m, cmd
			}
		}

		if m.loading {
			return m, nil
		}

		switch msg.String() {
		case "q":
			m.app.Reconciler.CloseThread()
			return m, tea.Quit

		case "n", "c", "enter":
			if m.err != nil {
				return m, nil
			}
			m.composing = true
			m.layout()
			m.textarea.Focus()
			return m, textarea.Blink

		case "r":
			m.loading = true
			m.err = nil
			return m, tea.Batch(m.spinner.Tick, m.openThreadCmd())

		default:
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}
	}

	return m, nil
}

func (m MessagesModel) senderName(tm models.ThreadMessage) string {
	if tm.SenderID == m.app.userID() {
		return m.app.t("messages.you")
	}
	if tm.Sender != nil && tm.Sender.DisplayName != "" {
		return tm.Sender.DisplayName
	}
	if tm.SenderID == m.thread.Key.CounterpartyID && m.thread.CounterpartyName != "" {
		return m.thread.CounterpartyName
	}
	return m.app.t("messages.unknown_user")
}

func (m *MessagesModel) updateViewportContent() {
	if !m.viewportReady {
		return
	}
	if len(m.messages) == 0 {
		m.viewport.SetContent("")
		return
	}

	var content strings.Builder
	wrapWidth := m.viewport.Width
	if wrapWidth <= 0 {
		wrapWidth = 80
	}
	textWidth := wrapWidth - 10
	if textWidth < 10 {
		textWidth = 10
	}
	right := lipgloss.NewStyle().Align(lipgloss.Right).Width(wrapWidth)
	userID := m.app.userID()

	var lastSubject string
	for i, message := range m.messages {
		if i > 0 {
			content.WriteString("\n")
		}

		timestamp := message.CreatedAt.In(m.app.now().Location()).Format("Jan 2 15:04")
		if message.Subject != "" && message.Subject != lastSubject {
			content.WriteString(inputStyle.Render(wordwrap.String(message.Subject, wrapWidth)) + "\n")
			lastSubject = message.Subject
		}

		header := fmt.Sprintf("%s • %s", m.senderName(message), timestamp)
		if message.Provisional {
			header += " • " + m.app.t("messages.sending")
		}
		wrapped := wordwrap.String(message.Body, textWidth)

		if message.SenderID == userID {
			bodyStyle := messageFromMeStyle
			if message.Provisional {
				bodyStyle = provisionalStyle
			}
			content.WriteString(right.Render(messageHeaderStyle.Render(header)) + "\n")
			content.WriteString(right.Render(bodyStyle.Render(wrapped)) + "\n")
		} else {
			content.WriteString(messageHeaderStyle.Render(header) + "\n")
			content.WriteString(messageFromOtherStyle.Render(wrapped) + "\n")
		}
	}

	m.viewport.SetContent(content.String())
}

func (m MessagesModel) title() string {
	name := m.thread.ContextName
	if name == "" {
		name = m.thread.LastMessage.ContextName
	}
	if name == "" {
		name = m.app.t("messages.unknown_farm")
	}
	if m.thread.CounterpartyName != "" {
		name += " · " + m.thread.CounterpartyName
	}
	return "💬 " + name
}

// sendErrorText localizes a send failure for the compose box.
func (m MessagesModel) sendErrorText() string {
	text := m.app.t("messages.send_error")
	if errors.Is(m.sendErr, reconciler.ErrEmptyMessage) {
		text = m.app.t("messages.missing_fields")
	}
	return text
}

func (m MessagesModel) View() string {
	if m.loading && len(m.messages) == 0 {
		return fmt.Sprintf("\n  %s %s\n", m.spinner.View(), m.app.t("messages.loading_messages"))
	}

	s := titleStyle.Render(m.title()) + "\n"

	if m.err != nil {
		s += errorStyle.Render(m.app.t("messages.error_loading")) + "\n\n"
		s += helpStyle.Render("r: retry • esc: back • ctrl+c: quit")
		return s
	}

	if !m.live && !m.loading {
		s += warningStyle.Render(m.app.t("messages.live_paused")) + "\n"
	}

	if len(m.messages) == 0 {
		s += normalStyle.Render("  "+m.app.t("messages.no_messages_yet")) + "\n"
	} else {
		s += m.viewport.View() + "\n"
	}

	if m.composing {
		s += "\n" + inputStyle.Render(m.app.t("messages.new_message")+":") + "\n"
		s += m.textarea.View() + "\n"
		if m.sending {
			s += fmt.Sprintf("  %s %s\n", m.spinner.View(), m.app.t("messages.sending"))
		}
		if m.sendErr != nil {
			s += errorStyle.Render(m.sendErrorText()) + "\n"
		}
		s += helpStyle.Render("ctrl+s: send • esc: cancel")
	} else {
		scrollPercent := int(m.viewport.ScrollPercent() * 100)
		s += "\n" + helpStyle.Render(fmt.Sprintf("↑↓/jk: scroll • n: reply • r: reload • esc: back • q: quit • %d%%", scrollPercent))
	}

	return s
}
