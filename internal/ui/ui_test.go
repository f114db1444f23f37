package ui

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/saravenpi/fieldpost/internal/i18n"
	"github.com/saravenpi/fieldpost/internal/models"
	"github.com/saravenpi/fieldpost/internal/reconciler"
	"github.com/saravenpi/fieldpost/internal/session"
	"github.com/saravenpi/fieldpost/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2025, 5, 15, 10, 0, 0, 0, time.UTC)

func newTestApp(t *testing.T) (*App, *store.Store) {
	t.Helper()
	ctx := context.Background()

	s, err := store.Open(filepath.Join(t.TempDir(), "ui.db"), store.WithClock(func() time.Time { return now.Add(-time.Hour) }))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	require.NoError(t, s.Migrate(ctx))
	require.NoError(t, s.UpsertProfile(ctx, models.Profile{ID: "u", DisplayName: "Una"}))
	require.NoError(t, s.UpsertProfile(ctx, models.Profile{ID: "f1", DisplayName: "Fatos"}))
	require.NoError(t, s.UpsertFarm(ctx, models.Farm{ID: "c1", Name: "Green Acres", OwnerID: "f1"}))
	require.NoError(t, s.UpsertFarm(ctx, models.Farm{ID: "mine", Name: "My Plot", OwnerID: "u"}))

	sess, err := session.New("u", "en")
	require.NoError(t, err)

	r := reconciler.New(s, sess)
	t.Cleanup(r.CloseThread)

	return &App{Ctx: ctx, Reconciler: r, Farms: s, Now: func() time.Time { return now }}, s
}

func key(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestFormatThreadTime(t *testing.T) {
	catalog, err := i18n.Load("en")
	require.NoError(t, err)

	assert.Equal(t, "09:30", formatThreadTime(now.Add(-30*time.Minute), now, catalog))
	assert.Equal(t, "Yesterday", formatThreadTime(now.Add(-20*time.Hour), now, catalog))
	assert.Equal(t, "Mon", formatThreadTime(time.Date(2025, 5, 12, 9, 0, 0, 0, time.UTC), now, catalog))
	assert.Equal(t, "Apr 2", formatThreadTime(time.Date(2025, 4, 2, 9, 0, 0, 0, time.UTC), now, catalog))
	assert.Empty(t, formatThreadTime(time.Time{}, now, catalog))
}

func TestPreview(t *testing.T) {
	assert.Equal(t, "short text", preview("short\n  text", 20))
	assert.Equal(t, "abcdefg...", preview("abcdefghijklmnop", 10))
}

func TestConversationsShowsDerivedThreads(t *testing.T) {
	app, s := newTestApp(t)
	_, err := s.Send(context.Background(), models.NewMessage{SenderID: "f1", RecipientID: "u", ContextID: "c1", Subject: "Eggs", Body: "Fresh eggs today"})
	require.NoError(t, err)

	m := NewConversationsModel(app)
	updated, _ := m.Update(m.loadThreadsCmd()())
	m = updated.(ConversationsModel)

	require.Len(t, m.threads, 1)
	assert.True(t, m.threads[0].Unread)
	view := m.View()
	assert.Contains(t, view, "Green Acres · Fatos")
	assert.Contains(t, view, "Fresh eggs today")
}

func TestConversationsEmptyState(t *testing.T) {
	app, _ := newTestApp(t)

	m := NewConversationsModel(app)
	updated, _ := m.Update(m.loadThreadsCmd()())

	assert.Contains(t, updated.View(), "You have no conversations yet.")
}

func TestMessagesOpenAndReply(t *testing.T) {
	app, s := newTestApp(t)
	ctx := context.Background()
	_, err := s.Send(ctx, models.NewMessage{SenderID: "f1", RecipientID: "u", ContextID: "c1", Subject: "Eggs", Body: "Fresh eggs today"})
	require.NoError(t, err)
	require.NoError(t, app.Reconciler.LoadThreads(ctx))

	thread, ok := app.Reconciler.Thread(models.ThreadKey{ContextID: "c1", CounterpartyID: "f1"})
	require.True(t, ok)

	m := NewMessagesModel(app, thread)
	updated, _ := m.Update(m.openThreadCmd()())
	m = updated.(MessagesModel)

	require.Len(t, m.messages, 1)
	assert.Contains(t, m.View(), "Fatos")
	assert.Contains(t, m.View(), "Fresh eggs today")

	received, err := s.FetchReceived(ctx, "u")
	require.NoError(t, err)
	assert.True(t, received[0].Read)

	updated, _ = m.Update(key("n"))
	m = updated.(MessagesModel)
	require.True(t, m.composing)

	updated, _ = m.Update(m.sendMessageCmd("Two dozen please")())
	m = updated.(MessagesModel)

	assert.False(t, m.composing)
	require.Len(t, m.messages, 2)
	assert.Equal(t, "Two dozen please", m.messages[1].Body)
	assert.False(t, m.messages[1].Provisional)
	assert.Contains(t, m.View(), "You")
}

func TestMessagesSendErrorIsInline(t *testing.T) {
	app, _ := newTestApp(t)
	thread := models.Thread{Key: models.ThreadKey{ContextID: "c1", CounterpartyID: "f1"}, ContextName: "Green Acres"}

	m := NewMessagesModel(app, thread)
	updated, _ := m.Update(m.openThreadCmd()())
	m = updated.(MessagesModel)
	updated, _ = m.Update(key("n"))
	m = updated.(MessagesModel)

	updated, _ = m.Update(messageSentMsg{err: reconciler.ErrWriteFailed})
	m = updated.(MessagesModel)

	assert.True(t, m.composing)
	assert.Contains(t, m.View(), "Failed to send message")
}

func TestNewConversationPrefillAndStart(t *testing.T) {
	app, _ := newTestApp(t)
	subject, body := reconciler.OrderInquiry(app.catalog(), "Eggs", "#42")

	m := NewNewConversationModel(app, Prefill{FarmID: "c1", Subject: subject, Body: body})
	updated, _ := m.Update(m.fetchFarmsCmd()())
	m = updated.(NewConversationModel)

	assert.Equal(t, 1, m.farmCount, "own farms are not listed")
	assert.Equal(t, focusBody, m.focusIndex)
	farm, ok := m.selectedFarm()
	require.True(t, ok)
	assert.Equal(t, "c1", farm.ID)

	next, _ := m.Update(m.startThreadCmd(farm, subject, body)())
	messages, ok := next.(MessagesModel)
	require.True(t, ok)
	assert.Equal(t, models.ThreadKey{ContextID: "c1", CounterpartyID: "f1"}, messages.thread.Key)

	snap := app.Reconciler.Snapshot()
	require.NotNil(t, snap.Open)
	require.Len(t, snap.Open.Messages, 1)
	assert.Equal(t, "Question about my order of Eggs", snap.Open.Messages[0].Subject)
}

func TestNewConversationRequiresFields(t *testing.T) {
	app, _ := newTestApp(t)

	m := NewNewConversationModel(app, Prefill{})
	updated, _ := m.Update(m.fetchFarmsCmd()())
	m = updated.(NewConversationModel)
	m.setFocus(focusBody)

	updated, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlS})
	m = updated.(NewConversationModel)

	assert.Nil(t, cmd)
	assert.ErrorIs(t, m.err, errMissingFields)
	assert.Contains(t, m.View(), "Choose a farm and fill in both subject and message.")
}

func TestSignedOutScreensUseFallbackStrings(t *testing.T) {
	app, _ := newTestApp(t)
	app.Reconciler.SetSession(nil)

	assert.Empty(t, app.userID())
	assert.Equal(t, "Unknown farm", app.t("messages.unknown_farm"))
	assert.Contains(t, NewMenuModel(app).View(), "Conversations")
}
