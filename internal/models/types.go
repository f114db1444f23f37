package models

import "time"

// ThreadKey identifies a conversation from the viewer's side: the farm it is
// about and the other participant.
type ThreadKey struct {
	ContextID      string
	CounterpartyID string
}

func (k ThreadKey) String() string {
	return k.ContextID + ":" + k.CounterpartyID
}

func (k ThreadKey) IsZero() bool {
	return k.ContextID == "" || k.CounterpartyID == ""
}

type Message struct {
	ID          string
	SenderID    string
	RecipientID string
	ContextID   string
	ContextName string
	Subject     string
	Body        string
	CreatedAt   time.Time
	Read        bool

	// Provisional is set while the message only exists locally.
	Provisional bool
}

// KeyFor returns the thread key of the message as seen by userID.
func (m Message) KeyFor(userID string) ThreadKey {
	counterparty := m.SenderID
	if m.SenderID == userID {
		counterparty = m.RecipientID
	}
	return ThreadKey{ContextID: m.ContextID, CounterpartyID: counterparty}
}

// BelongsTo reports whether the message is part of the thread between userID
// and key.CounterpartyID about key.ContextID, in either direction.
func (m Message) BelongsTo(userID string, key ThreadKey) bool {
	if m.ContextID != key.ContextID {
		return false
	}
	return (m.SenderID == userID && m.RecipientID == key.CounterpartyID) ||
		(m.SenderID == key.CounterpartyID && m.RecipientID == userID)
}

type Profile struct {
	ID          string
	DisplayName string
	AvatarURL   string
}

type Farm struct {
	ID        string
	Name      string
	OwnerID   string
	OwnerName string
}

type NewMessage struct {
	SenderID    string
	RecipientID string
	ContextID   string
	Subject     string
	Body        string
}

type Thread struct {
	Key                ThreadKey
	ContextName        string
	CounterpartyName   string
	CounterpartyAvatar string
	LastMessage        Message
	Unread             bool
}

type ThreadMessage struct {
	Message
	Sender *Profile
}
