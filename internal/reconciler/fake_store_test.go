package reconciler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/saravenpi/fieldpost/internal/models"
	"github.com/saravenpi/fieldpost/internal/store"
)

var t0 = time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)

func msg(id, from, to, farm string, minute int, read bool) models.Message {
	return models.Message{
		ID:          id,
		SenderID:    from,
		RecipientID: to,
		ContextID:   farm,
		ContextName: "Farm " + farm,
		Subject:     "subject " + id,
		Body:        "body " + id,
		CreatedAt:   t0.Add(time.Duration(minute) * time.Minute),
		Read:        read,
	}
}

// fakeStore keeps messages in memory. Its subscriptions deliver every insert
// to every subscriber, synchronously, ignoring the filter, so tests exercise
// the reconciler's own filtering.
type fakeStore struct {
	mu       sync.Mutex
	messages []models.Message
	profiles map[string]models.Profile

	sentErr     error
	receivedErr error
	historyErr  error
	profilesErr error
	sendErr     error
	noEcho      bool
	echoID      string

	// historyGate, when set for a farm, blocks FetchThreadHistory until closed.
	historyGate map[string]chan struct{}
	// beforeSendReturn runs after the write and before Send returns.
	beforeSendReturn func(stored models.Message)
	// beforeMarkRead runs at the start of every MarkRead call.
	beforeMarkRead func(ids []string)

	markReadCalls [][]string
	subs          []*fakeSub
	nextID        int
}

type fakeSub struct {
	filter       store.Filter
	onInsert     func(models.Message)
	dropped      chan struct{}
	unsubscribed bool
}

func (s *fakeSub) Unsubscribe()             { s.unsubscribed = true }
func (s *fakeSub) Dropped() <-chan struct{} { return s.dropped }

func newFakeStore(messages ...models.Message) *fakeStore {
	return &fakeStore{
		messages:    messages,
		profiles:    make(map[string]models.Profile),
		historyGate: make(map[string]chan struct{}),
	}
}

func (f *fakeStore) addProfile(id, name, avatar string) {
	f.profiles[id] = models.Profile{ID: id, DisplayName: name, AvatarURL: avatar}
}

func (f *fakeStore) filter(keep func(models.Message) bool, ascending bool) []models.Message {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []models.Message
	for _, m := range f.messages {
		if keep(m) {
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			if ascending {
				return out[i].ID < out[j].ID
			}
			return out[i].ID > out[j].ID
		}
		if ascending {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

func (f *fakeStore) FetchSent(ctx context.Context, userID string) ([]models.Message, error) {
	if f.sentErr != nil {
		return nil, f.sentErr
	}
	return f.filter(func(m models.Message) bool { return m.SenderID == userID }, false), nil
}

func (f *fakeStore) FetchReceived(ctx context.Context, userID string) ([]models.Message, error) {
	if f.receivedErr != nil {
		return nil, f.receivedErr
	}
	return f.filter(func(m models.Message) bool { return m.RecipientID == userID }, false), nil
}

func (f *fakeStore) FetchThreadHistory(ctx context.Context, userID, counterpartyID, contextID string) ([]models.Message, error) {
	f.mu.Lock()
	gate := f.historyGate[contextID]
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
	if f.historyErr != nil {
		return nil, f.historyErr
	}
	key := models.ThreadKey{ContextID: contextID, CounterpartyID: counterpartyID}
	return f.filter(func(m models.Message) bool { return m.BelongsTo(userID, key) }, true), nil
}

func (f *fakeStore) FetchProfiles(ctx context.Context, ids []string) ([]models.Profile, error) {
	if f.profilesErr != nil {
		return nil, f.profilesErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []models.Profile
	for _, id := range ids {
		if p, ok := f.profiles[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeStore) Send(ctx context.Context, nm models.NewMessage) (*models.Message, error) {
	if f.sendErr != nil {
		return nil, f.sendErr
	}

	f.mu.Lock()
	f.nextID++
	id := f.echoID
	if id == "" {
		id = fmt.Sprintf("m-sent-%d", f.nextID)
	}
	stored := models.Message{
		ID:          id,
		SenderID:    nm.SenderID,
		RecipientID: nm.RecipientID,
		ContextID:   nm.ContextID,
		ContextName: "Farm " + nm.ContextID,
		Subject:     nm.Subject,
		Body:        nm.Body,
		CreatedAt:   t0.Add(time.Hour),
	}
	f.messages = append(f.messages, stored)
	hook := f.beforeSendReturn
	f.mu.Unlock()

	if hook != nil {
		hook(stored)
	}
	if f.noEcho {
		return nil, nil
	}
	return &stored, nil
}

func (f *fakeStore) MarkRead(ctx context.Context, ids []string) error {
	if f.beforeMarkRead != nil {
		f.beforeMarkRead(ids)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.markReadCalls = append(f.markReadCalls, append([]string(nil), ids...))
	for _, id := range ids {
		for i := range f.messages {
			if f.messages[i].ID == id {
				f.messages[i].Read = true
			}
		}
	}
	return nil
}

func (f *fakeStore) Subscribe(filter store.Filter, onInsert func(models.Message)) (store.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	sub := &fakeSub{filter: filter, onInsert: onInsert, dropped: make(chan struct{})}
	f.subs = append(f.subs, sub)
	return sub, nil
}

// emit stores m and delivers it to every subscriber that has not
// unsubscribed. Delivery ignores filters on purpose.
func (f *fakeStore) emit(m models.Message) {
	f.mu.Lock()
	f.messages = append(f.messages, m)
	subs := append([]*fakeSub(nil), f.subs...)
	f.mu.Unlock()

	f.deliver(subs, m)
}

// deliverStale hands m to every subscriber, including those that have
// unsubscribed, as a misbehaving transport would.
func (f *fakeStore) deliverStale(m models.Message) {
	f.mu.Lock()
	subs := append([]*fakeSub(nil), f.subs...)
	f.mu.Unlock()

	for _, sub := range subs {
		sub.onInsert(m)
	}
}

func (f *fakeStore) deliver(subs []*fakeSub, m models.Message) {
	for _, sub := range subs {
		if !sub.unsubscribed {
			sub.onInsert(m)
		}
	}
}

func (f *fakeStore) lastSub() *fakeSub {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.subs) == 0 {
		return nil
	}
	return f.subs[len(f.subs)-1]
}

func (f *fakeStore) readState() map[string]bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	state := make(map[string]bool, len(f.messages))
	for _, m := range f.messages {
		state[m.ID] = m.Read
	}
	return state
}
