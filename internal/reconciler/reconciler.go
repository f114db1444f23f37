// Package reconciler keeps a user's conversation list and the open
// conversation consistent with the message store.
package reconciler

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/saravenpi/fieldpost/internal/models"
	"github.com/saravenpi/fieldpost/internal/session"
	"github.com/saravenpi/fieldpost/internal/store"
)

// Store is the message store the reconciler reads from and writes to.
type Store interface {
	FetchSent(ctx context.Context, userID string) ([]models.Message, error)
	FetchReceived(ctx context.Context, userID string) ([]models.Message, error)
	FetchThreadHistory(ctx context.Context, userID, counterpartyID, contextID string) ([]models.Message, error)
	FetchProfiles(ctx context.Context, ids []string) ([]models.Profile, error)
	Send(ctx context.Context, msg models.NewMessage) (*models.Message, error)
	MarkRead(ctx context.Context, ids []string) error
	Subscribe(filter store.Filter, onInsert func(models.Message)) (store.Subscription, error)
}

// Reconciler owns the derived thread list and the open thread. All methods
// are safe for concurrent use; results of superseded calls are discarded.
type Reconciler struct {
	store Store
	now   func() time.Time
	newID func() string

	mu      sync.Mutex
	session *session.Session
	threads *threadIndex
	loadSeq uint64
	loading bool
	loadErr error
	open    *openThread
	openSeq uint64
	changes chan struct{}
}

type Option func(*Reconciler)

func WithClock(now func() time.Time) Option {
	return func(r *Reconciler) {
		r.now = now
	}
}

// WithIDGenerator sets how provisional message ids are made.
func WithIDGenerator(newID func() string) Option {
	return func(r *Reconciler) {
		r.newID = newID
	}
}

func New(st Store, sess *session.Session, opts ...Option) *Reconciler {
	r := &Reconciler{
		store:   st,
		now:     time.Now,
		newID:   func() string { return "temp-" + uuid.NewString() },
		session: sess,
		threads: newThreadIndex(),
		changes: make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Changes receives a value whenever the state visible through Snapshot may
// have changed. Notifications coalesce.
func (r *Reconciler) Changes() <-chan struct{} {
	return r.changes
}

func (r *Reconciler) notify() {
	select {
	case r.changes <- struct{}{}:
	default:
	}
}

// SetSession switches to a new user. The open thread is closed and results
// still in flight for the previous user are discarded. Passing nil signs
// out. Callers reload with LoadThreads.
func (r *Reconciler) SetSession(sess *session.Session) {
	r.mu.Lock()
	r.closeLocked()
	r.session = sess
	r.loadSeq++
	r.threads = newThreadIndex()
	r.loading = false
	r.loadErr = nil
	r.mu.Unlock()

	r.notify()
}

func (r *Reconciler) Session() *session.Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.session
}

// Snapshot is a copy of the reconciler state, safe to keep and render.
type Snapshot struct {
	Threads []models.Thread
	Loading bool
	LoadErr error
	Open    *OpenSnapshot
}

type OpenSnapshot struct {
	Key      models.ThreadKey
	Messages []models.ThreadMessage
	Loading  bool
	Err      error
	SendErr  error
	Live     bool
}

func (r *Reconciler) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	snap := Snapshot{
		Threads: r.threads.list(),
		Loading: r.loading,
		LoadErr: r.loadErr,
	}

	if ot := r.open; ot != nil {
		messages := make([]models.ThreadMessage, len(ot.messages))
		copy(messages, ot.messages)
		snap.Open = &OpenSnapshot{
			Key:      ot.key,
			Messages: messages,
			Loading:  ot.loading,
			Err:      ot.err,
			SendErr:  ot.sendErr,
			Live:     ot.live,
		}
	}

	return snap
}

// Thread returns the derived thread for key, if any.
func (r *Reconciler) Thread(key models.ThreadKey) (models.Thread, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.threads.get(key)
	if !ok {
		return models.Thread{}, false
	}
	return *t, true
}
