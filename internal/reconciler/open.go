package reconciler

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/saravenpi/fieldpost/internal/models"
	"github.com/saravenpi/fieldpost/internal/store"
)

// openThread is the conversation currently on screen. Once active is false
// nothing may be applied to it any more.
type openThread struct {
	key    models.ThreadKey
	userID string
	seq    uint64

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	messages []models.ThreadMessage
	index    map[string]int
	backlog  []models.Message

	sub     store.Subscription
	active  bool
	loading bool
	live    bool
	err     error
	sendErr error
}

func (ot *openThread) has(id string) bool {
	_, ok := ot.index[id]
	return ok
}

func (ot *openThread) append(tm models.ThreadMessage) {
	ot.index[tm.ID] = len(ot.messages)
	ot.messages = append(ot.messages, tm)
}

func (ot *openThread) replace(id string, tm models.ThreadMessage) bool {
	i, ok := ot.index[id]
	if !ok {
		return false
	}
	delete(ot.index, id)
	ot.messages[i] = tm
	ot.index[tm.ID] = i
	return true
}

func (ot *openThread) remove(id string) bool {
	i, ok := ot.index[id]
	if !ok {
		return false
	}
	ot.messages = append(ot.messages[:i], ot.messages[i+1:]...)
	ot.reindex()
	return true
}

func (ot *openThread) reindex() {
	ot.index = make(map[string]int, len(ot.messages))
	for i, tm := range ot.messages {
		ot.index[tm.ID] = i
	}
}

func (ot *openThread) markRead(ids []string) {
	for _, id := range ids {
		if i, ok := ot.index[id]; ok {
			ot.messages[i].Read = true
		}
	}
}

// isCurrent reports whether results for ot may still be applied. Callers hold r.mu.
func (r *Reconciler) isCurrent(ot *openThread) bool {
	return r.open == ot && ot.active
}

// closeLocked tears down the open thread. Callers hold r.mu.
func (r *Reconciler) closeLocked() {
	ot := r.open
	if ot == nil {
		return
	}
	ot.active = false
	if ot.sub != nil {
		ot.sub.Unsubscribe()
	}
	ot.cancel()
	close(ot.done)
	r.open = nil
	log.Debug().Str("thread", ot.key.String()).Msg("Closed thread")
}

// CloseThread closes the open thread and its live subscription. Events that
// arrive afterwards are dropped.
func (r *Reconciler) CloseThread() {
	r.mu.Lock()
	r.closeLocked()
	r.mu.Unlock()
	r.notify()
}

// OpenThread makes key the open thread: it loads the full history and then
// follows new inserts for that thread only. Any previously open thread is
// closed first, and if another OpenThread call supersedes this one its
// results are discarded.
func (r *Reconciler) OpenThread(ctx context.Context, key models.ThreadKey) error {
	if key.IsZero() {
		return ErrNoTarget
	}

	r.mu.Lock()
	sess := r.session
	if sess == nil {
		r.mu.Unlock()
		return ErrNoSession
	}
	r.closeLocked()
	r.openSeq++

	liveCtx, cancel := context.WithCancel(context.Background())
	ot := &openThread{
		key:     key,
		userID:  sess.UserID,
		seq:     r.openSeq,
		ctx:     liveCtx,
		cancel:  cancel,
		done:    make(chan struct{}),
		index:   make(map[string]int),
		active:  true,
		loading: true,
	}
	r.open = ot
	r.mu.Unlock()
	r.notify()

	log.Debug().Str("thread", key.String()).Uint64("open", ot.seq).Msg("Opening thread")

	// Subscribe before fetching so nothing inserted during the fetch is
	// missed; early arrivals wait in the backlog until history is in place.
	r.subscribe(ot)

	history, err := r.store.FetchThreadHistory(ctx, ot.userID, key.CounterpartyID, key.ContextID)
	if err != nil {
		err = fmt.Errorf("%w: thread %s: %w", ErrFetchFailed, key, err)
		log.Error().Err(err).Msg("Failed to fetch thread history")

		r.mu.Lock()
		current := r.isCurrent(ot)
		if current {
			ot.loading = false
			ot.err = err
		}
		r.mu.Unlock()
		r.notify()
		if !current {
			return nil
		}
		return err
	}

	// Every message in the thread, backlog included, is sent by one of the
	// two participants.
	profiles := r.resolveProfiles(ctx, participantIDs(history, ot.userID, key.CounterpartyID))

	r.mu.Lock()
	if !r.isCurrent(ot) {
		r.mu.Unlock()
		log.Debug().Str("thread", key.String()).Msg("Discarding superseded thread history")
		return nil
	}

	var unread []string
	for _, msg := range history {
		if ot.has(msg.ID) {
			continue
		}
		ot.append(models.ThreadMessage{Message: msg, Sender: profileFor(profiles, msg.SenderID)})
		if msg.RecipientID == ot.userID && !msg.Read {
			unread = append(unread, msg.ID)
		}
	}

	// The backlog goes in under the same lock that clears loading, so later
	// inserts can only land after it.
	for _, msg := range ot.backlog {
		if ot.has(msg.ID) {
			continue
		}
		sender := profileFor(profiles, msg.SenderID)
		ot.append(models.ThreadMessage{Message: msg, Sender: sender})
		r.touchThread(key, msg, sender)
		if msg.RecipientID == ot.userID && !msg.Read {
			unread = append(unread, msg.ID)
		}
	}
	ot.backlog = nil
	ot.loading = false
	r.mu.Unlock()
	r.notify()

	if len(unread) > 0 {
		r.markRead(ot, unread)
	}

	return nil
}

func (r *Reconciler) subscribe(ot *openThread) {
	filter := store.Filter{UserID: ot.userID, Key: ot.key}
	sub, err := r.store.Subscribe(filter, func(msg models.Message) {
		r.handleInsert(ot, msg)
	})
	if err != nil {
		log.Warn().
			Err(fmt.Errorf("%w: %w", ErrSubscriptionDropped, err)).
			Str("thread", ot.key.String()).
			Msg("Live updates unavailable")
		return
	}

	r.mu.Lock()
	if !r.isCurrent(ot) {
		r.mu.Unlock()
		sub.Unsubscribe()
		return
	}
	ot.sub = sub
	ot.live = true
	r.mu.Unlock()

	go r.watchDropped(ot, sub)
}

func (r *Reconciler) watchDropped(ot *openThread, sub store.Subscription) {
	select {
	case <-sub.Dropped():
	case <-ot.done:
		return
	}

	r.mu.Lock()
	current := r.isCurrent(ot)
	if current {
		ot.live = false
	}
	r.mu.Unlock()

	if current {
		log.Warn().Err(ErrSubscriptionDropped).Str("thread", ot.key.String()).Msg("Live updates stopped")
		r.notify()
	}
}

// handleInsert applies one live insert to ot. Inserts for other threads and
// anything arriving after ot was closed are ignored.
func (r *Reconciler) handleInsert(ot *openThread, msg models.Message) {
	r.mu.Lock()
	if !r.isCurrent(ot) || !msg.BelongsTo(ot.userID, ot.key) {
		r.mu.Unlock()
		return
	}
	if ot.loading {
		ot.backlog = append(ot.backlog, msg)
		r.mu.Unlock()
		return
	}
	if ot.has(msg.ID) {
		r.mu.Unlock()
		return
	}
	r.mu.Unlock()

	var sender *models.Profile
	profiles, err := r.store.FetchProfiles(ot.ctx, []string{msg.SenderID})
	if err != nil {
		log.Warn().
			Err(fmt.Errorf("%w: %w", ErrProfileResolutionFailed, err)).
			Str("message", msg.ID).
			Msg("Showing live message without sender profile")
	} else {
		for _, p := range profiles {
			if p.ID == msg.SenderID {
				sender = &p
				break
			}
		}
	}

	r.mu.Lock()
	if !r.isCurrent(ot) || ot.has(msg.ID) {
		r.mu.Unlock()
		return
	}
	ot.append(models.ThreadMessage{Message: msg, Sender: sender})
	r.touchThread(ot.key, msg, sender)
	r.mu.Unlock()
	r.notify()

	if msg.RecipientID == ot.userID && !msg.Read {
		r.markRead(ot, []string{msg.ID})
	}
}

// markRead flags ids read in the store, then locally. Marking read twice is
// harmless on both sides.
func (r *Reconciler) markRead(ot *openThread, ids []string) {
	if err := r.store.MarkRead(ot.ctx, ids); err != nil {
		log.Warn().Err(err).Str("thread", ot.key.String()).Int("count", len(ids)).Msg("Failed to mark messages read")
		return
	}

	r.mu.Lock()
	if !r.isCurrent(ot) {
		r.mu.Unlock()
		return
	}
	ot.markRead(ids)
	if t, ok := r.threads.get(ot.key); ok {
		t.Unread = false
		for _, id := range ids {
			if t.LastMessage.ID == id {
				t.LastMessage.Read = true
			}
		}
	}
	r.mu.Unlock()
	r.notify()
}

// touchThread records msg as the newest message of key's thread, creating the
// thread if it was not known yet. Callers hold r.mu.
func (r *Reconciler) touchThread(key models.ThreadKey, msg models.Message, sender *models.Profile) {
	// The newest message wins regardless of direction, so a reply replaces
	// the received message a thread was derived from.
	if t, ok := r.threads.get(key); ok {
		t.LastMessage = msg
		return
	}

	sess := r.session
	thread := models.Thread{
		Key:         key,
		ContextName: contextName(sess, msg),
		LastMessage: msg,
	}
	if msg.SenderID == key.CounterpartyID {
		thread.CounterpartyName = sess.T("messages.unknown_user")
		if sender != nil {
			if sender.DisplayName != "" {
				thread.CounterpartyName = sender.DisplayName
			}
			thread.CounterpartyAvatar = sender.AvatarURL
		}
	}
	r.threads.insert(thread)
}

func profileFor(profiles map[string]models.Profile, id string) *models.Profile {
	p, ok := profiles[id]
	if !ok {
		return nil
	}
	return &p
}
