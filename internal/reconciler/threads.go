package reconciler

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/saravenpi/fieldpost/internal/models"
	"github.com/saravenpi/fieldpost/internal/session"
)

// threadIndex is an insertion-ordered map of threads. The order is the
// display order: threads derived from received messages come before
// sent-only threads.
type threadIndex struct {
	items []models.Thread
	pos   map[models.ThreadKey]int
}

func newThreadIndex() *threadIndex {
	return &threadIndex{pos: make(map[models.ThreadKey]int)}
}

func (ix *threadIndex) has(key models.ThreadKey) bool {
	_, ok := ix.pos[key]
	return ok
}

// insert adds t unless its key is already present. The first insert wins.
func (ix *threadIndex) insert(t models.Thread) bool {
	if ix.has(t.Key) {
		return false
	}
	ix.pos[t.Key] = len(ix.items)
	ix.items = append(ix.items, t)
	return true
}

func (ix *threadIndex) get(key models.ThreadKey) (*models.Thread, bool) {
	i, ok := ix.pos[key]
	if !ok {
		return nil, false
	}
	return &ix.items[i], true
}

func (ix *threadIndex) len() int {
	return len(ix.items)
}

func (ix *threadIndex) list() []models.Thread {
	out := make([]models.Thread, len(ix.items))
	copy(out, ix.items)
	return out
}

// LoadThreads re-derives the thread list from the store. On failure the
// list is emptied and the error is kept for display; a partial list is never
// shown. A load superseded by another load or a session change is discarded.
func (r *Reconciler) LoadThreads(ctx context.Context) error {
	r.mu.Lock()
	sess := r.session
	if sess == nil {
		r.mu.Unlock()
		return ErrNoSession
	}
	r.loadSeq++
	seq := r.loadSeq
	r.loading = true
	r.mu.Unlock()
	r.notify()

	threads, err := r.derive(ctx, sess)

	r.mu.Lock()
	defer r.notify()
	defer r.mu.Unlock()

	if seq != r.loadSeq {
		log.Debug().Uint64("load", seq).Msg("Discarding superseded thread list")
		return nil
	}

	r.loading = false
	if err != nil {
		r.threads = newThreadIndex()
		r.loadErr = err
		return err
	}

	// A thread that is open has had its messages marked read; a fetch that
	// raced the mark-read must not flag it unread again.
	if ot := r.open; ot != nil && ot.active && !ot.loading {
		if t, ok := threads.get(ot.key); ok {
			t.Unread = false
		}
	}

	r.threads = threads
	r.loadErr = nil
	log.Debug().Str("user", sess.UserID).Int("count", threads.len()).Msg("Derived threads")
	return nil
}

// derive builds the thread list for sess: received messages first, then
// sent ones, first key wins. Both inputs are newest first.
func (r *Reconciler) derive(ctx context.Context, sess *session.Session) (*threadIndex, error) {
	userID := sess.UserID

	received, err := r.store.FetchReceived(ctx, userID)
	if err != nil {
		log.Error().Err(err).Str("user", userID).Msg("Failed to fetch received messages")
		return nil, fmt.Errorf("%w: received messages: %w", ErrFetchFailed, err)
	}

	sent, err := r.store.FetchSent(ctx, userID)
	if err != nil {
		log.Error().Err(err).Str("user", userID).Msg("Failed to fetch sent messages")
		return nil, fmt.Errorf("%w: sent messages: %w", ErrFetchFailed, err)
	}

	profiles := r.resolveProfiles(ctx, senderIDs(received))

	threads := newThreadIndex()

	// A message to oneself is never unread, even though it comes back
	// through the received query.
	for _, msg := range received {
		thread := models.Thread{
			Key:              msg.KeyFor(userID),
			ContextName:      contextName(sess, msg),
			CounterpartyName: sess.T("messages.unknown_user"),
			LastMessage:      msg,
			Unread:           !msg.Read && msg.SenderID != userID,
		}
		if p, ok := profiles[msg.SenderID]; ok {
			if p.DisplayName != "" {
				thread.CounterpartyName = p.DisplayName
			}
			thread.CounterpartyAvatar = p.AvatarURL
		}
		threads.insert(thread)
	}

	// Sent-only threads carry no counterparty profile.
	for _, msg := range sent {
		threads.insert(models.Thread{
			Key:         msg.KeyFor(userID),
			ContextName: contextName(sess, msg),
			LastMessage: msg,
		})
	}

	return threads, nil
}

// resolveProfiles looks up ids in one batch. A failed lookup yields an empty
// map; callers fall back to placeholders.
func (r *Reconciler) resolveProfiles(ctx context.Context, ids []string) map[string]models.Profile {
	resolved := make(map[string]models.Profile, len(ids))
	if len(ids) == 0 {
		return resolved
	}

	profiles, err := r.store.FetchProfiles(ctx, ids)
	if err != nil {
		log.Warn().
			Err(fmt.Errorf("%w: %w", ErrProfileResolutionFailed, err)).
			Strs("ids", ids).
			Msg("Continuing without profiles")
		return resolved
	}

	for _, p := range profiles {
		resolved[p.ID] = p
	}
	return resolved
}

func senderIDs(messages []models.Message) []string {
	seen := make(map[string]bool)
	var ids []string
	for _, msg := range messages {
		if !seen[msg.SenderID] {
			seen[msg.SenderID] = true
			ids = append(ids, msg.SenderID)
		}
	}
	return ids
}

// participantIDs returns extra followed by every sender and recipient in
// messages, without repeats.
func participantIDs(messages []models.Message, extra ...string) []string {
	seen := make(map[string]bool)
	var ids []string
	add := func(id string) {
		if id != "" && !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	for _, id := range extra {
		add(id)
	}
	for _, msg := range messages {
		add(msg.SenderID)
		add(msg.RecipientID)
	}
	return ids
}

func contextName(sess *session.Session, msg models.Message) string {
	if msg.ContextName != "" {
		return msg.ContextName
	}
	return sess.T("messages.unknown_farm")
}
