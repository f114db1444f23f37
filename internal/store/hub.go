package store

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/saravenpi/fieldpost/internal/models"
)

const defaultSubscriberBuffer = 64

// Filter selects which inserted messages a subscriber receives. A zero Key
// matches every message the user takes part in.
type Filter struct {
	UserID string
	Key    models.ThreadKey
}

func (f Filter) Match(m models.Message) bool {
	if f.Key.IsZero() {
		return m.SenderID == f.UserID || m.RecipientID == f.UserID
	}
	return m.BelongsTo(f.UserID, f.Key)
}

// Subscription is a live feed of inserted messages.
type Subscription interface {
	// Unsubscribe stops delivery. It does not wait for a callback that is
	// already running.
	Unsubscribe()
	// Dropped is closed when the store gives up on the subscriber.
	Dropped() <-chan struct{}
}

type subscriber struct {
	id      uint64
	hub     *hub
	filter  Filter
	ch      chan models.Message
	dropped chan struct{}
}

func (s *subscriber) Unsubscribe() {
	s.hub.remove(s.id, false)
}

func (s *subscriber) Dropped() <-chan struct{} {
	return s.dropped
}

// hub fans inserted messages out to subscribers. Each subscriber has its own
// queue and delivery goroutine, so a slow callback only affects itself.
type hub struct {
	mu     sync.Mutex
	subs   map[uint64]*subscriber
	next   uint64
	buffer int
	closed bool
}

func newHub() *hub {
	return &hub{
		subs:   make(map[uint64]*subscriber),
		buffer: defaultSubscriberBuffer,
	}
}

func (h *hub) subscribe(filter Filter, onInsert func(models.Message)) *subscriber {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.next++
	sub := &subscriber{
		id:      h.next,
		hub:     h,
		filter:  filter,
		ch:      make(chan models.Message, h.buffer),
		dropped: make(chan struct{}),
	}

	if h.closed {
		close(sub.ch)
		close(sub.dropped)
		return sub
	}
	h.subs[sub.id] = sub

	go func() {
		for msg := range sub.ch {
			onInsert(msg)
		}
	}()

	return sub
}

// remove detaches a subscriber. Must not be called with h.mu held.
func (h *hub) remove(id uint64, dropped bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(id, dropped)
}

func (h *hub) removeLocked(id uint64, dropped bool) {
	sub, ok := h.subs[id]
	if !ok {
		return
	}
	delete(h.subs, id)
	close(sub.ch)
	if dropped {
		close(sub.dropped)
	}
}

func (h *hub) publish(msg models.Message) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for id, sub := range h.subs {
		if !sub.filter.Match(msg) {
			continue
		}
		select {
		case sub.ch <- msg:
		default:
			log.Warn().Uint64("subscriber", id).Msg("Subscriber fell behind, dropping it")
			h.removeLocked(id, true)
		}
	}
}

func (h *hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for id := range h.subs {
		h.removeLocked(id, true)
	}
	h.closed = true
}

// Subscribe delivers every inserted message matching filter to onInsert, in
// insertion order, until the subscription is cancelled or dropped. Delivery
// is at-least-once: the same message may arrive more than once.
func (s *Store) Subscribe(filter Filter, onInsert func(models.Message)) (Subscription, error) {
	return s.hub.subscribe(filter, onInsert), nil
}

// Watch polls the database for messages written by other processes and
// publishes them to subscribers. It returns when ctx is done.
func (s *Store) Watch(ctx context.Context, interval time.Duration) error {
	cursor, err := s.maxRowID(ctx)
	if err != nil {
		return err
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			messages, next, err := s.fetchSince(ctx, cursor)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				log.Warn().Err(err).Msg("Polling for new messages failed")
				continue
			}
			cursor = next
			for _, msg := range messages {
				s.hub.publish(msg)
			}
		}
	}
}
