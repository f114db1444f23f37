package reconciler

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/saravenpi/fieldpost/internal/models"
)

// Send writes a message to key's counterparty. When key is the open thread a
// provisional entry is shown right away until the store answers.
func (r *Reconciler) Send(ctx context.Context, key models.ThreadKey, subject, body string) error {
	body = strings.TrimSpace(body)
	if body == "" {
		return ErrEmptyMessage
	}
	if key.IsZero() {
		return ErrNoTarget
	}

	r.mu.Lock()
	sess := r.session
	if sess == nil {
		r.mu.Unlock()
		return ErrNoSession
	}
	if key.CounterpartyID == sess.UserID {
		r.mu.Unlock()
		return ErrNoTarget
	}

	provisional := models.Message{
		ID:          r.newID(),
		SenderID:    sess.UserID,
		RecipientID: key.CounterpartyID,
		ContextID:   key.ContextID,
		Subject:     subject,
		Body:        body,
		CreatedAt:   r.now(),
		Provisional: true,
	}
	if t, ok := r.threads.get(key); ok {
		provisional.ContextName = t.LastMessage.ContextName
	}

	ot := r.open
	if ot != nil && (ot.key != key || !r.isCurrent(ot) || ot.loading) {
		ot = nil
	}
	if ot != nil {
		ot.append(models.ThreadMessage{Message: provisional})
		ot.sendErr = nil
	}
	r.mu.Unlock()
	r.notify()

	stored, err := r.store.Send(ctx, models.NewMessage{
		SenderID:    sess.UserID,
		RecipientID: key.CounterpartyID,
		ContextID:   key.ContextID,
		Subject:     subject,
		Body:        body,
	})

	r.mu.Lock()
	defer r.notify()
	defer r.mu.Unlock()

	// A session change while the write was in flight leaves nothing to patch.
	if r.session != sess {
		if err != nil {
			return fmt.Errorf("%w: %w", ErrWriteFailed, err)
		}
		return nil
	}

	applies := ot != nil && r.isCurrent(ot)

	if err != nil {
		err = fmt.Errorf("%w: %w", ErrWriteFailed, err)
		log.Error().Err(err).Str("thread", key.String()).Msg("Failed to send message")
		if applies {
			ot.remove(provisional.ID)
			ot.sendErr = err
		}
		return err
	}

	if stored == nil {
		// Acknowledged without an echo: the provisional entry stays as the
		// record of this message, under its temporary id.
		provisional.Provisional = false
		if applies {
			ot.replace(provisional.ID, models.ThreadMessage{Message: provisional})
		}
		r.touchThread(key, provisional, nil)
		log.Debug().Str("thread", key.String()).Str("message", provisional.ID).Msg("Sent message without echo")
		return nil
	}

	if applies {
		switch {
		case ot.has(stored.ID):
			// The live feed delivered the stored record first.
			ot.remove(provisional.ID)
		case ot.has(provisional.ID):
			ot.replace(provisional.ID, models.ThreadMessage{Message: *stored})
		default:
			ot.append(models.ThreadMessage{Message: *stored})
		}
	}
	r.touchThread(key, *stored, nil)
	log.Debug().Str("thread", key.String()).Str("message", stored.ID).Msg("Sent message")
	return nil
}

// StartThread sends the first message to a farm's owner and opens the
// resulting thread.
func (r *Reconciler) StartThread(ctx context.Context, farm models.Farm, subject, body string) (models.ThreadKey, error) {
	if farm.ID == "" || farm.OwnerID == "" {
		return models.ThreadKey{}, ErrNoTarget
	}
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return models.ThreadKey{}, ErrMissingSubject
	}

	key := models.ThreadKey{ContextID: farm.ID, CounterpartyID: farm.OwnerID}
	if err := r.Send(ctx, key, subject, body); err != nil {
		return key, err
	}
	if err := r.LoadThreads(ctx); err != nil {
		return key, err
	}
	return key, r.OpenThread(ctx, key)
}
