package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/saravenpi/fieldpost/internal/models"
)

// Send persists a new message and returns the stored record. When the write
// succeeds but the record cannot be read back, Send returns (nil, nil): the
// message exists, the caller just has no echo of it.
func (s *Store) Send(ctx context.Context, msg models.NewMessage) (*models.Message, error) {
	if msg.SenderID == "" || msg.RecipientID == "" || msg.ContextID == "" {
		return nil, fmt.Errorf("message needs a sender, a recipient and a farm")
	}

	id := uuid.NewString()
	createdAt := s.now().UTC()

	query := `
		INSERT INTO messages (id, sender_id, recipient_id, farm_id, subject, message, created_at, read)
		VALUES (?, ?, ?, ?, ?, ?, ?, 0)
	`

	_, err := s.db.ExecContext(ctx, query, id, msg.SenderID, msg.RecipientID, msg.ContextID,
		msg.Subject, msg.Body, createdAt.UnixNano())
	if err != nil {
		return nil, fmt.Errorf("failed to insert message: %w", err)
	}

	stored, err := s.fetchMessage(ctx, id)
	if err != nil {
		log.Warn().Err(err).Str("message", id).Msg("Message stored but could not be read back")
		return nil, nil
	}

	s.hub.publish(*stored)
	return stored, nil
}

// MarkRead flags the given messages as read. Already-read messages are left
// untouched, so repeating the call is harmless.
func (s *Store) MarkRead(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	query := `
		UPDATE messages
		SET read = 1
		WHERE id IN (` + placeholders + `)
		AND read = 0
	`

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to mark messages as read: %w", err)
	}

	return nil
}

func (s *Store) UpsertProfile(ctx context.Context, p models.Profile) error {
	if p.ID == "" {
		return fmt.Errorf("profile id cannot be empty")
	}

	query := `
		INSERT INTO profiles (id, full_name, avatar_url)
		VALUES (?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			full_name = excluded.full_name,
			avatar_url = excluded.avatar_url
	`

	if _, err := s.db.ExecContext(ctx, query, p.ID, p.DisplayName, p.AvatarURL); err != nil {
		return fmt.Errorf("failed to save profile %s: %w", p.ID, err)
	}
	return nil
}

func (s *Store) UpsertFarm(ctx context.Context, f models.Farm) error {
	if f.ID == "" || f.OwnerID == "" {
		return fmt.Errorf("farm needs an id and an owner")
	}

	query := `
		INSERT INTO farms (id, name, owner_id)
		VALUES (?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			owner_id = excluded.owner_id
	`

	if _, err := s.db.ExecContext(ctx, query, f.ID, f.Name, f.OwnerID); err != nil {
		return fmt.Errorf("failed to save farm %s: %w", f.ID, err)
	}
	return nil
}
