package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"
	"github.com/saravenpi/fieldpost/internal/models"
)

const avatarBucketPath = "/storage/v1/object/public/avatars/"

const schema = `
CREATE TABLE IF NOT EXISTS profiles (
	id         TEXT PRIMARY KEY,
	full_name  TEXT,
	avatar_url TEXT
);

CREATE TABLE IF NOT EXISTS farms (
	id       TEXT PRIMARY KEY,
	name     TEXT NOT NULL,
	owner_id TEXT NOT NULL REFERENCES profiles(id)
);

CREATE TABLE IF NOT EXISTS messages (
	id           TEXT PRIMARY KEY,
	sender_id    TEXT,
	recipient_id TEXT,
	farm_id      TEXT,
	subject      TEXT NOT NULL DEFAULT '',
	message      TEXT NOT NULL DEFAULT '',
	created_at   INTEGER NOT NULL,
	read         INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS messages_sender_idx ON messages (sender_id, created_at);
CREATE INDEX IF NOT EXISTS messages_recipient_idx ON messages (recipient_id, created_at);
`

// messageColumns is shared by every message query so rows always scan the same way.
const messageColumns = `
	m.rowid,
	m.id,
	m.sender_id,
	m.recipient_id,
	m.farm_id,
	COALESCE(f.name, ''),
	m.subject,
	m.message,
	m.created_at,
	m.read
`

var errInvalidRecord = errors.New("invalid record")

// Store is the SQLite-backed message store.
type Store struct {
	db         *sql.DB
	hub        *hub
	storageURL string
	now        func() time.Time
}

type Option func(*Store)

// WithStorageURL sets the base used to expand bare avatar file names.
func WithStorageURL(url string) Option {
	return func(s *Store) {
		s.storageURL = strings.TrimRight(url, "/")
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// WithSubscriberBuffer sets how many undelivered inserts a subscriber may
// hold before it is dropped.
func WithSubscriberBuffer(n int) Option {
	return func(s *Store) {
		s.hub.buffer = n
	}
}

func DefaultPath() string {
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".fieldpost", "fieldpost.db")
}

func Open(path string, opts ...Option) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &Store{
		db:  db,
		hub: newHub(),
		now: time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Store) Close() error {
	s.hub.closeAll()
	return s.db.Close()
}

func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	return nil
}

type messageRow struct {
	rowID       int64
	id          sql.NullString
	senderID    sql.NullString
	recipientID sql.NullString
	farmID      sql.NullString
	farmName    string
	subject     string
	body        string
	createdAt   int64
	read        bool
}

func scanMessage(rows *sql.Rows) (messageRow, error) {
	var r messageRow
	err := rows.Scan(&r.rowID, &r.id, &r.senderID, &r.recipientID, &r.farmID,
		&r.farmName, &r.subject, &r.body, &r.createdAt, &r.read)
	return r, err
}

// decodeMessage converts a raw row into a typed message. Rows without the
// identifiers a thread is keyed on are rejected.
func decodeMessage(r messageRow) (models.Message, error) {
	switch {
	case !r.id.Valid || r.id.String == "":
		return models.Message{}, fmt.Errorf("%w: message row %d has no id", errInvalidRecord, r.rowID)
	case !r.senderID.Valid || r.senderID.String == "":
		return models.Message{}, fmt.Errorf("%w: message %s has no sender", errInvalidRecord, r.id.String)
	case !r.recipientID.Valid || r.recipientID.String == "":
		return models.Message{}, fmt.Errorf("%w: message %s has no recipient", errInvalidRecord, r.id.String)
	case !r.farmID.Valid || r.farmID.String == "":
		return models.Message{}, fmt.Errorf("%w: message %s has no farm", errInvalidRecord, r.id.String)
	}

	return models.Message{
		ID:          r.id.String,
		SenderID:    r.senderID.String,
		RecipientID: r.recipientID.String,
		ContextID:   r.farmID.String,
		ContextName: r.farmName,
		Subject:     r.subject,
		Body:        r.body,
		CreatedAt:   time.Unix(0, r.createdAt),
		Read:        r.read,
	}, nil
}

// queryMessages runs a message query and returns the decoded messages plus the
// highest rowid seen.
func (s *Store) queryMessages(ctx context.Context, query string, args ...any) ([]models.Message, int64, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var messages []models.Message
	var maxRowID int64
	for rows.Next() {
		row, err := scanMessage(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan message: %w", err)
		}
		if row.rowID > maxRowID {
			maxRowID = row.rowID
		}

		msg, err := decodeMessage(row)
		if err != nil {
			log.Warn().Err(err).Msg("Skipping malformed message")
			continue
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to read messages: %w", err)
	}

	return messages, maxRowID, nil
}

// FetchSent returns messages sent by userID, newest first.
func (s *Store) FetchSent(ctx context.Context, userID string) ([]models.Message, error) {
	query := `SELECT` + messageColumns + `
		FROM messages m
		LEFT JOIN farms f ON f.id = m.farm_id
		WHERE m.sender_id = ?
		ORDER BY m.created_at DESC, m.id DESC`

	messages, _, err := s.queryMessages(ctx, query, userID)
	return messages, err
}

// FetchReceived returns messages addressed to userID, newest first.
func (s *Store) FetchReceived(ctx context.Context, userID string) ([]models.Message, error) {
	query := `SELECT` + messageColumns + `
		FROM messages m
		LEFT JOIN farms f ON f.id = m.farm_id
		WHERE m.recipient_id = ?
		ORDER BY m.created_at DESC, m.id DESC`

	messages, _, err := s.queryMessages(ctx, query, userID)
	return messages, err
}

// FetchThreadHistory returns both directions of the conversation between
// userID and counterpartyID about contextID, oldest first.
func (s *Store) FetchThreadHistory(ctx context.Context, userID, counterpartyID, contextID string) ([]models.Message, error) {
	query := `SELECT` + messageColumns + `
		FROM messages m
		LEFT JOIN farms f ON f.id = m.farm_id
		WHERE m.farm_id = ?
		AND (
			(m.sender_id = ? AND m.recipient_id = ?)
			OR (m.sender_id = ? AND m.recipient_id = ?)
		)
		ORDER BY m.created_at ASC, m.id ASC`

	messages, _, err := s.queryMessages(ctx, query, contextID, userID, counterpartyID, counterpartyID, userID)
	return messages, err
}

func (s *Store) fetchMessage(ctx context.Context, id string) (*models.Message, error) {
	query := `SELECT` + messageColumns + `
		FROM messages m
		LEFT JOIN farms f ON f.id = m.farm_id
		WHERE m.id = ?`

	messages, _, err := s.queryMessages(ctx, query, id)
	if err != nil {
		return nil, err
	}
	if len(messages) == 0 {
		return nil, fmt.Errorf("message %s not found", id)
	}
	return &messages[0], nil
}

// fetchSince returns messages inserted after the given rowid.
func (s *Store) fetchSince(ctx context.Context, rowID int64) ([]models.Message, int64, error) {
	query := `SELECT` + messageColumns + `
		FROM messages m
		LEFT JOIN farms f ON f.id = m.farm_id
		WHERE m.rowid > ?
		ORDER BY m.rowid ASC`

	messages, maxRowID, err := s.queryMessages(ctx, query, rowID)
	if err != nil {
		return nil, rowID, err
	}
	if maxRowID < rowID {
		maxRowID = rowID
	}
	return messages, maxRowID, nil
}

func (s *Store) maxRowID(ctx context.Context) (int64, error) {
	var rowID int64
	err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(rowid), 0) FROM messages`).Scan(&rowID)
	if err != nil {
		return 0, fmt.Errorf("failed to read message cursor: %w", err)
	}
	return rowID, nil
}

// avatarURL expands a bare file name into a public storage URL. Absolute URLs
// and paths are returned as they are.
func (s *Store) avatarURL(ref string) string {
	if ref == "" || s.storageURL == "" {
		return ref
	}
	if strings.HasPrefix(ref, "http") || strings.Contains(ref, "/") {
		return ref
	}
	return s.storageURL + avatarBucketPath + ref
}

// FetchProfiles resolves the given user ids in one query. Unknown ids are
// simply absent from the result.
func (s *Store) FetchProfiles(ctx context.Context, ids []string) ([]models.Profile, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	query := `
		SELECT id, COALESCE(full_name, ''), COALESCE(avatar_url, '')
		FROM profiles
		WHERE id IN (` + placeholders + `)
		ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query profiles: %w", err)
	}
	defer rows.Close()

	var profiles []models.Profile
	for rows.Next() {
		var p models.Profile
		var avatar string
		if err := rows.Scan(&p.ID, &p.DisplayName, &avatar); err != nil {
			return nil, fmt.Errorf("failed to scan profile: %w", err)
		}
		p.AvatarURL = s.avatarURL(avatar)
		profiles = append(profiles, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read profiles: %w", err)
	}

	return profiles, nil
}

// FetchFarms lists every farm with its owner, for picking a conversation target.
func (s *Store) FetchFarms(ctx context.Context) ([]models.Farm, error) {
	query := `
		SELECT f.id, f.name, f.owner_id, COALESCE(p.full_name, '')
		FROM farms f
		LEFT JOIN profiles p ON p.id = f.owner_id
		ORDER BY f.name, f.id`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query farms: %w", err)
	}
	defer rows.Close()

	var farms []models.Farm
	for rows.Next() {
		var farm models.Farm
		if err := rows.Scan(&farm.ID, &farm.Name, &farm.OwnerID, &farm.OwnerName); err != nil {
			return nil, fmt.Errorf("failed to scan farm: %w", err)
		}
		farms = append(farms, farm)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read farms: %w", err)
	}

	return farms, nil
}
