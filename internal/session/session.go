package session

import (
	"fmt"
	"strings"

	"github.com/saravenpi/fieldpost/internal/i18n"
)

// Session is the signed-in user as seen by the messaging code. A new
// Session replaces the old one wholesale when the user changes; nil means
// nobody is signed in.
type Session struct {
	UserID  string
	catalog *i18n.Catalog
}

func New(userID, locale string) (*Session, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("session needs a user id")
	}

	catalog, err := i18n.Load(locale)
	if err != nil {
		return nil, fmt.Errorf("failed to load translations: %w", err)
	}

	return &Session{UserID: userID, catalog: catalog}, nil
}

func (s *Session) Locale() string {
	return s.catalog.Locale()
}

func (s *Session) Catalog() *i18n.Catalog {
	return s.catalog
}

func (s *Session) T(key string) string {
	return s.catalog.T(key)
}
