package directory

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/saravenpi/fieldpost/internal/models"
	"gopkg.in/yaml.v3"
)

var ErrNotFound = errors.New("directory entry not found")

// Entry is one person in the marketplace along with the farms they own.
type Entry struct {
	ID        string `yaml:"id"`
	Name      string `yaml:"name"`
	AvatarURL string `yaml:"avatar_url,omitempty"`
	Farms     []Farm `yaml:"farms,omitempty"`
}

type Farm struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// Profile returns the entry as a store profile.
func (e Entry) Profile() models.Profile {
	return models.Profile{ID: e.ID, DisplayName: e.Name, AvatarURL: e.AvatarURL}
}

// Directory reads and writes entries as YAML files, one per person.
type Directory struct {
	dir string
}

func New(dir string) *Directory {
	return &Directory{dir: dir}
}

func (d *Directory) Path() string {
	return d.dir
}

// sanitizeFilename converts an entry id to a safe filename.
func sanitizeFilename(id string) string {
	id = strings.TrimSpace(id)
	id = strings.ReplaceAll(id, "/", "-")
	id = strings.ReplaceAll(id, "\\", "-")
	id = strings.ReplaceAll(id, ":", "-")
	return id
}

func (d *Directory) filePath(id string) string {
	return filepath.Join(d.dir, sanitizeFilename(id)+".yml")
}

// Save writes an entry to <dir>/<id>.yml, creating the directory if needed.
func (d *Directory) Save(entry Entry) error {
	if strings.TrimSpace(entry.ID) == "" {
		return fmt.Errorf("entry id cannot be empty")
	}

	if err := os.MkdirAll(d.dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	data, err := yaml.Marshal(&entry)
	if err != nil {
		return fmt.Errorf("failed to marshal entry: %w", err)
	}

	if err := os.WriteFile(d.filePath(entry.ID), data, 0644); err != nil {
		return fmt.Errorf("failed to write entry file: %w", err)
	}

	return nil
}

func (d *Directory) Load(id string) (*Entry, error) {
	data, err := os.ReadFile(d.filePath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to read entry file: %w", err)
	}

	var entry Entry
	if err := yaml.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("failed to parse entry file: %w", err)
	}

	return &entry, nil
}

func (d *Directory) Delete(id string) error {
	if err := os.Remove(d.filePath(id)); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return fmt.Errorf("failed to delete entry: %w", err)
	}

	return nil
}

// ParseFarm reads a farm given as "id=name".
func ParseFarm(s string) (Farm, error) {
	id, name, ok := strings.Cut(s, "=")
	id, name = strings.TrimSpace(id), strings.TrimSpace(name)
	if !ok || id == "" || name == "" {
		return Farm{}, fmt.Errorf("farm must look like id=name, got %q", s)
	}
	return Farm{ID: id, Name: name}, nil
}

// Upsert merges changes into the entry stored under id and saves it. Empty
// name and avatar keep the stored values; farms replace stored farms with
// the same id and are otherwise appended.
func (d *Directory) Upsert(id, name, avatarURL string, farms []Farm) (*Entry, error) {
	entry, err := d.Load(id)
	if errors.Is(err, ErrNotFound) {
		entry = &Entry{ID: strings.TrimSpace(id)}
	} else if err != nil {
		return nil, err
	}

	if name != "" {
		entry.Name = name
	}
	if avatarURL != "" {
		entry.AvatarURL = avatarURL
	}
	if entry.Name == "" {
		return nil, fmt.Errorf("entry %s needs a name", entry.ID)
	}

	for _, farm := range farms {
		replaced := false
		for i := range entry.Farms {
			if entry.Farms[i].ID == farm.ID {
				entry.Farms[i] = farm
				replaced = true
			}
		}
		if !replaced {
			entry.Farms = append(entry.Farms, farm)
		}
	}

	if err := d.Save(*entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// LoadDir parses every .yml and .yaml file in the directory, sorted by id.
// Files that cannot be parsed or have no id are logged and skipped. A missing
// directory yields no entries.
func (d *Directory) LoadDir() ([]Entry, error) {
	files, err := os.ReadDir(d.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read directory: %w", err)
	}

	var entries []Entry
	for _, file := range files {
		name := file.Name()
		if file.IsDir() || !(strings.HasSuffix(name, ".yml") || strings.HasSuffix(name, ".yaml")) {
			continue
		}

		path := filepath.Join(d.dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			log.Warn().Err(err).Str("file", path).Msg("Skipping unreadable directory file")
			continue
		}

		var entry Entry
		if err := yaml.Unmarshal(data, &entry); err != nil {
			log.Warn().Err(err).Str("file", path).Msg("Skipping malformed directory file")
			continue
		}
		if strings.TrimSpace(entry.ID) == "" {
			log.Warn().Str("file", path).Msg("Skipping directory file without id")
			continue
		}

		entries = append(entries, entry)
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].ID < entries[j].ID })
	return entries, nil
}

// Seeder is the part of the store that seeding writes to.
type Seeder interface {
	UpsertProfile(ctx context.Context, p models.Profile) error
	UpsertFarm(ctx context.Context, f models.Farm) error
}

// Seed upserts every entry and its farms. Profiles go first so farm owners
// exist before their farms.
func (d *Directory) Seed(ctx context.Context, s Seeder) (profiles, farms int, err error) {
	entries, err := d.LoadDir()
	if err != nil {
		return 0, 0, err
	}

	for _, e := range entries {
		if err := s.UpsertProfile(ctx, e.Profile()); err != nil {
			return profiles, farms, fmt.Errorf("failed to seed profile %s: %w", e.ID, err)
		}
		profiles++
	}

	for _, e := range entries {
		for _, f := range e.Farms {
			if f.ID == "" {
				log.Warn().Str("owner", e.ID).Msg("Skipping farm without id")
				continue
			}
			if err := s.UpsertFarm(ctx, models.Farm{ID: f.ID, Name: f.Name, OwnerID: e.ID}); err != nil {
				return profiles, farms, fmt.Errorf("failed to seed farm %s: %w", f.ID, err)
			}
			farms++
		}
	}

	log.Info().Int("profiles", profiles).Int("farms", farms).Str("dir", d.dir).Msg("Directory seeded")
	return profiles, farms, nil
}
