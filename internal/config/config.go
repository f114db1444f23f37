package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"
)

// Config holds everything the client needs at startup.
type Config struct {
	DBPath        string
	UserID        string
	Locale        string
	StorageURL    string
	DirectoryPath string
	LogLevel      string
	LogFile       string
	PollInterval  time.Duration
}

// BaseDir is where the client keeps its database, log and seed files.
func BaseDir() string {
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".fieldpost")
}

// LoadDotEnv reads .env files into the environment. Variables that are
// already set win, and missing files are ignored.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env", filepath.Join(BaseDir(), ".env")}
	}

	for _, file := range files {
		if _, err := os.Stat(file); err != nil {
			continue
		}
		if err := godotenv.Load(file); err != nil {
			return fmt.Errorf("failed to load %s: %w", file, err)
		}
	}
	return nil
}

// Flags returns the command line flags, each bound to its environment variable.
func Flags() []cli.Flag {
	base := BaseDir()
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "db",
			Usage:   "path to the message database",
			EnvVars: []string{"FIELDPOST_DB"},
			Value:   filepath.Join(base, "fieldpost.db"),
		},
		&cli.StringFlag{
			Name:    "user",
			Aliases: []string{"u"},
			Usage:   "id of the signed-in user",
			EnvVars: []string{"FIELDPOST_USER"},
		},
		&cli.StringFlag{
			Name:    "locale",
			Usage:   "display language (en, al)",
			EnvVars: []string{"FIELDPOST_LOCALE", "LANG"},
			Value:   "en",
		},
		&cli.StringFlag{
			Name:    "storage-url",
			Usage:   "base URL used to expand avatar file names",
			EnvVars: []string{"FIELDPOST_STORAGE_URL"},
		},
		&cli.StringFlag{
			Name:    "directory",
			Usage:   "directory of profile and farm YAML files",
			EnvVars: []string{"FIELDPOST_DIRECTORY"},
			Value:   filepath.Join(base, "directory"),
		},
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "debug, info, warn or error",
			EnvVars: []string{"FIELDPOST_LOG_LEVEL"},
			Value:   "info",
		},
		&cli.StringFlag{
			Name:    "log-file",
			Usage:   "where to write logs",
			EnvVars: []string{"FIELDPOST_LOG_FILE"},
			Value:   filepath.Join(base, "fieldpost.log"),
		},
		&cli.DurationFlag{
			Name:    "poll-interval",
			Usage:   "how often to check for messages written elsewhere",
			EnvVars: []string{"FIELDPOST_POLL_INTERVAL"},
			Value:   2 * time.Second,
		},
	}
}

func FromContext(c *cli.Context) *Config {
	return &Config{
		DBPath:        c.String("db"),
		UserID:        strings.TrimSpace(c.String("user")),
		Locale:        c.String("locale"),
		StorageURL:    c.String("storage-url"),
		DirectoryPath: c.String("directory"),
		LogLevel:      c.String("log-level"),
		LogFile:       c.String("log-file"),
		PollInterval:  c.Duration("poll-interval"),
	}
}

// Validate checks the settings every command needs. The user id is only
// required by commands that act as a user; see RequireUser.
func (c *Config) Validate() error {
	var errs []error

	if c.DBPath == "" {
		errs = append(errs, errors.New("database path cannot be empty"))
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("invalid log level %q", c.LogLevel))
	}
	if c.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("poll interval must be positive, got %s", c.PollInterval))
	}
	if c.StorageURL != "" && !strings.HasPrefix(c.StorageURL, "http") {
		errs = append(errs, fmt.Errorf("storage URL must be http(s), got %q", c.StorageURL))
	}

	return errors.Join(errs...)
}

func (c *Config) RequireUser() error {
	if c.UserID == "" {
		return errors.New("no user given: pass --user or set FIELDPOST_USER")
	}
	return nil
}
