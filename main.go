package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog/log"
	"github.com/saravenpi/fieldpost/internal/config"
	"github.com/saravenpi/fieldpost/internal/directory"
	"github.com/saravenpi/fieldpost/internal/logging"
	"github.com/saravenpi/fieldpost/internal/reconciler"
	"github.com/saravenpi/fieldpost/internal/session"
	"github.com/saravenpi/fieldpost/internal/store"
	"github.com/saravenpi/fieldpost/internal/ui"
	"github.com/urfave/cli/v2"
)

const version = "1.0.0"

func main() {
	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}

	app := &cli.App{
		Name:                 "fieldpost",
		Usage:                "Terminal messaging for the farm marketplace",
		Version:              version,
		Flags:                append(config.Flags(), inquiryFlags()...),
		EnableBashCompletion: true,
		Action:               runAction,
		Commands: []*cli.Command{
			{
				Name:   "run",
				Usage:  "Start the messaging client (default)",
				Flags:  inquiryFlags(),
				Action: runAction,
			},
			{
				Name:   "seed",
				Usage:  "Load profiles and farms from the directory into the database",
				Action: seedAction,
			},
			{
				Name:  "directory",
				Usage: "Manage the profile and farm files used by seed",
				Subcommands: []*cli.Command{
					{
						Name:  "add",
						Usage: "Create or update a person and their farms",
						Flags: []cli.Flag{
							&cli.StringFlag{Name: "id", Usage: "profile id", Required: true},
							&cli.StringFlag{Name: "name", Usage: "display name"},
							&cli.StringFlag{Name: "avatar", Usage: "avatar URL or storage file name"},
							&cli.StringSliceFlag{Name: "farm", Usage: "farm owned by the person, as id=name (repeatable)"},
						},
						Action: directoryAddAction,
					},
					{
						Name:      "remove",
						Usage:     "Delete a person's file",
						ArgsUsage: "<id>",
						Action:    directoryRemoveAction,
					},
					{
						Name:   "list",
						Usage:  "List the people and farms in the directory",
						Action: directoryListAction,
					},
				},
			},
			{
				Name:  "version",
				Usage: "Show version information",
				Action: func(c *cli.Context) error {
					fmt.Printf("Fieldpost v%s\n", version)
					return nil
				},
			},
		},
		CustomAppHelpTemplate: cli.AppHelpTemplate + helpText,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func inquiryFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "farm", Usage: "open a new conversation with this farm id"},
		&cli.StringFlag{Name: "order", Usage: "order number to ask the farm about"},
		&cli.StringFlag{Name: "product", Usage: "product name from the order"},
	}
}

func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg := config.FromContext(c)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func openStore(ctx context.Context, cfg *config.Config) (*store.Store, error) {
	st, err := store.Open(cfg.DBPath, store.WithStorageURL(cfg.StorageURL))
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, err
	}
	return st, nil
}

func runAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if err := cfg.RequireUser(); err != nil {
		return err
	}

	closer, err := logging.Setup(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		return err
	}
	defer closer.Close()

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStore(ctx, cfg)
	if err != nil {
		log.Error().Err(err).Str("db", cfg.DBPath).Msg("Failed to open store")
		return err
	}
	defer st.Close()

	sess, err := session.New(cfg.UserID, cfg.Locale)
	if err != nil {
		return err
	}

	rec := reconciler.New(st, sess)
	defer rec.CloseThread()

	go func() {
		if err := st.Watch(ctx, cfg.PollInterval); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("Store watcher stopped")
		}
	}()

	log.Info().
		Str("user", sess.UserID).
		Str("locale", sess.Locale()).
		Str("db", cfg.DBPath).
		Msg("Starting fieldpost")

	app := &ui.App{Ctx: ctx, Reconciler: rec, Farms: st}

	var initial tea.Model = ui.NewMenuModel(app)
	if farmID := c.String("farm"); farmID != "" {
		prefill := ui.Prefill{FarmID: farmID}
		if order := c.String("order"); order != "" {
			prefill.Subject, prefill.Body = reconciler.OrderInquiry(sess.Catalog(), c.String("product"), order)
		}
		initial = ui.NewNewConversationModel(app, prefill)
	}

	return ui.Run(app, initial)
}

func seedAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if err := logging.Console(cfg.LogLevel); err != nil {
		return err
	}

	st, err := openStore(c.Context, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	dir := directory.New(cfg.DirectoryPath)
	profiles, farms, err := dir.Seed(c.Context, st)
	if err != nil {
		return err
	}

	fmt.Printf("Seeded %d profiles and %d farms from %s\n", profiles, farms, dir.Path())
	return nil
}

func directoryAddAction(c *cli.Context) error {
	cfg := config.FromContext(c)

	var farms []directory.Farm
	for _, raw := range c.StringSlice("farm") {
		farm, err := directory.ParseFarm(raw)
		if err != nil {
			return err
		}
		farms = append(farms, farm)
	}

	dir := directory.New(cfg.DirectoryPath)
	entry, err := dir.Upsert(c.String("id"), c.String("name"), c.String("avatar"), farms)
	if err != nil {
		return err
	}

	fmt.Printf("Saved %s (%s) with %d farms to %s\n", entry.ID, entry.Name, len(entry.Farms), dir.Path())
	return nil
}

func directoryRemoveAction(c *cli.Context) error {
	id := c.Args().First()
	if id == "" {
		return fmt.Errorf("usage: fieldpost directory remove <id>")
	}

	cfg := config.FromContext(c)
	if err := directory.New(cfg.DirectoryPath).Delete(id); err != nil {
		return err
	}

	fmt.Printf("Removed %s\n", id)
	return nil
}

func directoryListAction(c *cli.Context) error {
	cfg := config.FromContext(c)
	entries, err := directory.New(cfg.DirectoryPath).LoadDir()
	if err != nil {
		return err
	}

	if len(entries) == 0 {
		fmt.Println("No directory entries found.")
		return nil
	}
	for _, e := range entries {
		fmt.Printf("%s  %s\n", e.ID, e.Name)
		for _, f := range e.Farms {
			fmt.Printf("    %s  %s\n", f.ID, f.Name)
		}
	}
	return nil
}

const helpText = `
NAVIGATION:
   ↑/↓ or j/k        Navigate lists
   Enter             Select/Open item
   ESC               Go back
   q                 Quit from current view
   ctrl+c            Force quit

CONVERSATIONS:
   n                 Start a new conversation
   /                 Search conversations
   r                 Refresh conversation list

MESSAGES:
   n or enter        Reply
   ctrl+s            Send message (while composing)
   r                 Reload the conversation

DIRECTORY:
   Profiles and farms are described in ~/.fieldpost/directory/ as YAML
   files, one per person. Edit them with "fieldpost directory add|remove|list"
   and load them into the database with "fieldpost seed".
`
