package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	"github.com/quarryforge/quarry/internal/importer"
	"github.com/quarryforge/quarry/internal/tracker/storage/sqlite"
)

func main() {
	app := &cli.App{
		Name:  "quarry-importer",
		Usage: "Backfill the tracker event log from a GitHub repository",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "repo",
				Usage:   "repository to import, as owner/name",
				EnvVars: []string{"QUARRY_IMPORT_REPO"},
			},
			&cli.StringFlag{
				Name:    "token",
				Usage:   "GitHub API token",
				EnvVars: []string{"GITHUB_TOKEN"},
			},
			&cli.StringFlag{
				Name:    "db",
				Value:   "quarry.db",
				Usage:   "path to the tracker SQLite database",
				EnvVars: []string{"QUARRY_DB_PATH"},
			},
			&cli.TimestampFlag{
				Name:   "since",
				Usage:  "only import items updated since this time (RFC 3339)",
				Layout: time.RFC3339,
			},
		},
		Action: runImport,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func runImport(c *cli.Context) error {
	owner, repo, ok := strings.Cut(c.String("repo"), "/")
	if !ok || owner == "" || repo == "" {
		return fmt.Errorf("repo must be owner/name, got %q", c.String("repo"))
	}

	store, err := sqlite.Open(c.String("db"))
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer store.Close()

	log := zerolog.New(os.Stderr).With().Timestamp().Str("service", "quarry-importer").Logger()

	var since time.Time
	if ts := c.Timestamp("since"); ts != nil {
		since = *ts
	}

	imp := importer.New(importer.NewClient(c.String("token")), store, store, log)
	stats, err := imp.ImportRepository(c.Context, owner, repo, since)
	if err != nil {
		return err
	}
	fmt.Printf("imported %d work items (%d events, %d skipped)\n", stats.WorkItems, stats.Events, stats.Skipped)
	return nil
}
