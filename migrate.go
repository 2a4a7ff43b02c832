package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/ragdesk/ragdesk/internal/store"
)

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE:  runMigrateUp,
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "List migrations and whether each is applied",
		RunE:  runMigrateStatus,
	})

	return cmd
}

func runMigrateUp(cmd *cobra.Command, _ []string) error {
	logger := cmdLogger()

	// Open applies pending migrations.
	st, err := openStore(cmd.Context(), resolvedCfg, false, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	statusf(flagQuiet, "Database schema is up to date (%s).\n", resolvedCfg.Database.Driver)

	return nil
}

func runMigrateStatus(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	st, err := openStore(ctx, resolvedCfg, true, cmdLogger())
	if err != nil {
		return err
	}
	defer st.Close()

	states, err := st.MigrationStatus(ctx)
	if err != nil {
		return err
	}

	if flagJSON {
		return printMigrationsJSON(states)
	}

	rows := make([][]string, 0, len(states))
	for _, s := range states {
		applied := "pending"
		if s.Applied {
			applied = "applied"
		}

		rows = append(rows, []string{strconv.FormatInt(s.Version, 10), applied, s.Source})
	}

	printTable(os.Stdout, []string{"VERSION", "STATE", "SOURCE"}, rows)

	return nil
}

type migrationJSON struct {
	Version int64  `json:"version"`
	Source  string `json:"source"`
	Applied bool   `json:"applied"`
}

func printMigrationsJSON(states []store.MigrationState) error {
	out := make([]migrationJSON, 0, len(states))
	for _, s := range states {
		out = append(out, migrationJSON(s))
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	if err := enc.Encode(out); err != nil {
		return fmt.Errorf("encoding migration status: %w", err)
	}

	return nil
}
