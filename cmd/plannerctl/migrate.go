package main

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/banshee-data/motion-planner/internal/db"
)

// NewMigrateCommand creates the migrate command and its actions. Unlike the
// other commands it opens the database without applying migrations.
func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the decision log schema",
	}

	// withDB opens the log without migrating and hands it to fn.
	withDB := func(fn func(cmd *cobra.Command, database *db.DB, args []string) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			database, err := db.OpenDB(rootOpts.Database)
			if err != nil {
				return fmt.Errorf("failed to connect to database: %w", err)
			}
			defer database.Close()
			return fn(cmd, database, args)
		}
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: withDB(func(cmd *cobra.Command, database *db.DB, _ []string) error {
			if err := database.MigrateUp(db.MigrationsFS()); err != nil {
				return err
			}
			return printMigrationStatus(cmd.OutOrStdout(), rootOpts.Format, database)
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back one migration",
		RunE: withDB(func(cmd *cobra.Command, database *db.DB, _ []string) error {
			if err := database.MigrateDown(db.MigrationsFS()); err != nil {
				return err
			}
			return printMigrationStatus(cmd.OutOrStdout(), rootOpts.Format, database)
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show the current and latest schema version",
		RunE: withDB(func(cmd *cobra.Command, database *db.DB, _ []string) error {
			return printMigrationStatus(cmd.OutOrStdout(), rootOpts.Format, database)
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "version <N>",
		Short: "Migrate up or down to version N",
		Args:  cobra.ExactArgs(1),
		RunE: withDB(func(cmd *cobra.Command, database *db.DB, args []string) error {
			target, err := strconv.ParseUint(args[0], 10, 32)
			if err != nil {
				return fmt.Errorf("invalid version number: %s", args[0])
			}
			if err := database.MigrateTo(db.MigrationsFS(), uint(target)); err != nil {
				return err
			}
			return printMigrationStatus(cmd.OutOrStdout(), rootOpts.Format, database)
		}),
	})

	var yes bool
	force := &cobra.Command{
		Use:   "force <N>",
		Short: "Record version N without running migrations (dirty-state recovery only)",
		Args:  cobra.ExactArgs(1),
		RunE: withDB(func(cmd *cobra.Command, database *db.DB, args []string) error {
			target, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid version number: %s", args[0])
			}
			out := cmd.OutOrStdout()
			if !yes {
				fmt.Fprintf(out, "WARNING: forcing migration version to %d\n", target)
				fmt.Fprintln(out, "This should only be used to recover from a dirty migration state.")
				fmt.Fprint(out, "Continue? [y/N]: ")
				if !confirmed(cmd.InOrStdin()) {
					fmt.Fprintln(out, "Aborted")
					return nil
				}
			}
			if err := database.MigrateForce(db.MigrationsFS(), target); err != nil {
				return err
			}
			return printMigrationStatus(out, rootOpts.Format, database)
		}),
	}
	force.Flags().BoolVarP(&yes, "yes", "y", false, "skip the confirmation prompt")
	cmd.AddCommand(force)

	return cmd
}

func confirmed(in io.Reader) bool {
	line, _ := bufio.NewReader(in).ReadString('\n')
	switch strings.TrimSpace(line) {
	case "y", "Y", "yes":
		return true
	}
	return false
}

func printMigrationStatus(out io.Writer, format string, database *db.DB) error {
	status, err := database.MigrationStatus(db.MigrationsFS())
	if err != nil {
		return err
	}
	if format == "json" {
		return writeJSON(out, status)
	}
	fmt.Fprintln(out, "=== Migration Status ===")
	fmt.Fprintf(out, "Current version: %d\n", status.Current)
	fmt.Fprintf(out, "Latest available: %d\n", status.Latest)
	fmt.Fprintf(out, "Dirty: %v\n", status.Dirty)
	switch {
	case status.Dirty:
		fmt.Fprintln(out, "Database is in a dirty state. Inspect it, then run: plannerctl migrate force <version>")
	case status.Pending():
		fmt.Fprintf(out, "Database is %d version(s) behind. Run 'plannerctl migrate up' to update.\n", status.Latest-status.Current)
	default:
		fmt.Fprintln(out, "Database is up to date.")
	}
	return nil
}
