package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/s22001503-hash/ouslpms-monorepo/migrations"
	"github.com/s22001503-hash/ouslpms-monorepo/pkg/database"
)

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or inspect schema migrations",
	}
	cmd.AddCommand(
		migrateAction("up", "Apply all pending migrations", cobra.NoArgs, func(m *database.Migrator, _ []string) (string, error) {
			return "migrations applied", m.Up()
		}),
		migrateAction("down", "Revert all migrations", cobra.NoArgs, func(m *database.Migrator, _ []string) (string, error) {
			return "migrations reverted", m.Down()
		}),
		migrateAction("steps N", "Migrate N steps, negative to go down", cobra.ExactArgs(1), func(m *database.Migrator, args []string) (string, error) {
			n, err := strconv.Atoi(args[0])
			if err != nil {
				return "", fmt.Errorf("steps must be an integer: %w", err)
			}
			return fmt.Sprintf("applied %d migration steps", n), m.Steps(n)
		}),
		migrateAction("version", "Print the applied schema version", cobra.NoArgs, func(m *database.Migrator, _ []string) (string, error) {
			v, dirty, err := m.Version()
			return fmt.Sprintf("version: %d, dirty: %v", v, dirty), err
		}),
		migrateAction("force V", "Mark version V as applied and clear the dirty flag", cobra.ExactArgs(1), func(m *database.Migrator, args []string) (string, error) {
			v, err := strconv.Atoi(args[0])
			if err != nil {
				return "", fmt.Errorf("version must be an integer: %w", err)
			}
			return fmt.Sprintf("forced to version %d", v), m.Force(v)
		}),
	)
	return cmd
}

func migrateAction(use, short string, args cobra.PositionalArgs, run func(*database.Migrator, []string) (string, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  args,
		RunE: func(cmd *cobra.Command, argv []string) error {
			env, err := loadEnv()
			if err != nil {
				return err
			}
			defer env.logger.Sync() //nolint:errcheck

			m, err := database.NewMigrator(migrations.FS, ".", env.cfg.Database)
			if err != nil {
				return err
			}
			defer m.Close()

			msg, err := run(m, argv)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), msg)
			return nil
		},
	}
}
