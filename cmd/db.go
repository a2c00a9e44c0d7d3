package cmd

import (
	"fmt"

	migrate "github.com/rubenv/sql-migrate"
	"github.com/spf13/cobra"
	"github.com/stellar/go/support/log"

	"github.com/innosystem/dispatch-platform-backend/db"
	"github.com/innosystem/dispatch-platform-backend/internal/data"
	"github.com/innosystem/dispatch-platform-backend/internal/services"
)

type DatabaseCommand struct{}

func (c *DatabaseCommand) Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Database related commands",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if cmd.Parent().PersistentPreRun != nil {
				cmd.Parent().PersistentPreRun(cmd.Parent(), args)
			}
		},
		Run: func(cmd *cobra.Command, _ []string) {
			err := cmd.Help()
			if err != nil {
				log.Fatalf("Error calling help command: %s", err.Error())
			}
		},
	}

	cmd.AddCommand(c.runCmd())
	cmd.AddCommand(c.statusCmd())
	cmd.AddCommand(c.rerunLatestCmd())
	cmd.AddCommand(c.seedCmd())

	return cmd
}

// runCmd applies all pending migrations.
func (c *DatabaseCommand) runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Apply all pending schema migrations",
		Run: func(cmd *cobra.Command, _ []string) {
			if err := c.applyMigrations(migrate.Up, 0); err != nil {
				log.Fatalf("Error executing migrations: %v", err)
			}
		},
	}
}

func (c *DatabaseCommand) statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "List the applied schema migrations",
		Run: func(cmd *cobra.Command, _ []string) {
			records, err := db.MigrationRecords(globalOptions.DatabaseURL)
			if err != nil {
				log.Fatalf("Error getting migration records: %v", err)
			}

			if len(records) == 0 {
				log.Info("No migrations applied.")
				return
			}
			for _, record := range records {
				log.Infof("%s\tapplied at %s", record.Id, record.AppliedAt.Format("2006-01-02 15:04:05 MST"))
			}
		},
	}
}

// rerunLatestCmd rolls the most recent migration back and applies it again.
func (c *DatabaseCommand) rerunLatestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rerun-latest",
		Short: "Roll back the most recent migration and apply it again",
		Run: func(cmd *cobra.Command, _ []string) {
			if err := c.applyMigrations(migrate.Down, 1); err != nil {
				log.Fatalf("Error rolling back latest migration: %v", err)
			}
			if err := c.applyMigrations(migrate.Up, 1); err != nil {
				log.Fatalf("Error re-applying latest migration: %v", err)
			}
		},
	}
}

func (c *DatabaseCommand) seedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Insert the demo job types, reseller, customer, wallet and runner",
		Run: func(cmd *cobra.Command, _ []string) {
			ctx := cmd.Context()

			dbConnectionPool, err := db.OpenDBConnectionPool(globalOptions.DatabaseURL)
			if err != nil {
				log.Ctx(ctx).Fatalf("error connecting to the database: %s", err.Error())
			}
			defer dbConnectionPool.Close()

			models, err := data.NewModels(dbConnectionPool)
			if err != nil {
				log.Ctx(ctx).Fatalf("error creating models: %s", err.Error())
			}

			if err := services.NewSeedService(models, dbConnectionPool).Seed(ctx); err != nil {
				log.Ctx(ctx).Fatalf("error seeding the database: %s", err.Error())
			}
			log.Ctx(ctx).Info("Seed data in place.")
		},
	}
}

func (c *DatabaseCommand) applyMigrations(dir migrate.MigrationDirection, count int) error {
	numMigrationsRun, err := db.Migrate(globalOptions.DatabaseURL, dir, count)
	if err != nil {
		return fmt.Errorf("migrating database: %w", err)
	}

	if numMigrationsRun == 0 {
		log.Info("No migrations applied.")
	} else {
		log.Infof("Successfully applied %d migrations %s.", numMigrationsRun, migrationDirectionStr(dir))
	}
	return nil
}

func migrationDirectionStr(dir migrate.MigrationDirection) string {
	if dir == migrate.Up {
		return "up"
	}
	return "down"
}
