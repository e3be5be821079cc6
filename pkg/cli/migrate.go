package cli

import (
	"context"

	"github.com/m-mizutani/fireconf"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"github.com/helixa-health/scribe/pkg/utils/logging"
)

func cmdMigrate() *cli.Command {
	var projectID string
	var databaseID string
	var dryRun bool

	return &cli.Command{
		Name:    "migrate",
		Aliases: []string{"m"},
		Usage:   "Migrate Firestore indexes",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "firestore-project-id",
				Usage:       "Firestore Project ID (required)",
				Required:    true,
				Sources:     cli.EnvVars("SCRIBE_FIRESTORE_PROJECT_ID"),
				Destination: &projectID,
			},
			&cli.StringFlag{
				Name:        "firestore-database-id",
				Usage:       "Firestore Database ID",
				Sources:     cli.EnvVars("SCRIBE_FIRESTORE_DATABASE_ID"),
				Destination: &databaseID,
			},
			&cli.BoolFlag{
				Name:        "dry-run",
				Usage:       "Preview changes without applying",
				Destination: &dryRun,
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			logger := logging.Default()

			logger.Info("Migrate configuration",
				"projectID", projectID,
				"databaseID", databaseID,
				"dryRun", dryRun)

			indexConfig := getIndexConfig()

			client, err := fireconf.NewClient(ctx, projectID, databaseID)
			if err != nil {
				return goerr.Wrap(err, "failed to create fireconf client")
			}
			defer func() {
				if err := client.Close(); err != nil {
					logger.Error("failed to close fireconf client", "error", err.Error())
				}
			}()

			if dryRun {
				logger.Info("Dry run mode - previewing changes")
				plan, err := client.GetMigrationPlan(ctx, indexConfig)
				if err != nil {
					return goerr.Wrap(err, "failed to create migration plan")
				}

				if len(plan.Steps) == 0 {
					logger.Info("No changes required")
					return nil
				}

				for _, step := range plan.Steps {
					logger.Info("Migration step",
						"collection", step.Collection,
						"operation", step.Operation,
						"description", step.Description,
						"destructive", step.Destructive)
				}
			} else {
				logger.Info("Applying migrations")
				if err := client.Migrate(ctx, indexConfig); err != nil {
					return goerr.Wrap(err, "failed to apply migrations")
				}
				logger.Info("Migrations applied successfully")
			}

			return nil
		},
	}
}

// getIndexConfig returns the composite indexes required by the list queries.
func getIndexConfig() *fireconf.Config {
	return &fireconf.Config{
		Collections: []fireconf.Collection{
			{
				Name: "notes",
				Indexes: []fireconf.Index{
					// ListNotes default: patientId ASC, createdAt DESC
					{
						Fields: []fireconf.IndexField{
							{Path: "patientId", Order: fireconf.OrderAscending},
							{Path: "createdAt", Order: fireconf.OrderDescending},
						},
					},
					// ListNotes sorted by last edit: patientId ASC, lastEdited DESC
					{
						Fields: []fireconf.IndexField{
							{Path: "patientId", Order: fireconf.OrderAscending},
							{Path: "lastEdited", Order: fireconf.OrderDescending},
						},
					},
					// ListNotes sorted by title: patientId ASC, title ASC
					{
						Fields: []fireconf.IndexField{
							{Path: "patientId", Order: fireconf.OrderAscending},
							{Path: "title", Order: fireconf.OrderAscending},
						},
					},
				},
			},
			{
				Name: "patients",
				Indexes: []fireconf.Index{
					// ListPatients sorted by name with recency tiebreak
					{
						Fields: []fireconf.IndexField{
							{Path: "name", Order: fireconf.OrderAscending},
							{Path: "lastModified", Order: fireconf.OrderDescending},
						},
					},
				},
			},
		},
	}
}
