package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/turtacn/lupa/internal/config"
	"github.com/turtacn/lupa/internal/infrastructure/database/postgres"
	"github.com/turtacn/lupa/pkg/errors"
)

// NewMigrateCmd builds `lupa migrate`, which manages the postgres schema
// of the model store.
func NewMigrateCmd(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the model store schema",
	}

	dsn := func() (string, error) {
		cfg, err := loadConfig(opts)
		if err != nil {
			return "", err
		}
		return postgresDSN(cfg)
	}

	up := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := bootstrap(opts)
			if err != nil {
				return err
			}
			d, err := postgresDSN(cfg)
			if err != nil {
				return err
			}
			return postgres.Migrate(d, log)
		},
	}

	down := &cobra.Command{
		Use:   "down [steps]",
		Short: "Roll back migrations (default 1)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			steps := 1
			if len(args) == 1 {
				n, err := strconv.Atoi(args[0])
				if err != nil {
					return errors.Wrap(err, errors.ErrCodeBadRequest, "steps must be an integer").WithDetail(args[0])
				}
				steps = n
			}
			d, err := dsn()
			if err != nil {
				return err
			}
			if err := postgres.Rollback(d, steps); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "rolled back %d migration(s)\n", steps)
			return nil
		},
	}

	status := &cobra.Command{
		Use:   "status",
		Short: "Show the applied schema version",
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := dsn()
			if err != nil {
				return err
			}
			version, dirty, err := postgres.MigrationStatus(d)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "version %d, dirty %t\n", version, dirty)
			return nil
		},
	}

	cmd.AddCommand(up, down, status)
	return cmd
}

func postgresDSN(cfg *config.Config) (string, error) {
	if !cfg.Postgres.Enabled {
		return "", errors.New(errors.ErrCodeValidation, "postgres is disabled; set postgres.enabled")
	}
	return postgres.DSN(cfg.Postgres), nil
}
