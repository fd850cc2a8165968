package cli

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/turtacn/lupa/internal/app"
	"github.com/turtacn/lupa/internal/config"
	"github.com/turtacn/lupa/internal/infrastructure/database/postgres"
	"github.com/turtacn/lupa/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/lupa/internal/intelligence/model"
	"github.com/turtacn/lupa/pkg/errors"
)

// NewModelCmd builds `lupa model`, which publishes model files to the
// configured postgres or MinIO model source.
func NewModelCmd(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "model",
		Short: "Publish and list stored models",
	}

	var comment, key string
	push := &cobra.Command{
		Use:   "push FILE",
		Short: "Validate a model file and store it as the next version",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := bootstrap(opts)
			if err != nil {
				return err
			}
			ctx := commandContext(cmd)
			// Compile first so that a broken model is never published.
			if _, err := loadService(ctx, args[0], cfg.Engine.UseAllBuiltins); err != nil {
				return err
			}
			m, err := model.Load(args[0])
			if err != nil {
				return err
			}
			return pushModel(ctx, cmd.OutOrStdout(), cfg, log, m, key, comment)
		},
	}
	push.Flags().StringVar(&comment, "comment", "", "comment stored with a postgres version")
	push.Flags().StringVar(&key, "key", "", "object key for the minio source (default minio.object_key)")

	list := &cobra.Command{
		Use:   "list",
		Short: "List stored model versions or objects",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := bootstrap(opts)
			if err != nil {
				return err
			}
			return listModels(commandContext(cmd), cmd.OutOrStdout(), cfg, log)
		},
	}

	cmd.AddCommand(push, list)
	return cmd
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func pushModel(ctx context.Context, out io.Writer, cfg *config.Config, log logging.Logger, m *model.Model, key, comment string) error {
	switch cfg.Engine.ModelSource {
	case config.ModelSourcePostgres:
		repo, err := app.OpenRepository(ctx, cfg, log)
		if err != nil {
			return err
		}
		defer repo.Close()
		rec, err := repo.Save(ctx, cfg.Engine.ModelName, m, comment)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s %s@%d (%s)\n", color.GreenString("saved"), rec.Name, rec.Version, shortVersion(rec.Digest))
		return nil

	case config.ModelSourceMinIO:
		if key == "" {
			key = cfg.MinIO.ObjectKey
		}
		store, err := app.OpenStore(ctx, cfg, log)
		if err != nil {
			return err
		}
		defer store.Close()
		if err := store.Put(ctx, key, m); err != nil {
			return err
		}
		fmt.Fprintf(out, "%s %s/%s\n", color.GreenString("uploaded"), cfg.MinIO.Bucket, key)
		return nil
	}
	return errors.Newf(errors.ErrCodeValidation, "model source %q has no store; edit engine.model_path instead", cfg.Engine.ModelSource)
}

func listModels(ctx context.Context, out io.Writer, cfg *config.Config, log logging.Logger) error {
	switch cfg.Engine.ModelSource {
	case config.ModelSourcePostgres:
		repo, err := app.OpenRepository(ctx, cfg, log)
		if err != nil {
			return err
		}
		defer repo.Close()
		recs, err := repo.ListVersions(ctx, cfg.Engine.ModelName)
		if err != nil {
			return err
		}
		renderVersions(out, recs)
		return nil

	case config.ModelSourceMinIO:
		store, err := app.OpenStore(ctx, cfg, log)
		if err != nil {
			return err
		}
		defer store.Close()
		keys, err := store.List(ctx)
		if err != nil {
			return err
		}
		for _, k := range keys {
			fmt.Fprintln(out, k)
		}
		return nil
	}
	return errors.Newf(errors.ErrCodeValidation, "model source %q has no store", cfg.Engine.ModelSource)
}

func renderVersions(out io.Writer, recs []*postgres.ModelRecord) {
	table := tablewriter.NewWriter(out)
	table.SetHeader([]string{"Version", "Digest", "Locale", "Created", "Comment"})
	for _, r := range recs {
		table.Append([]string{
			strconv.Itoa(r.Version),
			shortVersion(r.Digest),
			r.Locale,
			r.CreatedAt.Format("2006-01-02 15:04:05"),
			r.Comment,
		})
	}
	table.Render()
}
