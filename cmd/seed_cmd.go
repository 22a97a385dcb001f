package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kebairia/snapdump/internal/seed"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Apply the schema and data scripts once",
	Long: `seed runs the configured schema script and then the data script against
the live database, unless the state store records that this already happened.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx, appNeeds{})
		if err != nil {
			return err
		}
		defer a.close(ctx)

		loader := seed.FileLoader{SchemaPath: cfg.Seed.SchemaFile, DataPath: cfg.Seed.DataFile}
		ran, err := seed.Apply(ctx, a.pg, a.state, loader, log)
		if err != nil {
			return err
		}
		if !ran {
			fmt.Fprintln(os.Stderr, warnStyle.Render("database already seeded, nothing to do"))
			return nil
		}
		fmt.Fprintln(os.Stderr, successStyle.Render("database seeded"))
		return nil
	},
}
