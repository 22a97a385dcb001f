package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var resetYes bool

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Drop every user schema and enum type",
	Long: `reset drops every schema holding tables (outside pg_catalog and
information_schema) and every enum type in one transaction. It refuses to run
without --yes.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if !resetYes {
			return errors.New("reset destroys data; pass --yes to confirm")
		}
		ctx := cmd.Context()
		a, err := newApp(ctx, appNeeds{})
		if err != nil {
			return err
		}
		defer a.close(ctx)

		report, err := a.pg.Reset(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintln(os.Stderr, successStyle.Render("==> database reset"))
		printField("schemas", strings.Join(report.Schemas, ", "))
		printField("types", report.Types)
		return nil
	},
}

func init() {
	resetCmd.Flags().
		BoolVarP(&resetYes, "yes", "y", false, "confirm dropping all user schemas")
}
