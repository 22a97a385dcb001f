package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/kebairia/snapdump/internal/archive"
	"github.com/kebairia/snapdump/internal/operations"
)

var restoreInspect bool

var restoreCmd = &cobra.Command{
	Use:   "restore <archive.zip>",
	Short: "Replace the live database with an archived dump",
	Long: `restore unpacks an archive written by "dump --export", drops every user
schema and enum type in the live database, replays the dump and writes the
archived state items back. Use --inspect to only print what the archive holds.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		res, err := operations.DecompressZipPath(args[0])
		if err != nil {
			return err
		}
		printArchive(args[0], res)
		if restoreInspect {
			return nil
		}

		a, err := newApp(ctx, appNeeds{})
		if err != nil {
			return err
		}
		defer a.close(ctx)

		report, err := a.op.Restore(ctx, res)
		if err != nil {
			return err
		}
		fmt.Fprintln(os.Stderr, successStyle.Render("==> restore completed"))
		printField("schemas dropped", len(report.Schemas))
		printField("types dropped", report.Types)
		return nil
	},
}

func printArchive(path string, res *archive.Result) {
	fmt.Fprintln(os.Stderr, titleStyle.Render("==> "+path))

	rows := [][]string{}
	if m := res.Metadata; m != nil {
		rows = append(rows,
			[]string{"file", m.FileName},
			[]string{"schema version", m.SchemaVersion},
			[]string{"sha256", m.SHA256},
			[]string{"compressed", fmt.Sprint(m.Compressed)},
			[]string{"state items", fmt.Sprint(len(m.LocalStorageItems))},
		)
	}
	rows = append(rows, []string{"dump bytes", fmt.Sprint(len(res.Dump))})
	if len(res.UnknownFields) > 0 {
		rows = append(rows, []string{"unknown fields", strings.Join(res.UnknownFields, ", ")})
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("240"))).
		StyleFunc(func(row, col int) lipgloss.Style {
			if col == 0 {
				return labelStyle
			}
			return lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
		}).
		Rows(rows...)
	fmt.Fprintln(os.Stderr, t)

	for _, issue := range res.Issues {
		fmt.Fprintln(os.Stderr, warnStyle.Render("  ! "+issue.Error()))
	}
	if errors.Is(res.Err(), archive.ErrMissingMetadata) {
		fmt.Fprintln(os.Stderr, warnStyle.Render("  ! archive cannot be restored without its metadata"))
	}
}

func init() {
	restoreCmd.Flags().
		BoolVar(&restoreInspect, "inspect", false, "print the archive contents and exit")
}
