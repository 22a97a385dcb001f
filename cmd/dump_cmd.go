package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kebairia/snapdump/internal/database"
)

var (
	dumpCompress bool
	dumpExport   bool
	dumpOut      string
)

var dumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Dump the live database to SQL",
	Long: `dump snapshots the live database, boots the snapshot in a throwaway
container and dumps it with pg_dump. With --export the dump is bundled with its
metadata into <name>.zip in the configured export store.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if !cmd.Flags().Changed("compress") {
			dumpCompress = cfg.Backup.Compress
		}

		a, err := newApp(ctx, appNeeds{launcher: true, exports: dumpExport})
		if err != nil {
			return err
		}
		defer a.close(ctx)

		if cfg.Backup.Timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeoutCause(ctx, cfg.Backup.Timeout, database.ErrTimeout)
			defer cancel()
		}

		res, err := a.op.CreateDump(ctx, dumpCompress)
		if err != nil {
			return err
		}

		fmt.Fprintln(os.Stderr, successStyle.Render("==> dump created"))
		printField("name", res.BaseFileName)
		printField("size", res.Size)
		printField("sha256", res.SHA256)
		printField("compressed", res.Compressed)

		if dumpOut != "" {
			if err := writeOutput(dumpOut, res.Dump); err != nil {
				return err
			}
		}

		if !dumpExport {
			return nil
		}
		meta, err := a.op.NewMetadata(ctx, res, cfg.Backup.SchemaVersion)
		if err != nil {
			return err
		}
		exp, err := a.op.ExportToZip(ctx, res.Dump, meta, res.BaseFileName)
		if err != nil {
			return err
		}
		fmt.Fprintln(os.Stderr, successStyle.Render("==> archive exported"))
		printField("file", exp.FileName)
		printField("url", exp.URL)
		return nil
	},
}

func writeOutput(path, text string) error {
	if path == "-" {
		_, err := fmt.Fprint(os.Stdout, text)
		return err
	}
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

func init() {
	dumpCmd.Flags().
		BoolVar(&dumpCompress, "compress", false, "gzip and base64 the dump (default from backup.compress)")
	dumpCmd.Flags().
		BoolVar(&dumpExport, "export", false, "bundle the dump into a zip archive in the export store")
	dumpCmd.Flags().
		StringVarP(&dumpOut, "out", "o", "", "also write the dump text to this file (- for stdout)")
}
