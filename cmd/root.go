package cmd

import (
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/kebairia/snapdump/internal/config"
	"github.com/kebairia/snapdump/internal/logger"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("213"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("9")).
			Bold(true)

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("10")).
			Bold(true)

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("11"))

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245"))

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("15")).
			Bold(true)
)

var (
	// ConfigFile is the path to the YAML configuration.
	ConfigFile  string
	logLevel    string
	metricsFile string

	cfg config.Config
	log logger.Logger = logger.NewNop()

	// rootCmd is the base command for snapdump.
	rootCmd = &cobra.Command{
		Use:   "snapdump",
		Short: "Snapshot, dump and restore a PostgreSQL database",
		Long: titleStyle.Render("snapdump") + `

Takes a consistent snapshot of a live database, boots it in a throwaway
engine, dumps it to SQL and bundles the dump with its metadata in a zip
archive. Archives can be restored into the live database.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: setup,
	}
)

func setup(cmd *cobra.Command, _ []string) error {
	if err := cfg.Load(ConfigFile); err != nil {
		return err
	}
	opts := logger.Options{Level: cfg.Log.Level, Development: cfg.Log.Development}
	if logLevel != "" {
		opts.Level = logLevel
	}
	l, err := logger.Init(opts)
	if err != nil {
		return err
	}
	log = l
	return nil
}

// Execute runs the root command.
func Execute() {
	defer logger.Cleanup()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render(fmt.Sprintf("[error] %v", err)))
		logger.Cleanup()
		os.Exit(1)
	}
}

func printField(label string, value any) {
	fmt.Fprintf(os.Stderr, "  %s %s\n", labelStyle.Render(label+":"), valueStyle.Render(fmt.Sprint(value)))
}

func init() {
	rootCmd.PersistentFlags().
		StringVarP(&ConfigFile, "config", "c", "", "path to YAML config file")
	rootCmd.PersistentFlags().
		StringVar(&logLevel, "log-level", "", "override log.level (debug, info, warn, error)")
	rootCmd.PersistentFlags().
		StringVar(&metricsFile, "metrics-file", "", "write Prometheus metrics to this textfile after the command")

	rootCmd.AddCommand(seedCmd)
	rootCmd.AddCommand(dumpCmd)
	rootCmd.AddCommand(restoreCmd)
	rootCmd.AddCommand(resetCmd)
}
