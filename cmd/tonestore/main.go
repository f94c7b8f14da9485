// tonestore manages feature stores for note-transcription training data.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/xtxerr/tonestore/internal/logging"
	"github.com/xtxerr/tonestore/internal/peaks"
	"github.com/xtxerr/tonestore/internal/storage"
	"github.com/xtxerr/tonestore/internal/storage/config"
)

// Version is set at build time via ldflags
var Version = "dev"

var (
	// configFile is set by the --config flag.
	configFile string

	// storePath overrides the configured store path.
	storePath string

	logLevel string
	logJSON  bool

	// cfg is loaded in PersistentPreRunE.
	cfg *config.Config
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "tonestore",
	Short: "Chunked columnar store for note-transcription features",
	Long: `tonestore keeps the events, labels and features used to train note
transcription models in a single append-only file, one column per field.
Stores can be exported to Parquet, queried with SQL and summarized.`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "tonestore.yaml", "config file (defaults are used if it does not exist)")
	rootCmd.PersistentFlags().StringVarP(&storePath, "path", "p", "", "store file (overrides config)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false, "log as JSON")

	rootCmd.AddCommand(
		versionCmd,
		initCmd,
		infoCmd,
		readCmd,
		exportCmd,
		importCmd,
		queryCmd,
		summaryCmd,
		peaksCmd,
		shellCmd,
	)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "tonestore %s\n", Version)
	},
}

// setup initializes logging and loads the configuration.
func setup(cmd *cobra.Command, args []string) error {
	level, err := logging.ParseLevel(logLevel)
	if err != nil {
		return err
	}
	logging.Init(level, logJSON, os.Stderr)

	loaded, err := config.Load(configFile)
	switch {
	case err == nil:
		cfg = loaded
	case errors.Is(err, fs.ErrNotExist) && !cmd.Flags().Changed("config"):
		cfg = config.DefaultConfig()
	default:
		return err
	}

	if storePath != "" {
		cfg.Path = storePath
	}
	return nil
}

// extractor returns the peak extractor for the loaded configuration.
func extractor() peaks.Extractor {
	return peaks.Extractor{
		HeightCutoff:    cfg.Peaks.HeightCutoff,
		MinNoteDistance: cfg.Peaks.MinNoteDistance,
	}
}

// withStore opens the configured store, runs fn and closes the store.
func withStore(readOnly bool, fn func(*storage.Service) error) error {
	open := storage.Open
	if readOnly {
		open = storage.OpenReadOnly
	}

	svc, err := open(cfg)
	if err != nil {
		return err
	}

	if err := fn(svc); err != nil {
		svc.Close()
		return err
	}
	return svc.Close()
}
