package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/xtxerr/tonestore/internal/peaks"
	"github.com/xtxerr/tonestore/internal/shell"
	"github.com/xtxerr/tonestore/internal/storage"
	"github.com/xtxerr/tonestore/internal/storage/publish"
	"github.com/xtxerr/tonestore/internal/storage/schema"
)

var (
	bandCount   int
	noteCount   int
	writeConfig bool
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a new store",
	Long: `Create a new store file with every table of the events, labels and
features groups. The widths of the 2-D tables are fixed at creation.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Flags().Changed("bands") {
			cfg.Geometry.BandCount = bandCount
		}
		if cmd.Flags().Changed("notes") {
			cfg.Geometry.NoteCount = noteCount
		}

		svc, err := storage.Create(cfg)
		if err != nil {
			return err
		}
		defer svc.Close()

		if writeConfig {
			if err := cfg.Save(configFile); err != nil {
				return err
			}
		}

		info := svc.Info()
		fmt.Fprintf(cmd.OutOrStdout(), "created %s (%s)\n", info.Path, info.ID)
		return nil
	},
}

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show store identity and row counts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(true, func(svc *storage.Service) error {
			shell.PrintInfo(cmd.OutOrStdout(), svc.Info())
			return nil
		})
	},
}

var readCmd = &cobra.Command{
	Use:       "read events|labels|features <index>",
	Short:     "Print one record",
	Args:      cobra.ExactArgs(2),
	ValidArgs: schema.Groups(),
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := strconv.ParseInt(args[1], 10, 64); err != nil {
			return fmt.Errorf("invalid index %q", args[1])
		}
		return withStore(true, func(svc *storage.Service) error {
			sh := shell.New(svc, extractor(), cmd.OutOrStdout())
			return sh.Execute(cmd.Context(), "read "+args[0]+" "+args[1])
		})
	},
}

var (
	exportDir string
	doPublish bool
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export every table to Parquet",
	Long: `Export writes one Parquet file per table below the export directory,
laid out as <group>/<table>.parquet. Tables are exported in parallel.
With --publish the files are then uploaded to the configured object store.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if exportDir != "" {
			cfg.Export.Dir = exportDir
		}

		return withStore(true, func(svc *storage.Service) error {
			ctx := cmd.Context()
			results, err := svc.Export(ctx, cfg.Export.Dir)
			if err != nil {
				return err
			}
			shell.PrintExport(cmd.OutOrStdout(), results)

			if !doPublish {
				return nil
			}
			p, err := publish.New(ctx, cfg.Publish)
			if err != nil {
				return err
			}
			objects, err := svc.Publish(ctx, p, cfg.Export.Dir, results)
			fmt.Fprintf(cmd.OutOrStdout(), "published %d of %d files\n", len(objects), len(results))
			return err
		})
	},
}

var importCmd = &cobra.Command{
	Use:   "import <dir>",
	Short: "Append the rows of a Parquet export to the store",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(false, func(svc *storage.Service) error {
			results, err := svc.Import(cmd.Context(), args[0])
			shell.PrintExport(cmd.OutOrStdout(), results)
			if err != nil {
				return err
			}
			if !svc.Info().Consistent {
				fmt.Fprintln(cmd.ErrOrStderr(), "warning: sibling tables have different row counts")
			}
			return nil
		})
	},
}

var queryDir string

var queryCmd = &cobra.Command{
	Use:   "query <sql>",
	Short: "Run SQL over the store's tables",
	Long: `Query exports the store to a temporary directory, or uses an existing
export given with --dir, and runs the statement with DuckDB. Every table is
a view named after it (eventsStart, spectrum, ...) and every group is a view
joining its tables on idx (events, labels, features).`,
	Example: `  tonestore query "SELECT idx, eventsNote FROM events WHERE eventsVelocity > 0.5"`,
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(true, func(svc *storage.Service) error {
			rows, err := svc.Query(cmd.Context(), queryDir, args[0])
			if err != nil {
				return err
			}
			shell.PrintRows(cmd.OutOrStdout(), rows)
			return nil
		})
	},
}

var summaryCmd = &cobra.Command{
	Use:   "summary [table...]",
	Short: "Summarize table values",
	Long: `Summary prints count, min, max, mean and approximate p50/p90/p99 for
each table. 2-D tables are summarized over every element.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		var tables []schema.Table
		for _, a := range args {
			t, err := schema.Parse(a)
			if err != nil {
				return err
			}
			tables = append(tables, t)
		}

		return withStore(true, func(svc *storage.Service) error {
			results, err := svc.Summarize(cmd.Context(), tables...)
			if err != nil {
				return err
			}
			shell.PrintSummaries(cmd.OutOrStdout(), results)
			return nil
		})
	},
}

var (
	pointsFile string
	denseWidth int
)

var peaksCmd = &cobra.Command{
	Use:   "peaks",
	Short: "Extract peaks from a spectrum",
	Long: `Peaks reads frequency,magnitude lines and prints the local maxima that
survive the height cutoff and the minimum pitch distance.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		in := os.Stdin
		if pointsFile != "" && pointsFile != "-" {
			f, err := os.Open(pointsFile)
			if err != nil {
				return err
			}
			defer f.Close()
			in = f
		}

		points, err := peaks.ReadPoints(in)
		if err != nil {
			return err
		}

		found := extractor().Process(points)
		shell.PrintPeaks(cmd.OutOrStdout(), found)

		if denseWidth > 0 {
			heights, locations := peaks.Dense(found, denseWidth)
			fmt.Fprintf(cmd.OutOrStdout(), "peakHeights:   %v\npeakLocations: %v\n", heights, locations)
		}
		return nil
	},
}

var shellCmd = &cobra.Command{
	Use:   "shell",
	Short: "Inspect the store interactively",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(true, func(svc *storage.Service) error {
			return shell.New(svc, extractor(), cmd.OutOrStdout()).Run(cmd.Context(), os.Stdin)
		})
	},
}

func init() {
	initCmd.Flags().IntVar(&bandCount, "bands", 0, "width of the features tables (overrides config)")
	initCmd.Flags().IntVar(&noteCount, "notes", 0, "width of labels/labelsNotes (overrides config)")
	initCmd.Flags().BoolVar(&writeConfig, "write-config", false, "save the effective configuration to --config")

	exportCmd.Flags().StringVarP(&exportDir, "dir", "d", "", "export directory (overrides config)")
	exportCmd.Flags().BoolVar(&doPublish, "publish", false, "upload the exported files to the configured object store")

	queryCmd.Flags().StringVarP(&queryDir, "dir", "d", "", "existing export to query instead of exporting the store")

	peaksCmd.Flags().StringVarP(&pointsFile, "file", "f", "", "CSV of frequency,magnitude lines (default stdin)")
	peaksCmd.Flags().IntVar(&denseWidth, "dense", 0, "also print the peaks as fixed-width feature channels")
}
