package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	ledgerPath string
	configFile string
	headless   bool
	startRow   int
	keepOpen   bool
	debugMode  bool
	seedLedger bool
	clearNotes bool
)

var rootCmd = &cobra.Command{
	Use:   "link-harvester [ledger]",
	Short: "Submit every link of a ledger to a web app and save the results",
	Long: `Drives one browser session: registers a disposable account, submits each
link of the ledger, waits for the result page and saves a snapshot of it.
Exhausted accounts are replaced once per link; network failures are noted
in the ledger and skipped.`,
	Args:          cobra.MaximumNArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger, err := newLogger(debugMode)
		if err != nil {
			return err
		}
		defer logger.Sync()

		settings, err := resolveSettings(cmd, args)
		if err != nil {
			return err
		}

		if seedLedger {
			if _, err := os.Stat(settings.Ledger.Path); errors.Is(err, os.ErrNotExist) {
				if err := SeedSampleLedger(settings.Ledger.Path); err != nil {
					return fmt.Errorf("seeding ledger: %w", err)
				}
				logger.Info("Sample ledger created", zap.String("path", settings.Ledger.Path))
			}
		}

		ledger, err := LoadLedger(settings.Ledger.Path, settings.Ledger.Encoding, logger.Named("ledger"))
		if err != nil {
			if errors.Is(err, ErrLedgerNotFound) {
				return fmt.Errorf("%w (use --seed to create a sample)", err)
			}
			return err
		}

		if clearNotes {
			cleared, err := ledger.ClearNotes()
			if err != nil {
				return fmt.Errorf("clearing ledger notes: %w", err)
			}
			logger.Info("Ledger notes cleared", zap.Int("rows", cleared))
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		collaborators, err := DefaultCollaborators(settings, logger)
		if err != nil {
			return err
		}
		harvester := NewHarvester(settings, ledger, collaborators, logger)

		results, err := harvester.Run(ctx)
		if err != nil {
			harvester.Close(context.Background())
			return fmt.Errorf("harvest failed: %w", err)
		}
		printSummary(results)

		if settings.KeepOpen && harvester.Session() != nil {
			logger.Info("Browser left open, press Ctrl+C to exit")
			<-ctx.Done()
		}
		harvester.Close(context.Background())
		return nil
	},
}

// resolveSettings loads the settings file and applies command line overrides
func resolveSettings(cmd *cobra.Command, args []string) (*Settings, error) {
	if err := ensureConfigExists(); err != nil {
		return nil, fmt.Errorf("ensuring config files exist: %w", err)
	}

	var (
		settings *Settings
		err      error
	)
	if configFile != "" {
		settings, err = loadSettingsRequired(configFile)
	} else {
		settings, err = loadSettings(GetConfigPath("settings.yaml"))
	}
	if err != nil {
		return nil, fmt.Errorf("loading settings: %w", err)
	}

	flags := cmd.Flags()
	if len(args) > 0 {
		settings.Ledger.Path = args[0]
	} else if flags.Changed("ledger") {
		settings.Ledger.Path = ledgerPath
	}
	if flags.Changed("headless") {
		settings.Browser.Headless = headless
	}
	if flags.Changed("start-row") {
		settings.Ledger.StartRow = startRow
	}
	if flags.Changed("keep-open") {
		settings.KeepOpen = keepOpen
	}

	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("invalid settings: %w", err)
	}
	return settings, nil
}

func printSummary(results []ItemResult) {
	captured := 0
	for _, r := range results {
		if r.Succeeded() {
			captured++
		}
	}
	fmt.Printf("\nCaptured %d of %d links\n", captured, len(results))
	for _, r := range results {
		if r.Succeeded() {
			fmt.Printf("  ✓ row %d: %s\n", r.Index, r.Outcome.Location)
			continue
		}
		fmt.Printf("  ✗ row %d (%s): %s\n", r.Index, r.Outcome.Kind, r.Outcome.Message)
	}
}

func init() {
	rootCmd.Flags().StringVar(&ledgerPath, "ledger", "", "Path to the ledger CSV (default from settings)")
	rootCmd.Flags().StringVar(&configFile, "config", "", "Path to a settings YAML file")
	rootCmd.Flags().BoolVar(&headless, "headless", false, "Run the browser without a window")
	rootCmd.Flags().IntVar(&startRow, "start-row", 1, "First ledger row to process (row 0 is the header)")
	rootCmd.Flags().BoolVar(&keepOpen, "keep-open", true, "Keep the browser open after a successful run")
	rootCmd.Flags().BoolVar(&debugMode, "debug", false, "Enable debug logging")
	rootCmd.Flags().BoolVar(&seedLedger, "seed", false, "Create a sample ledger if none exists")
	rootCmd.Flags().BoolVar(&clearNotes, "clear-notes", false, "Clear ledger notes before the run so failed rows are retried")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
