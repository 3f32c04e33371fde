package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/koba/db-sync/internal/config"
	"github.com/koba/db-sync/internal/database"
	"github.com/koba/db-sync/internal/diff"
	"github.com/koba/db-sync/internal/logging"
	"github.com/koba/db-sync/internal/snapshot"
)

var (
	configFile string
	logLevel   string
	logFormat  string
	tables     []string
	outputDir  string

	appFs  = afero.NewOsFs()
	cfg    *config.Config
	logger *slog.Logger
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "dbsync",
	Short: "Declarative database schema sync tool",
	Long: `A tool to synchronize database schemas with YAML table declarations,
create schema snapshots and compare differences between snapshots.`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

var snapshotCmd = &cobra.Command{
	Use:   "snapshot [name]",
	Short: "Create a schema snapshot",
	Long:  `Create a snapshot of the current database schema.`,
	Args:  cobra.MaximumNArgs(1),
	RunE:  runSnapshot,
}

var diffCmd = &cobra.Command{
	Use:   "diff <snapshot1> <snapshot2>",
	Short: "Compare two snapshots",
	Long:  `Compare two schema snapshots and display the differences.`,
	Args:  cobra.ExactArgs(2),
	RunE:  runDiff,
}

var planCmd = &cobra.Command{
	Use:   "plan [declarations]",
	Short: "Show the statements a sync would run",
	Long:  `Compare the declarations with the database and print the DDL without running it.`,
	Args:  cobra.MaximumNArgs(1),
	RunE:  runPlan,
}

var syncCmd = &cobra.Command{
	Use:   "sync [declarations]",
	Short: "Synchronize the database with the declarations",
	Long:  `Apply the declared tables to the database in dependency order, inside a transaction.`,
	Args:  cobra.MaximumNArgs(1),
	RunE:  runSync,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Config file (default: .dbsync.yaml in the working or home directory)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn or error")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "Log format: text or json")

	// Snapshot command flags
	snapshotCmd.Flags().StringSliceVar(&tables, "tables", nil, "Comma-separated list of tables to snapshot (default: all tables)")
	snapshotCmd.Flags().StringVar(&outputDir, "output-dir", "", "Output directory for snapshots (default: snapshots setting)")

	syncCmd.Flags().BoolVarP(&assumeYes, "yes", "y", false, "Apply without asking for confirmation")

	rootCmd.AddCommand(snapshotCmd)
	rootCmd.AddCommand(diffCmd)
	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(syncCmd)
}

func setup(cmd *cobra.Command, args []string) error {
	var err error
	cfg, err = config.Load(appFs, configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if logFormat != "" {
		cfg.Log.Format = logFormat
	}
	logger, err = logging.New(os.Stderr, cfg.Log.Level, logging.Format(cfg.Log.Format))
	if err != nil {
		return err
	}
	slog.SetDefault(logger)
	return nil
}

func connect(ctx context.Context) (*database.Driver, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return database.Open(ctx, cfg.Database, logger)
}

func runSnapshot(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	db, err := connect(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	// Generate snapshot filename
	var filename string
	if len(args) > 0 {
		filename = args[0]
		if !strings.HasSuffix(filename, ".db") {
			filename += ".db"
		}
	} else {
		timestamp := time.Now().Format("2006-01-02-15-04-05")
		filename = fmt.Sprintf("%s-%s.db", filepath.Base(cfg.Database.Database), timestamp)
	}

	dir := outputDir
	if dir == "" {
		dir = cfg.Snapshots
	}
	outputPath := filepath.Join(dir, filename)

	fmt.Printf("Creating snapshot: %s\n", outputPath)
	snap, err := snapshot.Create(ctx, db, tables, outputPath)
	if err != nil {
		return fmt.Errorf("failed to create snapshot: %w", err)
	}

	fmt.Printf("Snapshot created successfully: %s (%d tables)\n", outputPath, len(snap.Names))
	return nil
}

func runDiff(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	fmt.Printf("Loading snapshot: %s\n", args[0])
	snap1, err := snapshot.Load(ctx, args[0])
	if err != nil {
		return fmt.Errorf("failed to load snapshot1: %w", err)
	}

	fmt.Printf("Loading snapshot: %s\n", args[1])
	snap2, err := snapshot.Load(ctx, args[1])
	if err != nil {
		return fmt.Errorf("failed to load snapshot2: %w", err)
	}

	if snap1.Metadata["dialect"] != snap2.Metadata["dialect"] {
		logger.Warn("snapshots come from different dialects, native types will differ",
			"from", snap1.Metadata["dialect"], "to", snap2.Metadata["dialect"])
	}

	fmt.Printf("\n=== Comparing snapshots ===\n\n")
	diff.Display(os.Stdout, diff.CompareSnapshots(snap1, snap2))
	return nil
}
