package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/schaermu/forkpatch/internal/config"
	"github.com/schaermu/forkpatch/internal/git"
	"github.com/schaermu/forkpatch/internal/sync"
	"github.com/schaermu/forkpatch/internal/syncerr"
)

var (
	// Set by goreleaser
	version = "dev"
	commit  = "none"
	date    = "unknown"

	// Global flags
	cfgFile   string
	repoDir   string
	logLevel  string
	logFormat string
	dryRun    bool
)

func main() {
	os.Exit(execute(os.Args[1:], os.Stderr))
}

// reportedError marks an error whose diagnostic has already been written
type reportedError struct {
	err error
}

func (e *reportedError) Error() string { return e.err.Error() }
func (e *reportedError) Unwrap() error { return e.err }

// execute runs the root command with args and returns the process exit code.
// Errors raised by cobra itself (unknown flags or arguments) are written to
// stderr here.
func execute(args []string, stderr io.Writer) int {
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	if err == nil {
		return 0
	}

	var reported *reportedError
	if !errors.As(err, &reported) {
		printDiagnostic(stderr, err)
	}
	return 1
}

var rootCmd = &cobra.Command{
	Use:   "forkpatch",
	Short: "Sync a fork with upstream and reapply its export patches",
	Long: `forkpatch keeps a downstream fork current with its upstream repository.

It reads the project version from package.json, switches to (or creates) the
branch p<version> from upstream/main, merges upstream into it and reapplies
the fork's source patches, committing them as "export on latest". Local
uncommitted changes are stashed for the duration of the run and restored
afterwards.

Run it without arguments from the root of the fork.`,
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runSync,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("forkpatch %s\n", version)
		fmt.Printf("  commit: %s\n", commit)
		fmt.Printf("  built:  %s\n", date)
	},
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is "+config.DefaultFileName+" in the repository, built-in patch set if absent)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format (text, json)")

	rootCmd.Flags().StringVar(&repoDir, "dir", ".", "repository to operate on")
	rootCmd.Flags().BoolVar(&dryRun, "dry-run", false, "show what would be done without making changes")

	// Add commands
	rootCmd.AddCommand(versionCmd)
}

func runSync(cmd *cobra.Command, args []string) error {
	ctx, cancel := setupSignalHandler()
	defer cancel()

	// Setup logger
	logger := setupLogger(os.Stderr)

	dir, err := filepath.Abs(repoDir)
	if err != nil {
		err = fmt.Errorf("failed to resolve repository directory: %w", err)
		printDiagnostic(os.Stderr, err)
		return &reportedError{err}
	}

	// Load configuration
	cfg, err := loadConfig(logger, dir)
	if err != nil {
		err = syncerr.Config("load configuration", "fix or remove the configuration file", err)
		printDiagnostic(os.Stderr, err)
		return &reportedError{err}
	}

	// Create dependencies
	gitClient := git.NewShellClient(dir)

	// Create sync engine
	engine := sync.NewEngine(cfg, gitClient, dir, logger, dryRun)

	// Run sync
	report, err := engine.Run(ctx)
	if err != nil {
		logger.Debug("sync stopped", "step", report.Step, "outcome", report.Outcome)
		printDiagnostic(os.Stderr, err)
		printStashNotice(os.Stderr, report)
		return &reportedError{err}
	}

	printSummary(os.Stdout, report)
	return nil
}

func setupLogger(w io.Writer) *slog.Logger {
	// Parse log level
	var level slog.Level
	switch logLevel {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	// Create handler based on format
	var handler slog.Handler
	if logFormat == "json" {
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	} else {
		handler = tint.NewHandler(w, &tint.Options{
			Level:      level,
			TimeFormat: "15:04:05",
			NoColor:    !isTerminal(w),
		})
	}

	return slog.New(handler)
}

// isTerminal reports whether w is a terminal
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func loadConfig(logger *slog.Logger, dir string) (*config.Config, error) {
	// An explicit path must exist
	if cfgFile != "" {
		logger.Info("loading configuration", "path", cfgFile)
		return config.Load(cfgFile)
	}

	configPath := filepath.Join(dir, config.DefaultFileName)
	cfg, found, err := config.LoadOrDefault(configPath)
	if err != nil {
		return nil, err
	}
	if found {
		logger.Info("loading configuration", "path", configPath)
	} else {
		logger.Debug("no configuration file, using built-in defaults", "path", configPath)
	}

	logger.Debug("configuration loaded",
		"metadata", cfg.Metadata.Path,
		"upstream", cfg.UpstreamRef(),
		"prefix", cfg.Branch.Prefix,
		"patches", len(cfg.Patches),
		"targets", cfg.PatchTargets())

	return cfg, nil
}

func setupSignalHandler() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigCh
		cancel()
	}()

	return ctx, cancel
}
