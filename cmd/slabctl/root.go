package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/joshuapare/modelstore/internal/logger"
)

var (
	// Global flags
	verbose   bool
	quiet     bool
	jsonOut   bool
	logLevel  string
	logFormat string
	logDir    string
)

// log is configured by the root command before any subcommand runs.
var (
	log       = logger.Nop()
	logCloser io.Closer
)

// numbers formats counts with thousands separators.
var numbers = message.NewPrinter(language.English)

var rootCmd = &cobra.Command{
	Use:   "slabctl",
	Short: "Exercise and inspect stable-offset record storages",
	Long: `slabctl runs synthetic workloads against the transform and uniforms
storages, streams them through in-process ring buffers and reports allocator,
identity index and upload statistics.`,
	Version:            "0.1.0",
	SilenceUsage:       true,
	PersistentPreRunE:  setupLogging,
	PersistentPostRunE: closeLogging,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output and debug logs")
	rootCmd.PersistentFlags().
		BoolVarP(&quiet, "quiet", "q", false, "Suppress all output except errors")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "Log format: text, json")
	rootCmd.PersistentFlags().StringVar(&logDir, "log-dir", "", "Write logs to a dated file in this directory")
}

func execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func setupLogging(*cobra.Command, []string) error {
	level, err := logger.ParseLevel(logLevel)
	if err != nil {
		return err
	}
	if verbose {
		level = slog.LevelDebug
	}

	l, c, err := logger.New(logger.Options{
		Enabled: !quiet,
		Level:   level,
		Format:  logger.Format(logFormat),
		LogDir:  logDir,
	})
	if err != nil {
		return err
	}
	log, logCloser = l, c
	return nil
}

func closeLogging(*cobra.Command, []string) error {
	if logCloser == nil {
		return nil
	}
	err := logCloser.Close()
	logCloser = nil
	return err
}

// Helper functions for output

// printInfo prints an info message if not in quiet mode
func printInfo(format string, args ...any) {
	if !quiet {
		fmt.Fprint(os.Stdout, numbers.Sprintf(format, args...))
	}
}

// printVerbose prints a verbose message if verbose mode is enabled
func printVerbose(format string, args ...any) {
	if verbose && !quiet {
		fmt.Fprint(os.Stdout, numbers.Sprintf(format, args...))
	}
}

// printJSON outputs data as JSON
func printJSON(v any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
