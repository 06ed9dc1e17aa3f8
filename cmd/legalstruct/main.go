// Command legalstruct structures OCR'd legal documents from the command line
// or submits them to the worker queue.
package main

import (
	"context"
	"errors"
	"io/fs"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/adverant/nexus/legalstruct-worker/internal/logging"
)

var (
	envFile     string
	profilePath string
	logLevel    string

	rootCmd = &cobra.Command{
		Use:   "legalstruct",
		Short: "Structure OCR'd legal documents into article trees",
		Long: `legalstruct sends legal text through the model escalation engine and
prints the validated article tree, or queues documents for the worker.`,
		SilenceUsage:      true,
		PersistentPreRunE: loadEnvironment,
	}
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		logging.Sync()
		os.Exit(1)
	}
	logging.Sync()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env.legalstruct", "environment file to load")
	rootCmd.PersistentFlags().StringVar(&profilePath, "profile", "", "YAML engine profile (overrides ENGINE_PROFILE)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level (debug, info, warn, error)")

	rootCmd.AddCommand(processCmd, batchCmd, enqueueCmd)
}

// loadEnvironment loads the env file and configures logging before any command runs
func loadEnvironment(cmd *cobra.Command, args []string) error {
	if err := godotenv.Load(envFile); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return err
		}
		if cmd.Flags().Changed("env-file") {
			log.Printf("Warning: %s not found, using system environment variables", envFile)
		}
	}

	if profilePath != "" {
		if err := os.Setenv("ENGINE_PROFILE", profilePath); err != nil {
			return err
		}
	}

	return logging.Init(logLevel, "development")
}
