package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/storyforge/internal/config"
)

var (
	cfgFile string
	envFile string
	jsonOut bool
)

var rootCmd = &cobra.Command{
	Use:   "storyforge",
	Short: "Batch content generation with tournaments, collaboration and resumable jobs",
	Long: `storyforge runs batches of generation jobs against a completion service.

Each job produces a first text by tournament or collaboration, repairs it
against the compliance rules, retakes it against a judge, and checkpoints
after every phase so an interrupted job can be resumed.

Commands:
  run      Run a batch from configuration
  resume   Continue a job from its latest checkpoint
  inspect  Show a job's checkpoints, journal and result
  serve    Serve read-only job status over HTTP`,
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "YAML config file (defaults apply when empty)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before environment overrides")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "print results as JSON")

	rootCmd.AddCommand(runCmd, resumeCmd, inspectCmd, serveCmd)
}

func loadConfig() (config.Config, error) {
	return config.Load(cfgFile, envFile)
}

// signalContext is canceled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
