package main

import (
	"fmt"
	"os"

	"github.com/cuemby/dockschedule/pkg/log"
	"github.com/spf13/cobra"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "dockschedule",
	Short: "dockschedule - distributed cron-style job execution platform",
	Long: `dockschedule evaluates cron schedules, queues job runs over an AMQP
broker, and executes them against a pool of workers.

Run "dockschedule scheduler start" on the authoritative scheduler node
and "dockschedule worker start" on each worker node.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"dockschedule version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")
	rootCmd.PersistentFlags().String("config", "", "Path to YAML config file (defaults to built-in defaults)")

	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(schedulerCmd)
	rootCmd.AddCommand(workerCmd)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")

	log.Init(log.Config{
		Level:      log.Level(logLevel),
		JSONOutput: logJSON,
	})
}
