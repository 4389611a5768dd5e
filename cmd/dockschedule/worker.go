package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/cuemby/dockschedule/pkg/log"
	"github.com/cuemby/dockschedule/pkg/runner"
	"github.com/cuemby/dockschedule/pkg/worker"
	"github.com/spf13/cobra"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Worker service operations",
}

var workerStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the worker pool",
	Long: `Start the worker pool: W independent threads, each with its own
store connection and broker client, consuming the shared job queue.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := cmd.Flags().GetString("config")
		binary, _ := cmd.Flags().GetString("binary")

		cfg, err := loadConfig(configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %v", err)
		}

		w, err := newWiring(cfg)
		if err != nil {
			return fmt.Errorf("failed to load TLS/credentials material: %v", err)
		}

		fmt.Println("Starting dockschedule worker pool...")
		fmt.Printf("  Pool size: %d\n", cfg.Worker.PoolSize)
		fmt.Printf("  Playbook root: %s\n", cfg.Playbooks.PlaybookRoot)
		fmt.Println()

		r := runner.NewExecRunner(runner.ExecConfig{
			Binary: binary,
			Logger: log.WithComponent("runner"),
		})

		pool := worker.New(worker.Config{PoolSize: cfg.Worker.PoolSize}, w.newStore, w.newBrokerClient, r, cfg.Playbooks)

		ctx := context.Background()
		if err := pool.Start(ctx); err != nil {
			return fmt.Errorf("failed to start worker pool: %v", err)
		}

		fmt.Println("✓ Worker pool running")
		fmt.Println("Press Ctrl+C to stop.")

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		<-sigCh

		fmt.Println("\nShutting down...")
		pool.Stop()
		fmt.Println("✓ Shutdown complete")
		return nil
	},
}

func init() {
	workerCmd.AddCommand(workerStartCmd)
	workerStartCmd.Flags().String("binary", "ansible-playbook", "Orchestration binary to invoke for each job")
}
