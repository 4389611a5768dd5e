package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/cuemby/dockschedule/pkg/controlapi"
	"github.com/cuemby/dockschedule/pkg/log"
	"github.com/cuemby/dockschedule/pkg/scheduler"
	"github.com/spf13/cobra"
)

var schedulerCmd = &cobra.Command{
	Use:   "scheduler",
	Short: "Scheduler service operations",
}

var schedulerStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the scheduler service",
	Long: `Start the authoritative scheduler: evaluates cron schedules, serves
the mutual-TLS control API, and publishes due jobs onto the broker.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := cmd.Flags().GetString("config")

		cfg, err := loadConfig(configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %v", err)
		}

		w, err := newWiring(cfg)
		if err != nil {
			return fmt.Errorf("failed to load TLS/credentials material: %v", err)
		}

		fmt.Println("Starting dockschedule scheduler...")
		fmt.Printf("  Control API: %s\n", cfg.ControlAPI.Addr)
		fmt.Printf("  Publisher pool size: %d\n", cfg.Scheduler.PublisherPoolSize)
		fmt.Printf("  Tick interval: %s\n", cfg.Scheduler.TickInterval)
		fmt.Println()

		store := w.newStore("scheduler")

		api := controlapi.New(cfg.ControlAPI.Addr, w.material.ServerTLSConfig(), store, log.WithComponent("controlapi"))

		s := scheduler.New(scheduler.Config{
			PublisherPoolSize:   cfg.Scheduler.PublisherPoolSize,
			TickInterval:        cfg.Scheduler.TickInterval,
			RedeliveryScanEvery: cfg.Scheduler.RedeliveryScanEvery,
		}, store, api, w.newStore, w.newBrokerClient)

		ctx := context.Background()
		if err := s.Start(ctx); err != nil {
			return fmt.Errorf("failed to start scheduler: %v", err)
		}

		fmt.Printf("✓ Scheduler running, control API listening on %s\n", cfg.ControlAPI.Addr)
		fmt.Println("Press Ctrl+C to stop.")

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		<-sigCh

		fmt.Println("\nShutting down...")
		s.Stop(ctx)
		fmt.Println("✓ Shutdown complete")
		return nil
	},
}

func init() {
	schedulerCmd.AddCommand(schedulerStartCmd)
}
