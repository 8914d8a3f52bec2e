package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/autoguardian/autoguardian/internal/adapters/filter"
	"github.com/autoguardian/autoguardian/internal/core"
	"github.com/autoguardian/autoguardian/internal/di"
	"github.com/autoguardian/autoguardian/internal/memory"
	"github.com/autoguardian/autoguardian/internal/scheduler"
)

func main() {
	// Build the dependency injection container
	container, err := di.BuildContainer()
	if err != nil {
		fmt.Printf("Failed to build dependency container: %v\n", err)
		os.Exit(1)
	}

	// Run the application
	if err := container.Invoke(run); err != nil {
		fmt.Printf("Application error: %v\n", err)
		os.Exit(1)
	}
}

// run is the main application function that gets all dependencies injected
func run(
	logger *zap.Logger,
	smtpFilter *filter.SMTPFilter,
	sched *scheduler.Scheduler,
	historyStore core.HistoryStore,
	memoryStore memory.Store,
) error {
	defer logger.Sync()

	// Start the SMTP filter and the background loops
	if err := smtpFilter.Start(); err != nil {
		logger.Fatal("Failed to start SMTP filter", zap.Error(err))
		return err
	}
	sched.Start()

	// Handle graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	<-sigCh
	logger.Info("Shutting down...")

	if err := smtpFilter.Stop(); err != nil {
		logger.Error("Failed to stop SMTP filter", zap.Error(err))
	}
	sched.Stop()

	if err := historyStore.Close(); err != nil {
		logger.Error("Failed to close history store", zap.Error(err))
	}
	if err := memoryStore.Close(); err != nil {
		logger.Error("Failed to close memory store", zap.Error(err))
	}

	logger.Info("Shutdown complete")
	return nil
}
