package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/spf13/cobra"

	httpapi "github.com/i474232898/teleconnection-forecast/internal/api/http"
	"github.com/i474232898/teleconnection-forecast/internal/config"
	"github.com/i474232898/teleconnection-forecast/internal/scheduler"
	"github.com/i474232898/teleconnection-forecast/internal/teleconnection"
)

var servePort string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&servePort, "port", "", "port to listen on (default $PORT or 8080)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	p, err := buildPipeline(cfg)
	if err != nil {
		return fmt.Errorf("building pipeline: %w", err)
	}

	// Scheduler that prunes and warms the series cache.
	var cache teleconnection.Store
	if p.cache != nil {
		cache = p.cache
	}
	sched := scheduler.New(p.service, cache, scheduler.Options{
		PruneInterval: cfg.CachePruneInterval,
		Models:        cfg.WarmModels,
		Indices:       cfg.WarmIndices,
		WarmInterval:  cfg.WarmInterval,
		RunLag:        cfg.WarmRunLag,
	})
	if err := sched.Start(); err != nil {
		return fmt.Errorf("starting scheduler: %w", err)
	}
	defer sched.Stop()

	// Basic app configuration
	app := fiber.New(fiber.Config{
		AppName:               "teleconnection-forecast",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          cfg.Provider.HTTPTimeout*time.Duration(cfg.Provider.MaxRetries+1) + 10*time.Second,
		ErrorHandler:          httpapi.ErrorHandler,
	})

	// Global middleware
	app.Use(logger.New())
	app.Use(recover.New())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"service": "teleconnection-forecast",
		})
	})

	httpapi.RegisterRoutes(app, p.service)

	port := servePort
	if port == "" {
		port = cfg.Port
	}

	go func() {
		log.Printf("INFO: listening on :%s", port)
		if err := app.Listen(":" + port); err != nil {
			log.Printf("fiber server stopped: %v", err)
		}
	}()

	// Wait for termination signal
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Printf("error during shutdown: %v", err)
	}
	return nil
}
