package main

import (
	"log"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/i474232898/teleconnection-forecast/internal/config"
	"github.com/i474232898/teleconnection-forecast/internal/render"
	"github.com/i474232898/teleconnection-forecast/internal/store"
	"github.com/i474232898/teleconnection-forecast/internal/teleconnection"
	"github.com/i474232898/teleconnection-forecast/internal/teleconnection/providers"
)

var rootCmd = &cobra.Command{
	Use:   "teleconnection-forecast",
	Short: "Plot teleconnection index forecasts from numerical weather models",
	Long: `teleconnection-forecast fetches daily teleconnection index forecasts (AO, NAO, PNA, EPO, WPO)
for one or more models from the model-data API, averages ensemble members, and renders
a comparative line chart. Run it as an HTTP service or as a one-shot plotting command.`,
	SilenceUsage: true,
}

// pipeline bundles the service with the optional cache it was built on.
type pipeline struct {
	service *teleconnection.Service
	cache   *store.MemoryStore
}

// buildPipeline wires the provider client, decorators, cache and renderer from cfg.
func buildPipeline(cfg *config.AppConfig) (*pipeline, error) {
	// Shared HTTP client for outbound provider calls.
	httpClient := &http.Client{
		Timeout: cfg.Provider.HTTPTimeout,
	}

	client, err := providers.NewClient(httpClient, providers.Config{
		BaseURL:    cfg.Provider.BaseURL(),
		APIVersion: cfg.Provider.APIVersion,
		APIKey:     cfg.Provider.APIKey,
		Backoff: providers.BackoffConfig{
			MaxRetries:      cfg.Provider.MaxRetries,
			InitialInterval: cfg.Provider.RetryInitialInterval,
			MaxInterval:     cfg.Provider.RetryMaxInterval,
		},
	})
	if err != nil {
		return nil, err
	}

	var fetcher teleconnection.Fetcher = client
	if cfg.Provider.RateLimit > 0 {
		fetcher = providers.NewRateLimitedFetcher(client, cfg.Provider.RateLimit, cfg.Provider.RateBurst)
		log.Printf("INFO: provider requests limited to %.2f/s (burst %d)", cfg.Provider.RateLimit, cfg.Provider.RateBurst)
	}

	p := &pipeline{}
	var cache teleconnection.Store
	if cfg.CacheEnabled() {
		p.cache = store.NewMemoryStore(cfg.CacheMaxEntries, cfg.CacheTTL)
		cache = p.cache
		log.Printf("INFO: series cache enabled (ttl %s, max %d entries)", cfg.CacheTTL, cfg.CacheMaxEntries)
	}

	renderer := render.NewChartRenderer(cfg.ChartWidth, cfg.ChartHeight)
	p.service = teleconnection.NewService(fetcher, renderer, cache, cfg.FetchConcurrency)
	return p, nil
}
