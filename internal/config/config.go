package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	"github.com/i474232898/teleconnection-forecast/internal/common"
	"github.com/i474232898/teleconnection-forecast/internal/teleconnection"
)

var validate = validator.New()

// ProviderConfig holds the model-data API endpoint and credentials.
type ProviderConfig struct {
	APIKey     string `validate:"required"`
	Host       string `validate:"required"`
	APIVersion string `validate:"required"`

	HTTPTimeout time.Duration `validate:"gt=0"`

	// Bounded retry with exponential backoff; 0 retries = single attempt.
	MaxRetries           int `validate:"gte=0,lte=10"`
	RetryInitialInterval time.Duration
	RetryMaxInterval     time.Duration

	// Outbound rate limit in requests per second; 0 disables limiting.
	RateLimit float64 `validate:"gte=0"`
	RateBurst int     `validate:"gte=1"`
}

// BaseURL returns the provider base URL, defaulting to https when the host
// carries no scheme.
func (p ProviderConfig) BaseURL() string {
	if strings.Contains(p.Host, "://") {
		return strings.TrimRight(p.Host, "/")
	}
	return "https://" + p.Host
}

type AppConfig struct {
	Provider ProviderConfig

	// FetchConcurrency bounds parallel model fetches per request.
	FetchConcurrency int `validate:"gte=1"`

	// Series cache; CacheTTL of 0 disables caching entirely.
	CacheTTL           time.Duration `validate:"gte=0"`
	CacheMaxEntries    int           // 0 = unlimited
	CachePruneInterval time.Duration

	// Scheduled warm-up of the latest run.
	WarmModels   []string
	WarmIndices  []teleconnection.Index
	WarmInterval time.Duration
	WarmRunLag   time.Duration

	ChartWidth  int `validate:"gte=200"`
	ChartHeight int `validate:"gte=150"`

	Port string
}

// CacheEnabled reports whether parsed series are cached between requests.
func (c *AppConfig) CacheEnabled() bool {
	return c.CacheTTL > 0
}

// Load reads configuration from environment with sensible defaults.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		log.Printf("INFO: No .env file found or error loading it: %v", err)
	}
	cfg := &AppConfig{}

	cfg.Provider.APIKey = os.Getenv("SV_API_KEY")
	cfg.Provider.Host = os.Getenv("SV_URL")
	cfg.Provider.APIVersion = os.Getenv("SV_API_VERSION")

	var err error
	if cfg.Provider.HTTPTimeout, err = getenvDuration("HTTP_TIMEOUT", "15s"); err != nil {
		return nil, err
	}
	cfg.Provider.MaxRetries = getenvInt("PROVIDER_MAX_RETRIES", 0)
	if cfg.Provider.RetryInitialInterval, err = getenvDuration("PROVIDER_RETRY_INITIAL", "500ms"); err != nil {
		return nil, err
	}
	if cfg.Provider.RetryMaxInterval, err = getenvDuration("PROVIDER_RETRY_MAX", "5s"); err != nil {
		return nil, err
	}
	if cfg.Provider.RateLimit, err = getenvFloat("PROVIDER_RATE_LIMIT", 5); err != nil {
		return nil, err
	}
	cfg.Provider.RateBurst = getenvInt("PROVIDER_RATE_BURST", 5)

	cfg.FetchConcurrency = getenvInt("FETCH_CONCURRENCY", teleconnection.DefaultConcurrency)

	if cfg.CacheTTL, err = getenvDuration("CACHE_TTL", "0"); err != nil {
		return nil, err
	}
	cfg.CacheMaxEntries = getenvInt("CACHE_MAX_ENTRIES", 256)
	if cfg.CachePruneInterval, err = getenvDuration("CACHE_PRUNE_INTERVAL", "15m"); err != nil {
		return nil, err
	}

	cfg.WarmModels = common.SplitList(os.Getenv("WARM_MODELS"))
	for _, name := range common.SplitList(getenvDefault("WARM_INDICES", "pna,nao,ao")) {
		idx, err := teleconnection.ParseIndex(name)
		if err != nil {
			return nil, fmt.Errorf("invalid WARM_INDICES: %w", err)
		}
		cfg.WarmIndices = append(cfg.WarmIndices, idx)
	}
	if cfg.WarmInterval, err = getenvDuration("WARM_INTERVAL", "1h"); err != nil {
		return nil, err
	}
	if cfg.WarmRunLag, err = getenvDuration("WARM_RUN_LAG", "6h"); err != nil {
		return nil, err
	}

	cfg.ChartWidth = getenvInt("CHART_WIDTH", 1200)
	cfg.ChartHeight = getenvInt("CHART_HEIGHT", 800)
	cfg.Port = getenvDefault("PORT", "8080")

	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return def
}

func getenvFloat(key string, def float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return f, nil
}

func getenvDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(getenvDefault(key, def))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
