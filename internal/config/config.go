package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/krushirakshak/crop-advisory/internal/weather"
)

// AppConfig holds all service settings, populated from environment variables
// with sensible defaults.
type AppConfig struct {
	Port string

	// Upstream credentials and endpoints.
	OpenWeatherAPIKey string
	SentinelBaseURL   string
	SentinelToken     string
	MarketBaseURL     string
	AlertsBaseURL     string
	GeocoderAPIKey    string

	// HTTPTimeout bounds each outbound provider call.
	HTTPTimeout time.Duration

	// FetchInterval controls how often the scheduler refreshes weather.
	FetchInterval time.Duration

	// Locations to keep warm.
	Locations []weather.Location

	// In-memory store retention.
	StoreMaxHistory int
	StoreMaxAge     time.Duration

	// Fusion engine.
	RulesDir string
	Crops    []string

	// Vegetation-index pipeline.
	NdviWindowDays      int
	NdviPollDelay       time.Duration
	NdviPollMaxAttempts int
}

// Load reads configuration from environment with sensible defaults.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		log.Printf("INFO: No .env file found or error loading it: %v", err)
	}
	cfg := &AppConfig{}

	cfg.Port = getenvDefault("PORT", "8080")
	cfg.OpenWeatherAPIKey = os.Getenv("OPENWEATHER_API_KEY")
	cfg.SentinelBaseURL = getenvDefault("SENTINEL_BASE_URL", "https://services.sentinel-hub.com/api/v1")
	cfg.SentinelToken = os.Getenv("SENTINEL_TOKEN")
	cfg.MarketBaseURL = getenvDefault("MARKET_BASE_URL", "https://agmarknet.gov.in/api")
	cfg.AlertsBaseURL = getenvDefault("ALERTS_BASE_URL", "https://farmer.gov.in/FarmerHome")
	cfg.GeocoderAPIKey = os.Getenv("GEOCODER_API_KEY")

	timeoutStr := getenvDefault("HTTP_TIMEOUT", "10s")
	timeout, err := time.ParseDuration(timeoutStr)
	if err != nil {
		return nil, fmt.Errorf("invalid HTTP_TIMEOUT: %w", err)
	}
	cfg.HTTPTimeout = timeout

	// Scheduler interval: default 15 minutes.
	intervalStr := getenvDefault("FETCH_INTERVAL", "15m")
	interval, err := time.ParseDuration(intervalStr)
	if err != nil {
		return nil, fmt.Errorf("invalid FETCH_INTERVAL: %w", err)
	}
	cfg.FetchInterval = interval

	// Store retention.
	cfg.StoreMaxHistory = getenvInt("STORE_MAX_HISTORY", 96) // roughly 24h at 15-minute intervals

	maxAgeStr := getenvDefault("STORE_MAX_AGE", "24h")
	maxAge, err := time.ParseDuration(maxAgeStr)
	if err != nil {
		return nil, fmt.Errorf("invalid STORE_MAX_AGE: %w", err)
	}
	cfg.StoreMaxAge = maxAge

	cfg.RulesDir = getenvDefault("RULES_DIR", "rules")
	cfg.Crops = splitList(getenvDefault("CROPS", "wheat,rice,cotton,soybean,sugarcane"))

	cfg.NdviWindowDays = getenvInt("NDVI_WINDOW_DAYS", 7)

	pollDelayStr := getenvDefault("NDVI_POLL_DELAY", "2s")
	pollDelay, err := time.ParseDuration(pollDelayStr)
	if err != nil {
		return nil, fmt.Errorf("invalid NDVI_POLL_DELAY: %w", err)
	}
	cfg.NdviPollDelay = pollDelay
	cfg.NdviPollMaxAttempts = getenvInt("NDVI_POLL_MAX_ATTEMPTS", 5)

	locs, err := loadLocations()
	if err != nil {
		return nil, err
	}
	cfg.Locations = locs

	return cfg, nil
}

// loadLocations parses WARM_LOCATIONS, a comma-separated list of
// "lat;lon" pairs kept warm by the scheduler.
func loadLocations() ([]weather.Location, error) {
	raw := os.Getenv("WARM_LOCATIONS")
	if raw == "" {
		return nil, nil
	}

	var locs []weather.Location
	for _, pair := range strings.Split(raw, ",") {
		parts := strings.Split(strings.TrimSpace(pair), ";")
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid WARM_LOCATIONS entry %q, want lat;lon", pair)
		}
		lat, err := strconv.ParseFloat(parts[0], 64)
		if err != nil {
			return nil, fmt.Errorf("invalid latitude in WARM_LOCATIONS entry %q", pair)
		}
		lon, err := strconv.ParseFloat(parts[1], 64)
		if err != nil {
			return nil, fmt.Errorf("invalid longitude in WARM_LOCATIONS entry %q", pair)
		}
		locs = append(locs, weather.Location{Lat: lat, Lon: lon})
	}
	return locs, nil
}

func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
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
