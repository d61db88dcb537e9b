package config

import (
	_ "embed"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/ksolden/weather-market-gateway/internal/bundle"
)

//go:embed cities.yaml
var defaultCitiesYAML []byte

type AppConfig struct {
	// Exchange credentials. The private key is PEM-encoded PKCS#8.
	KalshiAPIKeyID      string
	KalshiPrivateKeyPEM string
	KalshiBaseURL       string

	// HTTPTimeout applies to every outbound upstream call.
	HTTPTimeout time.Duration

	// Gridpoint cache behaviour.
	GridpointRefresh time.Duration
	GridpointMaxAge  time.Duration

	// Cities to serve, in configured order.
	Cities []bundle.City

	Port string
}

// Load reads configuration from environment with sensible defaults.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		log.Printf("INFO: No .env file found or error loading it: %v", err)
	}
	cfg := &AppConfig{}

	cfg.KalshiAPIKeyID = os.Getenv("KALSHI_API_KEY_ID")
	cfg.KalshiBaseURL = os.Getenv("KALSHI_BASE_URL")

	pem, err := loadPrivateKeyPEM()
	if err != nil {
		return nil, err
	}
	cfg.KalshiPrivateKeyPEM = pem

	timeoutStr := getenvDefault("HTTP_TIMEOUT", "30s")
	timeout, err := time.ParseDuration(timeoutStr)
	if err != nil {
		return nil, fmt.Errorf("invalid HTTP_TIMEOUT: %w", err)
	}
	cfg.HTTPTimeout = timeout

	refreshStr := getenvDefault("GRIDPOINT_REFRESH", "6h")
	refresh, err := time.ParseDuration(refreshStr)
	if err != nil {
		return nil, fmt.Errorf("invalid GRIDPOINT_REFRESH: %w", err)
	}
	cfg.GridpointRefresh = refresh

	maxAgeStr := getenvDefault("GRIDPOINT_MAX_AGE", "12h")
	maxAge, err := time.ParseDuration(maxAgeStr)
	if err != nil {
		return nil, fmt.Errorf("invalid GRIDPOINT_MAX_AGE: %w", err)
	}
	cfg.GridpointMaxAge = maxAge
	cfg.Port = getenvDefault("PORT", "8080")

	cities, err := loadCities()
	if err != nil {
		return nil, err
	}
	cfg.Cities = cities

	return cfg, nil
}

// loadPrivateKeyPEM takes the key material from KALSHI_PRIVATE_KEY, or reads
// the file named by KALSHI_PRIVATE_KEY_FILE.
func loadPrivateKeyPEM() (string, error) {
	if pem := os.Getenv("KALSHI_PRIVATE_KEY"); pem != "" {
		return pem, nil
	}
	path := os.Getenv("KALSHI_PRIVATE_KEY_FILE")
	if path == "" {
		return "", nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read KALSHI_PRIVATE_KEY_FILE: %w", err)
	}
	return string(data), nil
}

// loadCities reads the city table from CITIES_FILE when set, otherwise from
// the embedded defaults.
func loadCities() ([]bundle.City, error) {
	data := defaultCitiesYAML
	if path := os.Getenv("CITIES_FILE"); path != "" {
		var err error
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read CITIES_FILE: %w", err)
		}
	}

	var doc struct {
		Cities []bundle.City `yaml:"cities"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse cities config: %w", err)
	}
	if len(doc.Cities) == 0 {
		return nil, fmt.Errorf("cities config is empty")
	}

	seen := make(map[string]bool, len(doc.Cities))
	for i := range doc.Cities {
		doc.Cities[i].Code = strings.ToUpper(strings.TrimSpace(doc.Cities[i].Code))
		code := doc.Cities[i].Code
		if code == "" {
			return nil, fmt.Errorf("city entry %d has no code", i)
		}
		if seen[code] {
			return nil, fmt.Errorf("duplicate city code %q", code)
		}
		seen[code] = true
	}

	return doc.Cities, nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
