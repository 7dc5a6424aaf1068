package config

import (
	"io"
	"log"
	"os"
	"strconv"
	"time"

	"address-distance/internal/calculator"
	"address-distance/internal/geocode"
	"address-distance/internal/httpclient"
	"address-distance/internal/routing"

	"github.com/joho/godotenv"
)

type Config struct {
	NominatimURL    string
	OSRMURL         string
	UserAgent       string
	HTTPTimeout     time.Duration
	RequestInterval time.Duration
	HTTPTrace       bool

	Port          string
	SessionSecret string
	DatabaseURL   string
	OutputDir     string
}

// Load reads .env when present, then the environment. Unset values fall back to defaults.
func Load(version string) Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("Ignoring .env: %v", err)
	}

	return Config{
		NominatimURL:    getEnv("NOMINATIM_URL", geocode.DefaultNominatimURL),
		OSRMURL:         getEnv("OSRM_URL", routing.DefaultOSRMURL),
		UserAgent:       getEnv("USER_AGENT", "AddressDistanceCalculator/"+version),
		HTTPTimeout:     getEnvDuration("HTTP_TIMEOUT", httpclient.DefaultTimeout),
		RequestInterval: getEnvDuration("REQUEST_INTERVAL", calculator.DefaultInterval),
		HTTPTrace:       getEnvBool("HTTP_TRACE", false),
		Port:            getEnv("PORT", "9595"),
		SessionSecret:   getEnv("SESSION_SECRET", "address-distance-dev-secret"),
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		OutputDir:       getEnv("OUTPUT_DIR", "output"),
	}
}

// Pipeline wires the providers described by the configuration. Both providers share one
// HTTP client.
func (c Config) Pipeline() *calculator.Pipeline {
	var trace io.Writer
	if c.HTTPTrace {
		trace = os.Stderr
	}

	client := httpclient.New(httpclient.Options{
		UserAgent: c.UserAgent,
		Timeout:   c.HTTPTimeout,
		Trace:     trace,
	})

	return calculator.NewPipeline(
		geocode.NewNominatim(c.NominatimURL, client),
		routing.NewOSRM(c.OSRMURL, client),
		c.RequestInterval,
	)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Printf("Invalid %s=%q, using %s", key, v, fallback)
		return fallback
	}
	return d
}

func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		log.Printf("Invalid %s=%q, using %t", key, v, fallback)
		return fallback
	}
	return b
}
