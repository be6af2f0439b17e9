// Package config loads the AirTracker runtime configuration.
//
// Configuration is environment-driven. A local .env file, when present,
// is loaded first so container and bare-metal deployments behave the
// same. Validation failures at startup are fatal: a tracker pointed at
// impossible coordinates publishes garbage forever.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Provider identifiers used throughout the pipeline.
const (
	ProviderOpenSky = "opensky"
	ProviderADSBLol = "adsb_lol"
	ProviderFR24    = "fr24"
)

// DefaultMergePriority breaks freshness ties between providers.
var DefaultMergePriority = []string{ProviderADSBLol, ProviderFR24, ProviderOpenSky}

// Config is the complete application configuration.
type Config struct {
	// Latitude/Longitude of the point of interest in decimal degrees.
	Latitude  float64
	Longitude float64

	// RadiusNM is the area-of-interest radius in nautical miles.
	RadiusNM float64

	// FetchIntervalMin/Max bound the randomized cycle interval in seconds.
	FetchIntervalMin int
	FetchIntervalMax int

	// Provider toggles. A skipped provider contributes no observations.
	SkipOpenSky bool
	SkipADSBLol bool
	SkipFR24    bool

	// OpenSky OAuth2 client-credentials. Empty means anonymous access.
	OSKClientID     string
	OSKClientSecret string

	// MergePriority orders providers for freshness tie-breaks.
	MergePriority []string

	// MQTT broker settings.
	MQTTHost   string
	MQTTPort   int
	MQTTUser   string
	MQTTPass   string
	MQTTPrefix string

	// PublishAllPlanes enables the full planes topic.
	PublishAllPlanes bool

	// PublishNearestCommercial enables the nearest_commercial topic.
	PublishNearestCommercial bool

	// PrivateSeats is the seat-count threshold separating Private from
	// Commercial classification.
	PrivateSeats int

	// DatasetsDir holds the JSONL reference catalogs and logo assets.
	DatasetsDir string

	// MilCachePath is the on-disk military cache file.
	MilCachePath string

	// MilTTL is how long a military lookup stays fresh.
	MilTTL time.Duration

	// AirlineLogoBaseURL is the public base URL for airline logo BMPs.
	AirlineLogoBaseURL string

	// CountryFlagBaseURL is the public base URL for country flag PNGs.
	CountryFlagBaseURL string

	// WriteJSONPath, when set, mirrors each snapshot to a local file.
	WriteJSONPath string

	// Zipline object-storage settings for the image processor.
	// An empty token disables image processing.
	ZiplineURL      string
	ZiplineToken    string
	ZiplineFolderID string

	// LogLevel is a logrus level name (debug, info, warn, error).
	LogLevel string
}

// FromEnv builds a Config from the process environment, loading a local
// .env file first when one exists. The returned Config is validated.
func FromEnv() (*Config, error) {
	// Missing .env is the normal case, not an error.
	_ = godotenv.Load()

	cfg := &Config{
		Latitude:                 envFloat("LAT", 46.168689),
		Longitude:                envFloat("LON", -123.020309),
		RadiusNM:                 envFloat("RADIUS_NM", 10),
		FetchIntervalMin:         envInt("FETCH_INTERVAL_MIN_SEC", 80),
		FetchIntervalMax:         envInt("FETCH_INTERVAL_MAX_SEC", 100),
		SkipOpenSky:              envBool("SKIP_OPENSKY"),
		SkipADSBLol:              envBool("SKIP_ADSB"),
		SkipFR24:                 envBool("SKIP_FR24"),
		OSKClientID:              os.Getenv("OSK_CLIENT_ID"),
		OSKClientSecret:          os.Getenv("OSK_CLIENT_SECRET"),
		MergePriority:            envList("MERGE_PRIORITY", DefaultMergePriority),
		MQTTHost:                 envString("MQTT_HOST", "localhost"),
		MQTTPort:                 envInt("MQTT_PORT", 1883),
		MQTTUser:                 os.Getenv("MQTT_USER"),
		MQTTPass:                 os.Getenv("MQTT_PASS"),
		MQTTPrefix:               envString("MQTT_PREFIX", "airtracker"),
		PublishAllPlanes:         envBool("MQTT_PUBLISH_ALL_PLANES"),
		PublishNearestCommercial: envBool("MQTT_PUBLISH_NEAREST_COMMERCIAL"),
		PrivateSeats:             envInt("PRIVATE_DESIGNATION_SEATS", 8),
		DatasetsDir:              envString("DATASETS_DIR", "datasets"),
		MilCachePath:             envString("MIL_CACHE_PATH", "data/mil_cache.json"),
		MilTTL:                   time.Duration(envInt("MIL_TTL_SEC", 21600)) * time.Second,
		AirlineLogoBaseURL:       strings.TrimRight(envString("AIRLINE_LOGO_BASE_URL", "https://zip.spacegeese.com/raw"), "/"),
		CountryFlagBaseURL:       strings.TrimRight(envString("COUNTRY_FLAG_BASE_URL", "https://zip.spacegeese.com/u"), "/"),
		WriteJSONPath:            os.Getenv("WRITE_JSON_PATH"),
		ZiplineURL:               strings.TrimRight(envString("ZIPLINE_URL", "https://zip.spacegeese.com"), "/"),
		ZiplineToken:             os.Getenv("ZIPLINE_TOKEN"),
		ZiplineFolderID:          os.Getenv("ZIPLINE_AIRCRAFT_FOLDER_ID"),
		LogLevel:                 envString("LOG_LEVEL", "info"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for values that would make the
// pipeline meaningless. It is called by FromEnv but exported so tests
// and flag overrides can re-check after mutation.
func (c *Config) Validate() error {
	if c.Latitude < -90 || c.Latitude > 90 {
		return fmt.Errorf("config: latitude %f outside [-90, 90]", c.Latitude)
	}
	if c.Longitude < -180 || c.Longitude > 180 {
		return fmt.Errorf("config: longitude %f outside [-180, 180]", c.Longitude)
	}
	if c.RadiusNM <= 0 {
		return fmt.Errorf("config: radius %f NM must be positive", c.RadiusNM)
	}
	if c.FetchIntervalMin <= 0 || c.FetchIntervalMax < c.FetchIntervalMin {
		return fmt.Errorf("config: fetch interval bounds [%d, %d] invalid",
			c.FetchIntervalMin, c.FetchIntervalMax)
	}
	if c.MQTTPort <= 0 || c.MQTTPort > 65535 {
		return fmt.Errorf("config: MQTT port %d out of range", c.MQTTPort)
	}
	if c.PrivateSeats < 1 {
		return fmt.Errorf("config: private designation seats %d must be at least 1", c.PrivateSeats)
	}
	for _, p := range c.MergePriority {
		switch p {
		case ProviderOpenSky, ProviderADSBLol, ProviderFR24:
		default:
			return fmt.Errorf("config: unknown provider %q in merge priority", p)
		}
	}
	return nil
}

func envString(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envFloat(key string, def float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// envBool treats "1" as true, matching the SKIP_<PROVIDER>=1 convention.
func envBool(key string) bool {
	return strings.TrimSpace(os.Getenv(key)) == "1"
}

func envList(key string, def []string) []string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return append([]string(nil), def...)
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return append([]string(nil), def...)
	}
	return out
}
