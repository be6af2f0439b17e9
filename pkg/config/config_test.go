package config

import (
	"strings"
	"testing"
	"time"
)

// TestFromEnvDefaults verifies defaults with a clean environment.
func TestFromEnvDefaults(t *testing.T) {
	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv failed: %v", err)
	}

	if cfg.RadiusNM != 10 {
		t.Errorf("Expected default radius 10 NM, got %f", cfg.RadiusNM)
	}
	if cfg.FetchIntervalMin != 80 || cfg.FetchIntervalMax != 100 {
		t.Errorf("Expected interval bounds [80, 100], got [%d, %d]",
			cfg.FetchIntervalMin, cfg.FetchIntervalMax)
	}
	if cfg.MQTTHost != "localhost" || cfg.MQTTPort != 1883 {
		t.Errorf("Expected localhost:1883, got %s:%d", cfg.MQTTHost, cfg.MQTTPort)
	}
	if cfg.MQTTPrefix != "airtracker" {
		t.Errorf("Expected prefix airtracker, got %s", cfg.MQTTPrefix)
	}
	if cfg.PrivateSeats != 8 {
		t.Errorf("Expected private seat threshold 8, got %d", cfg.PrivateSeats)
	}
	if cfg.MilTTL != 6*time.Hour {
		t.Errorf("Expected mil TTL 6h, got %v", cfg.MilTTL)
	}
	if strings.Join(cfg.MergePriority, ",") != "adsb_lol,fr24,opensky" {
		t.Errorf("Unexpected default merge priority: %v", cfg.MergePriority)
	}
	if cfg.PublishAllPlanes || cfg.PublishNearestCommercial {
		t.Error("Optional topics should be disabled by default")
	}
}

// TestFromEnvOverrides verifies environment variables take effect.
func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("LAT", "40.7")
	t.Setenv("LON", "-74.0")
	t.Setenv("RADIUS_NM", "25")
	t.Setenv("SKIP_FR24", "1")
	t.Setenv("MQTT_PUBLISH_ALL_PLANES", "1")
	t.Setenv("MERGE_PRIORITY", "fr24, adsb_lol")
	t.Setenv("PRIVATE_DESIGNATION_SEATS", "12")
	t.Setenv("AIRLINE_LOGO_BASE_URL", "https://assets.example.com/raw/")

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv failed: %v", err)
	}

	if cfg.Latitude != 40.7 || cfg.Longitude != -74.0 {
		t.Errorf("Expected 40.7/-74.0, got %f/%f", cfg.Latitude, cfg.Longitude)
	}
	if cfg.RadiusNM != 25 {
		t.Errorf("Expected radius 25, got %f", cfg.RadiusNM)
	}
	if !cfg.SkipFR24 {
		t.Error("Expected FR24 skipped")
	}
	if !cfg.PublishAllPlanes {
		t.Error("Expected planes topic enabled")
	}
	if len(cfg.MergePriority) != 2 || cfg.MergePriority[0] != "fr24" || cfg.MergePriority[1] != "adsb_lol" {
		t.Errorf("Unexpected merge priority: %v", cfg.MergePriority)
	}
	if cfg.PrivateSeats != 12 {
		t.Errorf("Expected seat threshold 12, got %d", cfg.PrivateSeats)
	}
	if cfg.AirlineLogoBaseURL != "https://assets.example.com/raw" {
		t.Errorf("Expected trailing slash trimmed, got %s", cfg.AirlineLogoBaseURL)
	}
}

// TestValidate covers the fatal misconfiguration cases.
func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Latitude: 46.0, Longitude: -123.0, RadiusNM: 10,
			FetchIntervalMin: 80, FetchIntervalMax: 100,
			MQTTPort: 1883, PrivateSeats: 8,
			MergePriority: DefaultMergePriority,
		}
	}

	if err := valid().Validate(); err != nil {
		t.Fatalf("Valid config rejected: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"Latitude out of range", func(c *Config) { c.Latitude = 91 }},
		{"Longitude out of range", func(c *Config) { c.Longitude = -200 }},
		{"Zero radius", func(c *Config) { c.RadiusNM = 0 }},
		{"Inverted interval bounds", func(c *Config) { c.FetchIntervalMax = 10 }},
		{"Bad MQTT port", func(c *Config) { c.MQTTPort = 70000 }},
		{"Unknown priority provider", func(c *Config) { c.MergePriority = []string{"flightaware"} }},
		{"Zero seat threshold", func(c *Config) { c.PrivateSeats = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Expected validation error, got nil")
			}
		})
	}
}

// TestEnvBoolConvention verifies only "1" enables a toggle.
func TestEnvBoolConvention(t *testing.T) {
	t.Setenv("SKIP_OPENSKY", "true")
	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv failed: %v", err)
	}
	if cfg.SkipOpenSky {
		t.Error(`"true" should not enable a toggle; only "1" does`)
	}
}
