// AirTracker fuses live aircraft telemetry from multiple network
// feeds, enriches it with reference catalogs, and publishes the
// result to MQTT for display panels and home automation.
//
// The default mode runs one cycle and exits; --continuous runs the
// scheduler until interrupted.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	flag "github.com/spf13/pflag"

	"github.com/spacegeese/airtracker/internal/catalog"
	"github.com/spacegeese/airtracker/internal/enrich"
	"github.com/spacegeese/airtracker/internal/media"
	"github.com/spacegeese/airtracker/internal/milcache"
	"github.com/spacegeese/airtracker/internal/mqtt"
	"github.com/spacegeese/airtracker/internal/pipeline"
	"github.com/spacegeese/airtracker/pkg/config"
	"github.com/spacegeese/airtracker/pkg/provider"
)

func main() {
	continuous := flag.Bool("continuous", false, "run cycles until interrupted")
	testMQTT := flag.Bool("test-mqtt", false, "check broker connectivity and exit")
	lat := flag.Float64("lat", 0, "latitude override")
	lon := flag.Float64("lon", 0, "longitude override")
	radius := flag.Float64("radius", 0, "radius override in nautical miles")
	mqttHost := flag.String("mqtt-host", "", "MQTT broker host override")
	mqttPort := flag.Int("mqtt-port", 0, "MQTT broker port override")
	mqttPrefix := flag.String("mqtt-prefix", "", "MQTT topic prefix override")
	publishAll := flag.Bool("mqtt-publish-all", false, "publish the full planes topic")
	publishCommercial := flag.Bool("mqtt-publish-commercial", false, "publish the nearest_commercial topic")
	flag.Parse()

	cfg, err := config.FromEnv()
	if err != nil {
		log.WithError(err).Fatal("configuration invalid")
	}
	applyOverrides(cfg, lat, lon, radius, mqttHost, mqttPort, mqttPrefix, publishAll, publishCommercial)
	if err := cfg.Validate(); err != nil {
		log.WithError(err).Fatal("configuration invalid after overrides")
	}

	if level, err := log.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(level)
	}

	pub := mqtt.New(cfg)
	if *testMQTT {
		if err := pub.Connect(); err != nil {
			log.WithError(err).Error("MQTT connectivity check failed")
			os.Exit(1)
		}
		pub.Disconnect()
		log.WithFields(log.Fields{"host": cfg.MQTTHost, "port": cfg.MQTTPort}).Info("MQTT broker reachable")
		return
	}

	p := buildPipeline(cfg, pub)
	defer pub.Disconnect()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.WithFields(log.Fields{
		"lat":    cfg.Latitude,
		"lon":    cfg.Longitude,
		"radius": cfg.RadiusNM,
		"mqtt":   cfg.MQTTPrefix,
	}).Info("AirTracker starting")

	if *continuous {
		if err := p.Run(ctx); err != nil {
			log.WithError(err).Error("scheduler stopped")
			os.Exit(1)
		}
		log.Info("AirTracker stopped")
		return
	}

	if _, err := p.RunCycle(ctx); err != nil {
		log.WithError(err).Error("cycle failed")
		os.Exit(1)
	}
}

// buildPipeline assembles providers, catalogs, and collaborators from
// the configuration.
func buildPipeline(cfg *config.Config, pub *mqtt.Publisher) *pipeline.Pipeline {
	mil := milcache.New(cfg.MilCachePath, milcache.WithTTL(cfg.MilTTL))

	var fetchers []provider.Fetcher
	if !cfg.SkipADSBLol {
		fetchers = append(fetchers, provider.NewADSBLol(mil))
	}
	if !cfg.SkipFR24 {
		fetchers = append(fetchers, provider.NewFR24(mil))
	}
	if !cfg.SkipOpenSky {
		fetchers = append(fetchers, provider.NewOpenSky(cfg.OSKClientID, cfg.OSKClientSecret, mil))
	}
	if len(fetchers) == 0 {
		log.Fatal("all providers disabled, nothing to track")
	}

	cat := catalog.Load(cfg.DatasetsDir)
	enricher := enrich.New(cat, cfg)

	// Image processing is optional; NewZiplineUploader returns nil
	// without a token, and a typed nil must not masquerade as a
	// non-nil ImageProcessor.
	mediaEnricher := media.NewEnricher(nil, nil)
	if z := media.NewZiplineUploader(cfg.ZiplineURL, cfg.ZiplineToken, cfg.ZiplineFolderID); z != nil {
		mediaEnricher = media.NewEnricher(nil, z)
	}

	return pipeline.New(cfg, fetchers, enricher, mediaEnricher, pub)
}

func applyOverrides(cfg *config.Config, lat, lon, radius *float64, host *string, port *int, prefix *string, publishAll, publishCommercial *bool) {
	if flag.CommandLine.Changed("lat") {
		cfg.Latitude = *lat
	}
	if flag.CommandLine.Changed("lon") {
		cfg.Longitude = *lon
	}
	if flag.CommandLine.Changed("radius") {
		cfg.RadiusNM = *radius
	}
	if flag.CommandLine.Changed("mqtt-host") {
		cfg.MQTTHost = *host
	}
	if flag.CommandLine.Changed("mqtt-port") {
		cfg.MQTTPort = *port
	}
	if flag.CommandLine.Changed("mqtt-prefix") {
		cfg.MQTTPrefix = *prefix
	}
	if *publishAll {
		cfg.PublishAllPlanes = true
	}
	if *publishCommercial {
		cfg.PublishNearestCommercial = true
	}
}
