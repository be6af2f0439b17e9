// Package pipeline orchestrates one AirTracker cycle: fan out to the
// enabled providers, fuse their observations, enrich and rank the
// result, attach media to the selected aircraft, and publish.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/spacegeese/airtracker/internal/enrich"
	"github.com/spacegeese/airtracker/internal/fuse"
	"github.com/spacegeese/airtracker/internal/media"
	"github.com/spacegeese/airtracker/internal/mqtt"
	"github.com/spacegeese/airtracker/pkg/config"
	"github.com/spacegeese/airtracker/pkg/geo"
	"github.com/spacegeese/airtracker/pkg/provider"
)

// Publisher is the slice of the MQTT publisher the pipeline needs.
type Publisher interface {
	PublishSnapshot(snap *fuse.Snapshot, stats *mqtt.Stats) (int, error)
}

// Pipeline wires the fetch-fuse-enrich-publish stages together.
type Pipeline struct {
	cfg      *config.Config
	fetchers []provider.Fetcher
	engine   *fuse.Engine
	enricher *enrich.Enricher
	media    *media.Enricher
	pub      Publisher

	stats mqtt.Stats
	now   func() time.Time
}

// New assembles a pipeline. The media enricher may be nil when media
// lookups are disabled.
func New(cfg *config.Config, fetchers []provider.Fetcher, enricher *enrich.Enricher, mediaEnricher *media.Enricher, pub Publisher) *Pipeline {
	p := &Pipeline{
		cfg:      cfg,
		fetchers: fetchers,
		engine:   fuse.NewEngine(cfg.MergePriority),
		enricher: enricher,
		media:    mediaEnricher,
		pub:      pub,
		now:      time.Now,
	}
	p.stats.StartTime = p.now().UTC().Format(time.RFC3339)
	return p
}

// Stats returns a copy of the running counters.
func (p *Pipeline) Stats() mqtt.Stats {
	return p.stats
}

// RunCycle executes one full cycle and publishes the result. It returns
// the snapshot so callers can render or mirror it, and an error only
// when publication failed; provider failures degrade the snapshot
// instead of aborting it.
func (p *Pipeline) RunCycle(ctx context.Context) (*fuse.Snapshot, error) {
	started := p.now()
	p.stats.Runs++

	snap := p.buildSnapshot(ctx, started)

	if p.cfg.WriteJSONPath != "" {
		if err := p.writeSnapshot(snap); err != nil {
			log.WithError(err).Warn("snapshot mirror write failed")
		}
	}

	if err := ctx.Err(); err != nil {
		// Shutdown mid-cycle: skip publication, the data is complete
		// but nobody is waiting for it.
		return snap, err
	}

	published, err := p.pub.PublishSnapshot(snap, &p.stats)
	if err != nil {
		p.stats.Errors++
		return snap, fmt.Errorf("pipeline: publish: %w", err)
	}

	log.WithFields(log.Fields{
		"aircraft":  len(snap.Planes),
		"published": published,
		"duration":  p.now().Sub(started).Round(time.Millisecond),
	}).Info("cycle complete")
	return snap, nil
}

// buildSnapshot runs the data half of the cycle: fetch, fuse, enrich,
// select, and attach media.
func (p *Pipeline) buildSnapshot(ctx context.Context, started time.Time) *fuse.Snapshot {
	center := geo.Point{Latitude: p.cfg.Latitude, Longitude: p.cfg.Longitude}

	obs := p.fetchAll(ctx, center)

	planes := p.engine.Fuse(obs)
	fuse.AnnotateRange(planes, center, p.cfg.RadiusNM)
	fuse.Sort(planes)

	for _, m := range planes {
		p.enricher.Enrich(m)
	}

	nearest := enrich.Nearest(planes)
	interesting := enrich.NearestInteresting(planes)

	if p.media != nil {
		targets := make([]*fuse.Merged, 0, 2)
		if nearest != nil {
			targets = append(targets, nearest)
		}
		if interesting != nil && interesting != nearest {
			targets = append(targets, interesting)
		}
		p.media.Attach(ctx, targets)
	}

	if planes == nil {
		planes = []*fuse.Merged{}
	}
	return &fuse.Snapshot{
		Timestamp:         started.Unix(),
		Stats:             fuse.SnapshotStats{HexCount: len(planes), ProvidersPresent: providersPresent(planes)},
		Point:             fuse.Point{Lat: p.cfg.Latitude, Lon: p.cfg.Longitude, RadiusNM: p.cfg.RadiusNM},
		Planes:            planes,
		Nearest:           nearest,
		NearestCommercial: interesting,
	}
}

// fetchAll queries every enabled provider concurrently. A failing
// provider contributes nothing; the cycle continues on whatever the
// others returned.
func (p *Pipeline) fetchAll(ctx context.Context, center geo.Point) []provider.Observation {
	results := make([][]provider.Observation, len(p.fetchers))

	g, ctx := errgroup.WithContext(ctx)
	for i, f := range p.fetchers {
		i, f := i, f
		g.Go(func() error {
			obs, err := provider.FetchOnceRetry(ctx, f, center, p.cfg.RadiusNM)
			if err != nil {
				log.WithField("provider", f.Name()).WithError(err).Warn("provider fetch failed")
				return nil
			}
			log.WithFields(log.Fields{"provider": f.Name(), "count": len(obs)}).Debug("provider fetch")
			results[i] = obs
			return nil
		})
	}
	_ = g.Wait()

	var all []provider.Observation
	for _, r := range results {
		all = append(all, r...)
	}
	return all
}

// writeSnapshot mirrors the snapshot to a local file, pretty-printed
// for humans tailing it.
func (p *Pipeline) writeSnapshot(snap *fuse.Snapshot) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(p.cfg.WriteJSONPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(p.cfg.WriteJSONPath, data, 0o644)
}

func providersPresent(planes []*fuse.Merged) []string {
	seen := map[string]bool{}
	var out []string
	for _, m := range planes {
		for _, s := range m.Sources {
			if !seen[s] {
				seen[s] = true
				out = append(out, s)
			}
		}
	}
	return out
}
