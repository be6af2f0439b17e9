package pipeline

import (
	"context"
	"errors"
	"math/rand"
	"time"

	log "github.com/sirupsen/logrus"
)

// Run executes cycles until the context is cancelled. Cycles never
// overlap; the gap between cycle starts is drawn uniformly from the
// configured interval bounds so three providers polled by many
// installations do not see synchronized request spikes.
func (p *Pipeline) Run(ctx context.Context) error {
	minSec := p.cfg.FetchIntervalMin
	maxSec := p.cfg.FetchIntervalMax

	for {
		started := p.now()
		interval := time.Duration(minSec+rand.Intn(maxSec-minSec+1)) * time.Second

		if _, err := p.RunCycle(ctx); err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			log.WithError(err).Error("cycle failed")
		}

		elapsed := p.now().Sub(started)
		wait := interval - elapsed
		if wait < 0 {
			log.WithFields(log.Fields{
				"elapsed":  elapsed.Round(time.Second),
				"interval": interval,
			}).Warn("cycle outran its interval")
			wait = 0
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(wait):
		}
	}
}
