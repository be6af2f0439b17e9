package pipeline

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/spacegeese/airtracker/internal/fuse"
	"github.com/spacegeese/airtracker/internal/mqtt"
	"github.com/spacegeese/airtracker/pkg/provider"
)

type countingPublisher struct {
	mu    sync.Mutex
	count int
	done  chan struct{}
}

func (p *countingPublisher) PublishSnapshot(*fuse.Snapshot, *mqtt.Stats) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.count++
	if p.count == 1 {
		close(p.done)
	}
	return 1, nil
}

func TestRunStopsOnCancel(t *testing.T) {
	cfg := testConfig(t)
	cfg.FetchIntervalMin = 1
	cfg.FetchIntervalMax = 1

	pub := &countingPublisher{done: make(chan struct{})}
	p := newTestPipeline(t, cfg, []provider.Fetcher{
		&staticFetcher{name: "adsb_lol"},
	}, pub)

	ctx, cancel := context.WithCancel(context.Background())
	finished := make(chan error, 1)
	go func() { finished <- p.Run(ctx) }()

	select {
	case <-pub.done:
	case <-time.After(5 * time.Second):
		t.Fatal("first cycle never published")
	}
	cancel()

	select {
	case err := <-finished:
		if err != nil {
			t.Errorf("Run returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop after cancellation")
	}
}
