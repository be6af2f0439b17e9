package provider

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/spacegeese/airtracker/internal/milcache"
	"github.com/spacegeese/airtracker/pkg/geo"
)

// stubMil is a canned MilLookup recording which hexes were consulted.
type stubMil struct {
	mu       sync.Mutex
	verdicts map[string]milcache.Verdict
	asked    []string
}

func (s *stubMil) Lookup(_ context.Context, hex string) milcache.Verdict {
	s.mu.Lock()
	defer s.mu.Unlock()
	hex = strings.ToUpper(hex)
	s.asked = append(s.asked, hex)
	return s.verdicts[hex]
}

// flakyFetcher fails a configured number of times before succeeding.
type flakyFetcher struct {
	failures int
	calls    int
}

func (f *flakyFetcher) Name() string { return "flaky" }

func (f *flakyFetcher) Fetch(_ context.Context, _ geo.Point, _ float64) ([]Observation, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, errors.New("upstream unavailable")
	}
	return []Observation{{Provider: "flaky", Hex: "ABC123"}}, nil
}

// TestFetchOnceRetry verifies one retry after a failure and no retry
// after success.
func TestFetchOnceRetry(t *testing.T) {
	f := &flakyFetcher{failures: 1}
	obs, err := FetchOnceRetry(context.Background(), f, geo.Point{}, 10)
	if err != nil {
		t.Fatalf("Expected retry to recover, got %v", err)
	}
	if len(obs) != 1 || f.calls != 2 {
		t.Errorf("Expected 1 observation after 2 calls, got %d after %d", len(obs), f.calls)
	}

	f = &flakyFetcher{failures: 0}
	if _, err := FetchOnceRetry(context.Background(), f, geo.Point{}, 10); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if f.calls != 1 {
		t.Errorf("Expected no retry after success, got %d calls", f.calls)
	}
}

// TestFetchOnceRetryExhausted verifies both failures surface the error.
func TestFetchOnceRetryExhausted(t *testing.T) {
	f := &flakyFetcher{failures: 2}
	if _, err := FetchOnceRetry(context.Background(), f, geo.Point{}, 10); err == nil {
		t.Fatal("Expected error when both attempts fail")
	}
	if f.calls != 2 {
		t.Errorf("Expected exactly 2 attempts, got %d", f.calls)
	}
}

// TestSanitizePosition verifies impossible coordinates are dropped as a
// pair.
func TestSanitizePosition(t *testing.T) {
	lat, lon := 91.0, 0.0
	if la, lo := sanitizePosition(&lat, &lon); la != nil || lo != nil {
		t.Error("Expected out-of-range latitude to drop the position")
	}

	lat, lon = 46.0, -123.0
	if la, lo := sanitizePosition(&lat, &lon); la == nil || lo == nil {
		t.Error("Expected valid position to survive")
	}

	if la, lo := sanitizePosition(&lat, nil); la != nil || lo != nil {
		t.Error("Expected lone latitude to be dropped")
	}
}

// TestSanitizeSpeed verifies negative ground speeds are dropped.
func TestSanitizeSpeed(t *testing.T) {
	neg := -12.0
	if sanitizeSpeed(&neg) != nil {
		t.Error("Expected negative speed to be dropped")
	}
	pos := 250.0
	if got := sanitizeSpeed(&pos); got == nil || *got != 250 {
		t.Error("Expected positive speed to survive")
	}
}
