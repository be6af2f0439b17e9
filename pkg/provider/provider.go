// Package provider fetches live aircraft snapshots from the upstream
// air-traffic data services and normalizes them into a common
// Observation shape.
//
// Each client encapsulates one provider's wire format and freshness
// signal. Clients never fail a cycle: transport and parse problems are
// reported as errors for the caller to log, and the caller treats them
// as an empty contribution.
package provider

import (
	"context"
	"math"
	"time"

	"github.com/spacegeese/airtracker/internal/milcache"
	"github.com/spacegeese/airtracker/pkg/geo"
)

// Unit conversion factors for providers that report metric units.
const (
	MetersToFeet = 3.28084
	MPSToKnots   = 1.94384
	MPSToFPM     = 196.85
)

const (
	requestTimeout   = 15 * time.Second
	defaultUserAgent = "AirTracker/2.0"
)

// Observation is one provider's view of one aircraft at a point in
// time. Optional telemetry uses pointers; nil means the provider did
// not report the field.
type Observation struct {
	// Provider is the reporting provider's identifier.
	Provider string

	// Hex is the 24-bit ICAO address as reported (case preserved;
	// fusion uppercases it).
	Hex string

	// Identity fields. FlightNo is the commercial flight designator
	// where the provider distinguishes it from the radio callsign.
	Callsign        string
	FlightNo        string
	Registration    string
	AircraftType    string
	AirlineICAO     string
	OriginIATA      string
	DestinationIATA string
	OriginCountry   string

	// Telemetry.
	Latitude        *float64
	Longitude       *float64
	AltitudeFt      *float64
	GroundSpeedKt   *float64
	TrackDeg        *float64
	VerticalRateFpm *float64
	Squawk          *string
	OnGround        *bool

	// AgeSec is the provider-specific freshness of this observation in
	// seconds; lower is fresher. nil when the provider gave no signal.
	AgeSec *float64

	// PositionTimestamp is the epoch second of the position fix, when
	// derivable.
	PositionTimestamp *int64

	// IsMilitary is the military-cache verdict for this hex.
	IsMilitary milcache.Verdict

	// Extras carries provider-specific diagnostic fields that survive
	// fusion under extras_<provider>_<key>.
	Extras map[string]any
}

// HasPosition reports whether both coordinates are present and sane.
func (o *Observation) HasPosition() bool {
	return o.Latitude != nil && o.Longitude != nil
}

// MilLookup resolves a hex address to a military verdict. Satisfied by
// *milcache.Cache; tests substitute a canned implementation.
type MilLookup interface {
	Lookup(ctx context.Context, hex string) milcache.Verdict
}

// Fetcher is the contract every provider client implements.
type Fetcher interface {
	// Name returns the provider identifier used in merge records.
	Name() string

	// Fetch returns all observations within radiusNM of center.
	Fetch(ctx context.Context, center geo.Point, radiusNM float64) ([]Observation, error)
}

// FetchOnceRetry calls f.Fetch and retries a single time on failure.
// Providers get at most one retry per cycle; there is no cross-cycle
// retry queue, the next cycle starts from scratch.
func FetchOnceRetry(ctx context.Context, f Fetcher, center geo.Point, radiusNM float64) ([]Observation, error) {
	obs, err := f.Fetch(ctx, center, radiusNM)
	if err == nil {
		return obs, nil
	}
	select {
	case <-ctx.Done():
		return nil, err
	case <-time.After(time.Second):
	}
	return f.Fetch(ctx, center, radiusNM)
}

// sanitizePosition drops coordinates that cannot exist on Earth.
func sanitizePosition(lat, lon *float64) (*float64, *float64) {
	if lat == nil || lon == nil {
		return nil, nil
	}
	if *lat < -90 || *lat > 90 || *lon < -180 || *lon > 180 {
		return nil, nil
	}
	return lat, lon
}

// sanitizeSpeed drops negative ground speeds.
func sanitizeSpeed(gs *float64) *float64 {
	if gs != nil && *gs < 0 {
		return nil
	}
	return gs
}

func floatPtr(v float64) *float64 { return &v }

func roundedPtr(v float64) *float64 {
	r := math.Round(v)
	return &r
}
