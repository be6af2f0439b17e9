package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/spacegeese/airtracker/pkg/config"
	"github.com/spacegeese/airtracker/pkg/geo"
)

// ADSBLolBaseURL is the adsb.lol API root.
const ADSBLolBaseURL = "https://api.adsb.lol"

// adsbMaxRadiusNM is the largest radius the point endpoint accepts.
const adsbMaxRadiusNM = 250

// ADSBLolClient fetches aircraft from the adsb.lol point endpoint.
// Responses are already in aviation units (feet, knots, fpm) and carry
// an explicit seconds-since-seen freshness counter.
type ADSBLolClient struct {
	baseURL    string
	userAgent  string
	httpClient *http.Client
	limiter    *rate.Limiter
	mil        MilLookup
	now        func() time.Time
}

// ADSBLolOption adjusts client construction.
type ADSBLolOption func(*ADSBLolClient)

// WithADSBLolBaseURL points the client at a different API root.
func WithADSBLolBaseURL(u string) ADSBLolOption {
	return func(c *ADSBLolClient) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithADSBLolClock overrides the time source used for position timestamps.
func WithADSBLolClock(now func() time.Time) ADSBLolOption {
	return func(c *ADSBLolClient) { c.now = now }
}

// NewADSBLol creates an adsb.lol client.
func NewADSBLol(mil MilLookup, opts ...ADSBLolOption) *ADSBLolClient {
	c := &ADSBLolClient{
		baseURL:    ADSBLolBaseURL,
		userAgent:  defaultUserAgent,
		httpClient: &http.Client{Timeout: requestTimeout},
		limiter:    rate.NewLimiter(rate.Every(time.Second), 1),
		mil:        mil,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name returns the provider identifier.
func (c *ADSBLolClient) Name() string { return config.ProviderADSBLol }

// adsbAircraft is one aircraft row from the v2 point response.
// AltBaro is untyped because the API reports the string "ground" for
// aircraft on the surface.
type adsbAircraft struct {
	Hex          string   `json:"hex"`
	Flight       string   `json:"flight"`
	Registration string   `json:"r"`
	Type         string   `json:"t"`
	Lat          *float64 `json:"lat"`
	Lon          *float64 `json:"lon"`
	AltBaro      any      `json:"alt_baro"`
	AltGeom      *float64 `json:"alt_geom"`
	GS           *float64 `json:"gs"`
	Track        *float64 `json:"track"`
	BaroRate     *float64 `json:"baro_rate"`
	GeomRate     *float64 `json:"geom_rate"`
	Squawk       string   `json:"squawk"`
	Category     string   `json:"category"`
	Emergency    string   `json:"emergency"`
	Seen         *float64 `json:"seen"`
	SeenPos      *float64 `json:"seen_pos"`
	DBFlags      *int     `json:"dbFlags"`
}

// Fetch returns all aircraft within radiusNM of center.
func (c *ADSBLolClient) Fetch(ctx context.Context, center geo.Point, radiusNM float64) ([]Observation, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("adsb_lol: rate limit wait: %w", err)
	}

	radius := int(radiusNM)
	if radius > adsbMaxRadiusNM {
		radius = adsbMaxRadiusNM
	}
	url := fmt.Sprintf("%s/v2/point/%.6f/%.6f/%d", c.baseURL, center.Latitude, center.Longitude, radius)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("adsb_lol: build request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("adsb_lol: fetch point: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("adsb_lol: unexpected status %d", resp.StatusCode)
	}

	var body struct {
		AC []adsbAircraft `json:"ac"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("adsb_lol: decode response: %w", err)
	}

	nowSec := float64(c.now().Unix())
	obs := make([]Observation, 0, len(body.AC))
	for _, a := range body.AC {
		o, ok := c.normalize(ctx, a, nowSec)
		if !ok {
			continue
		}
		obs = append(obs, o)
	}

	log.WithFields(log.Fields{"provider": c.Name(), "count": len(obs)}).Debug("provider snapshot fetched")
	return obs, nil
}

func (c *ADSBLolClient) normalize(ctx context.Context, a adsbAircraft, nowSec float64) (Observation, bool) {
	hex := strings.TrimSpace(a.Hex)
	if hex == "" {
		return Observation{}, false
	}

	flight := strings.TrimSpace(a.Flight)
	o := Observation{
		Provider:     c.Name(),
		Hex:          hex,
		Callsign:     flight,
		FlightNo:     flight,
		Registration: strings.TrimSpace(a.Registration),
		AircraftType: strings.TrimSpace(a.Type),
		TrackDeg:     a.Track,
	}

	o.Latitude, o.Longitude = sanitizePosition(a.Lat, a.Lon)

	switch alt := a.AltBaro.(type) {
	case float64:
		o.AltitudeFt = roundedPtr(alt)
	case string:
		if alt == "ground" {
			grounded := true
			o.OnGround = &grounded
		}
	}
	if o.AltitudeFt == nil && a.AltGeom != nil {
		o.AltitudeFt = roundedPtr(*a.AltGeom)
	}

	if gs := sanitizeSpeed(a.GS); gs != nil {
		o.GroundSpeedKt = roundedPtr(*gs)
	}
	if a.BaroRate != nil {
		o.VerticalRateFpm = roundedPtr(*a.BaroRate)
	} else if a.GeomRate != nil {
		o.VerticalRateFpm = roundedPtr(*a.GeomRate)
	}
	if sq := strings.TrimSpace(a.Squawk); sq != "" {
		o.Squawk = &sq
	}

	// The API reports freshness directly as seconds since last seen.
	o.AgeSec = a.Seen
	if a.SeenPos != nil {
		ts := int64(math.Round(nowSec - *a.SeenPos))
		o.PositionTimestamp = &ts
	} else if a.Seen != nil {
		ts := int64(math.Round(nowSec - *a.Seen))
		o.PositionTimestamp = &ts
	}

	extras := map[string]any{}
	if a.Category != "" {
		extras["category"] = a.Category
	}
	if a.Emergency != "" && a.Emergency != "none" {
		extras["emergency"] = a.Emergency
	}
	if a.DBFlags != nil {
		extras["db_flags"] = *a.DBFlags
	}
	if len(extras) > 0 {
		o.Extras = extras
	}

	if c.mil != nil {
		o.IsMilitary = c.mil.Lookup(ctx, hex)
	}
	return o, true
}
