package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/spacegeese/airtracker/pkg/config"
	"github.com/spacegeese/airtracker/pkg/geo"
)

// FR24BaseURL is the unofficial Flightradar24 feed endpoint root.
const FR24BaseURL = "https://data-cloud.flightradar24.com"

const fr24FeedPath = "/zones/fcgi/feed.js"

// fr24BrowserUA keeps the unofficial feed endpoint from rejecting the
// request as a bot.
const fr24BrowserUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124 Safari/537.36"

// Flightradar24 feed row indexes. The feed has no field names; each
// aircraft is a bare JSON array keyed by an internal flight id.
const (
	fr24IdxHex = iota
	fr24IdxLat
	fr24IdxLon
	fr24IdxTrack
	fr24IdxAltFt
	fr24IdxGsKt
	fr24IdxSquawk
	fr24IdxRadar
	fr24IdxType
	fr24IdxReg
	fr24IdxTimestamp
	fr24IdxFromIATA
	fr24IdxToIATA
	fr24IdxFlight
	fr24IdxOnGround
	fr24IdxVsFpm
	fr24IdxCallsign
	_
	fr24IdxAirlineICAO
)

// FR24Client fetches aircraft from the Flightradar24 feed endpoint.
type FR24Client struct {
	baseURL    string
	userAgent  string
	httpClient *http.Client
	limiter    *rate.Limiter
	mil        MilLookup
	now        func() time.Time
}

// FR24Option adjusts client construction.
type FR24Option func(*FR24Client)

// WithFR24BaseURL points the client at a different feed root.
func WithFR24BaseURL(u string) FR24Option {
	return func(c *FR24Client) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithFR24Clock overrides the time source used for age computation.
func WithFR24Clock(now func() time.Time) FR24Option {
	return func(c *FR24Client) { c.now = now }
}

// NewFR24 creates a Flightradar24 client.
func NewFR24(mil MilLookup, opts ...FR24Option) *FR24Client {
	c := &FR24Client{
		baseURL:    FR24BaseURL,
		userAgent:  fr24BrowserUA,
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
func (c *FR24Client) Name() string { return config.ProviderFR24 }

// Fetch returns all airborne aircraft inside the bounding box around
// center.
func (c *FR24Client) Fetch(ctx context.Context, center geo.Point, radiusNM float64) ([]Observation, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("fr24: rate limit wait: %w", err)
	}

	box := geo.BoxAround(center, radiusNM)
	q := url.Values{}
	q.Set("bounds", fmt.Sprintf("%.6f,%.6f,%.6f,%.6f", box.North, box.South, box.West, box.East))
	q.Set("faa", "1")
	q.Set("satellite", "1")
	q.Set("mlat", "1")
	q.Set("flarm", "1")
	q.Set("adsb", "1")
	q.Set("gnd", "0")
	q.Set("air", "1")
	q.Set("vehicles", "0")
	q.Set("estimated", "1")
	q.Set("maxage", "14400")
	q.Set("gliders", "0")
	q.Set("stats", "0")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+fr24FeedPath+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("fr24: build request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json,text/plain,*/*")
	req.Header.Set("Accept-Encoding", "identity")
	req.Header.Set("Referer", "https://www.flightradar24.com/")
	req.Header.Set("Origin", "https://www.flightradar24.com")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fr24: fetch feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fr24: unexpected status %d", resp.StatusCode)
	}
	// A bot challenge comes back as HTML with a 200.
	if ct := resp.Header.Get("Content-Type"); ct != "" && !strings.Contains(strings.ToLower(ct), "json") {
		return nil, fmt.Errorf("fr24: non-JSON response (%s)", ct)
	}

	// Aircraft rows are the array-valued entries; everything else
	// (full_count, version) is feed metadata.
	var body map[string]json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("fr24: decode response: %w", err)
	}

	nowSec := float64(c.now().Unix())
	var obs []Observation
	for _, raw := range body {
		var row []any
		if err := json.Unmarshal(raw, &row); err != nil {
			continue
		}
		o, ok := c.normalize(ctx, row, nowSec)
		if !ok {
			continue
		}
		obs = append(obs, o)
	}

	log.WithFields(log.Fields{"provider": c.Name(), "count": len(obs)}).Debug("provider snapshot fetched")
	return obs, nil
}

func (c *FR24Client) normalize(ctx context.Context, row []any, nowSec float64) (Observation, bool) {
	hex := strings.TrimSpace(idxString(row, fr24IdxHex))
	if hex == "" {
		return Observation{}, false
	}

	o := Observation{
		Provider:        c.Name(),
		Hex:             hex,
		Callsign:        strings.TrimSpace(idxString(row, fr24IdxCallsign)),
		FlightNo:        strings.TrimSpace(idxString(row, fr24IdxFlight)),
		Registration:    strings.TrimSpace(idxString(row, fr24IdxReg)),
		AircraftType:    strings.TrimSpace(idxString(row, fr24IdxType)),
		AirlineICAO:     strings.TrimSpace(idxString(row, fr24IdxAirlineICAO)),
		OriginIATA:      strings.TrimSpace(idxString(row, fr24IdxFromIATA)),
		DestinationIATA: strings.TrimSpace(idxString(row, fr24IdxToIATA)),
		TrackDeg:        idxFloat(row, fr24IdxTrack),
	}

	o.Latitude, o.Longitude = sanitizePosition(idxFloat(row, fr24IdxLat), idxFloat(row, fr24IdxLon))

	if alt := idxFloat(row, fr24IdxAltFt); alt != nil {
		o.AltitudeFt = roundedPtr(*alt)
	}
	if gs := sanitizeSpeed(idxFloat(row, fr24IdxGsKt)); gs != nil {
		o.GroundSpeedKt = roundedPtr(*gs)
	}
	if vs := idxFloat(row, fr24IdxVsFpm); vs != nil {
		o.VerticalRateFpm = roundedPtr(*vs)
	}
	if sq := strings.TrimSpace(idxString(row, fr24IdxSquawk)); sq != "" {
		o.Squawk = &sq
	}
	if og := idxFloat(row, fr24IdxOnGround); og != nil {
		grounded := *og != 0
		o.OnGround = &grounded
	}

	if ts := idxFloat(row, fr24IdxTimestamp); ts != nil {
		o.AgeSec = floatPtr(nowSec - *ts)
		posTS := int64(*ts)
		o.PositionTimestamp = &posTS
	}

	if radar := strings.TrimSpace(idxString(row, fr24IdxRadar)); radar != "" {
		o.Extras = map[string]any{"radar": radar}
	}

	if c.mil != nil {
		o.IsMilitary = c.mil.Lookup(ctx, hex)
	}
	return o, true
}
