package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/spacegeese/airtracker/internal/milcache"
)

func adsbServer(t *testing.T, ac []map[string]any) (*httptest.Server, *string) {
	t.Helper()
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		json.NewEncoder(w).Encode(map[string]any{"ac": ac})
	}))
	t.Cleanup(srv.Close)
	return srv, &path
}

// TestADSBLolFetch verifies normalization of a v2 point row. adsb.lol
// already reports aviation units, so no conversion happens.
func TestADSBLolFetch(t *testing.T) {
	srv, path := adsbServer(t, []map[string]any{{
		"hex":       "a1b2c3",
		"flight":    "UAL2045 ",
		"r":         "N37502",
		"t":         "B39M",
		"lat":       46.1,
		"lon":       -123.1,
		"alt_baro":  11950,
		"gs":        310.4,
		"track":     88.5,
		"baro_rate": -640,
		"squawk":    "3452",
		"category":  "A3",
		"seen":      2.1,
		"seen_pos":  3.0,
		"dbFlags":   0,
	}})

	mil := &stubMil{verdicts: map[string]milcache.Verdict{"A1B2C3": milcache.Civilian}}
	clock := func() time.Time { return time.Unix(1700000000, 0) }
	c := NewADSBLol(mil, WithADSBLolBaseURL(srv.URL), WithADSBLolClock(clock))

	obs, err := c.Fetch(context.Background(), testCenter, 25)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if len(obs) != 1 {
		t.Fatalf("Expected 1 observation, got %d", len(obs))
	}

	o := obs[0]
	if o.Provider != "adsb_lol" {
		t.Errorf("Unexpected provider %q", o.Provider)
	}
	if o.Callsign != "UAL2045" || o.FlightNo != "UAL2045" {
		t.Errorf("Expected trimmed flight as callsign and flight number, got %q / %q", o.Callsign, o.FlightNo)
	}
	if o.Registration != "N37502" || o.AircraftType != "B39M" {
		t.Errorf("Identity fields not carried: %q %q", o.Registration, o.AircraftType)
	}
	if o.AltitudeFt == nil || *o.AltitudeFt != 11950 {
		t.Errorf("Expected altitude 11950, got %v", o.AltitudeFt)
	}
	if o.GroundSpeedKt == nil || *o.GroundSpeedKt != 310 {
		t.Errorf("Expected ground speed rounded to 310, got %v", o.GroundSpeedKt)
	}
	if o.VerticalRateFpm == nil || *o.VerticalRateFpm != -640 {
		t.Errorf("Expected vertical rate -640, got %v", o.VerticalRateFpm)
	}
	if o.AgeSec == nil || *o.AgeSec != 2.1 {
		t.Errorf("Expected explicit seen age 2.1, got %v", o.AgeSec)
	}
	if o.PositionTimestamp == nil || *o.PositionTimestamp != 1699999997 {
		t.Errorf("Expected position timestamp now-seen_pos, got %v", o.PositionTimestamp)
	}
	if o.IsMilitary != milcache.Civilian {
		t.Errorf("Expected verdict attached, got %v", o.IsMilitary)
	}
	if o.Extras["category"] != "A3" {
		t.Errorf("Expected category in extras, got %v", o.Extras)
	}

	if *path != "/v2/point/46.168689/-123.020309/25" {
		t.Errorf("Unexpected request path %s", *path)
	}
}

// TestADSBLolGroundAircraft verifies the "ground" altitude sentinel maps
// to on_ground with no altitude.
func TestADSBLolGroundAircraft(t *testing.T) {
	srv, _ := adsbServer(t, []map[string]any{{
		"hex":      "a1b2c3",
		"alt_baro": "ground",
		"seen":     0.5,
	}})

	c := NewADSBLol(nil, WithADSBLolBaseURL(srv.URL))
	obs, err := c.Fetch(context.Background(), testCenter, 25)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}

	o := obs[0]
	if o.OnGround == nil || !*o.OnGround {
		t.Error("Expected on_ground from altitude sentinel")
	}
	if o.AltitudeFt != nil {
		t.Errorf("Expected no altitude for grounded aircraft, got %v", o.AltitudeFt)
	}
}

// TestADSBLolRadiusCap verifies the endpoint's 250 NM ceiling.
func TestADSBLolRadiusCap(t *testing.T) {
	srv, path := adsbServer(t, nil)

	c := NewADSBLol(nil, WithADSBLolBaseURL(srv.URL))
	if _, err := c.Fetch(context.Background(), testCenter, 400); err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if *path != "/v2/point/46.168689/-123.020309/250" {
		t.Errorf("Expected radius capped at 250, got %s", *path)
	}
}

// TestADSBLolSkipsEmptyHex verifies rows without a hex are dropped.
func TestADSBLolSkipsEmptyHex(t *testing.T) {
	srv, _ := adsbServer(t, []map[string]any{
		{"hex": "", "flight": "GHOST"},
		{"hex": "abc123"},
	})

	c := NewADSBLol(nil, WithADSBLolBaseURL(srv.URL))
	obs, err := c.Fetch(context.Background(), testCenter, 25)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if len(obs) != 1 || obs[0].Hex != "abc123" {
		t.Errorf("Expected only the row with a hex, got %+v", obs)
	}
}
