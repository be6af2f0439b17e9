package fuse

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/spacegeese/airtracker/internal/milcache"
	"github.com/spacegeese/airtracker/pkg/geo"
	"github.com/spacegeese/airtracker/pkg/provider"
)

func f(v float64) *float64 { return &v }

func fixedEngine(priority []string) *Engine {
	return NewEngine(priority, WithClock(func() time.Time { return time.Unix(1700000000, 0) }))
}

// TestFuseSingleProvider verifies a lone observation carries all its
// fields through with provenance.
func TestFuseSingleProvider(t *testing.T) {
	ts := int64(1699999995)
	obs := []provider.Observation{{
		Provider:          "opensky",
		Hex:               "ac82ec",
		Callsign:          "ASA123",
		OriginCountry:     "United States",
		Latitude:          f(46.0),
		Longitude:         f(-123.0),
		AltitudeFt:        f(10000),
		GroundSpeedKt:     f(389),
		TrackDeg:          f(270),
		AgeSec:            f(5),
		PositionTimestamp: &ts,
	}}

	planes := fixedEngine(nil).Fuse(obs)
	if len(planes) != 1 {
		t.Fatalf("Expected 1 plane, got %d", len(planes))
	}

	m := planes[0]
	if m.Hex != "AC82EC" {
		t.Errorf("Expected uppercased hex, got %q", m.Hex)
	}
	if len(m.Sources) != 1 || m.Sources[0] != "opensky" {
		t.Errorf("Unexpected sources %v", m.Sources)
	}
	if m.AltitudeFt == nil || *m.AltitudeFt != 10000 {
		t.Errorf("Expected altitude 10000, got %v", m.AltitudeFt)
	}
	if m.GroundSpeedKt == nil || *m.GroundSpeedKt != 389 {
		t.Errorf("Expected ground speed 389, got %v", m.GroundSpeedKt)
	}
	if m.FieldSources["latitude"] != "opensky" {
		t.Errorf("Expected latitude sourced from opensky, got %v", m.FieldSources)
	}
	if m.Callsign != "ASA123" || m.OriginCountry != "United States" {
		t.Errorf("Identity not carried: %q %q", m.Callsign, m.OriginCountry)
	}
	if m.PositionTimestamp == nil || *m.PositionTimestamp != ts {
		t.Errorf("Expected position timestamp %d, got %v", ts, m.PositionTimestamp)
	}
	if m.PositionAgeSec == nil || *m.PositionAgeSec != 5 {
		t.Errorf("Expected position age 5, got %v", m.PositionAgeSec)
	}
	if m.AgeOpenSkySec == nil || *m.AgeOpenSkySec != 5 {
		t.Errorf("Expected opensky age recorded, got %v", m.AgeOpenSkySec)
	}
	if m.AgeFR24Sec != nil || m.AgeADSBLolSec != nil {
		t.Error("Expected nil ages for absent providers")
	}
	if m.IsMilitary != nil {
		t.Errorf("Expected unknown military status, got %v", *m.IsMilitary)
	}
}

// TestFuseFreshnessWins verifies the field with the smallest age is
// selected regardless of priority.
func TestFuseFreshnessWins(t *testing.T) {
	obs := []provider.Observation{
		{Provider: "fr24", Hex: "A1B2C3", AltitudeFt: f(12000), AgeSec: f(9)},
		{Provider: "adsb_lol", Hex: "A1B2C3", AltitudeFt: f(11950), AgeSec: f(2)},
	}

	planes := fixedEngine([]string{"fr24", "adsb_lol", "opensky"}).Fuse(obs)
	m := planes[0]
	if *m.AltitudeFt != 11950 {
		t.Errorf("Expected fresher altitude 11950, got %d", *m.AltitudeFt)
	}
	if m.FieldSources["altitude_ft"] != "adsb_lol" {
		t.Errorf("Expected adsb_lol provenance, got %v", m.FieldSources)
	}
}

// TestFusePrioritySubsetKeepsFreshnessFirst verifies that a priority
// list covering only some providers never promotes a stale value over
// a fresher one from an unlisted provider.
func TestFusePrioritySubsetKeepsFreshnessFirst(t *testing.T) {
	obs := []provider.Observation{
		{Provider: "opensky", Hex: "A1B2C3", AltitudeFt: f(12000), AgeSec: f(9)},
		{Provider: "adsb_lol", Hex: "A1B2C3", AltitudeFt: f(11950), AgeSec: f(1)},
	}

	planes := fixedEngine([]string{"opensky"}).Fuse(obs)
	m := planes[0]
	if *m.AltitudeFt != 11950 {
		t.Errorf("Expected fresher altitude 11950, got %d", *m.AltitudeFt)
	}
	if m.FieldSources["altitude_ft"] != "adsb_lol" {
		t.Errorf("Expected adsb_lol provenance, got %v", m.FieldSources)
	}
}

// TestFuseTieBreakPriority verifies equal ages fall back to the
// configured priority order.
func TestFuseTieBreakPriority(t *testing.T) {
	obs := []provider.Observation{
		{Provider: "fr24", Hex: "A1B2C3", AltitudeFt: f(12000), AgeSec: f(4)},
		{Provider: "adsb_lol", Hex: "A1B2C3", AltitudeFt: f(11950), AgeSec: f(4)},
	}

	planes := fixedEngine([]string{"fr24", "adsb_lol", "opensky"}).Fuse(obs)
	m := planes[0]
	if *m.AltitudeFt != 12000 {
		t.Errorf("Expected priority winner 12000, got %d", *m.AltitudeFt)
	}
	if m.FieldSources["altitude_ft"] != "fr24" {
		t.Errorf("Expected fr24 provenance on tie, got %v", m.FieldSources)
	}

	// Same data, reversed priority.
	planes = fixedEngine([]string{"adsb_lol", "fr24", "opensky"}).Fuse(obs)
	if *planes[0].AltitudeFt != 11950 {
		t.Errorf("Expected reversed priority winner 11950, got %d", *planes[0].AltitudeFt)
	}
}

// TestFuseDropsUnusableHexes verifies empty and UNKNOWN hexes vanish.
func TestFuseDropsUnusableHexes(t *testing.T) {
	obs := []provider.Observation{
		{Provider: "adsb_lol", Hex: ""},
		{Provider: "adsb_lol", Hex: "unknown"},
		{Provider: "adsb_lol", Hex: "abc123"},
	}
	planes := fixedEngine(nil).Fuse(obs)
	if len(planes) != 1 || planes[0].Hex != "ABC123" {
		t.Errorf("Expected only ABC123 to survive, got %+v", planes)
	}
}

// TestFuseIdentityPrecedence verifies the fixed per-field ordering.
func TestFuseIdentityPrecedence(t *testing.T) {
	obs := []provider.Observation{
		{
			Provider: "opensky", Hex: "A1B2C3",
			Callsign: "OSKCALL", AircraftType: "B77W", OriginCountry: "Germany",
		},
		{
			Provider: "adsb_lol", Hex: "A1B2C3",
			FlightNo: "DLH450", Callsign: "DLH450",
			Registration: "D-ABYT", AircraftType: "B748",
		},
		{
			Provider: "fr24", Hex: "A1B2C3",
			Callsign: "DLH450X", FlightNo: "LH450",
			Registration: "D-ABYA", AircraftType: "B744", AirlineICAO: "DLH",
			OriginIATA: "FRA", DestinationIATA: "LAX",
		},
	}

	m := fixedEngine(nil).Fuse(obs)[0]
	if m.Registration != "D-ABYA" {
		t.Errorf("Expected fr24 registration preferred, got %q", m.Registration)
	}
	if m.AircraftType != "B748" {
		t.Errorf("Expected adsb_lol aircraft type preferred, got %q", m.AircraftType)
	}
	if m.AirlineICAO != "DLH" {
		t.Errorf("Expected fr24 airline, got %q", m.AirlineICAO)
	}
	if m.Callsign != "DLH450" {
		t.Errorf("Expected adsb_lol flight as callsign, got %q", m.Callsign)
	}
	if m.FlightNo != "LH450" {
		t.Errorf("Expected IATA-shaped fr24 flight number, got %q", m.FlightNo)
	}
	if m.OriginIATA != "FRA" || m.DestinationIATA != "LAX" {
		t.Errorf("Expected fr24 route, got %q -> %q", m.OriginIATA, m.DestinationIATA)
	}
	if m.OriginCountry != "Germany" {
		t.Errorf("Expected opensky origin country, got %q", m.OriginCountry)
	}
}

// TestFuseMilitaryMerge verifies the three-valued fold.
func TestFuseMilitaryMerge(t *testing.T) {
	tests := []struct {
		name     string
		verdicts []milcache.Verdict
		expected *bool
	}{
		{"Any true wins", []milcache.Verdict{milcache.Civilian, milcache.Military}, milcache.Military.Bool()},
		{"False when no true", []milcache.Verdict{milcache.Unknown, milcache.Civilian}, milcache.Civilian.Bool()},
		{"Unknown when nothing known", []milcache.Verdict{milcache.Unknown, milcache.Unknown}, nil},
	}

	providers := []string{"adsb_lol", "fr24"}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var obs []provider.Observation
			for i, v := range tt.verdicts {
				obs = append(obs, provider.Observation{
					Provider: providers[i], Hex: "ABC123", IsMilitary: v,
				})
			}
			m := fixedEngine(nil).Fuse(obs)[0]
			switch {
			case tt.expected == nil && m.IsMilitary != nil:
				t.Errorf("Expected unknown, got %v", *m.IsMilitary)
			case tt.expected != nil && (m.IsMilitary == nil || *m.IsMilitary != *tt.expected):
				t.Errorf("Expected %v, got %v", *tt.expected, m.IsMilitary)
			}
		})
	}
}

// TestFuseExtrasFlattening verifies provider diagnostics surface as
// namespaced top-level JSON keys.
func TestFuseExtrasFlattening(t *testing.T) {
	obs := []provider.Observation{{
		Provider: "adsb_lol", Hex: "ABC123",
		Extras: map[string]any{"category": "A3"},
	}}

	m := fixedEngine(nil).Fuse(obs)[0]
	data, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	var obj map[string]any
	if err := json.Unmarshal(data, &obj); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if obj["extras_adsb_lol_category"] != "A3" {
		t.Errorf("Expected flattened extras key, got keys %v", obj)
	}
	if _, exists := obj["Extras"]; exists {
		t.Error("Extras map itself must not serialize")
	}
}

// TestFuseDeterministic verifies identical input produces identical
// output (modulo nothing; full equality on the JSON form).
func TestFuseDeterministic(t *testing.T) {
	obs := []provider.Observation{
		{Provider: "adsb_lol", Hex: "ABC123", AltitudeFt: f(9000), AgeSec: f(1), Extras: map[string]any{"category": "A2"}},
		{Provider: "fr24", Hex: "ABC123", AltitudeFt: f(9100), AgeSec: f(1), Extras: map[string]any{"radar": "X"}},
	}

	e := fixedEngine(nil)
	a, _ := json.Marshal(e.Fuse(obs))
	b, _ := json.Marshal(e.Fuse(obs))
	if string(a) != string(b) {
		t.Error("Fusion output not deterministic across runs")
	}
}

// TestAnnotateRange verifies distance/bearing rounding and the
// in-radius flag.
func TestAnnotateRange(t *testing.T) {
	center := geo.Point{Latitude: 46.168689, Longitude: -123.020309}
	planes := []*Merged{
		{Hex: "AC82EC", Latitude: f(46.0), Longitude: f(-123.0)},
		{Hex: "NOPOS1"},
	}

	AnnotateRange(planes, center, 50)

	m := planes[0]
	if m.DistanceNM == nil || *m.DistanceNM != 10.163 {
		t.Errorf("Expected distance 10.163, got %v", m.DistanceNM)
	}
	if m.BearingDeg == nil || *m.BearingDeg != 175.2 {
		t.Errorf("Expected bearing 175.2, got %v", m.BearingDeg)
	}
	if m.WithinRadius == nil || !*m.WithinRadius {
		t.Error("Expected within radius at 50 NM")
	}
	if planes[1].DistanceNM != nil || planes[1].WithinRadius != nil {
		t.Error("Expected no range fields without a position")
	}
}

// TestSort verifies ordering by freshest age, then distance, then hex.
func TestSort(t *testing.T) {
	planes := []*Merged{
		{Hex: "CCC333", AgeADSBLolSec: f(9), DistanceNM: f(1)},
		{Hex: "BBB222", AgeFR24Sec: f(2), DistanceNM: f(8)},
		{Hex: "AAA111", AgeOpenSkySec: f(2), DistanceNM: f(3)},
		{Hex: "DDD444"},
	}

	Sort(planes)

	want := []string{"AAA111", "BBB222", "CCC333", "DDD444"}
	for i, hex := range want {
		if planes[i].Hex != hex {
			t.Fatalf("Position %d: expected %s, got %s", i, hex, planes[i].Hex)
		}
	}
}
