// Package fuse reconciles per-provider aircraft observations into one
// authoritative record per hex.
//
// Telemetry fields are chosen per field by freshness: the provider with
// the smallest age wins, with ties broken by the configured provider
// priority. Identity fields (registration, type, callsign, route) use a
// fixed per-field precedence instead, because freshness says nothing
// about which provider has the better registry data.
package fuse

import (
	"math"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/spacegeese/airtracker/internal/milcache"
	"github.com/spacegeese/airtracker/pkg/config"
	"github.com/spacegeese/airtracker/pkg/geo"
	"github.com/spacegeese/airtracker/pkg/provider"
)

// IATAFlightRE matches commercial flight designators like AS1234 or
// KL605A. Used both for flight-number precedence and to gate airline
// inference during enrichment.
var IATAFlightRE = regexp.MustCompile(`^[A-Z0-9]{2,3}\d{1,4}[A-Z]?$`)

// Engine fuses one cycle's observations.
type Engine struct {
	priority []string
	now      func() time.Time
}

// EngineOption adjusts engine construction.
type EngineOption func(*Engine)

// WithClock overrides the time source (used by tests).
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) { e.now = now }
}

// NewEngine creates a fusion engine with the given tie-break priority.
// An empty priority falls back to the default order.
func NewEngine(priority []string, opts ...EngineOption) *Engine {
	if len(priority) == 0 {
		priority = config.DefaultMergePriority
	}
	e := &Engine{
		priority: append([]string(nil), priority...),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Fuse groups observations by uppercased hex and merges each group into
// one record. Observations without a usable hex are dropped. The result
// is unsorted; call Sort after range annotation.
func (e *Engine) Fuse(obs []provider.Observation) []*Merged {
	nowTS := e.now().Unix()

	groups := map[string]map[string]provider.Observation{}
	var order []string
	for _, o := range obs {
		hex := strings.ToUpper(strings.TrimSpace(o.Hex))
		if hex == "" || hex == "UNKNOWN" {
			continue
		}
		g, ok := groups[hex]
		if !ok {
			g = map[string]provider.Observation{}
			groups[hex] = g
			order = append(order, hex)
		}
		g[o.Provider] = o
	}

	planes := make([]*Merged, 0, len(order))
	for _, hex := range order {
		planes = append(planes, e.mergeOne(nowTS, hex, groups[hex]))
	}
	return planes
}

// mergeOne builds the fused record for one hex.
func (e *Engine) mergeOne(nowTS int64, hex string, group map[string]provider.Observation) *Merged {
	m := &Merged{
		Hex:             hex,
		MergedTimestamp: nowTS,
		FieldSources:    map[string]string{},
	}
	for p := range group {
		m.Sources = append(m.Sources, p)
	}
	sort.Strings(m.Sources)

	// Telemetry, freshest value per field.
	var latSrc, lonSrc string
	if v, src, ok := pick(group, e.priority, func(o provider.Observation) (float64, bool) {
		return deref(o.Latitude)
	}); ok {
		m.Latitude, latSrc = &v, src
		m.FieldSources["latitude"] = src
	}
	if v, src, ok := pick(group, e.priority, func(o provider.Observation) (float64, bool) {
		return deref(o.Longitude)
	}); ok {
		m.Longitude, lonSrc = &v, src
		m.FieldSources["longitude"] = src
	}
	if v, src, ok := pick(group, e.priority, func(o provider.Observation) (float64, bool) {
		return deref(o.AltitudeFt)
	}); ok {
		alt := int(math.Round(v))
		m.AltitudeFt = &alt
		m.FieldSources["altitude_ft"] = src
	}
	if v, src, ok := pick(group, e.priority, func(o provider.Observation) (float64, bool) {
		return deref(o.VerticalRateFpm)
	}); ok {
		vr := int(math.Round(v))
		m.VerticalRateFpm = &vr
		m.FieldSources["vertical_rate_fpm"] = src
	}
	if v, src, ok := pick(group, e.priority, func(o provider.Observation) (float64, bool) {
		return deref(o.GroundSpeedKt)
	}); ok {
		gs := int(math.Round(v))
		m.GroundSpeedKt = &gs
		m.FieldSources["ground_speed_kt"] = src
	}
	if v, src, ok := pick(group, e.priority, func(o provider.Observation) (float64, bool) {
		return deref(o.TrackDeg)
	}); ok {
		m.TrackDeg = &v
		m.FieldSources["track_deg"] = src
	}
	if v, src, ok := pick(group, e.priority, func(o provider.Observation) (string, bool) {
		if o.Squawk == nil || strings.TrimSpace(*o.Squawk) == "" {
			return "", false
		}
		return strings.TrimSpace(*o.Squawk), true
	}); ok {
		m.Squawk = &v
		m.FieldSources["squawk"] = src
	}
	if v, src, ok := pick(group, e.priority, func(o provider.Observation) (bool, bool) {
		if o.OnGround == nil {
			return false, false
		}
		return *o.OnGround, true
	}); ok {
		m.OnGround = &v
		m.FieldSources["on_ground"] = src
	}
	if len(m.FieldSources) == 0 {
		m.FieldSources = nil
	}

	// Position time and age come from whichever provider won the
	// position.
	posSrc := latSrc
	if posSrc == "" {
		posSrc = lonSrc
	}
	if posSrc != "" {
		if ts := group[posSrc].PositionTimestamp; ts != nil {
			m.PositionTimestamp = ts
			age := float64(nowTS - *ts)
			m.PositionAgeSec = &age
		}
	}

	e.mergeIdentity(m, group)

	m.IsMilitary = mergeMilitary(group)

	if o, ok := group[config.ProviderADSBLol]; ok {
		m.AgeADSBLolSec = o.AgeSec
	}
	if o, ok := group[config.ProviderFR24]; ok {
		m.AgeFR24Sec = o.AgeSec
	}
	if o, ok := group[config.ProviderOpenSky]; ok {
		m.AgeOpenSkySec = o.AgeSec
	}

	// Provider diagnostics survive under namespaced keys; first writer
	// wins so the flattened object stays deterministic.
	for _, p := range m.Sources {
		for k, v := range group[p].Extras {
			key := "extras_" + p + "_" + k
			if m.Extras == nil {
				m.Extras = map[string]any{}
			}
			if _, exists := m.Extras[key]; !exists {
				m.Extras[key] = v
			}
		}
	}

	return m
}

// mergeIdentity applies the fixed per-field provider precedence.
func (e *Engine) mergeIdentity(m *Merged, group map[string]provider.Observation) {
	osk := group[config.ProviderOpenSky]
	lol := group[config.ProviderADSBLol]
	fr := group[config.ProviderFR24]

	m.OriginCountry = osk.OriginCountry

	m.Registration = firstNonEmpty(fr.Registration, lol.Registration)
	m.AircraftType = firstNonEmpty(lol.AircraftType, fr.AircraftType, osk.AircraftType)
	m.AirlineICAO = fr.AirlineICAO
	m.Callsign = firstNonEmpty(lol.FlightNo, lol.Callsign, fr.Callsign, osk.Callsign)

	// Flight number prefers whichever provider's value looks like a
	// commercial designator.
	switch {
	case IATAFlightRE.MatchString(fr.FlightNo):
		m.FlightNo = fr.FlightNo
	case IATAFlightRE.MatchString(lol.FlightNo):
		m.FlightNo = lol.FlightNo
	default:
		m.FlightNo = firstNonEmpty(fr.FlightNo, lol.FlightNo)
	}

	if fr.OriginIATA != "" || fr.DestinationIATA != "" {
		m.OriginIATA = fr.OriginIATA
		m.DestinationIATA = fr.DestinationIATA
	}
}

// mergeMilitary folds per-provider verdicts: any true wins, then any
// false, otherwise unknown.
func mergeMilitary(group map[string]provider.Observation) *bool {
	sawFalse := false
	for _, o := range group {
		switch o.IsMilitary {
		case milcache.Military:
			return milcache.Military.Bool()
		case milcache.Civilian:
			sawFalse = true
		}
	}
	if sawFalse {
		return milcache.Civilian.Bool()
	}
	return nil
}

// pick selects the freshest value for one field across providers,
// breaking age ties by priority order. Reports the winning provider.
func pick[T any](group map[string]provider.Observation, priority []string, get func(provider.Observation) (T, bool)) (T, string, bool) {
	values := map[string]T{}
	ages := map[string]float64{}
	for p, o := range group {
		v, ok := get(o)
		if !ok {
			continue
		}
		values[p] = v
		if o.AgeSec != nil {
			ages[p] = *o.AgeSec
		} else {
			ages[p] = math.Inf(1)
		}
	}

	var zero T
	if len(values) == 0 {
		return zero, "", false
	}

	minAge := math.Inf(1)
	for p := range values {
		if ages[p] < minAge {
			minAge = ages[p]
		}
	}

	freshest := map[string]bool{}
	for p := range values {
		if ages[p] == minAge {
			freshest[p] = true
		}
	}

	for _, p := range priority {
		if freshest[p] {
			return values[p], p, true
		}
	}
	// No priority provider holds the freshest value; pick among the
	// freshest deterministically.
	var names []string
	for p := range freshest {
		names = append(names, p)
	}
	sort.Strings(names)
	return values[names[0]], names[0], true
}

// AnnotateRange attaches distance, bearing and the in-radius flag to
// every plane with a position. The in-radius test uses the unrounded
// distance.
func AnnotateRange(planes []*Merged, center geo.Point, radiusNM float64) {
	for _, m := range planes {
		if m.Latitude == nil || m.Longitude == nil {
			continue
		}
		pos := geo.Point{Latitude: *m.Latitude, Longitude: *m.Longitude}
		d := geo.DistanceNM(center, pos)
		b := geo.Round1(geo.BearingDeg(center, pos))
		dr := geo.Round3(d)
		within := d <= radiusNM

		m.DistanceNM = &dr
		m.BearingDeg = &b
		m.WithinRadius = &within
	}
}

// Sort orders planes by freshest provider age, then distance, then hex,
// so the most current and closest aircraft lead the published list.
func Sort(planes []*Merged) {
	sort.SliceStable(planes, func(i, j int) bool {
		ai, aj := minAge(planes[i]), minAge(planes[j])
		if ai != aj {
			return ai < aj
		}
		di, dj := sortDistance(planes[i]), sortDistance(planes[j])
		if di != dj {
			return di < dj
		}
		return planes[i].Hex < planes[j].Hex
	})
}

func minAge(m *Merged) float64 {
	min := math.Inf(1)
	for _, a := range []*float64{m.AgeADSBLolSec, m.AgeFR24Sec, m.AgeOpenSkySec} {
		if a != nil && *a < min {
			min = *a
		}
	}
	return min
}

func sortDistance(m *Merged) float64 {
	if m.DistanceNM == nil {
		return math.Inf(1)
	}
	return *m.DistanceNM
}

func deref(v *float64) (float64, bool) {
	if v == nil {
		return 0, false
	}
	return *v, true
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
