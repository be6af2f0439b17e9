// Package enrich attaches reference data to fused aircraft records:
// catalog lookups, seat capacity, classification, logo and flag URLs,
// and destination ETA. It also selects the nearest and nearest
// interesting aircraft for publication.
//
// Enrichment is idempotent; every output is a pure function of the
// record's base fields and the loaded catalogs.
package enrich

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spacegeese/airtracker/internal/catalog"
	"github.com/spacegeese/airtracker/internal/fuse"
	"github.com/spacegeese/airtracker/pkg/config"
	"github.com/spacegeese/airtracker/pkg/geo"
)

// Classification labels.
const (
	ClassMilitary   = "Military"
	ClassPrivate    = "Private"
	ClassCommercial = "Commercial"
)

// Enricher applies reference-data enrichment to merged records.
type Enricher struct {
	catalog      *catalog.Catalog
	privateSeats int
	datasetsDir  string
	logoBaseURL  string
	flagBaseURL  string

	// fileExists is swappable for tests.
	fileExists func(string) bool
}

// New creates an enricher over the loaded catalogs.
func New(cat *catalog.Catalog, cfg *config.Config) *Enricher {
	return &Enricher{
		catalog:      cat,
		privateSeats: cfg.PrivateSeats,
		datasetsDir:  cfg.DatasetsDir,
		logoBaseURL:  cfg.AirlineLogoBaseURL,
		flagBaseURL:  cfg.CountryFlagBaseURL,
		fileExists: func(path string) bool {
			_, err := os.Stat(path)
			return err == nil
		},
	}
}

// Enrich fills in all enrichment fields on m.
func (e *Enricher) Enrich(m *fuse.Merged) {
	lookups := &fuse.Lookups{}

	e.enrichAircraft(m, lookups)
	e.enrichAirline(m, lookups)
	lookups.OriginAirport = e.airportLookup(m.OriginIATA)
	lookups.DestinationAirport = e.airportLookup(m.DestinationIATA)

	if lookups.Aircraft != nil || lookups.Airline != nil ||
		lookups.OriginAirport != nil || lookups.DestinationAirport != nil {
		m.Lookups = lookups
	} else {
		m.Lookups = nil
	}

	e.classify(m)
	e.attachLogo(m)
	e.attachFlag(m)
	e.attachETA(m)
}

// enrichAircraft resolves the type catalog entry and seat capacity.
// Souls fields are always published, "N/A" when nothing is known.
func (e *Enricher) enrichAircraft(m *fuse.Merged, lookups *fuse.Lookups) {
	m.SoulsOnBoardMax = nil
	m.SoulsOnBoardMaxEstimated = false
	m.SoulsOnBoardMaxText = "N/A"

	icaoType := strings.TrimSpace(m.AircraftType)
	if icaoType == "" {
		return
	}

	var seats int
	if ac, ok := e.catalog.AircraftByICAO(icaoType); ok {
		al := &fuse.AircraftLookup{
			ICAO:         icaoType,
			Name:         firstNonEmpty(ac.Name, ac.Model, icaoType),
			Manufacturer: ac.Manufacturer,
			Model:        ac.Model,
			IATAAliases:  ac.IATA,
			LookupStatus: "found",
		}
		if al.IATAAliases == nil {
			al.IATAAliases = []string{}
		}
		if ac.Seats > 0 {
			s := ac.Seats
			al.SeatsMax = &s
			seats = s
		}
		lookups.Aircraft = al
	} else {
		lookups.Aircraft = &fuse.AircraftLookup{
			ICAO:         icaoType,
			Name:         icaoType,
			IATAAliases:  []string{},
			LookupStatus: "not_found",
		}
	}

	if seats > 0 {
		m.SoulsOnBoardMax = &seats
		m.SoulsOnBoardMaxEstimated = false
		m.SoulsOnBoardMaxText = fmt.Sprintf("%d", seats)
		return
	}
	if est, ok := estimateSeats(icaoType); ok {
		m.SoulsOnBoardMax = &est
		m.SoulsOnBoardMaxEstimated = true
		m.SoulsOnBoardMaxText = fmt.Sprintf("%d", est)
	}
}

// enrichAirline resolves the airline by ICAO code, falling back to the
// IATA prefix of a plausible flight number.
func (e *Enricher) enrichAirline(m *fuse.Merged, lookups *fuse.Lookups) {
	var airline catalog.Airline
	found := false

	if code := strings.TrimSpace(m.AirlineICAO); code != "" {
		airline, found = e.catalog.AirlineByICAO(code)
	}
	if !found {
		airline, found = e.airlineFromFlightNo(m.FlightNo)
	}
	if !found {
		m.AirlineIATA = ""
		return
	}

	lookups.Airline = &fuse.AirlineLookup{
		ICAO:        airline.ICAO,
		IATA:        airline.IATA,
		Name:        airline.Name,
		Callsign:    airline.Callsign,
		CountryCode: airline.CountryCode,
		CountryName: airline.CountryName,
	}
	m.AirlineIATA = airline.IATA
}

// airlineFromFlightNo infers the airline from a flight number's IATA
// prefix. Only values shaped like a commercial designator qualify, so
// military callsigns are not misread as airlines.
func (e *Enricher) airlineFromFlightNo(flightNo string) (catalog.Airline, bool) {
	s := strings.TrimSpace(flightNo)
	if !fuse.IATAFlightRE.MatchString(s) {
		return catalog.Airline{}, false
	}
	digit := strings.IndexFunc(s, func(r rune) bool { return r >= '0' && r <= '9' })
	if digit < 2 {
		return catalog.Airline{}, false
	}
	return e.catalog.AirlineByIATA(s[:digit])
}

// airportLookup resolves an airport by IATA, with a country-name
// fallback through the country index.
func (e *Enricher) airportLookup(iata string) *fuse.AirportLookup {
	iata = strings.TrimSpace(iata)
	if iata == "" {
		return nil
	}
	ap, ok := e.catalog.AirportByIATA(iata)
	if !ok {
		return nil
	}
	out := &fuse.AirportLookup{
		IATA:        ap.IATA,
		Name:        ap.Name,
		City:        ap.City,
		Region:      ap.Region,
		CountryCode: ap.CountryCode,
		CountryName: ap.CountryName,
		Lat:         ap.Lat,
		Lon:         ap.Lon,
		ElevationFt: ap.ElevationFt,
	}
	if out.CountryName == "" && out.CountryCode != "" {
		if c, ok := e.catalog.CountryByCode(out.CountryCode); ok {
			out.CountryName = c.Name
		}
	}
	return out
}

// classify labels the aircraft Military, Private, or Commercial. An
// aircraft with no known or estimable seat count stays unclassified.
func (e *Enricher) classify(m *fuse.Merged) {
	if m.IsMilitary != nil && *m.IsMilitary {
		m.Classification = ClassMilitary
		return
	}

	seats := 0
	if m.SoulsOnBoardMax != nil {
		seats = *m.SoulsOnBoardMax
	} else if est, ok := estimateSeats(strings.TrimSpace(m.AircraftType)); ok {
		seats = est
	}
	if seats == 0 {
		m.Classification = ""
		return
	}
	if seats <= e.privateSeats {
		m.Classification = ClassPrivate
	} else {
		m.Classification = ClassCommercial
	}
}

// attachLogo emits logo fields when a logo asset exists for the
// airline. The resolver key prefers the ICAO code, translating an IATA
// code through the catalog when that is all we have.
func (e *Enricher) attachLogo(m *fuse.Merged) {
	m.AirlineLogoCode = ""
	m.AirlineLogoPath = ""
	m.AirlineLogoURL = ""

	code := strings.TrimSpace(m.AirlineICAO)
	if code == "" && m.AirlineIATA != "" {
		if al, ok := e.catalog.AirlineByIATA(m.AirlineIATA); ok {
			code = al.ICAO
		}
	}
	if code == "" {
		return
	}
	code = strings.ToUpper(code)

	name := "airline_logo_" + code + ".png"
	path := filepath.Join(e.datasetsDir, "airline_logos", name)
	if !e.fileExists(path) {
		return
	}
	m.AirlineLogoCode = code
	m.AirlineLogoPath = path
	m.AirlineLogoURL = e.logoBaseURL + "/airline_logo_" + code + ".bmp"
}

// attachFlag picks a country flag from the route. International
// destinations win over a US origin; otherwise the origin's flag shows.
func (e *Enricher) attachFlag(m *fuse.Merged) {
	m.CountryFlagCode = ""
	m.CountryFlagSource = ""
	m.CountryFlagURL = ""

	var origin, dest string
	if m.Lookups != nil {
		if m.Lookups.OriginAirport != nil {
			origin = strings.ToUpper(m.Lookups.OriginAirport.CountryCode)
		}
		if m.Lookups.DestinationAirport != nil {
			dest = strings.ToUpper(m.Lookups.DestinationAirport.CountryCode)
		}
	}

	var code, source string
	switch {
	case origin != "" && dest != "":
		if dest != "US" && (origin == "US" || dest != origin) {
			code, source = dest, "destination"
		} else {
			code, source = origin, "origin"
		}
	case dest != "":
		code, source = dest, "destination"
	case origin != "":
		code, source = origin, "origin"
	}

	if len(code) != 2 {
		return
	}
	m.CountryFlagCode = code
	m.CountryFlagSource = source
	m.CountryFlagURL = e.flagBaseURL + "/country_flag_" + code + ".png"
}

// attachETA computes remaining distance and ETA to the destination
// airport when position, a positive ground speed, and destination
// coordinates are all known.
func (e *Enricher) attachETA(m *fuse.Merged) {
	m.RemainingNM = nil
	m.ETAMin = nil

	if m.Latitude == nil || m.Longitude == nil || m.GroundSpeedKt == nil || *m.GroundSpeedKt <= 0 {
		return
	}
	destIATA := strings.TrimSpace(m.DestinationIATA)
	if destIATA == "" {
		return
	}

	var destLat, destLon float64
	haveDest := false
	if m.Lookups != nil && m.Lookups.DestinationAirport != nil {
		destLat = m.Lookups.DestinationAirport.Lat
		destLon = m.Lookups.DestinationAirport.Lon
		haveDest = destLat != 0 || destLon != 0
	}
	if !haveDest {
		ap, ok := e.catalog.AirportByIATA(destIATA)
		if !ok {
			return
		}
		destLat, destLon = ap.Lat, ap.Lon
		haveDest = destLat != 0 || destLon != 0
	}
	if !haveDest {
		return
	}

	remaining := geo.Round3(geo.DistanceNM(
		geo.Point{Latitude: *m.Latitude, Longitude: *m.Longitude},
		geo.Point{Latitude: destLat, Longitude: destLon},
	))
	eta := geo.Round1(remaining / float64(*m.GroundSpeedKt) * 60)

	m.RemainingNM = &remaining
	m.ETAMin = &eta
}

// Nearest returns the minimum-distance aircraft, or nil when no record
// has a computed distance.
func Nearest(planes []*fuse.Merged) *fuse.Merged {
	var best *fuse.Merged
	for _, m := range planes {
		if m.DistanceNM == nil {
			continue
		}
		if best == nil || *m.DistanceNM < *best.DistanceNM {
			best = m
		}
	}
	return best
}

// NearestInteresting returns the closest Military or Commercial
// aircraft. A military aircraft supersedes a commercial one only when
// it is at least as close.
func NearestInteresting(planes []*fuse.Merged) *fuse.Merged {
	var bestMil, bestCom *fuse.Merged
	for _, m := range planes {
		if m.DistanceNM == nil {
			continue
		}
		switch m.Classification {
		case ClassMilitary:
			if bestMil == nil || *m.DistanceNM < *bestMil.DistanceNM {
				bestMil = m
			}
		case ClassCommercial:
			if bestCom == nil || *m.DistanceNM < *bestCom.DistanceNM {
				bestCom = m
			}
		}
	}
	switch {
	case bestMil == nil:
		return bestCom
	case bestCom == nil:
		return bestMil
	case *bestMil.DistanceNM <= *bestCom.DistanceNM:
		return bestMil
	default:
		return bestCom
	}
}

// scaffoldDefaults are the keys the display firmware reads on every
// selected-aircraft payload; missing or null values are replaced so the
// schema never shifts under the consumer.
var scaffoldDefaults = map[string]any{
	"hex": "", "registration": "", "callsign": "", "aircraft_type": "",
	"airline_icao": "", "airline_iata": "", "origin_iata": "", "destination_iata": "",
	"classification": "", "airline_logo_url": "", "airline_logo_path": "", "airline_logo_code": "",
	"souls_on_board_max_text": "N/A", "remaining_nm": 0.0, "eta_min": 0.0,
	"country_flag_url": "", "country_flag_code": "", "country_flag_source": "",
}

// ScaffoldedJSON serializes a selected aircraft with the default-valued
// field set guaranteed present.
func ScaffoldedJSON(m *fuse.Merged) ([]byte, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	var obj map[string]any
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, err
	}
	for key, def := range scaffoldDefaults {
		if v, ok := obj[key]; !ok || v == nil {
			obj[key] = def
		}
	}
	return json.Marshal(obj)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
