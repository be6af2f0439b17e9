// Package catalog loads the JSONL reference datasets used for
// enrichment: aircraft types, airlines, airports and countries.
//
// Each file holds one JSON object per line. Missing files degrade to
// empty indexes so the tracker keeps running with reduced enrichment
// rather than failing at startup. All indexes are read-only after Load.
package catalog

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"
)

// Dataset file names inside the datasets directory.
const (
	aircraftFile  = "aircraft_types_full.jsonl"
	airlinesFile  = "airlines.jsonl"
	airportsFile  = "airports.jsonl"
	countriesFile = "countries.jsonl"
)

// Aircraft is one aircraft-type record keyed by ICAO type designator.
type Aircraft struct {
	ICAO         string   `json:"icao"`
	Name         string   `json:"name"`
	Manufacturer string   `json:"manufacturer"`
	Model        string   `json:"model"`
	Seats        int      `json:"seats"`
	IATA         []string `json:"iata"`
}

// Airline is one airline record, indexed by both ICAO and IATA code.
type Airline struct {
	ICAO        string `json:"icao"`
	IATA        string `json:"iata"`
	Name        string `json:"name"`
	Callsign    string `json:"callsign"`
	CountryCode string `json:"country_code"`
	CountryName string `json:"country_name"`
}

// Airport is one airport record keyed by IATA code.
type Airport struct {
	IATA        string  `json:"iata"`
	Name        string  `json:"name"`
	City        string  `json:"city"`
	Region      string  `json:"region"`
	CountryCode string  `json:"country_code"`
	CountryName string  `json:"country_name"`
	Lat         float64 `json:"lat"`
	Lon         float64 `json:"lon"`
	ElevationFt float64 `json:"elevation_ft"`
}

// Country is one country record keyed by 2-letter ISO code.
type Country struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// Catalog holds all reference indexes. Lookups return the zero-value
// record and false when the key is unknown.
type Catalog struct {
	aircraft       map[string]Aircraft
	airlinesByICAO map[string]Airline
	airlinesByIATA map[string]Airline
	airports       map[string]Airport
	countries      map[string]Country
}

// Load reads the four datasets from dir. Missing or partially corrupt
// files are logged and skipped; malformed lines within a file are
// skipped individually.
func Load(dir string) *Catalog {
	c := &Catalog{
		aircraft:       map[string]Aircraft{},
		airlinesByICAO: map[string]Airline{},
		airlinesByIATA: map[string]Airline{},
		airports:       map[string]Airport{},
		countries:      map[string]Country{},
	}

	loadJSONL(filepath.Join(dir, aircraftFile), func(a Aircraft) {
		if a.ICAO != "" {
			c.aircraft[a.ICAO] = a
		}
	})
	loadJSONL(filepath.Join(dir, airlinesFile), func(a Airline) {
		if a.ICAO != "" {
			c.airlinesByICAO[a.ICAO] = a
		}
		if a.IATA != "" {
			c.airlinesByIATA[a.IATA] = a
		}
	})
	loadJSONL(filepath.Join(dir, airportsFile), func(a Airport) {
		if a.IATA != "" {
			c.airports[a.IATA] = a
		}
	})
	loadJSONL(filepath.Join(dir, countriesFile), func(cc Country) {
		if cc.Code != "" {
			c.countries[cc.Code] = cc
		}
	})

	log.WithFields(log.Fields{
		"aircraft":  len(c.aircraft),
		"airlines":  len(c.airlinesByICAO),
		"airports":  len(c.airports),
		"countries": len(c.countries),
	}).Debug("reference catalogs loaded")

	return c
}

// AircraftByICAO looks up an aircraft type by its ICAO designator.
func (c *Catalog) AircraftByICAO(icao string) (Aircraft, bool) {
	a, ok := c.aircraft[icao]
	return a, ok
}

// AirlineByICAO looks up an airline by its 3-letter ICAO code.
func (c *Catalog) AirlineByICAO(icao string) (Airline, bool) {
	a, ok := c.airlinesByICAO[icao]
	return a, ok
}

// AirlineByIATA looks up an airline by its 2-letter IATA code.
func (c *Catalog) AirlineByIATA(iata string) (Airline, bool) {
	a, ok := c.airlinesByIATA[iata]
	return a, ok
}

// AirportByIATA looks up an airport by its 3-letter IATA code.
func (c *Catalog) AirportByIATA(iata string) (Airport, bool) {
	a, ok := c.airports[iata]
	return a, ok
}

// CountryByCode looks up a country by its 2-letter ISO code.
func (c *Catalog) CountryByCode(code string) (Country, bool) {
	cc, ok := c.countries[code]
	return cc, ok
}

// loadJSONL streams one JSONL file, invoking add for each decodable line.
func loadJSONL[T any](path string, add func(T)) {
	f, err := os.Open(path)
	if err != nil {
		log.WithField("path", path).Debug("dataset not present, index stays empty")
		return
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	// Some airport rows carry long name fields.
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec T
		if err := json.Unmarshal(line, &rec); err != nil {
			continue
		}
		add(rec)
	}
	if err := scanner.Err(); err != nil {
		log.WithField("path", path).WithError(err).Warn("dataset read aborted")
	}
}
