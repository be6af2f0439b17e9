package fuse

import "encoding/json"

// AircraftLookup is the catalog result for an ICAO aircraft type. When
// the type is not in the catalog, LookupStatus is "not_found" and Name
// falls back to the raw code so displays can still render something.
type AircraftLookup struct {
	ICAO         string   `json:"icao"`
	Name         string   `json:"name"`
	Manufacturer string   `json:"manufacturer,omitempty"`
	Model        string   `json:"model,omitempty"`
	SeatsMax     *int     `json:"seats_max"`
	IATAAliases  []string `json:"iata_aliases"`
	LookupStatus string   `json:"lookup_status"`
}

// AirlineLookup is the catalog result for an airline.
type AirlineLookup struct {
	ICAO        string `json:"icao"`
	IATA        string `json:"iata"`
	Name        string `json:"name"`
	Callsign    string `json:"callsign,omitempty"`
	CountryCode string `json:"country_code,omitempty"`
	CountryName string `json:"country_name,omitempty"`
}

// AirportLookup is the catalog result for an airport.
type AirportLookup struct {
	IATA        string  `json:"iata"`
	Name        string  `json:"name"`
	City        string  `json:"city,omitempty"`
	Region      string  `json:"region,omitempty"`
	CountryCode string  `json:"country_code,omitempty"`
	CountryName string  `json:"country_name,omitempty"`
	Lat         float64 `json:"lat"`
	Lon         float64 `json:"lon"`
	ElevationFt float64 `json:"elevation_ft"`
}

// Lookups groups the reference-data results attached by enrichment.
type Lookups struct {
	Aircraft           *AircraftLookup `json:"aircraft,omitempty"`
	Airline            *AirlineLookup  `json:"airline,omitempty"`
	OriginAirport      *AirportLookup  `json:"origin_airport,omitempty"`
	DestinationAirport *AirportLookup  `json:"destination_airport,omitempty"`
}

// Media holds image URLs attached by the media enricher. The zipline
// keys are consumed verbatim by the display firmware.
type Media struct {
	PlaneImage      string   `json:"plane_image,omitempty"`
	Thumbnails      []string `json:"thumbnails,omitempty"`
	ZiplineOriginal string   `json:"plane_image_zipline_original,omitempty"`
	ZiplineESP32    string   `json:"plane_image_zipline_esp32,omitempty"`
}

// HistoryRow is one recent flight of the aircraft, shaped for the
// display's flight-history panel.
type HistoryRow struct {
	Flight       string `json:"flight,omitempty"`
	Origin       string `json:"origin,omitempty"`
	Destination  string `json:"destination,omitempty"`
	Date         string `json:"date,omitempty"`
	BlockTime    string `json:"block_time_hhmm,omitempty"`
	STD          string `json:"departure_time_hhmm,omitempty"`
	ATD          string `json:"actual_departure_time_hhmm,omitempty"`
	STA          string `json:"arrival_time_hhmm,omitempty"`
	Status       string `json:"status_text,omitempty"`
	ArrOrETAHHMM string `json:"arr_or_eta_hhmm,omitempty"`
}

// Merged is the fused per-aircraft record, one per hex per snapshot.
// Telemetry pointers are nil when no provider supplied the field.
type Merged struct {
	Hex             string   `json:"hex"`
	MergedTimestamp int64    `json:"merged_timestamp"`
	Sources         []string `json:"sources"`

	Latitude        *float64 `json:"latitude,omitempty"`
	Longitude       *float64 `json:"longitude,omitempty"`
	AltitudeFt      *int     `json:"altitude_ft,omitempty"`
	VerticalRateFpm *int     `json:"vertical_rate_fpm,omitempty"`
	GroundSpeedKt   *int     `json:"ground_speed_kt,omitempty"`
	TrackDeg        *float64 `json:"track_deg,omitempty"`
	Squawk          *string  `json:"squawk,omitempty"`
	OnGround        *bool    `json:"on_ground,omitempty"`

	// FieldSources records which provider won each telemetry field.
	FieldSources map[string]string `json:"field_sources,omitempty"`

	PositionTimestamp *int64   `json:"position_timestamp,omitempty"`
	PositionAgeSec    *float64 `json:"position_age_sec,omitempty"`

	DistanceNM   *float64 `json:"distance_nm,omitempty"`
	BearingDeg   *float64 `json:"bearing_deg,omitempty"`
	WithinRadius *bool    `json:"within_radius,omitempty"`

	OriginCountry   string `json:"origin_country,omitempty"`
	Registration    string `json:"registration,omitempty"`
	AircraftType    string `json:"aircraft_type,omitempty"`
	AirlineICAO     string `json:"airline_icao,omitempty"`
	AirlineIATA     string `json:"airline_iata,omitempty"`
	Callsign        string `json:"callsign,omitempty"`
	FlightNo        string `json:"flight_no,omitempty"`
	OriginIATA      string `json:"origin_iata,omitempty"`
	DestinationIATA string `json:"destination_iata,omitempty"`

	// IsMilitary is three-valued: true, false, or null for unknown.
	IsMilitary *bool `json:"is_military"`

	// Per-provider freshness, null for providers that did not report
	// this hex. Always serialized so consumers see which feeds
	// contributed.
	AgeADSBLolSec *float64 `json:"age_adsb_lol_sec"`
	AgeFR24Sec    *float64 `json:"age_fr24_sec"`
	AgeOpenSkySec *float64 `json:"age_opensky_sec"`

	// Enrichment results.
	Lookups                  *Lookups `json:"lookups,omitempty"`
	SoulsOnBoardMax          *int     `json:"souls_on_board_max"`
	SoulsOnBoardMaxEstimated bool     `json:"souls_on_board_max_is_estimate"`
	SoulsOnBoardMaxText      string   `json:"souls_on_board_max_text,omitempty"`
	Classification           string   `json:"classification,omitempty"`

	AirlineLogoCode string `json:"airline_logo_code,omitempty"`
	AirlineLogoPath string `json:"airline_logo_path,omitempty"`
	AirlineLogoURL  string `json:"airline_logo_url,omitempty"`

	CountryFlagCode   string `json:"country_flag_code,omitempty"`
	CountryFlagSource string `json:"country_flag_source,omitempty"`
	CountryFlagURL    string `json:"country_flag_url,omitempty"`

	RemainingNM *float64 `json:"remaining_nm,omitempty"`
	ETAMin      *float64 `json:"eta_min,omitempty"`

	// Media enrichment, attached only to the selected aircraft.
	Media       *Media       `json:"media,omitempty"`
	History     []HistoryRow `json:"history,omitempty"`
	MediaErrors []string     `json:"media_errors,omitempty"`
	AirlineKey  string       `json:"airline_key,omitempty"`
	PlaneKey    string       `json:"plane_key,omitempty"`

	// Extras holds provider-specific diagnostic fields, keyed
	// extras_<provider>_<field>, flattened to top level on the wire.
	Extras map[string]any `json:"-"`
}

// MarshalJSON flattens Extras into the top-level object alongside the
// typed fields.
func (m *Merged) MarshalJSON() ([]byte, error) {
	type alias Merged
	base, err := json.Marshal((*alias)(m))
	if err != nil {
		return nil, err
	}
	if len(m.Extras) == 0 {
		return base, nil
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(base, &obj); err != nil {
		return nil, err
	}
	for k, v := range m.Extras {
		if _, exists := obj[k]; exists {
			continue
		}
		raw, err := json.Marshal(v)
		if err != nil {
			continue
		}
		obj[k] = raw
	}
	return json.Marshal(obj)
}

// Point is the snapshot's area of interest.
type Point struct {
	Lat      float64 `json:"lat"`
	Lon      float64 `json:"lon"`
	RadiusNM float64 `json:"radius_nm"`
}

// SnapshotStats summarizes one cycle's fusion result.
type SnapshotStats struct {
	HexCount         int      `json:"hex_count"`
	ProvidersPresent []string `json:"providers_present"`
}

// Snapshot is one published pipeline result. Planes is never null on
// the wire; an empty cycle publishes an empty array.
type Snapshot struct {
	Timestamp         int64         `json:"timestamp"`
	Stats             SnapshotStats `json:"stats"`
	Point             Point         `json:"point"`
	Planes            []*Merged     `json:"planes"`
	Nearest           *Merged       `json:"nearest,omitempty"`
	NearestCommercial *Merged       `json:"nearest_commercial,omitempty"`
}
