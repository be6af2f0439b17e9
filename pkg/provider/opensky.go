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
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/time/rate"

	"github.com/spacegeese/airtracker/pkg/config"
	"github.com/spacegeese/airtracker/pkg/geo"
)

// OpenSky REST API endpoints.
const (
	OpenSkyBaseURL  = "https://opensky-network.org/api"
	OpenSkyTokenURL = "https://auth.opensky-network.org/auth/realms/opensky-network/protocol/openid-connect/token"
)

// OpenSky state vector array indexes, per the /states/all response
// documentation.
const (
	oskIdxICAO24 = iota
	oskIdxCallsign
	oskIdxOriginCountry
	oskIdxTimePosition
	oskIdxLastContact
	oskIdxLongitude
	oskIdxLatitude
	oskIdxBaroAltitude
	oskIdxOnGround
	oskIdxVelocity
	oskIdxTrueTrack
	oskIdxVerticalRate
	oskIdxSensors
	oskIdxGeoAltitude
	oskIdxSquawk
	oskIdxSPI
	oskIdxPositionSource
	oskIdxCategory
)

// OpenSkyClient fetches state vectors from the OpenSky Network.
// With OAuth2 client credentials configured it authenticates via the
// client-credentials grant; otherwise it uses the anonymous tier.
type OpenSkyClient struct {
	baseURL      string
	tokenURL     string
	clientID     string
	clientSecret string
	userAgent    string
	httpClient   *http.Client
	limiter      *rate.Limiter
	mil          MilLookup
	tokens       oauth2.TokenSource
	now          func() time.Time
}

// OpenSkyOption adjusts client construction.
type OpenSkyOption func(*OpenSkyClient)

// WithOpenSkyBaseURL points the client at a different API root.
func WithOpenSkyBaseURL(u string) OpenSkyOption {
	return func(c *OpenSkyClient) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithOpenSkyTokenURL overrides the OAuth2 token endpoint.
func WithOpenSkyTokenURL(u string) OpenSkyOption {
	return func(c *OpenSkyClient) { c.tokenURL = u }
}

// WithOpenSkyClock overrides the time source used for age computation.
func WithOpenSkyClock(now func() time.Time) OpenSkyOption {
	return func(c *OpenSkyClient) { c.now = now }
}

// NewOpenSky creates an OpenSky client. Empty credentials select the
// anonymous tier, which OpenSky rate-limits far more aggressively.
func NewOpenSky(clientID, clientSecret string, mil MilLookup, opts ...OpenSkyOption) *OpenSkyClient {
	c := &OpenSkyClient{
		baseURL:      OpenSkyBaseURL,
		tokenURL:     OpenSkyTokenURL,
		clientID:     clientID,
		clientSecret: clientSecret,
		userAgent:    defaultUserAgent,
		httpClient:   &http.Client{Timeout: requestTimeout},
		limiter:      rate.NewLimiter(rate.Every(5*time.Second), 1),
		mil:          mil,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name returns the provider identifier.
func (c *OpenSkyClient) Name() string { return config.ProviderOpenSky }

// Fetch returns all state vectors inside the bounding box around center.
func (c *OpenSkyClient) Fetch(ctx context.Context, center geo.Point, radiusNM float64) ([]Observation, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("opensky: rate limit wait: %w", err)
	}

	box := geo.BoxAround(center, radiusNM)
	q := url.Values{}
	q.Set("lamin", fmt.Sprintf("%.6f", box.South))
	q.Set("lamax", fmt.Sprintf("%.6f", box.North))
	q.Set("lomin", fmt.Sprintf("%.6f", box.West))
	q.Set("lomax", fmt.Sprintf("%.6f", box.East))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/states/all?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("opensky: build request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	if tok, err := c.token(); err != nil {
		return nil, err
	} else if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("opensky: fetch states: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("opensky: unexpected status %d", resp.StatusCode)
	}

	var body struct {
		Time   int64   `json:"time"`
		States [][]any `json:"states"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("opensky: decode response: %w", err)
	}

	nowSec := float64(c.now().Unix())
	obs := make([]Observation, 0, len(body.States))
	for _, state := range body.States {
		o, ok := c.normalize(ctx, state, nowSec)
		if !ok {
			continue
		}
		obs = append(obs, o)
	}

	log.WithFields(log.Fields{"provider": c.Name(), "count": len(obs)}).Debug("provider snapshot fetched")
	return obs, nil
}

// normalize converts one state vector array into an Observation.
func (c *OpenSkyClient) normalize(ctx context.Context, state []any, nowSec float64) (Observation, bool) {
	hex := strings.TrimSpace(idxString(state, oskIdxICAO24))
	if hex == "" {
		return Observation{}, false
	}

	o := Observation{
		Provider:      c.Name(),
		Hex:           hex,
		Callsign:      strings.TrimSpace(idxString(state, oskIdxCallsign)),
		OriginCountry: strings.TrimSpace(idxString(state, oskIdxOriginCountry)),
		OnGround:      idxBool(state, oskIdxOnGround),
		TrackDeg:      idxFloat(state, oskIdxTrueTrack),
	}

	o.Latitude, o.Longitude = sanitizePosition(idxFloat(state, oskIdxLatitude), idxFloat(state, oskIdxLongitude))

	// Geometric altitude when available, barometric otherwise.
	altM := idxFloat(state, oskIdxGeoAltitude)
	if altM == nil {
		altM = idxFloat(state, oskIdxBaroAltitude)
	}
	if altM != nil {
		o.AltitudeFt = roundedPtr(*altM * MetersToFeet)
	}
	if v := sanitizeSpeed(idxFloat(state, oskIdxVelocity)); v != nil {
		o.GroundSpeedKt = roundedPtr(*v * MPSToKnots)
	}
	if vr := idxFloat(state, oskIdxVerticalRate); vr != nil {
		o.VerticalRateFpm = roundedPtr(*vr * MPSToFPM)
	}
	if sq := strings.TrimSpace(idxString(state, oskIdxSquawk)); sq != "" {
		o.Squawk = &sq
	}

	// Freshness from last_contact, falling back to the position time.
	lastContact := idxFloat(state, oskIdxLastContact)
	timePosition := idxFloat(state, oskIdxTimePosition)
	if lastContact != nil {
		o.AgeSec = floatPtr(nowSec - *lastContact)
	} else if timePosition != nil {
		o.AgeSec = floatPtr(nowSec - *timePosition)
	}
	if timePosition != nil {
		ts := int64(*timePosition)
		o.PositionTimestamp = &ts
	} else if lastContact != nil {
		ts := int64(*lastContact)
		o.PositionTimestamp = &ts
	}

	extras := map[string]any{}
	if v := idxFloat(state, oskIdxCategory); v != nil {
		extras["category"] = *v
	}
	if v := idxFloat(state, oskIdxPositionSource); v != nil {
		extras["position_source"] = *v
	}
	if v := idxBool(state, oskIdxSPI); v != nil {
		extras["spi"] = *v
	}
	if len(extras) > 0 {
		o.Extras = extras
	}

	if c.mil != nil {
		o.IsMilitary = c.mil.Lookup(ctx, hex)
	}
	return o, true
}

// token returns a bearer token, or "" for anonymous access. The
// TokenSource caches and refreshes tokens across cycles, so it is bound
// to the background context rather than any single cycle's.
func (c *OpenSkyClient) token() (string, error) {
	if c.clientID == "" || c.clientSecret == "" {
		return "", nil
	}
	if c.tokens == nil {
		cc := &clientcredentials.Config{
			ClientID:     c.clientID,
			ClientSecret: c.clientSecret,
			TokenURL:     c.tokenURL,
		}
		c.tokens = cc.TokenSource(context.WithValue(context.Background(), oauth2.HTTPClient, c.httpClient))
	}
	tok, err := c.tokens.Token()
	if err != nil {
		return "", fmt.Errorf("opensky: token request: %w", err)
	}
	return tok.AccessToken, nil
}

// idxFloat returns the float at index i of a state vector, or nil when
// the slot is missing, null, or not numeric.
func idxFloat(row []any, i int) *float64 {
	if i >= len(row) {
		return nil
	}
	if f, ok := row[i].(float64); ok {
		return &f
	}
	return nil
}

func idxString(row []any, i int) string {
	if i >= len(row) {
		return ""
	}
	if s, ok := row[i].(string); ok {
		return s
	}
	return ""
}

func idxBool(row []any, i int) *bool {
	if i >= len(row) {
		return nil
	}
	if b, ok := row[i].(bool); ok {
		return &b
	}
	return nil
}
