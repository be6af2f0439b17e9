// Package milcache answers "is this airframe military?" for ICAO hex
// addresses, backed by the adsb.lol per-hex endpoint and a TTL-bounded
// cache persisted to disk.
//
// The cache is the only mutable state shared between the provider
// clients, so every map access and disk write is serialized behind one
// mutex. Failed lookups are cached as unknown with a fresh timestamp to
// keep an unreachable endpoint from being hammered every cycle.
package milcache

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// DefaultBaseURL is the adsb.lol API root.
const DefaultBaseURL = "https://api.adsb.lol"

// DefaultTTL is how long a cached verdict stays fresh.
const DefaultTTL = 6 * time.Hour

const requestTimeout = 15 * time.Second

// Verdict is the three-valued military status of a hex address.
type Verdict int

const (
	// Unknown means the status could not be determined (lookup failed,
	// synthetic hex, or the endpoint had no record).
	Unknown Verdict = iota
	// Civilian means the registry explicitly reported non-military.
	Civilian
	// Military means the registry flagged the airframe as military.
	Military
)

// Bool renders the verdict as the nullable boolean used on the wire.
func (v Verdict) Bool() *bool {
	switch v {
	case Military:
		b := true
		return &b
	case Civilian:
		b := false
		return &b
	default:
		return nil
	}
}

// FromBool converts a nullable boolean back into a Verdict.
func FromBool(b *bool) Verdict {
	switch {
	case b == nil:
		return Unknown
	case *b:
		return Military
	default:
		return Civilian
	}
}

// entry is the persisted cache record for one hex.
type entry struct {
	Mil *bool   `json:"mil"`
	TS  float64 `json:"ts"`
}

// Cache is the shared military-status cache.
type Cache struct {
	baseURL    string
	path       string
	ttl        time.Duration
	httpClient *http.Client

	mu    sync.Mutex
	cache map[string]entry

	now func() time.Time
}

// Option adjusts cache construction.
type Option func(*Cache)

// WithBaseURL points lookups at a different API root (used by tests).
func WithBaseURL(u string) Option {
	return func(c *Cache) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithTTL overrides the freshness window.
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) { c.ttl = ttl }
}

// WithClock overrides the time source (used by tests).
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// New creates a cache backed by the file at path, loading any previous
// contents. A missing or unreadable file starts the cache empty.
func New(path string, opts ...Option) *Cache {
	c := &Cache{
		baseURL:    DefaultBaseURL,
		path:       path,
		ttl:        DefaultTTL,
		httpClient: &http.Client{Timeout: requestTimeout},
		cache:      map[string]entry{},
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}

	if data, err := os.ReadFile(path); err == nil {
		if err := json.Unmarshal(data, &c.cache); err != nil {
			log.WithField("path", path).WithError(err).Warn("mil cache unreadable, starting empty")
			c.cache = map[string]entry{}
		}
	}
	return c
}

// Lookup returns the military verdict for hex, consulting the external
// endpoint on a cache miss or expired entry. Hexes beginning with "~"
// are TIS-B synthetic addresses with no registry entry and always
// resolve to Unknown without a network call.
func (c *Cache) Lookup(ctx context.Context, hex string) Verdict {
	hex = strings.ToUpper(strings.TrimSpace(hex))
	if hex == "" || strings.HasPrefix(hex, "~") {
		return Unknown
	}

	c.mu.Lock()
	if e, ok := c.cache[hex]; ok && c.fresh(e) {
		c.mu.Unlock()
		return FromBool(e.Mil)
	}
	c.mu.Unlock()

	verdict := c.fetch(ctx, hex)

	c.mu.Lock()
	c.cache[hex] = entry{Mil: verdict.Bool(), TS: float64(c.now().Unix())}
	c.persistLocked()
	c.mu.Unlock()

	return verdict
}

// Len reports the number of cached entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.cache)
}

func (c *Cache) fresh(e entry) bool {
	return c.now().Sub(time.Unix(int64(e.TS), 0)) < c.ttl
}

// fetch queries GET /v2/hex/<HEX> and derives the verdict from either
// the dbFlags bit field of the first aircraft row or a top-level "mil"
// boolean. Any transport or parse failure yields Unknown.
func (c *Cache) fetch(ctx context.Context, hex string) Verdict {
	url := fmt.Sprintf("%s/v2/hex/%s", c.baseURL, hex)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Unknown
	}
	req.Header.Set("User-Agent", "AirTracker/2.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.WithField("hex", hex).WithError(err).Debug("mil lookup failed")
		return Unknown
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.WithFields(log.Fields{"hex": hex, "status": resp.StatusCode}).Debug("mil lookup rejected")
		return Unknown
	}

	var body struct {
		AC []struct {
			DBFlags *int  `json:"dbFlags"`
			Mil     *bool `json:"mil"`
		} `json:"ac"`
		Mil *bool `json:"mil"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		log.WithField("hex", hex).WithError(err).Debug("mil lookup parse failed")
		return Unknown
	}

	if len(body.AC) > 0 {
		a := body.AC[0]
		if a.DBFlags != nil {
			if *a.DBFlags&1 != 0 {
				return Military
			}
			return Civilian
		}
		return FromBool(a.Mil)
	}
	return FromBool(body.Mil)
}

// persistLocked writes the cache to disk via temp file + rename so a
// crash mid-write cannot truncate the file read on the next start.
// Callers must hold c.mu.
func (c *Cache) persistLocked() {
	if c.path == "" {
		return
	}
	if dir := filepath.Dir(c.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			log.WithField("path", c.path).WithError(err).Warn("mil cache dir create failed")
			return
		}
	}

	data, err := json.MarshalIndent(c.cache, "", "  ")
	if err != nil {
		return
	}

	tmp := c.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		log.WithField("path", tmp).WithError(err).Warn("mil cache write failed")
		return
	}
	if err := os.Rename(tmp, c.path); err != nil {
		log.WithField("path", c.path).WithError(err).Warn("mil cache rename failed")
	}
}
