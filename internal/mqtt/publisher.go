// Package mqtt publishes pipeline snapshots to an MQTT broker.
//
// Payloads are published retained so late subscribers, a display panel
// waking up mid-flight included, immediately see the last known state.
// Each topic is published independently: one broker hiccup must not
// take the remaining topics down with it.
package mqtt

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"

	"github.com/spacegeese/airtracker/internal/enrich"
	"github.com/spacegeese/airtracker/internal/fuse"
	"github.com/spacegeese/airtracker/pkg/config"
)

const (
	connectTimeout = 10 * time.Second
	publishTimeout = 10 * time.Second
)

// Topic suffixes under the configured prefix.
const (
	TopicNearest           = "nearest"
	TopicPlanes            = "planes"
	TopicNearestCommercial = "nearest_commercial"
	TopicStats             = "stats"
)

// client is the slice of the paho API the publisher uses, separated so
// tests can run without a broker.
type client interface {
	Connect() paho.Token
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Disconnect(quiesce uint)
	IsConnectionOpen() bool
}

// Stats is the operational counter payload for the stats topic.
type Stats struct {
	Runs                int64  `json:"runs"`
	SuccessfulPublishes int64  `json:"successful_publishes"`
	Errors              int64  `json:"errors"`
	StartTime           string `json:"start_time"`
	LastUpdate          string `json:"last_update"`
	AircraftCount       int    `json:"aircraft_count"`
	NearestAircraft     string `json:"nearest_aircraft"`
}

// Publisher pushes snapshots to the broker under a topic prefix.
type Publisher struct {
	client client
	prefix string

	publishAllPlanes         bool
	publishNearestCommercial bool

	now func() time.Time
}

// New builds a publisher from broker settings. The broker connection is
// established lazily on first publish.
func New(cfg *config.Config) *Publisher {
	opts := paho.NewClientOptions().
		AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.MQTTHost, cfg.MQTTPort)).
		SetClientID(fmt.Sprintf("airtracker-%d", os.Getpid())).
		SetConnectTimeout(connectTimeout).
		SetAutoReconnect(true).
		SetCleanSession(true)
	if cfg.MQTTUser != "" {
		opts.SetUsername(cfg.MQTTUser)
		opts.SetPassword(cfg.MQTTPass)
	}

	return &Publisher{
		client:                   paho.NewClient(opts),
		prefix:                   cfg.MQTTPrefix,
		publishAllPlanes:         cfg.PublishAllPlanes,
		publishNearestCommercial: cfg.PublishNearestCommercial,
		now:                      time.Now,
	}
}

// Connect establishes the broker connection eagerly. It exists for the
// connectivity check mode; normal operation connects on first publish.
func (p *Publisher) Connect() error {
	if p.client.IsConnectionOpen() {
		return nil
	}
	token := p.client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return fmt.Errorf("mqtt: connect timed out after %s", connectTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt: connect: %w", err)
	}
	return nil
}

// Disconnect closes the broker connection, allowing in-flight messages
// a short grace period.
func (p *Publisher) Disconnect() {
	p.client.Disconnect(250)
}

// PublishSnapshot publishes one cycle's results. The nearest topic is
// always published; planes and nearest_commercial are opt-in. It
// returns the number of successful topic publishes and the first error
// encountered, continuing past failures so one bad topic does not
// starve the rest.
func (p *Publisher) PublishSnapshot(snap *fuse.Snapshot, stats *Stats) (int, error) {
	if err := p.Connect(); err != nil {
		return 0, err
	}

	var published int
	var firstErr error
	record := func(err error) {
		if err == nil {
			published++
		} else if firstErr == nil {
			firstErr = err
		}
	}

	record(p.publishNearest(snap.Nearest))

	if p.publishAllPlanes && len(snap.Planes) > 0 {
		record(p.publishJSON(TopicPlanes, snap.Planes))
	}

	if p.publishNearestCommercial && snap.NearestCommercial != nil {
		record(p.publishScaffolded(TopicNearestCommercial, snap.NearestCommercial))
	}

	stats.SuccessfulPublishes += int64(published)
	stats.LastUpdate = p.now().UTC().Format(time.RFC3339)
	stats.AircraftCount = len(snap.Planes)
	stats.NearestAircraft = nearestLabel(snap.Nearest)
	if err := p.publishJSON(TopicStats, stats); err != nil && firstErr == nil {
		firstErr = err
	}

	return published, firstErr
}

// publishNearest publishes the nearest record, or an empty scaffolded
// object when the sky is clear so subscribers can blank their display.
func (p *Publisher) publishNearest(nearest *fuse.Merged) error {
	if nearest == nil {
		nearest = &fuse.Merged{}
	}
	return p.publishScaffolded(TopicNearest, nearest)
}

// publishScaffolded publishes a record with display-side default values
// filled in, so device consumers never see a missing key.
func (p *Publisher) publishScaffolded(topic string, m *fuse.Merged) error {
	payload, err := enrich.ScaffoldedJSON(m)
	if err != nil {
		return fmt.Errorf("mqtt: marshal %s: %w", topic, err)
	}
	return p.publish(topic, payload)
}

func (p *Publisher) publishJSON(topic string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("mqtt: marshal %s: %w", topic, err)
	}
	return p.publish(topic, payload)
}

func (p *Publisher) publish(topic string, payload []byte) error {
	full := p.prefix + "/" + topic
	token := p.client.Publish(full, 0, true, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("mqtt: publish to %s timed out", full)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt: publish to %s: %w", full, err)
	}
	log.WithFields(log.Fields{"topic": full, "bytes": len(payload)}).Debug("published")
	return nil
}

func nearestLabel(m *fuse.Merged) string {
	if m == nil {
		return "None"
	}
	if m.Callsign != "" {
		return m.Callsign
	}
	if m.Hex != "" {
		return m.Hex
	}
	return "None"
}
