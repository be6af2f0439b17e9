// Package media attaches photos and recent-flight history to the
// selected aircraft via injected collaborators, and forwards the lead
// image to an image processor for display-ready variants.
//
// Media work is strictly best-effort: every failure lands in the
// record's media_errors and never aborts the publish cycle.
package media

import (
	"context"
	"strings"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/spacegeese/airtracker/internal/fuse"
)

// maxThumbnails bounds the thumbnail list on the wire.
const maxThumbnails = 4

// Image is one photo of an aircraft.
type Image struct {
	FullURL      string
	ThumbnailURL string
}

// FlightRow is one recent flight from the history collaborator.
type FlightRow struct {
	Flight      string
	Origin      string
	Destination string
	Date        string
	BlockTime   string
	STD         string
	ATD         string
	STA         string
	Status      string
}

// Result is the collaborator's answer for one registration.
type Result struct {
	Images  []Image
	Flights []FlightRow
}

// Lookup fetches photos and recent flights for a registration.
type Lookup interface {
	FetchAircraftMedia(ctx context.Context, registration string) (*Result, error)
}

// ProcessedImage holds the object-storage URLs for one processed image.
type ProcessedImage struct {
	OriginalURL string
	ESP32URL    string
}

// ImageProcessor turns a photo URL into display-ready stored variants.
type ImageProcessor interface {
	ProcessAircraftImage(ctx context.Context, imageURL, registration string) (*ProcessedImage, error)
}

// Enricher runs media enrichment for the selected aircraft.
type Enricher struct {
	lookup    Lookup
	processor ImageProcessor
}

// NewEnricher creates a media enricher. Either collaborator may be nil,
// disabling the corresponding step.
func NewEnricher(lookup Lookup, processor ImageProcessor) *Enricher {
	return &Enricher{lookup: lookup, processor: processor}
}

// Attach enriches each target concurrently in a bounded group. Targets
// are distinct records, so no locking is needed.
func (e *Enricher) Attach(ctx context.Context, targets []*fuse.Merged) {
	if len(targets) == 0 {
		return
	}

	g, ctx := errgroup.WithContext(ctx)
	limit := len(targets)
	if limit > 8 {
		limit = 8
	}
	g.SetLimit(limit)

	for _, m := range targets {
		m := m
		g.Go(func() error {
			e.attachOne(ctx, m)
			return nil
		})
	}
	// Workers never return errors; failures land on the records.
	_ = g.Wait()
}

func (e *Enricher) attachOne(ctx context.Context, m *fuse.Merged) {
	// Device-side asset keys work even when media lookup is disabled.
	m.AirlineKey = firstNonEmpty(m.AirlineIATA, m.AirlineICAO)
	m.PlaneKey = firstNonEmpty(m.Registration, m.AircraftType)

	reg := strings.TrimSpace(m.Registration)
	if e.lookup == nil || reg == "" {
		return
	}

	res, err := e.lookup.FetchAircraftMedia(ctx, reg)
	if err != nil {
		log.WithField("registration", reg).WithError(err).Debug("media lookup failed")
		m.MediaErrors = append(m.MediaErrors, err.Error())
		return
	}
	if res == nil {
		return
	}

	media := &fuse.Media{}
	if len(res.Images) > 0 {
		media.PlaneImage = res.Images[0].FullURL
	}
	for _, img := range res.Images {
		if img.ThumbnailURL == "" {
			continue
		}
		media.Thumbnails = append(media.Thumbnails, img.ThumbnailURL)
		if len(media.Thumbnails) == maxThumbnails {
			break
		}
	}

	if e.processor != nil && media.PlaneImage != "" {
		processed, err := e.processor.ProcessAircraftImage(ctx, media.PlaneImage, reg)
		if err != nil {
			log.WithField("registration", reg).WithError(err).Debug("image processing failed")
			m.MediaErrors = append(m.MediaErrors, err.Error())
		} else if processed != nil {
			media.ZiplineOriginal = processed.OriginalURL
			media.ZiplineESP32 = processed.ESP32URL
		}
	}

	if media.PlaneImage != "" || len(media.Thumbnails) > 0 {
		m.Media = media
	}

	for _, fl := range res.Flights {
		m.History = append(m.History, fuse.HistoryRow{
			Flight:       fl.Flight,
			Origin:       fl.Origin,
			Destination:  fl.Destination,
			Date:         fl.Date,
			BlockTime:    fl.BlockTime,
			STD:          fl.STD,
			ATD:          fl.ATD,
			STA:          fl.STA,
			Status:       fl.Status,
			ArrOrETAHHMM: arrOrETA(fl),
		})
	}
}

// arrOrETA renders the history panel's arrival column: "Arr HH:MM" for
// flights already landed, "ETA HH:MM" otherwise, preferring the
// scheduled arrival over the scheduled departure, and the bare prefix
// when neither time is known.
func arrOrETA(fl FlightRow) string {
	prefix := "ETA"
	if strings.Contains(strings.ToLower(fl.Status), "arr") {
		prefix = "Arr"
	}
	t := firstNonEmpty(fl.STA, fl.STD)
	if t == "" {
		return prefix
	}
	return prefix + " " + t
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
