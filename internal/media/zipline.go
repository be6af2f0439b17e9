package media

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	log "github.com/sirupsen/logrus"
)

const (
	ziplineTimeout   = 30 * time.Second
	ziplineCacheSize = 256
	maxImageBytes    = 8 << 20
)

// ZiplineUploader implements ImageProcessor against a Zipline
// object-storage instance: it downloads the photo, uploads the original,
// renders a 96x72 24-bit BMP for the display, and uploads that too.
//
// Results are cached by source URL so the same aircraft loitering
// nearby does not re-upload every cycle.
type ZiplineUploader struct {
	baseURL    string
	token      string
	folderID   string
	httpClient *http.Client
	cache      *lru.Cache[string, *ProcessedImage]
	now        func() time.Time
}

// NewZiplineUploader creates an uploader. An empty token returns nil,
// which disables image processing entirely.
func NewZiplineUploader(baseURL, token, folderID string) *ZiplineUploader {
	if token == "" {
		return nil
	}
	cache, _ := lru.New[string, *ProcessedImage](ziplineCacheSize)
	return &ZiplineUploader{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		folderID:   folderID,
		httpClient: &http.Client{Timeout: ziplineTimeout},
		cache:      cache,
		now:        time.Now,
	}
}

// ProcessAircraftImage downloads imageURL and uploads the original and
// an ESP32-ready BMP variant, returning their stored URLs.
func (z *ZiplineUploader) ProcessAircraftImage(ctx context.Context, imageURL, registration string) (*ProcessedImage, error) {
	if cached, ok := z.cache.Get(imageURL); ok {
		return cached, nil
	}

	data, err := z.download(ctx, imageURL)
	if err != nil {
		return nil, fmt.Errorf("zipline: download image: %w", err)
	}

	result := &ProcessedImage{}
	stamp := z.now().Format("20060102_150405")

	originalName := fmt.Sprintf("aircraft_%s_%s_original.jpg", stamp, registration)
	result.OriginalURL, err = z.upload(ctx, data, originalName, "image/jpeg")
	if err != nil {
		return nil, fmt.Errorf("zipline: upload original: %w", err)
	}

	// The BMP variant is best-effort; an undecodable image still yields
	// a usable original URL.
	if bmp, err := renderDisplayBMP(data); err != nil {
		log.WithField("registration", registration).WithError(err).Debug("bmp render failed")
	} else {
		bmpName := fmt.Sprintf("aircraft_%s_%s_esp32.bmp", stamp, registration)
		if url, err := z.upload(ctx, bmp, bmpName, "image/bmp"); err != nil {
			log.WithField("registration", registration).WithError(err).Debug("bmp upload failed")
		} else {
			result.ESP32URL = url
		}
	}

	z.cache.Add(imageURL, result)
	return result, nil
}

func (z *ZiplineUploader) download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "AirTracker/2.0 (Aircraft Image Processor)")
	req.Header.Set("Accept", "image/*")

	resp, err := z.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxImageBytes))
}

// upload posts one file to the Zipline upload endpoint and returns the
// stored file's public URL.
func (z *ZiplineUploader) upload(ctx context.Context, data []byte, filename, contentType string) (string, error) {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)

	header := textproto.MIMEHeader{}
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, filename))
	header.Set("Content-Type", contentType)
	part, err := w.CreatePart(header)
	if err != nil {
		return "", err
	}
	if _, err := part.Write(data); err != nil {
		return "", err
	}
	if err := w.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, z.baseURL+"/api/upload", &body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("authorization", z.token)
	req.Header.Set("x-zipline-format", "name")
	if z.folderID != "" {
		req.Header.Set("x-zipline-folder", z.folderID)
	}

	resp, err := z.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("upload rejected with status %d", resp.StatusCode)
	}

	var parsed struct {
		Files []struct {
			URL string `json:"url"`
		} `json:"files"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("parse upload response: %w", err)
	}
	if len(parsed.Files) == 0 || parsed.Files[0].URL == "" {
		return "", fmt.Errorf("upload response carried no file URL")
	}
	return parsed.Files[0].URL, nil
}
