package media

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/almarky/almarky-backend/pkg/config"
	"github.com/almarky/almarky-backend/pkg/errors"
	"github.com/almarky/almarky-backend/pkg/logger"
)

const (
	defaultUploadURL            = "https://api.cloudinary.com/v1_1"
	responseBodyReadLimit int64 = 1024
)

// Service uploads product imagery to Cloudinary via unsigned upload presets.
// Uploads run one at a time; the admin save pipeline is sequential by design
// so a single failed asset aborts the whole save.
type Service interface {
	Upload(ctx context.Context, data string) (string, error)
}

type service struct {
	httpClient  *http.Client
	uploadURL   string
	preset      string
	maxUploadMB int
	logg        *logger.Logger
}

// Option configures optional service behavior.
type Option func(*service)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(s *service) {
		if client != nil {
			s.httpClient = client
		}
	}
}

// NewService builds the Cloudinary uploader from configuration.
func NewService(cfg config.CloudinaryConfig, logg *logger.Logger, opts ...Option) (Service, error) {
	if strings.TrimSpace(cfg.CloudName) == "" {
		return nil, fmt.Errorf("cloudinary cloud name is required")
	}
	if strings.TrimSpace(cfg.UploadPreset) == "" {
		return nil, fmt.Errorf("cloudinary upload preset is required")
	}

	base := strings.TrimRight(cfg.UploadURL, "/")
	if base == "" {
		base = defaultUploadURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	maxMB := cfg.MaxUploadMB
	if maxMB <= 0 {
		maxMB = 10
	}

	s := &service{
		httpClient:  &http.Client{Timeout: timeout},
		uploadURL:   fmt.Sprintf("%s/%s/image/upload", base, cfg.CloudName),
		preset:      cfg.UploadPreset,
		maxUploadMB: maxMB,
		logg:        logg,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

type uploadResponse struct {
	SecureURL string `json:"secure_url"`
	URL       string `json:"url"`
	PublicID  string `json:"public_id"`
}

// Upload sends one data URL payload and returns the hosted HTTPS URL.
func (s *service) Upload(ctx context.Context, data string) (string, error) {
	if err := s.validatePayload(data); err != nil {
		return "", err
	}

	var body strings.Builder
	writer := multipart.NewWriter(&body)
	if err := writer.WriteField("file", data); err != nil {
		return "", errors.Wrap(errors.CodeInternal, err, "build upload form")
	}
	if err := writer.WriteField("upload_preset", s.preset); err != nil {
		return "", errors.Wrap(errors.CodeInternal, err, "build upload form")
	}
	if err := writer.Close(); err != nil {
		return "", errors.Wrap(errors.CodeInternal, err, "build upload form")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.uploadURL, strings.NewReader(body.String()))
	if err != nil {
		return "", errors.Wrap(errors.CodeDependency, err, "build upload request")
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", errors.Wrap(errors.CodeDependency, err, "execute upload request")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, responseBodyReadLimit))
		return "", errors.Wrap(
			errors.CodeDependency,
			fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))),
			"cloudinary upload failed",
		)
	}

	var uploaded uploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&uploaded); err != nil {
		return "", errors.Wrap(errors.CodeDependency, err, "decode upload response")
	}

	url := uploaded.SecureURL
	if url == "" {
		url = uploaded.URL
	}
	if url == "" {
		return "", errors.New(errors.CodeDependency, "upload response missing url")
	}

	if s.logg != nil {
		s.logg.Debug(s.logg.WithField(ctx, "public_id", uploaded.PublicID), "media asset uploaded")
	}
	return url, nil
}

func (s *service) validatePayload(data string) error {
	if strings.TrimSpace(data) == "" {
		return errors.New(errors.CodeValidation, "image payload is required")
	}
	if !strings.HasPrefix(data, "data:image/") {
		return errors.New(errors.CodeValidation, "image payload must be an image data url")
	}

	idx := strings.Index(data, ",")
	if idx < 0 {
		return errors.New(errors.CodeValidation, "image payload is malformed")
	}
	encoded := data[idx+1:]
	rawSize := base64.StdEncoding.DecodedLen(len(encoded))
	if rawSize > s.maxUploadMB*1024*1024 {
		return errors.New(errors.CodeValidation, fmt.Sprintf("image exceeds %dMB limit", s.maxUploadMB))
	}
	return nil
}
