package sheetlog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/almarky/almarky-backend/pkg/config"
	pkgerrors "github.com/almarky/almarky-backend/pkg/errors"
	"github.com/almarky/almarky-backend/pkg/logger"
	"github.com/almarky/almarky-backend/pkg/outbox/payloads"
)

// Entry is the flattened row appended to the back-office sheet.
type Entry struct {
	OrderID       string    `json:"orderId"`
	CustomerName  string    `json:"customerName"`
	CustomerPhone string    `json:"customerPhone"`
	City          string    `json:"city"`
	ItemCount     int       `json:"itemCount"`
	TotalRupees   int64     `json:"totalRupees"`
	Summary       string    `json:"summary"`
	PlacedAt      time.Time `json:"placedAt"`
}

// Client posts order rows to the Apps Script webhook. The sheet is an
// operational mirror only; delivery is best effort and callers must not let
// a webhook failure affect the checkout path.
type Client struct {
	webhookURL string
	httpClient *http.Client
	logg       *logger.Logger
}

type Option func(*Client)

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

func NewClient(cfg config.SheetLogConfig, logg *logger.Logger, opts ...Option) (*Client, error) {
	if cfg.WebhookURL == "" {
		return nil, fmt.Errorf("sheet log webhook URL is required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	client := &Client{
		webhookURL: cfg.WebhookURL,
		httpClient: &http.Client{Timeout: timeout},
		logg:       logg,
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// EntryFromEvent flattens an order created payload into a sheet row.
func EntryFromEvent(event payloads.OrderCreatedEvent) Entry {
	return Entry{
		OrderID:       event.OrderID.String(),
		CustomerName:  event.CustomerName,
		CustomerPhone: event.CustomerPhone,
		City:          event.City,
		ItemCount:     event.ItemCount,
		TotalRupees:   event.TotalRupees,
		Summary:       event.Summary,
		PlacedAt:      event.PlacedAt,
	}
}

// Append posts one row. Apps Script web apps answer redirects and plain 200s
// interchangeably, so any 2xx or 3xx counts as accepted.
func (c *Client) Append(ctx context.Context, entry Entry) error {
	body, err := json.Marshal(entry)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode sheet row")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.webhookURL, bytes.NewReader(body))
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build sheet request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "post sheet row")
	}
	defer func() {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= 400 {
		return pkgerrors.New(pkgerrors.CodeDependency,
			fmt.Sprintf("sheet webhook returned %d", resp.StatusCode))
	}
	return nil
}

// AppendAsync fires the append without blocking the caller and only logs the
// outcome. Used where the order flow must stay responsive.
func (c *Client) AppendAsync(entry Entry) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), c.httpClient.Timeout+time.Second)
		defer cancel()
		if err := c.Append(ctx, entry); err != nil {
			c.logg.Error(c.logg.WithOrderID(ctx, entry.OrderID), "sheet log append failed", err)
			return
		}
		c.logg.Debug(c.logg.WithOrderID(ctx, entry.OrderID), "sheet log row appended")
	}()
}
