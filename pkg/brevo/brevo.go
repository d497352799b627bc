package brevo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const defaultBaseURL = "https://api.brevo.com"

// DefaultTemplates maps template keys to the transactional template IDs configured in Brevo.
var DefaultTemplates = map[string]int64{
	"application_received": 1,
	"prescreen_passed":     2,
	"test_invitation":      3,
	"test_reminder_24h":    4,
	"test_expired":         5,
	"test_final_chance":    6,
	"test_received":        7,
	"under_review":         8,
	"negotiation_offer":    9,
	"rate_agreed":          10,
	"approved":             11,
	"rejected":             12,
	"waitlisted":           13,
	"profile_nudge":        14,
	"cert_expiry":          15,
	"language_pairs_check": 16,
	"request_more_info":    17,
}

// Config contains credentials and endpoints for the Brevo transactional API.
type Config struct {
	APIKey    string
	BaseURL   string
	Timeout   time.Duration
	Templates map[string]int64
}

// Recipient is a single email destination.
type Recipient struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

// Client sends transactional template emails.
type Client struct {
	cfg    Config
	http   *http.Client
	logger zerolog.Logger
}

type sendRequest struct {
	To         []Recipient            `json:"to"`
	TemplateID int64                  `json:"templateId"`
	Params     map[string]interface{} `json:"params,omitempty"`
}

// New constructs a Brevo client.
func New(cfg Config, logger zerolog.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("brevo api key must be provided")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Templates == nil {
		cfg.Templates = DefaultTemplates
	}

	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		logger: logger.With().Str("component", "brevo").Logger(),
	}, nil
}

// SendTemplate delivers the template identified by key to the recipient.
func (c *Client) SendTemplate(ctx context.Context, key string, to Recipient, params map[string]interface{}) error {
	templateID, ok := c.cfg.Templates[key]
	if !ok {
		return fmt.Errorf("unknown brevo template %q", key)
	}

	body, err := json.Marshal(sendRequest{To: []Recipient{to}, TemplateID: templateID, Params: params})
	if err != nil {
		return err
	}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/v3/smtp/email"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("api-key", c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("brevo send template %d: %w", templateID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("brevo send template %d failed with %d: %s", templateID, resp.StatusCode, strings.TrimSpace(string(payload)))
	}

	c.logger.Debug().Int64("template_id", templateID).Msg("brevo email accepted")
	return nil
}
