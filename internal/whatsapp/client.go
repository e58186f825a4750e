package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/hackgods/dental-booking/internal/schedule"
)

const (
	DefaultBaseURL    = "https://graph.facebook.com"
	DefaultAPIVersion = "v22.0"

	TemplateWithFolio = "cita_confirmacion_con_folio"
	TemplateBold      = "cita_confirmacion_bold"
	TemplatePlain     = "cita_confirmacion"
	TemplateHello     = "hello_world"

	languageSpanish = "es_MX"
	languageEnglish = "en_US"
)

var ErrNotConfigured = errors.New("whatsapp is not configured")

// APIError is a non-2xx answer from the Graph API.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("whatsapp api error: %d - %s", e.StatusCode, e.Body)
}

// IsTemplateError reports whether err means the template itself is missing,
// paused or rejected, in which case a simpler template may still go out.
func IsTemplateError(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	if apiErr.StatusCode != http.StatusBadRequest && apiErr.StatusCode != http.StatusNotFound {
		return false
	}
	body := strings.ToLower(apiErr.Body)
	for _, marker := range []string{"132000", "132001", "132015", "template"} {
		if strings.Contains(body, marker) {
			return true
		}
	}
	return false
}

type Config struct {
	Token         string
	PhoneNumberID string
	APIVersion    string
	BaseURL       string
}

type Client struct {
	cfg    Config
	http   *http.Client
	logger zerolog.Logger
}

func NewClient(cfg Config, httpClient *http.Client, logger zerolog.Logger) *Client {
	if cfg.APIVersion == "" {
		cfg.APIVersion = DefaultAPIVersion
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{
		cfg:    cfg,
		http:   httpClient,
		logger: logger.With().Str("component", "whatsapp").Logger(),
	}
}

func (c *Client) Enabled() bool {
	return c != nil && c.cfg.Token != "" && c.cfg.PhoneNumberID != ""
}

func (c *Client) messagesURL() string {
	return fmt.Sprintf("%s/%s/%s/messages", strings.TrimRight(c.cfg.BaseURL, "/"), c.cfg.APIVersion, c.cfg.PhoneNumberID)
}

func (c *Client) send(ctx context.Context, msg GenericMessage) error {
	if !c.Enabled() {
		return ErrNotConfigured
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.messagesURL(), bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode >= 400 {
		return &APIError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	return nil
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// SendText sends a free-form message. Only valid inside the 24h customer
// service window, which is the case when replying to a webhook.
func (c *Client) SendText(ctx context.Context, to, body string) error {
	return c.send(ctx, GenericMessage{
		MessagingProduct: "whatsapp",
		To:               digitsOnly(to),
		Type:             "text",
		Text:             &TextObj{Body: body},
	})
}

// SendTemplate sends an approved template with positional body parameters.
func (c *Client) SendTemplate(ctx context.Context, to, name, language string, params ...string) error {
	tmpl := &TemplateObj{Name: name, Language: LanguageObj{Code: language}}
	if len(params) > 0 {
		comp := ComponentObj{Type: "body"}
		for _, p := range params {
			comp.Parameters = append(comp.Parameters, ParameterObj{Type: "text", Text: p})
		}
		tmpl.Components = []ComponentObj{comp}
	}
	return c.send(ctx, GenericMessage{
		MessagingProduct: "whatsapp",
		To:               digitsOnly(to),
		Type:             "template",
		Template:         tmpl,
	})
}

// Booking is what a confirmation message talks about.
type Booking struct {
	Phone string
	Name  string
	Date  schedule.Date
	Time  schedule.Clock
	Folio string
}

// SendBookingConfirmation walks the template chain from the richest
// template down to hello_world, moving on only when a template is rejected.
// It returns the template that was delivered.
func (c *Client) SendBookingConfirmation(ctx context.Context, b Booking) (string, error) {
	date := LongDate(b.Date)
	at := b.Time.String()

	type attempt struct {
		name   string
		lang   string
		params []string
	}
	var chain []attempt
	if b.Folio != "" {
		chain = append(chain, attempt{TemplateWithFolio, languageSpanish, []string{b.Name, date, at, b.Folio}})
	}
	chain = append(chain,
		attempt{TemplateBold, languageSpanish, []string{b.Name, date, at}},
		attempt{TemplatePlain, languageSpanish, []string{b.Name, date, at}},
		attempt{TemplateHello, languageEnglish, nil},
	)

	var err error
	for _, a := range chain {
		err = c.SendTemplate(ctx, b.Phone, a.name, a.lang, a.params...)
		if err == nil {
			return a.name, nil
		}
		if !IsTemplateError(err) {
			return "", err
		}
		c.logger.Warn().Err(err).Str("template", a.name).Msg("template rejected, trying fallback")
	}
	return "", err
}
