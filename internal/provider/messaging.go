package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dmitrymomot/notifier/pkg/validator"
)

const (
	MaxSMSLength      = 1600
	MaxWhatsAppLength = 4096

	whatsAppPrefix = "whatsapp:"
)

// MessagingChannel selects how Messaging addresses recipients.
type MessagingChannel string

const (
	MessagingSMS      MessagingChannel = "sms"
	MessagingWhatsApp MessagingChannel = "whatsapp"
)

// Messaging sends SMS or WhatsApp messages through a Twilio-compatible API:
// form-encoded POST with basic auth, 201 with a JSON sid on success.
type Messaging struct {
	cfg     MessagingConfig
	channel MessagingChannel
	client  *http.Client
	from    string
	maxLen  int
}

// MessagingOption configures a Messaging adapter.
type MessagingOption func(*Messaging)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) MessagingOption {
	return func(m *Messaging) {
		if c != nil {
			m.client = c
		}
	}
}

// NewMessaging creates an adapter for the given channel.
func NewMessaging(cfg MessagingConfig, channel MessagingChannel, opts ...MessagingOption) (*Messaging, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("%w: messaging base URL is required", ErrInvalidConfig)
	}
	if cfg.AccountSID == "" || cfg.AuthToken == "" {
		return nil, fmt.Errorf("%w: messaging account SID and auth token are required", ErrInvalidConfig)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	m := &Messaging{
		cfg:     cfg,
		channel: channel,
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}

	switch channel {
	case MessagingSMS:
		m.from = cfg.FromNumber
		m.maxLen = MaxSMSLength
	case MessagingWhatsApp:
		m.from = cfg.WhatsAppFrom
		if m.from == "" {
			m.from = cfg.FromNumber
		}
		m.maxLen = MaxWhatsAppLength
	default:
		return nil, fmt.Errorf("%w: unsupported messaging channel %q", ErrInvalidConfig, channel)
	}
	if m.from == "" {
		return nil, fmt.Errorf("%w: sender number for %s is required", ErrInvalidConfig, channel)
	}

	for _, opt := range opts {
		opt(m)
	}

	return m, nil
}

func (m *Messaging) Name() string {
	return string(m.channel) + "-provider"
}

func (m *Messaging) ValidateDestination(to string) error {
	if err := validator.Apply(validator.ValidE164Phone("to", strings.TrimPrefix(to, whatsAppPrefix))); err != nil {
		return validationError(m.Name(), err)
	}
	return nil
}

func (m *Messaging) ValidateMessage(msg Message) error {
	if err := validator.Apply(
		validator.RequiredString("body", msg.Body),
		validator.MaxLenString("body", msg.Body, m.maxLen),
	); err != nil {
		return validationError(m.Name(), err)
	}
	return nil
}

type messagingResponse struct {
	SID     string `json:"sid"`
	Status  string `json:"status"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Send submits msg. The receipt never reports delivery; the provider calls back later.
func (m *Messaging) Send(ctx context.Context, msg Message) (Receipt, error) {
	if err := m.ValidateDestination(msg.To); err != nil {
		return Receipt{}, err
	}
	if err := m.ValidateMessage(msg); err != nil {
		return Receipt{}, err
	}

	form := url.Values{}
	form.Set("To", m.address(msg.To))
	form.Set("From", m.address(m.from))
	form.Set("Body", msg.Body)
	if m.cfg.StatusCallbackURL != "" {
		form.Set("StatusCallback", m.cfg.StatusCallbackURL)
	}

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json",
		strings.TrimRight(m.cfg.BaseURL, "/"), url.PathEscape(m.cfg.AccountSID))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return Receipt{}, &Error{Provider: m.Name(), Kind: KindValidation, Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	req.SetBasicAuth(m.cfg.AccountSID, m.cfg.AuthToken)

	resp, err := m.client.Do(req)
	if err != nil {
		return Receipt{}, &Error{Provider: m.Name(), Kind: KindNetworkError, Err: transportError(ctx, err)}
	}
	defer func() { _ = resp.Body.Close() }()

	// 64KB is far beyond any legitimate response
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))

	var parsed messagingResponse
	_ = json.Unmarshal(body, &parsed)

	if resp.StatusCode != http.StatusCreated {
		message := parsed.Message
		if message == "" {
			message = sanitize(string(body))
		}
		return Receipt{}, &Error{
			Provider:   m.Name(),
			Kind:       KindForStatus(resp.StatusCode),
			StatusCode: resp.StatusCode,
			Message:    message,
		}
	}

	if parsed.SID == "" {
		return Receipt{}, &Error{
			Provider:   m.Name(),
			Kind:       KindServerError,
			StatusCode: resp.StatusCode,
			Message:    "response carries no message sid",
		}
	}

	return Receipt{MessageID: parsed.SID}, nil
}

// HealthCheck fetches the account resource to verify reachability and credentials.
func (m *Messaging) HealthCheck(ctx context.Context) error {
	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s.json",
		strings.TrimRight(m.cfg.BaseURL, "/"), url.PathEscape(m.cfg.AccountSID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return &Error{Provider: m.Name(), Kind: KindValidation, Err: err}
	}
	req.SetBasicAuth(m.cfg.AccountSID, m.cfg.AuthToken)

	resp, err := m.client.Do(req)
	if err != nil {
		return &Error{Provider: m.Name(), Kind: KindNetworkError, Err: transportError(ctx, err)}
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))

	if resp.StatusCode != http.StatusOK {
		return &Error{Provider: m.Name(), Kind: KindForStatus(resp.StatusCode), StatusCode: resp.StatusCode}
	}
	return nil
}

func (m *Messaging) address(number string) string {
	if m.channel == MessagingWhatsApp && !strings.HasPrefix(number, whatsAppPrefix) {
		return whatsAppPrefix + number
	}
	return number
}

// transportError keeps the caller's context error visible to errors.Is.
func transportError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
		return errors.Join(ctxErr, err)
	}
	return err
}

// sanitize flattens a response body for safe logging.
func sanitize(s string) string {
	s = strings.ReplaceAll(strings.TrimSpace(s), "\n", " ")
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return s
}
