package provider

import (
	"context"
	"fmt"

	"github.com/mrz1836/postmark"

	"github.com/dmitrymomot/notifier/pkg/validator"
)

// Postmark error codes that are not validation problems.
// See https://postmarkapp.com/developer/api/overview#error-codes
const (
	postmarkBadToken              = 10
	postmarkSenderNotFound        = 400
	postmarkSenderNotConfirmed    = 401
	postmarkNotAllowedToSend      = 405
	postmarkRateLimited           = 429
	postmarkInternalError         = 500
	postmarkServiceTemporarilyOff = 503
)

// Postmark sends email through the Postmark transactional API.
type Postmark struct {
	client *postmark.Client
	cfg    PostmarkConfig
}

// PostmarkOption configures a Postmark adapter.
type PostmarkOption func(*Postmark)

// WithPostmarkBaseURL points the client at a different API host.
func WithPostmarkBaseURL(u string) PostmarkOption {
	return func(p *Postmark) {
		p.client.BaseURL = u
	}
}

func NewPostmark(cfg PostmarkConfig, opts ...PostmarkOption) (*Postmark, error) {
	if cfg.ServerToken == "" {
		return nil, fmt.Errorf("%w: postmark server token is required", ErrInvalidConfig)
	}
	if err := validator.Apply(
		validator.ValidEmail("sender_email", cfg.SenderEmail),
		validator.ValidEmail("support_email", cfg.SupportEmail),
	); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	p := &Postmark{
		client: postmark.NewClient(cfg.ServerToken, cfg.AccountToken),
		cfg:    cfg,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

func (p *Postmark) Name() string { return "email-provider" }

func (p *Postmark) ValidateDestination(to string) error {
	return validateEmailDestination(p.Name(), to)
}

func (p *Postmark) ValidateMessage(msg Message) error {
	return validateEmailMessage(p.Name(), msg)
}

// Send hands the message to Postmark. Postmark accepting the message counts as delivery.
func (p *Postmark) Send(ctx context.Context, msg Message) (Receipt, error) {
	if err := p.ValidateDestination(msg.To); err != nil {
		return Receipt{}, err
	}
	if err := p.ValidateMessage(msg); err != nil {
		return Receipt{}, err
	}

	resp, err := p.client.SendEmail(ctx, postmark.Email{
		From:       p.cfg.SenderEmail,
		ReplyTo:    p.cfg.SupportEmail,
		To:         msg.To,
		Subject:    msg.Subject,
		Tag:        msg.Tag,
		HTMLBody:   msg.Body,
		TrackOpens: true,
		TrackLinks: "HtmlOnly",
	})
	if err != nil {
		return Receipt{}, &Error{Provider: p.Name(), Kind: KindNetworkError, Err: transportError(ctx, err)}
	}
	if resp.ErrorCode != 0 {
		return Receipt{}, &Error{
			Provider:   p.Name(),
			Kind:       postmarkKind(int64(resp.ErrorCode)),
			StatusCode: int(resp.ErrorCode),
			Message:    resp.Message,
		}
	}

	return Receipt{MessageID: resp.MessageID, Delivered: true}, nil
}

// HealthCheck reads the current server settings, which requires a valid server token.
func (p *Postmark) HealthCheck(ctx context.Context) error {
	if _, err := p.client.GetCurrentServer(ctx); err != nil {
		return &Error{Provider: p.Name(), Kind: KindNetworkError, Err: transportError(ctx, err)}
	}
	return nil
}

func postmarkKind(code int64) ErrorKind {
	switch code {
	case postmarkBadToken, postmarkSenderNotFound, postmarkSenderNotConfirmed, postmarkNotAllowedToSend:
		return KindAuthentication
	case postmarkRateLimited:
		return KindRateLimited
	case postmarkInternalError, postmarkServiceTemporarilyOff:
		return KindServerError
	default:
		return KindValidation
	}
}

func validateEmailDestination(provider, to string) error {
	if err := validator.Apply(validator.ValidEmail("to", to)); err != nil {
		return validationError(provider, err)
	}
	return nil
}

func validateEmailMessage(provider string, msg Message) error {
	if err := validator.Apply(
		validator.RequiredString("subject", msg.Subject),
		validator.RequiredString("body", msg.Body),
	); err != nil {
		return validationError(provider, err)
	}
	return nil
}
