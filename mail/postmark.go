package mail

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/mrz1836/postmark"
)

// PostmarkConfig configures the Postmark transport.
type PostmarkConfig struct {
	ServerToken  string `env:"SERVER_TOKEN" validate:"required"`
	AccountToken string `env:"ACCOUNT_TOKEN"`
	From         string `env:"FROM" validate:"required,email"`
	ReplyTo      string `env:"REPLY_TO" validate:"omitempty,email"`
	Tag          string `env:"TAG"`
}

// Postmark sends messages through Postmark's transactional API.
type Postmark struct {
	client *postmark.Client
	cfg    PostmarkConfig
}

var configValidator = validator.New(validator.WithRequiredStructEnabled())

// NewPostmark validates cfg and builds the client. httpClient may be nil.
func NewPostmark(cfg PostmarkConfig, httpClient *http.Client) (*Postmark, error) {
	if err := configValidator.Struct(cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if cfg.Tag == "" {
		cfg.Tag = "password-reset"
	}

	client := postmark.NewClient(cfg.ServerToken, cfg.AccountToken)
	if httpClient != nil {
		client.HTTPClient = httpClient
	}
	return &Postmark{client: client, cfg: cfg}, nil
}

// WithBaseURL points the client at another API endpoint.
func (p *Postmark) WithBaseURL(url string) *Postmark {
	p.client.BaseURL = url
	return p
}

// Send delivers msg. Link tracking is disabled so reset links reach the
// user unmodified.
func (p *Postmark) Send(ctx context.Context, msg Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}

	resp, err := p.client.SendEmail(ctx, postmark.Email{
		From:       p.cfg.From,
		ReplyTo:    p.cfg.ReplyTo,
		To:         msg.To,
		Subject:    msg.Subject,
		Tag:        p.cfg.Tag,
		TextBody:   msg.Body,
		TrackOpens: false,
		TrackLinks: "None",
	})
	if err != nil {
		return errors.Join(ErrSendFailed, err)
	}
	if resp.ErrorCode > 0 {
		return errors.Join(ErrSendFailed, fmt.Errorf("postmark error: %d - %s", resp.ErrorCode, resp.Message))
	}
	return nil
}
