package telephony

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	twilio "github.com/twilio/twilio-go"
	twclient "github.com/twilio/twilio-go/client"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"
	"github.com/warp/voice-bridge/billing"
)

// SMSConfig carries the REST credentials and sender number.
type SMSConfig struct {
	AccountSID string
	AuthToken  string
	From       string
}

// TwilioMessenger sends SMS through the provider's Messages resource.
type TwilioMessenger struct {
	cfg    SMSConfig
	logger *slog.Logger
	rest   *twilio.RestClient
}

// NewTwilioMessenger builds a messenger on the SDK's REST client. httpClient
// carries every request; a nil one gets a 10 second timeout.
func NewTwilioMessenger(logger *slog.Logger, cfg SMSConfig, httpClient *http.Client) *TwilioMessenger {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}

	base := &twclient.Client{
		Credentials: twclient.NewCredentials(cfg.AccountSID, cfg.AuthToken),
		HTTPClient:  httpClient,
	}
	base.SetAccountSid(cfg.AccountSID)

	return &TwilioMessenger{
		cfg:    cfg,
		logger: logger.With("provider", "twilio"),
		rest:   twilio.NewRestClientWithParams(twilio.ClientParams{Client: base}),
	}
}

// Send posts one message and returns the provider's message sid. The SDK call
// does not take a context; only a context that is already done stops it, and
// the http client timeout bounds the rest.
func (p *TwilioMessenger) Send(ctx context.Context, to, body string) (string, error) {
	if p.cfg.AccountSID == "" || p.cfg.AuthToken == "" || p.cfg.From == "" {
		return "", fmt.Errorf("%w: Twilio SMS credentials not configured", billing.ErrConfigurationMissing)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	params := &openapi.CreateMessageParams{}
	params.SetTo(to)
	params.SetFrom(p.cfg.From)
	params.SetBody(body)

	msg, err := p.rest.Api.CreateMessage(params)
	if err != nil {
		var apiErr *twclient.TwilioRestError
		if errors.As(err, &apiErr) {
			return "", fmt.Errorf("twilio error %d (status %d): %s", apiErr.Code, apiErr.Status, apiErr.Message)
		}
		p.logger.ErrorContext(ctx, "twilio request failed", "error", err)
		return "", fmt.Errorf("send to twilio: %w", err)
	}
	if msg.Sid == nil || *msg.Sid == "" {
		return "", fmt.Errorf("twilio response carried no sid")
	}

	p.logger.InfoContext(ctx, "sms sent", "sid", *msg.Sid)
	return *msg.Sid, nil
}

func (p *TwilioMessenger) Name() string {
	return "twilio"
}
