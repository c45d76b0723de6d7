/*
Package telephony talks to the call-signalling provider.

CONTENTS:
  token.go: access tokens for the browser calling client
  twiml.go: call-control XML for the voice webhook
  sms.go:   outbound SMS over the provider's REST API
  mock.go:  in-process messenger for development and tests

All three provider concerns go through github.com/twilio/twilio-go; nothing
outside this package imports it.
*/
package telephony

import (
	"fmt"
	"math/rand"
	"strings"
	"time"

	twiliojwt "github.com/twilio/twilio-go/client/jwt"
	"github.com/warp/voice-bridge/billing"
)

// TokenContentType is the JWT "cty" header the provider expects. The SDK sets it.
const TokenContentType = "twilio-fpa;v=1"

// DefaultTokenTTL is how long a minted token stays valid.
const DefaultTokenTTL = time.Hour

// TokenConfig carries the provider credentials used for signing.
type TokenConfig struct {
	AccountSID string
	APIKey     string
	APISecret  string
	// AppSID is the outgoing voice application; may be empty.
	AppSID string
	TTL    time.Duration
}

// TokenIssuer mints voice access tokens.
type TokenIssuer struct {
	cfg    TokenConfig
	suffix func() int
}

// NewTokenIssuer returns an issuer. Missing credentials are not an error here;
// Issue reports them so the service can still start.
func NewTokenIssuer(cfg TokenConfig) *TokenIssuer {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTokenTTL
	}
	return &TokenIssuer{
		cfg:    cfg,
		suffix: func() int { return rand.Intn(1000) },
	}
}

// Issue signs a token for identity carrying a voice grant that allows incoming
// calls and names the outgoing application. An empty identity becomes
// user_<0..999>. The identity actually used is returned alongside the token.
func (ti *TokenIssuer) Issue(identity string) (string, string, error) {
	if ti.cfg.AccountSID == "" || ti.cfg.APIKey == "" || ti.cfg.APISecret == "" {
		return "", "", fmt.Errorf("%w: Twilio credentials not configured", billing.ErrConfigurationMissing)
	}

	identity = strings.TrimSpace(identity)
	if identity == "" {
		identity = fmt.Sprintf("user_%d", ti.suffix())
	}

	grant := &twiliojwt.VoiceGrant{}
	grant.Incoming.Allow = true
	grant.Outgoing.ApplicationSid = ti.cfg.AppSID

	token := twiliojwt.CreateAccessToken(twiliojwt.AccessTokenParams{
		AccountSid:    ti.cfg.AccountSID,
		SigningKeySid: ti.cfg.APIKey,
		Secret:        ti.cfg.APISecret,
		Identity:      identity,
		Ttl:           ti.cfg.TTL.Seconds(),
	})
	token.AddGrant(grant)

	signed, err := token.ToJwt()
	if err != nil {
		return "", "", fmt.Errorf("sign access token: %w", err)
	}
	return signed, identity, nil
}
