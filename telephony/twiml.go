package telephony

import (
	"fmt"
	"regexp"

	"github.com/twilio/twilio-go/twiml"
)

// Defaults for the empty-destination announcement.
const (
	DefaultVoiceLanguage   = "ar-SA"
	DefaultFallbackMessage = "مرحباً، لم يتم استلام رقم للاتصال به."
)

// phonePattern matches destinations dialled as PSTN numbers. Anything else is
// treated as a client identity.
var phonePattern = regexp.MustCompile(`^[\d+\-() ]+$`)

// VoiceConfig parameterises BuildVoiceResponse.
type VoiceConfig struct {
	CallerID        string
	Language        string
	FallbackMessage string
}

// IsPhoneNumber reports whether to would be dialled as a number.
func IsPhoneNumber(to string) bool {
	return phonePattern.MatchString(to)
}

// BuildVoiceResponse returns the call-control document for a dial request:
// Dial/Number for a phone number, Dial/Client for anything else, and a Say
// announcement when to is empty.
func BuildVoiceResponse(cfg VoiceConfig, to string) ([]byte, error) {
	if cfg.Language == "" {
		cfg.Language = DefaultVoiceLanguage
	}
	if cfg.FallbackMessage == "" {
		cfg.FallbackMessage = DefaultFallbackMessage
	}

	var verb twiml.Element
	switch {
	case to == "":
		verb = &twiml.VoiceSay{Message: cfg.FallbackMessage, Language: cfg.Language}
	case IsPhoneNumber(to):
		verb = &twiml.VoiceDial{
			CallerId:      cfg.CallerID,
			InnerElements: []twiml.Element{&twiml.VoiceNumber{PhoneNumber: to}},
		}
	default:
		verb = &twiml.VoiceDial{
			CallerId:      cfg.CallerID,
			InnerElements: []twiml.Element{&twiml.VoiceClient{Identity: to}},
		}
	}

	doc, err := twiml.Voice([]twiml.Element{verb})
	if err != nil {
		return nil, fmt.Errorf("render voice response: %w", err)
	}
	return []byte(doc), nil
}
