// Package verify sends and checks one-time codes through Twilio Verify.
package verify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
	"github.com/twilio/twilio-go"
	twclient "github.com/twilio/twilio-go/client"
	openapi "github.com/twilio/twilio-go/rest/verify/v2"

	"github.com/tbourn/go-approval-gateway/internal/config"
)

// ErrInvalidPhone is returned for numbers that are not E.164 with a leading '+'.
var ErrInvalidPhone = errors.New("phone number must be E.164")

var validate = validator.New()

// ValidatePhone reports whether phone is a well-formed E.164 number.
func ValidatePhone(phone string) error {
	if err := validate.Var(phone, "required,e164"); err != nil {
		return ErrInvalidPhone
	}
	return nil
}

// verifyAPI is the subset of the Twilio Verify v2 client the provider uses.
type verifyAPI interface {
	CreateVerification(serviceSid string, params *openapi.CreateVerificationParams) (*openapi.VerifyV2Verification, error)
	CreateVerificationCheck(serviceSid string, params *openapi.CreateVerificationCheckParams) (*openapi.VerifyV2VerificationCheck, error)
}

// TwilioProvider issues codes through a Verify service.
type TwilioProvider struct {
	api        verifyAPI
	serviceSID string
	channel    string
}

// NewTwilioProvider builds a provider from account credentials.
func NewTwilioProvider(cfg config.TwilioConfig) *TwilioProvider {
	rc := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})
	channel := strings.TrimSpace(cfg.Channel)
	if channel == "" {
		channel = "sms"
	}
	return &TwilioProvider{api: rc.VerifyV2, serviceSID: cfg.ServiceSID, channel: channel}
}

// SendCode starts a verification for phone and returns its SID. A new
// verification replaces any code previously sent to the same number.
func (p *TwilioProvider) SendCode(ctx context.Context, phone string) (string, error) {
	if err := ValidatePhone(phone); err != nil {
		return "", err
	}
	params := &openapi.CreateVerificationParams{}
	params.SetTo(phone)
	params.SetChannel(p.channel)

	v, err := p.api.CreateVerification(p.serviceSID, params)
	if err != nil {
		return "", fmt.Errorf("twilio create verification: %w", err)
	}
	if v == nil || v.Sid == nil {
		return "", errors.New("twilio create verification: empty sid")
	}
	return *v.Sid, nil
}

// CheckCode reports whether code is valid for phone. Rejections by Twilio
// (wrong code, expired or already-used verification) yield false with no
// error; transport failures are returned.
func (p *TwilioProvider) CheckCode(ctx context.Context, phone, code, ref string) (bool, error) {
	params := &openapi.CreateVerificationCheckParams{}
	params.SetTo(phone)
	params.SetCode(code)

	res, err := p.api.CreateVerificationCheck(p.serviceSID, params)
	if err != nil {
		var rest *twclient.TwilioRestError
		if errors.As(err, &rest) {
			log.Ctx(ctx).Debug().Int("twilio_code", rest.Code).Str("verification", ref).Msg("verification check rejected")
			return false, nil
		}
		return false, fmt.Errorf("twilio verification check: %w", err)
	}
	return res != nil && res.Status != nil && *res.Status == "approved", nil
}
