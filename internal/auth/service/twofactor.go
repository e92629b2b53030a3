package service

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image/png"
	"strings"
	"time"

	"github.com/TimurCravtov/CraftHub/internal/auth/domain"
	"github.com/TimurCravtov/CraftHub/internal/auth/otp"
	"github.com/TimurCravtov/CraftHub/internal/auth/sms"
	"github.com/TimurCravtov/CraftHub/internal/auth/store"
	"github.com/TimurCravtov/CraftHub/internal/metrics"
	"github.com/TimurCravtov/CraftHub/pkg/cryptox"
	"github.com/TimurCravtov/CraftHub/pkg/slogx"
	pqotp "github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const (
	totpPeriod = 30
	totpSkew   = 1
	qrSize     = 200

	// DefaultCodeTTL is how long an SMS code stays valid.
	DefaultCodeTTL = 5 * time.Minute
)

// TwoFactorService drives TOTP enrollment (disabled, pending, enabled) and
// the SMS one-time-code flow. Secrets are stored encrypted through Codec.
type TwoFactorService struct {
	Store   store.Store
	Codec   *cryptox.FieldCodec
	Codes   otp.Store
	SMS     sms.Sender
	Issuer  string
	CodeTTL time.Duration
	Metrics *metrics.Metrics

	// Now defaults to time.Now.
	Now func() time.Time
}

func (s *TwoFactorService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *TwoFactorService) loadUser(ctx context.Context, userID string) (domain.User, error) {
	u, err := s.Store.Users().GetUserByID(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return domain.User{}, ErrUserNotFound
	}
	return u, err
}

// writeState stores next only if the user's state is still the one loaded
// into u, so overlapping requests cannot undo each other.
func (s *TwoFactorService) writeState(ctx context.Context, u domain.User, next domain.TwoFactorState) error {
	err := s.Store.Users().UpdateTwoFactor(ctx, u.ID, u.TwoFactor, next)
	if errors.Is(err, store.ErrConflict) {
		slogx.FromContext(ctx).Warn("two-factor state changed concurrently", "user_id", u.ID)
		return ErrTwoFactorStateChanged
	}
	return err
}

// Enroll starts a TOTP enrollment. The secret is kept as pending until
// Confirm sees a valid code for it; enrolling again replaces it.
func (s *TwoFactorService) Enroll(ctx context.Context, userID string) (domain.TOTPEnrollment, error) {
	u, err := s.loadUser(ctx, userID)
	if err != nil {
		return domain.TOTPEnrollment{}, err
	}
	if u.TwoFactor.Enabled {
		return domain.TOTPEnrollment{}, ErrTwoFactorAlreadyEnabled
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      s.Issuer,
		AccountName: u.Email,
		Period:      totpPeriod,
		Digits:      pqotp.DigitsSix,
		Algorithm:   pqotp.AlgorithmSHA1,
	})
	if err != nil {
		return domain.TOTPEnrollment{}, fmt.Errorf("failed to generate TOTP key: %w", err)
	}

	img, err := key.Image(qrSize, qrSize)
	if err != nil {
		return domain.TOTPEnrollment{}, fmt.Errorf("failed to render QR code: %w", err)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return domain.TOTPEnrollment{}, fmt.Errorf("failed to encode QR code: %w", err)
	}

	pending, err := s.Codec.Encrypt(key.Secret())
	if err != nil {
		return domain.TOTPEnrollment{}, err
	}
	if err := s.writeState(ctx, u, domain.TwoFactorState{PendingSecret: pending}); err != nil {
		return domain.TOTPEnrollment{}, err
	}

	return domain.TOTPEnrollment{
		Secret:     key.Secret(),
		OTPAuthURL: key.URL(),
		QRCode:     base64.StdEncoding.EncodeToString(buf.Bytes()),
	}, nil
}

// Confirm promotes the pending secret once the user proves they hold it.
// A wrong code leaves the enrollment untouched.
func (s *TwoFactorService) Confirm(ctx context.Context, userID, code string) error {
	u, err := s.loadUser(ctx, userID)
	if err != nil {
		return err
	}
	if !u.TwoFactor.EnrollmentPending() {
		return ErrNoTwoFactorEnrollmentInProgress
	}

	secret := s.Codec.DecryptOrEmpty(ctx, u.TwoFactor.PendingSecret)
	if secret == "" {
		return ErrNoTwoFactorEnrollmentInProgress
	}
	if !s.validateTOTP(code, secret) {
		slogx.FromContext(ctx).Warn("totp confirmation failed", "user_id", u.ID)
		return ErrInvalidTwoFactorCode
	}

	return s.writeState(ctx, u, domain.TwoFactorState{
		Enabled: true,
		Method:  domain.TwoFactorTOTP,
		Secret:  u.TwoFactor.PendingSecret,
	})
}

// Verify checks a second-factor code against whichever method the user has
// enabled. SMS codes are consumed by the attempt.
func (s *TwoFactorService) Verify(ctx context.Context, userID, code string) error {
	u, err := s.loadUser(ctx, userID)
	if err != nil {
		return err
	}
	if !u.TwoFactor.Enabled {
		return ErrTwoFactorNotEnabled
	}

	var ok bool
	switch u.TwoFactor.Method {
	case domain.TwoFactorTOTP:
		// An unreadable secret means the factor is unavailable.
		secret := s.Codec.DecryptOrEmpty(ctx, u.TwoFactor.Secret)
		ok = secret != "" && s.validateTOTP(code, secret)
	case domain.TwoFactorSMS:
		if err := s.VerifyCode(ctx, u.ID, code); err != nil {
			if errors.Is(err, ErrInvalidTwoFactorCode) {
				return err
			}
			return fmt.Errorf("failed to consume sms code: %w", err)
		}
		return nil
	default:
		return ErrTwoFactorNotEnabled
	}

	s.Metrics.TwoFactorVerification(string(domain.TwoFactorTOTP), ok)
	if !ok {
		slogx.FromContext(ctx).Warn("two-factor verification failed", "user_id", u.ID, "method", u.TwoFactor.Method)
		return ErrInvalidTwoFactorCode
	}
	return nil
}

// Disable removes every trace of the second factor.
func (s *TwoFactorService) Disable(ctx context.Context, userID string) error {
	u, err := s.loadUser(ctx, userID)
	if err != nil {
		return err
	}
	if !u.TwoFactor.Enabled {
		return ErrTwoFactorNotEnabled
	}
	return s.writeState(ctx, u, domain.TwoFactorState{})
}

// EnableSMS switches the user to SMS codes delivered to phone. Any pending
// TOTP enrollment is dropped.
func (s *TwoFactorService) EnableSMS(ctx context.Context, userID, phone string) error {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return ErrPhoneNumberRequired
	}

	u, err := s.loadUser(ctx, userID)
	if err != nil {
		return err
	}
	if u.TwoFactor.Enabled && u.TwoFactor.Method == domain.TwoFactorTOTP {
		return ErrTwoFactorAlreadyEnabled
	}

	return s.writeState(ctx, u, domain.TwoFactorState{
		Enabled:     true,
		Method:      domain.TwoFactorSMS,
		PhoneNumber: phone,
	})
}

// SendCode generates a fresh six digit code, replacing any pending one, and
// texts it to the user's phone.
func (s *TwoFactorService) SendCode(ctx context.Context, userID string) error {
	u, err := s.loadUser(ctx, userID)
	if err != nil {
		return err
	}
	if u.TwoFactor.Method != domain.TwoFactorSMS || u.TwoFactor.PhoneNumber == "" {
		return ErrTwoFactorNotEnabled
	}

	code, err := cryptox.GenerateNumericCode()
	if err != nil {
		return err
	}

	ttl := s.CodeTTL
	if ttl <= 0 {
		ttl = DefaultCodeTTL
	}
	if err := s.Codes.Put(ctx, u.ID, code, ttl); err != nil {
		return fmt.Errorf("failed to store sms code: %w", err)
	}

	if err := s.SMS.Send(ctx, u.TwoFactor.PhoneNumber, "Your verification code is: "+code); err != nil {
		slogx.FromContext(ctx).Warn("sms dispatch failed", "user_id", u.ID, "err", err)
		return fmt.Errorf("%w: %v", ErrSmsDispatchFailed, err)
	}
	return nil
}

// VerifyCode consumes the pending SMS code. Missing, expired and wrong codes
// all report ErrInvalidTwoFactorCode.
func (s *TwoFactorService) VerifyCode(ctx context.Context, userID, code string) error {
	ok, err := s.Codes.Consume(ctx, userID, strings.TrimSpace(code))
	if err != nil {
		return err
	}
	s.Metrics.TwoFactorVerification(string(domain.TwoFactorSMS), ok)
	if !ok {
		slogx.FromContext(ctx).Warn("sms code verification failed", "user_id", userID)
		return ErrInvalidTwoFactorCode
	}
	return nil
}

func (s *TwoFactorService) validateTOTP(code, secret string) bool {
	ok, err := totp.ValidateCustom(strings.TrimSpace(code), secret, s.now(), totp.ValidateOpts{
		Period:    totpPeriod,
		Skew:      totpSkew,
		Digits:    pqotp.DigitsSix,
		Algorithm: pqotp.AlgorithmSHA1,
	})
	return err == nil && ok
}
