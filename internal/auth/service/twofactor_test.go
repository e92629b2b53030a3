package service_test

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/TimurCravtov/CraftHub/internal/auth/domain"
	"github.com/TimurCravtov/CraftHub/internal/auth/service"
	"github.com/TimurCravtov/CraftHub/internal/auth/store"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/require"
)

func enrollAndConfirm(t *testing.T, f *fixture, userID string) string {
	t.Helper()
	ctx := context.Background()

	enr, err := f.tfa.Enroll(ctx, userID)
	require.NoError(t, err)

	code, err := totp.GenerateCode(enr.Secret, f.clock.Now())
	require.NoError(t, err)
	require.NoError(t, f.tfa.Confirm(ctx, userID, code))
	return enr.Secret
}

// wrongCode returns a six digit code that is not valid for secret at now.
func wrongCode(t *testing.T, secret string, now time.Time) string {
	t.Helper()
	valid := map[string]bool{}
	for _, d := range []time.Duration{-30 * time.Second, 0, 30 * time.Second} {
		c, err := totp.GenerateCode(secret, now.Add(d))
		require.NoError(t, err)
		valid[c] = true
	}
	for _, c := range []string{"000000", "123456", "654321", "999999"} {
		if !valid[c] {
			return c
		}
	}
	t.Fatal("could not find an invalid code")
	return ""
}

func TestTOTPEnroll(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.signUp(t, "ana@example.com")

	enr, err := f.tfa.Enroll(ctx, u.ID)
	require.NoError(t, err)
	require.NotEmpty(t, enr.Secret)
	require.True(t, strings.HasPrefix(enr.OTPAuthURL, "otpauth://totp/"), enr.OTPAuthURL)
	require.Contains(t, enr.OTPAuthURL, "issuer=CraftHub")

	png, err := base64.StdEncoding.DecodeString(enr.QRCode)
	require.NoError(t, err)
	require.True(t, bytes.HasPrefix(png, []byte("\x89PNG")))

	stored, err := f.store.Users().GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	require.True(t, stored.TwoFactor.EnrollmentPending())
	require.False(t, stored.TwoFactor.Enabled)
	require.Empty(t, stored.TwoFactor.Secret)
	require.NotContains(t, stored.TwoFactor.PendingSecret, enr.Secret, "secret must be stored encrypted")
}

func TestTOTPConfirmOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.signUp(t, "ana@example.com")

	enr, err := f.tfa.Enroll(ctx, u.ID)
	require.NoError(t, err)

	err = f.tfa.Confirm(ctx, u.ID, wrongCode(t, enr.Secret, f.clock.Now()))
	require.ErrorIs(t, err, service.ErrInvalidTwoFactorCode)

	stored, err := f.store.Users().GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	require.True(t, stored.TwoFactor.EnrollmentPending(), "wrong code leaves state unchanged")

	code, err := totp.GenerateCode(enr.Secret, f.clock.Now())
	require.NoError(t, err)
	require.NoError(t, f.tfa.Confirm(ctx, u.ID, code))

	stored, err = f.store.Users().GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	require.True(t, stored.TwoFactor.Enabled)
	require.Equal(t, domain.TwoFactorTOTP, stored.TwoFactor.Method)
	require.NotEmpty(t, stored.TwoFactor.Secret)
	require.Empty(t, stored.TwoFactor.PendingSecret)

	err = f.tfa.Confirm(ctx, u.ID, code)
	require.ErrorIs(t, err, service.ErrNoTwoFactorEnrollmentInProgress)
}

func TestTOTPConfirmWithoutEnrollment(t *testing.T) {
	f := newFixture(t)
	u := f.signUp(t, "ana@example.com")

	err := f.tfa.Confirm(context.Background(), u.ID, "123456")
	require.ErrorIs(t, err, service.ErrNoTwoFactorEnrollmentInProgress)
}

func TestTOTPEnrollWhenEnabled(t *testing.T) {
	f := newFixture(t)
	u := f.signUp(t, "ana@example.com")
	enrollAndConfirm(t, f, u.ID)

	_, err := f.tfa.Enroll(context.Background(), u.ID)
	require.ErrorIs(t, err, service.ErrTwoFactorAlreadyEnabled)
}

func TestTOTPVerify(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.signUp(t, "ana@example.com")
	secret := enrollAndConfirm(t, f, u.ID)

	code, err := totp.GenerateCode(secret, f.clock.Now())
	require.NoError(t, err)
	require.NoError(t, f.tfa.Verify(ctx, u.ID, code))

	// One step of skew either side is tolerated.
	f.clock.Advance(30 * time.Second)
	require.NoError(t, f.tfa.Verify(ctx, u.ID, code))

	f.clock.Advance(5 * time.Minute)
	require.ErrorIs(t, f.tfa.Verify(ctx, u.ID, code), service.ErrInvalidTwoFactorCode)
}

func TestTOTPVerifyWrongSecret(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.signUp(t, "ana@example.com")
	secret := enrollAndConfirm(t, f, u.ID)

	for range 5 {
		key, err := totp.Generate(totp.GenerateOpts{Issuer: "x", AccountName: "y"})
		require.NoError(t, err)
		code, err := totp.GenerateCode(key.Secret(), f.clock.Now())
		require.NoError(t, err)

		// Skip the rare collision with a currently valid code.
		if ok, _ := totp.ValidateCustom(code, secret, f.clock.Now(), totp.ValidateOpts{Period: 30, Skew: 1, Digits: 6}); ok {
			continue
		}
		require.ErrorIs(t, f.tfa.Verify(ctx, u.ID, code), service.ErrInvalidTwoFactorCode)
	}
}

func TestTOTPVerifyUnreadableSecret(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.signUp(t, "ana@example.com")

	require.NoError(t, f.store.Users().UpdateTwoFactor(ctx, u.ID, u.TwoFactor, domain.TwoFactorState{
		Enabled: true,
		Method:  domain.TwoFactorTOTP,
		Secret:  "bm90LWEtcmVhbC1jaXBoZXJ0ZXh0LWF0LWFsbA==",
	}))

	require.ErrorIs(t, f.tfa.Verify(ctx, u.ID, "123456"), service.ErrInvalidTwoFactorCode)
}

// staleStore serves GetUserByID from a snapshot, as if the read happened
// before a concurrent request changed the row.
type staleStore struct {
	store.Store
	snapshot domain.User
}

func (s staleStore) Users() store.Users {
	return staleUsers{Users: s.Store.Users(), snapshot: s.snapshot}
}

type staleUsers struct {
	store.Users
	snapshot domain.User
}

func (u staleUsers) GetUserByID(context.Context, string) (domain.User, error) {
	return u.snapshot, nil
}

func TestTOTPEnrollOverlappingConfirmKeepsTwoFactorOn(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.signUp(t, "ana@example.com")

	enr, err := f.tfa.Enroll(ctx, u.ID)
	require.NoError(t, err)
	beforeConfirm, err := f.store.Users().GetUserByID(ctx, u.ID)
	require.NoError(t, err)

	code, err := totp.GenerateCode(enr.Secret, f.clock.Now())
	require.NoError(t, err)
	require.NoError(t, f.tfa.Confirm(ctx, u.ID, code))

	// A second Enroll that loaded the user before Confirm wrote.
	late := *f.tfa
	late.Store = staleStore{Store: f.store, snapshot: beforeConfirm}
	_, err = late.Enroll(ctx, u.ID)
	require.ErrorIs(t, err, service.ErrTwoFactorStateChanged)

	got, err := f.store.Users().GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	require.True(t, got.TwoFactor.Enabled)
	require.Equal(t, domain.TwoFactorTOTP, got.TwoFactor.Method)
	require.Empty(t, got.TwoFactor.PendingSecret)
}

func TestTwoFactorDisable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.signUp(t, "ana@example.com")

	require.ErrorIs(t, f.tfa.Disable(ctx, u.ID), service.ErrTwoFactorNotEnabled)

	enrollAndConfirm(t, f, u.ID)
	require.NoError(t, f.tfa.Disable(ctx, u.ID))

	stored, err := f.store.Users().GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, domain.TwoFactorState{}, stored.TwoFactor)

	require.ErrorIs(t, f.tfa.Disable(ctx, u.ID), service.ErrTwoFactorNotEnabled)
	require.ErrorIs(t, f.tfa.Verify(ctx, u.ID, "123456"), service.ErrTwoFactorNotEnabled)
}

func TestTwoFactorUnknownUser(t *testing.T) {
	f := newFixture(t)
	_, err := f.tfa.Enroll(context.Background(), "missing")
	require.ErrorIs(t, err, service.ErrUserNotFound)
}

func TestEnableSMS(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.signUp(t, "ana@example.com")

	require.ErrorIs(t, f.tfa.EnableSMS(ctx, u.ID, "  "), service.ErrPhoneNumberRequired)

	// A pending TOTP enrollment is dropped.
	_, err := f.tfa.Enroll(ctx, u.ID)
	require.NoError(t, err)
	require.NoError(t, f.tfa.EnableSMS(ctx, u.ID, "+37360000001"))

	stored, err := f.store.Users().GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	require.True(t, stored.TwoFactor.Enabled)
	require.Equal(t, domain.TwoFactorSMS, stored.TwoFactor.Method)
	require.Equal(t, "+37360000001", stored.TwoFactor.PhoneNumber)
	require.Empty(t, stored.TwoFactor.PendingSecret)

	other := f.signUp(t, "bob@example.com")
	enrollAndConfirm(t, f, other.ID)
	require.ErrorIs(t, f.tfa.EnableSMS(ctx, other.ID, "+37360000002"), service.ErrTwoFactorAlreadyEnabled)
}

func TestSMSCodeSingleUse(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.signUp(t, "ana@example.com")
	require.NoError(t, f.tfa.EnableSMS(ctx, u.ID, "+37360000001"))

	require.NoError(t, f.tfa.SendCode(ctx, u.ID))
	code := f.sender.lastCode(t)
	require.Regexp(t, regexp.MustCompile(`^[1-9][0-9]{5}$`), code)

	require.NoError(t, f.tfa.VerifyCode(ctx, u.ID, code))
	require.ErrorIs(t, f.tfa.VerifyCode(ctx, u.ID, code), service.ErrInvalidTwoFactorCode)
}

func TestSMSCodeWrongAttemptBurnsCode(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.signUp(t, "ana@example.com")
	require.NoError(t, f.tfa.EnableSMS(ctx, u.ID, "+37360000001"))

	require.NoError(t, f.tfa.SendCode(ctx, u.ID))
	code := f.sender.lastCode(t)

	wrong := "100000"
	if code == wrong {
		wrong = "100001"
	}
	require.ErrorIs(t, f.tfa.Verify(ctx, u.ID, wrong), service.ErrInvalidTwoFactorCode)
	require.ErrorIs(t, f.tfa.Verify(ctx, u.ID, code), service.ErrInvalidTwoFactorCode)
}

func TestSMSCodeExpires(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.signUp(t, "ana@example.com")
	require.NoError(t, f.tfa.EnableSMS(ctx, u.ID, "+37360000001"))

	require.NoError(t, f.tfa.SendCode(ctx, u.ID))
	code := f.sender.lastCode(t)

	f.clock.Advance(5*time.Minute + time.Second)
	require.ErrorIs(t, f.tfa.Verify(ctx, u.ID, code), service.ErrInvalidTwoFactorCode)
}

func TestSMSResendReplacesCode(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.signUp(t, "ana@example.com")
	require.NoError(t, f.tfa.EnableSMS(ctx, u.ID, "+37360000001"))

	require.NoError(t, f.tfa.SendCode(ctx, u.ID))
	first := f.sender.lastCode(t)
	require.NoError(t, f.tfa.SendCode(ctx, u.ID))
	second := f.sender.lastCode(t)

	if first != second {
		require.ErrorIs(t, f.tfa.VerifyCode(ctx, u.ID, first), service.ErrInvalidTwoFactorCode)
		require.NoError(t, f.tfa.SendCode(ctx, u.ID))
		second = f.sender.lastCode(t)
	}
	require.NoError(t, f.tfa.VerifyCode(ctx, u.ID, second))
}

func TestSMSDispatchFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.signUp(t, "ana@example.com")
	require.NoError(t, f.tfa.EnableSMS(ctx, u.ID, "+37360000001"))

	f.sender.err = errors.New("gateway down")
	err := f.tfa.SendCode(ctx, u.ID)
	require.ErrorIs(t, err, service.ErrSmsDispatchFailed)
}

func TestSendCodeRequiresSMS(t *testing.T) {
	f := newFixture(t)
	u := f.signUp(t, "ana@example.com")
	require.ErrorIs(t, f.tfa.SendCode(context.Background(), u.ID), service.ErrTwoFactorNotEnabled)
}
