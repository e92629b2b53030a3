package domain

import "strings"

// TwoFactorMethod is the second factor a user has enabled.
type TwoFactorMethod string

const (
	TwoFactorNone TwoFactorMethod = ""
	TwoFactorTOTP TwoFactorMethod = "TOTP"
	TwoFactorSMS  TwoFactorMethod = "SMS"
)

func ParseTwoFactorMethod(s string) (TwoFactorMethod, bool) {
	switch m := TwoFactorMethod(strings.ToUpper(strings.TrimSpace(s))); m {
	case TwoFactorTOTP, TwoFactorSMS:
		return m, true
	default:
		return TwoFactorNone, false
	}
}

// TwoFactorState is the persisted second-factor configuration of a user.
// Secret and PendingSecret hold ciphertext produced by the field codec;
// they are never both set.
type TwoFactorState struct {
	Enabled       bool
	Method        TwoFactorMethod
	Secret        string
	PendingSecret string
	PhoneNumber   string
}

// EnrollmentPending reports whether a TOTP enrollment awaits confirmation.
func (s TwoFactorState) EnrollmentPending() bool {
	return !s.Enabled && s.PendingSecret != ""
}

// TOTPEnrollment is handed to the user once, when enrollment starts.
type TOTPEnrollment struct {
	Secret     string // base32, for manual entry
	OTPAuthURL string
	QRCode     string // base64 PNG
}
