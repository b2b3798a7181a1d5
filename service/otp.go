package service

import (
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"math/big"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"

	"github.com/hexlane/authgate/core"
)

// OTPIssuer produces and checks the local confirmation code shown to the
// user after a successful on-chain login.
type OTPIssuer interface {
	// Issue returns the code for this login. The issued code is kept on the
	// session until confirmed or cancelled.
	Issue(now time.Time) (string, error)

	// Verify checks a submitted code against the issued one.
	Verify(issued, submitted string, now time.Time) bool
}

// RandomOTPIssuer issues a uniformly random six-digit code per login. This is
// the default issuer.
type RandomOTPIssuer struct{}

const (
	otpMin  = 100000
	otpSpan = 900000
)

func (RandomOTPIssuer) Issue(time.Time) (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(otpSpan))
	if err != nil {
		return "", core.WrapError(core.KindUnknown, "failed to draw OTP", err)
	}
	return fmt.Sprintf("%06d", otpMin+n.Int64()), nil
}

func (RandomOTPIssuer) Verify(issued, submitted string, _ time.Time) bool {
	return subtle.ConstantTimeCompare([]byte(issued), []byte(submitted)) == 1
}

// TOTPIssuer derives the confirmation code from a shared TOTP secret, for
// deployments that want a real second factor instead of a displayed code.
type TOTPIssuer struct {
	Secret string
}

func (t TOTPIssuer) Issue(now time.Time) (string, error) {
	code, err := totp.GenerateCode(t.Secret, now)
	if err != nil {
		return "", core.WrapError(core.KindUnknown, "failed to derive TOTP code", err)
	}
	return code, nil
}

func (t TOTPIssuer) Verify(_, submitted string, now time.Time) bool {
	ok, err := totp.ValidateCustom(submitted, t.Secret, now, totp.ValidateOpts{
		Period: 30,
		Skew:   1,
		Digits: otp.DigitsSix,
	})
	return err == nil && ok
}
