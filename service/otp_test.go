package service

import (
	"strconv"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/require"
)

func TestRandomOTPIssuer(t *testing.T) {
	t.Parallel()

	issuer := RandomOTPIssuer{}
	now := time.Now()

	for range 32 {
		code, err := issuer.Issue(now)
		require.NoError(t, err)
		require.Len(t, code, 6)

		n, err := strconv.Atoi(code)
		require.NoError(t, err)
		require.GreaterOrEqual(t, n, 100000)
		require.LessOrEqual(t, n, 999999)

		require.True(t, issuer.Verify(code, code, now))
		require.False(t, issuer.Verify(code, "999999x", now))
	}
}

func TestTOTPIssuer(t *testing.T) {
	t.Parallel()

	key, err := totp.Generate(totp.GenerateOpts{Issuer: "authgate", AccountName: "alice"})
	require.NoError(t, err)

	issuer := TOTPIssuer{Secret: key.Secret()}
	now := time.Now()

	code, err := issuer.Issue(now)
	require.NoError(t, err)
	require.Len(t, code, 6)
	require.True(t, issuer.Verify(code, code, now))
	require.False(t, issuer.Verify("", "000000", now.Add(5*time.Minute)))
}
