package token

import (
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/jrsteele09/charger-dashboard/easee"
)

// ExpiresAt works out when the access token in creds expires. expiresIn wins; otherwise
// the exp claim is read from the token without verifying it. Nil means unknown.
func ExpiresAt(creds easee.Credentials, now time.Time) *time.Time {
	if creds.ExpiresIn > 0 {
		t := now.Add(time.Duration(creds.ExpiresIn * float64(time.Second)))
		return &t
	}
	return jwtExpiry(creds.AccessToken)
}

func jwtExpiry(rawToken string) *time.Time {
	if rawToken == "" {
		return nil
	}
	// The upstream signs its tokens, we only need to know when it stops accepting them
	parsed, _, err := jwtlib.NewParser().ParseUnverified(rawToken, jwtlib.MapClaims{})
	if err != nil {
		return nil
	}
	exp, err := parsed.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return nil
	}
	t := exp.Time
	return &t
}
