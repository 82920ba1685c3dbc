package token

import (
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"

	apperrors "github.com/jrsteele09/militex-client/internal/errors"
)

// NowTimeFunc returns the current time. It can be overridden in tests.
var NowTimeFunc = time.Now

// ExpiresAt decodes the exp claim of a JWT without verifying its signature.
// The server re-validates every token; the client only reads exp to avoid needless round trips.
func ExpiresAt(rawToken string) (time.Time, error) {
	if strings.TrimSpace(rawToken) == "" {
		return time.Time{}, apperrors.ErrInvalidToken
	}

	unverified, _, err := jwtlib.NewParser().ParseUnverified(rawToken, jwtlib.MapClaims{})
	if err != nil {
		return time.Time{}, errors.Wrap(apperrors.ErrInvalidToken, err.Error())
	}

	exp, err := unverified.Claims.GetExpirationTime()
	if err != nil {
		return time.Time{}, errors.Wrap(apperrors.ErrInvalidToken, err.Error())
	}
	if exp == nil {
		return time.Time{}, errors.Wrap(apperrors.ErrInvalidToken, "missing exp claim")
	}
	return exp.Time, nil
}

// Validate returns ErrInvalidToken when rawToken cannot be decoded and ErrTokenExpired
// once its exp has passed.
func Validate(rawToken string) error {
	exp, err := ExpiresAt(rawToken)
	if err != nil {
		return err
	}
	if !NowTimeFunc().Before(exp) {
		return errors.Wrapf(apperrors.ErrTokenExpired, "expired at %s", exp.UTC().Format(time.RFC3339))
	}
	return nil
}

// IsValid reports whether rawToken decodes and its exp lies in the future.
// Anything that cannot be decoded is invalid.
func IsValid(rawToken string) bool {
	return Validate(rawToken) == nil
}

// TimeToExpiry returns how long rawToken remains valid; zero when expired or undecodable.
func TimeToExpiry(rawToken string) time.Duration {
	exp, err := ExpiresAt(rawToken)
	if err != nil {
		return 0
	}
	remaining := exp.Sub(NowTimeFunc())
	if remaining < 0 {
		return 0
	}
	return remaining
}
