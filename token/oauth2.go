package token

import (
	"golang.org/x/oauth2"
)

// ToOAuth2 converts a stored access/refresh pair to an oauth2.Token so the session can
// feed oauth2.NewClient and friends. Expiry is left zero when exp cannot be decoded.
func ToOAuth2(access, refresh string) *oauth2.Token {
	t := &oauth2.Token{
		AccessToken:  access,
		TokenType:    "Bearer",
		RefreshToken: refresh,
	}
	if exp, err := ExpiresAt(access); err == nil {
		t.Expiry = exp
	}
	return t
}
