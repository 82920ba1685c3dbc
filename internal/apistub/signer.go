package apistub

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
)

// hmacSigner signs and verifies the stub's tokens with a shared HS256 secret.
type hmacSigner struct {
	secret []byte
}

func newHMACSigner(secret string) *hmacSigner {
	return &hmacSigner{secret: []byte(secret)}
}

func (h *hmacSigner) Sign(claims jwt.MapClaims) (string, error) {
	signed, err := jwt.NewWithClaims(h.SigningMethod(), claims).SignedString(h.secret)
	if err != nil {
		return "", errors.Wrap(err, "[hmacSigner.Sign] failed to sign token")
	}
	return signed, nil
}

// VerificationKey is a jwt.Keyfunc.
func (h *hmacSigner) VerificationKey(t *jwt.Token) (interface{}, error) {
	if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, errors.Errorf("[hmacSigner.VerificationKey] unexpected signing method: %v", t.Header["alg"])
	}
	return h.secret, nil
}

func (h *hmacSigner) SigningMethod() jwt.SigningMethod {
	return jwt.SigningMethodHS256
}
