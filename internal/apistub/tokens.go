package apistub

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/jrsteele09/militex-client/token"
)

const (
	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"
)

// IssueTokens mints an access/refresh pair for username as a successful login would.
func (s *Server) IssueTokens(username string) (token.Pair, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.issuePair(username)
}

// issuePair must be called with s.mu held.
func (s *Server) issuePair(username string) (token.Pair, error) {
	access, err := s.signAccess(username)
	if err != nil {
		return token.Pair{}, err
	}
	refresh, err := s.signRefresh(username)
	if err != nil {
		return token.Pair{}, err
	}
	return token.Pair{Access: access, Refresh: refresh}, nil
}

func (s *Server) signAccess(username string) (string, error) {
	now := s.now()
	claims := jwt.MapClaims{
		"token_type": tokenTypeAccess,
		"sub":        username,
		"jti":        uuid.NewString(),
		"iat":        now.Unix(),
		"exp":        now.Add(s.accessTTL).Unix(),
		"gen":        s.generation,
	}
	return s.sign(claims)
}

func (s *Server) signRefresh(username string) (string, error) {
	now := s.now()
	jti := uuid.NewString()
	claims := jwt.MapClaims{
		"token_type": tokenTypeRefresh,
		"sub":        username,
		"jti":        jti,
		"iat":        now.Unix(),
		"exp":        now.Add(s.refreshTTL).Unix(),
	}
	raw, err := s.sign(claims)
	if err != nil {
		return "", err
	}
	s.refreshTokens[jti] = username
	return raw, nil
}

func (s *Server) sign(claims jwt.MapClaims) (string, error) {
	return s.signer.Sign(claims)
}

// parse verifies the signature, exp and token type of raw.
func (s *Server) parse(raw, tokenType string) (jwt.MapClaims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{s.signer.SigningMethod().Alg()}),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
	)
	claims := jwt.MapClaims{}
	_, err := parser.ParseWithClaims(raw, claims, s.signer.VerificationKey)
	if err != nil {
		return nil, err
	}
	if claims["token_type"] != tokenType {
		return nil, fmt.Errorf("wrong token type %v", claims["token_type"])
	}
	return claims, nil
}

// accessUser returns the username of a valid, unrevoked access token. Must be called
// with s.mu held.
func (s *Server) accessUser(authorization string) (string, bool) {
	raw, ok := strings.CutPrefix(authorization, "Bearer ")
	if !ok || raw == "" {
		return "", false
	}
	claims, err := s.parse(raw, tokenTypeAccess)
	if err != nil {
		return "", false
	}
	gen, _ := claims["gen"].(float64)
	if int(gen) != s.generation {
		return "", false
	}
	sub, _ := claims.GetSubject()
	if _, ok := s.accounts[sub]; !ok {
		return "", false
	}
	return sub, true
}

func newCSRFToken() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
