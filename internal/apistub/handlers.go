package apistub

import (
	"encoding/json"
	"net/http"

	"github.com/jrsteele09/militex-client/token"
	"github.com/jrsteele09/militex-client/users"
)

const contentTypeJSON = "application/json"

func (s *Server) CSRF() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tok := s.CSRFToken()
		http.SetCookie(w, &http.Cookie{Name: "csrftoken", Value: tok, Path: "/", SameSite: http.SameSiteLaxMode})
		writeJSON(w, http.StatusOK, map[string]string{"csrfToken": tok})
	}
}

func (s *Server) Token() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var creds users.Credentials
		if !decode(w, r, &creds) {
			return
		}
		if fieldErrs := users.Validate(creds); fieldErrs != nil {
			writeJSON(w, http.StatusBadRequest, fieldErrs)
			return
		}

		s.mu.Lock()
		defer s.mu.Unlock()
		if s.rateLimited {
			writeJSONError(w, http.StatusTooManyRequests, "Request was throttled.")
			return
		}
		acct, ok := s.accounts[creds.Username]
		if !ok || !users.CheckPasswordHash(creds.Password, acct.passwordHash) {
			writeJSONError(w, http.StatusUnauthorized, "No active account found with the given credentials")
			return
		}
		if acct.locked {
			writeJSONError(w, http.StatusForbidden, "This account has been locked.")
			return
		}
		pair, err := s.issuePair(creds.Username)
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, pair)
	}
}

func (s *Server) Refresh() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req token.RefreshRequest
		if !decode(w, r, &req) {
			return
		}
		if req.Refresh == "" {
			writeJSON(w, http.StatusBadRequest, users.FieldErrors{"refresh": {"This field may not be blank."}})
			return
		}

		s.mu.Lock()
		defer s.mu.Unlock()
		if username, ok := s.refreshUser(req.Refresh); ok {
			s.respondRefresh(w, username, req.Refresh)
			return
		}
		writeJSON(w, http.StatusUnauthorized, map[string]string{
			"detail": "Token is invalid or expired",
			"code":   "token_not_valid",
		})
	}
}

// refreshUser must be called with s.mu held.
func (s *Server) refreshUser(raw string) (string, bool) {
	claims, err := s.parse(raw, tokenTypeRefresh)
	if err != nil {
		return "", false
	}
	jti, _ := claims["jti"].(string)
	username, ok := s.refreshTokens[jti]
	return username, ok
}

// respondRefresh must be called with s.mu held. With rotation on, the presented
// refresh token is retired and a new one returned.
func (s *Server) respondRefresh(w http.ResponseWriter, username, presented string) {
	access, err := s.signAccess(username)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	resp := token.RefreshResponse{Access: access}
	if s.rotateRefresh {
		if claims, err := s.parse(presented, tokenTypeRefresh); err == nil {
			jti, _ := claims["jti"].(string)
			delete(s.refreshTokens, jti)
		}
		if resp.Refresh, err = s.signRefresh(username); err != nil {
			writeJSONError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) Register() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var reg users.Registration
		if !decode(w, r, &reg) {
			return
		}
		if fieldErrs := users.Validate(reg); fieldErrs != nil {
			writeJSON(w, http.StatusBadRequest, fieldErrs)
			return
		}
		hash, err := users.HashPassword(reg.Password)
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, err.Error())
			return
		}

		s.mu.Lock()
		defer s.mu.Unlock()
		if _, exists := s.accounts[reg.Username]; exists {
			writeJSON(w, http.StatusBadRequest, users.FieldErrors{"username": {"A user with that username already exists."}})
			return
		}
		profile := users.UserProfile{
			Username:    reg.Username,
			Email:       reg.Email,
			FirstName:   reg.FirstName,
			LastName:    reg.LastName,
			PhoneNumber: reg.PhoneNumber,
			IsMilitary:  reg.IsMilitary,
		}
		s.accounts[reg.Username] = &account{profile: profile, passwordHash: hash}
		writeJSON(w, http.StatusCreated, profile)
	}
}

func (s *Server) Me() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()
		acct, ok := s.accounts[usernameFrom(r)]
		if !ok {
			writeJSONError(w, http.StatusNotFound, "Not found.")
			return
		}
		writeJSON(w, http.StatusOK, acct.profile)
	}
}

func (s *Server) UpdateMe() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var update users.ProfileUpdate
		if !decode(w, r, &update) {
			return
		}
		if fieldErrs := users.Validate(update); fieldErrs != nil {
			writeJSON(w, http.StatusBadRequest, fieldErrs)
			return
		}

		s.mu.Lock()
		defer s.mu.Unlock()
		acct, ok := s.accounts[usernameFrom(r)]
		if !ok {
			writeJSONError(w, http.StatusNotFound, "Not found.")
			return
		}
		update.Apply(&acct.profile)
		writeJSON(w, http.StatusOK, acct.profile)
	}
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSONError(w, http.StatusBadRequest, "JSON parse error - "+err.Error())
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeJSONError writes a DRF style {"detail": ...} error.
func writeJSONError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}
