package server

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"quicksand/internal/auth"
)

const (
	ownerCookieName = "quicksand_delete_code"
	ownerHeaderName = "X-Owner-Token"
)

// ownerToken extracts the caller's capability token. The header wins over
// the cookie so API clients are unaffected by browser state. Tokens that
// fail the minimum-length check are treated as absent.
func (s *Server) ownerToken(r *http.Request) string {
	if token := r.Header.Get(ownerHeaderName); token != "" {
		if auth.ValidateToken(token) == nil {
			return token
		}
		return ""
	}
	cookie, err := r.Cookie(ownerCookieName)
	if err != nil {
		return ""
	}
	if auth.ValidateToken(cookie.Value) != nil {
		return ""
	}
	return cookie.Value
}

// ensureOwnerToken returns the caller's token, minting a fresh one when
// none is presented. The cookie lifetime covers the longest offered
// retention so the token outlives anything it protects.
func (s *Server) ensureOwnerToken(w http.ResponseWriter, r *http.Request) string {
	token := s.ownerToken(r)
	if token == "" {
		token = uuid.NewString()
	}
	s.setOwnerCookie(w, token)
	return token
}

func (s *Server) setOwnerCookie(w http.ResponseWriter, token string) {
	if !s.cookiesEnabled {
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     ownerCookieName,
		Value:    token,
		Path:     "/",
		Expires:  time.Now().Add(s.retention.MaxTTL()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// clearOwnerCookie drops the cookie once the token protects nothing.
func (s *Server) clearOwnerCookie(w http.ResponseWriter) {
	if !s.cookiesEnabled {
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     ownerCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}
