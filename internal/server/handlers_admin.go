package server

import (
	"fmt"
	"net/http"
	"strings"

	"quicksand/internal/auth"
)

const adminTokenHeader = "X-Admin-Token"

// requireAdmin authorizes maintenance endpoints against the configured
// bcrypt token hash. No hash configured means the endpoints stay closed.
func (s *Server) requireAdmin(w http.ResponseWriter, r *http.Request) bool {
	if s.adminTokenHash == "" {
		s.writeServiceError(w, r, unauthorized(fmt.Errorf("admin access is not configured")))
		return false
	}

	token := r.Header.Get(adminTokenHeader)
	if token == "" {
		if bearer := r.Header.Get("Authorization"); strings.HasPrefix(bearer, "Bearer ") {
			token = strings.TrimPrefix(bearer, "Bearer ")
		}
	}
	if token == "" || !auth.VerifyToken(s.adminTokenHash, token) {
		s.writeServiceError(w, r, unauthorized(fmt.Errorf("invalid admin token")))
		return false
	}
	return true
}

func (s *Server) handleAdminSweep(w http.ResponseWriter, r *http.Request) {
	if !s.requireAdmin(w, r) {
		return
	}

	removed, err := s.service.SweepExpired(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]int{"removed": removed})
}

func (s *Server) handleAdminReconcile(w http.ResponseWriter, r *http.Request) {
	if !s.requireAdmin(w, r) {
		return
	}

	result, err := s.service.Reconcile(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, result)
}
