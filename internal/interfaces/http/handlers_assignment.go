package http

import (
	"net/http"
)

// handleGetAssignment returns the caller's algorithm assignment, creating
// one on first request.
func (s *Server) handleGetAssignment(w http.ResponseWriter, r *http.Request) {
	userID := userIDFrom(r.Context())
	assignment, err := s.deps.Assignments.GetOrAssign(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	eligible, count, err := s.deps.Assignments.CanMigrate(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, AssignmentResponse{
		Algorithm:   assignment.Algorithm,
		Reason:      assignment.AssignmentReason,
		CanMigrate:  eligible,
		ReviewCount: count,
	})
}

// handleMigrate flips an eligible caller to FSRS. Force is honored only on
// admin-authenticated requests so the eligibility floor cannot be bypassed
// from a user token.
func (s *Server) handleMigrate(w http.ResponseWriter, r *http.Request) {
	var body MigrateRequest
	if r.ContentLength > 0 {
		if err := decodeBody(r, &body); err != nil {
			writeError(w, r, err)
			return
		}
	}
	force := body.Force && isAdmin(r.Context())
	userID := userIDFrom(r.Context())
	if isAdmin(r.Context()) && body.UserID != "" {
		userID = body.UserID
	}

	assignment, err := s.deps.Assignments.Migrate(r.Context(), userID, force)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, AssignmentResponse{
		Algorithm:  assignment.Algorithm,
		Reason:     assignment.AssignmentReason,
		CanMigrate: false,
	})
}

// handleAssignmentStats reports the A/B population split. Admin only.
func (s *Server) handleAssignmentStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.deps.Assignments.Stats(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
