package http

import (
	"net/http"

	"github.com/wordmine/wordmine/internal/survey"
)

// handleSurveyStep runs one adaptive survey step. A body without a session
// id starts a new session; subsequent calls echo the prior question so the
// engine can grade statelessly.
func (s *Server) handleSurveyStep(w http.ResponseWriter, r *http.Request) {
	var in survey.StepInput
	if err := decodeBody(r, &in); err != nil {
		writeError(w, r, err)
		return
	}

	result, err := s.deps.Survey.ProcessStep(r.Context(), &in)
	if err != nil {
		s.metrics.SurveySteps.WithLabelValues("error").Inc()
		writeError(w, r, err)
		return
	}

	if result.Status == survey.StatusComplete {
		s.metrics.SurveySteps.WithLabelValues("complete").Inc()
		s.metrics.SurveyCompletions.Inc()
		if result.Metrics != nil {
			s.metrics.SurveyVolume.Observe(float64(result.Metrics.Volume))
		}
	} else {
		s.metrics.SurveySteps.WithLabelValues("continue").Inc()
	}
	writeJSON(w, http.StatusOK, result)
}
