package http

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/wordmine/wordmine/internal/errs"
)

// handleGetSense resolves one sense by its dotted id.
func (s *Server) handleGetSense(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	sense, ok := s.deps.Vocab.GetSense(id)
	if !ok {
		writeError(w, r, errs.NotFound("sense %s", id))
		return
	}
	writeJSON(w, http.StatusOK, sense)
}

// handleGetWord lists every sense under a lemma.
func (s *Server) handleGetWord(w http.ResponseWriter, r *http.Request) {
	lemma := mux.Vars(r)["lemma"]
	senses := s.deps.Vocab.SensesForLemma(lemma)
	if len(senses) == 0 {
		writeError(w, r, errs.NotFound("word %s", lemma))
		return
	}
	writeJSON(w, http.StatusOK, WordResponse{Lemma: lemma, Senses: senses})
}
