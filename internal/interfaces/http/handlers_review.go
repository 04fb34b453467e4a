package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/wordmine/wordmine/internal/errs"
	"github.com/wordmine/wordmine/internal/review"
	"github.com/wordmine/wordmine/internal/srs"
)

const defaultListLimit = 50

// handleSubmitReview grades one recall attempt and returns the new card
// state together with the settled economy.
func (s *Server) handleSubmitReview(w http.ResponseWriter, r *http.Request) {
	var body ReviewSubmitRequest
	if err := decodeBody(r, &body); err != nil {
		writeError(w, r, err)
		return
	}

	req := review.ReviewRequest{
		UserID:            userIDFrom(r.Context()),
		ProgressID:        body.ProgressID,
		LearningPointID:   body.LearningPointID,
		Rating:            body.Rating,
		ResponseTimeMs:    body.ResponseTimeMs,
		Nonce:             body.Nonce,
		InitialDifficulty: body.InitialDifficulty,
	}
	if body.ReviewDate != nil {
		req.ReviewDate = *body.ReviewDate
	}

	resp, err := s.deps.Reviews.ProcessReview(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	if resp.Result != nil {
		alg := string(resp.Result.Algorithm)
		s.metrics.Reviews.WithLabelValues(alg, strconv.Itoa(body.Rating)).Inc()
		s.metrics.ReviewInterval.WithLabelValues(alg).Observe(float64(resp.Result.NextIntervalDays))
		if resp.Result.BecameLeech {
			s.metrics.LeechesFlagged.Inc()
		}
	}
	if resp.Economy != nil {
		s.observeEconomy(resp.Economy)
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleRetention predicts recall probability for one card at a date.
func (s *Server) handleRetention(w http.ResponseWriter, r *http.Request) {
	progressID := r.URL.Query().Get("progress_id")
	if progressID == "" {
		writeError(w, r, errs.Validation("progress_id query parameter is required"))
		return
	}

	target := time.Now().UTC()
	if raw := r.URL.Query().Get("date"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			writeError(w, r, errs.Validation("date must be YYYY-MM-DD: %v", err))
			return
		}
		target = parsed
	}

	retention, err := s.deps.Reviews.PredictRetention(r.Context(), userIDFrom(r.Context()), progressID, target)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, RetentionResponse{
		ProgressID: progressID,
		TargetDate: target,
		Retention:  retention,
	})
}

// handleDueCards lists cards scheduled on or before now, oldest first.
func (s *Server) handleDueCards(w http.ResponseWriter, r *http.Request) {
	asOf := time.Now().UTC()
	cards, err := s.deps.Reviews.DueCards(r.Context(), userIDFrom(r.Context()), asOf, queryLimit(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cardList(cards, asOf))
}

// handleLeeches lists flagged cards for special handling.
func (s *Server) handleLeeches(w http.ResponseWriter, r *http.Request) {
	cards, err := s.deps.Reviews.Leeches(r.Context(), userIDFrom(r.Context()), queryLimit(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cardList(cards, time.Now().UTC()))
}

func cardList(cards []*srs.CardState, asOf time.Time) CardListResponse {
	records := make([]CardRecord, 0, len(cards))
	for _, c := range cards {
		records = append(records, cardRecord(c))
	}
	return CardListResponse{Cards: records, Count: len(records), AsOf: asOf}
}

func queryLimit(r *http.Request) int {
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 500 {
			return n
		}
	}
	return defaultListLimit
}
