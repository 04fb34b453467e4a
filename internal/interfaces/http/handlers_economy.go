package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/wordmine/wordmine/internal/economy"
	"github.com/wordmine/wordmine/internal/errs"
)

// clientEventSources are the sources a client may report directly. Answer
// settlement (mcq_*, review_pass) and mastery bonuses flow through their
// pipelines only, so a client can never self-grant them.
var clientEventSources = map[string]bool{
	economy.SourceViewWord:    true,
	economy.SourceStartMCQ:    true,
	economy.SourceReviewStart: true,
	economy.SourceWordHollow:  true,
	economy.SourceDailyLogin:  true,
	economy.SourceStreak7:     true,
	economy.SourceStreak30:    true,
}

// handleBalance returns the caller's wallet and level progress.
func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	wallet, err := s.deps.Economy.GetWallet(r.Context(), userIDFrom(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, wallet)
}

// handleLedger returns the caller's most recent transactions, optionally
// filtered to one currency.
func (s *Server) handleLedger(w http.ResponseWriter, r *http.Request) {
	currency := r.URL.Query().Get("currency")
	limit := defaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	txs, err := s.deps.Economy.History(r.Context(), userIDFrom(r.Context()), currency, limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, LedgerResponse{Transactions: txs, Count: len(txs)})
}

// handleSpend atomically verifies and deducts a cost basket.
func (s *Server) handleSpend(w http.ResponseWriter, r *http.Request) {
	var body SpendRequest
	if err := decodeBody(r, &body); err != nil {
		writeError(w, r, err)
		return
	}

	res, err := s.deps.Economy.Spend(r.Context(), userIDFrom(r.Context()), body.Cost, body.Reason, body.SourceID)
	if err != nil {
		if errors.Is(err, errs.ErrInsufficientFunds) {
			s.metrics.Spends.WithLabelValues("insufficient").Inc()
		} else {
			s.metrics.Spends.WithLabelValues("error").Inc()
		}
		writeError(w, r, err)
		return
	}
	s.metrics.Spends.WithLabelValues("ok").Inc()
	writeJSON(w, http.StatusOK, res)
}

// handleEvent settles one client-reported learning event.
func (s *Server) handleEvent(w http.ResponseWriter, r *http.Request) {
	var body EventRequest
	if err := decodeBody(r, &body); err != nil {
		writeError(w, r, err)
		return
	}
	if !clientEventSources[body.Source] {
		writeError(w, r, errs.Validation("unknown or restricted event source %q", body.Source))
		return
	}

	res, err := s.deps.Economy.GrantSparks(r.Context(), userIDFrom(r.Context()), body.Source, body.SourceID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.observeEconomy(res)
	writeJSON(w, http.StatusOK, res)
}

// handleMCQ settles the full economy of one answered question.
func (s *Server) handleMCQ(w http.ResponseWriter, r *http.Request) {
	var body MCQRequest
	if err := decodeBody(r, &body); err != nil {
		writeError(w, r, err)
		return
	}

	res, err := s.deps.Economy.ProcessMCQ(r.Context(), economy.MCQOutcome{
		UserID:          userIDFrom(r.Context()),
		SenseID:         body.SenseID,
		IsCorrect:       body.IsCorrect,
		IsFast:          body.IsFast,
		WordBecameSolid: body.WordBecameSolid,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.observeEconomy(res)
	writeJSON(w, http.StatusOK, res)
}

// observeEconomy feeds grant metrics from one settled result.
func (s *Server) observeEconomy(res *economy.Result) {
	for _, tx := range res.Transactions {
		if tx.Amount > 0 {
			s.metrics.Grants.WithLabelValues(tx.CurrencyType, tx.Source).Add(float64(tx.Amount))
		}
	}
	if res.LeveledUp() {
		s.metrics.LevelUps.Add(float64(len(res.LevelsGained)))
	}
}
