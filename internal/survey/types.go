// Package survey runs the adaptive vocabulary-size estimation session: band
// selection, question generation, stateless grading, confidence scoring, and
// the final tri-metric report.
package survey

import (
	"time"

	"github.com/wordmine/wordmine/internal/distractor"
	"github.com/wordmine/wordmine/internal/vocab"
)

// Status is the session lifecycle state. The transition is one-way; a
// complete session is immutable.
type Status string

const (
	StatusActive   Status = "active"
	StatusComplete Status = "complete"
)

// TimeLimitSeconds is the client-side time limit per question. A late
// submission is still graded normally.
const TimeLimitSeconds = 12

// maxRecentLemmas bounds the session's recently-seen list. Twice the widest
// exclusion window is always retained.
const maxRecentLemmas = 80

// Option is one question choice as surfaced to the client and stored in
// history. The id also encodes the type prefix for stateless grading.
type Option struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	Type      string `json:"type"`
	IsCorrect bool   `json:"is_correct"`
}

// Question is one survey step payload.
type Question struct {
	QuestionID       string   `json:"question_id"`
	Word             string   `json:"word"`
	Rank             int      `json:"rank"`
	Options          []Option `json:"options"`
	TimeLimitSeconds int      `json:"time_limit_seconds"`
}

// Answer is the client's response to the previous question.
type Answer struct {
	QuestionID        string   `json:"question_id"`
	SelectedOptionIDs []string `json:"selected_option_ids"`
	TimeTaken         float64  `json:"time_taken,omitempty"`
}

// StepInput is one process-step request. A first call carries no session id;
// subsequent calls echo the prior question so grading and band attribution
// need no server-side question store.
type StepInput struct {
	SessionID     string    `json:"session_id,omitempty"`
	PriorAnswer   *Answer   `json:"prior_answer,omitempty"`
	PriorQuestion *Question `json:"prior_question_details,omitempty"`
}

// Metrics is the tri-metric survey report.
type Metrics struct {
	Volume  int     `json:"volume"`
	Reach   int     `json:"reach"`
	Density float64 `json:"density"`
}

// StepResult is either a continue payload or the final report.
type StepResult struct {
	Status      Status                 `json:"status"`
	SessionID   string                 `json:"session_id"`
	Payload     *Question              `json:"payload,omitempty"`
	Metrics     *Metrics               `json:"metrics,omitempty"`
	History     []HistoryEntry         `json:"history,omitempty"`
	Methodology string                 `json:"methodology,omitempty"`
	DebugInfo   map[string]interface{} `json:"debug_info,omitempty"`
}

// BandPerf tracks per-band answer counts.
type BandPerf struct {
	Tested  int `json:"tested"`
	Correct int `json:"correct"`
}

// Accuracy returns correct/tested, or 0 for an untested band.
func (p *BandPerf) Accuracy() float64 {
	if p == nil || p.Tested == 0 {
		return 0
	}
	return float64(p.Correct) / float64(p.Tested)
}

// HistoryEntry records one graded question in full.
type HistoryEntry struct {
	QuestionID        string   `json:"question_id"`
	QuestionNumber    int      `json:"question_number"`
	Word              string   `json:"word"`
	Rank              int      `json:"rank"`
	Band              int      `json:"band"`
	Correct           bool     `json:"correct"`
	TimeTakenSeconds  float64  `json:"time_taken_seconds,omitempty"`
	SelectedOptionIDs []string `json:"selected_option_ids"`
	CorrectOptionIDs  []string `json:"correct_option_ids"`
	AllOptions        []Option `json:"all_options,omitempty"`
}

// Session is the adaptive survey state persisted between steps.
type Session struct {
	ID              string            `json:"session_id"`
	Status          Status            `json:"status"`
	QuestionCount   int               `json:"question_count"`
	CurrentRank     int               `json:"current_rank"`
	LowBound        int               `json:"low_bound"`
	HighBound       int               `json:"high_bound"`
	BandPerformance map[int]*BandPerf `json:"band_performance"`
	History         []HistoryEntry    `json:"history"`
	RecentLemmas    []string          `json:"recent_lemmas"`
	Confidence      float64           `json:"confidence"`
	EstimatedVocab  int               `json:"estimated_vocab"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

// NewSession creates an active session with open bounds.
func NewSession(id string, now time.Time) *Session {
	return &Session{
		ID:              id,
		Status:          StatusActive,
		LowBound:        1,
		HighBound:       vocab.MaxBand,
		BandPerformance: make(map[int]*BandPerf, len(vocab.Bands)),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// perf returns the band's counter, creating it on first touch.
func (s *Session) perf(band int) *BandPerf {
	p, ok := s.BandPerformance[band]
	if !ok {
		p = &BandPerf{}
		s.BandPerformance[band] = p
	}
	return p
}

// bandsTestedAtLeast counts bands with at least n graded answers.
func (s *Session) bandsTestedAtLeast(n int) int {
	count := 0
	for _, band := range vocab.Bands {
		if p := s.BandPerformance[band]; p != nil && p.Tested >= n {
			count++
		}
	}
	return count
}

// rememberLemma appends to the recently-seen list, trimming the oldest
// entries past the retention cap.
func (s *Session) rememberLemma(lemma string) {
	s.RecentLemmas = append(s.RecentLemmas, lemma)
	if len(s.RecentLemmas) > maxRecentLemmas {
		s.RecentLemmas = s.RecentLemmas[len(s.RecentLemmas)-maxRecentLemmas:]
	}
}

// recentLemmaSet returns the last window lemmas as an exclusion set.
func (s *Session) recentLemmaSet(window int) map[string]bool {
	if window > len(s.RecentLemmas) {
		window = len(s.RecentLemmas)
	}
	set := make(map[string]bool, window)
	for _, lemma := range s.RecentLemmas[len(s.RecentLemmas)-window:] {
		set[lemma] = true
	}
	return set
}

// optionsFromDeck converts a built deck into survey options.
func optionsFromDeck(deck *distractor.Deck) []Option {
	out := make([]Option, 0, len(deck.Options))
	for _, opt := range deck.Options {
		out = append(out, Option{
			ID:        opt.ID,
			Text:      opt.Text,
			Type:      opt.Role.String(),
			IsCorrect: opt.Role == distractor.RoleTarget,
		})
	}
	return out
}
