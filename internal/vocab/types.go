// Package vocab provides the read-only Vocabulary Store: an in-memory view
// over a pre-exported, denormalized vocabulary snapshot. The store is loaded
// once at process start and is immutable afterwards, so concurrent readers
// need no synchronization.
package vocab

import (
	"strings"
)

// ConfuseReason classifies why two headwords are curated as confusable.
type ConfuseReason string

const (
	ReasonLookAlike  ConfuseReason = "Look-alike"
	ReasonSoundAlike ConfuseReason = "Sound-alike"
	ReasonSemantic   ConfuseReason = "Semantic"
)

// ConfusedRef is a reference to a confusable sense with its curated reason.
type ConfusedRef struct {
	SenseID string        `json:"sense_id"`
	Reason  ConfuseReason `json:"reason"`
}

// Connections holds the relationship sets of a sense. Members are sense ids;
// the store resolves them to full records on demand.
type Connections struct {
	Related  []string      `json:"related,omitempty"`
	Opposite []string      `json:"opposite,omitempty"`
	Confused []ConfusedRef `json:"confused,omitempty"`
}

// NetworkInfo is the denormalized neighborhood record exported per sense.
type NetworkInfo struct {
	Hop1Count int `json:"hop_1_count"`
	Hop2Count int `json:"hop_2_count,omitempty"`
	TotalXP   int `json:"total_xp"`
}

// Sense is one meaning of a headword, identified by a dotted sense id of the
// form lemma.pos.nn (e.g. "bank.n.01"). Lower frequency rank means more
// common. Traditional Chinese fields carry the learner-facing content; the
// English definition is a fallback surface only.
type Sense struct {
	ID              string      `json:"id"`
	Word            string      `json:"word"`
	POS             string      `json:"pos"` // n|v|a|r|s
	FrequencyRank   int         `json:"frequency_rank"`
	CEFR            string      `json:"cefr,omitempty"`
	MOELevel        int         `json:"moe_level,omitempty"`
	UsageRatio      float64     `json:"usage_ratio,omitempty"`
	DefinitionEN    string      `json:"definition_en"`
	DefinitionZH    string      `json:"definition_zh"`
	DefinitionZHExp string      `json:"definition_zh_explanation,omitempty"`
	ExampleEN       string      `json:"example_en"`
	ExampleZH       string      `json:"example_zh"`
	ExampleZHExp    string      `json:"example_zh_explanation,omitempty"`
	Embedding       []float32   `json:"embedding,omitempty"`
	Connections     Connections `json:"connections"`
	OtherSenses     []string    `json:"other_senses,omitempty"`
	Network         NetworkInfo `json:"network"`
	Tier            string      `json:"tier,omitempty"`
}

// Lemma returns the headword encoded in the sense id. Sense ids are dotted
// lemma.pos.nn, so the lemma is everything before the last two segments.
func (s *Sense) Lemma() string {
	return LemmaOf(s.ID)
}

// HasEmbedding reports whether the sense carries an embedding vector.
func (s *Sense) HasEmbedding() bool {
	return len(s.Embedding) > 0
}

// LemmaOf extracts the lemma from a dotted sense id. Lemmas may themselves
// contain dots, so the split runs from the right: the final two segments are
// part-of-speech and sense number.
func LemmaOf(senseID string) string {
	parts := strings.Split(senseID, ".")
	if len(parts) < 3 {
		return senseID
	}
	return strings.Join(parts[:len(parts)-2], ".")
}

// IsPrimaryFor reports whether the sense id belongs directly to the lemma,
// as opposed to a sibling filed under a surface form or alias.
func IsPrimaryFor(senseID, lemma string) bool {
	return strings.HasPrefix(senseID, lemma+".")
}

// SurveyEligible reports whether a sense may be shown by the survey or MCQ
// verification: stop words (rank <= 50) are excluded, a Traditional Chinese
// gloss must exist, and very short words make unusable question stems.
func SurveyEligible(s *Sense) bool {
	if s == nil {
		return false
	}
	if s.FrequencyRank <= StopWordRank {
		return false
	}
	if strings.TrimSpace(s.DefinitionZH) == "" {
		return false
	}
	return len(s.Word) >= MinWordLength
}

// Relation is a resolved relationship record: the referenced sense's key
// display fields plus the curated reason when the relation is a confusable.
type Relation struct {
	SenseID string        `json:"sense_id"`
	Word    string        `json:"word"`
	Gloss   string        `json:"gloss"`
	POS     string        `json:"pos"`
	Rank    int           `json:"rank"`
	Reason  ConfuseReason `json:"reason,omitempty"`
}

// Stats summarizes a loaded snapshot for health reporting and the
// snapshot-verify command.
type Stats struct {
	SenseCount        int            `json:"sense_count"`
	LemmaCount        int            `json:"lemma_count"`
	BandCounts        map[int]int    `json:"band_counts"`
	POSCounts         map[string]int `json:"pos_counts"`
	EmbeddingCoverage float64        `json:"embedding_coverage"`
	Version           string         `json:"version"`
}
