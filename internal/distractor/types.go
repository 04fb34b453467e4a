// Package distractor builds six-option question decks for a target sense:
// correct targets, curated or semantic traps, rank-neighborhood fillers, and
// the fixed unknown option. Decks are consumed by the survey and by MCQ
// verification.
package distractor

import (
	"strings"

	"github.com/wordmine/wordmine/internal/errs"
	"github.com/wordmine/wordmine/internal/vocab"
)

// DeckSize is the fixed option count of every deck.
const DeckSize = 6

// Role classifies a deck option. Options carry the role explicitly; the wire
// id encodes it as a prefix so grading can stay stateless.
type Role int

const (
	RoleInvalid Role = iota
	RoleTarget
	RoleTrap
	RoleFiller
	RoleUnknown
)

func (r Role) String() string {
	switch r {
	case RoleTarget:
		return "target"
	case RoleTrap:
		return "trap"
	case RoleFiller:
		return "filler"
	case RoleUnknown:
		return "unknown"
	default:
		return "invalid"
	}
}

const (
	// UnknownOptionID is the fixed wire id of the always-present sixth option.
	UnknownOptionID = "unknown_option"

	// UnknownOptionText is the learner-facing copy of the unknown option.
	UnknownOptionText = "我不知道這個單字"

	// NoGlossText is surfaced when a sense has neither a Chinese nor an
	// English definition. Survey filters keep such senses out of decks, so
	// it only appears through direct deck construction.
	NoGlossText = "此單字尚未有中文定義"

	// PlaceholderText pads a deck when the vocabulary cannot supply five
	// real options. Numbered when more than one pad is needed.
	PlaceholderText = "（暫無其他選項）"
)

// OptionID encodes a role and sense id into the wire option id.
func OptionID(role Role, senseID string) string {
	switch role {
	case RoleTarget:
		return "target_" + senseID
	case RoleTrap:
		return "trap_" + senseID
	case RoleFiller:
		return "filler_" + senseID
	case RoleUnknown:
		return UnknownOptionID
	default:
		return senseID
	}
}

// RoleFromOptionID decodes the role prefix of a wire option id. Any id
// containing "unknown" is the unknown option; ids matching no convention
// decode to RoleInvalid and grade as wrong answers.
func RoleFromOptionID(id string) Role {
	switch {
	case strings.Contains(id, "unknown"):
		return RoleUnknown
	case strings.HasPrefix(id, "target_"):
		return RoleTarget
	case strings.HasPrefix(id, "trap_"):
		return RoleTrap
	case strings.HasPrefix(id, "filler_"):
		return RoleFiller
	default:
		return RoleInvalid
	}
}

// Option is one deck entry. The role is serialized through the id prefix,
// not as its own field.
type Option struct {
	ID   string `json:"id"`
	Text string `json:"text"`
	Role Role   `json:"-"`
}

// OptionMeta is display-only metadata keyed by option id. Placeholder and
// unknown options carry no metadata entry.
type OptionMeta struct {
	SenseID        string              `json:"sense_id,omitempty"`
	DefinitionEN   string              `json:"definition_en,omitempty"`
	ExampleEN      string              `json:"example_en,omitempty"`
	ExampleZH      string              `json:"example_zh,omitempty"`
	IsPrimarySense bool                `json:"is_primary_sense,omitempty"`
	Reason         vocab.ConfuseReason `json:"reason,omitempty"`
}

// Deck is a complete question deck plus its per-option display metadata.
type Deck struct {
	Options []Option              `json:"options"`
	Meta    map[string]OptionMeta `json:"metadata,omitempty"`
}

// Validate checks the deck invariants: exactly six options, exactly one
// unknown placed last, at least one target, unique option texts, and ids
// consistent with roles.
func (d *Deck) Validate() error {
	if len(d.Options) != DeckSize {
		return errs.Internal("deck has %d options, want %d", len(d.Options), DeckSize)
	}
	targets, unknowns := 0, 0
	texts := make(map[string]bool, DeckSize)
	for i, opt := range d.Options {
		if got := RoleFromOptionID(opt.ID); got != opt.Role {
			return errs.Internal("option %s id decodes to role %s, want %s", opt.ID, got, opt.Role)
		}
		switch opt.Role {
		case RoleTarget:
			targets++
		case RoleUnknown:
			unknowns++
			if i != DeckSize-1 {
				return errs.Internal("unknown option at position %d, want last", i)
			}
		}
		if texts[opt.Text] {
			return errs.Internal("duplicate option text %q", opt.Text)
		}
		texts[opt.Text] = true
	}
	if unknowns != 1 {
		return errs.Internal("deck has %d unknown options, want 1", unknowns)
	}
	if targets == 0 {
		return errs.Internal("deck has no target option")
	}
	return nil
}
