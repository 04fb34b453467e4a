package survey

import (
	"github.com/wordmine/wordmine/internal/distractor"
)

// Grade decides correctness from the selected option ids alone. An answer is
// correct iff nothing unknown was selected, at least one target was, and no
// trap or filler was. Unrecognized ids count as non-targets but do not
// disqualify an otherwise correct selection.
func Grade(selectedIDs []string) bool {
	hasTarget := false
	for _, id := range selectedIDs {
		switch distractor.RoleFromOptionID(id) {
		case distractor.RoleUnknown:
			return false
		case distractor.RoleTrap, distractor.RoleFiller:
			return false
		case distractor.RoleTarget:
			hasTarget = true
		}
	}
	return hasTarget
}

// CorrectOptionIDs extracts the target ids from an answered question's
// options, for history bookkeeping.
func CorrectOptionIDs(options []Option) []string {
	var out []string
	for _, opt := range options {
		if distractor.RoleFromOptionID(opt.ID) == distractor.RoleTarget {
			out = append(out, opt.ID)
		}
	}
	return out
}
