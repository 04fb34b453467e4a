package survey

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGrade(t *testing.T) {
	tests := []struct {
		name     string
		selected []string
		want     bool
	}{
		{"single target", []string{"target_bank.n.01"}, true},
		{"multiple targets", []string{"target_bank.n.01", "target_bank.n.02"}, true},
		{"trap only", []string{"trap_bang.n.01"}, false},
		{"filler only", []string{"filler_river.n.01"}, false},
		{"target plus trap", []string{"target_bank.n.01", "trap_bang.n.01"}, false},
		{"target plus filler", []string{"target_bank.n.01", "filler_river.n.01"}, false},
		{"unknown only", []string{"unknown_option"}, false},
		{"target plus unknown", []string{"target_bank.n.01", "unknown_option"}, false},
		{"nothing selected", nil, false},
		{"unrecognized id only", []string{"mystery_id"}, false},
		{"unrecognized id beside a target", []string{"mystery_id", "target_bank.n.01"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Grade(tt.selected))
		})
	}
}

func TestCorrectOptionIDs(t *testing.T) {
	options := []Option{
		{ID: "target_bank.n.01"},
		{ID: "trap_bang.n.01"},
		{ID: "target_bank.n.02"},
		{ID: "filler_river.n.01"},
		{ID: "unknown_option"},
	}
	assert.Equal(t, []string{"target_bank.n.01", "target_bank.n.02"}, CorrectOptionIDs(options))
	assert.Nil(t, CorrectOptionIDs(nil))
}
