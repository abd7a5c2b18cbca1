package safety

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChecker_IsFlagged(t *testing.T) {
	checker := NewChecker("ponzischeme")

	tests := []struct {
		name string
		text string
		want bool
	}{
		{"clean question", "What is CPF?", false},
		{"empty", "   ", false},
		{"default dictionary", "this is fucking expensive", true},
		{"extra term", "tell me about the ponzischeme", true},
		{"extra term uppercase", "PONZISCHEME returns?", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, checker.IsFlagged(tt.text))
		})
	}
}
