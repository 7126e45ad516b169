package biz

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// Test DynamicStopLoss - Higher leverage tightens the stop
func TestDynamicStopLoss_Tiers(t *testing.T) {
	tests := []struct {
		name     string
		leverage float64
		want     float64
	}{
		{"extreme leverage", 25, -15},
		{"tier boundary 20x", 20, -15},
		{"high leverage 18x", 18, -18},
		{"tier boundary 15x", 15, -18},
		{"medium leverage 12x", 12, -22},
		{"tier boundary 10x", 10, -22},
		{"low leverage 7x", 7, -25},
		{"tier boundary 5x", 5, -25},
		{"minimal leverage 3x", 3, -30},
		{"no leverage", 1, -30},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DynamicStopLoss(tt.leverage))
		})
	}
}
