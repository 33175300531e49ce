package risk

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCalculateImbalance(t *testing.T) {
	tests := []struct {
		name        string
		primarySize float64
		hedgeSize   float64
		expected    float64
	}{
		{"完美对冲", 1.0, -1.0, 0},
		{"对冲不足", 1.0, -0.7, 0.3},
		{"对冲过量", 1.0, -1.2, 0.2},
		{"双边皆空", 0, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, CalculateImbalance(tt.primarySize, tt.hedgeSize), 1e-12)
		})
	}
}

func TestCalculateImbalanceRatio(t *testing.T) {
	assert.InDelta(t, 0.3, CalculateImbalanceRatio(1.0, -0.7), 1e-12)
	assert.Zero(t, CalculateImbalanceRatio(0, 0))
	assert.Equal(t, 1.0, CalculateImbalanceRatio(0, -0.5))
}

func TestSlippageThresholds(t *testing.T) {
	maxSlippage := 0.005

	assert.True(t, IsAcceptableSlippage(0.002, maxSlippage))
	assert.True(t, IsAcceptableSlippage(0.005, maxSlippage))
	assert.False(t, IsAcceptableSlippage(0.006, maxSlippage))

	// 2倍上限以内不算严重
	assert.False(t, IsSevereSlippage(0.01, maxSlippage))
	assert.True(t, IsSevereSlippage(0.011, maxSlippage))
}
