package helper

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"trade_guard/internal/models"
)

func TestNormTF(t *testing.T) {
	tests := []struct {
		raw  string
		want models.Timeframe
	}{
		{"candle1H", models.TF1h},
		{"60m", models.TF1h},
		{"4H", models.TF4h},
		{"1D", models.TF1d},
		{" 15m ", models.TF15m},
		{"5m", models.Timeframe("5m")},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.want, NormTF(tt.raw))
		})
	}
}

func TestRoundStop(t *testing.T) {
	assert.InDelta(t, 0.1253, RoundStop(0.12537, 0.0001, models.Long), 1e-12)
	assert.InDelta(t, 0.1254, RoundStop(0.12531, 0.0001, models.Short), 1e-12)
	assert.Equal(t, 101.25, RoundStop(101.25, 0, models.Long))
	// values already on the grid stay put
	assert.InDelta(t, 0.1250, RoundStop(0.1250, 0.0001, models.Long), 1e-12)
	assert.InDelta(t, 0.1250, RoundStop(0.1250, 0.0001, models.Short), 1e-12)
}

func TestFloorToLot(t *testing.T) {
	assert.Equal(t, 20.0, FloorToLot(20.999, 0))
	assert.InDelta(t, 0.3, FloorToLot(0.39, 0.1), 1e-12)
	assert.InDelta(t, 3.0, FloorToLot(2.9999999999, 1), 1e-12)
}

func TestClamp(t *testing.T) {
	assert.Equal(t, 0.0, Clamp(-3, 0, 100))
	assert.Equal(t, 100.0, Clamp(130, 0, 100))
	assert.Equal(t, 42.0, Clamp(42, 0, 100))
}
