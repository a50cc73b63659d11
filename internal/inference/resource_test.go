package inference

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/evaproject/eva/internal/config"
)

func TestLayerReduction(t *testing.T) {
	tests := []struct {
		freeGB float64
		want   int
	}{
		{1.0, 15},
		{2.9, 15},
		{3.0, 10},
		{3.9, 10},
		{4.0, 5},
		{4.9, 5},
		{5.0, 0},
		{8.0, 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, LayerReduction(tt.freeGB), "free=%.1f", tt.freeGB)
	}
}

func TestAdjustLayersFloorsAtZero(t *testing.T) {
	a := NewAdvisor(MeterFunc(func() float64 { return 2.0 }), config.HardwareConfig{}, zap.NewNop())
	assert.Equal(t, 20, a.AdjustLayers(35))
	assert.Equal(t, 0, a.AdjustLayers(10))
}

func TestAdvisorSamples(t *testing.T) {
	var mu sync.Mutex
	free := 6.0
	meter := MeterFunc(func() float64 {
		mu.Lock()
		defer mu.Unlock()
		return free
	})
	a := NewAdvisor(meter, config.HardwareConfig{
		TotalVRAMGB:      8,
		CleanupThreshold: 0.9,
		MonitorInterval:  5 * time.Millisecond,
	}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	a.Start(ctx)
	defer a.Stop()

	mu.Lock()
	free = 3.5
	mu.Unlock()
	assert.Eventually(t, func() bool {
		return a.FreeGB() == 3.5
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 25, a.AdjustLayers(35))
}

func TestSampleRefreshesHeadroom(t *testing.T) {
	var mu sync.Mutex
	free := 2.0
	meter := MeterFunc(func() float64 {
		mu.Lock()
		defer mu.Unlock()
		return free
	})
	a := NewAdvisor(meter, config.HardwareConfig{}, zap.NewNop())
	assert.Equal(t, 2.0, a.FreeGB())

	mu.Lock()
	free = 6.0
	mu.Unlock()
	assert.Equal(t, 6.0, a.Sample())
	assert.Equal(t, 6.0, a.FreeGB())
}

func TestAdvisorStopWithoutStart(t *testing.T) {
	a := NewAdvisor(MeterFunc(func() float64 { return 8 }), config.HardwareConfig{}, zap.NewNop())
	a.Stop()
}
