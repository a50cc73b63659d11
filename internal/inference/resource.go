package inference

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/evaproject/eva/internal/config"
)

// Meter reports free VRAM in gigabytes. The production meter shells out to
// the GPU driver; tests inject a fixed value.
type Meter interface {
	FreeVRAMGB() float64
}

// MeterFunc adapts a function to the Meter interface.
type MeterFunc func() float64

func (f MeterFunc) FreeVRAMGB() float64 { return f() }

// LayerReduction returns how many GPU layers to shed given free VRAM.
// Tighter headroom sheds more layers; with 5GB or more free the configured
// count stands.
func LayerReduction(freeGB float64) int {
	switch {
	case freeGB < 3:
		return 15
	case freeGB < 4:
		return 10
	case freeGB < 5:
		return 5
	default:
		return 0
	}
}

// Advisor samples VRAM headroom and advises the manager on layer counts
// before loads.
type Advisor struct {
	meter  Meter
	cfg    config.HardwareConfig
	logger *zap.Logger

	mu       sync.RWMutex
	lastFree float64

	started bool
	stop    chan struct{}
	done    chan struct{}
	once    sync.Once
}

// NewAdvisor builds an advisor over the given meter.
func NewAdvisor(meter Meter, cfg config.HardwareConfig, logger *zap.Logger) *Advisor {
	return &Advisor{
		meter:    meter,
		cfg:      cfg,
		logger:   logger,
		lastFree: meter.FreeVRAMGB(),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the background telemetry loop. It runs until Stop or ctx
// cancellation.
func (a *Advisor) Start(ctx context.Context) {
	interval := a.cfg.MonitorInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}

	a.mu.Lock()
	a.started = true
	a.mu.Unlock()

	go func() {
		defer close(a.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-a.stop:
				return
			case <-ticker.C:
				free := a.meter.FreeVRAMGB()
				a.mu.Lock()
				a.lastFree = free
				a.mu.Unlock()

				if a.cfg.TotalVRAMGB > 0 {
					used := 1 - free/a.cfg.TotalVRAMGB
					if used > a.cfg.CleanupThreshold {
						a.logger.Warn("vram pressure above cleanup threshold",
							zap.Float64("free_gb", free),
							zap.Float64("used_fraction", used))
					}
				}
			}
		}
	}()
}

// Stop halts the telemetry loop and waits for it to exit. Safe to call even
// if Start never ran.
func (a *Advisor) Stop() {
	a.once.Do(func() { close(a.stop) })
	a.mu.RLock()
	started := a.started
	a.mu.RUnlock()
	if started {
		<-a.done
	}
}

// FreeGB returns the most recent headroom sample.
func (a *Advisor) FreeGB() float64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.lastFree
}

// Sample reads the meter now and returns the fresh headroom, replacing the
// periodic sample. The manager calls this after unloading a model so the
// layer decision sees the reclaimed memory.
func (a *Advisor) Sample() float64 {
	free := a.meter.FreeVRAMGB()
	a.mu.Lock()
	a.lastFree = free
	a.mu.Unlock()
	return free
}

// AdjustLayers reduces a configured layer count for the current headroom,
// never going below zero.
func (a *Advisor) AdjustLayers(configured int) int {
	adjusted := configured - LayerReduction(a.FreeGB())
	if adjusted < 0 {
		return 0
	}
	return adjusted
}
