package inference

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/evaproject/eva/internal/config"
)

// ErrUnknownModel is returned for model names absent from the config.
var ErrUnknownModel = errors.New("unknown model")

// ModelState tracks a single model's lifecycle.
type ModelState string

const (
	StateUnloaded  ModelState = "unloaded"
	StateLoading   ModelState = "loading"
	StateLoaded    ModelState = "loaded"
	StateUnloading ModelState = "unloading"
	StateError     ModelState = "error"
)

// ManagerStats summarizes manager activity since startup.
type ManagerStats struct {
	Switches           int
	TotalInferences    int
	TotalTokens        int
	TotalInferenceTime time.Duration
	FailedLoads        int
}

// Manager keeps at most one model resident and serializes switches between
// them. All generation calls go through it so that a generation never races
// a swap.
type Manager struct {
	backend Backend
	cfg     *config.Config
	advisor *Advisor
	logger  *zap.Logger

	mu      sync.Mutex
	states  map[string]ModelState
	current string
	stats   ManagerStats
}

// NewManager builds a manager over the given backend. advisor may be nil, in
// which case loads skip the headroom check.
func NewManager(backend Backend, cfg *config.Config, advisor *Advisor, logger *zap.Logger) *Manager {
	states := make(map[string]ModelState, len(cfg.Models))
	for name := range cfg.Models {
		states[name] = StateUnloaded
	}
	return &Manager{
		backend: backend,
		cfg:     cfg,
		advisor: advisor,
		logger:  logger,
		states:  states,
	}
}

// Current returns the resident model name, or "" when none is loaded.
func (m *Manager) Current() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// State reports the lifecycle state of the named model.
func (m *Manager) State(name string) ModelState {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.states[name]; ok {
		return s
	}
	return StateUnloaded
}

// Stats returns a snapshot of manager activity.
func (m *Manager) Stats() ManagerStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}

// EnsureLoaded makes the named model resident, unloading the previous one
// first. Concurrent callers are serialized; a caller that finds the model
// already resident returns immediately. A swap waits for any in-flight
// generation to finish.
func (m *Manager) EnsureLoaded(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ensureLoadedLocked(ctx, name)
}

func (m *Manager) ensureLoadedLocked(ctx context.Context, name string) error {
	modelCfg, ok := m.cfg.Models[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownModel, name)
	}

	if m.current == name && m.states[name] == StateLoaded {
		return nil
	}

	switchCtx := ctx
	if timeout := m.cfg.Hardware.ModelSwitchTimeout; timeout > 0 {
		var cancel context.CancelFunc
		switchCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	if m.current != "" {
		prev := m.current
		m.states[prev] = StateUnloading
		if err := m.backend.Unload(switchCtx, prev); err != nil {
			// An eviction failure leaves the old model's state best guess
			// at error; the new load proceeds and the server sorts out
			// residency itself.
			m.states[prev] = StateError
			m.logger.Warn("failed to unload model",
				zap.String("model", prev), zap.Error(err))
		} else {
			m.states[prev] = StateUnloaded
		}
		m.current = ""
	}

	gpuLayers := modelCfg.GPULayers
	if m.advisor != nil {
		// The unload above is the cleanup pass; re-sample so the layer
		// decision sees the reclaimed memory.
		if free := m.advisor.Sample(); free > 0 && free < modelCfg.VRAMEstimateGB {
			m.logger.Warn("headroom below model estimate",
				zap.String("model", name),
				zap.Float64("free_gb", free),
				zap.Float64("estimate_gb", modelCfg.VRAMEstimateGB))
		}
		gpuLayers = m.advisor.AdjustLayers(gpuLayers)
		if gpuLayers != modelCfg.GPULayers {
			m.logger.Info("reduced gpu layers for low headroom",
				zap.String("model", name),
				zap.Int("configured", modelCfg.GPULayers),
				zap.Int("adjusted", gpuLayers))
		}
	}

	m.states[name] = StateLoading
	start := time.Now()
	if err := m.backend.Load(switchCtx, name, gpuLayers); err != nil {
		m.states[name] = StateError
		m.stats.FailedLoads++
		return fmt.Errorf("failed to load model %s: %w", name, err)
	}

	m.states[name] = StateLoaded
	m.current = name
	m.stats.Switches++
	m.logger.Info("model loaded",
		zap.String("model", name),
		zap.Duration("took", time.Since(start)))
	return nil
}

// Generate runs a generation against the named model, loading it first when
// needed. The manager's lock is held for the whole call: only the resident
// model ever runs inference, and a swap cannot start while a generation is
// in flight. A generation failure leaves the model resident.
func (m *Manager) Generate(ctx context.Context, name, system, prompt string, temperature float64) (*GenerateResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.ensureLoadedLocked(ctx, name); err != nil {
		return nil, err
	}

	modelCfg := m.cfg.Models[name]
	temp := temperature
	if temp <= 0 {
		temp = modelCfg.Temperature
	}

	resp, err := m.backend.Generate(ctx, GenerateRequest{
		Model:       name,
		Prompt:      prompt,
		System:      system,
		Temperature: temp,
		TopP:        modelCfg.TopP,
		TopK:        modelCfg.TopK,
		MaxTokens:   modelCfg.MaxTokens,
		Stop:        modelCfg.Stop,
	})
	if err != nil {
		return nil, fmt.Errorf("generation on %s failed: %w", name, err)
	}

	m.stats.TotalInferences++
	m.stats.TotalTokens += resp.TokensUsed
	m.stats.TotalInferenceTime += resp.Duration

	return resp, nil
}

// Shutdown unloads the resident model, if any.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == "" {
		return nil
	}
	name := m.current
	m.states[name] = StateUnloading
	if err := m.backend.Unload(ctx, name); err != nil {
		m.states[name] = StateError
		return fmt.Errorf("failed to unload model %s: %w", name, err)
	}
	m.states[name] = StateUnloaded
	m.current = ""
	return nil
}
