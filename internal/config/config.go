// Package config holds the externally loaded configuration surface consumed
// by the rest of the system: model profiles, persona tuning, memory paths and
// the orchestration knobs.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/evaproject/eva/internal/models"
)

// ModelConfig describes one named model the backend can serve.
type ModelConfig struct {
	Name          string   `yaml:"name"`
	ContextLength int      `yaml:"context_length"`
	GPULayers     int      `yaml:"gpu_layers"`
	Temperature   float64  `yaml:"temperature"`
	TopP          float64  `yaml:"top_p"`
	TopK          int      `yaml:"top_k"`
	MaxTokens     int      `yaml:"max_tokens"`
	Stop          []string `yaml:"stop,omitempty"`
	// VRAMEstimateGB is the advisory resident size used by the resource
	// advisor before a load.
	VRAMEstimateGB float64 `yaml:"vram_estimate_gb"`
}

// PersonaConfig tunes one persona's routing priority.
type PersonaConfig struct {
	ActivationThreshold  float64 `yaml:"activation_threshold"`
	SpecializationWeight float64 `yaml:"specialization_weight"`
}

// Priority is the truncation sort key when more personas are selected than
// the per-turn cap allows. Lower threshold and higher weight both raise it.
func (p PersonaConfig) Priority() float64 {
	return (1 - p.ActivationThreshold) * p.SpecializationWeight
}

// MemoryConfig locates the persistent stores.
type MemoryConfig struct {
	EpisodicPath        string `yaml:"episodic_path"`
	AffectivePath       string `yaml:"affective_path"`
	RedisAddr           string `yaml:"redis_addr"`
	RedisDB             int    `yaml:"redis_db"`
	MaxEpisodicEntries  int    `yaml:"max_episodic_entries"`
	MaxAffectiveEntries int    `yaml:"max_affective_entries"`
}

// HardwareConfig bounds resource use during model loads.
type HardwareConfig struct {
	TotalVRAMGB        float64       `yaml:"total_vram_gb"`
	CleanupThreshold   float64       `yaml:"cleanup_threshold"`
	ModelSwitchTimeout time.Duration `yaml:"model_switch_timeout"`
	MonitorInterval    time.Duration `yaml:"monitor_interval"`
}

// BackendConfig points at the generation backend.
type BackendConfig struct {
	BaseURL           string        `yaml:"base_url"`
	RequestTimeout    time.Duration `yaml:"request_timeout"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	Burst             int           `yaml:"burst"`
}

// Config is the root configuration.
type Config struct {
	Models   map[string]ModelConfig           `yaml:"models"`
	Personas map[models.Persona]PersonaConfig `yaml:"personas"`
	Memory   MemoryConfig                     `yaml:"memory"`
	Hardware HardwareConfig                   `yaml:"hardware"`
	Backend  BackendConfig                    `yaml:"backend"`

	// DefaultModel handles persona generations; SynthesisModel merges
	// multi-persona output. They may name the same model.
	DefaultModel   string `yaml:"default_model"`
	SynthesisModel string `yaml:"synthesis_model"`

	LogLevel               string `yaml:"log_level"`
	MaxConversationHistory int    `yaml:"max_conversation_history"`
	EnableReflection       bool   `yaml:"enable_reflection"`
	ReflectionInterval     int    `yaml:"reflection_interval"`
	// DrainReflections waits for in-flight reflection jobs on shutdown
	// instead of abandoning them.
	DrainReflections bool `yaml:"drain_reflections"`
}

// Default returns the configuration used when no file exists yet.
func Default() *Config {
	return &Config{
		Models: map[string]ModelConfig{
			"mistral-7b-instruct": {
				Name:           "mistral-7b-instruct",
				ContextLength:  4096,
				GPULayers:      35,
				Temperature:    0.7,
				TopP:           0.9,
				TopK:           40,
				MaxTokens:      512,
				VRAMEstimateGB: 4.2,
			},
			"mistral-3b": {
				Name:           "mistral-3b",
				ContextLength:  2048,
				GPULayers:      25,
				Temperature:    0.8,
				TopP:           0.9,
				TopK:           40,
				MaxTokens:      512,
				VRAMEstimateGB: 2.8,
			},
		},
		Personas: map[models.Persona]PersonaConfig{
			models.PersonaAnalytical: {ActivationThreshold: 0.6, SpecializationWeight: 1.2},
			models.PersonaCreative:   {ActivationThreshold: 0.5, SpecializationWeight: 1.0},
			models.PersonaEmpathetic: {ActivationThreshold: 0.4, SpecializationWeight: 1.3},
			models.PersonaExecutive:  {ActivationThreshold: 0.7, SpecializationWeight: 1.1},
			models.PersonaReflective: {ActivationThreshold: 0.8, SpecializationWeight: 1.0},
		},
		Memory: MemoryConfig{
			EpisodicPath:        "data/memory/episodic.db",
			AffectivePath:       "data/memory/affective",
			RedisAddr:           "localhost:6379",
			MaxEpisodicEntries:  10000,
			MaxAffectiveEntries: 5000,
		},
		Hardware: HardwareConfig{
			TotalVRAMGB:        8.0,
			CleanupThreshold:   0.9,
			ModelSwitchTimeout: 30 * time.Second,
			MonitorInterval:    5 * time.Second,
		},
		Backend: BackendConfig{
			BaseURL:           "http://localhost:11434",
			RequestTimeout:    15 * time.Minute,
			RequestsPerSecond: 2,
			Burst:             4,
		},
		DefaultModel:           "mistral-7b-instruct",
		SynthesisModel:         "mistral-7b-instruct",
		LogLevel:               "info",
		MaxConversationHistory: 50,
		EnableReflection:       true,
		ReflectionInterval:     5,
		DrainReflections:       false,
	}
}

// Load reads the YAML config at path, creating it with defaults when absent.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := Default()
		if err := cfg.Save(path); err != nil {
			return nil, fmt.Errorf("failed to write default config: %w", err)
		}
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return cfg, nil
}

// Save writes the config as YAML, creating parent directories as needed.
func (c *Config) Save(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0644)
}

// Validate returns every problem found, not just the first.
func (c *Config) Validate() []error {
	var errs []error

	if len(c.Models) == 0 {
		errs = append(errs, fmt.Errorf("no models configured"))
	}
	if _, ok := c.Models[c.DefaultModel]; !ok {
		errs = append(errs, fmt.Errorf("default_model %q not in models", c.DefaultModel))
	}
	if _, ok := c.Models[c.SynthesisModel]; !ok {
		errs = append(errs, fmt.Errorf("synthesis_model %q not in models", c.SynthesisModel))
	}
	for name, m := range c.Models {
		if m.ContextLength <= 0 {
			errs = append(errs, fmt.Errorf("model %s: context_length must be positive", name))
		}
		if m.GPULayers < 0 {
			errs = append(errs, fmt.Errorf("model %s: gpu_layers must not be negative", name))
		}
	}
	for p := range c.Personas {
		if !p.Valid() {
			errs = append(errs, fmt.Errorf("unknown persona %q in config", p))
		}
	}
	if c.Hardware.CleanupThreshold <= 0 || c.Hardware.CleanupThreshold > 1 {
		errs = append(errs, fmt.Errorf("hardware.cleanup_threshold must be in (0,1]"))
	}
	if c.ReflectionInterval <= 0 {
		errs = append(errs, fmt.Errorf("reflection_interval must be positive"))
	}
	if c.MaxConversationHistory <= 0 {
		errs = append(errs, fmt.Errorf("max_conversation_history must be positive"))
	}

	return errs
}

// PersonaPriority returns the configured priority for p, with a neutral
// default for personas absent from the file.
func (c *Config) PersonaPriority(p models.Persona) float64 {
	if pc, ok := c.Personas[p]; ok {
		return pc.Priority()
	}
	return 0.5
}
