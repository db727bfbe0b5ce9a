// Package config defines the single configuration object passed by value at
// construction to every component (spec §6). It follows the teacher's
// BackgroundConfig builder pattern: a flat struct of tunables with sensible
// defaults, a Validate method, and With* setters for fluent construction.
// Config can also be loaded from YAML; unknown keys in the YAML document are
// rejected rather than silently ignored.
package config

import (
	"bytes"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds every tunable named across spec §4, §6 and §8. All fields
// have defaults (see Default()); constructing one from YAML rejects keys
// not present on this struct.
type Config struct {
	// Detector thresholds (§4.3).
	VisibilityFloor         float32 `yaml:"visibility_floor"`
	ZeroDetectionDowngradeN int     `yaml:"zero_detection_downgrade_n"`
	ReupgradeSuccessCount   int     `yaml:"reupgrade_success_count"`

	// Risk weights and windows (§4.4).
	RiskWeightPosture      float64       `yaml:"risk_weight_posture"`
	RiskWeightBalance      float64       `yaml:"risk_weight_balance"`
	RiskWeightStability    float64       `yaml:"risk_weight_stability"`
	RiskWeightFatigue      float64       `yaml:"risk_weight_fatigue"`
	StabilityWindowSamples int           `yaml:"stability_window_samples"`
	FatigueWindow          time.Duration `yaml:"fatigue_window"`
	AudioFusionWindow      time.Duration `yaml:"audio_fusion_window"`
	OutOfOrderTolerance    time.Duration `yaml:"out_of_order_tolerance"`

	// Alert thresholds (§4.4, §4.5).
	AlertLowThreshold      float64       `yaml:"alert_low_threshold"`
	AlertMediumThreshold   float64       `yaml:"alert_medium_threshold"`
	AlertHighThreshold     float64       `yaml:"alert_high_threshold"`
	AlertCriticalThreshold float64       `yaml:"alert_critical_threshold"`
	AlertCooldown          time.Duration `yaml:"alert_cooldown"`
	AlertRingCapacity      int           `yaml:"alert_ring_capacity"`

	// History sizes (§3).
	MaxHistorySamples int           `yaml:"max_history_samples"`
	HistoryTTL        time.Duration `yaml:"history_ttl"`

	// Backend priority (§4.2).
	BackendPriority []string `yaml:"backend_priority"`

	// Subject identification (§4.6).
	SubjectMatchThreshold float64 `yaml:"subject_match_threshold"`

	// Paths (§6).
	SubjectStorePath string `yaml:"subject_store_path"`
	JobCacheDir      string `yaml:"job_cache_dir"`
	AlertLogPath     string `yaml:"alert_log_path"`
	ModelScanRoot    string `yaml:"model_scan_root"`

	// Cloud job timeouts/device selection (§4.8, §4.9).
	PreferredDevice    string        `yaml:"preferred_device"`
	CompileTimeout     time.Duration `yaml:"compile_timeout"`
	ProfileTimeout     time.Duration `yaml:"profile_timeout"`
	LinkTimeout        time.Duration `yaml:"link_timeout"`
	QuantizeTimeout    time.Duration `yaml:"quantize_timeout"`
	RetryMaxAttempts   int           `yaml:"retry_max_attempts"`
	RetryInitialDelay  time.Duration `yaml:"retry_initial_delay"`
	RetryBackoffFactor float64       `yaml:"retry_backoff_factor"`
	RetryMaxDelay      time.Duration `yaml:"retry_max_delay"`
	PollInitialDelay   time.Duration `yaml:"poll_initial_delay"`
	PollBackoffFactor  float64       `yaml:"poll_backoff_factor"`
	PollMaxDelay       time.Duration `yaml:"poll_max_delay"`
	PollerCount        int           `yaml:"poller_count"`

	// Opset / shape pinning (§4.7).
	ONNXOpset     int  `yaml:"onnx_opset"`
	FixedBatchDim bool `yaml:"fixed_batch_dim"`
}

// Default returns a Config with the defaults named throughout spec.md.
func Default() *Config {
	return &Config{
		VisibilityFloor:         0.001,
		ZeroDetectionDowngradeN: 3,
		ReupgradeSuccessCount:   30,

		RiskWeightPosture:      0.4,
		RiskWeightBalance:      0.3,
		RiskWeightStability:    0.2,
		RiskWeightFatigue:      0.1,
		StabilityWindowSamples: 15,
		FatigueWindow:          60 * time.Second,
		AudioFusionWindow:      5 * time.Second,
		OutOfOrderTolerance:    200 * time.Millisecond,

		AlertLowThreshold:      0.3,
		AlertMediumThreshold:   0.7,
		AlertHighThreshold:     0.9,
		AlertCriticalThreshold: 0.95,
		AlertCooldown:          3 * time.Second,
		AlertRingCapacity:      100,

		MaxHistorySamples: 1000,
		HistoryTTL:        300 * time.Second,

		BackendPriority: []string{"platform-native-npu", "gpu", "optimized-cpu", "generic-cpu"},

		SubjectMatchThreshold: 0.6,

		SubjectStorePath: "subjects.db",
		JobCacheDir:      "job-cache",
		AlertLogPath:     "",
		ModelScanRoot:    "models",

		PreferredDevice:    "",
		CompileTimeout:     20 * time.Minute,
		ProfileTimeout:     15 * time.Minute,
		LinkTimeout:        10 * time.Minute,
		QuantizeTimeout:    15 * time.Minute,
		RetryMaxAttempts:   5,
		RetryInitialDelay:  1 * time.Second,
		RetryBackoffFactor: 2.0,
		RetryMaxDelay:      30 * time.Second,
		PollInitialDelay:   2 * time.Second,
		PollBackoffFactor:  1.5,
		PollMaxDelay:       30 * time.Second,
		PollerCount:        4,

		ONNXOpset:     13,
		FixedBatchDim: true,
	}
}

// Load parses YAML bytes into a Config seeded with defaults. Unknown keys
// in the document are rejected (yaml.v3's KnownFields strictness).
func Load(data []byte) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks every tunable is in its documented range. Mirrors the
// teacher's BackgroundConfig.Validate.
func (c *Config) Validate() error {
	if c.VisibilityFloor < 0 || c.VisibilityFloor > 1 {
		return fmt.Errorf("config: visibility_floor must be in [0,1], got %f", c.VisibilityFloor)
	}
	if c.ZeroDetectionDowngradeN <= 0 {
		return fmt.Errorf("config: zero_detection_downgrade_n must be positive, got %d", c.ZeroDetectionDowngradeN)
	}
	if c.ReupgradeSuccessCount <= 0 {
		return fmt.Errorf("config: reupgrade_success_count must be positive, got %d", c.ReupgradeSuccessCount)
	}
	sum := c.RiskWeightPosture + c.RiskWeightBalance + c.RiskWeightStability + c.RiskWeightFatigue
	if sum <= 0 {
		return fmt.Errorf("config: risk weights must sum to a positive value, got %f", sum)
	}
	if c.StabilityWindowSamples <= 0 {
		return fmt.Errorf("config: stability_window_samples must be positive, got %d", c.StabilityWindowSamples)
	}
	if c.AlertLowThreshold < 0 || c.AlertLowThreshold >= c.AlertMediumThreshold {
		return fmt.Errorf("config: alert_low_threshold must be < alert_medium_threshold")
	}
	if c.AlertMediumThreshold >= c.AlertHighThreshold {
		return fmt.Errorf("config: alert thresholds must be strictly increasing and <= 1")
	}
	if c.AlertHighThreshold >= c.AlertCriticalThreshold || c.AlertCriticalThreshold > 1 {
		return fmt.Errorf("config: alert thresholds must be strictly increasing and <= 1")
	}
	if c.AlertCooldown < 0 {
		return fmt.Errorf("config: alert_cooldown must be non-negative")
	}
	if c.AlertRingCapacity <= 0 {
		return fmt.Errorf("config: alert_ring_capacity must be positive, got %d", c.AlertRingCapacity)
	}
	if c.MaxHistorySamples <= 0 {
		return fmt.Errorf("config: max_history_samples must be positive, got %d", c.MaxHistorySamples)
	}
	if len(c.BackendPriority) == 0 {
		return fmt.Errorf("config: backend_priority must not be empty")
	}
	if c.SubjectMatchThreshold <= 0 {
		return fmt.Errorf("config: subject_match_threshold must be positive")
	}
	if c.RetryMaxAttempts <= 0 {
		return fmt.Errorf("config: retry_max_attempts must be positive")
	}
	if c.RetryBackoffFactor <= 1 {
		return fmt.Errorf("config: retry_backoff_factor must be > 1, got %f", c.RetryBackoffFactor)
	}
	if c.PollBackoffFactor <= 1 {
		return fmt.Errorf("config: poll_backoff_factor must be > 1, got %f", c.PollBackoffFactor)
	}
	if c.PollerCount <= 0 {
		return fmt.Errorf("config: poller_count must be positive")
	}
	if c.ONNXOpset < 13 {
		return fmt.Errorf("config: onnx_opset must be >= 13, got %d", c.ONNXOpset)
	}
	return nil
}

// WithSubjectStorePath sets the subject store path and returns c for chaining.
func (c *Config) WithSubjectStorePath(path string) *Config {
	c.SubjectStorePath = path
	return c
}

// WithJobCacheDir sets the job cache directory and returns c for chaining.
func (c *Config) WithJobCacheDir(dir string) *Config {
	c.JobCacheDir = dir
	return c
}

// WithModelScanRoot sets the model scan root and returns c for chaining.
func (c *Config) WithModelScanRoot(root string) *Config {
	c.ModelScanRoot = root
	return c
}

// WithPreferredDevice sets the preferred compile/profile target device.
func (c *Config) WithPreferredDevice(name string) *Config {
	c.PreferredDevice = name
	return c
}

