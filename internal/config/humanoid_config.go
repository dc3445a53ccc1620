// File: internal/config/humanoid_config.go
// This file defines the HumanoidConfig struct, which contains the timing and
// geometry ranges used when synthesizing pointer input. Every range is sampled
// per action so two consecutive gestures never share the same profile.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// HumanoidConfig tunes the pointer motion synthesis.
type HumanoidConfig struct {
	// -- Press and hold --
	HoldMin time.Duration `mapstructure:"hold_min" yaml:"hold_min"`
	HoldMax time.Duration `mapstructure:"hold_max" yaml:"hold_max"`
	// HoldMinDelta is the smallest accepted difference between two consecutive
	// hold durations within one session.
	HoldMinDelta          time.Duration `mapstructure:"hold_min_delta" yaml:"hold_min_delta"`
	HoldJitterRadius      float64       `mapstructure:"hold_jitter_radius" yaml:"hold_jitter_radius"`
	HoldJitterIntervalMin time.Duration `mapstructure:"hold_jitter_interval_min" yaml:"hold_jitter_interval_min"`
	HoldJitterIntervalMax time.Duration `mapstructure:"hold_jitter_interval_max" yaml:"hold_jitter_interval_max"`
	PrePressMin           time.Duration `mapstructure:"pre_press_min" yaml:"pre_press_min"`
	PrePressMax           time.Duration `mapstructure:"pre_press_max" yaml:"pre_press_max"`

	// -- Hover and click --
	HoverPauseMin time.Duration `mapstructure:"hover_pause_min" yaml:"hover_pause_min"`
	HoverPauseMax time.Duration `mapstructure:"hover_pause_max" yaml:"hover_pause_max"`
	ClickHoldMin  time.Duration `mapstructure:"click_hold_min" yaml:"click_hold_min"`
	ClickHoldMax  time.Duration `mapstructure:"click_hold_max" yaml:"click_hold_max"`

	// -- Approach movement --
	// ApproachStepDelay is the frame time for approach paths (about 60fps).
	ApproachStepDelay time.Duration `mapstructure:"approach_step_delay" yaml:"approach_step_delay"`
	ApproachStepsMin  int           `mapstructure:"approach_steps_min" yaml:"approach_steps_min"`
	ApproachStepsMax  int           `mapstructure:"approach_steps_max" yaml:"approach_steps_max"`
	// ApproachCurvature scales the Bezier control point spread relative to distance.
	ApproachCurvature float64 `mapstructure:"approach_curvature" yaml:"approach_curvature"`
	// TargetSpread is the Gaussian std dev (fraction of box size) used when
	// choosing a point inside an element.
	TargetSpread float64 `mapstructure:"target_spread" yaml:"target_spread"`

	// -- Drag --
	DragStepsMin       int           `mapstructure:"drag_steps_min" yaml:"drag_steps_min"`
	DragStepsMax       int           `mapstructure:"drag_steps_max" yaml:"drag_steps_max"`
	DragStepDelayMin   time.Duration `mapstructure:"drag_step_delay_min" yaml:"drag_step_delay_min"`
	DragStepDelayMax   time.Duration `mapstructure:"drag_step_delay_max" yaml:"drag_step_delay_max"`
	DragVerticalJitter float64       `mapstructure:"drag_vertical_jitter" yaml:"drag_vertical_jitter"`
	DragMarginMin      float64       `mapstructure:"drag_margin_min" yaml:"drag_margin_min"`
	DragMarginMax      float64       `mapstructure:"drag_margin_max" yaml:"drag_margin_max"`

	// -- Keyboard --
	KeyPauseMin time.Duration `mapstructure:"key_pause_min" yaml:"key_pause_min"`
	KeyPauseMax time.Duration `mapstructure:"key_pause_max" yaml:"key_pause_max"`
}

// DefaultHumanoidConfig returns the stock timing profile.
func DefaultHumanoidConfig() HumanoidConfig {
	v := viper.New()
	setHumanoidDefaults(v)
	var holder struct {
		Humanoid HumanoidConfig `mapstructure:"humanoid"`
	}
	if err := v.Unmarshal(&holder); err != nil {
		panic(fmt.Sprintf("failed to unmarshal humanoid defaults: %v", err))
	}
	return holder.Humanoid
}

func setHumanoidDefaults(v *viper.Viper) {
	v.SetDefault("humanoid.hold_min", "400ms")
	v.SetDefault("humanoid.hold_max", "1500ms")
	v.SetDefault("humanoid.hold_min_delta", "40ms")
	v.SetDefault("humanoid.hold_jitter_radius", 3.0)
	v.SetDefault("humanoid.hold_jitter_interval_min", "60ms")
	v.SetDefault("humanoid.hold_jitter_interval_max", "140ms")
	v.SetDefault("humanoid.pre_press_min", "100ms")
	v.SetDefault("humanoid.pre_press_max", "300ms")

	v.SetDefault("humanoid.hover_pause_min", "120ms")
	v.SetDefault("humanoid.hover_pause_max", "450ms")
	v.SetDefault("humanoid.click_hold_min", "50ms")
	v.SetDefault("humanoid.click_hold_max", "120ms")

	v.SetDefault("humanoid.approach_step_delay", "16ms")
	v.SetDefault("humanoid.approach_steps_min", 20)
	v.SetDefault("humanoid.approach_steps_max", 45)
	v.SetDefault("humanoid.approach_curvature", 0.3)
	v.SetDefault("humanoid.target_spread", 0.15)

	v.SetDefault("humanoid.drag_steps_min", 18)
	v.SetDefault("humanoid.drag_steps_max", 32)
	v.SetDefault("humanoid.drag_step_delay_min", "8ms")
	v.SetDefault("humanoid.drag_step_delay_max", "24ms")
	v.SetDefault("humanoid.drag_vertical_jitter", 1.5)
	v.SetDefault("humanoid.drag_margin_min", 2.0)
	v.SetDefault("humanoid.drag_margin_max", 6.0)

	v.SetDefault("humanoid.key_pause_min", "80ms")
	v.SetDefault("humanoid.key_pause_max", "220ms")
}

// Validate rejects inverted or empty ranges.
func (h *HumanoidConfig) Validate() error {
	ranges := []struct {
		name     string
		min, max time.Duration
	}{
		{"hold", h.HoldMin, h.HoldMax},
		{"hold_jitter_interval", h.HoldJitterIntervalMin, h.HoldJitterIntervalMax},
		{"pre_press", h.PrePressMin, h.PrePressMax},
		{"hover_pause", h.HoverPauseMin, h.HoverPauseMax},
		{"click_hold", h.ClickHoldMin, h.ClickHoldMax},
		{"drag_step_delay", h.DragStepDelayMin, h.DragStepDelayMax},
		{"key_pause", h.KeyPauseMin, h.KeyPauseMax},
	}
	for _, r := range ranges {
		if r.min < 0 || r.max < r.min {
			return fmt.Errorf("%s range [%s, %s] is invalid", r.name, r.min, r.max)
		}
	}
	if h.HoldMin <= 0 {
		return fmt.Errorf("hold_min must be positive")
	}
	// Two distinct holds must be able to fit inside the window.
	if h.HoldMax-h.HoldMin <= h.HoldMinDelta {
		return fmt.Errorf("hold window must be wider than hold_min_delta")
	}
	if h.HoldJitterIntervalMin <= 0 {
		return fmt.Errorf("hold_jitter_interval_min must be positive")
	}
	if h.ApproachStepsMin < 2 || h.ApproachStepsMax < h.ApproachStepsMin {
		return fmt.Errorf("approach steps range [%d, %d] is invalid", h.ApproachStepsMin, h.ApproachStepsMax)
	}
	if h.DragStepsMin < 2 || h.DragStepsMax < h.DragStepsMin {
		return fmt.Errorf("drag steps range [%d, %d] is invalid", h.DragStepsMin, h.DragStepsMax)
	}
	if h.DragMarginMax < h.DragMarginMin || h.DragMarginMin < 0 {
		return fmt.Errorf("drag margin range is invalid")
	}
	return nil
}
