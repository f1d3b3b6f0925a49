package web

import (
	"encoding/json"
	"fmt"
	"sync"
)

// Preset names for viewer settings
const (
	PresetDefault      = "default"
	PresetLowBandwidth = "low-bandwidth"
	PresetSmooth       = "smooth"
)

// Settings are the viewer options that can be changed while running.
type Settings struct {
	FPS     float64 `json:"fps"`     // per stream
	Quality int     `json:"quality"` // JPEG quality 1-100

	// DepthRangeMM is the depth shown as white when a 16-bit image is
	// encoded.
	DepthRangeMM float64 `json:"depth_range_mm"`
}

// DefaultSettings returns the settings viewers start with.
func DefaultSettings() Settings {
	return Settings{
		FPS:          DefaultFPS,
		Quality:      DefaultJPEGQuality,
		DepthRangeMM: 10000,
	}
}

// GetSettingsPreset returns a preset by name, or nil if not found.
func GetSettingsPreset(name string) *Settings {
	s := DefaultSettings()
	switch name {
	case PresetDefault:
	case PresetLowBandwidth:
		s.FPS = 2
		s.Quality = 50
	case PresetSmooth:
		s.FPS = 30
		s.Quality = 70
	default:
		return nil
	}
	return &s
}

// Validate checks ranges. Returns a list of problems, or nil if valid.
func (s Settings) Validate() []string {
	var errors []string
	if s.FPS <= 0 || s.FPS > 60 {
		errors = append(errors, "fps must be in (0, 60]")
	}
	if s.Quality < 1 || s.Quality > 100 {
		errors = append(errors, "quality must be between 1 and 100")
	}
	if s.DepthRangeMM <= 0 {
		errors = append(errors, "depth_range_mm must be positive")
	}
	return errors
}

// settingsManager holds the current settings and applies updates.
type settingsManager struct {
	current Settings
	mu      sync.RWMutex

	// onChange runs after every accepted update
	onChange func(Settings)
}

func (m *settingsManager) Get() Settings {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

func (m *settingsManager) Set(s Settings) error {
	if errors := s.Validate(); len(errors) > 0 {
		return fmt.Errorf("validation failed: %v", errors)
	}

	m.mu.Lock()
	m.current = s
	callback := m.onChange
	m.mu.Unlock()

	if callback != nil {
		callback(s)
	}
	return nil
}

// Update applies a partial update. A "preset" key replaces the settings
// before the other keys are applied.
func (m *settingsManager) Update(params map[string]interface{}) error {
	s := m.Get()

	if name, ok := params["preset"].(string); ok {
		preset := GetSettingsPreset(name)
		if preset == nil {
			return fmt.Errorf("unknown preset: %s", name)
		}
		s = *preset
	}

	for key, value := range params {
		switch key {
		case "preset":
		case "fps":
			v, ok := toFloat(value)
			if !ok {
				return fmt.Errorf("fps: not a number")
			}
			s.FPS = v
		case "quality":
			v, ok := toInt(value)
			if !ok {
				return fmt.Errorf("quality: not a number")
			}
			s.Quality = v
		case "depth_range_mm":
			v, ok := toFloat(value)
			if !ok {
				return fmt.Errorf("depth_range_mm: not a number")
			}
			s.DepthRangeMM = v
		default:
			return fmt.Errorf("unknown setting: %s", key)
		}
	}

	return m.Set(s)
}

func toInt(v interface{}) (int, bool) {
	switch val := v.(type) {
	case int:
		return val, true
	case float64:
		if val != float64(int(val)) {
			return 0, false
		}
		return int(val), true
	case json.Number:
		i, err := val.Int64()
		if err == nil {
			return int(i), true
		}
	}
	return 0, false
}

func toFloat(v interface{}) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case int:
		return float64(val), true
	case json.Number:
		f, err := val.Float64()
		if err == nil {
			return f, true
		}
	}
	return 0, false
}
