package stereo

// Preset names for common stereo setups
const (
	PresetDefault    = "default"
	PresetAccuracy   = "accuracy"
	PresetCloseRange = "close-range"
	PresetFast       = "fast"
)

// Presets returns all available preset configurations.
func Presets() map[string]Config {
	return map[string]Config{
		PresetDefault:    Default(),
		PresetAccuracy:   AccuracyConfig(),
		PresetCloseRange: CloseRangeConfig(),
		PresetFast:       FastConfig(),
	}
}

// PresetNames returns the list of available preset names.
func PresetNames() []string {
	return []string{
		PresetDefault,
		PresetAccuracy,
		PresetCloseRange,
		PresetFast,
	}
}

// GetPreset returns a preset config by name, or nil if not found.
func GetPreset(name string) *Config {
	presets := Presets()
	if cfg, ok := presets[name]; ok {
		return &cfg
	}
	return nil
}

// AccuracyConfig favours long range: subpixel with left-right check.
func AccuracyConfig() Config {
	cfg := Default()
	cfg.LeftRightCheck = true
	cfg.Subpixel = true
	cfg.Extended = false
	return cfg
}

// CloseRangeConfig doubles the disparity search for objects near the lens.
func CloseRangeConfig() Config {
	cfg := Default()
	cfg.LeftRightCheck = true
	cfg.Extended = true
	cfg.Subpixel = false
	return cfg
}

// FastConfig turns the optional modes off so the median filter stays usable
// and depth comes out directly in millimetres.
func FastConfig() Config {
	cfg := Default()
	cfg.LeftRightCheck = false
	cfg.Extended = false
	cfg.Subpixel = false
	cfg.Median = Kernel7x7
	return cfg
}
