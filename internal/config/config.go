// Package config loads runtime configuration for the daemon and CLI: USB
// identity overrides, external media binary paths and playback defaults.
// It follows the teacher's own config package: an optional .env file in
// the project root, overridden by environment variables, cached behind a
// package-level singleton.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// DriverConfig holds every externally tunable setting. Zero values mean
// "use the built-in default", applied by the components that consume
// each field rather than here. The USB identity fields (MonitorVID through
// LEDPID) are parsed but not read by the transports, which always open
// the devproto identities.
type DriverConfig struct {
	MonitorVID int
	MonitorPID int
	StandbyVID int
	StandbyPID int
	LEDVID     int
	LEDPID     int

	FFmpegPath  string
	DecoderPath string

	PlaybackSlot int
	Brightness   int
	Rotation     int
	Framerate    int

	AmbilightEnabled bool
}

var (
	driverConfig *DriverConfig
	configLoaded bool
)

// Load reads .env (if present) then applies environment variable
// overrides, caching the result for subsequent calls.
func Load() (*DriverConfig, error) {
	if driverConfig != nil && configLoaded {
		return driverConfig, nil
	}

	cfg := &DriverConfig{}

	projectRoot := findProjectRoot()
	envPath := filepath.Join(projectRoot, ".env")
	if data, err := os.ReadFile(envPath); err == nil {
		parseEnvFile(string(data), cfg)
	}

	applyEnvOverrides(cfg)

	driverConfig = cfg
	configLoaded = true
	return cfg, nil
}

func parseEnvFile(content string, cfg *DriverConfig) {
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		setField(cfg, strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1]))
	}
}

func applyEnvOverrides(cfg *DriverConfig) {
	for _, key := range []string{
		"LCDRING_MONITOR_VID", "LCDRING_MONITOR_PID",
		"LCDRING_STANDBY_VID", "LCDRING_STANDBY_PID",
		"LCDRING_LED_VID", "LCDRING_LED_PID",
		"LCDRING_FFMPEG_PATH", "LCDRING_DECODER_PATH",
		"LCDRING_PLAYBACK_SLOT", "LCDRING_BRIGHTNESS",
		"LCDRING_ROTATION", "LCDRING_FRAMERATE",
		"LCDRING_AMBILIGHT_ENABLED",
	} {
		if v := os.Getenv(key); v != "" {
			setField(cfg, key, v)
		}
	}
}

func setField(cfg *DriverConfig, key, value string) {
	switch key {
	case "LCDRING_MONITOR_VID":
		cfg.MonitorVID = parseIntOrZero(value)
	case "LCDRING_MONITOR_PID":
		cfg.MonitorPID = parseIntOrZero(value)
	case "LCDRING_STANDBY_VID":
		cfg.StandbyVID = parseIntOrZero(value)
	case "LCDRING_STANDBY_PID":
		cfg.StandbyPID = parseIntOrZero(value)
	case "LCDRING_LED_VID":
		cfg.LEDVID = parseIntOrZero(value)
	case "LCDRING_LED_PID":
		cfg.LEDPID = parseIntOrZero(value)
	case "LCDRING_FFMPEG_PATH":
		cfg.FFmpegPath = value
	case "LCDRING_DECODER_PATH":
		cfg.DecoderPath = value
	case "LCDRING_PLAYBACK_SLOT":
		cfg.PlaybackSlot = parseIntOrZero(value)
	case "LCDRING_BRIGHTNESS":
		cfg.Brightness = parseIntOrZero(value)
	case "LCDRING_ROTATION":
		cfg.Rotation = parseIntOrZero(value)
	case "LCDRING_FRAMERATE":
		cfg.Framerate = parseIntOrZero(value)
	case "LCDRING_AMBILIGHT_ENABLED":
		cfg.AmbilightEnabled = value == "1" || strings.EqualFold(value, "true")
	}
}

func parseIntOrZero(s string) int {
	n, err := strconv.ParseInt(strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X"), hexOrDec(s), 32)
	if err != nil {
		return 0
	}
	return int(n)
}

func hexOrDec(s string) int {
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		return 16
	}
	return 10
}

func findProjectRoot() string {
	cwd, _ := os.Getwd()
	if _, err := os.Stat(filepath.Join(cwd, ".env")); err == nil {
		return cwd
	}
	for {
		if _, err := os.Stat(filepath.Join(cwd, "go.mod")); err == nil {
			return cwd
		}
		parent := filepath.Dir(cwd)
		if parent == cwd {
			return cwd
		}
		cwd = parent
	}
}

// MustGetDriverConfig loads config the same as Load, panicking instead of
// returning an error for callers (the daemon's entrypoint) that cannot
// proceed without valid settings. An out-of-range LCDRING_PLAYBACK_SLOT
// is the one setting that would otherwise misbehave silently deep in
// devproto.PlaybackSlot's switch statements, so it's checked here.
func MustGetDriverConfig() *DriverConfig {
	cfg, err := Load()
	if err != nil {
		panic(fmt.Sprintf("config: %v", err))
	}
	if cfg.PlaybackSlot < 0 || cfg.PlaybackSlot > 2 {
		panic(fmt.Sprintf("config: LCDRING_PLAYBACK_SLOT must be 0, 1, or 2, got %d", cfg.PlaybackSlot))
	}
	return cfg
}

// FFmpegPathOrDefault returns the configured transcoder binary path, or
// "ffmpeg" to resolve from $PATH.
func FFmpegPathOrDefault() string {
	cfg, err := Load()
	if err != nil || cfg.FFmpegPath == "" {
		return "ffmpeg"
	}
	return cfg.FFmpegPath
}

// DecoderPathOrDefault returns the configured decoder binary path, or
// "ffmpeg" — the same binary doubles as the raw-frame decoder when no
// dedicated decoder is configured.
func DecoderPathOrDefault() string {
	cfg, err := Load()
	if err != nil || cfg.DecoderPath == "" {
		return "ffmpeg"
	}
	return cfg.DecoderPath
}

// Reset clears the cached singleton. Test-only.
func Reset() {
	driverConfig = nil
	configLoaded = false
}
