package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_EnvVarOverride(t *testing.T) {
	Reset()
	t.Setenv("LCDRING_BRIGHTNESS", "80")
	t.Setenv("LCDRING_MONITOR_VID", "0x1CBE")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 80, cfg.Brightness)
	assert.Equal(t, 0x1CBE, cfg.MonitorVID)
}

func TestLoad_CachesSingleton(t *testing.T) {
	Reset()
	t.Setenv("LCDRING_ROTATION", "2")
	first, err := Load()
	require.NoError(t, err)

	os.Setenv("LCDRING_ROTATION", "3")
	second, err := Load()
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, 2, second.Rotation)
}

func TestParseEnvFile_IgnoresCommentsAndBlankLines(t *testing.T) {
	cfg := &DriverConfig{}
	parseEnvFile("# comment\n\nLCDRING_FFMPEG_PATH=/opt/bin/ffmpeg\n", cfg)
	assert.Equal(t, "/opt/bin/ffmpeg", cfg.FFmpegPath)
}

func TestFFmpegPathOrDefault_FallsBackToPath(t *testing.T) {
	Reset()
	assert.Equal(t, "ffmpeg", FFmpegPathOrDefault())
}

func TestMustGetDriverConfig_PanicsOnInvalidPlaybackSlot(t *testing.T) {
	Reset()
	t.Setenv("LCDRING_PLAYBACK_SLOT", "7")
	assert.Panics(t, func() { MustGetDriverConfig() })
}

func TestMustGetDriverConfig_ReturnsConfigWhenValid(t *testing.T) {
	Reset()
	t.Setenv("LCDRING_PLAYBACK_SLOT", "1")
	cfg := MustGetDriverConfig()
	assert.Equal(t, 1, cfg.PlaybackSlot)
}

func TestParseIntOrZero_HexAndDecimal(t *testing.T) {
	assert.Equal(t, 0x1CBE, parseIntOrZero("0x1CBE"))
	assert.Equal(t, 42, parseIntOrZero("42"))
	assert.Equal(t, 0, parseIntOrZero("not-a-number"))
}
