package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"phantomqa/pkg/qaerr"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 6, cfg.Processing.SliceIndex)
	assert.Equal(t, RampShape{Ramp: 7, Plateau: 32}, cfg.SliceWidth.Ramps[3])
}

func TestLoadConfigMissingFile(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestSaveAndLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "phantomqa.yaml")
	cfg := DefaultConfig()
	cfg.Phantom.Size = PhantomMedium
	cfg.SliceWidth.Ramps[4] = RampShape{Ramp: 20, Plateau: 40}
	require.NoError(t, SaveConfig(cfg, path))

	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestLoadConfigPartialOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "phantomqa.yaml")
	require.NoError(t, os.WriteFile(path, []byte("registration:\n  motion: affine\n"), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "affine", cfg.Registration.Motion)
	assert.Equal(t, 500, cfg.Registration.MaxIterations)
}

func TestLoadConfigRejectsInvalid(t *testing.T) {
	dir := t.TempDir()

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("phantom:\n  size: small\n"), 0644))
	_, err := LoadConfig(bad)
	assert.ErrorIs(t, err, qaerr.ErrInvalidInput)

	broken := filepath.Join(dir, "broken.yaml")
	require.NoError(t, os.WriteFile(broken, []byte("processing: [\n"), 0644))
	_, err = LoadConfig(broken)
	assert.Error(t, err)
}

func TestCreateDefaultConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "default.yaml")
	require.NoError(t, CreateDefaultConfigFile(path))
	_, err := os.Stat(path)
	require.NoError(t, err)
}
