package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"corecs/internal/errs"
)

func TestDefaultRuntimeConfigIsValid(t *testing.T) {
	cfg := DefaultRuntimeConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, errs.Diagnostic, cfg.BuildMode())
}

func TestLoadOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "runtime.yaml")
	require.NoError(t, os.WriteFile(path, []byte("max_entities: 256\ndiagnostic: false\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 256, cfg.MaxEntities)
	assert.Equal(t, errs.Release, cfg.BuildMode())
	assert.Equal(t, DefaultRuntimeConfig().RecorderDirectory, cfg.RecorderDirectory)
}

func TestValidateRejectsNonPositiveCapacity(t *testing.T) {
	cfg := DefaultRuntimeConfig()
	cfg.MaxEntities = 0
	assert.Error(t, cfg.Validate())
}

func TestLoadMissingFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
