package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_EmptyPathReturnsDefault(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_FileOverridesDefault(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ingestor.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[transport]
address = "239.1.1.1:30101"
mode = "normal"

[shm]
slot_count = 4096
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "239.1.1.1:30101", cfg.Transport.Address)
	assert.Equal(t, "normal", cfg.Transport.Mode)
	assert.Equal(t, 4096, cfg.Shm.SlotCount)
	// Untouched fields keep their Default value.
	assert.Equal(t, Default().Indicator, cfg.Indicator)
}

func TestLoad_MissingFileErrors(t *testing.T) {
	_, err := Load("/nonexistent/path/ingestor.toml")
	assert.Error(t, err)
}

func TestApplyEnv_OverridesFileValues(t *testing.T) {
	cfg := Default()
	t.Setenv("INGEST_ADDRESS", "10.0.0.5:9000")
	t.Setenv("INGEST_SLOT_SIZE", "512")
	t.Setenv("INGEST_VPIN_BUCKET_VOLUME", "2500.5")

	cfg.ApplyEnv()

	assert.Equal(t, "10.0.0.5:9000", cfg.Transport.Address)
	assert.Equal(t, 512, cfg.Shm.SlotSize)
	assert.Equal(t, 2500.5, cfg.Indicator.VPINBucketVolume)
}

func TestApplyEnv_UnsetVariablesLeaveValueUnchanged(t *testing.T) {
	cfg := Default()
	cfg.ApplyEnv()
	assert.Equal(t, Default(), cfg)
}

func TestApplyEnv_InvalidNumericValueIsIgnored(t *testing.T) {
	cfg := Default()
	t.Setenv("INGEST_SLOT_SIZE", "not-a-number")
	cfg.ApplyEnv()
	assert.Equal(t, Default().Shm.SlotSize, cfg.Shm.SlotSize)
}

func TestApplyEnv_SpecLiteralAliasesApply(t *testing.T) {
	cfg := Default()
	t.Setenv("INGEST_BIND", "10.0.0.9:9001")
	t.Setenv("SHM_NAME", "alt-ring")
	t.Setenv("SHM_SLOT_SIZE", "768")
	t.Setenv("SHM_SLOT_COUNT", "2048")

	cfg.ApplyEnv()

	assert.Equal(t, "10.0.0.9:9001", cfg.Transport.Address)
	assert.Equal(t, "alt-ring", cfg.Shm.Name)
	assert.Equal(t, 768, cfg.Shm.SlotSize)
	assert.Equal(t, 2048, cfg.Shm.SlotCount)
}

func TestApplyEnv_NamespacedVariantWinsOverSpecLiteralAlias(t *testing.T) {
	cfg := Default()
	t.Setenv("INGEST_BIND", "10.0.0.9:9001")
	t.Setenv("INGEST_ADDRESS", "10.0.0.10:9002")
	t.Setenv("SHM_NAME", "alt-ring")
	t.Setenv("INGEST_SHM_NAME", "namespaced-ring")

	cfg.ApplyEnv()

	assert.Equal(t, "10.0.0.10:9002", cfg.Transport.Address)
	assert.Equal(t, "namespaced-ring", cfg.Shm.Name)
}

func TestLoadDotEnv_MissingFileIsNotAnError(t *testing.T) {
	err := LoadDotEnv(filepath.Join(t.TempDir(), "missing.env"))
	assert.NoError(t, err)
}
