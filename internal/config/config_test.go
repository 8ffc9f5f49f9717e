package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/watts/internal/errors"
)

func TestPathResolution(t *testing.T) {
	t.Setenv(EnvConfig, "")
	assert.Equal(t, DefaultFile, Path(""))

	t.Setenv(EnvConfig, "/etc/watts.yaml")
	assert.Equal(t, "/etc/watts.yaml", Path(""))
	assert.Equal(t, "mine.yaml", Path("mine.yaml"))
}

func TestLoadMissingFile(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "watts.yaml")

	cfg, err := Load(missing, false)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)

	_, err = Load(missing, true)
	assert.Equal(t, errors.ErrCodeConfigInvalid, errors.CodeOf(err))
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "watts.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
database:
  path: /data/watts
logging:
  format: json
run:
  show_stdout: true
archive:
  endpoint: minio:9000
  access_key: a
  secret_key: b
  bucket: runs
telemetry:
  enabled: true
  endpoint: otel-collector:4318
`), 0644))

	cfg, err := Load(path, true)
	require.NoError(t, err)
	assert.Equal(t, "/data/watts", cfg.Database.Path)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, "info", cfg.Logging.Level, "unset keys keep their default")
	assert.True(t, cfg.Run.ShowStdout)
	assert.True(t, cfg.Run.Checkpoints)
	assert.Equal(t, "runs", cfg.Archive.Bucket)
	assert.True(t, cfg.Telemetry.Enabled)
	assert.Equal(t, "otel-collector:4318", cfg.Telemetry.Endpoint)
	assert.Equal(t, 1.0, cfg.Telemetry.SampleRate)
}

func TestLoadRejectsInvalid(t *testing.T) {
	dir := t.TempDir()
	for name, body := range map[string]string{
		"format.yaml":  "logging:\n  format: xml\n",
		"archive.yaml": "archive:\n  endpoint: http://minio:9000\n",
		"syntax.yaml":  "database: [",
		"sample.yaml":  "telemetry:\n  enabled: true\n  sample_rate: 3\n",
	} {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(body), 0644))
		_, err := Load(path, true)
		assert.Equal(t, errors.ErrCodeConfigInvalid, errors.CodeOf(err), name)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "watts.yaml")
	cfg := Default()
	cfg.Run.KeepWorkdir = true
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path, true)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}
