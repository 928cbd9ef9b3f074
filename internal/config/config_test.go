package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	berrors "git.home.luguber.info/inful/buildrelay/internal/errors"
)

const minimalYAML = `
client_id: "acme"
providers:
  - name: shopify
    secret: "s3cret"
build:
  endpoint: "https://builds.example.com/api/builds"
`

func TestParseAppliesDefaults(t *testing.T) {
	cfg, err := Parse([]byte(minimalYAML))
	require.NoError(t, err)

	require.Equal(t, "production", cfg.Environment)
	require.Equal(t, ":8080", cfg.Server.ListenAddr)
	require.Equal(t, 3, cfg.Batching.ImmediateBuildThreshold)
	require.Equal(t, 50, cfg.Batching.MaxBatchSize)
	require.Equal(t, 30*time.Second, cfg.Batching.NormalWindow)
	require.Equal(t, 60*time.Second, cfg.Batching.BulkWindow)
	require.Equal(t, 10*time.Minute, cfg.Batching.MaxBatchAge)
	require.Equal(t, 5*time.Minute, cfg.Gate.MaxTimestampSkew)
	require.Equal(t, 24*time.Hour, cfg.Gate.ReceiptTTL)
	require.False(t, cfg.Gate.AllowUnknownProviders)
	require.Equal(t, "content.events", cfg.NATS.SubjectPrefix)
	require.Equal(t, 100, cfg.Build.FullRebuildThreshold)
	require.Equal(t, "json", cfg.Logging.Format)
}

func TestParseExpandsEnvironment(t *testing.T) {
	t.Setenv("TEST_WEBHOOK_SECRET", "from-env")
	cfg, err := Parse([]byte(`
client_id: "acme"
providers:
  - name: sanity
    secret: ${TEST_WEBHOOK_SECRET}
build:
  endpoint: "https://builds.example.com/api/builds"
`))
	require.NoError(t, err)
	require.Equal(t, "from-env", cfg.Secrets()["sanity"])
}

func TestParseRejectsMissingClientID(t *testing.T) {
	_, err := Parse([]byte(`
build:
  endpoint: "https://builds.example.com/api/builds"
`))
	require.Error(t, err)
	require.True(t, berrors.HasCategory(err, berrors.CategoryConfig))
}

func TestParseRejectsProviderWithoutSecret(t *testing.T) {
	t.Setenv("UNSET_SECRET_FOR_TEST", "")
	_, err := Parse([]byte(`
client_id: "acme"
providers:
  - name: shopify
    secret: ${UNSET_SECRET_FOR_TEST}
build:
  endpoint: "https://builds.example.com/api/builds"
`))
	require.Error(t, err)
}

func TestParseRejectsContradictoryBatching(t *testing.T) {
	_, err := Parse([]byte(`
client_id: "acme"
batching:
  immediate_build_threshold: 60
  max_batch_size: 50
build:
  endpoint: "https://builds.example.com/api/builds"
`))
	require.Error(t, err)
}

func TestParseRejectsNATSEnabledWithoutURL(t *testing.T) {
	_, err := Parse([]byte(`
client_id: "acme"
nats:
  enabled: true
build:
  endpoint: "https://builds.example.com/api/builds"
`))
	require.Error(t, err)
}

func TestLoadReadsFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(minimalYAML), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "acme", cfg.ClientID)
}

func TestInitRefusesToOverwrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	require.NoError(t, Init(path, false))
	require.Error(t, Init(path, false))
	require.NoError(t, Init(path, true))

	// The example must itself parse once its env placeholders are filled.
	t.Setenv("CONTENTFUL_WEBHOOK_SECRET", "a")
	t.Setenv("SHOPIFY_WEBHOOK_SECRET", "b")
	t.Setenv("BUILD_SERVICE_TOKEN", "c")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	_, err = Parse(data)
	require.NoError(t, err)
}
