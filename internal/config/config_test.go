package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clipforge/clipforge/internal/auth"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, DefaultListen, cfg.Listen)
	assert.Equal(t, DefaultDataDir, cfg.DataDir)
	assert.Equal(t, "ffmpeg", cfg.FFmpegBin)
	assert.Equal(t, "ffprobe", cfg.FFprobeBin)
	assert.Equal(t, int64(DefaultMaxUploadBytes), cfg.MaxUploadBytes)
}

func TestLoadYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
listen: ":9090"
dataDir: /var/lib/clipforge
maxUploadBytes: 1048576
tokens:
  - token: secret-1
    principal:
      id: user-1
      organizationId: org-1
      role: member
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Listen)
	assert.Equal(t, "/var/lib/clipforge", cfg.DataDir)
	assert.Equal(t, int64(1048576), cfg.MaxUploadBytes)
	require.Len(t, cfg.Tokens, 1)
	assert.Equal(t, "user-1", cfg.Tokens[0].Principal.ID)
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("listen: \":9090\"\n"), 0o644))

	t.Setenv("CLIPFORGE_LISTEN", ":7070")
	t.Setenv("CLIPFORGE_API_TOKEN", "env-token")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":7070", cfg.Listen)
	require.Len(t, cfg.Tokens, 1)
	assert.Equal(t, "env-token", cfg.Tokens[0].Token)
	assert.True(t, cfg.Tokens[0].Principal.IsAdmin())
}

func TestValidateRejectsEmptyToken(t *testing.T) {
	cfg := &Config{DataDir: "/tmp", Tokens: []TokenEntry{{Token: ""}}}
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsTokenWithoutPrincipal(t *testing.T) {
	cfg := &Config{DataDir: "/tmp", Tokens: []TokenEntry{{Token: "abc"}}}
	assert.Error(t, cfg.Validate())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestDirectoryLayout(t *testing.T) {
	cfg := &Config{DataDir: t.TempDir()}
	require.NoError(t, cfg.EnsureDirectories())

	assert.DirExists(t, cfg.UploadDir())
	assert.DirExists(t, cfg.OptimizedDir())
	assert.DirExists(t, cfg.ThumbnailDir())
	assert.Equal(t, filepath.Join(cfg.DataDir, "clipforge.db"), cfg.DBPath())
}

func TestTokenTable(t *testing.T) {
	cfg := &Config{Tokens: []TokenEntry{
		{Token: "a", Principal: auth.Principal{ID: "user-1"}},
		{Token: "b", Principal: auth.Principal{ID: "user-2"}},
	}}

	table := cfg.TokenTable()
	require.Len(t, table, 2)
	assert.Equal(t, "user-1", table["a"].ID)
	assert.Equal(t, "user-2", table["b"].ID)
}
