package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadRequiresProviderCredentials(t *testing.T) {
	t.Setenv("BROWSERBASE_API_KEY", "")
	t.Setenv("BROWSERBASE_PROJECT_ID", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BROWSERBASE_API_KEY")
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("BROWSERBASE_API_KEY", "bb-key")
	t.Setenv("BROWSERBASE_PROJECT_ID", "proj-1")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, StrategySentinel, cfg.Strategy)
	assert.Equal(t, 2*time.Second, cfg.PollInterval)
	assert.Equal(t, 60, cfg.MaxPolls)
	assert.Equal(t, "END", cfg.DoneToken)
	assert.Equal(t, "ERROR", cfg.ErrorToken)
	assert.Equal(t, "state.json", cfg.StatePath)
	assert.Equal(t, "textarea", cfg.Selectors.Composer)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("BROWSERBASE_API_KEY", "bb-key")
	t.Setenv("BROWSERBASE_PROJECT_ID", "proj-1")
	t.Setenv("POLL_INTERVAL", "500ms")
	t.Setenv("MAX_POLLS", "10")
	t.Setenv("DETECT_STRATEGY", "visual")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 500*time.Millisecond, cfg.PollInterval)
	assert.Equal(t, 10, cfg.MaxPolls)
	assert.Equal(t, StrategyVisual, cfg.Strategy)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
}

func TestValidateRejectsEqualTokens(t *testing.T) {
	t.Setenv("BROWSERBASE_API_KEY", "bb-key")
	t.Setenv("BROWSERBASE_PROJECT_ID", "proj-1")
	t.Setenv("DONE_TOKEN", "STOP")
	t.Setenv("ERROR_TOKEN", "STOP")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must differ")
}

func TestValidateRejectsUnknownStrategy(t *testing.T) {
	t.Setenv("BROWSERBASE_API_KEY", "bb-key")
	t.Setenv("BROWSERBASE_PROJECT_ID", "proj-1")
	t.Setenv("DETECT_STRATEGY", "telepathy")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DETECT_STRATEGY")
}

func TestLoadSelectorsOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "selectors.yaml")
	require.NoError(t, os.WriteFile(path, []byte("composer: \"#chat-input\"\nmessages: \".msg\"\n"), 0o600))

	selectors, err := LoadSelectors(path)
	require.NoError(t, err)

	assert.Equal(t, "#chat-input", selectors.Composer)
	assert.Equal(t, ".msg", selectors.Messages)
	// Untouched fields keep their defaults.
	assert.Equal(t, DefaultSelectors().PasswordInput, selectors.PasswordInput)
}

func TestLoadSelectorsMissingFile(t *testing.T) {
	_, err := LoadSelectors(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}
