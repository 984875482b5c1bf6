package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadRequiresToken(t *testing.T) {
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "missing.yaml"))
	t.Setenv("DISCORD_TOKEN", "")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoadYAMLThenEnv(t *testing.T) {
	path := writeFile(t, "config.yaml", `
discord_token: from-file
log_level: debug
admin_user_ids: ["1", "2"]
onboarding:
  channel_prefix: "welcome-"
  follow_up_delay_seconds: 2
activity:
  enabled: false
  kick_seconds: 30
`)
	t.Setenv("CONFIG_PATH", path)
	t.Setenv("DISCORD_TOKEN", "from-env")
	t.Setenv("PORT", "8080")
	t.Setenv("ADMIN_USER_IDS", "10,20,30")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.DiscordToken)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, []string{"10", "20", "30"}, cfg.AdminUserIDs)
	assert.Equal(t, ":8080", cfg.Health.Addr)
	assert.Equal(t, "welcome-", cfg.Onboarding.ChannelPrefix)
	assert.Equal(t, 2*time.Second, cfg.Onboarding.FollowUpDelay())
	assert.Equal(t, 3*time.Second, cfg.Onboarding.DeleteGrace())
	assert.Equal(t, 24*time.Hour, cfg.Onboarding.RejoinWindow())
	assert.False(t, cfg.Activity.Enabled)
	assert.Equal(t, 30, cfg.Activity.KickSeconds)
	assert.Equal(t, 10, cfg.Activity.ReminderSeconds)
}

func TestLoadMessages(t *testing.T) {
	path := writeFile(t, "messages.json", `{
  "settings": {
    "male_role_name": "단팥빵",
    "female_role_name": "메론빵",
    "male_prefix": "(단팥빵)",
    "female_prefix": "(메론빵)",
    "welcome_category": "환영"
  },
  "welcome_messages": {
    "initial_welcome": {"title": "환영합니다", "description": "hi", "color": "5865F2", "field_value": "rules"},
    "adaptation_check": {"title": "적응", "description": "{member_mention}", "color": "#57F287", "field_name": "확인"}
  }
}`)

	msgs, err := LoadMessages(path)
	require.NoError(t, err)
	assert.Equal(t, "(단팥빵)", msgs.Settings.MalePrefix)
	assert.Equal(t, "환영", msgs.Settings.WelcomeCategory)
	assert.Equal(t, 0x5865F2, msgs.WelcomeMessages.InitialWelcome.ColorValue())
	assert.Equal(t, 0x57F287, msgs.WelcomeMessages.AdaptationCheck.ColorValue())
}

func TestLoadMessagesMissing(t *testing.T) {
	_, err := LoadMessages(filepath.Join(t.TempDir(), "messages.json"))
	assert.Error(t, err)
}

func TestBuildLogger(t *testing.T) {
	logger, err := BuildLogger("warn")
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(parseLevel("info")))
	assert.True(t, logger.Core().Enabled(parseLevel("error")))
}
