package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jrsteele09/go-oauth2-server/internal/config"
)

func TestEnvHelpers(t *testing.T) {
	t.Run("GetEnv default and override", func(t *testing.T) {
		require.Equal(t, "fallback", config.GetEnv("CONFIG_TEST_UNSET", "fallback"))
		t.Setenv("CONFIG_TEST_SET", "value")
		require.Equal(t, "value", config.GetEnv("CONFIG_TEST_SET", "fallback"))
	})

	t.Run("GetDurationEnv ignores malformed values", func(t *testing.T) {
		t.Setenv("CONFIG_TEST_DURATION", "90s")
		require.Equal(t, 90*time.Second, config.GetDurationEnv("CONFIG_TEST_DURATION", time.Minute))
		t.Setenv("CONFIG_TEST_DURATION", "ninety seconds")
		require.Equal(t, time.Minute, config.GetDurationEnv("CONFIG_TEST_DURATION", time.Minute))
	})

	t.Run("GetBoolEnv", func(t *testing.T) {
		t.Setenv("CONFIG_TEST_BOOL", "true")
		require.True(t, config.GetBoolEnv("CONFIG_TEST_BOOL", false))
		t.Setenv("CONFIG_TEST_BOOL", "0")
		require.False(t, config.GetBoolEnv("CONFIG_TEST_BOOL", true))
	})
}

func TestPortIsColonPrefixed(t *testing.T) {
	cfg := config.New()

	t.Setenv("PORT", "9000")
	require.Equal(t, ":9000", cfg.GetPort())

	t.Setenv("PORT", ":9001")
	require.Equal(t, ":9001", cfg.GetPort())
}

func TestAllowedOrigins(t *testing.T) {
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://app.example.com, https://admin.example.com")
	origins := config.New().GetAllowedOrigins()

	require.True(t, origins.IsAllowedOrigin("https://app.example.com"))
	require.True(t, origins.IsAllowedOrigin("https://admin.example.com"))
	require.False(t, origins.IsAllowedOrigin("https://evil.example.com"))
}
