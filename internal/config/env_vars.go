package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	portEnvVar    = "PORT"
	appNameVar    = "APP_NAME"
	baseURLVar    = "BASE_URL"
	loginURLVar   = "LOGIN_URL"
	consentURLVar = "CONSENT_URL"
)

type EnvVars struct{}

var _ EnvConfig = EnvVars{}

func (EnvVars) GetPort() string {
	port := GetEnv(portEnvVar, "8080")
	if !strings.HasPrefix(port, ":") {
		port = ":" + port
	}
	return port
}

func (EnvVars) GetAppName() string {
	return GetEnv(appNameVar, "Go OAuth2 Server")
}

// GetBaseURL returns the public base URL of this server (e.g.
// "https://auth.example.com"). It becomes the token issuer and the prefix of
// every endpoint published in the discovery documents.
func (EnvVars) GetBaseURL() string {
	return GetEnv(baseURLVar, "http://localhost:8080")
}

// GetLoginURL is the external surface that authenticates principals. The
// authorize endpoint redirects there with the pending flow ID.
func (EnvVars) GetLoginURL() string {
	return GetEnv(loginURLVar, "http://localhost:3000/login")
}

// GetConsentURL is the external surface that collects scope approval.
func (EnvVars) GetConsentURL() string {
	return GetEnv(consentURLVar, "http://localhost:3000/consent")
}

func (EnvVars) GetEnv() string {
	env := os.Getenv("ENV")
	if env == "" {
		return "DEV"
	}
	return env
}

func GetEnv(envVar, defaultValue string) string {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	return value
}

// GetDurationEnv parses the variable with time.ParseDuration, falling back to
// the default on absence or a malformed value.
func GetDurationEnv(envVar string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

// GetBoolEnv accepts the strconv.ParseBool spellings (1/t/true/0/f/false).
func GetBoolEnv(envVar string, defaultValue bool) bool {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func GetIntEnv(envVar string, defaultValue int) int {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}
