// Package config exposes process configuration as small per-concern
// interfaces composed into one Config. Values come from environment
// variables with working defaults, so a bare `go run` starts a usable
// in-memory server.
package config

type Config interface {
	EnvConfig
	CorsConfig
	OAuthConfig
	SecurityConfig
	StoreConfig
}

type EnvConfig interface {
	GetPort() string
	GetAppName() string
	GetBaseURL() string
	GetLoginURL() string
	GetConsentURL() string
	GetEnv() string
}

type CorsConfig interface {
	GetAllowedOrigins() AllowedOrigins
	GetAllowedMethods() string
	GetAllowedHeaders() string
}

type mainConfig struct {
	EnvVars
	Cors
	OAuth
	Security
	Stores
}

func New() Config {
	return mainConfig{}
}
