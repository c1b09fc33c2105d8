package config

import "time"

type OAuthConfig interface {
	GetAuthCodeTimeout() time.Duration
	GetFlowTimeout() time.Duration
	GetDefaultAccessTokenExpiry() time.Duration
	GetDefaultIDTokenExpiry() time.Duration
	GetDefaultRefreshTokenExpiry() time.Duration
	GetRefreshTokenReuse() bool
}

type OAuth struct{}

var _ OAuthConfig = OAuth{}

// GetAuthCodeTimeout bounds authorization code lifetime. The protocol caps
// codes at ten minutes, so larger configured values are clamped downstream.
func (OAuth) GetAuthCodeTimeout() time.Duration {
	return GetDurationEnv("AUTH_CODE_TIMEOUT", 10*time.Minute)
}

// GetFlowTimeout bounds how long a pending authorization may sit with the
// login and consent surfaces before it is abandoned.
func (OAuth) GetFlowTimeout() time.Duration {
	return GetDurationEnv("AUTH_FLOW_TIMEOUT", 10*time.Minute)
}

func (OAuth) GetDefaultAccessTokenExpiry() time.Duration {
	return GetDurationEnv("TOKEN_ACCESS_EXPIRY", 15*time.Minute)
}

func (OAuth) GetDefaultIDTokenExpiry() time.Duration {
	return GetDurationEnv("TOKEN_ID_EXPIRY", time.Hour)
}

func (OAuth) GetDefaultRefreshTokenExpiry() time.Duration {
	return GetDurationEnv("TOKEN_REFRESH_EXPIRY", 7*24*time.Hour)
}

// GetRefreshTokenReuse disables refresh token rotation when true: the same
// refresh token stays valid across exchanges.
func (OAuth) GetRefreshTokenReuse() bool {
	return GetBoolEnv("TOKEN_REFRESH_REUSE", false)
}
