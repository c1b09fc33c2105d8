package config

import "time"

type SecurityConfig interface {
	GetSigningKeyID() string
	GetSigningKeyFile() string
	GetKeyRetirementWindow() time.Duration
}

type Security struct{}

var _ SecurityConfig = Security{}

func (Security) GetSigningKeyID() string {
	return GetEnv("SIGNING_KEY_ID", "")
}

// GetSigningKeyFile points at a PEM-encoded RSA private key. When empty the
// server generates an ephemeral key pair at startup, which is fine for
// development and useless behind a load balancer.
func (Security) GetSigningKeyFile() string {
	return GetEnv("SIGNING_KEY_FILE", "")
}

// GetKeyRetirementWindow is how long a rotated-out signing key keeps
// verifying tokens it signed.
func (Security) GetKeyRetirementWindow() time.Duration {
	return GetDurationEnv("KEY_RETIREMENT_WINDOW", 24*time.Hour)
}
