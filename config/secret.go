package config

import (
	"os"

	"go.uber.org/zap"
)

// ResolveSecret returns the ticket signing key: the explicit -secret
// flag wins, then the environment variable named by -secret-env-var.
// Empty resolution is unsigned mode, a misconfiguration worth shouting
// about but not fatal: the server stays up and rejects every ticket.
func (c *Config) ResolveSecret(logger *zap.SugaredLogger) string {
	if *c.Secret != "" {
		return *c.Secret
	}
	if *c.SecretEnvVar != "" {
		if value := os.Getenv(*c.SecretEnvVar); value != "" {
			return value
		}
	}
	logger.Warnf("ticket signing secret not set (flag -secret or env %v), running unsigned", *c.SecretEnvVar)
	return ""
}
