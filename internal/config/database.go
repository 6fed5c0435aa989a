package config

import "time"

// DatabaseConfig holds MongoDB connection configuration.
type DatabaseConfig struct {
	URI      string `yaml:"uri"`
	Name     string `yaml:"name"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`

	ConnectTimeout time.Duration `yaml:"connect_timeout"`
}

// EffectiveConnectTimeout returns the configured timeout or a default.
func (c *DatabaseConfig) EffectiveConnectTimeout() time.Duration {
	if c.ConnectTimeout <= 0 {
		return 10 * time.Second
	}
	return c.ConnectTimeout
}
