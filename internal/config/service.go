package config

type ServiceConfig struct {
	Environment string `yaml:"environment"`
	ClientURL   string `yaml:"client_url"`

	StripeSecretKey     string `yaml:"stripe_secret_key"`
	StripeWebhookSecret string `yaml:"stripe_webhook_secret"`

	ClerkWebhookSecret string `yaml:"clerk_webhook_secret"`
	SessionJWTSecret   string `yaml:"session_jwt_secret"`

	Redis RedisConfig `yaml:"redis"`
}

// RedisConfig configures the optional plan-change publisher. An empty
// Addr disables publishing entirely.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Channel  string `yaml:"channel"`
}

type LogConfig struct {
	Level       string `yaml:"level"`
	Format      string `yaml:"format"`
	Output      string `yaml:"output"`
	FilePath    string `yaml:"file_path"`
	Development bool   `yaml:"development"`
}
