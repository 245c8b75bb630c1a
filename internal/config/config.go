package config

import (
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	ServerPort     string        `mapstructure:"SERVER_PORT"`
	APIBaseURL     string        `mapstructure:"API_BASE_URL"`
	RedisAddr      string        `mapstructure:"REDIS_ADDR"`
	RedisPassword  string        `mapstructure:"REDIS_PASSWORD"`
	ProfileDBURL   string        `mapstructure:"PROFILE_DB_URL"`
	SessionTTL     time.Duration `mapstructure:"SESSION_TTL"`
	ViewTTL        time.Duration `mapstructure:"VIEW_TTL"`
	RequestTimeout time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	LogLevel       string        `mapstructure:"LOG_LEVEL"`
	CookieSecure   bool          `mapstructure:"COOKIE_SECURE"`
}

// Load reads an optional .env file, then the environment. The environment wins.
func Load() Config {
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()
	v.SetDefault("SERVER_PORT", ":8080")
	v.SetDefault("API_BASE_URL", "http://localhost:8000")
	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("PROFILE_DB_URL", "")
	v.SetDefault("SESSION_TTL", 7*24*time.Hour)
	v.SetDefault("VIEW_TTL", 30*time.Minute)
	v.SetDefault("REQUEST_TIMEOUT", 10*time.Second)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("COOKIE_SECURE", false)

	var cfg Config
	_ = v.Unmarshal(&cfg)
	return cfg
}
