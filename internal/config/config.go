package config

import (
	"strings"

	"github.com/spf13/viper"
)

// Config holds all bootstrap configuration for the application.
// Runtime trading parameters (thresholds, mode, sizing) live in the bot_config
// table and are managed by the settings package, not here.
type Config struct {
	Binance  Binance  `mapstructure:"binance"`
	Advisor  Advisor  `mapstructure:"advisor"`
	Trading  Trading  `mapstructure:"trading"`
	Logger   Logger   `mapstructure:"logger"`
	Server   Server   `mapstructure:"server"`
	Database Database `mapstructure:"database"`
}

// Binance holds the configuration for the Binance API.
type Binance struct {
	ApiKey         string  `mapstructure:"apiKey"`
	SecretKey      string  `mapstructure:"secretKey"`
	Testnet        bool    `mapstructure:"testnet"`
	RateLimit      float64 `mapstructure:"rate_limit"`
	RateLimitBurst int     `mapstructure:"rate_limit_burst"`
}

// Advisor holds the configuration for the AI recommendation endpoint.
type Advisor struct {
	BaseURL        string `mapstructure:"base_url"`
	ApiKey         string `mapstructure:"apiKey"`
	Model          string `mapstructure:"model"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// Server holds the configuration for the dashboard web server.
type Server struct {
	Port int `mapstructure:"port"`
}

// Database holds the configuration for the database.
type Database struct {
	DSN string `mapstructure:"dsn"`
}

// Trading holds the bootstrap defaults for the trading process.
type Trading struct {
	QuoteAsset         string  `mapstructure:"quote_asset"`
	InitialSimBalance  float64 `mapstructure:"initial_sim_balance"`
	InitialCapital     float64 `mapstructure:"initial_capital"`
	WatchdogTimeoutSec int     `mapstructure:"watchdog_timeout_seconds"`
}

// Logger holds the configuration for the logger.
type Logger struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// LoadConfig reads configuration from file or environment variables.
func LoadConfig(path string) (config Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName("config")
	viper.SetConfigType("yml")

	// Allow environment variables to override config file
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set default values
	viper.SetDefault("binance.rate_limit", 20)      // requests per second
	viper.SetDefault("binance.rate_limit_burst", 5) // burst size
	viper.SetDefault("advisor.timeout_seconds", 30)
	viper.SetDefault("trading.quote_asset", "USDT")
	viper.SetDefault("trading.initial_sim_balance", 1000.0)
	viper.SetDefault("trading.initial_capital", 1000.0)
	viper.SetDefault("trading.watchdog_timeout_seconds", 300)

	err = viper.ReadInConfig()
	if err != nil {
		return
	}

	err = viper.Unmarshal(&config)
	return
}
