package config

import (
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	DatabaseURL      string `env:"DATABASE_URL"`
	MigrationsFolder string `env:"MIGRATIONS_FOLDER" envDefault:"migrations"`
	LogLevel         string `env:"LOG_LEVEL" envDefault:"INFO"`
	RetentionDays    int    `env:"RETENTION_DAYS" envDefault:"0"`

	OTE     OTEConfig
	Weather WeatherConfig
	MQTT    MQTTConfig
	Server  ServerConfig
}

type OTEConfig struct {
	BaseURL     string        `env:"OTE_BASE_URL" envDefault:"https://www.ote-cr.cz"`
	RateURL     string        `env:"CNB_RATE_URL" envDefault:"https://www.cnb.cz/en/financial-markets/foreign-exchange-market/central-bank-exchange-rate-fixing/central-bank-exchange-rate-fixing/daily.txt"`
	HTTPTimeout time.Duration `env:"HTTP_TIMEOUT" envDefault:"30s"`
}

type WeatherConfig struct {
	Enabled     bool          `env:"WEATHER_ENABLED" envDefault:"true"`
	ForecastURL string        `env:"WEATHER_FORECAST_URL" envDefault:"https://api.open-meteo.com/v1/forecast"`
	ArchiveURL  string        `env:"WEATHER_ARCHIVE_URL" envDefault:"https://archive-api.open-meteo.com/v1/archive"`
	Latitude    float64       `env:"WEATHER_LATITUDE" envDefault:"50.08"`
	Longitude   float64       `env:"WEATHER_LONGITUDE" envDefault:"14.43"`
	Timeout     time.Duration `env:"WEATHER_TIMEOUT" envDefault:"10s"`
}

type MQTTConfig struct {
	Host     string `env:"MQTT_HOST"`
	Username string `env:"MQTT_USER"`
	Password string `env:"MQTT_PASS"`
}

type ServerConfig struct {
	Addr         string        `env:"SERVER_ADDR" envDefault:"0.0.0.0:8501"`
	ReadTimeout  time.Duration `env:"SERVER_READ_TIMEOUT" envDefault:"15s"`
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" envDefault:"60s"`
	APITokenHash string        `env:"API_TOKEN_HASH"`
}

// Load reads the configuration from the environment.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
