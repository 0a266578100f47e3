package config

import (
	"errors"
	"os"

	"github.com/spf13/viper"
)

type Config struct {
	App struct {
		Env string
	} `mapstructure:"app"`

	HTTP struct {
		Addr           string
		AllowedOrigins string `mapstructure:"allowed_origins"`
	} `mapstructure:"http"`

	Postgres struct {
		DSN string
	} `mapstructure:"postgres"`

	Migrations struct {
		Dir string
	} `mapstructure:"migrations"`

	Metrics struct {
		Enabled bool
	} `mapstructure:"metrics"`
}

// Load reads the YAML file at path and overlays WLE_* environment variables.
// Missing file is not an error when the environment carries everything needed.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("WLE")
	v.AutomaticEnv()

	v.SetDefault("app.env", "prod")
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("migrations.dir", "migrations")
	v.SetDefault("metrics.enabled", true)

	var c Config
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return c, err
		}
	}
	if err := v.Unmarshal(&c); err != nil {
		return c, err
	}
	return c, nil
}
