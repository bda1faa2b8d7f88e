package config

import (
	"log"

	"github.com/spf13/viper"

	"github.com/scopedrows/rowscope/postgres"
)

// LoadDBConfig reads config.yaml from the given path, with DB_* env vars
// overriding file values. Missing files are fine; defaults apply.
func LoadDBConfig(configPath string) (postgres.Config, error) {
	cfg := postgres.DefaultConfig()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.AutomaticEnv()
	v.SetEnvPrefix("DB")

	v.BindEnv("database.host")
	v.BindEnv("database.port")
	v.BindEnv("database.user")
	v.BindEnv("database.password")
	v.BindEnv("database.dbname")
	v.BindEnv("database.sslmode")

	if err := v.ReadInConfig(); err != nil {
		log.Println("[CONFIG] no config.yaml found, using defaults and env vars")
	} else {
		log.Println("[CONFIG] loaded config.yaml")
	}

	if v.IsSet("database.host") {
		cfg.Host = v.GetString("database.host")
	}
	if v.IsSet("database.port") {
		cfg.Port = v.GetInt("database.port")
	}
	if v.IsSet("database.user") {
		cfg.User = v.GetString("database.user")
	}
	if v.IsSet("database.password") {
		cfg.Password = v.GetString("database.password")
	}
	if v.IsSet("database.dbname") {
		cfg.DBName = v.GetString("database.dbname")
	}
	if v.IsSet("database.sslmode") {
		cfg.SSLMode = v.GetString("database.sslmode")
	}

	return cfg, nil
}
