package config

import (
	"errors"
	"log/slog"

	"github.com/spf13/viper"
)

type Config struct {
	Server   Server
	Database Database
	OpenAI   OpenAI
	Intake   Intake
	Logger   Logger
}

type Server struct {
	Port        string
	Environment string
}

type Database struct {
	DSN           string
	NotifyChannel string
}

type OpenAI struct {
	Enabled bool
	APIKey  string
	Model   string
}

type Intake struct {
	DefaultLanguage  string
	HistoryLimit     int
	UseFallbackReply bool
}

type Logger struct {
	Level string
}

func LoadConfig(filename string) (*viper.Viper, error) {
	v := viper.New()

	v.SetConfigName(filename)
	v.SetConfigType("yaml")
	v.AddConfigPath("config")
	v.AddConfigPath(".")

	v.SetDefault("server.port", "8080")
	v.SetDefault("server.environment", "development")
	v.SetDefault("database.notifychannel", "inbound_messages")
	v.SetDefault("openai.model", "gpt-4o-mini")
	v.SetDefault("intake.defaultlanguage", "en")
	v.SetDefault("intake.historylimit", 100)
	v.SetDefault("intake.usefallbackreply", true)
	v.SetDefault("logger.level", "info")

	// DATABASE_DSN and OPENAI_API_KEY override the file in deployment.
	_ = v.BindEnv("database.dsn", "DATABASE_DSN")
	_ = v.BindEnv("openai.apikey", "OPENAI_API_KEY")
	_ = v.BindEnv("server.port", "PORT")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil, errors.New("config file not found")
		}
		return nil, err
	}
	return v, nil
}

func ParseConfig(v *viper.Viper) (*Config, error) {
	var c Config
	err := v.Unmarshal(&c)
	if err != nil {
		slog.Error("Unable to unmarshal config", "err", err)
		return nil, err
	}
	return &c, nil
}
