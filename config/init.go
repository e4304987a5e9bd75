package config

import (
	"log"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"

	cron_config "github.com/customeros/mailpulse/internal/cron/config"
	"github.com/customeros/mailpulse/internal/logger"
	"github.com/customeros/mailpulse/internal/tracing"
)

type Config struct {
	AppConfig        *AppConfig
	Logger           *logger.Config
	Tracing          *tracing.JaegerConfig
	DatabaseConfig   *DatabaseConfig
	ImapConfig       *ImapConfig
	IngestionConfig  *IngestionConfig
	AnalysisConfig   *AnalysisConfig
	ClassifierConfig *ClassifierConfig
	SmtpConfig       *SmtpConfig
	CronConfig       *cron_config.Config
}

func newConfig() *Config {
	return &Config{
		AppConfig:        &AppConfig{},
		Logger:           &logger.Config{},
		Tracing:          &tracing.JaegerConfig{},
		DatabaseConfig:   &DatabaseConfig{},
		ImapConfig:       &ImapConfig{},
		IngestionConfig:  &IngestionConfig{},
		AnalysisConfig:   &AnalysisConfig{},
		ClassifierConfig: &ClassifierConfig{},
		SmtpConfig:       &SmtpConfig{},
		CronConfig:       &cron_config.Config{},
	}
}

func InitConfig() (*Config, error) {
	err := godotenv.Load()
	if err != nil {
		log.Print("Unable to load .env file")
	}

	config, err := parseConfig()
	if err != nil {
		log.Fatalf("Error loading mailpulse config: %v", err)
	}

	return config, nil
}

func parseConfig() (*Config, error) {
	config := newConfig()
	if err := env.Parse(config); err != nil {
		return nil, err
	}
	return config, nil
}
