/**
 * @description
 * This package handles configuration for every pipeline service. It uses the
 * Viper library to read configuration from environment variables (with an
 * optional .env file), providing one place where settings, defaults and env
 * aliases are declared.
 *
 * @dependencies
 * - github.com/spf13/viper: A popular library for Go application configuration.
 */

package config

import (
	"errors"
	"log"
	"strings"

	"github.com/spf13/viper"
)

// Config holds the configuration variables shared by the pipeline services.
// Each binary reads the subset it needs; ValidateFor enforces the subset that
// must be present for that binary to start.
type Config struct {
	ServerPort string `mapstructure:"SERVER_PORT"`

	DatabaseURL string `mapstructure:"DATABASE_URL"`
	RabbitMQURL string `mapstructure:"RABBITMQ_URL"`

	InternalAPIKey string `mapstructure:"INTERNAL_API_KEY"`

	RedisURL                 string `mapstructure:"REDIS_URL"`
	RedisRateLimitPrefix     string `mapstructure:"REDIS_RATE_LIMIT_PREFIX"`
	IntakeRateLimitPerMinute int    `mapstructure:"INTAKE_RATE_LIMIT_PER_MINUTE"`

	DistributorName     string `mapstructure:"DISTRIBUTOR_NAME"`
	DefaultAssetManager string `mapstructure:"DEFAULT_ASSET_MANAGER"`

	AnchorGatewayURL string `mapstructure:"ANCHOR_GATEWAY_URL"`
	AnchorGatewayKey string `mapstructure:"ANCHOR_GATEWAY_KEY"`

	ParticipantName  string `mapstructure:"PARTICIPANT_NAME"`
	ParticipantColor string `mapstructure:"PARTICIPANT_COLOR"`
	ParticipantRole  string `mapstructure:"PARTICIPANT_ROLE"`

	// ProjectionSource selects the live-update feed for the observer:
	// "ledger" (store change feed) or "bus" (trade.settled subscription).
	ProjectionSource string `mapstructure:"PROJECTION_SOURCE"`
	SnapshotLimit    int    `mapstructure:"SNAPSHOT_LIMIT"`
}

// LoadConfig reads configuration from environment variables, with an optional
// .env file in the given path.
func LoadConfig(path string) (config Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("REDIS_RATE_LIMIT_PREFIX", "tradeseal:rate_limit")
	viper.SetDefault("INTAKE_RATE_LIMIT_PER_MINUTE", 0)
	viper.SetDefault("DISTRIBUTOR_NAME", "Hargreaves Lansdown")
	viper.SetDefault("DEFAULT_ASSET_MANAGER", "Schroders")
	viper.SetDefault("PARTICIPANT_NAME", "Observer")
	viper.SetDefault("PARTICIPANT_COLOR", "#374151")
	viper.SetDefault("PARTICIPANT_ROLE", "Observer")
	viper.SetDefault("PROJECTION_SOURCE", "ledger")
	viper.SetDefault("SNAPSHOT_LIMIT", 200)

	// Bind environment variables explicitly so they appear in Unmarshal.
	_ = viper.BindEnv("SERVER_PORT", "SERVER_PORT", "PORT")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("INTERNAL_API_KEY", "INTERNAL_API_KEY", "INTAKE_INTERNAL_API_KEY")
	_ = viper.BindEnv("REDIS_URL")
	_ = viper.BindEnv("REDIS_RATE_LIMIT_PREFIX")
	_ = viper.BindEnv("INTAKE_RATE_LIMIT_PER_MINUTE")
	_ = viper.BindEnv("DISTRIBUTOR_NAME")
	_ = viper.BindEnv("DEFAULT_ASSET_MANAGER")
	_ = viper.BindEnv("ANCHOR_GATEWAY_URL")
	_ = viper.BindEnv("ANCHOR_GATEWAY_KEY")
	_ = viper.BindEnv("PARTICIPANT_NAME")
	_ = viper.BindEnv("PARTICIPANT_COLOR")
	_ = viper.BindEnv("PARTICIPANT_ROLE")
	_ = viper.BindEnv("PROJECTION_SOURCE")
	_ = viper.BindEnv("SNAPSHOT_LIMIT")

	if err = viper.ReadInConfig(); err != nil {
		// A missing .env file is fine; anything else is worth surfacing.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Printf("level=warn component=config msg=\"failed to read config file; using environment values\" err=%v", err)
		}
		err = nil
	}

	err = viper.Unmarshal(&config)
	return config, err
}

// ValidateFor checks the connection settings a service cannot run without.
// A missing required target is a fatal configuration failure: the service
// refuses to start rather than limping along.
func (c Config) ValidateFor(needsDatabase, needsBus bool) error {
	if needsDatabase && strings.TrimSpace(c.DatabaseURL) == "" {
		return errors.New("DATABASE_URL must be configured")
	}
	if needsBus && strings.TrimSpace(c.RabbitMQURL) == "" {
		return errors.New("RABBITMQ_URL must be configured")
	}
	return nil
}
