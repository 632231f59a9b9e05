package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/mulgadc/usermgr/usermgr/awserrors"
	"github.com/mulgadc/usermgr/usermgr/manager"
	"github.com/spf13/viper"
)

// Remote transports.
const (
	TransportLambda = "lambda"
	TransportNATS   = "nats"
)

// Config holds all configuration for the application
type Config struct {
	// Explicit provider token (AWS_COGNITO or AWS_LAMBDA). When empty the
	// AWS_COGNITO / AWS_LAMBDA environment flags decide.
	Provider   string `mapstructure:"provider" toml:"provider"`
	AWSCognito string `mapstructure:"aws_cognito" toml:"aws_cognito,omitempty"`
	AWSLambda  string `mapstructure:"aws_lambda" toml:"aws_lambda,omitempty"`

	LogLevel  string `mapstructure:"log_level" toml:"log_level"`
	LogFormat string `mapstructure:"log_format" toml:"log_format"`

	AWS      AWSConfig      `mapstructure:"aws" toml:"aws"`
	Cognito  CognitoConfig  `mapstructure:"cognito" toml:"cognito"`
	Remote   RemoteConfig   `mapstructure:"remote" toml:"remote"`
	Activity ActivityConfig `mapstructure:"activity" toml:"activity"`
	JWKS     JWKSConfig     `mapstructure:"jwks" toml:"jwks"`
	Gateway  GatewayConfig  `mapstructure:"gateway" toml:"gateway"`
}

// AWSConfig holds the settings shared by every AWS client.
type AWSConfig struct {
	Region    string `mapstructure:"region" toml:"region"`
	Endpoint  string `mapstructure:"endpoint" toml:"endpoint,omitempty"` // local emulators only
	AccessKey string `mapstructure:"access_key" toml:"access_key,omitempty"`
	SecretKey string `mapstructure:"secret_key" toml:"secret_key,omitempty"`
}

// CognitoConfig holds the user pool connection parameters.
type CognitoConfig struct {
	UserPoolID   string `mapstructure:"user_pool_id" toml:"user_pool_id"`
	ClientID     string `mapstructure:"client_id" toml:"client_id"`
	ClientSecret string `mapstructure:"client_secret" toml:"client_secret"`
}

// RemoteConfig selects how the remote-invocation backend reaches its executor.
type RemoteConfig struct {
	Transport    string     `mapstructure:"transport" toml:"transport"`
	FunctionName string     `mapstructure:"function_name" toml:"function_name"`
	NATS         NATSConfig `mapstructure:"nats" toml:"nats"`
}

// NATSConfig holds the NATS transport configuration
type NATSConfig struct {
	Host       string        `mapstructure:"host" toml:"host"`
	Token      string        `mapstructure:"token" toml:"token,omitempty"`
	Subject    string        `mapstructure:"subject" toml:"subject"`
	QueueGroup string        `mapstructure:"queue_group" toml:"queue_group"`
	Timeout    time.Duration `mapstructure:"timeout" toml:"timeout"`
}

type ActivityConfig struct {
	TableName string `mapstructure:"table_name" toml:"table_name"`
	TimeZone  string `mapstructure:"time_zone" toml:"time_zone"`
}

type JWKSConfig struct {
	URL string `mapstructure:"url" toml:"url,omitempty"`
}

// GatewayConfig holds the HTTP admin API configuration
type GatewayConfig struct {
	Host  string `mapstructure:"host" toml:"host"`
	Token string `mapstructure:"token" toml:"token,omitempty"`
	Debug bool   `mapstructure:"debug" toml:"debug"`
}

// Defaults applied before the config file and environment are read.
var defaults = map[string]any{
	"log_level":               "info",
	"log_format":              "json",
	"aws.region":              "",
	"aws.endpoint":            "",
	"aws.access_key":          "",
	"aws.secret_key":          "",
	"cognito.user_pool_id":    "",
	"cognito.client_id":       "",
	"cognito.client_secret":   "",
	"remote.transport":        TransportLambda,
	"remote.function_name":    "usermgr",
	"remote.nats.host":        "nats://127.0.0.1:4222",
	"remote.nats.token":       "",
	"remote.nats.subject":     "usermgr.invoke",
	"remote.nats.queue_group": "usermgr-workers",
	"remote.nats.timeout":     "30s",
	"activity.table_name":     "",
	"activity.time_zone":      "Asia/Tokyo",
	"jwks.url":                "",
	"gateway.host":            "0.0.0.0:8480",
	"gateway.token":           "",
	"gateway.debug":           false,
	"provider":                "",
	"aws_cognito":             "",
	"aws_lambda":              "",
}

// envBindings keeps the environment contract of the deployed functions.
var envBindings = map[string][]string{
	"provider":              {"USERMGR_PROVIDER"},
	"aws_cognito":           {"AWS_COGNITO"},
	"aws_lambda":            {"AWS_LAMBDA"},
	"aws.region":            {"USERMGR_AWS_REGION", "AWS_REGION", "REGION"},
	"cognito.user_pool_id":  {"USERMGR_COGNITO_USER_POOL_ID", "USERPOOL_ID", "USER_POOL_ID"},
	"cognito.client_id":     {"USERMGR_COGNITO_CLIENT_ID", "CLIENT_ID"},
	"cognito.client_secret": {"USERMGR_COGNITO_CLIENT_SECRET", "SECRET", "CLIENT_SECRET"},
	"remote.function_name":  {"USERMGR_REMOTE_FUNCTION_NAME", "LAMBDA_FUNCTION_NAME"},
	"activity.table_name":   {"USERMGR_ACTIVITY_TABLE_NAME", "DYNAMODB_NAME"},
}

// LoadConfig loads the configuration from file and environment variables.
// A missing file is not an error; environment and defaults still apply.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	v.SetEnvPrefix("USERMGR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	for key, names := range envBindings {
		args := append([]string{key}, names...)
		if err := v.BindEnv(args...); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", key, err)
		}
	}

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			v.SetConfigFile(configPath)
			v.SetConfigType("toml")

			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("error reading config file: %w", err)
			}
			slog.Debug("Using config file", "path", v.ConfigFileUsed())
		} else {
			slog.Warn("Config file not found, using environment variables and defaults", "path", configPath)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	return &cfg, nil
}

// Default returns the configuration produced by the defaults alone.
func Default() *Config {
	return &Config{
		LogLevel:  "info",
		LogFormat: "json",
		Remote: RemoteConfig{
			Transport:    TransportLambda,
			FunctionName: "usermgr",
			NATS: NATSConfig{
				Host:       "nats://127.0.0.1:4222",
				Subject:    "usermgr.invoke",
				QueueGroup: "usermgr-workers",
				Timeout:    30 * time.Second,
			},
		},
		Activity: ActivityConfig{TimeZone: "Asia/Tokyo"},
		Gateway:  GatewayConfig{Host: "0.0.0.0:8480"},
	}
}

// flagSet reports whether a provider flag is on. Explicit negative values
// such as "false" or "0" count as unset.
func flagSet(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "", "0", "false", "no", "off":
		return false
	}
	return true
}

// ActiveProvider resolves the provider from the explicit provider key, then
// the AWS_COGNITO flag, then the AWS_LAMBDA flag.
func (c *Config) ActiveProvider() (manager.Provider, error) {
	if c.Provider != "" {
		return manager.ParseProvider(c.Provider)
	}
	if flagSet(c.AWSCognito) {
		return manager.ProviderCognito, nil
	}
	if flagSet(c.AWSLambda) {
		return manager.ProviderLambda, nil
	}
	return "", awserrors.NewError(awserrors.ErrConfiguration, "ActiveProvider", awserrors.ErrorUnknownProvider,
		"no provider configuration found, set either AWS_COGNITO or AWS_LAMBDA")
}

// Validate checks the fields the given provider needs.
func (c *Config) Validate(p manager.Provider) error {
	const op = "config.Validate"

	switch p {
	case manager.ProviderCognito:
		if c.AWS.Region == "" {
			return awserrors.Configuration(op, "aws region is required")
		}
		if c.Cognito.UserPoolID == "" {
			return awserrors.Configuration(op, "cognito user pool id is required")
		}
		if c.Cognito.ClientID == "" {
			return awserrors.Configuration(op, "cognito client id is required")
		}
		if c.Cognito.ClientSecret == "" {
			return awserrors.Configuration(op, "cognito client secret is required")
		}
	case manager.ProviderLambda:
		switch c.Remote.Transport {
		case TransportLambda, "":
			if c.AWS.Region == "" {
				return awserrors.Configuration(op, "aws region is required")
			}
			if c.Remote.FunctionName == "" {
				return awserrors.Configuration(op, "remote function name is required")
			}
		case TransportNATS:
			if c.Remote.NATS.Host == "" {
				return awserrors.Configuration(op, "remote nats host is required")
			}
			if c.Remote.NATS.Subject == "" {
				return awserrors.Configuration(op, "remote nats subject is required")
			}
		default:
			return awserrors.Configuration(op, "unknown remote transport: %s", c.Remote.Transport)
		}
	default:
		_, err := manager.ParseProvider(string(p))
		return err
	}
	return nil
}

// JWKSURL returns the configured key-set URL or the well-known URL of the
// user pool.
func (c *Config) JWKSURL() string {
	if c.JWKS.URL != "" {
		return c.JWKS.URL
	}
	return fmt.Sprintf("https://cognito-idp.%s.amazonaws.com/%s/.well-known/jwks.json", c.AWS.Region, c.Cognito.UserPoolID)
}
