package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mulgadc/usermgr/usermgr/awserrors"
	"github.com/mulgadc/usermgr/usermgr/manager"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv blanks every variable LoadConfig reads so the host environment
// cannot leak into assertions.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, names := range envBindings {
		for _, name := range names {
			t.Setenv(name, "")
		}
	}
}

func TestLoadConfig_ValidTOMLFile(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "usermgr.toml")

	toml := `
provider = "AWS_COGNITO"
log_level = "debug"

[aws]
region = "ap-northeast-1"

[cognito]
user_pool_id = "ap-northeast-1_abc123"
client_id = "client123"
client_secret = "s3cr3t"

[remote]
transport = "nats"

[remote.nats]
host = "nats://10.0.0.1:4222"
subject = "idp.invoke"
timeout = "5s"

[activity]
table_name = "user-activity"
`
	require.NoError(t, os.WriteFile(path, []byte(toml), 0600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, "AWS_COGNITO", cfg.Provider)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "ap-northeast-1", cfg.AWS.Region)
	assert.Equal(t, "ap-northeast-1_abc123", cfg.Cognito.UserPoolID)
	assert.Equal(t, "client123", cfg.Cognito.ClientID)
	assert.Equal(t, "s3cr3t", cfg.Cognito.ClientSecret)
	assert.Equal(t, TransportNATS, cfg.Remote.Transport)
	assert.Equal(t, "nats://10.0.0.1:4222", cfg.Remote.NATS.Host)
	assert.Equal(t, "idp.invoke", cfg.Remote.NATS.Subject)
	assert.Equal(t, 5*time.Second, cfg.Remote.NATS.Timeout)
	assert.Equal(t, "usermgr-workers", cfg.Remote.NATS.QueueGroup)
	assert.Equal(t, "user-activity", cfg.Activity.TableName)
	assert.Equal(t, "Asia/Tokyo", cfg.Activity.TimeZone)
}

func TestLoadConfig_EmptyConfigPath(t *testing.T) {
	clearEnv(t)
	cfg, err := LoadConfig("")
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, TransportLambda, cfg.Remote.Transport)
	assert.Equal(t, "usermgr", cfg.Remote.FunctionName)
	assert.Equal(t, 30*time.Second, cfg.Remote.NATS.Timeout)
	assert.Equal(t, "0.0.0.0:8480", cfg.Gateway.Host)
	assert.Empty(t, cfg.Cognito.UserPoolID)
}

func TestLoadConfig_NonexistentFile(t *testing.T) {
	clearEnv(t)
	cfg, err := LoadConfig("/tmp/nonexistent-usermgr-config-test-12345.toml")
	// Not an error - falls through to defaults
	require.NoError(t, err)
	require.NotNil(t, cfg)
}

func TestLoadConfig_MalformedTOML(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.toml")
	require.NoError(t, os.WriteFile(path, []byte("this is not valid toml {{{"), 0600))

	cfg, err := LoadConfig(path)
	assert.Error(t, err)
	assert.Nil(t, cfg)
}

func TestLoadConfig_DeploymentEnvironment(t *testing.T) {
	clearEnv(t)
	t.Setenv("AWS_COGNITO", "1")
	t.Setenv("USERPOOL_ID", "us-east-1_pool")
	t.Setenv("CLIENT_ID", "cid")
	t.Setenv("SECRET", "csecret")
	t.Setenv("AWS_REGION", "us-east-1")
	t.Setenv("LAMBDA_FUNCTION_NAME", "usermgr-prod")
	t.Setenv("DYNAMODB_NAME", "activity")

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "us-east-1_pool", cfg.Cognito.UserPoolID)
	assert.Equal(t, "cid", cfg.Cognito.ClientID)
	assert.Equal(t, "csecret", cfg.Cognito.ClientSecret)
	assert.Equal(t, "us-east-1", cfg.AWS.Region)
	assert.Equal(t, "usermgr-prod", cfg.Remote.FunctionName)
	assert.Equal(t, "activity", cfg.Activity.TableName)

	p, err := cfg.ActiveProvider()
	require.NoError(t, err)
	assert.Equal(t, manager.ProviderCognito, p)
	assert.NoError(t, cfg.Validate(p))
}

func TestLoadConfig_PrefixedEnvironment(t *testing.T) {
	clearEnv(t)
	t.Setenv("USERMGR_GATEWAY_HOST", "127.0.0.1:9000")
	t.Setenv("USERMGR_REMOTE_TRANSPORT", "nats")

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9000", cfg.Gateway.Host)
	assert.Equal(t, TransportNATS, cfg.Remote.Transport)
}

func TestActiveProvider(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		want    manager.Provider
		wantErr bool
	}{
		{"explicit wins", Config{Provider: "AWS_LAMBDA", AWSCognito: "1"}, manager.ProviderLambda, false},
		{"legacy alias", Config{Provider: "cognito"}, manager.ProviderCognito, false},
		{"cognito flag", Config{AWSCognito: "true"}, manager.ProviderCognito, false},
		{"cognito before lambda", Config{AWSCognito: "yes", AWSLambda: "yes"}, manager.ProviderCognito, false},
		{"lambda flag", Config{AWSLambda: "1"}, manager.ProviderLambda, false},
		{"false flag ignored", Config{AWSCognito: "false", AWSLambda: "1"}, manager.ProviderLambda, false},
		{"nothing set", Config{}, "", true},
		{"unknown explicit", Config{Provider: "AZURE_AD"}, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.cfg.ActiveProvider()
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, awserrors.ErrConfiguration))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := Default()
		cfg.AWS.Region = "us-east-1"
		cfg.Cognito = CognitoConfig{UserPoolID: "pool", ClientID: "cid", ClientSecret: "secret"}
		return cfg
	}

	require.NoError(t, valid().Validate(manager.ProviderCognito))
	require.NoError(t, valid().Validate(manager.ProviderLambda))

	tests := []struct {
		name   string
		mutate func(*Config)
		p      manager.Provider
	}{
		{"cognito no region", func(c *Config) { c.AWS.Region = "" }, manager.ProviderCognito},
		{"cognito no pool", func(c *Config) { c.Cognito.UserPoolID = "" }, manager.ProviderCognito},
		{"cognito no client", func(c *Config) { c.Cognito.ClientID = "" }, manager.ProviderCognito},
		{"cognito no secret", func(c *Config) { c.Cognito.ClientSecret = "" }, manager.ProviderCognito},
		{"lambda no function", func(c *Config) { c.Remote.FunctionName = "" }, manager.ProviderLambda},
		{"nats no host", func(c *Config) { c.Remote.Transport = TransportNATS; c.Remote.NATS.Host = "" }, manager.ProviderLambda},
		{"unknown transport", func(c *Config) { c.Remote.Transport = "sqs" }, manager.ProviderLambda},
		{"unknown provider", func(c *Config) {}, manager.Provider("AWS_IAM")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate(tt.p)
			require.Error(t, err)
			assert.True(t, errors.Is(err, awserrors.ErrConfiguration))
		})
	}
}

func TestJWKSURL(t *testing.T) {
	cfg := Default()
	cfg.AWS.Region = "ap-northeast-1"
	cfg.Cognito.UserPoolID = "ap-northeast-1_XYZ"
	assert.Equal(t, "https://cognito-idp.ap-northeast-1.amazonaws.com/ap-northeast-1_XYZ/.well-known/jwks.json", cfg.JWKSURL())

	cfg.JWKS.URL = "http://localhost:9229/jwks.json"
	assert.Equal(t, "http://localhost:9229/jwks.json", cfg.JWKSURL())
}
