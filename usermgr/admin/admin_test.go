package admin

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/mulgadc/usermgr/usermgr/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/ini.v1"
)

func TestWriteConfig_LoadsBack(t *testing.T) {
	for _, name := range []string{"AWS_REGION", "REGION", "USERPOOL_ID", "USER_POOL_ID", "CLIENT_ID", "SECRET", "CLIENT_SECRET", "AWS_COGNITO", "AWS_LAMBDA"} {
		t.Setenv(name, "")
	}

	cfg := config.Default()
	cfg.Provider = "AWS_COGNITO"
	cfg.AWS.Region = "ap-northeast-1"
	cfg.Cognito = config.CognitoConfig{UserPoolID: "ap-northeast-1_abc", ClientID: "client", ClientSecret: "secret"}

	path := filepath.Join(t.TempDir(), "usermgr.toml")
	require.NoError(t, WriteConfig(path, cfg, false))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	loaded, err := config.LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.Provider, loaded.Provider)
	assert.Equal(t, cfg.AWS.Region, loaded.AWS.Region)
	assert.Equal(t, cfg.Cognito, loaded.Cognito)
	assert.Equal(t, cfg.Remote.NATS.Timeout, loaded.Remote.NATS.Timeout)
	assert.Equal(t, cfg.Activity.TimeZone, loaded.Activity.TimeZone)
}

func TestWriteConfig_NoOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "usermgr.toml")
	require.NoError(t, os.WriteFile(path, []byte("provider = \"AWS_LAMBDA\"\n"), 0o600))

	err := WriteConfig(path, config.Default(), false)
	assert.ErrorIs(t, err, ErrConfigExists)

	require.NoError(t, WriteConfig(path, config.Default(), true))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "AWS_LAMBDA")
}

func TestWriteConfig_EmptyPath(t *testing.T) {
	assert.Error(t, WriteConfig("", config.Default(), false))
}

func TestProfileSection(t *testing.T) {
	assert.Equal(t, "default", ProfileSection(""))
	assert.Equal(t, "default", ProfileSection("default"))
	assert.Equal(t, "profile usermgr", ProfileSection("usermgr"))
}

func TestUpdateAWSINIFile_PreservesOtherSections(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".aws", "config")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o700))
	require.NoError(t, os.WriteFile(path, []byte("[default]\nregion = us-east-1\n\n[profile usermgr]\noutput = text\n"), 0o600))

	require.NoError(t, UpdateAWSINIFile(path, "profile usermgr", map[string]string{"region": "ap-northeast-1"}))

	f, err := ini.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "us-east-1", f.Section("default").Key("region").String())
	assert.Equal(t, "ap-northeast-1", f.Section("profile usermgr").Key("region").String())
	assert.Equal(t, "text", f.Section("profile usermgr").Key("output").String())
}

func TestInit(t *testing.T) {
	dir := t.TempDir()

	cfg := config.Default()
	cfg.AWS.Region = "ap-northeast-1"

	opts := InitOptions{
		ConfigPath:    filepath.Join(dir, "etc", "usermgr.toml"),
		AWSConfigPath: filepath.Join(dir, ".aws", "config"),
		Profile:       "usermgr",
		Config:        cfg,
	}
	require.NoError(t, Init(opts))

	assert.True(t, FileExists(opts.ConfigPath))

	f, err := ini.Load(opts.AWSConfigPath)
	require.NoError(t, err)
	assert.Equal(t, "ap-northeast-1", f.Section("profile usermgr").Key("region").String())
	assert.Equal(t, "json", f.Section("profile usermgr").Key("output").String())

	// A second run without Force keeps the existing file.
	assert.ErrorIs(t, Init(opts), ErrConfigExists)
}
