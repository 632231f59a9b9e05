// Package admin bootstraps a usermgr installation: the TOML configuration and
// the AWS CLI profile used against the same user pool.
package admin

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/mulgadc/usermgr/usermgr/config"
	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/ini.v1"
)

var ErrConfigExists = errors.New("config file already exists")

type InitOptions struct {
	ConfigPath    string // usermgr.toml destination
	AWSConfigPath string // AWS CLI config file, skipped when empty
	Profile       string // AWS CLI profile name
	Force         bool   // overwrite an existing usermgr.toml
	Config        *config.Config
}

// Init writes the configuration file and, when requested, the AWS CLI
// profile for the configured region.
func Init(opts InitOptions) error {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}

	if err := WriteConfig(opts.ConfigPath, cfg, opts.Force); err != nil {
		return err
	}
	fmt.Printf("✅ Created: %s\n", opts.ConfigPath)

	if opts.AWSConfigPath == "" {
		return nil
	}

	values := map[string]string{"output": "json"}
	if cfg.AWS.Region != "" {
		values["region"] = cfg.AWS.Region
	}
	if err := UpdateAWSINIFile(opts.AWSConfigPath, ProfileSection(opts.Profile), values); err != nil {
		return err
	}
	fmt.Printf("✅ Updated: %s [%s]\n", opts.AWSConfigPath, ProfileSection(opts.Profile))
	return nil
}

// WriteConfig marshals cfg as TOML with owner-only permissions.
func WriteConfig(path string, cfg *config.Config, force bool) error {
	if path == "" {
		return errors.New("config path is required")
	}
	if FileExists(path) && !force {
		return fmt.Errorf("%w: %s", ErrConfigExists, path)
	}

	data, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	slog.Debug("Wrote config file", "path", path)
	return nil
}

// ProfileSection returns the AWS CLI config section for profile.
func ProfileSection(profile string) string {
	if profile == "" || profile == "default" {
		return "default"
	}
	return "profile " + profile
}

// UpdateAWSINIFile sets values in section, creating the file and the section
// as needed. Other sections and keys are preserved.
func UpdateAWSINIFile(path, section string, values map[string]string) error {
	var cfg *ini.File
	var err error

	// Load existing file or create new one
	if FileExists(path) {
		cfg, err = ini.Load(path)
		if err != nil {
			return fmt.Errorf("failed to load INI file: %w", err)
		}
	} else {
		cfg = ini.Empty()
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return fmt.Errorf("failed to create AWS config directory: %w", err)
		}
	}

	sec, err := cfg.NewSection(section)
	if err != nil {
		return fmt.Errorf("failed to get section: %w", err)
	}

	for key, value := range values {
		sec.Key(key).SetValue(value)
	}

	return cfg.SaveTo(path)
}

func FileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
