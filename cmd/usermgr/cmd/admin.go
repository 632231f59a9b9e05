/*
Copyright © 2025 Mulga Defense Corporation

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mulgadc/usermgr/usermgr/admin"
	"github.com/mulgadc/usermgr/usermgr/config"
	"github.com/mulgadc/usermgr/usermgr/manager"
	"github.com/spf13/cobra"
)

var adminCmd = &cobra.Command{
	Use:   "admin",
	Short: "Administrative commands for usermgr installation",
}

var adminInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize usermgr configuration",
	Long: `Initialize usermgr by writing a starter usermgr.toml (default
~/usermgr/config/usermgr.toml) and an AWS CLI profile for the user pool's region.`,
	RunE: runAdminInit,
}

func init() {
	rootCmd.AddCommand(adminCmd)
	adminCmd.AddCommand(adminInitCmd)

	adminInitCmd.Flags().Bool("force", false, "Force re-initialization (overwrites existing config)")
	adminInitCmd.Flags().String("user-pool-id", "", "Cognito user pool id")
	adminInitCmd.Flags().String("client-id", "", "Cognito app client id")
	adminInitCmd.Flags().String("client-secret", "", "Cognito app client secret")
	adminInitCmd.Flags().String("aws-config", "", "AWS CLI config file (default ~/.aws/config)")
	adminInitCmd.Flags().String("profile", "usermgr", "AWS CLI profile to create or update")
	adminInitCmd.Flags().Bool("skip-aws-profile", false, "Do not touch the AWS CLI config")
}

func runAdminInit(cmd *cobra.Command, args []string) error {
	force, _ := cmd.Flags().GetBool("force")
	profile, _ := cmd.Flags().GetString("profile")
	skipProfile, _ := cmd.Flags().GetBool("skip-aws-profile")
	awsConfigPath, _ := cmd.Flags().GetString("aws-config")

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to resolve home directory: %w", err)
	}

	configPath := cfgFile
	if configPath == "" {
		configPath = filepath.Join(homeDir, "usermgr", "config", "usermgr.toml")
	}
	if skipProfile {
		awsConfigPath = ""
	} else if awsConfigPath == "" {
		awsConfigPath = filepath.Join(homeDir, ".aws", "config")
	}

	cfg := config.Default()
	cfg.Provider = string(manager.ProviderCognito)
	if appConfig != nil {
		cfg.AWS.Region = appConfig.AWS.Region
		if appConfig.Provider != "" {
			cfg.Provider = appConfig.Provider
		}
	}
	cfg.Cognito.UserPoolID, _ = cmd.Flags().GetString("user-pool-id")
	cfg.Cognito.ClientID, _ = cmd.Flags().GetString("client-id")
	cfg.Cognito.ClientSecret, _ = cmd.Flags().GetString("client-secret")

	err = admin.Init(admin.InitOptions{
		ConfigPath:    configPath,
		AWSConfigPath: awsConfigPath,
		Profile:       profile,
		Force:         force,
		Config:        cfg,
	})
	if errors.Is(err, admin.ErrConfigExists) {
		return fmt.Errorf("%w (use --force to overwrite)", err)
	}
	if err != nil {
		return err
	}

	fmt.Println("\n🎉 usermgr initialized")
	fmt.Printf("   export USERMGR_CONFIG_PATH=%s\n", configPath)
	return nil
}
