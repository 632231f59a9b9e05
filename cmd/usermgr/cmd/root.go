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
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/mulgadc/usermgr/usermgr/config"
	"github.com/mulgadc/usermgr/usermgr/factory"
	"github.com/mulgadc/usermgr/usermgr/manager"
	"github.com/mulgadc/usermgr/usermgr/utils"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile   string
	appConfig *config.Config
	registry  = factory.NewRegistry()
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "usermgr",
	Short: "usermgr - Identity provider administration",
	Long: `usermgr administers users and groups in an AWS Cognito user pool, either
directly or through a remote executor reached over Lambda or NATS.
It can be configured via config file, environment variables, or command line flags.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	err := rootCmd.Execute()
	if cerr := registry.Close(); cerr != nil {
		slog.Warn("Failed to close backends", "err", cerr)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (usermgr.toml)")
	viper.BindEnv("config", "USERMGR_CONFIG_PATH")
	viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))

	rootCmd.PersistentFlags().String("provider", "", "Backend provider, AWS_COGNITO or AWS_LAMBDA (overrides config file and env)")
	viper.BindPFlag("provider", rootCmd.PersistentFlags().Lookup("provider"))

	rootCmd.PersistentFlags().String("region", "", "AWS region (overrides config file and env)")
	viper.BindPFlag("region", rootCmd.PersistentFlags().Lookup("region"))

	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn, error")
	viper.BindEnv("log-level", "USERMGR_LOG_LEVEL")
	viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))

	rootCmd.PersistentFlags().Duration("timeout", 30*time.Second, "Timeout for a single backend operation")
	viper.BindPFlag("timeout", rootCmd.PersistentFlags().Lookup("timeout"))
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	var err error

	if cfgFile == "" {
		cfgFile = viper.GetString("config")
	}

	appConfig, err = config.LoadConfig(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		fmt.Fprintln(os.Stderr, "Continuing with defaults...")
		appConfig = config.Default()
	}

	// Overwrite defaults (CLI first, config second, env third)
	if provider := viper.GetString("provider"); provider != "" {
		appConfig.Provider = provider
	}
	if region := viper.GetString("region"); region != "" {
		appConfig.AWS.Region = region
	}
	if level := viper.GetString("log-level"); level != "" {
		appConfig.LogLevel = level
	}

	slog.SetDefault(utils.SetupLogger(os.Stderr, appConfig.LogLevel, appConfig.LogFormat))
}

// userManager returns the backend selected by the loaded configuration.
func userManager() (manager.UserManager, error) {
	if appConfig == nil {
		return nil, fmt.Errorf("configuration not loaded")
	}
	return registry.FromConfig(appConfig)
}

func operationContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), viper.GetDuration("timeout"))
}
