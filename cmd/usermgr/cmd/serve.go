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
	"os/signal"
	"syscall"
	"time"

	"github.com/mulgadc/usermgr/usermgr/gateway"
	"github.com/mulgadc/usermgr/usermgr/invoke"
	"github.com/mulgadc/usermgr/usermgr/manager"
	"github.com/mulgadc/usermgr/usermgr/services/nats"
	"github.com/mulgadc/usermgr/usermgr/utils"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/automaxprocs/maxprocs"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run a long-lived usermgr server",
}

var serveNATSCmd = &cobra.Command{
	Use:   "nats",
	Short: "Serve remote invoke requests over NATS",
	Long: `Run the remote executor: requests published on the configured subject are
executed against the direct Cognito backend and answered on the reply subject.
With --embedded an in-process NATS server is started first.`,
	RunE: runServeNATS,
}

var serveGatewayCmd = &cobra.Command{
	Use:   "gateway",
	Short: "Serve the HTTP admin API",
	RunE:  runServeGateway,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.AddCommand(serveNATSCmd)
	serveCmd.AddCommand(serveGatewayCmd)

	serveNATSCmd.Flags().Bool("embedded", false, "Start an in-process NATS server")
	serveNATSCmd.Flags().String("nats-listen", "127.0.0.1", "Embedded NATS server listen host")
	serveNATSCmd.Flags().Int("nats-port", 4222, "Embedded NATS server port")
	serveNATSCmd.Flags().String("nats-config", "", "Embedded NATS server config file")
	serveNATSCmd.Flags().Bool("nats-debug", false, "Embedded NATS server debug logging")

	serveGatewayCmd.Flags().String("host", "", "Listen address (overrides config file and env)")
	viper.BindEnv("gateway-host", "USERMGR_GATEWAY_HOST")
	viper.BindPFlag("gateway-host", serveGatewayCmd.Flags().Lookup("host"))

	serveGatewayCmd.Flags().String("token", "", "Bearer token required on every request")
	viper.BindEnv("gateway-token", "USERMGR_GATEWAY_TOKEN")
	viper.BindPFlag("gateway-token", serveGatewayCmd.Flags().Lookup("token"))

	serveGatewayCmd.Flags().Bool("debug", false, "Include error details in responses")
	viper.BindPFlag("gateway-debug", serveGatewayCmd.Flags().Lookup("debug"))
}

// setMaxProcs adjusts GOMAXPROCS to the container CPU quota.
func setMaxProcs() func() {
	undo, err := maxprocs.Set(maxprocs.Logger(func(format string, args ...any) {
		slog.Debug(fmt.Sprintf(format, args...))
	}))
	if err != nil {
		slog.Warn("Failed to set GOMAXPROCS", "err", err)
		return func() {}
	}
	return undo
}

func runServeNATS(cmd *cobra.Command, args []string) error {
	if appConfig == nil {
		return fmt.Errorf("configuration not loaded")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	natsCfg := appConfig.Remote.NATS
	host := natsCfg.Host

	embedded, _ := cmd.Flags().GetBool("embedded")
	if embedded {
		listen, _ := cmd.Flags().GetString("nats-listen")
		port, _ := cmd.Flags().GetInt("nats-port")
		configFile, _ := cmd.Flags().GetString("nats-config")
		debug, _ := cmd.Flags().GetBool("nats-debug")

		svc := nats.New(&nats.Config{
			ConfigFile: configFile,
			Host:       listen,
			Port:       port,
			Token:      natsCfg.Token,
			Debug:      debug,
		})
		if err := svc.Start(); err != nil {
			return fmt.Errorf("failed to start embedded NATS server: %w", err)
		}
		defer svc.Shutdown()
		host = svc.ClientURL()
	} else {
		defer setMaxProcs()()
	}

	// The executor always runs the direct backend.
	um, err := registry.Get(manager.ProviderCognito, appConfig)
	if err != nil {
		return err
	}

	dispatcher, err := invoke.NewDispatcher(um)
	if err != nil {
		return err
	}

	nc, err := utils.ConnectNATS(host, natsCfg.Token)
	if err != nil {
		return err
	}
	defer nc.Close()

	responder := invoke.NewResponder(nc, dispatcher, natsCfg.Subject, natsCfg.QueueGroup, natsCfg.Timeout)
	if err := responder.Start(ctx); err != nil {
		return err
	}

	<-ctx.Done()
	slog.Info("Received shutdown signal, draining responder")
	return responder.Stop()
}

func runServeGateway(cmd *cobra.Command, args []string) error {
	if appConfig == nil {
		return fmt.Errorf("configuration not loaded")
	}

	// Overwrite defaults (CLI first, config second, env third)
	if host := viper.GetString("gateway-host"); host != "" {
		appConfig.Gateway.Host = host
	}
	if token := viper.GetString("gateway-token"); token != "" {
		appConfig.Gateway.Token = token
	}
	if viper.GetBool("gateway-debug") {
		appConfig.Gateway.Debug = true
	}

	// Fail before listening when no backend can be built.
	if _, err := registry.FromConfig(appConfig); err != nil {
		return err
	}

	defer setMaxProcs()()

	gw := gateway.GatewayConfig{
		Debug:    appConfig.Gateway.Debug,
		Token:    appConfig.Gateway.Token,
		Registry: registry,
		Config:   appConfig,
	}
	app := gw.SetupRoutes()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- app.Listen(appConfig.Gateway.Host)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("Received shutdown signal, stopping gateway")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return app.ShutdownWithContext(shutdownCtx)
}
