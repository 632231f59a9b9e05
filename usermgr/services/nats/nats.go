// Package nats runs an in-process NATS server for single-host deployments of
// the remote executor.
package nats

import (
	"errors"
	"log/slog"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"go.uber.org/automaxprocs/maxprocs"
)

type Config struct {
	ConfigFile string `json:"config_file"`
	Port       int    `json:"port"`
	Host       string `json:"host"`
	Token      string `json:"token"`
	Debug      bool   `json:"debug"`
	NoLog      bool   `json:"no_log"`
}

type Service struct {
	Config *Config

	ns         *server.Server
	undoProcs  func()
	readyAfter time.Duration
}

func New(config *Config) *Service {
	if config == nil {
		config = &Config{}
	}
	return &Service{Config: config, readyAfter: 10 * time.Second}
}

func (svc *Service) options() (*server.Options, error) {
	if svc.Config.ConfigFile != "" {
		opts, err := server.ProcessConfigFile(svc.Config.ConfigFile)
		if err != nil {
			slog.Error("Failed to process NATS config file", "err", err)
			return nil, err
		}
		opts.NoSigs = true
		opts.NoLog = opts.NoLog || svc.Config.NoLog
		return opts, nil
	}

	opts := &server.Options{
		Host:          svc.Config.Host,
		Port:          svc.Config.Port,
		Debug:         svc.Config.Debug,
		Authorization: svc.Config.Token,
		NoLog:         svc.Config.NoLog,
		NoSigs:        true,
	}

	// Set defaults if not provided
	if opts.Port == 0 {
		opts.Port = 4222
	}
	if opts.Host == "" {
		opts.Host = "127.0.0.1"
	}
	return opts, nil
}

// Start launches the server and waits until it accepts connections.
func (svc *Service) Start() error {
	opts, err := svc.options()
	if err != nil {
		return err
	}

	ns, err := server.NewServer(opts)
	if err != nil {
		slog.Error("Failed to create NATS server", "err", err)
		return err
	}
	if !opts.NoLog {
		ns.ConfigureLogger()
	}

	// Adjust MAXPROCS if running under linux/cgroups quotas.
	undo, err := maxprocs.Set(maxprocs.Logger(ns.Debugf))
	if err != nil {
		slog.Warn("Failed to set GOMAXPROCS", "err", err)
	} else {
		svc.undoProcs = undo
	}

	go ns.Start()

	if !ns.ReadyForConnections(svc.readyAfter) {
		ns.Shutdown()
		return errors.New("NATS server not ready for connections")
	}
	svc.ns = ns

	slog.Info("Embedded NATS server started", "url", ns.ClientURL())
	return nil
}

// ClientURL is the URL clients connect to, empty before Start.
func (svc *Service) ClientURL() string {
	if svc.ns == nil {
		return ""
	}
	return svc.ns.ClientURL()
}

func (svc *Service) Shutdown() {
	if svc.ns == nil {
		return
	}
	svc.ns.Shutdown()
	svc.ns.WaitForShutdown()
	svc.ns = nil

	if svc.undoProcs != nil {
		svc.undoProcs()
		svc.undoProcs = nil
	}
}
