// Package factory selects and caches UserManager backends by provider.
package factory

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/aws/aws-sdk-go/aws/client"
	"github.com/mulgadc/usermgr/usermgr/awserrors"
	"github.com/mulgadc/usermgr/usermgr/config"
	"github.com/mulgadc/usermgr/usermgr/manager"
	"github.com/mulgadc/usermgr/usermgr/providers/cognito"
	"github.com/mulgadc/usermgr/usermgr/providers/remote"
	"github.com/mulgadc/usermgr/usermgr/utils"
)

// Constructor builds a backend from configuration.
type Constructor func(cfg *config.Config) (manager.UserManager, error)

// Registry creates backends and keeps one shared instance per provider key.
type Registry struct {
	mu           sync.Mutex
	instances    map[string]manager.UserManager
	constructors map[manager.Provider]Constructor
	session      client.ConfigProvider
}

type Option func(*Registry)

// WithConstructor replaces the constructor used for p.
func WithConstructor(p manager.Provider, c Constructor) Option {
	return func(r *Registry) {
		r.constructors[p] = c
	}
}

// WithSession makes the default constructors use sess instead of building a
// session from the configuration.
func WithSession(sess client.ConfigProvider) Option {
	return func(r *Registry) {
		r.session = sess
	}
}

func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		instances: map[string]manager.UserManager{},
	}
	r.constructors = map[manager.Provider]Constructor{
		manager.ProviderCognito: r.newCognito,
		manager.ProviderLambda:  r.newRemote,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Create always builds a new backend for p.
func (r *Registry) Create(p manager.Provider, cfg *config.Config) (manager.UserManager, error) {
	p, err := manager.ParseProvider(string(p))
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return nil, awserrors.Configuration("factory.Create", "configuration is required")
	}

	r.mu.Lock()
	construct := r.constructors[p]
	r.mu.Unlock()

	if construct == nil {
		return nil, awserrors.NewError(awserrors.ErrConfiguration, "factory.Create", awserrors.ErrorUnknownProvider, "no constructor for provider "+string(p))
	}

	um, err := construct(cfg)
	if err != nil {
		return nil, err
	}
	slog.Debug("Backend created", "provider", p)
	return um, nil
}

// Get returns the shared backend for p, creating it on first use. Concurrent
// callers for the same provider receive the same instance.
func (r *Registry) Get(p manager.Provider, cfg *config.Config) (manager.UserManager, error) {
	p, err := manager.ParseProvider(string(p))
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	key := p.Key()
	if um, ok := r.instances[key]; ok {
		return um, nil
	}

	construct := r.constructors[p]
	if construct == nil {
		return nil, awserrors.NewError(awserrors.ErrConfiguration, "factory.Get", awserrors.ErrorUnknownProvider, "no constructor for provider "+string(p))
	}
	if cfg == nil {
		return nil, awserrors.Configuration("factory.Get", "configuration is required")
	}

	um, err := construct(cfg)
	if err != nil {
		return nil, err
	}
	r.instances[key] = um

	slog.Info("Backend initialized", "provider", p, "key", key)
	return um, nil
}

// FromConfig returns the shared backend for the provider cfg selects.
func (r *Registry) FromConfig(cfg *config.Config) (manager.UserManager, error) {
	if cfg == nil {
		return nil, awserrors.Configuration("factory.FromConfig", "configuration is required")
	}
	p, err := cfg.ActiveProvider()
	if err != nil {
		return nil, err
	}
	return r.Get(p, cfg)
}

// Reset closes and forgets every cached backend.
func (r *Registry) Reset() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for key, um := range r.instances {
		if err := um.Close(); err != nil {
			slog.Warn("Failed to close backend", "key", key, "err", err)
			errs = append(errs, err)
		}
		delete(r.instances, key)
	}
	return errors.Join(errs...)
}

// Close releases every cached backend at shutdown.
func (r *Registry) Close() error {
	return r.Reset()
}

func (r *Registry) awsSession(cfg *config.Config) (client.ConfigProvider, error) {
	if r.session != nil {
		return r.session, nil
	}
	sess, err := utils.NewAWSSession(cfg.AWS)
	if err != nil {
		return nil, awserrors.NewError(awserrors.ErrConfiguration, "factory.session", awserrors.ErrorMissingParameter, err.Error())
	}
	return sess, nil
}

func (r *Registry) newCognito(cfg *config.Config) (manager.UserManager, error) {
	if err := cfg.Validate(manager.ProviderCognito); err != nil {
		return nil, err
	}
	sess, err := r.awsSession(cfg)
	if err != nil {
		return nil, err
	}
	return cognito.New(sess, cognito.Config{
		UserPoolID:   cfg.Cognito.UserPoolID,
		ClientID:     cfg.Cognito.ClientID,
		ClientSecret: cfg.Cognito.ClientSecret,
	})
}

func (r *Registry) newRemote(cfg *config.Config) (manager.UserManager, error) {
	if err := cfg.Validate(manager.ProviderLambda); err != nil {
		return nil, err
	}

	var inv remote.Invoker
	switch cfg.Remote.Transport {
	case config.TransportNATS:
		n, err := remote.DialNATS(cfg.Remote.NATS)
		if err != nil {
			return nil, awserrors.Remote("DialNATS", err)
		}
		inv = n
	default:
		sess, err := r.awsSession(cfg)
		if err != nil {
			return nil, err
		}
		inv = remote.NewLambdaInvoker(sess, cfg.Remote.FunctionName)
	}

	return remote.New(inv)
}
