package factory

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/mulgadc/usermgr/usermgr/awserrors"
	"github.com/mulgadc/usermgr/usermgr/config"
	"github.com/mulgadc/usermgr/usermgr/manager"
	"github.com/mulgadc/usermgr/usermgr/providers/cognito"
	"github.com/mulgadc/usermgr/usermgr/providers/remote"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubManager struct {
	manager.UserManager
	closed   atomic.Int32
	closeErr error
}

func (s *stubManager) Close() error {
	s.closed.Add(1)
	return s.closeErr
}

func countingConstructor(count *atomic.Int32) Constructor {
	return func(*config.Config) (manager.UserManager, error) {
		count.Add(1)
		return &stubManager{}, nil
	}
}

func testSession(t *testing.T) *session.Session {
	t.Helper()
	sess, err := session.NewSession(&aws.Config{
		Region:      aws.String("ap-northeast-1"),
		Credentials: credentials.NewStaticCredentials("AKID", "SECRET", ""),
	})
	require.NoError(t, err)
	return sess
}

func cognitoConfig() *config.Config {
	cfg := config.Default()
	cfg.AWS.Region = "ap-northeast-1"
	cfg.Cognito = config.CognitoConfig{UserPoolID: "ap-northeast-1_abc", ClientID: "client", ClientSecret: "secret"}
	return cfg
}

func TestCreate_UnknownProvider(t *testing.T) {
	r := NewRegistry()

	_, err := r.Create("AWS_AZURE", cognitoConfig())
	require.Error(t, err)
	assert.ErrorIs(t, err, awserrors.ErrConfiguration)
	assert.Equal(t, awserrors.ErrorUnknownProvider, awserrors.Code(err))

	_, err = r.Get("", cognitoConfig())
	assert.ErrorIs(t, err, awserrors.ErrConfiguration)
}

func TestCreate_NilConfig(t *testing.T) {
	r := NewRegistry()
	_, err := r.Create(manager.ProviderCognito, nil)
	assert.ErrorIs(t, err, awserrors.ErrConfiguration)

	_, err = r.FromConfig(nil)
	assert.ErrorIs(t, err, awserrors.ErrConfiguration)
}

func TestCreate_DefaultConstructors(t *testing.T) {
	r := NewRegistry(WithSession(testSession(t)))

	um, err := r.Create(manager.ProviderCognito, cognitoConfig())
	require.NoError(t, err)
	assert.IsType(t, &cognito.Backend{}, um)

	cfg := cognitoConfig()
	cfg.Remote.Transport = config.TransportLambda
	um, err = r.Create(manager.ProviderLambda, cfg)
	require.NoError(t, err)
	assert.IsType(t, &remote.Backend{}, um)

	// Aliases resolve to the same providers.
	um, err = r.Create("cognito", cognitoConfig())
	require.NoError(t, err)
	assert.IsType(t, &cognito.Backend{}, um)
}

func TestCreate_MissingConfiguration(t *testing.T) {
	r := NewRegistry(WithSession(testSession(t)))

	cfg := cognitoConfig()
	cfg.Cognito.ClientSecret = ""
	_, err := r.Create(manager.ProviderCognito, cfg)
	assert.ErrorIs(t, err, awserrors.ErrConfiguration)

	cfg = cognitoConfig()
	cfg.Remote.FunctionName = ""
	_, err = r.Create(manager.ProviderLambda, cfg)
	assert.ErrorIs(t, err, awserrors.ErrConfiguration)
}

func TestCreate_NATSUnreachable(t *testing.T) {
	r := NewRegistry()

	cfg := config.Default()
	cfg.Remote.Transport = config.TransportNATS
	cfg.Remote.NATS.Host = "nats://127.0.0.1:1"

	_, err := r.Create(manager.ProviderLambda, cfg)
	require.Error(t, err)
	assert.ErrorIs(t, err, awserrors.ErrRemoteService)
}

func TestCreate_AlwaysFresh(t *testing.T) {
	var count atomic.Int32
	r := NewRegistry(WithConstructor(manager.ProviderCognito, countingConstructor(&count)))

	a, err := r.Create(manager.ProviderCognito, cognitoConfig())
	require.NoError(t, err)
	b, err := r.Create(manager.ProviderCognito, cognitoConfig())
	require.NoError(t, err)

	assert.NotSame(t, a, b)
	assert.Equal(t, int32(2), count.Load())
}

func TestGet_Singleton(t *testing.T) {
	var count atomic.Int32
	r := NewRegistry(
		WithConstructor(manager.ProviderCognito, countingConstructor(&count)),
		WithConstructor(manager.ProviderLambda, countingConstructor(&count)),
	)

	a, err := r.Get(manager.ProviderCognito, cognitoConfig())
	require.NoError(t, err)
	b, err := r.Get("AWS_COGNITO", nil)
	require.NoError(t, err)
	assert.Same(t, a, b)

	c, err := r.Get(manager.ProviderLambda, cognitoConfig())
	require.NoError(t, err)
	assert.NotSame(t, a, c)
	assert.Equal(t, int32(2), count.Load())
}

func TestGet_ConstructorError(t *testing.T) {
	failures := 0
	r := NewRegistry(WithConstructor(manager.ProviderCognito, func(*config.Config) (manager.UserManager, error) {
		failures++
		if failures == 1 {
			return nil, errors.New("boom")
		}
		return &stubManager{}, nil
	}))

	_, err := r.Get(manager.ProviderCognito, cognitoConfig())
	require.Error(t, err)

	// Failures are not cached.
	um, err := r.Get(manager.ProviderCognito, cognitoConfig())
	require.NoError(t, err)
	assert.NotNil(t, um)
}

func TestGet_Concurrent(t *testing.T) {
	var count atomic.Int32
	r := NewRegistry(WithConstructor(manager.ProviderCognito, countingConstructor(&count)))
	cfg := cognitoConfig()

	const workers = 32
	results := make([]manager.UserManager, workers)

	var wg sync.WaitGroup
	for i := range workers {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			um, err := r.Get(manager.ProviderCognito, cfg)
			assert.NoError(t, err)
			results[i] = um
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), count.Load())
	for _, um := range results {
		assert.Same(t, results[0], um)
	}
}

func TestFromConfig(t *testing.T) {
	var count atomic.Int32
	r := NewRegistry(
		WithConstructor(manager.ProviderCognito, countingConstructor(&count)),
		WithConstructor(manager.ProviderLambda, countingConstructor(&count)),
	)

	cfg := cognitoConfig()
	cfg.AWSCognito = "1"

	a, err := r.FromConfig(cfg)
	require.NoError(t, err)
	b, err := r.FromConfig(cfg)
	require.NoError(t, err)
	assert.Same(t, a, b)

	direct, err := r.Get(manager.ProviderCognito, cfg)
	require.NoError(t, err)
	assert.Same(t, a, direct)

	_, err = r.FromConfig(config.Default())
	assert.ErrorIs(t, err, awserrors.ErrConfiguration)
}

func TestReset(t *testing.T) {
	stub := &stubManager{}
	created := 0
	r := NewRegistry(WithConstructor(manager.ProviderCognito, func(*config.Config) (manager.UserManager, error) {
		created++
		if created == 1 {
			return stub, nil
		}
		return &stubManager{}, nil
	}))

	a, err := r.Get(manager.ProviderCognito, cognitoConfig())
	require.NoError(t, err)

	require.NoError(t, r.Reset())
	assert.Equal(t, int32(1), stub.closed.Load())

	b, err := r.Get(manager.ProviderCognito, cognitoConfig())
	require.NoError(t, err)
	assert.NotSame(t, a, b)

	require.NoError(t, r.Close())
	require.NoError(t, r.Close())
}

func TestReset_CloseError(t *testing.T) {
	r := NewRegistry(WithConstructor(manager.ProviderCognito, func(*config.Config) (manager.UserManager, error) {
		return &stubManager{closeErr: errors.New("close failed")}, nil
	}))

	_, err := r.Get(manager.ProviderCognito, cognitoConfig())
	require.NoError(t, err)

	err = r.Reset()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "close failed")

	// The entry is dropped even when Close fails.
	assert.NoError(t, r.Reset())
}
