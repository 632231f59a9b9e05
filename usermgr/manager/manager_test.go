package manager

import (
	"errors"
	"testing"

	"github.com/mulgadc/usermgr/usermgr/awserrors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseProvider(t *testing.T) {
	tests := map[string]Provider{
		"AWS_COGNITO": ProviderCognito,
		"cognito":     ProviderCognito,
		"cognito-idp": ProviderCognito,
		"AWS_LAMBDA":  ProviderLambda,
		"lambda":      ProviderLambda,
		" AWS_LAMBDA": ProviderLambda,
	}
	for in, want := range tests {
		got, err := ParseProvider(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
}

func TestParseProvider_Unknown(t *testing.T) {
	for _, in := range []string{"", "UnknownProvider", "AWS_IAM", "okta"} {
		_, err := ParseProvider(in)
		require.Error(t, err, in)
		assert.True(t, errors.Is(err, awserrors.ErrConfiguration), in)
		assert.Equal(t, awserrors.ErrorUnknownProvider, awserrors.Code(err))
	}
}

func TestProviderKey(t *testing.T) {
	assert.Equal(t, "cognito_default", ProviderCognito.Key())
	assert.Equal(t, "lambda_default", ProviderLambda.Key())
	assert.NotEqual(t, ProviderCognito.Key(), ProviderLambda.Key())
}

func TestUserPageUsernames(t *testing.T) {
	var nilPage *UserPage
	assert.Nil(t, nilPage.Usernames())

	page := &UserPage{Users: []User{{Username: "alice"}, {Username: "bob"}}}
	assert.Equal(t, []string{"alice", "bob"}, page.Usernames())
}
