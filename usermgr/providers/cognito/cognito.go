// Package cognito implements the UserManager contract directly against the
// Cognito user pool administrative API.
package cognito

import (
	"context"
	"log/slog"
	"sort"
	"sync/atomic"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/client"
	"github.com/aws/aws-sdk-go/service/cognitoidentityprovider"
	"github.com/aws/aws-sdk-go/service/cognitoidentityprovider/cognitoidentityprovideriface"
	"github.com/mulgadc/usermgr/usermgr/awserrors"
	"github.com/mulgadc/usermgr/usermgr/manager"
)

// Config holds the user pool connection parameters.
type Config struct {
	UserPoolID   string
	ClientID     string
	ClientSecret string
}

// Backend is the direct-API UserManager. It holds no mutable state besides
// the SDK client and is safe for concurrent use.
type Backend struct {
	idp    cognitoidentityprovideriface.CognitoIdentityProviderAPI
	cfg    Config
	closed atomic.Bool
}

var (
	_ manager.UserManager = (*Backend)(nil)
	_ manager.Directory   = (*Backend)(nil)
)

// New creates a backend using a Cognito client built from sess.
func New(sess client.ConfigProvider, cfg Config) (*Backend, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return NewWithClient(cognitoidentityprovider.New(sess), cfg)
}

// NewWithClient creates a backend around an existing client.
func NewWithClient(idp cognitoidentityprovideriface.CognitoIdentityProviderAPI, cfg Config) (*Backend, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if idp == nil {
		return nil, awserrors.Configuration("cognito.New", "identity provider client is required")
	}

	slog.Debug("Cognito backend initialized", "userPoolID", cfg.UserPoolID, "clientID", cfg.ClientID)

	return &Backend{idp: idp, cfg: cfg}, nil
}

func (c Config) validate() error {
	const op = "cognito.New"
	if c.UserPoolID == "" {
		return awserrors.Configuration(op, "user pool id is required")
	}
	if c.ClientID == "" {
		return awserrors.Configuration(op, "client id is required")
	}
	if c.ClientSecret == "" {
		return awserrors.Configuration(op, "client secret is required")
	}
	return nil
}

// Close is a no-op; the SDK client holds no releasable resources.
func (b *Backend) Close() error {
	if b.closed.CompareAndSwap(false, true) {
		slog.Debug("Cognito backend closed", "userPoolID", b.cfg.UserPoolID)
	}
	return nil
}

func (b *Backend) secretHash(username string) *string {
	return aws.String(SecretHash(username, b.cfg.ClientID, b.cfg.ClientSecret))
}

// AddUser creates the user with password as the temporary credential, then
// answers the NEW_PASSWORD_REQUIRED challenge with the same password so the
// account ends up CONFIRMED. The welcome message is suppressed.
func (b *Backend) AddUser(ctx context.Context, username, password string, attrs map[string]string) (string, error) {
	created, err := b.idp.AdminCreateUserWithContext(ctx, &cognitoidentityprovider.AdminCreateUserInput{
		UserPoolId:        aws.String(b.cfg.UserPoolID),
		Username:          aws.String(username),
		TemporaryPassword: aws.String(password),
		UserAttributes:    toAttributes(attrs),
		MessageAction:     aws.String(cognitoidentityprovider.MessageActionTypeSuppress),
	})
	if err != nil {
		return "", awserrors.Remote("AdminCreateUser", err)
	}

	var sub string
	if created.User != nil {
		sub = attributeValue(created.User.Attributes, "sub")
	}

	auth, err := b.idp.AdminInitiateAuthWithContext(ctx, &cognitoidentityprovider.AdminInitiateAuthInput{
		UserPoolId: aws.String(b.cfg.UserPoolID),
		ClientId:   aws.String(b.cfg.ClientID),
		AuthFlow:   aws.String(cognitoidentityprovider.AuthFlowTypeAdminNoSrpAuth),
		AuthParameters: map[string]*string{
			"USERNAME":    aws.String(username),
			"PASSWORD":    aws.String(password),
			"SECRET_HASH": b.secretHash(username),
		},
	})
	if err != nil {
		return "", awserrors.Remote("AdminInitiateAuth", err)
	}

	if aws.StringValue(auth.ChallengeName) != cognitoidentityprovider.ChallengeNameTypeNewPasswordRequired || auth.Session == nil {
		return "", awserrors.RemoteCode("AdminInitiateAuth", awserrors.ErrorUnexpectedChallenge,
			"expected NEW_PASSWORD_REQUIRED, got "+aws.StringValue(auth.ChallengeName))
	}

	_, err = b.idp.AdminRespondToAuthChallengeWithContext(ctx, &cognitoidentityprovider.AdminRespondToAuthChallengeInput{
		UserPoolId:    aws.String(b.cfg.UserPoolID),
		ClientId:      aws.String(b.cfg.ClientID),
		ChallengeName: aws.String(cognitoidentityprovider.ChallengeNameTypeNewPasswordRequired),
		ChallengeResponses: map[string]*string{
			"USERNAME":     aws.String(username),
			"NEW_PASSWORD": aws.String(password),
			"SECRET_HASH":  b.secretHash(username),
		},
		Session: auth.Session,
	})
	if err != nil {
		return "", awserrors.Remote("AdminRespondToAuthChallenge", err)
	}

	slog.Info("User created", "username", username, "sub", sub)
	return sub, nil
}

func (b *Backend) UpdateUser(ctx context.Context, username string, attrs map[string]string) error {
	_, err := b.idp.AdminUpdateUserAttributesWithContext(ctx, &cognitoidentityprovider.AdminUpdateUserAttributesInput{
		UserPoolId:     aws.String(b.cfg.UserPoolID),
		Username:       aws.String(username),
		UserAttributes: toAttributes(attrs),
	})
	if err != nil {
		return awserrors.Remote("AdminUpdateUserAttributes", err)
	}
	slog.Info("User attributes updated", "username", username, "attributes", len(attrs))
	return nil
}

func (b *Backend) SetPassword(ctx context.Context, username, password string, permanent bool) error {
	_, err := b.idp.AdminSetUserPasswordWithContext(ctx, &cognitoidentityprovider.AdminSetUserPasswordInput{
		UserPoolId: aws.String(b.cfg.UserPoolID),
		Username:   aws.String(username),
		Password:   aws.String(password),
		Permanent:  aws.Bool(permanent),
	})
	if err != nil {
		return awserrors.Remote("AdminSetUserPassword", err)
	}
	slog.Info("User password set", "username", username, "permanent", permanent)
	return nil
}

func (b *Backend) DeleteUser(ctx context.Context, username string) error {
	_, err := b.idp.AdminDeleteUserWithContext(ctx, &cognitoidentityprovider.AdminDeleteUserInput{
		UserPoolId: aws.String(b.cfg.UserPoolID),
		Username:   aws.String(username),
	})
	if err != nil {
		return awserrors.Remote("AdminDeleteUser", err)
	}
	slog.Info("User deleted", "username", username)
	return nil
}

// IsExistUser looks the user up. UserNotFoundException is the only error
// translated; everything else propagates.
func (b *Backend) IsExistUser(ctx context.Context, username string) (bool, error) {
	_, err := b.idp.AdminGetUserWithContext(ctx, &cognitoidentityprovider.AdminGetUserInput{
		UserPoolId: aws.String(b.cfg.UserPoolID),
		Username:   aws.String(username),
	})
	if err != nil {
		if awserrors.Code(err) == awserrors.ErrorUserNotFound {
			slog.Debug("User does not exist", "username", username)
			return false, nil
		}
		return false, awserrors.Remote("AdminGetUser", err)
	}
	return true, nil
}

func (b *Backend) AddUserToGroup(ctx context.Context, username, groupname string) error {
	_, err := b.idp.AdminAddUserToGroupWithContext(ctx, &cognitoidentityprovider.AdminAddUserToGroupInput{
		UserPoolId: aws.String(b.cfg.UserPoolID),
		Username:   aws.String(username),
		GroupName:  aws.String(groupname),
	})
	if err != nil {
		return awserrors.Remote("AdminAddUserToGroup", err)
	}
	slog.Info("User added to group", "username", username, "group", groupname)
	return nil
}

func (b *Backend) AddGroup(ctx context.Context, groupname, description string) error {
	input := &cognitoidentityprovider.CreateGroupInput{
		UserPoolId: aws.String(b.cfg.UserPoolID),
		GroupName:  aws.String(groupname),
	}
	if description != "" {
		input.Description = aws.String(description)
	}

	if _, err := b.idp.CreateGroupWithContext(ctx, input); err != nil {
		return awserrors.Remote("CreateGroup", err)
	}
	slog.Info("Group created", "group", groupname)
	return nil
}

func (b *Backend) DeleteGroup(ctx context.Context, groupname string) error {
	_, err := b.idp.DeleteGroupWithContext(ctx, &cognitoidentityprovider.DeleteGroupInput{
		UserPoolId: aws.String(b.cfg.UserPoolID),
		GroupName:  aws.String(groupname),
	})
	if err != nil {
		return awserrors.Remote("DeleteGroup", err)
	}
	slog.Info("Group deleted", "group", groupname)
	return nil
}

// ListUsers fetches a single page. nextToken is not forwarded.
func (b *Backend) ListUsers(ctx context.Context, groupname string, limit int64, nextToken string) (*manager.UserPage, error) {
	if limit <= 0 {
		limit = manager.DefaultListLimit
	}
	if nextToken != "" {
		slog.Debug("ListUsers continuation token ignored, returning first page", "group", groupname)
	}

	out, err := b.idp.ListUsersInGroupWithContext(ctx, &cognitoidentityprovider.ListUsersInGroupInput{
		UserPoolId: aws.String(b.cfg.UserPoolID),
		GroupName:  aws.String(groupname),
		Limit:      aws.Int64(limit),
	})
	if err != nil {
		return nil, awserrors.Remote("ListUsersInGroup", err)
	}

	page := &manager.UserPage{
		Users:     make([]manager.User, 0, len(out.Users)),
		Truncated: aws.StringValue(out.NextToken) != "",
	}
	for _, u := range out.Users {
		page.Users = append(page.Users, FromUserType(u))
	}
	return page, nil
}

// GetUser returns the record of username. A missing user is a
// RemoteServiceError with code UserNotFoundException.
func (b *Backend) GetUser(ctx context.Context, username string) (*manager.User, error) {
	out, err := b.idp.AdminGetUserWithContext(ctx, &cognitoidentityprovider.AdminGetUserInput{
		UserPoolId: aws.String(b.cfg.UserPoolID),
		Username:   aws.String(username),
	})
	if err != nil {
		return nil, awserrors.Remote("AdminGetUser", err)
	}

	u := FromUserType(&cognitoidentityprovider.UserType{
		Username:       out.Username,
		Attributes:     out.UserAttributes,
		UserStatus:     out.UserStatus,
		Enabled:        out.Enabled,
		UserCreateDate: out.UserCreateDate,
	})
	return &u, nil
}

// ListPoolUsers fetches the first page of the whole pool.
func (b *Backend) ListPoolUsers(ctx context.Context, limit int64, nextToken string) (*manager.UserPage, error) {
	if limit <= 0 || limit > manager.DefaultListLimit {
		limit = manager.DefaultListLimit
	}
	if nextToken != "" {
		slog.Debug("ListPoolUsers continuation token ignored, returning first page")
	}

	out, err := b.idp.ListUsersWithContext(ctx, &cognitoidentityprovider.ListUsersInput{
		UserPoolId: aws.String(b.cfg.UserPoolID),
		Limit:      aws.Int64(limit),
	})
	if err != nil {
		return nil, awserrors.Remote("ListUsers", err)
	}

	page := &manager.UserPage{
		Users:     make([]manager.User, 0, len(out.Users)),
		Truncated: aws.StringValue(out.PaginationToken) != "",
	}
	for _, u := range out.Users {
		page.Users = append(page.Users, FromUserType(u))
	}
	return page, nil
}

// FromUserType converts an SDK user record.
func FromUserType(u *cognitoidentityprovider.UserType) manager.User {
	if u == nil {
		return manager.User{}
	}
	attrs := fromAttributes(u.Attributes)
	return manager.User{
		Username:   aws.StringValue(u.Username),
		Sub:        attrs["sub"],
		Attributes: attrs,
		Status:     aws.StringValue(u.UserStatus),
		Enabled:    aws.BoolValue(u.Enabled),
		CreatedAt:  aws.TimeValue(u.UserCreateDate),
	}
}

// toAttributes converts a map into SDK attributes, sorted by name so request
// bodies are stable.
func toAttributes(attrs map[string]string) []*cognitoidentityprovider.AttributeType {
	names := make([]string, 0, len(attrs))
	for name := range attrs {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]*cognitoidentityprovider.AttributeType, 0, len(names))
	for _, name := range names {
		out = append(out, &cognitoidentityprovider.AttributeType{
			Name:  aws.String(name),
			Value: aws.String(attrs[name]),
		})
	}
	return out
}

func fromAttributes(attrs []*cognitoidentityprovider.AttributeType) map[string]string {
	out := make(map[string]string, len(attrs))
	for _, a := range attrs {
		if a == nil || a.Name == nil {
			continue
		}
		out[*a.Name] = aws.StringValue(a.Value)
	}
	return out
}

func attributeValue(attrs []*cognitoidentityprovider.AttributeType, name string) string {
	for _, a := range attrs {
		if a != nil && aws.StringValue(a.Name) == name {
			return aws.StringValue(a.Value)
		}
	}
	return ""
}
