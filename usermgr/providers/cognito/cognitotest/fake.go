// Package cognitotest provides an in-memory user pool implementing the parts
// of the Cognito API the backends use.
package cognitotest

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/request"
	idp "github.com/aws/aws-sdk-go/service/cognitoidentityprovider"
	"github.com/aws/aws-sdk-go/service/cognitoidentityprovider/cognitoidentityprovideriface"
	"github.com/google/uuid"
	"github.com/mulgadc/usermgr/usermgr/providers/cognito"
)

type fakeUser struct {
	sub      string
	attrs    map[string]string
	password string
	status   string
	created  time.Time
	groups   map[string]bool
}

// UserPool is a fake user pool. Methods it does not implement panic through
// the embedded nil interface.
type UserPool struct {
	cognitoidentityprovideriface.CognitoIdentityProviderAPI

	ClientID     string
	ClientSecret string

	mu       sync.Mutex
	users    map[string]*fakeUser
	groups   map[string]string
	sessions map[string]string
	failures map[string]error
	calls    []string
}

// NewUserPool returns an empty pool that checks SECRET_HASH against clientID
// and clientSecret.
func NewUserPool(clientID, clientSecret string) *UserPool {
	return &UserPool{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		users:        map[string]*fakeUser{},
		groups:       map[string]string{},
		sessions:     map[string]string{},
		failures:     map[string]error{},
	}
}

// FailNext makes the next call to op return err.
func (p *UserPool) FailNext(op string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failures[op] = err
}

// Calls returns the operation names invoked so far.
func (p *UserPool) Calls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.calls...)
}

// UserAttributes returns a copy of the stored attributes of username.
func (p *UserPool) UserAttributes(username string) (map[string]string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	u, ok := p.users[username]
	if !ok {
		return nil, false
	}
	out := make(map[string]string, len(u.attrs))
	for k, v := range u.attrs {
		out[k] = v
	}
	return out, true
}

// UserStatus returns the credential state of username.
func (p *UserPool) UserStatus(username string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if u, ok := p.users[username]; ok {
		return u.status
	}
	return ""
}

// Password returns the current password of username.
func (p *UserPool) Password(username string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if u, ok := p.users[username]; ok {
		return u.password
	}
	return ""
}

// GroupDescription reports the description of groupname and whether it exists.
func (p *UserPool) GroupDescription(groupname string) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	d, ok := p.groups[groupname]
	return d, ok
}

// enter records the call and returns a pending injected failure. Callers
// hold p.mu.
func (p *UserPool) enter(ctx context.Context, op string) error {
	p.calls = append(p.calls, op)
	if err := ctx.Err(); err != nil {
		return awserr.New(request.CanceledErrorCode, "request context canceled", err)
	}
	if err, ok := p.failures[op]; ok {
		delete(p.failures, op)
		return err
	}
	return nil
}

func userNotFound() error {
	return awserr.New(idp.ErrCodeUserNotFoundException, "User does not exist.", nil)
}

func groupNotFound(name string) error {
	return awserr.New(idp.ErrCodeResourceNotFoundException, fmt.Sprintf("Group not found: %s", name), nil)
}

func (p *UserPool) checkSecretHash(username string, hash *string) error {
	want := cognito.SecretHash(username, p.ClientID, p.ClientSecret)
	if aws.StringValue(hash) != want {
		return awserr.New(idp.ErrCodeNotAuthorizedException, "Unable to verify secret hash for client "+p.ClientID, nil)
	}
	return nil
}

func (p *UserPool) userType(name string, u *fakeUser) *idp.UserType {
	return &idp.UserType{
		Username:       aws.String(name),
		Attributes:     p.attributeList(u),
		UserStatus:     aws.String(u.status),
		Enabled:        aws.Bool(true),
		UserCreateDate: aws.Time(u.created),
	}
}

func (p *UserPool) attributeList(u *fakeUser) []*idp.AttributeType {
	names := make([]string, 0, len(u.attrs))
	for k := range u.attrs {
		names = append(names, k)
	}
	sort.Strings(names)
	out := make([]*idp.AttributeType, 0, len(names))
	for _, k := range names {
		out = append(out, &idp.AttributeType{Name: aws.String(k), Value: aws.String(u.attrs[k])})
	}
	return out
}

func (p *UserPool) AdminCreateUserWithContext(ctx aws.Context, in *idp.AdminCreateUserInput, _ ...request.Option) (*idp.AdminCreateUserOutput, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.enter(ctx, "AdminCreateUser"); err != nil {
		return nil, err
	}

	name := aws.StringValue(in.Username)
	if name == "" {
		return nil, awserr.New(idp.ErrCodeInvalidParameterException, "Username is required", nil)
	}
	if _, exists := p.users[name]; exists {
		return nil, awserr.New(idp.ErrCodeUsernameExistsException, "User account already exists", nil)
	}

	u := &fakeUser{
		sub:      uuid.NewString(),
		attrs:    map[string]string{},
		password: aws.StringValue(in.TemporaryPassword),
		status:   idp.UserStatusTypeForceChangePassword,
		created:  time.Now().UTC(),
		groups:   map[string]bool{},
	}
	for _, a := range in.UserAttributes {
		u.attrs[aws.StringValue(a.Name)] = aws.StringValue(a.Value)
	}
	u.attrs["sub"] = u.sub
	p.users[name] = u

	return &idp.AdminCreateUserOutput{User: p.userType(name, u)}, nil
}

func (p *UserPool) AdminInitiateAuthWithContext(ctx aws.Context, in *idp.AdminInitiateAuthInput, _ ...request.Option) (*idp.AdminInitiateAuthOutput, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.enter(ctx, "AdminInitiateAuth"); err != nil {
		return nil, err
	}

	if aws.StringValue(in.AuthFlow) != idp.AuthFlowTypeAdminNoSrpAuth {
		return nil, awserr.New(idp.ErrCodeInvalidParameterException, "unsupported auth flow", nil)
	}
	name := aws.StringValue(in.AuthParameters["USERNAME"])
	u, ok := p.users[name]
	if !ok {
		return nil, userNotFound()
	}
	if err := p.checkSecretHash(name, in.AuthParameters["SECRET_HASH"]); err != nil {
		return nil, err
	}
	if aws.StringValue(in.AuthParameters["PASSWORD"]) != u.password {
		return nil, awserr.New(idp.ErrCodeNotAuthorizedException, "Incorrect username or password.", nil)
	}

	if u.status == idp.UserStatusTypeForceChangePassword {
		session := uuid.NewString()
		p.sessions[session] = name
		return &idp.AdminInitiateAuthOutput{
			ChallengeName: aws.String(idp.ChallengeNameTypeNewPasswordRequired),
			Session:       aws.String(session),
		}, nil
	}

	return &idp.AdminInitiateAuthOutput{
		AuthenticationResult: &idp.AuthenticationResultType{AccessToken: aws.String("access-" + u.sub)},
	}, nil
}

func (p *UserPool) AdminRespondToAuthChallengeWithContext(ctx aws.Context, in *idp.AdminRespondToAuthChallengeInput, _ ...request.Option) (*idp.AdminRespondToAuthChallengeOutput, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.enter(ctx, "AdminRespondToAuthChallenge"); err != nil {
		return nil, err
	}

	if aws.StringValue(in.ChallengeName) != idp.ChallengeNameTypeNewPasswordRequired {
		return nil, awserr.New(idp.ErrCodeInvalidParameterException, "unexpected challenge", nil)
	}
	name := aws.StringValue(in.ChallengeResponses["USERNAME"])
	if owner, ok := p.sessions[aws.StringValue(in.Session)]; !ok || owner != name {
		return nil, awserr.New(idp.ErrCodeNotAuthorizedException, "Invalid session for the user.", nil)
	}
	if err := p.checkSecretHash(name, in.ChallengeResponses["SECRET_HASH"]); err != nil {
		return nil, err
	}
	u, ok := p.users[name]
	if !ok {
		return nil, userNotFound()
	}

	delete(p.sessions, aws.StringValue(in.Session))
	u.password = aws.StringValue(in.ChallengeResponses["NEW_PASSWORD"])
	u.status = idp.UserStatusTypeConfirmed

	return &idp.AdminRespondToAuthChallengeOutput{
		AuthenticationResult: &idp.AuthenticationResultType{AccessToken: aws.String("access-" + u.sub)},
	}, nil
}

func (p *UserPool) AdminUpdateUserAttributesWithContext(ctx aws.Context, in *idp.AdminUpdateUserAttributesInput, _ ...request.Option) (*idp.AdminUpdateUserAttributesOutput, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.enter(ctx, "AdminUpdateUserAttributes"); err != nil {
		return nil, err
	}

	u, ok := p.users[aws.StringValue(in.Username)]
	if !ok {
		return nil, userNotFound()
	}
	for _, a := range in.UserAttributes {
		u.attrs[aws.StringValue(a.Name)] = aws.StringValue(a.Value)
	}
	return &idp.AdminUpdateUserAttributesOutput{}, nil
}

func (p *UserPool) AdminSetUserPasswordWithContext(ctx aws.Context, in *idp.AdminSetUserPasswordInput, _ ...request.Option) (*idp.AdminSetUserPasswordOutput, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.enter(ctx, "AdminSetUserPassword"); err != nil {
		return nil, err
	}

	u, ok := p.users[aws.StringValue(in.Username)]
	if !ok {
		return nil, userNotFound()
	}
	u.password = aws.StringValue(in.Password)
	if aws.BoolValue(in.Permanent) {
		u.status = idp.UserStatusTypeConfirmed
	} else {
		u.status = idp.UserStatusTypeForceChangePassword
	}
	return &idp.AdminSetUserPasswordOutput{}, nil
}

func (p *UserPool) AdminDeleteUserWithContext(ctx aws.Context, in *idp.AdminDeleteUserInput, _ ...request.Option) (*idp.AdminDeleteUserOutput, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.enter(ctx, "AdminDeleteUser"); err != nil {
		return nil, err
	}

	name := aws.StringValue(in.Username)
	if _, ok := p.users[name]; !ok {
		return nil, userNotFound()
	}
	delete(p.users, name)
	return &idp.AdminDeleteUserOutput{}, nil
}

func (p *UserPool) AdminGetUserWithContext(ctx aws.Context, in *idp.AdminGetUserInput, _ ...request.Option) (*idp.AdminGetUserOutput, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.enter(ctx, "AdminGetUser"); err != nil {
		return nil, err
	}

	name := aws.StringValue(in.Username)
	u, ok := p.users[name]
	if !ok {
		return nil, userNotFound()
	}
	return &idp.AdminGetUserOutput{
		Username:       aws.String(name),
		UserAttributes: p.attributeList(u),
		UserStatus:     aws.String(u.status),
		Enabled:        aws.Bool(true),
		UserCreateDate: aws.Time(u.created),
	}, nil
}

func (p *UserPool) AdminAddUserToGroupWithContext(ctx aws.Context, in *idp.AdminAddUserToGroupInput, _ ...request.Option) (*idp.AdminAddUserToGroupOutput, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.enter(ctx, "AdminAddUserToGroup"); err != nil {
		return nil, err
	}

	u, ok := p.users[aws.StringValue(in.Username)]
	if !ok {
		return nil, userNotFound()
	}
	group := aws.StringValue(in.GroupName)
	if _, ok := p.groups[group]; !ok {
		return nil, groupNotFound(group)
	}
	u.groups[group] = true
	return &idp.AdminAddUserToGroupOutput{}, nil
}

func (p *UserPool) CreateGroupWithContext(ctx aws.Context, in *idp.CreateGroupInput, _ ...request.Option) (*idp.CreateGroupOutput, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.enter(ctx, "CreateGroup"); err != nil {
		return nil, err
	}

	group := aws.StringValue(in.GroupName)
	if _, exists := p.groups[group]; exists {
		return nil, awserr.New(idp.ErrCodeGroupExistsException, "A group with the name already exists.", nil)
	}
	p.groups[group] = aws.StringValue(in.Description)
	return &idp.CreateGroupOutput{Group: &idp.GroupType{
		GroupName:   aws.String(group),
		Description: in.Description,
		UserPoolId:  in.UserPoolId,
	}}, nil
}

func (p *UserPool) DeleteGroupWithContext(ctx aws.Context, in *idp.DeleteGroupInput, _ ...request.Option) (*idp.DeleteGroupOutput, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.enter(ctx, "DeleteGroup"); err != nil {
		return nil, err
	}

	group := aws.StringValue(in.GroupName)
	if _, ok := p.groups[group]; !ok {
		return nil, groupNotFound(group)
	}
	delete(p.groups, group)
	for _, u := range p.users {
		delete(u.groups, group)
	}
	return &idp.DeleteGroupOutput{}, nil
}

// ListUsersInGroupWithContext pages members by username. NextToken is the
// offset of the next member.
func (p *UserPool) ListUsersInGroupWithContext(ctx aws.Context, in *idp.ListUsersInGroupInput, _ ...request.Option) (*idp.ListUsersInGroupOutput, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.enter(ctx, "ListUsersInGroup"); err != nil {
		return nil, err
	}

	group := aws.StringValue(in.GroupName)
	if _, ok := p.groups[group]; !ok {
		return nil, groupNotFound(group)
	}

	limit := int(aws.Int64Value(in.Limit))
	if limit <= 0 || limit > 60 {
		limit = 60
	}
	offset := 0
	if in.NextToken != nil {
		n, err := strconv.Atoi(*in.NextToken)
		if err != nil {
			return nil, awserr.New(idp.ErrCodeInvalidParameterException, "invalid pagination token", err)
		}
		offset = n
	}

	var names []string
	for name, u := range p.users {
		if u.groups[group] {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	out := &idp.ListUsersInGroupOutput{Users: []*idp.UserType{}}
	for i := offset; i < len(names) && len(out.Users) < limit; i++ {
		out.Users = append(out.Users, p.userType(names[i], p.users[names[i]]))
	}
	if next := offset + len(out.Users); next < len(names) {
		out.NextToken = aws.String(strconv.Itoa(next))
	}
	return out, nil
}

func (p *UserPool) ListUsersWithContext(ctx aws.Context, in *idp.ListUsersInput, _ ...request.Option) (*idp.ListUsersOutput, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.enter(ctx, "ListUsers"); err != nil {
		return nil, err
	}

	limit := int(aws.Int64Value(in.Limit))
	if limit <= 0 || limit > 60 {
		limit = 60
	}
	offset := 0
	if in.PaginationToken != nil {
		n, err := strconv.Atoi(*in.PaginationToken)
		if err != nil {
			return nil, awserr.New(idp.ErrCodeInvalidParameterException, "invalid pagination token", err)
		}
		offset = n
	}

	names := make([]string, 0, len(p.users))
	for name := range p.users {
		names = append(names, name)
	}
	sort.Strings(names)

	out := &idp.ListUsersOutput{Users: []*idp.UserType{}}
	for i := offset; i < len(names) && len(out.Users) < limit; i++ {
		out.Users = append(out.Users, p.userType(names[i], p.users[names[i]]))
	}
	if next := offset + len(out.Users); next < len(names) {
		out.PaginationToken = aws.String(strconv.Itoa(next))
	}
	return out, nil
}
