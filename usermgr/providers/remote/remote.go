// Package remote implements the UserManager contract by delegating every
// operation to a remote executor that holds the identity service credentials.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/mulgadc/usermgr/usermgr/awserrors"
	"github.com/mulgadc/usermgr/usermgr/invoke"
	"github.com/mulgadc/usermgr/usermgr/manager"
)

// Invoker delivers an encoded request to the executor and returns its reply.
type Invoker interface {
	Invoke(ctx context.Context, payload []byte) ([]byte, error)
	Close() error
}

// Backend is the remote-invocation UserManager.
type Backend struct {
	inv    Invoker
	closed atomic.Bool
}

var _ manager.UserManager = (*Backend)(nil)

// New creates a backend sending requests through inv.
func New(inv Invoker) (*Backend, error) {
	if inv == nil {
		return nil, awserrors.Configuration("remote.New", "invoker is required")
	}
	return &Backend{inv: inv}, nil
}

// Close releases the invoker. Subsequent calls are no-ops.
func (b *Backend) Close() error {
	if !b.closed.CompareAndSwap(false, true) {
		return nil
	}
	return b.inv.Close()
}

// call sends req and decodes the reply strictly. An error payload becomes a
// RemoteServiceError carrying the executor's code.
func (b *Backend) call(ctx context.Context, req invoke.Request) (*invoke.Response, error) {
	op := req.Type()
	requestID := uuid.NewString()

	payload, err := invoke.Encode(req, requestID)
	if err != nil {
		return nil, awserrors.Protocol(op, "encode request: %v", err)
	}

	slog.Debug("Invoking remote executor", "type", op, "requestID", requestID)

	out, err := b.inv.Invoke(ctx, payload)
	if err != nil {
		return nil, awserrors.Remote(op, err)
	}

	dec := json.NewDecoder(bytes.NewReader(out))
	dec.DisallowUnknownFields()

	var resp invoke.Response
	if err := dec.Decode(&resp); err != nil {
		return nil, awserrors.Protocol(op, "decode response: %v", err)
	}
	if resp.RequestID != requestID {
		return nil, awserrors.Protocol(op, "response request id %q does not match %q", resp.RequestID, requestID)
	}
	if resp.Error != nil {
		return nil, awserrors.RemoteCode(op, resp.Error.Code, resp.Error.Message)
	}
	return &resp, nil
}

func (b *Backend) AddUser(ctx context.Context, username, password string, attrs map[string]string) (string, error) {
	resp, err := b.call(ctx, invoke.AddUserRequest{Username: username, Password: password, Attrs: attrs})
	if err != nil {
		return "", err
	}
	if resp.Sub == nil {
		return "", awserrors.Protocol(invoke.TypeAddUser, "response has no sub")
	}
	slog.Info("User created", "username", username, "sub", *resp.Sub)
	return *resp.Sub, nil
}

func (b *Backend) UpdateUser(ctx context.Context, username string, attrs map[string]string) error {
	_, err := b.call(ctx, invoke.UpdateUserRequest{Username: username, Attrs: attrs})
	return err
}

func (b *Backend) SetPassword(ctx context.Context, username, password string, permanent bool) error {
	_, err := b.call(ctx, invoke.SetPasswordRequest{Username: username, Password: password, Permanent: permanent})
	return err
}

func (b *Backend) DeleteUser(ctx context.Context, username string) error {
	_, err := b.call(ctx, invoke.DeleteUserRequest{Username: username})
	return err
}

func (b *Backend) IsExistUser(ctx context.Context, username string) (bool, error) {
	resp, err := b.call(ctx, invoke.IsExistUserRequest{Username: username})
	if err != nil {
		return false, err
	}
	if resp.Exists == nil {
		return false, awserrors.Protocol(invoke.TypeIsExistUser, "response has no exists flag")
	}
	return *resp.Exists, nil
}

func (b *Backend) AddUserToGroup(ctx context.Context, username, groupname string) error {
	_, err := b.call(ctx, invoke.AddUserToGroupRequest{Username: username, Groupname: groupname})
	return err
}

func (b *Backend) AddGroup(ctx context.Context, groupname, description string) error {
	_, err := b.call(ctx, invoke.AddGroupRequest{Groupname: groupname, Description: description})
	return err
}

func (b *Backend) DeleteGroup(ctx context.Context, groupname string) error {
	_, err := b.call(ctx, invoke.DeleteGroupRequest{Groupname: groupname})
	return err
}

func (b *Backend) ListUsers(ctx context.Context, groupname string, limit int64, nextToken string) (*manager.UserPage, error) {
	if limit <= 0 {
		limit = manager.DefaultListLimit
	}
	resp, err := b.call(ctx, invoke.ListUsersRequest{Groupname: groupname, Limit: limit, NextToken: nextToken})
	if err != nil {
		return nil, err
	}
	if resp.Page == nil {
		return nil, awserrors.Protocol(invoke.TypeListUsers, "response has no page")
	}
	if resp.Page.Users == nil {
		resp.Page.Users = []manager.User{}
	}
	return resp.Page, nil
}
