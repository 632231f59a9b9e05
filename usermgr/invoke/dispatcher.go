package invoke

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mulgadc/usermgr/usermgr/awserrors"
	"github.com/mulgadc/usermgr/usermgr/manager"
)

type handlerFunc func(ctx context.Context, req Request) (*Response, error)

// Dispatcher executes decoded requests against a UserManager.
type Dispatcher struct {
	um       manager.UserManager
	handlers map[string]handlerFunc
}

// NewDispatcher builds the handler table and fails if any request type has
// no handler.
func NewDispatcher(um manager.UserManager) (*Dispatcher, error) {
	if um == nil {
		return nil, awserrors.Configuration("invoke.NewDispatcher", "user manager is required")
	}

	d := &Dispatcher{um: um}
	d.handlers = map[string]handlerFunc{
		TypeAddUser:        d.addUser,
		TypeUpdateUser:     d.updateUser,
		TypeSetPassword:    d.setPassword,
		TypeDeleteUser:     d.deleteUser,
		TypeIsExistUser:    d.isExistUser,
		TypeAddUserToGroup: d.addUserToGroup,
		TypeAddGroup:       d.addGroup,
		TypeDeleteGroup:    d.deleteGroup,
		TypeListUsers:      d.listUsers,
	}

	for _, t := range RequestTypes {
		if _, ok := d.handlers[t]; !ok {
			return nil, fmt.Errorf("no handler registered for request type %q", t)
		}
		if _, ok := decoders[t]; !ok {
			return nil, fmt.Errorf("no decoder registered for request type %q", t)
		}
	}
	return d, nil
}

// Handle decodes payload, executes it and returns the encoded response.
// Decode failures are reported in the response body; the returned error is
// only set when the response itself cannot be encoded.
func (d *Dispatcher) Handle(ctx context.Context, payload []byte) ([]byte, error) {
	req, requestID, err := Decode(payload)

	var resp *Response
	if err != nil {
		slog.Warn("Rejected invoke request", "requestID", requestID, "err", err)
		resp = &Response{RequestID: requestID, Error: decodeErrorPayload(err)}
	} else {
		resp = d.Execute(ctx, req, requestID)
	}

	return json.Marshal(resp)
}

// HandleLambda is the Lambda entry point. An unknown request type is returned
// as an error so the invocation fails; other failures are carried in the
// response.
func (d *Dispatcher) HandleLambda(ctx context.Context, payload json.RawMessage) (*Response, error) {
	req, requestID, err := Decode(payload)
	if err != nil {
		if errors.Is(err, ErrUnknownRequestType) {
			slog.Error("Unknown invoke request type", "requestID", requestID, "err", err)
			return nil, err
		}
		return &Response{RequestID: requestID, Error: decodeErrorPayload(err)}, nil
	}
	return d.Execute(ctx, req, requestID), nil
}

// Execute runs a decoded request.
func (d *Dispatcher) Execute(ctx context.Context, req Request, requestID string) *Response {
	slog.Debug("Executing invoke request", "type", req.Type(), "requestID", requestID)

	h, ok := d.handlers[req.Type()]
	if !ok {
		return &Response{RequestID: requestID, Error: decodeErrorPayload(fmt.Errorf("%w: %q", ErrUnknownRequestType, req.Type()))}
	}

	resp, err := h(ctx, req)
	if err != nil {
		slog.Info("Invoke request failed", "type", req.Type(), "requestID", requestID, "err", err)
		resp = &Response{Error: errorPayload(err)}
	}
	resp.RequestID = requestID
	return resp
}

func decodeErrorPayload(err error) *ErrorPayload {
	code := awserrors.ErrorValidation
	if errors.Is(err, ErrUnknownRequestType) {
		code = awserrors.ErrorUnknownRequestType
	}
	return &ErrorPayload{Code: code, Message: err.Error()}
}

func errorPayload(err error) *ErrorPayload {
	code := awserrors.Code(err)
	if code == "" {
		code = awserrors.ErrorServerInternal
	}
	msg := err.Error()
	var e *awserrors.Error
	if errors.As(err, &e) && e.Detail != "" {
		msg = e.Detail
	}
	return &ErrorPayload{Kind: awserrors.KindName(err), Code: code, Message: msg}
}

func unexpected(req Request) error {
	return fmt.Errorf("%w: unexpected variant %T", ErrInvalidRequest, req)
}

func (d *Dispatcher) addUser(ctx context.Context, req Request) (*Response, error) {
	r, ok := req.(AddUserRequest)
	if !ok {
		return nil, unexpected(req)
	}
	sub, err := d.um.AddUser(ctx, r.Username, r.Password, r.Attrs)
	if err != nil {
		return nil, err
	}
	return &Response{Sub: &sub}, nil
}

func (d *Dispatcher) updateUser(ctx context.Context, req Request) (*Response, error) {
	r, ok := req.(UpdateUserRequest)
	if !ok {
		return nil, unexpected(req)
	}
	return &Response{}, d.um.UpdateUser(ctx, r.Username, r.Attrs)
}

func (d *Dispatcher) setPassword(ctx context.Context, req Request) (*Response, error) {
	r, ok := req.(SetPasswordRequest)
	if !ok {
		return nil, unexpected(req)
	}
	return &Response{}, d.um.SetPassword(ctx, r.Username, r.Password, r.Permanent)
}

func (d *Dispatcher) deleteUser(ctx context.Context, req Request) (*Response, error) {
	r, ok := req.(DeleteUserRequest)
	if !ok {
		return nil, unexpected(req)
	}
	return &Response{}, d.um.DeleteUser(ctx, r.Username)
}

func (d *Dispatcher) isExistUser(ctx context.Context, req Request) (*Response, error) {
	r, ok := req.(IsExistUserRequest)
	if !ok {
		return nil, unexpected(req)
	}
	exists, err := d.um.IsExistUser(ctx, r.Username)
	if err != nil {
		return nil, err
	}
	return &Response{Exists: &exists}, nil
}

func (d *Dispatcher) addUserToGroup(ctx context.Context, req Request) (*Response, error) {
	r, ok := req.(AddUserToGroupRequest)
	if !ok {
		return nil, unexpected(req)
	}
	return &Response{}, d.um.AddUserToGroup(ctx, r.Username, r.Groupname)
}

func (d *Dispatcher) addGroup(ctx context.Context, req Request) (*Response, error) {
	r, ok := req.(AddGroupRequest)
	if !ok {
		return nil, unexpected(req)
	}
	return &Response{}, d.um.AddGroup(ctx, r.Groupname, r.Description)
}

func (d *Dispatcher) deleteGroup(ctx context.Context, req Request) (*Response, error) {
	r, ok := req.(DeleteGroupRequest)
	if !ok {
		return nil, unexpected(req)
	}
	return &Response{}, d.um.DeleteGroup(ctx, r.Groupname)
}

func (d *Dispatcher) listUsers(ctx context.Context, req Request) (*Response, error) {
	r, ok := req.(ListUsersRequest)
	if !ok {
		return nil, unexpected(req)
	}
	page, err := d.um.ListUsers(ctx, r.Groupname, r.Limit, r.NextToken)
	if err != nil {
		return nil, err
	}
	return &Response{Page: page}, nil
}
