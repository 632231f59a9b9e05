// Package invoke defines the message exchanged between the remote-invocation
// backend and its executor, and the dispatcher that executes it.
package invoke

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mulgadc/usermgr/usermgr/manager"
)

// Request types on the wire.
const (
	TypeAddUser        = "add_user"
	TypeUpdateUser     = "update_user"
	TypeSetPassword    = "set_password"
	TypeDeleteUser     = "delete_user"
	TypeIsExistUser    = "is_exist_user"
	TypeAddUserToGroup = "add_user_to_group"
	TypeAddGroup       = "add_group"
	TypeDeleteGroup    = "delete_group"
	TypeListUsers      = "list_users"
)

// RequestTypes lists every request type the executor must handle.
var RequestTypes = []string{
	TypeAddUser,
	TypeUpdateUser,
	TypeSetPassword,
	TypeDeleteUser,
	TypeIsExistUser,
	TypeAddUserToGroup,
	TypeAddGroup,
	TypeDeleteGroup,
	TypeListUsers,
}

var (
	ErrUnknownRequestType = errors.New("unknown request type")
	ErrInvalidRequest     = errors.New("invalid request")
)

// Request is one of the operation variants below.
type Request interface {
	Type() string
	validate() error
}

type AddUserRequest struct {
	Username string            `json:"username"`
	Password string            `json:"password"`
	Attrs    map[string]string `json:"attrs"`
}

// MarshalJSON always emits attrs, as an empty object when unset.
func (r AddUserRequest) MarshalJSON() ([]byte, error) {
	type plain AddUserRequest
	if r.Attrs == nil {
		r.Attrs = map[string]string{}
	}
	return json.Marshal(plain(r))
}

type UpdateUserRequest struct {
	Username string            `json:"username"`
	Attrs    map[string]string `json:"attrs"`
}

type SetPasswordRequest struct {
	Username  string `json:"username"`
	Password  string `json:"password"`
	Permanent bool   `json:"permanent"`
}

type DeleteUserRequest struct {
	Username string `json:"username"`
}

type IsExistUserRequest struct {
	Username string `json:"username"`
}

type AddUserToGroupRequest struct {
	Username  string `json:"username"`
	Groupname string `json:"groupname"`
}

type AddGroupRequest struct {
	Groupname   string `json:"groupname"`
	Description string `json:"description"`
}

type DeleteGroupRequest struct {
	Groupname string `json:"groupname"`
}

type ListUsersRequest struct {
	Groupname string `json:"groupname"`
	Limit     int64  `json:"limit,omitempty"`
	NextToken string `json:"next_token,omitempty"`
}

func (AddUserRequest) Type() string        { return TypeAddUser }
func (UpdateUserRequest) Type() string     { return TypeUpdateUser }
func (SetPasswordRequest) Type() string    { return TypeSetPassword }
func (DeleteUserRequest) Type() string     { return TypeDeleteUser }
func (IsExistUserRequest) Type() string    { return TypeIsExistUser }
func (AddUserToGroupRequest) Type() string { return TypeAddUserToGroup }
func (AddGroupRequest) Type() string       { return TypeAddGroup }
func (DeleteGroupRequest) Type() string    { return TypeDeleteGroup }
func (ListUsersRequest) Type() string      { return TypeListUsers }

func required(field, value string) error {
	if value == "" {
		return fmt.Errorf("%w: %s is required", ErrInvalidRequest, field)
	}
	return nil
}

func (r AddUserRequest) validate() error {
	return errors.Join(required("username", r.Username), required("password", r.Password))
}

func (r UpdateUserRequest) validate() error {
	if err := required("username", r.Username); err != nil {
		return err
	}
	if len(r.Attrs) == 0 {
		return fmt.Errorf("%w: attrs is required", ErrInvalidRequest)
	}
	return nil
}

func (r SetPasswordRequest) validate() error {
	return errors.Join(required("username", r.Username), required("password", r.Password))
}

func (r DeleteUserRequest) validate() error  { return required("username", r.Username) }
func (r IsExistUserRequest) validate() error { return required("username", r.Username) }

func (r AddUserToGroupRequest) validate() error {
	return errors.Join(required("username", r.Username), required("groupname", r.Groupname))
}

func (r AddGroupRequest) validate() error    { return required("groupname", r.Groupname) }
func (r DeleteGroupRequest) validate() error { return required("groupname", r.Groupname) }

func (r ListUsersRequest) validate() error {
	if r.Limit < 0 {
		return fmt.Errorf("%w: limit must not be negative", ErrInvalidRequest)
	}
	return required("groupname", r.Groupname)
}

// decoders parse the body of each variant.
var decoders = map[string]func([]byte) (Request, error){
	TypeAddUser:        decodeAs[AddUserRequest],
	TypeUpdateUser:     decodeAs[UpdateUserRequest],
	TypeSetPassword:    decodeAs[SetPasswordRequest],
	TypeDeleteUser:     decodeAs[DeleteUserRequest],
	TypeIsExistUser:    decodeAs[IsExistUserRequest],
	TypeAddUserToGroup: decodeAs[AddUserToGroupRequest],
	TypeAddGroup:       decodeAs[AddGroupRequest],
	TypeDeleteGroup:    decodeAs[DeleteGroupRequest],
	TypeListUsers:      decodeAs[ListUsersRequest],
}

func decodeAs[T Request](data []byte) (Request, error) {
	var r T
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, err
	}
	return r, nil
}

type header struct {
	Type      string `json:"type"`
	RequestID string `json:"request_id,omitempty"`
}

// Encode serializes req as a flat JSON object carrying its type tag and the
// optional request id.
func Encode(req Request, requestID string) ([]byte, error) {
	if req == nil {
		return nil, fmt.Errorf("%w: nil request", ErrInvalidRequest)
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, err
	}

	fields["type"], _ = json.Marshal(req.Type())
	if requestID != "" {
		fields["request_id"], _ = json.Marshal(requestID)
	}
	return json.Marshal(fields)
}

// Decode parses and validates a request. It returns the variant by value
// together with the request id.
func Decode(data []byte) (Request, string, error) {
	var h header
	if err := json.Unmarshal(data, &h); err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	decode, ok := decoders[h.Type]
	if !ok {
		return nil, h.RequestID, fmt.Errorf("%w: %q", ErrUnknownRequestType, h.Type)
	}

	req, err := decode(data)
	if err != nil {
		return nil, h.RequestID, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if err := req.validate(); err != nil {
		return nil, h.RequestID, err
	}
	return req, h.RequestID, nil
}

// ErrorPayload describes a failure on the executor side.
type ErrorPayload struct {
	Kind    string `json:"kind,omitempty"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Response is the executor reply. Exactly one of the result fields is set on
// success depending on the request type; Error is set on failure.
type Response struct {
	RequestID string            `json:"request_id,omitempty"`
	Sub       *string           `json:"sub,omitempty"`
	Exists    *bool             `json:"exists,omitempty"`
	Page      *manager.UserPage `json:"page,omitempty"`
	Error     *ErrorPayload     `json:"error,omitempty"`
}
