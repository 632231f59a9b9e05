package awserrors

import (
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/service/cognitoidentityprovider"
)

// Error kinds. Every error returned by a UserManager matches exactly one of
// ErrConfiguration, ErrRemoteService or ErrProtocol. ErrNotFound is a
// refinement of ErrRemoteService derived from the upstream error code.
// ErrInvalidRequest is raised by the HTTP gateway for rejected client input
// and never by a UserManager.
var (
	ErrConfiguration  = errors.New("ConfigurationError")
	ErrNotFound       = errors.New("NotFoundError")
	ErrRemoteService  = errors.New("RemoteServiceError")
	ErrProtocol       = errors.New("ProtocolError")
	ErrInvalidRequest = errors.New("InvalidRequestError")
)

// Error codes produced locally or copied from the identity service.
var (
	ErrorUserNotFound         = cognitoidentityprovider.ErrCodeUserNotFoundException
	ErrorResourceNotFound     = cognitoidentityprovider.ErrCodeResourceNotFoundException
	ErrorUsernameExists       = cognitoidentityprovider.ErrCodeUsernameExistsException
	ErrorGroupExists          = cognitoidentityprovider.ErrCodeGroupExistsException
	ErrorInvalidParameter     = cognitoidentityprovider.ErrCodeInvalidParameterException
	ErrorInvalidPassword      = cognitoidentityprovider.ErrCodeInvalidPasswordException
	ErrorNotAuthorized        = cognitoidentityprovider.ErrCodeNotAuthorizedException
	ErrorTooManyRequests      = cognitoidentityprovider.ErrCodeTooManyRequestsException
	ErrorInternal             = cognitoidentityprovider.ErrCodeInternalErrorException
	ErrorUnexpectedChallenge  = "UnexpectedChallenge"
	ErrorUnknownRequestType   = "UnknownRequestType"
	ErrorValidation           = "ValidationError"
	ErrorFunctionError        = "FunctionError"
	ErrorTransport            = "TransportError"
	ErrorMissingParameter     = "MissingParameter"
	ErrorUnknownProvider      = "UnknownProvider"
	ErrorMalformedResponse    = "MalformedResponse"
	ErrorServerInternal       = "InternalError"
	ErrorUnauthorizedGateway  = "Unauthorized"
	ErrorUnexpectedHTTPStatus = "UnexpectedHTTPStatus"
	ErrorUnsupportedOperation = "UnsupportedOperation"
)

var notFoundCodes = map[string]bool{
	ErrorUserNotFound:     true,
	ErrorResourceNotFound: true,
}

// Error carries the kind, the operation that failed and, for upstream
// failures, the identity service error code.
type Error struct {
	Kind   error
	Op     string
	Code   string
	Detail string
	Err    error
}

func (e *Error) Error() string {
	msg := e.Kind.Error()
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Code != "" {
		msg += ": " + e.Code
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Is reports ErrNotFound for remote errors carrying a not-found code.
func (e *Error) Is(target error) bool {
	return target == ErrNotFound && e.Kind == ErrRemoteService && notFoundCodes[e.Code]
}

// NewError creates an Error of the given kind with a detail message.
func NewError(kind error, op, code, detail string) *Error {
	return &Error{Kind: kind, Op: op, Code: code, Detail: detail}
}

// Configuration creates a ConfigurationError.
func Configuration(op, format string, args ...any) *Error {
	return &Error{Kind: ErrConfiguration, Op: op, Code: ErrorMissingParameter, Detail: fmt.Sprintf(format, args...)}
}

// InvalidRequest creates an InvalidRequestError for input rejected before
// any backend call.
func InvalidRequest(op, code, format string, args ...any) *Error {
	return &Error{Kind: ErrInvalidRequest, Op: op, Code: code, Detail: fmt.Sprintf(format, args...)}
}

// Protocol creates a ProtocolError.
func Protocol(op, format string, args ...any) *Error {
	return &Error{Kind: ErrProtocol, Op: op, Code: ErrorMalformedResponse, Detail: fmt.Sprintf(format, args...)}
}

// Remote wraps an upstream failure as a RemoteServiceError, keeping the AWS
// error code when err is an awserr.Error. A nil err returns nil.
func Remote(op string, err error) error {
	if err == nil {
		return nil
	}
	var existing *Error
	if errors.As(err, &existing) {
		return err
	}
	out := &Error{Kind: ErrRemoteService, Op: op, Code: ErrorTransport, Err: err}
	var aerr awserr.Error
	if errors.As(err, &aerr) {
		out.Code = aerr.Code()
		out.Detail = aerr.Message()
	} else {
		out.Detail = err.Error()
	}
	return out
}

// RemoteCode creates a RemoteServiceError for a code reported by a remote
// executor rather than the SDK.
func RemoteCode(op, code, detail string) *Error {
	return &Error{Kind: ErrRemoteService, Op: op, Code: code, Detail: detail}
}

// Code returns the error code carried by err, or "" when none is known.
func Code(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	var aerr awserr.Error
	if errors.As(err, &aerr) {
		return aerr.Code()
	}
	return ""
}

// IsNotFoundCode reports whether code means the target entity is missing.
func IsNotFoundCode(code string) bool {
	return notFoundCodes[code]
}

// KindName returns the kind name of err for wire encoding.
func KindName(err error) string {
	switch {
	case errors.Is(err, ErrConfiguration):
		return ErrConfiguration.Error()
	case errors.Is(err, ErrProtocol):
		return ErrProtocol.Error()
	case errors.Is(err, ErrInvalidRequest):
		return ErrInvalidRequest.Error()
	default:
		return ErrRemoteService.Error()
	}
}

type ErrorMessage struct {
	HTTPCode int
	Message  string
}

// ErrorLookup maps error codes to the HTTP status and message used by the
// admin gateway.
var ErrorLookup = map[string]ErrorMessage{
	ErrorUserNotFound:         {HTTPCode: 404, Message: "The specified user does not exist."},
	ErrorResourceNotFound:     {HTTPCode: 404, Message: "The specified resource does not exist."},
	ErrorUsernameExists:       {HTTPCode: 409, Message: "A user with the specified username already exists in the user pool."},
	ErrorGroupExists:          {HTTPCode: 409, Message: "A group with the specified name already exists in the user pool."},
	ErrorInvalidParameter:     {HTTPCode: 400, Message: "The identity service rejected a parameter."},
	ErrorInvalidPassword:      {HTTPCode: 400, Message: "The password does not satisfy the user pool password policy."},
	ErrorNotAuthorized:        {HTTPCode: 403, Message: "The caller is not authorized to perform this operation."},
	ErrorTooManyRequests:      {HTTPCode: 429, Message: "The identity service is throttling requests."},
	ErrorInternal:             {HTTPCode: 502, Message: "The identity service reported an internal error."},
	ErrorUnexpectedChallenge:  {HTTPCode: 502, Message: "The identity service returned an unexpected authentication challenge."},
	ErrorUnknownRequestType:   {HTTPCode: 400, Message: "The remote executor does not recognise the request type."},
	ErrorValidation:           {HTTPCode: 400, Message: "The request is missing required fields or is malformed."},
	ErrorFunctionError:        {HTTPCode: 502, Message: "The remote function failed."},
	ErrorTransport:            {HTTPCode: 502, Message: "The request could not be delivered to the identity service."},
	ErrorMissingParameter:     {HTTPCode: 500, Message: "The backend is missing required configuration."},
	ErrorUnknownProvider:      {HTTPCode: 500, Message: "The configured provider is not supported."},
	ErrorMalformedResponse:    {HTTPCode: 502, Message: "The remote executor returned a response that could not be understood."},
	ErrorServerInternal:       {HTTPCode: 500, Message: "An internal error has occurred."},
	ErrorUnauthorizedGateway:  {HTTPCode: 401, Message: "Missing or invalid bearer token."},
	ErrorUnexpectedHTTPStatus: {HTTPCode: 502, Message: "The upstream endpoint returned an unexpected status."},
	ErrorUnsupportedOperation: {HTTPCode: 501, Message: "The configured backend does not support this operation."},
}

// Lookup resolves the HTTP status and message for err, falling back on the
// error kind when the code is not in ErrorLookup.
func Lookup(err error) (string, ErrorMessage) {
	code := Code(err)
	if msg, ok := ErrorLookup[code]; ok {
		return code, msg
	}
	switch {
	case errors.Is(err, ErrConfiguration):
		return ErrorMissingParameter, ErrorLookup[ErrorMissingParameter]
	case errors.Is(err, ErrProtocol):
		return ErrorMalformedResponse, ErrorLookup[ErrorMalformedResponse]
	case errors.Is(err, ErrInvalidRequest):
		return ErrorValidation, ErrorLookup[ErrorValidation]
	case errors.Is(err, ErrNotFound):
		return ErrorResourceNotFound, ErrorLookup[ErrorResourceNotFound]
	case errors.Is(err, ErrRemoteService):
		if code == "" {
			code = ErrorTransport
		}
		return code, ErrorMessage{HTTPCode: 502, Message: ErrorLookup[ErrorTransport].Message}
	}
	return ErrorServerInternal, ErrorLookup[ErrorServerInternal]
}
