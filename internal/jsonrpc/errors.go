package jsonrpc

import "fmt"

// ErrorCode is a JSON-RPC 2.0 error code.
type ErrorCode int

const (
	// ErrorCodeParseError indicates invalid JSON was received by the server.
	ErrorCodeParseError ErrorCode = -32700
	// ErrorCodeInvalidRequest indicates the JSON sent is not a valid Request object.
	ErrorCodeInvalidRequest ErrorCode = -32600
	// ErrorCodeMethodNotFound indicates the method does not exist / is not available.
	ErrorCodeMethodNotFound ErrorCode = -32601
	// ErrorCodeInvalidParams indicates invalid method parameters.
	ErrorCodeInvalidParams ErrorCode = -32602
	// ErrorCodeInternalError indicates an internal JSON-RPC error.
	ErrorCodeInternalError ErrorCode = -32603
	// ErrorCodeSessionNotReady indicates a request arrived before negotiation.
	ErrorCodeSessionNotReady ErrorCode = -32002
	// ErrorCodeIncompatible indicates capability negotiation failed.
	ErrorCodeIncompatible ErrorCode = -32003
	// ErrorCodeRequestCancelled indicates the request was cancelled before completing.
	ErrorCodeRequestCancelled ErrorCode = -32800
)

// ErrorKind is the symbolic failure tag carried in every error object.
type ErrorKind string

const (
	KindMalformedMessage         ErrorKind = "MalformedMessage"
	KindUnknownMessageShape      ErrorKind = "UnknownMessageShape"
	KindInvalidRequest           ErrorKind = "InvalidRequest"
	KindSessionNotReady          ErrorKind = "SessionNotReady"
	KindMethodNotFound           ErrorKind = "MethodNotFound"
	KindInvalidParams            ErrorKind = "InvalidParams"
	KindIncompatibleCapabilities ErrorKind = "IncompatibleCapabilities"
	KindFailed                   ErrorKind = "Failed"
	KindCancelled                ErrorKind = "Cancelled"
	KindUnexpectedResponse       ErrorKind = "UnexpectedResponse"
)

// Code maps a kind onto its JSON-RPC numeric code.
func (k ErrorKind) Code() ErrorCode {
	switch k {
	case KindMalformedMessage:
		return ErrorCodeParseError
	case KindUnknownMessageShape, KindInvalidRequest, KindUnexpectedResponse:
		return ErrorCodeInvalidRequest
	case KindSessionNotReady:
		return ErrorCodeSessionNotReady
	case KindMethodNotFound:
		return ErrorCodeMethodNotFound
	case KindInvalidParams:
		return ErrorCodeInvalidParams
	case KindIncompatibleCapabilities:
		return ErrorCodeIncompatible
	case KindCancelled:
		return ErrorCodeRequestCancelled
	default:
		return ErrorCodeInternalError
	}
}

// Error is a JSON-RPC error object extended with a symbolic kind.
type Error struct {
	Code    ErrorCode `json:"code"`
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
	Data    any       `json:"data,omitempty"`
}

// NewError builds an error object for kind.
func NewError(kind ErrorKind, message string, data any) *Error {
	return &Error{Code: kind.Code(), Kind: kind, Message: message, Data: data}
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// DecodeError is the typed failure produced by Decode. ID is set when the
// offending message carried a recoverable correlation ID.
type DecodeError struct {
	Kind   ErrorKind
	ID     *RequestID
	Reason string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
}

// AsError converts the decode failure into a wire error object.
func (e *DecodeError) AsError() *Error {
	return NewError(e.Kind, e.Reason, nil)
}
