package jsonrpc

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeVariants(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		want   MessageType
		method string
		id     string
	}{
		{name: "request with integer id", input: `{"jsonrpc":"2.0","id":1,"method":"echo","params":{"msg":"hi"}}`, want: TypeRequest, method: "echo", id: "1"},
		{name: "request with string id", input: `{"id":"abc","method":"echo"}`, want: TypeRequest, method: "echo", id: "abc"},
		{name: "notification", input: `{"jsonrpc":"2.0","method":"cancel","params":{"id":3}}`, want: TypeNotification, method: "cancel"},
		{name: "null id is a notification", input: `{"id":null,"method":"cancel"}`, want: TypeNotification, method: "cancel"},
		{name: "result response", input: `{"jsonrpc":"2.0","id":7,"result":{"ok":true}}`, want: TypeResponse, id: "7"},
		{name: "null result response", input: `{"id":7,"result":null}`, want: TypeResponse, id: "7"},
		{name: "error response", input: `{"id":"x","error":{"code":-32601,"kind":"MethodNotFound","message":"nope"}}`, want: TypeResponse, id: "x"},
		{name: "uncorrelated error response", input: `{"jsonrpc":"2.0","id":null,"error":{"code":-32700,"kind":"MalformedMessage","message":"invalid JSON"}}`, want: TypeResponse},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := Decode([]byte(tt.input))
			require.NoError(t, err)
			assert.Equal(t, tt.want, msg.Type())
			assert.Equal(t, tt.method, msg.Method)
			assert.Equal(t, tt.id, msg.ID.String())
		})
	}
}

func TestDecodeMalformed(t *testing.T) {
	for _, input := range []string{``, `{`, `{"id":1,"method":"x"`, `not json`, `{"id":1}}`} {
		_, err := Decode([]byte(input))
		var de *DecodeError
		require.ErrorAs(t, err, &de, "input %q", input)
		assert.Equal(t, KindMalformedMessage, de.Kind, "input %q", input)
	}
}

func TestDecodeUnknownShape(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		wantID string
	}{
		{name: "array", input: `[1,2,3]`},
		{name: "scalar", input: `42`},
		{name: "empty object", input: `{}`},
		{name: "method not a string", input: `{"id":1,"method":5}`, wantID: "1"},
		{name: "empty method", input: `{"id":2,"method":""}`, wantID: "2"},
		{name: "fractional id", input: `{"id":1.5,"method":"echo"}`},
		{name: "boolean id", input: `{"id":true,"method":"echo"}`},
		{name: "response without id", input: `{"result":{}}`},
		{name: "error without id", input: `{"error":{"code":1,"message":"x"}}`},
		{name: "null id result", input: `{"id":null,"result":{}}`},
		{name: "result and error", input: `{"id":3,"result":{},"error":{"code":1,"message":"x"}}`, wantID: "3"},
		{name: "method with result", input: `{"id":4,"method":"echo","result":{}}`, wantID: "4"},
		{name: "wrong version", input: `{"jsonrpc":"1.0","id":5,"method":"echo"}`, wantID: "5"},
		{name: "scalar params", input: `{"id":6,"method":"echo","params":"hi"}`, wantID: "6"},
		{name: "error not an object", input: `{"id":8,"error":"boom"}`, wantID: "8"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.input))
			var de *DecodeError
			require.True(t, errors.As(err, &de))
			assert.Equal(t, KindUnknownMessageShape, de.Kind)
			assert.Equal(t, tt.wantID, de.ID.String())
			assert.Equal(t, ErrorCodeInvalidRequest, de.AsError().Code)
		})
	}
}

func TestRequestIDTypesAreDistinct(t *testing.T) {
	a, err := Decode([]byte(`{"id":1,"method":"m"}`))
	require.NoError(t, err)
	b, err := Decode([]byte(`{"id":"1","method":"m"}`))
	require.NoError(t, err)

	assert.Equal(t, a.ID.String(), b.ID.String())
	assert.NotEqual(t, a.ID.Key(), b.ID.Key())
	assert.False(t, a.ID.Equal(b.ID))
	assert.True(t, a.ID.Equal(NewRequestID(1)))
}

func TestEncodeResponse(t *testing.T) {
	res, err := NewResultResponse(NewRequestID(1), json.RawMessage(`{"msg":"hi"}`))
	require.NoError(t, err)

	b, err := Encode(res)
	require.NoError(t, err)
	assert.JSONEq(t, `{"jsonrpc":"2.0","id":1,"result":{"msg":"hi"}}`, string(b))

	errRes := NewErrorResponse(nil, KindMalformedMessage, "invalid JSON", nil)
	b, err = Encode(errRes)
	require.NoError(t, err)
	assert.JSONEq(t, `{"jsonrpc":"2.0","id":null,"error":{"code":-32700,"kind":"MalformedMessage","message":"invalid JSON"}}`, string(b))
}

func TestEncodeDecodeRequest(t *testing.T) {
	b, err := Encode(&Request{Method: "echo", ID: NewRequestID("r-1"), Params: json.RawMessage(`{"a":1}`)})
	require.NoError(t, err)

	msg, err := Decode(b)
	require.NoError(t, err)
	req := msg.AsRequest()
	require.NotNil(t, req)
	assert.Equal(t, "echo", req.Method)
	assert.Equal(t, "r-1", req.ID.String())
	assert.JSONEq(t, `{"a":1}`, string(req.Params))
	assert.Nil(t, msg.AsResponse())
}

func TestErrorKindCodes(t *testing.T) {
	assert.Equal(t, ErrorCodeMethodNotFound, KindMethodNotFound.Code())
	assert.Equal(t, ErrorCodeInvalidParams, KindInvalidParams.Code())
	assert.Equal(t, ErrorCodeRequestCancelled, KindCancelled.Code())
	assert.Equal(t, ErrorCodeInternalError, KindFailed.Code())
	assert.Equal(t, ErrorCodeSessionNotReady, KindSessionNotReady.Code())
}

func TestUncorrelatedErrorRoundTrip(t *testing.T) {
	b, err := Encode(NewErrorResponse(nil, KindMalformedMessage, "frame exceeds maximum size", nil))
	require.NoError(t, err)

	msg, err := Decode(b)
	require.NoError(t, err)
	assert.Equal(t, TypeResponse, msg.Type())
	assert.True(t, msg.ID.IsNil())
	require.NotNil(t, msg.Error)
	assert.Equal(t, KindMalformedMessage, msg.Error.Kind)
	assert.Equal(t, "frame exceeds maximum size", msg.Error.Message)
}
