package jsonrpc

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Decode parses a single framed message. It fails with a *DecodeError of kind
// KindMalformedMessage when data is not well-formed JSON and
// KindUnknownMessageShape when the JSON does not describe a request,
// notification or response.
func Decode(data []byte) (*AnyMessage, error) {
	data = bytes.TrimSpace(data)
	if !json.Valid(data) {
		return nil, &DecodeError{Kind: KindMalformedMessage, Reason: "invalid JSON"}
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil || fields == nil {
		return nil, shapeError(nil, "message must be a JSON object")
	}

	msg := &AnyMessage{JSONRPCVersion: ProtocolVersion}

	// Recover the ID first so later shape errors can still be correlated.
	rawID, hasID := fields["id"]
	if hasID && !isNull(rawID) {
		var id RequestID
		if err := json.Unmarshal(rawID, &id); err != nil {
			return nil, shapeError(nil, err.Error())
		}
		msg.ID = &id
	}

	if raw, ok := fields["jsonrpc"]; ok {
		var v string
		if err := json.Unmarshal(raw, &v); err != nil || v != ProtocolVersion {
			return nil, shapeError(msg.ID, fmt.Sprintf("invalid JSON-RPC version: expected %q", ProtocolVersion))
		}
	}

	_, hasMethod := fields["method"]
	rawResult, hasResult := fields["result"]
	rawError, hasError := fields["error"]

	if hasMethod {
		if err := json.Unmarshal(fields["method"], &msg.Method); err != nil || msg.Method == "" {
			return nil, shapeError(msg.ID, "method must be a non-empty string")
		}
		if hasResult || hasError {
			return nil, shapeError(msg.ID, "request message cannot have result or error fields")
		}
		if raw, ok := fields["params"]; ok && !isNull(raw) {
			if c := firstByte(raw); c != '{' && c != '[' {
				return nil, shapeError(msg.ID, "params must be an object or array")
			}
			msg.Params = raw
		}
		return msg, nil
	}

	// An explicit null id is allowed only on error responses that could not be
	// correlated.
	uncorrelated := hasID && hasError && !hasResult
	if msg.ID.IsNil() && !uncorrelated {
		if hasResult || hasError {
			return nil, shapeError(nil, "response message requires an id")
		}
		return nil, shapeError(nil, "message has neither method nor result/error")
	}
	if hasResult && hasError {
		return nil, shapeError(msg.ID, "response message cannot have both result and error fields")
	}
	if !hasResult && !hasError {
		return nil, shapeError(msg.ID, "response message must have either result or error field")
	}
	if hasResult {
		msg.Result = rawResult
	}
	if hasError {
		var e Error
		if err := json.Unmarshal(rawError, &e); err != nil || isNull(rawError) {
			return nil, shapeError(msg.ID, "error must be an object")
		}
		msg.Error = &e
	}
	return msg, nil
}

// Encode serializes a message. It accepts *Request, *Response, *AnyMessage or
// any other JSON-marshalable value and stamps the protocol version on the
// known message types.
func Encode(v any) (Message, error) {
	switch m := v.(type) {
	case *Request:
		m.JSONRPCVersion = ProtocolVersion
	case *Response:
		m.JSONRPCVersion = ProtocolVersion
	case *AnyMessage:
		m.JSONRPCVersion = ProtocolVersion
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode message: %w", err)
	}
	return b, nil
}

func shapeError(id *RequestID, reason string) *DecodeError {
	return &DecodeError{Kind: KindUnknownMessageShape, ID: id, Reason: reason}
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

func firstByte(raw json.RawMessage) byte {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return 0
	}
	return raw[0]
}
