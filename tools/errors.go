package tools

import "fmt"

// ToolError is a handler failure whose message is safe to show the client.
// Any other error returned by a handler is reported as an opaque internal
// error.
type ToolError struct {
	Message string
	Data    any
}

func (e *ToolError) Error() string { return e.Message }

// Errorf returns a *ToolError with a formatted message.
func Errorf(format string, a ...any) error {
	return &ToolError{Message: fmt.Sprintf(format, a...)}
}
