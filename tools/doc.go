// Package tools holds the tool registry consulted by the dispatcher.
//
// A Registry is populated during startup with ToolSpec values and then frozen
// before any session accepts traffic. After Freeze the registry is read-only:
// Register fails with ErrFrozen and Lookup runs without taking locks.
//
// Names are unique. Registering a second spec under an existing name fails
// with ErrDuplicateName and leaves the first spec in place; there is no
// last-writer-wins.
//
// Input and output schemas are JSON Schema documents
// (github.com/google/jsonschema-go). They are resolved once at registration
// so per-call validation does not reparse them. NewTool derives both schemas
// from Go types using github.com/invopop/jsonschema reflection:
//
//	type EchoArgs struct {
//	    Msg string `json:"msg" jsonschema:"description=Text to echo"`
//	}
//	type EchoResult struct {
//	    Msg string `json:"msg"`
//	}
//
//	reg := tools.NewRegistry()
//	err := reg.Register(tools.NewTool("echo", func(ctx context.Context, req *tools.Request, a EchoArgs) (EchoResult, error) {
//	    return EchoResult{Msg: a.Msg}, nil
//	}, tools.WithDescription("Echo a message back")))
//	reg.Freeze()
//
// Handlers must observe ctx: it is cancelled when the client cancels the
// request, the tool's timeout elapses, or the session closes.
package tools
