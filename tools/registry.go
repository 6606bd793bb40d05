package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ggoodman/mcp-dispatch/mcp"
	"github.com/google/jsonschema-go/jsonschema"
)

var (
	ErrDuplicateName = errors.New("duplicate tool name")
	ErrNotFound      = errors.New("tool not found")
	ErrFrozen        = errors.New("registry is frozen")
	ErrInvalidSpec   = errors.New("invalid tool spec")
	ErrInvalidCursor = errors.New("invalid cursor")
)

// Handler executes one tool invocation. The returned value is marshalled as
// the response result.
type Handler func(ctx context.Context, req *Request) (any, error)

// Request carries the input of a single invocation.
type Request struct {
	Tool          string
	SessionID     string
	CorrelationID string
	InvocationID  string
	Params        json.RawMessage
}

// ToolSpec declares a tool. Timeout overrides the scheduler default when
// positive.
type ToolSpec struct {
	Name         string
	Description  string
	InputSchema  *jsonschema.Schema
	OutputSchema *jsonschema.Schema
	Handler      Handler
	Timeout      time.Duration
}

// Tool is a registered ToolSpec with its schemas resolved.
type Tool struct {
	spec   ToolSpec
	input  *jsonschema.Resolved
	output *jsonschema.Resolved
}

// Spec returns the ToolSpec the tool was registered with.
func (t *Tool) Spec() ToolSpec { return t.spec }

// Name returns the tool name.
func (t *Tool) Name() string { return t.spec.Name }

// Timeout returns the tool's own timeout, or zero if it defers to the scheduler.
func (t *Tool) Timeout() time.Duration { return t.spec.Timeout }

// Descriptor returns the listing form of the tool.
func (t *Tool) Descriptor() mcp.Tool {
	return mcp.Tool{
		Name:         t.spec.Name,
		Description:  t.spec.Description,
		InputSchema:  t.spec.InputSchema,
		OutputSchema: t.spec.OutputSchema,
	}
}

// Call invokes the handler.
func (t *Tool) Call(ctx context.Context, req *Request) (any, error) {
	return t.spec.Handler(ctx, req)
}

// ValidateParams checks params against the input schema. Absent params are
// validated as an empty object.
func (t *Tool) ValidateParams(params json.RawMessage) error {
	if t.input == nil {
		return nil
	}
	var instance any = map[string]any{}
	if len(params) > 0 {
		if err := json.Unmarshal(params, &instance); err != nil {
			return fmt.Errorf("decode params: %w", err)
		}
	}
	return t.input.Validate(instance)
}

// EncodeResult marshals a handler result and checks it against the output
// schema when one is declared.
func (t *Tool) EncodeResult(v any) (json.RawMessage, error) {
	var b []byte
	switch r := v.(type) {
	case json.RawMessage:
		b = r
	default:
		enc, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encode result: %w", err)
		}
		b = enc
	}
	if len(b) == 0 {
		b = json.RawMessage("null")
	}
	if t.output == nil {
		return b, nil
	}
	var instance any
	if err := json.Unmarshal(b, &instance); err != nil {
		return nil, fmt.Errorf("decode result: %w", err)
	}
	if err := t.output.Validate(instance); err != nil {
		return nil, fmt.Errorf("result does not match output schema: %w", err)
	}
	return b, nil
}

// Registry maps tool names to tools. It is mutable until Freeze.
type Registry struct {
	mu     sync.RWMutex
	frozen atomic.Bool
	tools  map[string]*Tool
	order  []*Tool
}

// NewRegistry returns an empty, unfrozen registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]*Tool)}
}

// Register adds spec. It fails with ErrDuplicateName if the name is taken,
// ErrFrozen after Freeze, and ErrInvalidSpec for unusable specs.
func (r *Registry) Register(spec ToolSpec) error {
	if spec.Name == "" {
		return fmt.Errorf("%w: missing name", ErrInvalidSpec)
	}
	if mcp.IsBuiltin(spec.Name) {
		return fmt.Errorf("%w: %q is a reserved method name", ErrInvalidSpec, spec.Name)
	}
	if spec.Handler == nil {
		return fmt.Errorf("%w: tool %q has no handler", ErrInvalidSpec, spec.Name)
	}

	tool := &Tool{spec: spec}
	if spec.InputSchema != nil {
		rs, err := spec.InputSchema.Resolve(nil)
		if err != nil {
			return fmt.Errorf("%w: tool %q input schema: %v", ErrInvalidSpec, spec.Name, err)
		}
		tool.input = rs
	}
	if spec.OutputSchema != nil {
		rs, err := spec.OutputSchema.Resolve(nil)
		if err != nil {
			return fmt.Errorf("%w: tool %q output schema: %v", ErrInvalidSpec, spec.Name, err)
		}
		tool.output = rs
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frozen.Load() {
		return ErrFrozen
	}
	if _, exists := r.tools[spec.Name]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateName, spec.Name)
	}
	r.tools[spec.Name] = tool
	r.order = append(r.order, tool)
	return nil
}

// Freeze ends the registration phase. It is idempotent.
func (r *Registry) Freeze() {
	r.mu.Lock()
	r.frozen.Store(true)
	r.mu.Unlock()
}

// Frozen reports whether Freeze has been called.
func (r *Registry) Frozen() bool { return r.frozen.Load() }

// Lookup returns the tool registered under name or ErrNotFound.
func (r *Registry) Lookup(name string) (*Tool, error) {
	var (
		t  *Tool
		ok bool
	)
	if r.frozen.Load() {
		t, ok = r.tools[name]
	} else {
		r.mu.RLock()
		t, ok = r.tools[name]
		r.mu.RUnlock()
	}
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	return t, nil
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// List returns up to pageSize tools in registration order starting at
// cursor, plus the cursor of the next page ("" on the last page).
func (r *Registry) List(cursor string, pageSize int) ([]*Tool, string, error) {
	r.mu.RLock()
	all := r.order
	r.mu.RUnlock()

	start := 0
	if cursor != "" {
		n, err := strconv.Atoi(cursor)
		if err != nil || n < 0 || n > len(all) {
			return nil, "", fmt.Errorf("%w: %q", ErrInvalidCursor, cursor)
		}
		start = n
	}
	if pageSize <= 0 {
		pageSize = len(all)
	}
	end := min(start+pageSize, len(all))

	items := make([]*Tool, end-start)
	copy(items, all[start:end])
	if end < len(all) {
		return items, strconv.Itoa(end), nil
	}
	return items, "", nil
}
