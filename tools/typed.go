package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
	invopop "github.com/invopop/jsonschema"
)

// ToolOption configures NewTool.
type ToolOption func(*toolConfig)

type toolConfig struct {
	description               string
	timeout                   time.Duration
	allowAdditionalProperties bool // default false (strict)
}

// WithDescription sets the tool description used in listings.
func WithDescription(desc string) ToolOption {
	return func(c *toolConfig) { c.description = desc }
}

// WithTimeout sets a per-tool timeout that overrides the scheduler default.
func WithTimeout(d time.Duration) ToolOption {
	return func(c *toolConfig) { c.timeout = d }
}

// WithAllowAdditionalProperties controls whether unknown fields are allowed.
// When false (default), the generated schema sets additionalProperties=false
// and decoding rejects unknown fields.
func WithAllowAdditionalProperties(allow bool) ToolOption {
	return func(c *toolConfig) { c.allowAdditionalProperties = allow }
}

// NewTool builds a ToolSpec from a typed handler. The input schema is
// reflected from A and the output schema from O; an output type that does not
// reflect to an object schema is left undeclared.
func NewTool[A, O any](name string, fn func(ctx context.Context, req *Request, args A) (O, error), opts ...ToolOption) ToolSpec {
	cfg := toolConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}

	handler := func(ctx context.Context, req *Request) (any, error) {
		var a A
		if len(req.Params) > 0 {
			dec := json.NewDecoder(bytes.NewReader(req.Params))
			if !cfg.allowAdditionalProperties {
				dec.DisallowUnknownFields()
			}
			if err := dec.Decode(&a); err != nil {
				return nil, Errorf("invalid arguments: %v", err)
			}
		}
		return fn(ctx, req, a)
	}

	return ToolSpec{
		Name:         name,
		Description:  cfg.description,
		InputSchema:  reflectSchema[A](cfg.allowAdditionalProperties, true),
		OutputSchema: reflectSchema[O](true, false),
		Handler:      handler,
		Timeout:      cfg.timeout,
	}
}

// reflectSchema reflects T with invopop/jsonschema and re-reads the document
// as a google/jsonschema-go schema. Types other than named structs yield an
// empty object schema when forceObject is set and nil otherwise.
func reflectSchema[T any](allowAdditional, forceObject bool) *jsonschema.Schema {
	undeclared := func() *jsonschema.Schema {
		if !forceObject {
			return nil
		}
		return ObjectSchema(nil, nil, allowAdditional)
	}

	// ExpandedStruct only works for named struct types.
	t := reflect.TypeFor[T]()
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() == reflect.Map && forceObject {
		return ObjectSchema(nil, nil, true)
	}
	if t.Kind() != reflect.Struct || t.Name() == "" {
		return undeclared()
	}

	r := &invopop.Reflector{
		DoNotReference:            true, // inline defs
		ExpandedStruct:            true, // put struct at root
		Anonymous:                 true,
		AllowAdditionalProperties: allowAdditional,
	}
	s := r.ReflectFromType(t)
	if s == nil || s.Type != "object" {
		return undeclared()
	}
	s.Version = ""

	b, err := json.Marshal(s)
	if err != nil {
		panic(fmt.Sprintf("tools: marshal reflected schema for %T: %v", *new(T), err))
	}
	var out jsonschema.Schema
	if err := json.Unmarshal(b, &out); err != nil {
		panic(fmt.Sprintf("tools: convert reflected schema for %T: %v", *new(T), err))
	}
	return &out
}

// ObjectSchema builds a flat object schema from property schemas.
func ObjectSchema(props map[string]*jsonschema.Schema, required []string, allowAdditional bool) *jsonschema.Schema {
	if props == nil {
		props = map[string]*jsonschema.Schema{}
	}
	s := &jsonschema.Schema{
		Type:       "object",
		Properties: props,
		Required:   required,
	}
	if !allowAdditional {
		s.AdditionalProperties = &jsonschema.Schema{Not: &jsonschema.Schema{}}
	}
	return s
}
