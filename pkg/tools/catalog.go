// Package tools implements the Tool Catalog & Dispatch component (E):
// named tool handlers with JSON-Schema contracts, dispatched by name the
// same way the teacher's pkg/mcp router maps a tool name to a handler.
package tools

import (
	"context"
	"encoding/json"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/codeready-toolchain/agentcore/pkg/models"
)

// Definition is a tool's {name, description, input_schema} declaration in
// the JSON-Schema dialect the LLM provider accepts.
type Definition struct {
	Name        string
	Description string
	InputSchema map[string]any
}

// CallContext is the context passed to every handler alongside its args.
type CallContext struct {
	Basket    string
	Workspace string
	User      string
	Ticket    string
	AgentKind models.AgentKind
	SessionID string
	UserToken string
}

// Result is what a handler returns; IsError marks a tool-result block as an error for the LLM.
type Result struct {
	Value   any
	IsError bool
}

// Handler executes one tool call.
type Handler func(ctx context.Context, args json.RawMessage, callCtx CallContext) (Result, error)

// entry pairs a Definition with its compiled schema (nil if the tool takes
// provider-declared args only, e.g. web_search) and Handler.
type entry struct {
	def     Definition
	schema  *jsonschema.Schema
	handler Handler
}

// Catalog is the dispatcher: name -> handler, mirroring pkg/mcp/router.go's
// name-to-handler map in the teacher.
type Catalog struct {
	entries map[string]*entry
}

// NewCatalog builds an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{entries: make(map[string]*entry)}
}

// Register adds a tool. schemaJSON may be nil for tools with no local
// validation (declared for LLM awareness only, e.g. web_search).
func (c *Catalog) Register(def Definition, schemaJSON []byte, handler Handler) error {
	e := &entry{def: def, handler: handler}
	if schemaJSON != nil {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource(def.Name+".json", bytesReader(schemaJSON)); err != nil {
			return err
		}
		schema, err := compiler.Compile(def.Name + ".json")
		if err != nil {
			return err
		}
		e.schema = schema
	}
	c.entries[def.Name] = e
	return nil
}

// Definitions returns every registered tool's declaration, for the runtime
// to send to the LLM provider.
func (c *Catalog) Definitions() []Definition {
	defs := make([]Definition, 0, len(c.entries))
	for _, e := range c.entries {
		defs = append(defs, e.def)
	}
	return defs
}

// Dispatch validates args against the tool's schema (if any) and invokes its handler.
func (c *Catalog) Dispatch(ctx context.Context, name string, args json.RawMessage, callCtx CallContext) (Result, error) {
	e, ok := c.entries[name]
	if !ok {
		return Result{IsError: true, Value: "unknown tool: " + name}, nil
	}

	if e.schema != nil {
		var decoded any
		if err := json.Unmarshal(args, &decoded); err != nil {
			return Result{IsError: true, Value: "invalid JSON arguments: " + err.Error()}, nil
		}
		if err := e.schema.Validate(decoded); err != nil {
			return Result{IsError: true, Value: "argument validation failed: " + err.Error()}, nil
		}
	}

	return e.handler(ctx, args, callCtx)
}
