package tools

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var echoSchema = []byte(`{
	"type": "object",
	"properties": {"text": {"type": "string"}},
	"required": ["text"]
}`)

func echoHandler(ctx context.Context, args json.RawMessage, callCtx CallContext) (Result, error) {
	var in struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(args, &in); err != nil {
		return Result{}, err
	}
	return Result{Value: in.Text}, nil
}

func TestDispatchUnknownToolReturnsErrorResult(t *testing.T) {
	c := NewCatalog()
	result, err := c.Dispatch(context.Background(), "nope", nil, CallContext{})
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestDispatchValidatesArgsAgainstSchema(t *testing.T) {
	c := NewCatalog()
	require.NoError(t, c.Register(Definition{Name: "echo"}, echoSchema, echoHandler))

	result, err := c.Dispatch(context.Background(), "echo", json.RawMessage(`{}`), CallContext{})
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestDispatchInvokesHandlerOnValidArgs(t *testing.T) {
	c := NewCatalog()
	require.NoError(t, c.Register(Definition{Name: "echo"}, echoSchema, echoHandler))

	result, err := c.Dispatch(context.Background(), "echo", json.RawMessage(`{"text":"hi"}`), CallContext{})
	require.NoError(t, err)
	assert.False(t, result.IsError)
	assert.Equal(t, "hi", result.Value)
}

func TestDispatchSkipsValidationWhenSchemaNil(t *testing.T) {
	c := NewCatalog()
	require.NoError(t, c.Register(Definition{Name: "web_search"}, nil, echoHandler))

	result, err := c.Dispatch(context.Background(), "web_search", json.RawMessage(`{"text":"hi"}`), CallContext{})
	require.NoError(t, err)
	assert.False(t, result.IsError)
}

func TestDispatchRejectsInvalidJSONArgs(t *testing.T) {
	c := NewCatalog()
	require.NoError(t, c.Register(Definition{Name: "echo"}, echoSchema, echoHandler))

	result, err := c.Dispatch(context.Background(), "echo", json.RawMessage(`not json`), CallContext{})
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestDefinitionsReturnsAllRegisteredTools(t *testing.T) {
	c := NewCatalog()
	require.NoError(t, c.Register(Definition{Name: "a"}, nil, echoHandler))
	require.NoError(t, c.Register(Definition{Name: "b"}, nil, echoHandler))

	defs := c.Definitions()
	assert.Len(t, defs, 2)
}
