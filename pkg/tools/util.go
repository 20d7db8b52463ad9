package tools

import (
	"bytes"
	"io"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/codeready-toolchain/agentcore/pkg/apperr"
)

func bytesReader(b []byte) io.Reader {
	return bytes.NewReader(b)
}

// validateAgainstSchema compiles schemaBytes (a JSON-Schema document) on the
// fly and validates value against it. Used for recipe parameter schemas,
// which are data (loaded from the recipe catalog) rather than compiled once
// at registration time like the core tool schemas.
func validateAgainstSchema(schemaBytes []byte, value any) error {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("recipe-params.json", bytesReader(schemaBytes)); err != nil {
		return apperr.Wrap(apperr.Internal, err, "compile recipe parameter schema")
	}
	schema, err := compiler.Compile("recipe-params.json")
	if err != nil {
		return apperr.Wrap(apperr.Internal, err, "compile recipe parameter schema")
	}
	if err := schema.Validate(value); err != nil {
		return apperr.Wrap(apperr.Validation, err, "recipe parameters invalid")
	}
	return nil
}
