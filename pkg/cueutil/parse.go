// SPDX-License-Identifier: MPL-2.0

package cueutil

import (
	"encoding/json"
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

// ParseResult contains the result of a successful parse.
type ParseResult[T any] struct {
	// Value is the decoded Go struct.
	Value *T

	// Unified is the schema-unified CUE value, kept for callers that need
	// to export the normalised document.
	Unified cue.Value
}

// ParseAndDecode compiles CUE source, unifies it with the schema definition at
// schemaPath (e.g. "#Experiment") and decodes the result into T.
func ParseAndDecode[T any](schema, data []byte, schemaPath string, opts ...Option) (*ParseResult[T], error) {
	options := applyOptions(opts)
	if err := CheckFileSize(data, options.maxFileSize, options.filename); err != nil {
		return nil, err
	}

	ctx := cuecontext.New()
	userValue := ctx.CompileBytes(data, cue.Filename(options.filename))
	if userValue.Err() != nil {
		return nil, FormatError(userValue.Err(), options.filename)
	}
	return unifyAndDecode[T](ctx, schema, userValue, schemaPath, options)
}

// DecodeGo validates a Go value (typically a map decoded from TOML, YAML or
// JSON) against the schema definition at schemaPath and decodes it into T.
// The document size limit applies to the raw bytes the caller read.
func DecodeGo[T any](schema []byte, raw []byte, doc any, schemaPath string, opts ...Option) (*ParseResult[T], error) {
	options := applyOptions(opts)
	if err := CheckFileSize(raw, options.maxFileSize, options.filename); err != nil {
		return nil, err
	}

	ctx := cuecontext.New()
	userValue := ctx.Encode(doc)
	if userValue.Err() != nil {
		return nil, FormatError(userValue.Err(), options.filename)
	}
	return unifyAndDecode[T](ctx, schema, userValue, schemaPath, options)
}

// ValidateAgainst compiles data and reports schema violations without decoding.
func ValidateAgainst(schema, data []byte, schemaPath string, opts ...Option) error {
	_, err := ParseAndDecode[map[string]any](schema, data, schemaPath, opts...)
	return err
}

func unifyAndDecode[T any](ctx *cue.Context, schema []byte, userValue cue.Value, schemaPath string, options parseOptions) (*ParseResult[T], error) {
	schemaValue := ctx.CompileBytes(schema)
	if schemaValue.Err() != nil {
		return nil, fmt.Errorf("internal error: failed to compile schema: %w", schemaValue.Err())
	}

	schemaRoot := schemaValue.LookupPath(cue.ParsePath(schemaPath))
	if schemaRoot.Err() != nil {
		return nil, fmt.Errorf("internal error: schema definition %s not found: %w", schemaPath, schemaRoot.Err())
	}

	unified := schemaRoot.Unify(userValue)
	if err := unified.Validate(cue.Concrete(options.concrete)); err != nil {
		return nil, FormatError(err, options.filename)
	}

	raw, err := unified.MarshalJSON()
	if err != nil {
		return nil, FormatError(err, options.filename)
	}
	var result T
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("%s: %w", options.filename, err)
	}

	return &ParseResult[T]{
		Value:   &result,
		Unified: unified,
	}, nil
}
