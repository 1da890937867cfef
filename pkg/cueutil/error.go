// SPDX-License-Identifier: MPL-2.0

package cueutil

import (
	"fmt"
	"strings"

	"cuelang.org/go/cue/errors"
)

type (
	// FieldError is one schema violation, located by the JSON path of the
	// offending value. Path is empty for errors that have no location, such
	// as syntax errors.
	FieldError struct {
		Path    string
		Message string
	}

	// SchemaError collects the violations CUE reported for one file.
	SchemaError struct {
		FilePath string
		Fields   []*FieldError
	}
)

// Error implements the error interface for FieldError.
func (e *FieldError) Error() string {
	if e.Path == "" {
		return e.Message
	}
	return e.Path + ": " + e.Message
}

// Error implements the error interface for SchemaError. A single violation
// reads <file>: <path>: <message>; several are listed one per line.
func (e *SchemaError) Error() string {
	if len(e.Fields) == 1 {
		return fmt.Sprintf("%s: %s", e.FilePath, e.Fields[0])
	}
	lines := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		lines[i] = f.Error()
	}
	return fmt.Sprintf("%s: validation failed:\n  %s", e.FilePath, strings.Join(lines, "\n  "))
}

// Unwrap returns the individual violations.
func (e *SchemaError) Unwrap() []error {
	out := make([]error, len(e.Fields))
	for i, f := range e.Fields {
		out[i] = f
	}
	return out
}

// FormatError turns a CUE error into a *SchemaError whose fields carry
// JSON paths, e.g.
//
//	experiment.cue: stabl.fdr_thresholds[0][2]: invalid value -0.1 (out of bound >0)
//
// Errors CUE does not recognise are wrapped with the file path.
func FormatError(err error, filePath string) error {
	if err == nil {
		return nil
	}
	cueErrors := errors.Errors(err)
	if len(cueErrors) == 0 {
		return fmt.Errorf("%s: %w", filePath, err)
	}

	out := &SchemaError{FilePath: filePath}
	for _, e := range cueErrors {
		path := formatPath(errors.Path(e))
		// CUE sometimes repeats the path at the start of the message.
		msg := strings.TrimSpace(strings.TrimPrefix(strings.TrimPrefix(e.Error(), path), ":"))
		if path == "" {
			msg = e.Error()
		}
		out.Fields = append(out.Fields, &FieldError{Path: path, Message: msg})
	}
	return out
}

// formatPath joins a CUE error path such as ["stabl", "fdr_thresholds", "0"]
// in JSON-path notation: stabl.fdr_thresholds[0].
func formatPath(path []string) string {
	var sb strings.Builder
	for i, part := range path {
		switch {
		case i == 0:
			sb.WriteString(part)
		case part != "" && strings.Trim(part, "0123456789") == "":
			sb.WriteString("[" + part + "]")
		default:
			sb.WriteString("." + part)
		}
	}
	return sb.String()
}

// CheckFileSize verifies that data does not exceed maxSize bytes.
func CheckFileSize(data []byte, maxSize int64, filename string) error {
	if int64(len(data)) > maxSize {
		return fmt.Errorf("%s: file size %d bytes exceeds maximum %d bytes",
			filename, len(data), maxSize)
	}
	return nil
}
