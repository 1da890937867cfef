// SPDX-License-Identifier: MPL-2.0

// Package logging wires log/slog to a charmbracelet/log handler.
//
// Call sites use slog directly; New and Setup only decide the handler's level,
// formatter and destination.
package logging

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/charmbracelet/log"
)

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"

	FormatText   Format = "text"
	FormatJSON   Format = "json"
	FormatLogfmt Format = "logfmt"

	// Attribute keys shared by every package that logs run progress.
	KeyExperiment = "experiment"
	KeyRun        = "run"
	KeyTrial      = "trial"
	KeyDataset    = "dataset"
	KeyModel      = "model"
	KeyFold       = "fold"
	KeyBlock      = "block"
	KeyError      = "error"
)

var (
	// ErrInvalidLevel is returned when a Level value is not recognized.
	ErrInvalidLevel = errors.New("invalid log level")
	// ErrInvalidFormat is returned when a Format value is not recognized.
	ErrInvalidFormat = errors.New("invalid log format")
)

type (
	// Level is a log level name as it appears in configuration.
	Level string

	// InvalidLevelError is returned when a Level value is not recognized.
	InvalidLevelError struct {
		Value Level
	}

	// Format selects the handler's output encoding.
	Format string

	// InvalidFormatError is returned when a Format value is not recognized.
	InvalidFormatError struct {
		Value Format
	}

	// Options configures New.
	Options struct {
		Level  Level
		Format Format
		// Prefix is printed before every message in text mode.
		Prefix string
		// Timestamps adds a time field to every record.
		Timestamps bool
	}
)

// IsValid returns whether the Level is one of the defined levels.
func (l Level) IsValid() (bool, []error) {
	switch l {
	case LevelDebug, LevelInfo, LevelWarn, LevelError:
		return true, nil
	default:
		return false, []error{&InvalidLevelError{Value: l}}
	}
}

// Error implements the error interface for InvalidLevelError.
func (e *InvalidLevelError) Error() string {
	return fmt.Sprintf("invalid log level %q (valid: debug, info, warn, error)", e.Value)
}

// Unwrap returns ErrInvalidLevel for errors.Is() compatibility.
func (e *InvalidLevelError) Unwrap() error { return ErrInvalidLevel }

// IsValid returns whether the Format is one of the defined formats.
func (f Format) IsValid() (bool, []error) {
	switch f {
	case FormatText, FormatJSON, FormatLogfmt:
		return true, nil
	default:
		return false, []error{&InvalidFormatError{Value: f}}
	}
}

// Error implements the error interface for InvalidFormatError.
func (e *InvalidFormatError) Error() string {
	return fmt.Sprintf("invalid log format %q (valid: text, json, logfmt)", e.Value)
}

// Unwrap returns ErrInvalidFormat for errors.Is() compatibility.
func (e *InvalidFormatError) Unwrap() error { return ErrInvalidFormat }

// New returns a slog.Logger writing to w through a charmbracelet/log handler.
// Empty option values fall back to info and text. Debug level also reports
// the caller.
func New(w io.Writer, opts Options) (*slog.Logger, error) {
	if opts.Level == "" {
		opts.Level = LevelInfo
	}
	if opts.Format == "" {
		opts.Format = FormatText
	}
	if valid, errs := opts.Level.IsValid(); !valid {
		return nil, errs[0]
	}
	if valid, errs := opts.Format.IsValid(); !valid {
		return nil, errs[0]
	}

	level, err := log.ParseLevel(string(opts.Level))
	if err != nil {
		return nil, &InvalidLevelError{Value: opts.Level}
	}

	formatter := log.TextFormatter
	switch opts.Format {
	case FormatJSON:
		formatter = log.JSONFormatter
	case FormatLogfmt:
		formatter = log.LogfmtFormatter
	}

	handler := log.NewWithOptions(w, log.Options{
		Level:           level,
		Formatter:       formatter,
		Prefix:          opts.Prefix,
		ReportTimestamp: opts.Timestamps,
		TimeFormat:      time.RFC3339,
		ReportCaller:    opts.Level == LevelDebug,
	})
	return slog.New(handler), nil
}

// Setup builds a logger with New and installs it as the slog default.
func Setup(w io.Writer, opts Options) (*slog.Logger, error) {
	logger, err := New(w, opts)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)
	return logger, nil
}

// Discard returns a logger that drops every record.
func Discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
