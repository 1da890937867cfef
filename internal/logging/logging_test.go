// SPDX-License-Identifier: MPL-2.0

package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestLevel_IsValid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		level Level
		want  bool
	}{
		{LevelDebug, true},
		{LevelInfo, true},
		{LevelWarn, true},
		{LevelError, true},
		{"trace", false},
		{"INFO", false},
	}
	for _, tt := range tests {
		got, errs := tt.level.IsValid()
		if got != tt.want {
			t.Errorf("Level(%q).IsValid() = %v, want %v", tt.level, got, tt.want)
		}
		if !tt.want && (len(errs) == 0 || !errors.Is(errs[0], ErrInvalidLevel)) {
			t.Errorf("Level(%q).IsValid() errors = %v, want ErrInvalidLevel", tt.level, errs)
		}
	}
}

func TestFormat_IsValid(t *testing.T) {
	t.Parallel()

	for _, f := range []Format{FormatText, FormatJSON, FormatLogfmt} {
		if ok, errs := f.IsValid(); !ok {
			t.Errorf("Format(%q).IsValid() = false, %v", f, errs)
		}
	}
	if _, errs := Format("xml").IsValid(); len(errs) == 0 || !errors.Is(errs[0], ErrInvalidFormat) {
		t.Errorf("Format(xml).IsValid() errors = %v, want ErrInvalidFormat", errs)
	}
}

func TestNew_JSON(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger, err := New(&buf, Options{Level: LevelInfo, Format: FormatJSON})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	logger.Debug("hidden")
	logger.Info("fold done", KeyDataset, "immune", KeyFold, 3)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("got %d lines, want 1 (debug filtered): %q", len(lines), buf.String())
	}
	var record map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &record); err != nil {
		t.Fatalf("output is not JSON: %v (%q)", err, lines[0])
	}
	if record["msg"] != "fold done" {
		t.Errorf("msg = %v, want fold done", record["msg"])
	}
	if record[KeyDataset] != "immune" {
		t.Errorf("%s = %v, want immune", KeyDataset, record[KeyDataset])
	}
}

func TestNew_Defaults(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger, err := New(&buf, Options{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	logger.Info("hello", KeyModel, "stabl_lasso")
	if !strings.Contains(buf.String(), "hello") || !strings.Contains(buf.String(), "stabl_lasso") {
		t.Errorf("text output = %q, want message and attribute", buf.String())
	}
}

func TestNew_InvalidOptions(t *testing.T) {
	t.Parallel()

	if _, err := New(&bytes.Buffer{}, Options{Level: "loud"}); !errors.Is(err, ErrInvalidLevel) {
		t.Errorf("New(level=loud) error = %v, want ErrInvalidLevel", err)
	}
	if _, err := New(&bytes.Buffer{}, Options{Format: "xml"}); !errors.Is(err, ErrInvalidFormat) {
		t.Errorf("New(format=xml) error = %v, want ErrInvalidFormat", err)
	}
}
