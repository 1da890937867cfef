// SPDX-License-Identifier: MPL-2.0

package cueutil

import (
	"strings"
	"testing"
)

const testSchema = `
#Doc: {
	name:  string & !=""
	count: int & >=1 | *3
	scale: *"lin" | "log"
}
`

type testDoc struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
	Scale string `json:"scale"`
}

func TestParseAndDecode(t *testing.T) {
	t.Parallel()

	t.Run("applies schema defaults", func(t *testing.T) {
		t.Parallel()

		res, err := ParseAndDecode[testDoc]([]byte(testSchema), []byte(`name: "trial"`), "#Doc", WithFilename("doc.cue"))
		if err != nil {
			t.Fatalf("ParseAndDecode() error = %v", err)
		}
		if res.Value.Name != "trial" || res.Value.Count != 3 || res.Value.Scale != "lin" {
			t.Errorf("ParseAndDecode() = %+v", *res.Value)
		}
	})

	t.Run("reports path of violated constraint", func(t *testing.T) {
		t.Parallel()

		_, err := ParseAndDecode[testDoc]([]byte(testSchema), []byte("name: \"x\"\ncount: 0"), "#Doc", WithFilename("doc.cue"))
		if err == nil {
			t.Fatal("expected validation error")
		}
		if !strings.Contains(err.Error(), "doc.cue") || !strings.Contains(err.Error(), "count") {
			t.Errorf("error should name file and field, got: %v", err)
		}
	})

	t.Run("rejects unknown fields", func(t *testing.T) {
		t.Parallel()

		_, err := ParseAndDecode[testDoc]([]byte(testSchema), []byte("name: \"x\"\nbogus: 1"), "#Doc")
		if err == nil {
			t.Fatal("expected closed-struct error")
		}
	})

	t.Run("enforces size limit", func(t *testing.T) {
		t.Parallel()

		_, err := ParseAndDecode[testDoc]([]byte(testSchema), []byte(`name: "abcdef"`), "#Doc", WithMaxFileSize(4))
		if err == nil || !strings.Contains(err.Error(), "exceeds maximum") {
			t.Errorf("expected size error, got %v", err)
		}
	})
}

func TestDecodeGo(t *testing.T) {
	t.Parallel()

	doc := map[string]any{"name": "from-toml", "scale": "log", "count": int64(7)}
	res, err := DecodeGo[testDoc]([]byte(testSchema), []byte("raw"), doc, "#Doc", WithFilename("doc.toml"))
	if err != nil {
		t.Fatalf("DecodeGo() error = %v", err)
	}
	if res.Value.Count != 7 || res.Value.Scale != "log" {
		t.Errorf("DecodeGo() = %+v", *res.Value)
	}

	_, err = DecodeGo[testDoc]([]byte(testSchema), []byte("raw"), map[string]any{"name": "x", "scale": "exp"}, "#Doc", WithFilename("doc.toml"))
	if err == nil || !strings.Contains(err.Error(), "doc.toml") {
		t.Errorf("expected schema error naming doc.toml, got %v", err)
	}
}

func TestValidateAgainst(t *testing.T) {
	t.Parallel()

	if err := ValidateAgainst([]byte(testSchema), []byte(`name: "ok"`), "#Doc"); err != nil {
		t.Errorf("ValidateAgainst() error = %v", err)
	}
	if err := ValidateAgainst([]byte(testSchema), []byte(`name: ""`), "#Doc"); err == nil {
		t.Error("ValidateAgainst() should reject empty name")
	}
}
