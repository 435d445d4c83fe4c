package jsonschema

import (
	"strings"
	"sync"
	"testing"
)

const balanceSchema = `{
	"type": "object",
	"required": ["coins", "inventory"],
	"properties": {
		"coins": { "type": "integer", "minimum": 0 },
		"inventory": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["type", "quantity"],
				"properties": {
					"type": { "type": "string" },
					"quantity": { "type": "integer", "minimum": 1 }
				}
			}
		}
	}
}`

func TestSchema_ValidateBytes(t *testing.T) {
	schema, err := Compile(balanceSchema)
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}

	tests := []struct {
		name      string
		body      string
		wantValid bool
		wantInErr string
	}{
		{"valid", `{"coins": 1000, "inventory": []}`, true, ""},
		{"valid with items", `{"coins": 20, "inventory": [{"type": "cup", "quantity": 2}]}`, true, ""},
		{"missing coins", `{"inventory": []}`, false, "coins"},
		{"negative coins", `{"coins": -5, "inventory": []}`, false, "must be >= 0"},
		{"fractional coins", `{"coins": 1.5, "inventory": []}`, false, "integer"},
		{"bad item", `{"coins": 0, "inventory": [{"type": "cup"}]}`, false, "quantity"},
		{"not json", `{"coins": `, false, "invalid JSON"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			valid, errs := schema.ValidateBytes([]byte(tt.body))
			if valid != tt.wantValid {
				t.Fatalf("ValidateBytes() valid = %v, want %v (errors: %v)", valid, tt.wantValid, errs)
			}
			if tt.wantInErr != "" && !strings.Contains(errs.Error(), tt.wantInErr) {
				t.Errorf("errors %q do not mention %q", errs.Error(), tt.wantInErr)
			}
			if tt.wantValid && len(errs) != 0 {
				t.Errorf("valid document reported errors: %v", errs)
			}
		})
	}
}

func TestSchema_ConcurrentUse(t *testing.T) {
	schema := MustCompile(balanceSchema)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				if ok, errs := schema.ValidateBytes([]byte(`{"coins": 1, "inventory": []}`)); !ok {
					t.Errorf("ValidateBytes() = false: %v", errs)
					return
				}
			}
		}()
	}
	wg.Wait()
}

func TestCompile_InvalidSchema(t *testing.T) {
	if _, err := Compile(`{"type": "invalid-type"}`); err == nil {
		t.Error("Compile() accepted an invalid schema")
	}

	defer func() {
		if recover() == nil {
			t.Error("MustCompile() did not panic on an invalid schema")
		}
	}()
	MustCompile(`{"type": 12}`)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name      string
		json      string
		schema    string
		wantValid bool
		wantErr   bool
	}{
		{"valid", `{"token": "x"}`, `{"type": "object", "required": ["token"]}`, true, false},
		{"violation is not an error", `{}`, `{"type": "object", "required": ["token"]}`, false, false},
		{"invalid schema", `{}`, `{"type": "invalid-type"}`, false, true},
		{"invalid JSON", `{ invalid }`, `{"type": "object"}`, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			valid, err := Validate(tt.json, tt.schema)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && valid != tt.wantValid {
				t.Errorf("Validate() = %v, want %v", valid, tt.wantValid)
			}
		})
	}
}

func TestValidateWithErrors_Multiple(t *testing.T) {
	_, errs := ValidateWithErrors(`{"name": "Jo", "age": 16}`, `{
		"type": "object",
		"properties": {
			"name": { "type": "string", "minLength": 3 },
			"age": { "type": "integer", "minimum": 18 }
		}
	}`)
	msg := errs.Error()
	for _, want := range []string{"length must be >= 3", "must be >= 18"} {
		if !strings.Contains(msg, want) {
			t.Errorf("errors %q do not contain %q", msg, want)
		}
	}
}
