package oracle

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestSchemaForInlinesAndDescribes(t *testing.T) {
	type item struct {
		Name string `json:"name" jsonschema_description:"Canonical name, formal wording"`
	}
	type reply struct {
		Items []item `json:"items"`
		Note  string `json:"note,omitempty"`
	}
	s := SchemaFor(&reply{})
	b, err := json.Marshal(s)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	out := string(b)
	if strings.Contains(out, "$ref") || strings.Contains(out, "$defs") {
		t.Fatalf("schema should be inlined: %s", out)
	}
	if !strings.Contains(out, "Canonical name, formal wording") {
		t.Fatalf("description missing: %s", out)
	}
	if len(s.Required) != 1 || s.Required[0] != "items" {
		t.Fatalf("required = %v", s.Required)
	}
	props, required := propertiesOf(s)
	if props == nil || len(required) != 1 {
		t.Fatalf("propertiesOf = %v, %v", props, required)
	}
}
