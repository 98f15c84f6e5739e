package oracle

import "github.com/invopop/jsonschema"

var reflector = jsonschema.Reflector{
	DoNotReference:             true,
	ExpandedStruct:             true,
	AllowAdditionalProperties:  true,
	RequiredFromJSONSchemaTags: false,
}

// SchemaFor reflects the response type v into the input schema sent with a
// request. Field descriptions come from jsonschema_description tags.
func SchemaFor(v any) *jsonschema.Schema {
	s := reflector.Reflect(v)
	s.Version = ""
	s.ID = ""
	return s
}

func propertiesOf(s *jsonschema.Schema) (any, []string) {
	if s == nil || s.Properties == nil {
		return map[string]any{}, nil
	}
	return s.Properties, s.Required
}
