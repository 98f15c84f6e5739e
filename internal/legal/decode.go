package legal

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/invopop/jsonschema"
)

// The oracle does not always honor the requested shape. These types accept
// every shape seen in practice for a field and decode it into one typed form.
// Anything unrecognizable decodes to the zero value instead of failing the
// whole response.

// TextList is a list of strings that also accepts a single string.
type TextList []string

func (l *TextList) UnmarshalJSON(b []byte) error {
	*l = nil
	b = bytes.TrimSpace(b)
	switch {
	case len(b) == 0 || bytes.Equal(b, []byte("null")):
		return nil
	case b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return nil
		}
		if s = strings.TrimSpace(s); s != "" {
			*l = TextList{s}
		}
		return nil
	case b[0] == '[':
		var items []json.RawMessage
		if err := json.Unmarshal(b, &items); err != nil {
			return nil
		}
		for _, item := range items {
			var s string
			if json.Unmarshal(item, &s) != nil {
				continue
			}
			if s = strings.TrimSpace(s); s != "" {
				*l = append(*l, s)
			}
		}
	}
	return nil
}

func (l TextList) MarshalJSON() ([]byte, error) {
	if l == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]string(l))
}

// EntityList decodes extracted entities given either as objects or as bare
// strings. A missing name or raw_text is filled from the other field; entries
// with neither are dropped.
type EntityList []RawEntity

func (l *EntityList) UnmarshalJSON(b []byte) error {
	*l = nil
	var items []json.RawMessage
	if json.Unmarshal(b, &items) != nil {
		return nil
	}
	for _, item := range items {
		var e RawEntity
		switch {
		case isString(item):
			var s string
			_ = json.Unmarshal(item, &s)
			e = RawEntity{Name: s, RawText: s}
		case isObject(item):
			var obj map[string]json.RawMessage
			if json.Unmarshal(item, &obj) != nil {
				continue
			}
			e = RawEntity{Name: stringField(obj["name"]), RawText: stringField(obj["raw_text"])}
		default:
			continue
		}
		e = e.Normalized()
		if e.Name == "" {
			continue
		}
		*l = append(*l, e)
	}
	return nil
}

// GroupList decodes grouping responses. A group may carry raw_texts as a list
// or a string, or a single raw_text; a bare string is a name with no texts.
// Groups without a name are dropped.
type GroupList []CanonicalEntity

func (l *GroupList) UnmarshalJSON(b []byte) error {
	*l = nil
	var items []json.RawMessage
	if json.Unmarshal(b, &items) != nil {
		return nil
	}
	for _, item := range items {
		switch {
		case isString(item):
			var s string
			_ = json.Unmarshal(item, &s)
			if s = strings.TrimSpace(s); s != "" {
				*l = append(*l, CanonicalEntity{Name: s, RawTexts: []string{}})
			}
		case isObject(item):
			var obj map[string]json.RawMessage
			if json.Unmarshal(item, &obj) != nil {
				continue
			}
			name := stringField(obj["name"])
			if name == "" {
				continue
			}
			raw, ok := obj["raw_texts"]
			if !ok || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
				raw, ok = obj["raw_text"]
			}
			if !ok {
				continue
			}
			var texts TextList
			_ = texts.UnmarshalJSON(raw)
			if texts == nil {
				texts = TextList{}
			}
			*l = append(*l, CanonicalEntity{Name: name, RawTexts: []string(texts)})
		}
	}
	return nil
}

// FlexInt is an optional integer that also accepts numeric strings.
type FlexInt struct {
	Value int
	Valid bool
}

func (f *FlexInt) UnmarshalJSON(b []byte) error {
	*f = FlexInt{}
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}
	var n json.Number
	if isString(b) {
		var s string
		if json.Unmarshal(b, &s) != nil {
			return nil
		}
		n = json.Number(strings.TrimSpace(s))
	} else if json.Unmarshal(b, &n) != nil {
		return nil
	}
	if v, err := strconv.Atoi(n.String()); err == nil {
		*f = FlexInt{Value: v, Valid: true}
		return nil
	}
	if v, err := n.Float64(); err == nil && v == float64(int(v)) {
		*f = FlexInt{Value: int(v), Valid: true}
	}
	return nil
}

func (f FlexInt) MarshalJSON() ([]byte, error) {
	if !f.Valid {
		return []byte("null"), nil
	}
	return []byte(strconv.Itoa(f.Value)), nil
}

// JSONSchema describes FlexInt as a nullable integer in tool schemas.
func (FlexInt) JSONSchema() *jsonschema.Schema {
	return &jsonschema.Schema{AnyOf: []*jsonschema.Schema{{Type: "integer"}, {Type: "null"}}}
}

// Ptr returns the value as a pointer, nil when absent.
func (f FlexInt) Ptr() *int {
	if !f.Valid {
		return nil
	}
	v := f.Value
	return &v
}

func isString(b []byte) bool {
	b = bytes.TrimSpace(b)
	return len(b) > 0 && b[0] == '"'
}

func isObject(b []byte) bool {
	b = bytes.TrimSpace(b)
	return len(b) > 0 && b[0] == '{'
}

func stringField(raw json.RawMessage) string {
	if raw == nil {
		return ""
	}
	var s string
	if json.Unmarshal(raw, &s) != nil {
		return ""
	}
	return strings.TrimSpace(s)
}
