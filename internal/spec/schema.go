package spec

import (
	"sync"

	"github.com/google/jsonschema-go/jsonschema"
)

func ptr[T any](v T) *T { return &v }

func bboxSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type:        "array",
		Description: "Rectangle [x1, y1, x2, y2] in points, origin at the top-left corner of the page",
		Items:       &jsonschema.Schema{Type: "number"},
		MinItems:    ptr(4),
		MaxItems:    ptr(4),
	}
}

// EntrySchema describes a single annotation entry as it appears on the wire.
// Combination rules that depend on the document kind are checked in Go.
func EntrySchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type:     "object",
		Required: []string{"target", "comment"},
		Properties: map[string]*jsonschema.Schema{
			"target": {
				Type: "object",
				Properties: map[string]*jsonschema.Schema{
					"mode":           {Type: "string", Enum: []any{"text", "position"}},
					"text":           {Type: "string"},
					"match_type":     {Type: "string", Enum: []any{"exact", "regex"}},
					"case_sensitive": {Type: "boolean"},
					"whole_word":     {Type: "boolean"},
					"occurrence":     {Types: []string{"string", "integer"}},
					"pdf": {
						Type: "object",
						Properties: map[string]*jsonschema.Schema{
							"page": {Type: "integer"},
							"bbox": bboxSchema(),
						},
					},
					"page": {Type: "integer"},
					"bbox": bboxSchema(),
				},
			},
			"comment": {
				Type:     "object",
				Required: []string{"text"},
				Properties: map[string]*jsonschema.Schema{
					"text":   {Type: "string"},
					"author": {Type: "string"},
				},
			},
		},
	}
}

var resolvedEntrySchema = sync.OnceValues(func() (*jsonschema.Resolved, error) {
	return EntrySchema().Resolve(nil)
})
