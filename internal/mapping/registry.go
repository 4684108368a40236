// Package mapping turns interview answers into auto-populated form fields
// and reconciles those fields against pre-existing form data.
package mapping

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dkarpov/intake/internal/model"
)

// TransformFunc is a pure transform applied to one answer. It receives the
// answer and a read-only view of the fields populated so far, and returns
// the value to store for the mapping's target field.
type TransformFunc func(answer model.AnswerValue, fields map[string]model.AutoPopulatedField) (any, error)

// Registry maps stable string ids to transforms, so graphs can reference
// transforms by name instead of embedding closures.
type Registry struct {
	transforms map[string]TransformFunc
}

// NewRegistry creates a registry seeded with the built-in transforms.
func NewRegistry() *Registry {
	r := &Registry{transforms: make(map[string]TransformFunc)}
	for id, fn := range builtins() {
		r.transforms[id] = fn
	}
	return r
}

// Register adds a transform under the given id. Re-registering an id
// replaces the previous transform.
func (r *Registry) Register(id string, fn TransformFunc) {
	r.transforms[id] = fn
}

// Lookup returns the transform registered under id.
func (r *Registry) Lookup(id string) (TransformFunc, bool) {
	fn, ok := r.transforms[id]
	return fn, ok
}

func builtins() map[string]TransformFunc {
	return map[string]TransformFunc{
		// yes_no_bool maps a yes/no answer to a boolean field value.
		"yes_no_bool": func(answer model.AnswerValue, _ map[string]model.AutoPopulatedField) (any, error) {
			switch v := answer.(type) {
			case model.BoolValue:
				return bool(v), nil
			case model.StringValue:
				switch strings.ToLower(strings.TrimSpace(string(v))) {
				case "yes", "true":
					return true, nil
				case "no", "false":
					return false, nil
				}
			}
			return nil, fmt.Errorf("not a yes/no answer: %v", answer.Native())
		},
		// join_comma flattens a multi-select answer into one text field.
		"join_comma": func(answer model.AnswerValue, _ map[string]model.AutoPopulatedField) (any, error) {
			list, ok := answer.(model.ListValue)
			if !ok {
				return nil, fmt.Errorf("not a list answer: %v", answer.Native())
			}
			return strings.Join(list, ", "), nil
		},
		// measurement_text renders a measurement as "22 C".
		"measurement_text": func(answer model.AnswerValue, _ map[string]model.AutoPopulatedField) (any, error) {
			m, ok := answer.(model.MeasurementValue)
			if !ok {
				return nil, fmt.Errorf("not a measurement answer: %v", answer.Native())
			}
			return strconv.FormatFloat(m.Value, 'f', -1, 64) + " " + m.Unit, nil
		},
		// measurement_value extracts the numeric reading, discarding the unit.
		"measurement_value": func(answer model.AnswerValue, _ map[string]model.AutoPopulatedField) (any, error) {
			m, ok := answer.(model.MeasurementValue)
			if !ok {
				return nil, fmt.Errorf("not a measurement answer: %v", answer.Native())
			}
			return m.Value, nil
		},
		// trim_text normalizes free-text whitespace.
		"trim_text": func(answer model.AnswerValue, _ map[string]model.AutoPopulatedField) (any, error) {
			s, ok := answer.(model.StringValue)
			if !ok {
				return nil, fmt.Errorf("not a text answer: %v", answer.Native())
			}
			return strings.TrimSpace(string(s)), nil
		},
	}
}
