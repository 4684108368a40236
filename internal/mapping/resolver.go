package mapping

import (
	"fmt"
	"log/slog"

	"github.com/dkarpov/intake/internal/model"
)

// Resolve turns one answer into zero or more auto-populated fields according
// to the question's field mappings. A failing or missing transform skips
// that single mapping; it never fails the answer.
func Resolve(reg *Registry, q model.Question, answer model.AnswerValue, current map[string]model.AutoPopulatedField) []model.AutoPopulatedField {
	var out []model.AutoPopulatedField
	for _, m := range q.FieldMappings {
		value, err := resolveValue(reg, m, answer, current)
		if err != nil {
			slog.Warn("field mapping transform failed, skipping mapping",
				"question", q.ID, "field", m.FieldID, "transform", m.Transform, "error", err)
			continue
		}
		out = append(out, model.AutoPopulatedField{
			FieldID:    m.FieldID,
			Value:      value,
			Confidence: m.Confidence,
		})
	}
	return out
}

func resolveValue(reg *Registry, m model.FieldMapping, answer model.AnswerValue, current map[string]model.AutoPopulatedField) (value any, err error) {
	if m.Transform == "" {
		if m.Value != nil {
			return m.Value, nil
		}
		return answer.Native(), nil
	}

	fn, ok := reg.Lookup(m.Transform)
	if !ok {
		return nil, fmt.Errorf("%w: transform %q not registered", model.ErrTransform, m.Transform)
	}

	// A panicking transform is contained the same way as an erroring one.
	defer func() {
		if r := recover(); r != nil {
			value, err = nil, fmt.Errorf("%w: transform %q panicked: %v", model.ErrTransform, m.Transform, r)
		}
	}()

	out, err := fn(answer, current)
	if err != nil {
		return nil, fmt.Errorf("%w: transform %q: %v", model.ErrTransform, m.Transform, err)
	}
	return out, nil
}
