package model

import (
	"fmt"
	"strconv"
	"strings"

	json "github.com/goccy/go-json"
)

// ValueKind identifies the concrete type of an AnswerValue.
type ValueKind string

const (
	KindString      ValueKind = "string"
	KindNumber      ValueKind = "number"
	KindBool        ValueKind = "bool"
	KindList        ValueKind = "list"
	KindMeasurement ValueKind = "measurement"
)

// AnswerValue is the tagged union of value shapes an answer can take.
// The sealed marker keeps the set closed so evaluators can match exhaustively.
type AnswerValue interface {
	Kind() ValueKind
	// Native returns the plain Go representation used for field values
	// and JSON responses.
	Native() any
	answerValue()
}

// StringValue is a free-text, single-choice, yes/no, or location answer.
type StringValue string

func (StringValue) Kind() ValueKind { return KindString }
func (v StringValue) Native() any   { return string(v) }
func (StringValue) answerValue()    {}

// NumberValue is a numeric answer.
type NumberValue float64

func (NumberValue) Kind() ValueKind { return KindNumber }
func (v NumberValue) Native() any   { return float64(v) }
func (NumberValue) answerValue()    {}

// BoolValue is a checkbox answer.
type BoolValue bool

func (BoolValue) Kind() ValueKind { return KindBool }
func (v BoolValue) Native() any   { return bool(v) }
func (BoolValue) answerValue()    {}

// ListValue is a multi-select answer.
type ListValue []string

func (ListValue) Kind() ValueKind { return KindList }
func (v ListValue) Native() any   { return []string(v) }
func (ListValue) answerValue()    {}

// MeasurementValue is a reading with a unit, e.g. {22, "C"} or {65, "%RH"}.
type MeasurementValue struct {
	Value float64 `json:"value"`
	Unit  string  `json:"unit"`
}

func (MeasurementValue) Kind() ValueKind { return KindMeasurement }
func (v MeasurementValue) Native() any   { return map[string]any{"value": v.Value, "unit": v.Unit} }
func (MeasurementValue) answerValue()    {}

// FromAny converts a JSON-decoded value into an AnswerValue.
func FromAny(v any) (AnswerValue, error) {
	switch x := v.(type) {
	case string:
		return StringValue(x), nil
	case float64:
		return NumberValue(x), nil
	case int:
		return NumberValue(float64(x)), nil
	case bool:
		return BoolValue(x), nil
	case []string:
		return ListValue(x), nil
	case []any:
		items := make([]string, 0, len(x))
		for _, it := range x {
			s, ok := it.(string)
			if !ok {
				return nil, fmt.Errorf("%w: list answers must contain only strings, got %T", ErrValidation, it)
			}
			items = append(items, s)
		}
		return ListValue(items), nil
	case map[string]any:
		num, okV := toFloat(x["value"])
		unit, okU := x["unit"].(string)
		if !okV || !okU {
			return nil, fmt.Errorf("%w: measurement answers need numeric \"value\" and string \"unit\"", ErrValidation)
		}
		return MeasurementValue{Value: num, Unit: unit}, nil
	case nil:
		return nil, fmt.Errorf("%w: answer value is required", ErrValidation)
	default:
		return nil, fmt.Errorf("%w: unsupported answer value type %T", ErrValidation, v)
	}
}

// EncodeValue serializes an answer value as JSON text for the answer log.
func EncodeValue(v AnswerValue) (string, error) {
	data, err := json.Marshal(v.Native())
	if err != nil {
		return "", fmt.Errorf("encode answer value: %w", err)
	}
	return string(data), nil
}

// DecodeValue parses a serialized answer value back into its typed form.
// A record that fails to parse degrades to the raw string instead of
// failing the whole restore.
func DecodeValue(raw string) AnswerValue {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return StringValue(raw)
	}
	av, err := FromAny(v)
	if err != nil {
		return StringValue(raw)
	}
	return av
}

// CanonicalString renders any value in a normalized textual form so that
// loosely-typed form data compares consistently ("18" == 18, 18.0 == 18).
func CanonicalString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case AnswerValue:
		return CanonicalString(x.Native())
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(x), 64); err == nil {
			return strconv.FormatFloat(f, 'f', -1, 64)
		}
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case bool:
		return strconv.FormatBool(x)
	case []string:
		return strings.Join(x, ",")
	case []any:
		parts := make([]string, len(x))
		for i, it := range x {
			parts[i] = CanonicalString(it)
		}
		return strings.Join(parts, ",")
	default:
		data, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprintf("%v", x)
		}
		return string(data)
	}
}

// ValuesEqual reports whether two loosely-typed field values are the same
// after canonical normalization.
func ValuesEqual(a, b any) bool {
	return CanonicalString(a) == CanonicalString(b)
}

// IsEmptyValue reports whether a field value counts as empty for merging.
func IsEmptyValue(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(x) == ""
	case []string:
		return len(x) == 0
	case []any:
		return len(x) == 0
	default:
		return false
	}
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	}
	return 0, false
}
